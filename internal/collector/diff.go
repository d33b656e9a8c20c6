package collector

import (
	"sort"

	"github.com/kjstillabower/circleci-coverage/internal/models"
)

// CoveredFiles returns the files in live where at least one statement count is
// higher than in baseline. Statements missing from baseline count as zero.
// Each file appears once; the result is sorted.
func CoveredFiles(live, baseline models.CoverageMap) []string {
	covered := make([]string, 0)
	for file, fc := range live {
		if statementsIncreased(fc.S, baseline[file].S) {
			covered = append(covered, file)
		}
	}
	sort.Strings(covered)
	return covered
}

func statementsIncreased(live, baseline map[string]int) bool {
	for id, count := range live {
		if count > baseline[id] {
			return true
		}
	}
	return false
}
