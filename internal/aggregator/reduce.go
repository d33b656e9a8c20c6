package aggregator

import (
	"path/filepath"
	"strings"

	"github.com/kjstillabower/circleci-coverage/internal/models"
)

// ReduceStats counts what Reduce did with each covered file.
type ReduceStats struct {
	Attributed int
	Excluded   int
}

// Reduce folds records into a document keyed by paths relative to root. Paths
// containing any exclude segment are skipped. The result is never nil.
func Reduce(records []models.Record, root string, exclude []string) (models.Document, ReduceStats) {
	doc := make(models.Document)
	var stats ReduceStats
	for _, rec := range records {
		key := rec.TestKey()
		for _, file := range rec.CoveredFiles {
			rel := RelativePath(root, file)
			if excluded(rel, exclude) {
				stats.Excluded++
				continue
			}
			if _, ok := doc[rel][key]; !ok {
				stats.Attributed++
			}
			doc.Attribute(rel, key)
		}
	}
	return doc, stats
}

// RelativePath returns file relative to root with forward slashes. Relative inputs
// are taken to be relative to root already.
func RelativePath(root, file string) string {
	if !filepath.IsAbs(file) {
		file = filepath.Join(root, file)
	}
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

func excluded(rel string, segments []string) bool {
	for _, seg := range segments {
		if seg != "" && strings.Contains(rel, seg) {
			return true
		}
	}
	return false
}
