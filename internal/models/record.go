package models

// PhaseRun is the only test phase reported today. The key format leaves room for
// others such as "setup".
const PhaseRun = "run"

// TestInfo identifies the test currently executing.
type TestInfo struct {
	Title    string `json:"title"`
	SpecPath string `json:"specPath"` // relative to the project root
}

// Record is the per-test hand-off from collector to aggregator.
// CoveredFiles order carries no meaning.
type Record struct {
	CoveredFiles []string `json:"coveredFiles"`
	Title        string   `json:"title"`
	SpecPath     string   `json:"specPath"`
}

// TestKey returns the composite key "<specPath>::<title>|run".
func (r Record) TestKey() string {
	return r.SpecPath + "::" + r.Title + "|" + PhaseRun
}

// Document is the Smarter Testing output: file path -> test key -> executed lines.
type Document map[string]map[string][]int

// placeholderLines stands in for executed lines. The consuming parser needs a
// non-empty list but line granularity is not tracked.
var placeholderLines = []int{1}

// Attribute records that file was covered by the test identified by key.
// Repeated calls for the same pair leave the first entry in place.
func (d Document) Attribute(file, key string) {
	tests, ok := d[file]
	if !ok {
		tests = make(map[string][]int)
		d[file] = tests
	}
	if _, ok := tests[key]; ok {
		return
	}
	tests[key] = append([]int(nil), placeholderLines...)
}
