package models

import (
	"encoding/json"
	"fmt"
	"io"
)

// FileCoverage is the Istanbul counter record for one instrumented file.
// S holds statement counts, F function counts and B branch counts keyed by
// the instrumenter's ids. Only S is used for attribution.
type FileCoverage struct {
	Path string           `json:"path,omitempty"`
	S    map[string]int   `json:"s"`
	F    map[string]int   `json:"f,omitempty"`
	B    map[string][]int `json:"b,omitempty"`
}

// CoverageMap maps an absolute file path to its counters. Counts only ever increase
// over a session.
type CoverageMap map[string]FileCoverage

// Clone returns a deep copy of m. A nil map clones to nil.
func (m CoverageMap) Clone() CoverageMap {
	if m == nil {
		return nil
	}
	out := make(CoverageMap, len(m))
	for file, fc := range m {
		out[file] = fc.clone()
	}
	return out
}

func (fc FileCoverage) clone() FileCoverage {
	out := FileCoverage{Path: fc.Path}
	if fc.S != nil {
		out.S = make(map[string]int, len(fc.S))
		for k, v := range fc.S {
			out.S[k] = v
		}
	}
	if fc.F != nil {
		out.F = make(map[string]int, len(fc.F))
		for k, v := range fc.F {
			out.F[k] = v
		}
	}
	if fc.B != nil {
		out.B = make(map[string][]int, len(fc.B))
		for k, v := range fc.B {
			out.B[k] = append([]int(nil), v...)
		}
	}
	return out
}

// DecodeCoverageMap reads an Istanbul __coverage__ dump. Source maps
// (statementMap, fnMap, branchMap) are ignored.
func DecodeCoverageMap(r io.Reader) (CoverageMap, error) {
	var m CoverageMap
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode coverage map: %w", err)
	}
	return m, nil
}
