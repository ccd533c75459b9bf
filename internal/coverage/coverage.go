// Package coverage holds per-file coverage records and ranks source files
// by how urgently they need new tests.
package coverage

import (
	"sort"

	"github.com/dshills/testgap/internal/scan"
)

// DefaultThreshold is the coverage ratio at or above which a file is not
// prioritized.
const DefaultThreshold = 0.5

// Record is the coverage of one source file.
type Record struct {
	Statements   int   `json:"statements"`
	Missing      int   `json:"missing"`
	MissingLines []int `json:"missing_lines,omitempty"`
}

// Covered returns the number of executed statements.
func (r Record) Covered() int {
	if r.Missing > r.Statements {
		return 0
	}
	return r.Statements - r.Missing
}

// Ratio returns covered/total, or 0.0 when the file has no statements.
func (r Record) Ratio() float64 {
	if r.Statements <= 0 {
		return 0
	}
	return float64(r.Covered()) / float64(r.Statements)
}

// Report maps repo-relative file paths to records and remembers the order
// in which the coverage tool listed them.
type Report struct {
	Format  string
	records map[string]Record
	order   []string
}

// NewReport returns an empty report.
func NewReport(format string) *Report {
	return &Report{Format: format, records: make(map[string]Record)}
}

// Add records rec for path. A second Add for the same path replaces the
// record but keeps the original position.
func (r *Report) Add(path string, rec Record) {
	if _, ok := r.records[path]; !ok {
		r.order = append(r.order, path)
	}
	r.records[path] = rec
}

// Get returns the record for path.
func (r *Report) Get(path string) (Record, bool) {
	if r == nil {
		return Record{}, false
	}
	rec, ok := r.records[path]
	return rec, ok
}

// Paths returns the report's file paths in report order.
func (r *Report) Paths() []string {
	if r == nil {
		return nil
	}
	return r.order
}

// Len returns the number of files in the report.
func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Priority is one entry of a PriorityList.
type Priority struct {
	Path     string  `json:"path"`
	Ratio    float64 `json:"ratio"`
	Reported bool    `json:"reported"` // false when the file is absent from the report
}

// PriorityList is the ordered set of files selected for new tests.
type PriorityList []Priority

// Paths returns the file paths in priority order.
func (p PriorityList) Paths() []string {
	out := make([]string, len(p))
	for i, e := range p {
		out[i] = e.Path
	}
	return out
}

// Buckets is the partition of source files by coverage.
type Buckets struct {
	Covered   []string   // ratio == 1.0
	Uncovered []Priority // ratio == 0.0 or absent; reported files in report order, then absent files
	Partial   []Priority // 0.0 < ratio < 1.0, in source order
	Empty     []string   // reported with zero statements; no signal
}

// Classify partitions sourceFiles. Test files are removed before
// partitioning. When sourceFiles is empty the report's own files are
// classified instead. A nil or empty report puts every file in Uncovered.
func Classify(report *Report, sourceFiles, testFiles []string) Buckets {
	tests := make(map[string]bool, len(testFiles))
	for _, t := range testFiles {
		tests[t] = true
	}
	isTest := func(p string) bool { return tests[p] || scan.IsTestPath(p) }

	candidates := sourceFiles
	if len(candidates) == 0 {
		candidates = report.Paths()
	}
	inSource := make(map[string]bool, len(candidates))
	for _, p := range candidates {
		if !isTest(p) {
			inSource[p] = true
		}
	}

	var b Buckets
	placed := make(map[string]bool, len(inSource))

	// Reported zero-coverage files keep report order.
	for _, p := range report.Paths() {
		if !inSource[p] {
			continue
		}
		rec, _ := report.Get(p)
		if rec.Statements <= 0 {
			b.Empty = append(b.Empty, p)
			placed[p] = true
			continue
		}
		if rec.Ratio() == 0 {
			b.Uncovered = append(b.Uncovered, Priority{Path: p, Reported: true})
			placed[p] = true
		}
	}

	for _, p := range candidates {
		if !inSource[p] || placed[p] {
			continue
		}
		placed[p] = true
		rec, ok := report.Get(p)
		switch {
		case !ok:
			b.Uncovered = append(b.Uncovered, Priority{Path: p})
		case rec.Ratio() >= 1:
			b.Covered = append(b.Covered, p)
		default:
			b.Partial = append(b.Partial, Priority{Path: p, Ratio: rec.Ratio(), Reported: true})
		}
	}
	return b
}

// Rank returns the files needing tests: every uncovered file, followed by
// partially covered files below threshold sorted ascending by ratio. Ties
// keep source order. A threshold outside (0, 1] is replaced by
// DefaultThreshold.
func Rank(report *Report, sourceFiles, testFiles []string, threshold float64) PriorityList {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	b := Classify(report, sourceFiles, testFiles)

	var partial []Priority
	for _, p := range b.Partial {
		if p.Ratio < threshold {
			partial = append(partial, p)
		}
	}
	sort.SliceStable(partial, func(i, j int) bool { return partial[i].Ratio < partial[j].Ratio })

	out := make(PriorityList, 0, len(b.Uncovered)+len(partial))
	out = append(out, b.Uncovered...)
	out = append(out, partial...)
	return out
}

// Overall returns the percentage of statements covered across every
// non-test file in the report, or 0 when the report is empty.
func Overall(report *Report, testFiles []string) float64 {
	tests := make(map[string]bool, len(testFiles))
	for _, t := range testFiles {
		tests[t] = true
	}
	var total, covered int
	for _, p := range report.Paths() {
		if tests[p] || scan.IsTestPath(p) {
			continue
		}
		rec, _ := report.Get(p)
		total += rec.Statements
		covered += rec.Covered()
	}
	if total == 0 {
		return 0
	}
	return float64(covered) / float64(total) * 100
}
