// Package schema defines all canonical data types for the testgap output format.
package schema

import (
	"path"
	"time"
)

// Verdict is the overall outcome of a generation run.
type Verdict string

const (
	VerdictComplete Verdict = "COMPLETE"
	VerdictPartial  Verdict = "PARTIAL"
	VerdictDegraded Verdict = "DEGRADED"
	VerdictFailed   Verdict = "FAILED"
)

// ValidationState records how far validation of a generated test got.
type ValidationState string

const (
	StateNotValidated     ValidationState = "NOT_VALIDATED"
	StateLocallyRejected  ValidationState = "LOCALLY_REJECTED"
	StateLocallyAccepted  ValidationState = "LOCALLY_ACCEPTED"
	StateAccepted         ValidationState = "ACCEPTED"
	StateRemotelyRejected ValidationState = "REMOTELY_REJECTED"
)

// Terminal reports whether no further validation step applies.
func (s ValidationState) Terminal() bool {
	return s != StateNotValidated
}

// ValidationOutcome is the verdict on one generated test.
type ValidationOutcome struct {
	Accepted      bool            `json:"accepted"`
	State         ValidationState `json:"state"`
	Issues        []string        `json:"issues,omitempty"`
	Suggestions   []string        `json:"suggestions,omitempty"`
	RemoteSkipped bool            `json:"remote_skipped,omitempty"`
}

// GeneratedTest is the synthesized test for one target entity.
type GeneratedTest struct {
	Target        string            `json:"target"` // qualified name
	Kind          string            `json:"kind"`
	File          string            `json:"file"`
	Language      string            `json:"language"`
	Framework     string            `json:"framework"`
	TemplateName  string            `json:"template,omitempty"` // empty for free-form
	Rendered      string            `json:"code"`
	Unresolved    int               `json:"unresolved"`
	Degraded      bool              `json:"degraded"`
	Validation    ValidationOutcome `json:"validation"`
	SuggestedPath string            `json:"suggested_path,omitempty"`
}

// FreeForm reports whether the test was produced without a template.
func (g GeneratedTest) FreeForm() bool {
	return g.TemplateName == ""
}

// Report is the top-level output document.
type Report struct {
	Tool      string          `json:"tool"`
	Version   string          `json:"version"`
	RunID     string          `json:"run_id"`
	CreatedAt time.Time       `json:"created_at"`
	Input     Input           `json:"input"`
	Summary   Summary         `json:"summary"`
	Analysis  Analysis        `json:"analysis"`
	Tests     []GeneratedTest `json:"tests"`
	Meta      Meta            `json:"meta"`
}

// ByTarget indexes the report's tests by qualified name.
func (r *Report) ByTarget() map[string]GeneratedTest {
	out := make(map[string]GeneratedTest, len(r.Tests))
	for _, t := range r.Tests {
		out[t.Target] = t
	}
	return out
}

// Input records the parameters used for this run.
type Input struct {
	Root         string  `json:"root"`
	CoverageFile string  `json:"coverage_file,omitempty"`
	Framework    string  `json:"framework,omitempty"`
	Profile      string  `json:"profile"`
	Threshold    float64 `json:"threshold"`
	Limit        int     `json:"limit,omitempty"`
	RemoteReview bool    `json:"remote_review"`
}

// Priority is one entry of the ranked gap list.
type Priority struct {
	Path     string  `json:"path"`
	Ratio    float64 `json:"ratio"`
	Reported bool    `json:"reported"`
}

// Analysis describes the repository before synthesis.
type Analysis struct {
	SourceFiles       int            `json:"source_files"`
	TestFiles         int            `json:"test_files"`
	TestToSourceRatio float64        `json:"test_to_source_ratio"`
	Languages         map[string]int `json:"languages,omitempty"`
	Frameworks        []string       `json:"frameworks,omitempty"`
	FrameworkFiles    map[string]int `json:"framework_files,omitempty"`
	CoverageFormat    string         `json:"coverage_format,omitempty"`
	OverallCoverage   float64        `json:"overall_coverage"`
	Entities          int            `json:"entities"`
	Priorities        []Priority     `json:"priorities"`
	Warnings          []string       `json:"warnings,omitempty"`
}

// Summary holds the computed verdict and counts.
type Summary struct {
	Verdict         Verdict `json:"verdict"`
	Score           int     `json:"score"`
	OverallCoverage float64 `json:"overall_coverage"`
	Generated       int     `json:"generated"`
	Accepted        int     `json:"accepted"`
	AcceptedPct     float64 `json:"accepted_pct"`
	Degraded        int     `json:"degraded"`
	Unresolved      int     `json:"unresolved"`
	Cancelled       bool    `json:"cancelled,omitempty"`
}

// Meta records information about the provider used.
type Meta struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature"`
}

// Summarize counts tests into a Summary. Verdict and Score are left for the
// caller.
func Summarize(tests []GeneratedTest) Summary {
	var s Summary
	for _, t := range tests {
		s.Generated++
		if t.Validation.Accepted {
			s.Accepted++
		}
		if t.Degraded {
			s.Degraded++
		}
		s.Unresolved += t.Unresolved
	}
	if s.Generated > 0 {
		s.AcceptedPct = float64(s.Accepted) / float64(s.Generated) * 100
	}
	return s
}

// TestFileName returns the conventional test file name for a source file
// under framework.
func TestFileName(sourcePath, framework string) string {
	dir, base := path.Split(sourcePath)
	ext := path.Ext(base)
	stem := base[:len(base)-len(ext)]
	switch framework {
	case "gotest":
		return dir + stem + "_test.go"
	case "jest", "mocha":
		return dir + stem + ".test" + ext
	default:
		return dir + "test_" + base
	}
}
