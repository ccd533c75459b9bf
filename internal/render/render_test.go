package render

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/testgap/internal/schema"
)

func sampleReport() *schema.Report {
	return &schema.Report{
		Tool:    "testgap",
		Version: "0.1.0",
		RunID:   "run-1",
		Input: schema.Input{
			Root:      ".",
			Profile:   "general",
			Threshold: 0.5,
		},
		Summary: schema.Summary{
			Verdict:     schema.VerdictPartial,
			Score:       50,
			Generated:   2,
			Accepted:    1,
			AcceptedPct: 50,
			Degraded:    1,
			Unresolved:  3,
		},
		Analysis: schema.Analysis{
			SourceFiles:       4,
			TestFiles:         1,
			TestToSourceRatio: 0.25,
			Frameworks:        []string{"pytest"},
			FrameworkFiles:    map[string]int{"pytest": 1},
			OverallCoverage:   0.42,
			Priorities: []schema.Priority{
				{Path: "pkg/calc.py", Ratio: 0, Reported: false},
				{Path: "pkg/io.py", Ratio: 0.25, Reported: true},
			},
			Warnings: []string{"pkg/broken.py: syntax error"},
		},
		Tests: []schema.GeneratedTest{
			{
				Target:        "pkg/calc.py::add",
				Kind:          "function",
				File:          "pkg/calc.py",
				Language:      "python",
				Framework:     "pytest",
				TemplateName:  "pytest_function",
				Rendered:      "def test_add():\n    assert add(1, 2) == 3\n",
				SuggestedPath: "pkg/test_calc.py",
				Validation:    schema.ValidationOutcome{Accepted: true, State: schema.StateAccepted},
			},
			{
				Target:        "pkg/calc.py::Calculator",
				Kind:          "class",
				File:          "pkg/calc.py",
				Language:      "python",
				Framework:     "pytest",
				Rendered:      "class TestCalculator:\n    pass",
				SuggestedPath: "pkg/test_calc.py",
				Degraded:      true,
				Unresolved:    3,
				Validation: schema.ValidationOutcome{
					State:         schema.StateLocallyRejected,
					Issues:        []string{"No assertions found"},
					Suggestions:   []string{"Add assertions | checks"},
					RemoteSkipped: false,
				},
			},
		},
		Meta: schema.Meta{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-5",
			Temperature: 0.2,
		},
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	report := sampleReport()
	b, err := RenderJSON(report)
	if err != nil {
		t.Fatalf("RenderJSON error: %v", err)
	}
	var got schema.Report
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if got.Summary.Verdict != report.Summary.Verdict {
		t.Errorf("verdict mismatch: got %q, want %q", got.Summary.Verdict, report.Summary.Verdict)
	}
	if len(got.Tests) != len(report.Tests) {
		t.Fatalf("tests count mismatch: got %d, want %d", len(got.Tests), len(report.Tests))
	}
	if got.Tests[1].Validation.Issues[0] != "No assertions found" {
		t.Errorf("issues lost: %+v", got.Tests[1].Validation)
	}
	if len(got.Analysis.Priorities) != 2 || got.Analysis.Priorities[1].Ratio != 0.25 {
		t.Errorf("priorities mismatch: %+v", got.Analysis.Priorities)
	}
	if !strings.Contains(string(b), "\n  ") {
		t.Error("expected indentation in pretty-printed JSON output")
	}
}

func TestRenderMarkdown_ContainsAllTargets(t *testing.T) {
	md := RenderMarkdown(sampleReport())
	for _, want := range []string{"pkg/calc.py::add", "pkg/calc.py::Calculator", "pkg/io.py"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown output missing %q", want)
		}
	}
}

func TestRenderMarkdown_Summary(t *testing.T) {
	md := RenderMarkdown(sampleReport())
	for _, want := range []string{
		"**Verdict:** PARTIAL",
		"**Score:** 50/100",
		"**Overall coverage:** 42.0%",
		"**Test/source ratio:** 0.25",
		"| pytest | 1 |",
		"| pkg/io.py | 25.0% | yes |",
		"**Accepted:** 1 (50%)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_TestDetails(t *testing.T) {
	md := RenderMarkdown(sampleReport())
	for _, want := range []string{
		"[function, pytest_function] accepted",
		"[class, free-form] rejected",
		"**Degraded:** 3 unresolved slot(s)",
		"- No assertions found",
		`- Add assertions \| checks`,
		"```python\nclass TestCalculator:\n    pass\n```",
		"- pkg/broken.py: syntax error",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_EmptyReport(t *testing.T) {
	md := RenderMarkdown(&schema.Report{Summary: schema.Summary{Verdict: schema.VerdictComplete, Score: 100}})
	if !strings.Contains(md, "COMPLETE") {
		t.Error("markdown missing COMPLETE verdict")
	}
	for _, section := range []string{"## Coverage Gaps", "## Generated Tests", "## Warnings", "## Test Frameworks"} {
		if strings.Contains(md, section) {
			t.Errorf("markdown should not contain %s for an empty report", section)
		}
	}
}

func TestRenderMarkdown_Cancelled(t *testing.T) {
	r := sampleReport()
	r.Summary.Cancelled = true
	if !strings.Contains(RenderMarkdown(r), "Run cancelled") {
		t.Error("markdown missing cancellation note")
	}
}

func TestRenderTerminal(t *testing.T) {
	out, err := RenderTerminal(sampleReport(), "notty", 100)
	if err != nil {
		t.Fatalf("RenderTerminal: %v", err)
	}
	if !strings.Contains(out, "pkg/calc.py::add") {
		t.Errorf("terminal output missing target:\n%s", out)
	}
}

func TestWriteTests_ConcatenatesSharedFiles(t *testing.T) {
	dir := t.TempDir()
	tests := sampleReport().Tests
	tests = append(tests,
		schema.GeneratedTest{File: "store/store.go", Framework: "gotest", Rendered: "package store\n"},
		schema.GeneratedTest{SuggestedPath: "empty_test.go", Rendered: "  \n"},
	)

	written, err := WriteTests(dir, tests)
	if err != nil {
		t.Fatalf("WriteTests: %v", err)
	}
	want := []string{
		filepath.Join(dir, "pkg", "test_calc.py"),
		filepath.Join(dir, "store", "store_test.go"),
	}
	if len(written) != len(want) || written[0] != want[0] || written[1] != want[1] {
		t.Fatalf("written = %v, want %v", written, want)
	}

	b, err := os.ReadFile(want[0])
	if err != nil {
		t.Fatal(err)
	}
	wantBody := "def test_add():\n    assert add(1, 2) == 3\n\nclass TestCalculator:\n    pass\n"
	if string(b) != wantBody {
		t.Errorf("test_calc.py =\n%q\nwant\n%q", b, wantBody)
	}
	if _, err := os.Stat(filepath.Join(dir, "empty_test.go")); !os.IsNotExist(err) {
		t.Errorf("blank test was written: %v", err)
	}
}

func TestRenderJSON_NilReport(t *testing.T) {
	_, err := RenderJSON(nil)
	if err == nil {
		t.Error("expected error for nil report, got nil")
	}
}

func TestRenderMarkdown_NilReport(t *testing.T) {
	if got := RenderMarkdown(nil); got != "" {
		t.Errorf("expected empty string for nil report, got %q", got)
	}
}

func TestMdEscape(t *testing.T) {
	cases := []struct{ in, want string }{
		{"no pipes", "no pipes"},
		{"a|b", `a\|b`},
		{"a|b|c", `a\|b\|c`},
		{"line\nbreak", "line break"},
		{"", ""},
	}
	for _, c := range cases {
		got := mdEscape(c.in)
		if got != c.want {
			t.Errorf("mdEscape(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
