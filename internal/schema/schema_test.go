package schema_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dshills/testgap/internal/schema"
)

func TestReport_JSONRoundTrip(t *testing.T) {
	original := &schema.Report{
		Tool:      "testgap",
		Version:   "0.1.0",
		RunID:     "5b0c9f5e-3d2a-4b8e-9a51-0f0f2d6b7c11",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Input:     schema.Input{Root: ".", Profile: "general", Threshold: 0.5, RemoteReview: true},
		Summary: schema.Summary{
			Verdict:   schema.VerdictPartial,
			Score:     50,
			Generated: 2,
			Accepted:  1,
		},
		Analysis: schema.Analysis{
			SourceFiles: 3,
			TestFiles:   1,
			Priorities:  []schema.Priority{{Path: "pkg/calc.py", Ratio: 0.25, Reported: true}},
		},
		Tests: []schema.GeneratedTest{
			{
				Target:       "pkg/calc.py::add",
				Kind:         "function",
				TemplateName: "pytest_function",
				Rendered:     "def test_add():\n    assert add(1, 2) == 3\n",
				Validation: schema.ValidationOutcome{
					Accepted: true,
					State:    schema.StateAccepted,
				},
			},
			{
				Target:     "pkg/calc.py::Calc",
				Kind:       "class",
				Degraded:   true,
				Unresolved: 3,
				Validation: schema.ValidationOutcome{
					State:         schema.StateLocallyRejected,
					Issues:        []string{"No assertions found"},
					RemoteSkipped: true,
				},
			},
		},
		Meta: schema.Meta{Provider: "anthropic", Model: "claude-sonnet-4-5", Temperature: 0.2},
	}

	b, err := json.MarshalIndent(original, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got schema.Report
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !got.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt mismatch: %v vs %v", got.CreatedAt, original.CreatedAt)
	}
	if got.Summary.Verdict != original.Summary.Verdict {
		t.Errorf("Verdict mismatch: %q vs %q", got.Summary.Verdict, original.Summary.Verdict)
	}
	if len(got.Tests) != 2 || got.Tests[1].Validation.State != schema.StateLocallyRejected {
		t.Errorf("Tests mismatch: %+v", got.Tests)
	}
	if !got.Tests[1].FreeForm() || got.Tests[0].FreeForm() {
		t.Error("FreeForm should follow TemplateName")
	}
	byTarget := got.ByTarget()
	if byTarget["pkg/calc.py::add"].Rendered != original.Tests[0].Rendered {
		t.Errorf("ByTarget lost the rendered code")
	}
}

func TestEnumValues_Serialize(t *testing.T) {
	states := []struct {
		s    schema.ValidationState
		want string
	}{
		{schema.StateNotValidated, "NOT_VALIDATED"},
		{schema.StateLocallyRejected, "LOCALLY_REJECTED"},
		{schema.StateLocallyAccepted, "LOCALLY_ACCEPTED"},
		{schema.StateAccepted, "ACCEPTED"},
		{schema.StateRemotelyRejected, "REMOTELY_REJECTED"},
	}
	for _, tc := range states {
		b, _ := json.Marshal(tc.s)
		if string(b) != `"`+tc.want+`"` {
			t.Errorf("ValidationState %q serialized to %s, want %q", tc.s, b, tc.want)
		}
	}
	if schema.StateNotValidated.Terminal() || !schema.StateLocallyAccepted.Terminal() {
		t.Error("Terminal() wrong")
	}
}

func TestSummarize(t *testing.T) {
	tests := []schema.GeneratedTest{
		{Validation: schema.ValidationOutcome{Accepted: true}},
		{Validation: schema.ValidationOutcome{Accepted: true}, Degraded: true, Unresolved: 2},
		{Unresolved: 1},
		{Degraded: true},
	}
	s := schema.Summarize(tests)
	if s.Generated != 4 || s.Accepted != 2 || s.Degraded != 2 || s.Unresolved != 3 {
		t.Errorf("Summarize = %+v", s)
	}
	if s.AcceptedPct != 50 {
		t.Errorf("AcceptedPct = %v, want 50", s.AcceptedPct)
	}
	if empty := schema.Summarize(nil); empty.AcceptedPct != 0 || empty.Generated != 0 {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}

func TestTestFileName(t *testing.T) {
	cases := []struct {
		src, fw, want string
	}{
		{"pkg/calculator.py", "pytest", "pkg/test_calculator.py"},
		{"calculator.py", "unittest", "test_calculator.py"},
		{"store/store.go", "gotest", "store/store_test.go"},
		{"src/util.js", "jest", "src/util.test.js"},
		{"src/util.ts", "mocha", "src/util.test.ts"},
	}
	for _, c := range cases {
		if got := schema.TestFileName(c.src, c.fw); got != c.want {
			t.Errorf("TestFileName(%q, %q) = %q, want %q", c.src, c.fw, got, c.want)
		}
	}
}
