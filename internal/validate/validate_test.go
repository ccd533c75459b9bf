package validate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/testgap/internal/llm"
	"github.com/dshills/testgap/internal/schema"
)

const goodPytest = `import pytest

from pkg.calc import add


def test_add():
    result = add(1, 2)
    assert result == 3
`

const goodUnittest = `import unittest

from pkg.calc import add


class TestAdd(unittest.TestCase):
    def test_add(self):
        self.assertEqual(add(1, 2), 3)
`

const goodGotest = `package store

import (
	"testing"
)

func TestStore_Get(t *testing.T) {
	s := New()
	s.Put("k", "v")
	got, ok := s.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
}
`

const goodJest = `import { add } from './calc';

describe('add', () => {
  test('adds numbers', () => {
    expect(add(1, 2)).toBe(3);
  });
});
`

// reviewProvider returns a canned critique or an error.
type reviewProvider struct {
	response string
	err      error
	calls    int
}

func (p *reviewProvider) Complete(context.Context, string, string, int, float64) (string, error) {
	p.calls++
	return p.response, p.err
}

func TestLocal_Accepts(t *testing.T) {
	cases := []struct {
		name, src, lang, fw string
	}{
		{"pytest", goodPytest, "python", "pytest"},
		{"unittest", goodUnittest, "python", "unittest"},
		{"gotest", goodGotest, "go", "gotest"},
		{"jest", goodJest, "javascript", "jest"},
		{"typescript", goodJest, "typescript", "jest"},
		{"framework from another language", goodGotest, "go", "pytest"},
		{"unchecked language", "whatever", "rust", "cargo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			issues, suggestions := Local(context.Background(), tc.src, tc.lang, tc.fw)
			if len(issues) != 0 || len(suggestions) != 0 {
				t.Errorf("Local = %v / %v, want none", issues, suggestions)
			}
		})
	}
}

func TestLocal_Rejects(t *testing.T) {
	cases := []struct {
		name, src, lang, fw string
		want                []string
	}{
		{
			name: "python syntax",
			src:  "import pytest\n\ndef test_x(:\n    assert True\n",
			lang: "python", fw: "pytest",
			want: []string{"Syntax error"},
		},
		{
			name: "python no assertions",
			src:  "from pkg import f\n\n\ndef test_f():\n    # TODO: Add assertions\n    f()\n",
			lang: "python", fw: "pytest",
			want: []string{"No assertions found"},
		},
		{
			name: "python nothing",
			src:  "x = 1\n",
			lang: "python", fw: "pytest",
			want: []string{"Missing imports", "No test functions found", "No assertions found"},
		},
		{
			name: "unittest needs test methods",
			src:  "import unittest\n\n\nclass TestX(unittest.TestCase):\n    def setUp(self):\n        assert True\n",
			lang: "python", fw: "unittest",
			want: []string{"No test methods found"},
		},
		{
			name: "go unbalanced",
			src:  "package x\n\nimport \"testing\"\n\nfunc TestX(t *testing.T) {\n\tt.Fatal(\"x\")\n",
			lang: "go", fw: "gotest",
			want: []string{"Syntax error"},
		},
		{
			name: "go skeleton",
			src:  "package x\n\nimport (\n\t\"testing\"\n)\n\nfunc TestX(t *testing.T) {\n\tt.Skip(\"TODO\")\n}\n",
			lang: "go", fw: "gotest",
			want: []string{"No assertions found"},
		},
		{
			name: "mocha ignores test()",
			src:  "const { add } = require('./calc');\n\ntest('x', () => { assert.equal(add(1, 1), 2); });\n",
			lang: "javascript", fw: "mocha",
			want: []string{"No test blocks found"},
		},
		{
			name: "empty",
			src:  "   \n",
			lang: "go", fw: "gotest",
			want: []string{"Syntax error: empty file", "Missing imports", "No test functions found", "No assertions found"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			issues, suggestions := Local(context.Background(), tc.src, tc.lang, tc.fw)
			if len(issues) != len(tc.want) {
				t.Fatalf("issues = %q, want %d matching %q", issues, len(tc.want), tc.want)
			}
			if len(suggestions) != len(issues) {
				t.Errorf("got %d suggestions for %d issues", len(suggestions), len(issues))
			}
			for i, want := range tc.want {
				if !strings.HasPrefix(issues[i], want) {
					t.Errorf("issues[%d] = %q, want prefix %q", i, issues[i], want)
				}
			}
		})
	}
}

func TestValidate_LocalOnly(t *testing.T) {
	var v Validator
	got := v.Validate(context.Background(), goodPytest, "def add(a, b): return a + b", "python", "pytest")
	if !got.Accepted || got.State != schema.StateLocallyAccepted || got.RemoteSkipped {
		t.Errorf("Validate = %+v, want locally accepted", got)
	}

	rejected := v.Validate(context.Background(), "x = 1\n", "", "python", "pytest")
	if rejected.Accepted || rejected.State != schema.StateLocallyRejected {
		t.Errorf("Validate(bad) = %+v, want locally rejected", rejected)
	}
}

func TestValidate_CancelledRunStillChecksLocally(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var v Validator
	got := v.Validate(ctx, goodPytest, "def add(a, b): return a + b", "python", "pytest")
	if !got.Accepted || got.State != schema.StateLocallyAccepted {
		t.Errorf("Validate(cancelled) = %+v, want locally accepted", got)
	}
	for _, issue := range got.Issues {
		if strings.Contains(issue, "Syntax error") {
			t.Errorf("spurious syntax issue under a cancelled context: %q", issue)
		}
	}
}

func TestValidate_RemoteAccepts(t *testing.T) {
	p := &reviewProvider{response: "```json\n{\"issues\": [], \"suggestions\": [\"cover negative numbers\"]}\n```"}
	v := &Validator{Client: &llm.Client{Provider: p}}
	got := v.Validate(context.Background(), goodPytest, "def add(a, b): return a + b", "python", "pytest")

	if !got.Accepted || got.State != schema.StateAccepted {
		t.Errorf("Validate = %+v, want accepted", got)
	}
	if len(got.Suggestions) != 1 || got.Suggestions[0] != "cover negative numbers" {
		t.Errorf("Suggestions = %q", got.Suggestions)
	}
}

func TestValidate_RemoteRejects(t *testing.T) {
	p := &reviewProvider{response: `Review: {"issues": ["asserts the wrong value"], "suggestions": ["expect 3"]}`}
	v := &Validator{Client: &llm.Client{Provider: p}}
	got := v.Validate(context.Background(), goodGotest, "", "go", "gotest")

	if got.Accepted || got.State != schema.StateRemotelyRejected {
		t.Errorf("Validate = %+v, want remotely rejected", got)
	}
	if len(got.Issues) != 1 || got.Issues[0] != "asserts the wrong value" {
		t.Errorf("Issues = %q", got.Issues)
	}
}

func TestValidate_RemoteFailsOpen(t *testing.T) {
	cases := map[string]*reviewProvider{
		"provider error": {err: errors.New("503")},
		"unparseable":    {response: "looks fine to me"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			v := &Validator{Client: &llm.Client{Provider: p}}
			got := v.Validate(context.Background(), goodJest, "", "javascript", "jest")
			if !got.Accepted || !got.RemoteSkipped || got.State != schema.StateLocallyAccepted {
				t.Errorf("Validate = %+v, want accepted with remote skipped", got)
			}
			if len(got.Issues) != 0 {
				t.Errorf("Issues = %q, want none", got.Issues)
			}
		})
	}
}

func TestValidate_NoRemoteWhenLocallyRejected(t *testing.T) {
	p := &reviewProvider{response: `{"issues": [], "suggestions": []}`}
	v := &Validator{Client: &llm.Client{Provider: p}}
	got := v.Validate(context.Background(), "x = 1\n", "", "python", "pytest")
	if p.calls != 0 {
		t.Errorf("provider called %d times for a locally rejected test", p.calls)
	}
	if got.State != schema.StateLocallyRejected {
		t.Errorf("State = %s", got.State)
	}
}
