package detect

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDetect_ClassifiesByContent(t *testing.T) {
	tests := []TestFile{
		{Path: "tests/test_calc.py", Content: "import pytest\n\ndef test_add():\n    assert add(1, 2) == 3\n"},
		{Path: "tests/test_legacy.py", Content: "import unittest\n\nclass TestLegacy(unittest.TestCase):\n    def test_x(self):\n        assert True\n"},
		{Path: "tests/test_more.py", Content: "def test_more():\n    assert 1\n"},
		{Path: "store/store_test.go", Content: "package store\n\nimport \"testing\"\n\nfunc TestGet(t *testing.T) {}\n"},
		{Path: "src/util.test.js", Content: "describe('util', () => { it('works', () => {}); });\n"},
		{Path: "tests/notes.py", Content: "x = 1\n"},
	}
	fw := Detect(tests, nil)

	if diff := cmp.Diff([]string{"pytest", "unittest", "gotest", "jest"}, fw.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
	wantCounts := map[string]int{"pytest": 2, "unittest": 1, "gotest": 1, "jest": 1, "unknown": 1}
	if diff := cmp.Diff(wantCounts, fw.Counts()); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
	if got := fw.Files("unittest"); len(got) != 1 || got[0] != "tests/test_legacy.py" {
		t.Errorf("Files(unittest) = %v", got)
	}
}

func TestDetect_ConfigIndicators(t *testing.T) {
	fw := Detect(nil, []string{"web/jest.config.js", "pytest.ini", "README.md"})
	if !fw.Has("pytest") || !fw.Has("jest") {
		t.Errorf("Names = %v, want pytest and jest", fw.Names())
	}
	if fw.Has("mocha") {
		t.Error("mocha detected without evidence")
	}
	if len(fw.Counts()) != 0 {
		t.Errorf("Counts = %v, want empty", fw.Counts())
	}
}

func TestDetect_MochaBeforeJest(t *testing.T) {
	fw := Detect([]TestFile{{Path: "a.test.js", Content: "const { expect } = require('chai');\nbefore(() => {});\ndescribe('a', () => {});\n"}}, nil)
	if got := fw.Names(); len(got) != 1 || got[0] != "mocha" {
		t.Errorf("Names = %v, want [mocha]", got)
	}
}

func TestPreferred(t *testing.T) {
	tests := []TestFile{
		{Path: "a.py", Content: "import unittest\n"},
		{Path: "b.py", Content: "import pytest\n"},
		{Path: "c.py", Content: "import pytest\n"},
		{Path: "d.js", Content: "test('x', () => {})\n"},
	}
	fw := Detect(tests, []string{"conftest.py"})
	cases := map[string]string{
		"python":     "pytest",
		"javascript": "jest",
		"typescript": "jest",
		"go":         "",
	}
	for lang, want := range cases {
		if got := fw.Preferred(lang); got != want {
			t.Errorf("Preferred(%s) = %q, want %q", lang, got, want)
		}
	}
}

func TestPreferred_TieKeepsDetectionOrder(t *testing.T) {
	fw := Detect([]TestFile{
		{Path: "a.py", Content: "import unittest\n"},
		{Path: "b.py", Content: "import pytest\n"},
	}, nil)
	if got := fw.Preferred("python"); got != "unittest" {
		t.Errorf("Preferred(python) = %q, want unittest", got)
	}
}

func TestFrameworks_ZeroValue(t *testing.T) {
	var fw Frameworks
	if fw.Has("pytest") || fw.Preferred("python") != "" || len(fw.Names()) != 0 || len(fw.Counts()) != 0 {
		t.Error("zero Frameworks should report nothing")
	}
}
