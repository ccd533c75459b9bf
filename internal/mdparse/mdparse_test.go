package mdparse

import (
	"testing"
)

func TestIsHeading(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"# H1", true},
		{"## H2", true},
		{"###### H6", true},
		{"####### too many hashes", false},
		{"#nospace", false},
		{"not a heading", false},
		{"    # indented code block", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsHeading(c.line); got != c.want {
			t.Errorf("IsHeading(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

func TestFencePrefix(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"```", "```"},
		{"```go", "```"},
		{"````", "````"},
		{"~~~", "~~~"},
		{"~~~~bash", "~~~~"},
		{"    ```", ""}, // 4 leading spaces → indented code block
		{"   ```", "```"}, // 3 leading spaces → fence
		{"``", ""},   // only 2 backticks
		{"", ""},
	}
	for _, c := range cases {
		if got := fencePrefix(c.line); got != c.want {
			t.Errorf("fencePrefix(%q) = %q, want %q", c.line, got, c.want)
		}
	}
}

func TestIsClosingFence(t *testing.T) {
	cases := []struct {
		line, open string
		want       bool
	}{
		{"```", "```", true},
		{"```  ", "```", true},  // trailing spaces allowed
		{"````", "```", true},   // longer or equal is valid closing
		{"```go", "```", false}, // info string → not a closer
		{"~~~", "```", false},   // different marker
		{"~~", "~~~", false},    // too short
		{"", "```", false},
		{"```", "", false}, // empty openFence
	}
	for _, c := range cases {
		if got := isClosingFence(c.line, c.open); got != c.want {
			t.Errorf("isClosingFence(%q, %q) = %v, want %v", c.line, c.open, got, c.want)
		}
	}
}

const response = "Here is the test.\n\n" +
	"```json\n{\"arrange_code\": \"x = 1\"}\n```\n\n" +
	"```python\ndef test_add():\n    assert add(1, 2) == 3\n```\n\n" +
	"~~~\nplain\n~~~\n"

func TestBlocks(t *testing.T) {
	blocks := Blocks(response)
	if len(blocks) != 3 {
		t.Fatalf("len(Blocks) = %d, want 3", len(blocks))
	}
	cases := []struct {
		lang       string
		body       string
		start, end int
	}{
		{"json", `{"arrange_code": "x = 1"}`, 3, 5},
		{"python", "def test_add():\n    assert add(1, 2) == 3", 7, 10},
		{"", "plain", 12, 14},
	}
	for i, c := range cases {
		b := blocks[i]
		if b.Lang() != c.lang || b.Body != c.body || b.LineStart != c.start || b.LineEnd != c.end || !b.Closed {
			t.Errorf("block %d = %+v, want lang %q body %q lines %d-%d", i, b, c.lang, c.body, c.start, c.end)
		}
	}
}

func TestBlocks_Unclosed(t *testing.T) {
	blocks := Blocks("```go\nfunc TestX(t *testing.T) {}\n")
	if len(blocks) != 1 || blocks[0].Closed || blocks[0].Body != "func TestX(t *testing.T) {}" {
		t.Errorf("Blocks = %+v", blocks)
	}
}

func TestBlocks_LongerFenceNests(t *testing.T) {
	blocks := Blocks("````markdown\n```go\nx\n```\n````\n")
	if len(blocks) != 1 || blocks[0].Body != "```go\nx\n```" {
		t.Errorf("Blocks = %+v", blocks)
	}
}

func TestFirst(t *testing.T) {
	if b, ok := First(response, "python", "py"); !ok || b.Lang() != "python" {
		t.Errorf("First(python) = %+v, %v", b, ok)
	}
	if b, ok := First(response, "go"); !ok || b.Body != "plain" {
		t.Errorf("First(go) should fall back to the untagged block, got %+v, %v", b, ok)
	}
	if b, ok := First(response); !ok || b.Lang() != "json" {
		t.Errorf("First() = %+v, %v", b, ok)
	}
	if _, ok := First("no fences here"); ok {
		t.Error("First on plain text should report false")
	}
}

func TestCode(t *testing.T) {
	cases := []struct {
		text  string
		langs []string
		want  string
	}{
		{response, []string{"python"}, "def test_add():\n    assert add(1, 2) == 3"},
		{"  x = 1\n", []string{"python"}, "x = 1"},
		{"```json\n{}\n```", []string{"python"}, ""},
	}
	for _, c := range cases {
		if got := Code(c.text, c.langs...); got != c.want {
			t.Errorf("Code(%q, %v) = %q, want %q", c.text, c.langs, got, c.want)
		}
	}
}

func TestSections(t *testing.T) {
	text := "preamble\n\n## Verdict\nAPPROVE\n\n## Issues\n- none\n```\n# not a heading\n```\n"
	got := Sections(text)
	if len(got) != 3 {
		t.Fatalf("len(Sections) = %d, want 3: %+v", len(got), got)
	}
	if got[0].Title != "" || got[0].Body != "preamble" {
		t.Errorf("section 0 = %+v", got[0])
	}
	if got[1].Title != "Verdict" || got[1].Level != 2 || got[1].Body != "APPROVE" {
		t.Errorf("section 1 = %+v", got[1])
	}
	if got[2].Title != "Issues" || got[2].Body != "- none\n```\n# not a heading\n```" {
		t.Errorf("section 2 = %+v", got[2])
	}
}
