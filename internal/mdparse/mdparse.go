// Package mdparse extracts fenced code blocks and headed sections from
// Markdown text such as model responses.
package mdparse

import (
	"bufio"
	"strings"
)

// Block is a fenced code block.
type Block struct {
	Info      string // info string after the opening fence, e.g. "python"
	Body      string
	LineStart int // line of the opening fence, 1-indexed
	LineEnd   int // line of the closing fence, or the last line when unclosed
	Closed    bool
}

// Lang returns the first word of the info string, lowercased.
func (b Block) Lang() string {
	f := strings.Fields(b.Info)
	if len(f) == 0 {
		return ""
	}
	return strings.ToLower(f[0])
}

func splitLines(text string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

// Blocks returns every fenced code block in text in document order. An
// unclosed final fence runs to the end of the text.
func Blocks(text string) []Block {
	var out []Block
	var cur *Block
	var body []string
	var open string
	for i, line := range splitLines(text) {
		n := i + 1
		if open != "" {
			if isClosingFence(line, open) {
				cur.Body = strings.Join(body, "\n")
				cur.LineEnd = n
				cur.Closed = true
				out = append(out, *cur)
				cur, body, open = nil, nil, ""
				continue
			}
			body = append(body, line)
			cur.LineEnd = n
			continue
		}
		if fp := fencePrefix(line); fp != "" {
			// Backtick fences may not carry backticks in the info string.
			info := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), fp[:1]))
			if fp[0] == '`' && strings.Contains(info, "`") {
				continue
			}
			open = fp
			cur = &Block{Info: info, LineStart: n, LineEnd: n}
		}
	}
	if cur != nil {
		cur.Body = strings.Join(body, "\n")
		out = append(out, *cur)
	}
	return out
}

// First returns the first block whose language is one of langs. With no
// langs it returns the first block of any language. An untagged block
// matches when no tagged block does.
func First(text string, langs ...string) (Block, bool) {
	blocks := Blocks(text)
	if len(blocks) == 0 {
		return Block{}, false
	}
	if len(langs) == 0 {
		return blocks[0], true
	}
	for _, b := range blocks {
		for _, l := range langs {
			if b.Lang() == strings.ToLower(l) {
				return b, true
			}
		}
	}
	for _, b := range blocks {
		if b.Lang() == "" {
			return b, true
		}
	}
	return Block{}, false
}

// Code returns the body of the preferred block for langs, or the whole
// text trimmed when it contains no fences.
func Code(text string, langs ...string) string {
	if b, ok := First(text, langs...); ok {
		return b.Body
	}
	if len(Blocks(text)) > 0 {
		return ""
	}
	return strings.TrimSpace(text)
}

// Section is the text under one ATX heading.
type Section struct {
	Title string
	Level int
	Body  string
}

// Sections splits text at ATX headings outside fenced blocks. Text before
// the first heading is returned as a section with an empty title and level 0
// when it is not blank.
func Sections(text string) []Section {
	var out []Section
	cur := Section{}
	var body []string
	var open string
	flush := func() {
		cur.Body = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.Title != "" || cur.Body != "" {
			out = append(out, cur)
		}
		body = nil
	}
	for _, line := range splitLines(text) {
		if open != "" {
			if isClosingFence(line, open) {
				open = ""
			}
			body = append(body, line)
			continue
		}
		if fp := fencePrefix(line); fp != "" {
			open = fp
			body = append(body, line)
			continue
		}
		if IsHeading(line) {
			flush()
			t := strings.TrimSpace(line)
			level := strings.IndexFunc(t, func(r rune) bool { return r != '#' })
			cur = Section{Title: strings.TrimSpace(strings.TrimRight(t[level:], "# ")), Level: level}
			continue
		}
		body = append(body, line)
	}
	flush()
	return out
}

// fencePrefix returns the opening fence string (e.g. "```" or "~~~~") if line
// starts a fenced code block, otherwise returns "".
// CommonMark allows up to 3 leading spaces before the fence marker.
// Lines with 4 or more leading spaces are indented code blocks, not fences.
func fencePrefix(line string) string {
	leading := 0
	for leading < len(line) && line[leading] == ' ' {
		leading++
	}
	if leading >= 4 {
		return ""
	}
	stripped := line[leading:]
	for _, marker := range []byte{'`', '~'} {
		if len(stripped) < 3 || stripped[0] != marker {
			continue
		}
		count := 0
		for count < len(stripped) && stripped[count] == marker {
			count++
		}
		if count >= 3 {
			return stripped[:count]
		}
	}
	return ""
}

// isClosingFence returns true if line is a valid closing fence for openFence.
// A closing fence must use the same fence character, be at least as long as
// the opening fence, and have only optional trailing spaces after the markers.
func isClosingFence(line, openFence string) bool {
	if len(openFence) == 0 {
		return false
	}
	fp := fencePrefix(line)
	if fp == "" || fp[0] != openFence[0] || len(fp) < len(openFence) {
		return false
	}
	leading := 0
	for leading < len(line) && line[leading] == ' ' {
		leading++
	}
	rest := strings.TrimLeft(line[leading+len(fp):], " ")
	return rest == ""
}

// IsHeading returns true for ATX Markdown headings (# through ######).
// A space immediately after the hashes is required.
// Lines with 4 or more leading spaces are indented code blocks, not headings.
func IsHeading(line string) bool {
	leading := 0
	for leading < len(line) && line[leading] == ' ' {
		leading++
	}
	if leading >= 4 {
		return false
	}
	t := strings.TrimSpace(line)
	hashes := strings.IndexFunc(t, func(r rune) bool { return r != '#' })
	return hashes > 0 && hashes <= 6 && len(t) > hashes && t[hashes] == ' '
}
