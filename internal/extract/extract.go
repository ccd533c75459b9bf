// Package extract parses one source file into Function and Class entities
// using tree-sitter. Only top-level declarations and the methods of
// top-level classes are extracted; nested functions and classes stay inside
// their parent's raw text.
//
// Extraction never fails past this package: a malformed declaration is
// skipped with a warning and the declarations after it are still extracted,
// while an unreadable or unparseable file yields an empty Result with a
// warning.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/testgap/internal/entity"
)

// Result is the output of extracting one file.
type Result struct {
	Functions []*entity.Function // top-level functions, plus Go methods whose receiver type lives in another file
	Classes   []*entity.Class
	Warnings  []Warning
}

// Entities returns every function, class and method in source order of
// discovery: functions first, then each class followed by its methods.
func (r Result) Entities() []entity.Entity {
	var out []entity.Entity
	for _, f := range r.Functions {
		out = append(out, f)
	}
	for _, c := range r.Classes {
		out = append(out, c)
		for _, m := range c.Methods {
			out = append(out, m)
		}
	}
	return out
}

// Warning records a contained extraction problem.
type Warning struct {
	File    string
	Line    int // 0 when the warning concerns the whole file
	Message string
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", w.File, w.Line, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.File, w.Message)
}

// language binds a tree-sitter grammar to its declaration walker.
type language struct {
	grammar *sitter.Language
	walk    func(w *walker, root *sitter.Node)
}

var languages = map[string]language{
	"python": {grammar: pythonGrammar(), walk: walkPython},
	"go":     {grammar: goGrammar(), walk: walkGo},
}

// Supported reports whether lang has an extractor.
func Supported(lang string) bool {
	_, ok := languages[lang]
	return ok
}

// File reads path from disk and extracts it. rel is the repo-relative path
// recorded on every entity. Unreadable files yield an empty Result.
func File(ctx context.Context, path, rel, lang string) Result {
	src, err := os.ReadFile(path)
	if err != nil {
		return Result{Warnings: []Warning{{File: rel, Message: fmt.Sprintf("unreadable: %v", err)}}}
	}
	return Source(ctx, rel, src, lang)
}

// Source extracts entities from src. rel is recorded as the owning file of
// every entity.
func Source(ctx context.Context, rel string, src []byte, lang string) Result {
	l, ok := languages[lang]
	if !ok {
		return Result{Warnings: []Warning{{File: rel, Message: fmt.Sprintf("unsupported language %q", lang)}}}
	}
	if !utf8.Valid(src) {
		return Result{Warnings: []Warning{{File: rel, Message: "not valid UTF-8"}}}
	}
	if len(src) == 0 {
		return Result{}
	}

	// Parsers are not safe for concurrent use; one per call.
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(l.grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return Result{Warnings: []Warning{{File: rel, Message: fmt.Sprintf("parse failed: %v", err)}}}
	}
	defer tree.Close()

	w := &walker{ctx: ctx, file: rel, lang: lang, src: src, grammar: l}
	root := tree.RootNode()
	if wholeFileFailed(root) {
		w.resume(root)
		if len(w.res.Functions) == 0 && len(w.res.Classes) == 0 {
			return Result{Warnings: []Warning{{File: rel, Message: "syntax error: no declarations could be recovered"}}}
		}
		w.res.Warnings = append([]Warning{{File: rel, Line: 1, Message: "syntax error; extracted only declarations after it"}}, w.res.Warnings...)
		return w.res
	}
	l.walk(w, root)
	return w.res
}

// wholeFileFailed reports whether the parse recovered nothing usable: the
// root is itself an error, or every top-level node is an error.
func wholeFileFailed(root *sitter.Node) bool {
	if root == nil || root.IsError() {
		return true
	}
	if !root.HasError() {
		return false
	}
	n := int(root.NamedChildCount())
	for i := 0; i < n; i++ {
		c := root.NamedChild(i)
		if c.Type() != "ERROR" && c.Type() != "comment" {
			return false
		}
	}
	return true
}

// walker carries per-file state shared by the language walkers.
type walker struct {
	ctx     context.Context
	file    string
	lang    string
	src     []byte
	line    int // rows of the file that precede src
	grammar language
	res     Result
}

// declStart matches a line that opens a top-level declaration.
var declStart = map[string]*regexp.Regexp{
	"python": regexp.MustCompile(`^(?:async\s+def|def|class)\s|^@`),
	"go":     regexp.MustCompile(`^(?:func|type)\s`),
}

// skip warns about an unparseable top-level region. When the region hides
// later declarations, the rest of the file is extracted from a fresh parse
// and skip reports true; the caller must then stop walking.
func (w *walker) skip(n *sitter.Node) bool {
	w.warn(n, "skipping unparseable region")
	return w.resume(n)
}

// resume re-parses the file from the first column-0 declaration after the
// first line of n. Tree-sitter folds everything after an unclosed bracket
// into one error node; the declarations that follow are usually well formed.
func (w *walker) resume(n *sitter.Node) bool {
	re, ok := declStart[w.lang]
	if !ok || w.ctx.Err() != nil {
		return false
	}
	end := int(n.EndByte())
	region := w.src[n.StartByte():end]
	nl := bytes.IndexByte(region, '\n')
	if nl < 0 {
		return false
	}
	pos := int(n.StartByte()) + nl + 1
	row := int(n.StartPoint().Row) + 1
	for pos < end {
		lineEnd := bytes.IndexByte(w.src[pos:end], '\n')
		next := end
		if lineEnd >= 0 {
			next = pos + lineEnd + 1
		}
		if re.Match(w.src[pos:next]) {
			w.reparse(pos, row)
			return true
		}
		pos = next
		row++
	}
	return false
}

// reparse extracts src[from:], which begins on row of w.src.
func (w *walker) reparse(from, row int) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(w.grammar.grammar)

	chunk := w.src[from:]
	tree, err := parser.ParseCtx(w.ctx, nil, chunk)
	if err != nil {
		return
	}
	defer tree.Close()

	sub := &walker{ctx: w.ctx, file: w.file, lang: w.lang, src: chunk, line: w.line + row, grammar: w.grammar}
	root := tree.RootNode()
	if wholeFileFailed(root) {
		sub.resume(root)
	} else {
		w.grammar.walk(sub, root)
	}
	w.res.Functions = append(w.res.Functions, sub.res.Functions...)
	w.res.Classes = append(w.res.Classes, sub.res.Classes...)
	w.res.Warnings = append(w.res.Warnings, sub.res.Warnings...)
}

func (w *walker) warn(n *sitter.Node, format string, args ...any) {
	line := 0
	if n != nil {
		line = w.line + int(n.StartPoint().Row) + 1
	}
	w.res.Warnings = append(w.res.Warnings, Warning{File: w.file, Line: line, Message: fmt.Sprintf(format, args...)})
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.src[n.StartByte():n.EndByte()])
}

// decl builds the shared fields for a declaration spanning n.
func (w *walker) decl(n *sitter.Node, name, doc string) entity.Decl {
	start := w.line + int(n.StartPoint().Row) + 1
	end := w.line + int(n.EndPoint().Row) + 1
	if n.EndPoint().Column == 0 && end > start {
		end--
	}
	return entity.Decl{
		File:     w.file,
		Name:     name,
		Language: w.lang,
		Span:     entity.Span{Start: start, End: end},
		Text:     w.text(n),
		Doc:      doc,
	}
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// IsTestName reports whether a declaration name follows the test naming
// convention of lang. Such declarations are never extracted.
func IsTestName(lang, name string) bool {
	switch lang {
	case "python":
		return strings.HasPrefix(name, "test_") || strings.HasSuffix(name, "_test")
	case "go":
		for _, p := range []string{"Test", "Benchmark", "Fuzz", "Example"} {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
	}
	return false
}

// dedupe returns names with later duplicates removed.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
