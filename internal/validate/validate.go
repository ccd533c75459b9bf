// Package validate judges generated tests without running them: fast local
// checks first, then an optional critique from the content provider.
package validate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"go.uber.org/zap"

	"github.com/dshills/testgap/internal/llm"
	"github.com/dshills/testgap/internal/schema"
)

// Validator runs local checks and, when Client is set, a remote critique of
// candidates that pass them.
type Validator struct {
	Client *llm.Client
	Logger *zap.Logger
}

func (v *Validator) logger() *zap.Logger {
	if v == nil || v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}

// Validate judges candidate, a generated test for the source in targetRaw.
// It never returns an error: a failed or unparseable remote critique leaves
// the local verdict in place and sets RemoteSkipped.
func (v *Validator) Validate(ctx context.Context, candidate, targetRaw, language, framework string) schema.ValidationOutcome {
	issues, suggestions := Local(ctx, candidate, language, framework)
	if len(issues) > 0 {
		return schema.ValidationOutcome{
			State:       schema.StateLocallyRejected,
			Issues:      issues,
			Suggestions: suggestions,
		}
	}

	out := schema.ValidationOutcome{
		Accepted:    true,
		State:       schema.StateLocallyAccepted,
		Suggestions: suggestions,
	}
	if v == nil || v.Client == nil {
		return out
	}

	critique, err := v.Client.Review(ctx, candidate, targetRaw, language)
	if err != nil {
		v.logger().Warn("remote review skipped", zap.String("language", language), zap.Error(err))
		out.RemoteSkipped = true
		return out
	}
	out.Suggestions = append(out.Suggestions, critique.Suggestions...)
	if len(critique.Issues) > 0 {
		out.Accepted = false
		out.State = schema.StateRemotelyRejected
		out.Issues = append(out.Issues, critique.Issues...)
		return out
	}
	out.State = schema.StateAccepted
	return out
}

// check is one local acceptance rule.
type check struct {
	ok         func(src string) bool
	issue      string
	suggestion string
}

func matches(res ...*regexp.Regexp) func(string) bool {
	return func(src string) bool {
		for _, re := range res {
			if re.MatchString(src) {
				return true
			}
		}
		return false
	}
}

var (
	pyImportRe     = regexp.MustCompile(`(?m)^\s*(import|from)\s+\S+`)
	pyTestFuncRe   = regexp.MustCompile(`(?m)^\s*(async\s+)?def\s+test\w*\s*\(`)
	pyTestClassRe  = regexp.MustCompile(`(?m)^\s*class\s+Test\w*`)
	pyAssertRe     = regexp.MustCompile(`(?m)\b(assert\b|self\.assert\w+\s*\(|pytest\.raises\s*\()`)
	goImportRe     = regexp.MustCompile(`(?m)^import\b`)
	goTestFuncRe   = regexp.MustCompile(`(?m)^func\s+(Test|Benchmark|Fuzz)\w*\s*\(`)
	goAssertRe     = regexp.MustCompile(`\b(t\.(Error|Errorf|Fatal|Fatalf|Fail|FailNow)\s*\(|assert\.\w+\(|require\.\w+\(|cmp\.Diff\()`)
	jsImportRe     = regexp.MustCompile(`(?m)^\s*(import\s|(const|let|var)\s+.+=\s*require\()`)
	jsTestBlockRe  = regexp.MustCompile(`\b(describe|it|test)\s*\(`)
	jsMochaBlockRe = regexp.MustCompile(`\b(describe|it)\s*\(`)
	jsAssertRe     = regexp.MustCompile(`\b(expect\s*\(|assert\b)`)
)

var importCheck = map[string]check{
	"python": {matches(pyImportRe), "Missing imports", "Add necessary imports for the code being tested"},
	"go":     {matches(goImportRe), "Missing imports", "Import the testing package"},
	"js":     {matches(jsImportRe), "Missing imports", "Import the module under test"},
}

// markerCheck is keyed by framework, falling back to the language family.
var markerCheck = map[string]check{
	"pytest":   {matches(pyTestFuncRe, pyTestClassRe), "No test functions found", "Test functions should be named with 'test_' prefix"},
	"unittest": {matches(pyTestFuncRe), "No test methods found", "Name TestCase methods with a 'test_' prefix"},
	"gotest":   {matches(goTestFuncRe), "No test functions found", "Declare tests as func TestXxx(t *testing.T)"},
	"jest":     {matches(jsTestBlockRe), "No test blocks found", "Use describe(), it(), or test() blocks"},
	"mocha":    {matches(jsMochaBlockRe), "No test blocks found", "Use describe() and it() blocks"},
}

var assertCheck = map[string]check{
	"python": {matches(pyAssertRe), "No assertions found", "Add assertions to verify the code behavior"},
	"go":     {matches(goAssertRe), "No assertions found", "Report failures with t.Errorf or t.Fatalf"},
	"js":     {matches(jsAssertRe), "No assertions found", "Add expectations or assertions to verify the code behavior"},
}

// family maps a language to the key shared by its checks.
func family(language string) string {
	switch strings.ToLower(language) {
	case "python":
		return "python"
	case "go":
		return "go"
	case "javascript", "typescript":
		return "js"
	}
	return ""
}

func defaultMarker(fam string) string {
	switch fam {
	case "python":
		return "pytest"
	case "go":
		return "gotest"
	case "js":
		return "jest"
	}
	return ""
}

// Local runs the checks that need no external calls and returns one issue
// and one suggestion per failed check. Languages without checks pass.
// Local checks run to completion even when ctx is already cancelled.
func Local(_ context.Context, candidate, language, framework string) (issues, suggestions []string) {
	fam := family(language)
	if fam == "" {
		return nil, nil
	}
	if msg, ok := syntaxError(candidate, language); !ok {
		issues = append(issues, "Syntax error: "+msg)
		suggestions = append(suggestions, "Fix the syntax so the file parses")
	}

	marker, ok := markerCheck[framework]
	if !ok || family(frameworkLanguage(framework)) != fam {
		marker = markerCheck[defaultMarker(fam)]
	}
	for _, c := range []check{importCheck[fam], marker, assertCheck[fam]} {
		if !c.ok(candidate) {
			issues = append(issues, c.issue)
			suggestions = append(suggestions, c.suggestion)
		}
	}
	return issues, suggestions
}

func frameworkLanguage(framework string) string {
	switch framework {
	case "pytest", "unittest":
		return "python"
	case "gotest":
		return "go"
	case "jest", "mocha":
		return "javascript"
	}
	return ""
}

func grammar(language string) *sitter.Language {
	switch strings.ToLower(language) {
	case "python":
		return python.GetLanguage()
	case "go":
		return golang.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	case "typescript":
		return typescript.GetLanguage()
	}
	return nil
}

// syntaxError parses src and reports the first ERROR or MISSING node.
func syntaxError(src, language string) (string, bool) {
	lang := grammar(language)
	if lang == nil {
		return "", true
	}
	if strings.TrimSpace(src) == "" {
		return "empty file", false
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	if err != nil {
		return fmt.Sprintf("parse failed: %v", err), false
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return "", true
	}
	if n := firstError(root); n != nil {
		line := int(n.StartPoint().Row) + 1
		if n.IsMissing() {
			return fmt.Sprintf("line %d: missing %s", line, n.Type()), false
		}
		return fmt.Sprintf("line %d: unexpected input", line), false
	}
	return "unparseable input", false
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		if e := firstError(n.Child(i)); e != nil {
			return e
		}
	}
	return nil
}
