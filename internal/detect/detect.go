// Package detect identifies the test frameworks a repository already uses,
// from the contents of its test files and from well-known config files.
package detect

import (
	"path"
	"regexp"
	"sort"
)

// Framework is a detected test framework.
type Framework struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// TestFile is the input Detect needs for one test file.
type TestFile struct {
	Path    string
	Content string
}

type signature struct {
	Framework
	patterns []*regexp.Regexp
}

func sig(name, lang string, patterns ...string) signature {
	s := signature{Framework: Framework{Name: name, Language: lang}}
	for _, p := range patterns {
		s.patterns = append(s.patterns, regexp.MustCompile(p))
	}
	return s
}

// signatures are tried in order; a file belongs to the first one that
// matches. More specific frameworks come before the ones whose patterns
// they would also satisfy.
var signatures = []signature{
	sig("gotest", "go", `import\s+(\(\s*)?"testing"`, `func\s+Test\w*\(\s*\w+\s+\*testing\.T\s*\)`),
	sig("unittest", "python", `import\s+unittest`, `from\s+unittest`, `class\s+\w+\(.*TestCase\)`),
	sig("pytest", "python", `import\s+pytest`, `from\s+pytest`, `@pytest\.`, `\bassert\s+`),
	sig("mocha", "javascript", `from\s+['"]mocha['"]`, `require\(\s*['"]mocha['"]`, `\bbefore\(`),
	sig("jest", "javascript", `from\s+['"]@?jest`, `\bjest\.`, `\bdescribe\(`, `\bit\(`, `\btest\(`),
	sig("junit", "java", `import\s+org\.junit`, `@Test\b`, `Assert\.`),
	sig("testng", "java", `import\s+org\.testng`),
	sig("googletest", "cpp", `#include\s+["<]gtest`, `\bTEST\(`, `\bEXPECT_`),
	sig("rspec", "ruby", `require\s+['"]rspec['"]`, `\bdescribe\s+`, `\bexpect\(`),
}

// configIndicators maps file base names to the framework they imply.
var configIndicators = map[string]Framework{
	"pytest.ini":     {"pytest", "python"},
	"conftest.py":    {"pytest", "python"},
	"jest.config.js": {"jest", "javascript"},
	"jest.config.ts": {"jest", "javascript"},
	".mocharc.js":    {"mocha", "javascript"},
	".mocharc.json":  {"mocha", "javascript"},
	".mocharc.yml":   {"mocha", "javascript"},
	"karma.conf.js":  {"karma", "javascript"},
	"phpunit.xml":    {"phpunit", "php"},
	".rspec":         {"rspec", "ruby"},
	"testng.xml":     {"testng", "java"},
}

// Frameworks is the immutable result of Detect.
type Frameworks struct {
	detected []Framework
	files    map[string][]string // framework name -> test file paths
	unknown  []string
}

// Detect classifies each test file by the first matching signature and adds
// frameworks implied by config files among paths.
func Detect(tests []TestFile, paths []string) Frameworks {
	fw := Frameworks{files: make(map[string][]string)}
	seen := make(map[string]bool)
	add := func(f Framework) {
		if !seen[f.Name] {
			seen[f.Name] = true
			fw.detected = append(fw.detected, f)
		}
	}

	for _, t := range tests {
		s, ok := classify(t.Content)
		if !ok {
			fw.unknown = append(fw.unknown, t.Path)
			continue
		}
		add(s.Framework)
		fw.files[s.Name] = append(fw.files[s.Name], t.Path)
	}

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	for _, p := range sorted {
		if f, ok := configIndicators[path.Base(p)]; ok {
			add(f)
		}
	}
	return fw
}

func classify(content string) (signature, bool) {
	for _, s := range signatures {
		for _, re := range s.patterns {
			if re.MatchString(content) {
				return s, true
			}
		}
	}
	return signature{}, false
}

// All returns the detected frameworks in detection order.
func (f Frameworks) All() []Framework {
	return append([]Framework(nil), f.detected...)
}

// Names returns the detected framework names in detection order.
func (f Frameworks) Names() []string {
	out := make([]string, len(f.detected))
	for i, d := range f.detected {
		out[i] = d.Name
	}
	return out
}

// Has reports whether name was detected.
func (f Frameworks) Has(name string) bool {
	for _, d := range f.detected {
		if d.Name == name {
			return true
		}
	}
	return false
}

// Files returns the test files classified under name.
func (f Frameworks) Files(name string) []string {
	return append([]string(nil), f.files[name]...)
}

// Counts returns the number of test files per framework. Unclassified files
// are counted under "unknown"; empty entries are omitted.
func (f Frameworks) Counts() map[string]int {
	out := make(map[string]int, len(f.files)+1)
	for name, files := range f.files {
		out[name] = len(files)
	}
	if len(f.unknown) > 0 {
		out["unknown"] = len(f.unknown)
	}
	return out
}

// Preferred returns the framework to generate tests with for language: the
// detected framework of that language with the most test files, earliest
// detected on a tie. It returns "" when none was detected.
func (f Frameworks) Preferred(language string) string {
	if language == "typescript" {
		language = "javascript"
	}
	best, bestFiles := "", -1
	for _, d := range f.detected {
		if d.Language != language {
			continue
		}
		if n := len(f.files[d.Name]); n > bestFiles {
			best, bestFiles = d.Name, n
		}
	}
	return best
}
