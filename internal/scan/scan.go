// Package scan walks a repository and partitions its files into source files
// and test files. Language is classified by extension; test files are
// recognised by directory name or file-name indicators.
package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// File describes a single file found during the walk.
type File struct {
	Path     string // relative to the root, forward slashes
	Abs      string
	Language string
	Size     int64
	Test     bool
}

// Oversized reports whether the file exceeds limit bytes. A zero limit
// means DefaultMaxFileSize.
func (f File) Oversized(limit int64) bool {
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	return f.Size > limit
}

// Result is the partitioned file list of one repository.
type Result struct {
	Root   string
	Source []File
	Tests  []File
	// Other lists every non-code file path (relative). Framework detection
	// looks here for config indicators such as pytest.ini.
	Other []string
}

// Paths returns the relative paths of files, preserving order.
func Paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

// Options configures a Scan.
type Options struct {
	// Ignore supplements the default ignore list; entries are matched
	// against directory base names.
	Ignore []string
	// NoGitignore disables .gitignore matching at the root.
	NoGitignore bool
	// Languages restricts the code files returned. Empty means all.
	Languages []string
}

// DefaultMaxFileSize is the largest file the extractor will read.
const DefaultMaxFileSize = 1 << 20 // 1 MB

// defaultIgnore is the default set of directory names to skip.
var defaultIgnore = map[string]bool{
	".git":          true,
	".hg":           true,
	".svn":          true,
	"vendor":        true,
	"node_modules":  true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	".tox":          true,
	".mypy_cache":   true,
	".pytest_cache": true,
	"dist":          true,
	"build":         true,
	"testdata":      true,
}

// testDirs are directory names whose contents are always test files.
var testDirs = map[string]bool{
	"test":    true,
	"tests":   true,
	"spec":    true,
	"specs":   true,
	"testing": true,
}

// testIndicators are file-name substrings that mark a test file.
var testIndicators = []string{"test_", "_test", ".test.", "spec", "Test", "Spec"}

// ClassifyLanguage returns a language label for a file extension, or ""
// when the extension is not a supported code language.
func ClassifyLanguage(ext string) string {
	switch strings.ToLower(ext) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx", ".mjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	default:
		return ""
	}
}

// IsTestPath reports whether rel (slash separated) is a test file by the
// directory or file-name heuristic.
func IsTestPath(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if testDirs[strings.ToLower(dir)] {
			return true
		}
	}
	base := parts[len(parts)-1]
	for _, ind := range testIndicators {
		if strings.Contains(base, ind) {
			return true
		}
	}
	return false
}

// Scan walks root and partitions the files it finds.
func Scan(root string, opts Options) (Result, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Result{}, fmt.Errorf("scan: resolve %s: %w", root, err)
	}

	extraIgnore := make(map[string]bool, len(opts.Ignore))
	for _, p := range opts.Ignore {
		extraIgnore[p] = true
	}
	langs := make(map[string]bool, len(opts.Languages))
	for _, l := range opts.Languages {
		langs[strings.ToLower(l)] = true
	}

	var gi *ignore.GitIgnore
	if !opts.NoGitignore {
		gi = loadGitignore(abs)
	}

	res := Result{Root: abs}

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == abs {
			return nil
		}
		rel, relErr := filepath.Rel(abs, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if defaultIgnore[d.Name()] || extraIgnore[d.Name()] {
				return fs.SkipDir
			}
			if gi != nil && gi.MatchesPath(rel+"/") {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		lang := ClassifyLanguage(filepath.Ext(d.Name()))
		if lang == "" || (len(langs) > 0 && !langs[lang]) {
			res.Other = append(res.Other, rel)
			return nil
		}

		var size int64
		if info, infoErr := d.Info(); infoErr == nil {
			size = info.Size()
		}
		f := File{Path: rel, Abs: path, Language: lang, Size: size, Test: IsTestPath(rel)}
		if f.Test {
			res.Tests = append(res.Tests, f)
		} else {
			res.Source = append(res.Source, f)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("scan: walk %s: %w", root, err)
	}

	byPath := func(files []File) {
		sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	}
	byPath(res.Source)
	byPath(res.Tests)
	sort.Strings(res.Other)
	return res, nil
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
