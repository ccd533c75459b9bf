package coverage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/tools/cover"
)

// Report formats.
const (
	FormatCoveragePy = "coverage.py"
	FormatGoProfile  = "go"
)

// Load reads a coverage report, detecting its format. A missing file yields
// an empty report and no error. root is the repository root used to make
// report paths relative.
func Load(path, root string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewReport(""), nil
		}
		return nil, fmt.Errorf("coverage: read %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.HasPrefix(trimmed, []byte("{")):
		return parseCoveragePy(data, root)
	case bytes.HasPrefix(trimmed, []byte("mode:")):
		return LoadGoProfile(path, ModulePath(root))
	default:
		return nil, fmt.Errorf("coverage: %s: unrecognised report format", path)
	}
}

// coveragePyFile is one entry of coverage.py's JSON "files" object.
type coveragePyFile struct {
	Summary struct {
		NumStatements int `json:"num_statements"`
		MissingLines  int `json:"missing_lines"`
	} `json:"summary"`
	MissingLines []int `json:"missing_lines"`
}

// LoadCoveragePy reads the JSON written by `coverage json`.
func LoadCoveragePy(path, root string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coverage: read %s: %w", path, err)
	}
	return parseCoveragePy(data, root)
}

func parseCoveragePy(data []byte, root string) (*Report, error) {
	var doc struct {
		Files json.RawMessage `json:"files"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("coverage: parse coverage.py json: %w", err)
	}
	rep := NewReport(FormatCoveragePy)
	if len(doc.Files) == 0 {
		return rep, nil
	}

	// Decode token by token so report order survives.
	dec := json.NewDecoder(bytes.NewReader(doc.Files))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("coverage: parse coverage.py json: files is not an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("coverage: parse coverage.py json: %w", err)
		}
		name, _ := tok.(string)
		var f coveragePyFile
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("coverage: parse coverage.py json: %s: %w", name, err)
		}
		missing := f.Summary.MissingLines
		if missing == 0 {
			missing = len(f.MissingLines)
		}
		rep.Add(relPath(name, root), Record{
			Statements:   f.Summary.NumStatements,
			Missing:      missing,
			MissingLines: uniqueSorted(f.MissingLines),
		})
	}
	return rep, nil
}

// LoadGoProfile reads a `go test -coverprofile` file. File names are made
// relative by stripping modulePath.
func LoadGoProfile(path, modulePath string) (*Report, error) {
	profiles, err := cover.ParseProfiles(path)
	if err != nil {
		return nil, fmt.Errorf("coverage: parse go profile: %w", err)
	}
	rep := NewReport(FormatGoProfile)
	for _, p := range profiles {
		var rec Record
		var lines []int
		for _, b := range p.Blocks {
			rec.Statements += b.NumStmt
			if b.Count > 0 {
				continue
			}
			rec.Missing += b.NumStmt
			for l := b.StartLine; l <= b.EndLine; l++ {
				lines = append(lines, l)
			}
		}
		rec.MissingLines = uniqueSorted(lines)
		name := p.FileName
		if modulePath != "" {
			name = strings.TrimPrefix(name, strings.TrimSuffix(modulePath, "/")+"/")
		}
		rep.Add(name, rec)
	}
	return rep, nil
}

var moduleRe = regexp.MustCompile(`^module\s+"?([^"\s]+)"?`)

// ModulePath returns the module path declared in root/go.mod, or "".
func ModulePath(root string) string {
	f, err := os.Open(filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if m := moduleRe.FindStringSubmatch(strings.TrimSpace(sc.Text())); m != nil {
			return m[1]
		}
	}
	return ""
}

func relPath(name, root string) string {
	if root != "" && filepath.IsAbs(name) {
		if absRoot, err := filepath.Abs(root); err == nil {
			if rel, err := filepath.Rel(absRoot, name); err == nil && !strings.HasPrefix(rel, "..") {
				name = rel
			}
		}
	}
	return filepath.ToSlash(strings.TrimPrefix(name, "./"))
}

func uniqueSorted(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	out := append([]int(nil), in...)
	sort.Ints(out)
	j := 0
	for i := 1; i < len(out); i++ {
		if out[i] != out[j] {
			j++
			out[j] = out[i]
		}
	}
	return out[:j+1]
}
