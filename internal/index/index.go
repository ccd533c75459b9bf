// Package index aggregates per-file extraction results into a
// repository-wide lookup keyed by qualified name. An Index is built once and
// is read-only afterwards, so it may be shared across goroutines freely.
package index

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/testgap/internal/entity"
	"github.com/dshills/testgap/internal/extract"
	"github.com/dshills/testgap/internal/scan"
)

// Index maps qualified names to entities.
type Index struct {
	entities map[string]entity.Entity
	byFile   map[string][]entity.Entity
	files    []string
	warnings []extract.Warning
	skipped  []string
}

// Options configures Build.
type Options struct {
	Workers     int   // extraction parallelism; 0 means GOMAXPROCS
	MaxFileSize int64 // files larger than this are skipped; 0 means scan.DefaultMaxFileSize
	Logger      *zap.Logger
}

// Build extracts every file and indexes the results. Files are extracted
// concurrently; results are merged in input order so the index is
// deterministic. Build returns an error only when ctx is cancelled.
func Build(ctx context.Context, files []scan.File, opts Options) (*Index, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]extract.Result, len(files))
	skipped := make([]bool, len(files))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, f := range files {
		if !extract.Supported(f.Language) {
			skipped[i] = true
			continue
		}
		if f.Oversized(opts.MaxFileSize) {
			log.Warn("skipping oversized file", zap.String("file", f.Path), zap.Int64("size", f.Size))
			skipped[i] = true
			continue
		}
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i] = extract.File(egCtx, f.Abs, f.Path, f.Language)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("index: build: %w", err)
	}

	idx := &Index{
		entities: make(map[string]entity.Entity),
		byFile:   make(map[string][]entity.Entity),
	}
	for i, f := range files {
		if skipped[i] {
			idx.skipped = append(idx.skipped, f.Path)
			continue
		}
		r := results[i]
		for _, w := range r.Warnings {
			log.Warn("extraction warning", zap.String("file", w.File), zap.Int("line", w.Line), zap.String("detail", w.Message))
		}
		idx.warnings = append(idx.warnings, r.Warnings...)
		idx.files = append(idx.files, f.Path)
		idx.add(f.Path, r)
	}
	idx.linkPackageMethods()

	log.Debug("index built",
		zap.Int("files", len(idx.files)),
		zap.Int("entities", len(idx.entities)),
		zap.Int("warnings", len(idx.warnings)))
	return idx, nil
}

// FromResults builds an index from already-extracted results keyed by file.
// It is used when extraction happened elsewhere, for example in tests.
func FromResults(results map[string]extract.Result) *Index {
	idx := &Index{
		entities: make(map[string]entity.Entity),
		byFile:   make(map[string][]entity.Entity),
	}
	paths := make([]string, 0, len(results))
	for p := range results {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		idx.files = append(idx.files, p)
		idx.warnings = append(idx.warnings, results[p].Warnings...)
		idx.add(p, results[p])
	}
	idx.linkPackageMethods()
	return idx
}

func (idx *Index) add(file string, r extract.Result) {
	for _, e := range r.Entities() {
		qn := e.QualifiedName()
		if _, dup := idx.entities[qn]; dup {
			// Redefinition in the same file: the first declaration wins.
			continue
		}
		idx.entities[qn] = e
		idx.byFile[file] = append(idx.byFile[file], e)
	}
}

// linkPackageMethods attaches Go methods declared apart from their receiver
// struct to the struct of the same name in the same directory.
func (idx *Index) linkPackageMethods() {
	classes := make(map[string]*entity.Class) // dir + "/" + name
	for _, e := range idx.entities {
		if c, ok := e.(*entity.Class); ok && c.Language == "go" {
			classes[path.Dir(c.File)+"/"+c.Name] = c
		}
	}
	for _, file := range idx.files {
		for _, e := range idx.byFile[file] {
			fn, ok := e.(*entity.Function)
			if !ok || !fn.IsMethod || fn.Language != "go" || fn.Owner != fn.File+"::"+fn.OwnerName {
				continue
			}
			c, ok := classes[path.Dir(fn.File)+"/"+fn.OwnerName]
			if !ok || c.File == fn.File {
				continue
			}
			c.Attach(fn)
		}
	}
}

// Get returns the entity stored under qn.
func (idx *Index) Get(qn string) (entity.Entity, bool) {
	e, ok := idx.entities[qn]
	return e, ok
}

// Len returns the number of indexed entities.
func (idx *Index) Len() int { return len(idx.entities) }

// Keys returns every qualified name in sorted order.
func (idx *Index) Keys() []string {
	keys := make([]string, 0, len(idx.entities))
	for k := range idx.entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Files returns the extracted file paths in build order.
func (idx *Index) Files() []string { return idx.files }

// InFile returns the entities declared in file, in source order.
func (idx *Index) InFile(file string) []entity.Entity { return idx.byFile[file] }

// Warnings returns every contained extraction problem.
func (idx *Index) Warnings() []extract.Warning { return idx.warnings }

// Skipped returns files that were not extracted (unsupported or oversized).
func (idx *Index) Skipped() []string { return idx.skipped }

// Functions returns every Function (including methods) sorted by key.
func (idx *Index) Functions() []*entity.Function {
	var out []*entity.Function
	for _, k := range idx.Keys() {
		if f, ok := idx.entities[k].(*entity.Function); ok {
			out = append(out, f)
		}
	}
	return out
}

// Classes returns every Class sorted by key.
func (idx *Index) Classes() []*entity.Class {
	var out []*entity.Class
	for _, k := range idx.Keys() {
		if c, ok := idx.entities[k].(*entity.Class); ok {
			out = append(out, c)
		}
	}
	return out
}

// Dependencies returns the sorted short names of other indexed functions and
// classes that appear as whole-word tokens in e's raw text. This is textual
// containment, not call resolution: unrelated identifiers sharing a name
// over-match, aliases and dynamic dispatch under-match.
func (idx *Index) Dependencies(e entity.Entity) []string {
	d := e.Declaration()
	exclude := map[string]bool{e.QualifiedName(): true}
	if c, ok := e.(*entity.Class); ok {
		for _, m := range c.Methods {
			exclude[m.QualifiedName()] = true
		}
	}

	tokens := make(map[string]bool)
	for _, t := range identRe.FindAllString(d.Text, -1) {
		tokens[t] = true
	}

	seen := make(map[string]bool)
	var out []string
	for qn, other := range idx.entities {
		if exclude[qn] {
			continue
		}
		name := other.Declaration().Name
		if seen[name] || !tokens[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
