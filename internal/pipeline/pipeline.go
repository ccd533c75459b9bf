// Package pipeline runs a testgap pass over one repository: scan, index,
// rank coverage gaps, then synthesize and validate a test per target.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/testgap/internal/coverage"
	"github.com/dshills/testgap/internal/detect"
	"github.com/dshills/testgap/internal/entity"
	"github.com/dshills/testgap/internal/index"
	"github.com/dshills/testgap/internal/llm"
	"github.com/dshills/testgap/internal/profile"
	"github.com/dshills/testgap/internal/scan"
	"github.com/dshills/testgap/internal/schema"
	"github.com/dshills/testgap/internal/synth"
	"github.com/dshills/testgap/internal/templates"
	"github.com/dshills/testgap/internal/validate"
	"github.com/dshills/testgap/internal/verdict"
)

// Version is stamped into every report.
const Version = "0.1.0"

// DefaultReports are tried in order, relative to the root, when no coverage
// report is configured.
var DefaultReports = []string{"coverage.json", "cover.out", "coverage.out"}

// Options configures one run.
type Options struct {
	Root           string
	CoverageReport string // relative to Root unless absolute; empty tries DefaultReports
	ModulePath     string // Go module path; read from go.mod when empty
	Framework      string // forces a framework for every language
	Threshold      float64
	Limit          int // prioritized files to process; 0 = all
	Concurrency    int
	Workers        int // extraction workers; 0 = GOMAXPROCS
	MaxFileSize    int64
	Ignore         []string
	NoGitignore    bool
	SkipPrivate    bool
	RemoteReview   bool
	Profile        string

	// AnalyzeOnly stops after ranking; no tests are generated.
	AnalyzeOnly bool
}

// Pipeline holds the collaborators shared by every run. Client may be nil,
// in which case synthesis uses fallbacks and validation is local only.
type Pipeline struct {
	Registry *templates.Registry
	Client   *llm.Client
	Meta     schema.Meta
	Logger   *zap.Logger
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Run analyzes opts.Root and, unless opts.AnalyzeOnly, generates tests for
// the prioritized files. Errors are returned only for unusable input; a
// cancelled context during generation yields a partial report with
// Summary.Cancelled set.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*schema.Report, error) {
	log := p.logger()
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("pipeline: resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pipeline: %s is not a directory", root)
	}
	prof, err := profile.Load(orDefault(opts.Profile, profile.Default))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	registry := p.Registry
	if registry == nil {
		registry = templates.Default()
	}

	res, err := scan.Scan(root, scan.Options{Ignore: opts.Ignore, NoGitignore: opts.NoGitignore})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	log.Info("scanned repository",
		zap.String("root", root),
		zap.Int("source", len(res.Source)),
		zap.Int("tests", len(res.Tests)))

	frameworks := detect.Detect(readTests(res.Tests, log), append(scan.Paths(res.Tests), res.Other...))

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = scan.DefaultMaxFileSize
	}
	idx, err := index.Build(ctx, res.Source, index.Options{Workers: opts.Workers, MaxFileSize: maxSize, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	reportPath := resolveReport(root, opts.CoverageReport)
	var covProblem string
	cov, err := coverage.Load(reportPath, root)
	if err != nil {
		log.Warn("unreadable coverage report; every source file is treated as uncovered",
			zap.String("report", reportPath), zap.Error(err))
		covProblem = err.Error()
		cov = coverage.NewReport("")
	} else if cov.Len() == 0 {
		log.Warn("no coverage data; every source file is treated as uncovered", zap.String("report", reportPath))
	}

	sourcePaths, testPaths := scan.Paths(res.Source), scan.Paths(res.Tests)
	priorities := coverage.Rank(cov, sourcePaths, testPaths, opts.Threshold)
	if opts.Limit > 0 && len(priorities) > opts.Limit {
		priorities = priorities[:opts.Limit]
	}

	report := &schema.Report{
		Tool:      "testgap",
		Version:   Version,
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Input: schema.Input{
			Root:         root,
			CoverageFile: relOrEmpty(root, reportPath, cov.Len() > 0),
			Framework:    opts.Framework,
			Profile:      prof.Name,
			Threshold:    opts.Threshold,
			Limit:        opts.Limit,
			RemoteReview: opts.RemoteReview,
		},
		Analysis: analysis(res, frameworks, idx, cov, priorities, testPaths),
		Meta:     p.Meta,
	}
	if covProblem != "" {
		report.Analysis.Warnings = append(report.Analysis.Warnings, covProblem)
	}
	report.Summary.OverallCoverage = report.Analysis.OverallCoverage
	if opts.AnalyzeOnly {
		verdict.Finalize(&report.Summary)
		return report, nil
	}

	modulePath := opts.ModulePath
	if modulePath == "" {
		modulePath = coverage.ModulePath(root)
	}
	client := p.Client
	if client != nil {
		client = client.WithTemperature(prof.Temperature)
	}
	s := &synth.Synthesizer{
		Registry:   registry,
		Client:     client,
		Profile:    prof,
		Index:      idx,
		ModulePath: modulePath,
		Logger:     log,
	}
	v := &validate.Validator{Logger: log}
	if opts.RemoteReview {
		v.Client = p.Client
	}

	targets := selectTargets(idx, priorities, opts.SkipPrivate)
	tests, cancelled := p.generate(ctx, targets, func(e entity.Entity) string {
		return chooseFramework(opts.Framework, e.Declaration().Language, frameworks, registry)
	}, s, v, opts.Concurrency)

	report.Tests = tests
	report.Summary = schema.Summarize(tests)
	report.Summary.OverallCoverage = report.Analysis.OverallCoverage
	report.Summary.Cancelled = cancelled
	verdict.Finalize(&report.Summary)
	log.Info("generation finished",
		zap.Int("generated", report.Summary.Generated),
		zap.Int("accepted", report.Summary.Accepted),
		zap.Int("degraded", report.Summary.Degraded),
		zap.Bool("cancelled", cancelled))
	return report, nil
}

// generate synthesizes and validates each target on a bounded pool. Results
// keep target order; units not started before cancellation are dropped.
func (p *Pipeline) generate(
	ctx context.Context,
	targets []entity.Entity,
	framework func(entity.Entity) string,
	s *synth.Synthesizer,
	v *validate.Validator,
	concurrency int,
) ([]schema.GeneratedTest, bool) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]*schema.GeneratedTest, len(targets))
	eg := new(errgroup.Group)
	eg.SetLimit(concurrency)
	cancelled := false
	for i, e := range targets {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			gt := s.Synthesize(ctx, e, framework(e))
			gt.Validation = v.Validate(ctx, gt.Rendered, e.Declaration().Text, gt.Language, gt.Framework)
			results[i] = &gt
			return nil
		})
	}
	_ = eg.Wait()

	out := make([]schema.GeneratedTest, 0, len(targets))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) < len(targets) {
		cancelled = true
		p.logger().Warn("run cancelled; report is partial",
			zap.Int("completed", len(out)), zap.Int("targets", len(targets)))
	}
	return out, cancelled
}

// selectTargets returns the entities of each prioritized file in priority
// order then source order.
func selectTargets(idx *index.Index, priorities coverage.PriorityList, skipPrivate bool) []entity.Entity {
	var out []entity.Entity
	for _, path := range priorities.Paths() {
		for _, e := range idx.InFile(path) {
			if skipPrivate && private(e) {
				continue
			}
			out = append(out, e)
		}
	}
	return out
}

// private reports whether e is a leading-underscore Python name or an
// unexported Go name.
func private(e entity.Entity) bool {
	d := e.Declaration()
	if d.Name == "" {
		return false
	}
	switch d.Language {
	case "python":
		return strings.HasPrefix(d.Name, "_")
	case "go":
		r := []rune(d.Name)
		return !unicode.IsUpper(r[0])
	default:
		return false
	}
}

// chooseFramework picks the forced framework, else the detected framework
// when templates exist for it, else the language default.
func chooseFramework(forced, language string, detected detect.Frameworks, registry *templates.Registry) string {
	if forced != "" {
		return forced
	}
	if pref := detected.Preferred(language); pref != "" {
		for _, fw := range registry.Frameworks(language) {
			if fw == pref {
				return pref
			}
		}
	}
	return templates.DefaultFramework(language)
}

func analysis(
	res scan.Result,
	frameworks detect.Frameworks,
	idx *index.Index,
	cov *coverage.Report,
	priorities coverage.PriorityList,
	testPaths []string,
) schema.Analysis {
	a := schema.Analysis{
		SourceFiles:     len(res.Source),
		TestFiles:       len(res.Tests),
		Languages:       make(map[string]int),
		Frameworks:      frameworks.Names(),
		FrameworkFiles:  frameworks.Counts(),
		CoverageFormat:  cov.Format,
		OverallCoverage: coverage.Overall(cov, testPaths) / 100,
		Entities:        idx.Len(),
		Priorities:      make([]schema.Priority, 0, len(priorities)),
	}
	if a.SourceFiles > 0 {
		a.TestToSourceRatio = float64(a.TestFiles) / float64(a.SourceFiles)
	}
	for _, f := range res.Source {
		a.Languages[f.Language]++
	}
	for _, p := range priorities {
		a.Priorities = append(a.Priorities, schema.Priority{Path: p.Path, Ratio: p.Ratio, Reported: p.Reported})
	}
	for _, w := range idx.Warnings() {
		a.Warnings = append(a.Warnings, w.String())
	}
	for _, s := range idx.Skipped() {
		a.Warnings = append(a.Warnings, "skipped "+s)
	}
	return a
}

// readTests loads test file contents for framework detection. Unreadable
// files are logged and classified by path only.
func readTests(files []scan.File, log *zap.Logger) []detect.TestFile {
	out := make([]detect.TestFile, 0, len(files))
	for _, f := range files {
		if f.Oversized(scan.DefaultMaxFileSize) {
			continue
		}
		b, err := os.ReadFile(f.Abs)
		if err != nil {
			log.Warn("cannot read test file", zap.String("file", f.Path), zap.Error(err))
			continue
		}
		out = append(out, detect.TestFile{Path: f.Path, Content: string(b)})
	}
	return out
}

func resolveReport(root, configured string) string {
	if configured != "" {
		if filepath.IsAbs(configured) {
			return configured
		}
		return filepath.Join(root, configured)
	}
	for _, name := range DefaultReports {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(root, DefaultReports[0])
}

func relOrEmpty(root, path string, found bool) string {
	if !found {
		return ""
	}
	if rel, err := filepath.Rel(root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
