package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/testgap/internal/config"
	"github.com/dshills/testgap/internal/history"
	"github.com/dshills/testgap/internal/llm"
	"github.com/dshills/testgap/internal/pipeline"
	"github.com/dshills/testgap/internal/render"
	"github.com/dshills/testgap/internal/schema"
	"github.com/dshills/testgap/internal/templates"
	"github.com/dshills/testgap/internal/verdict"
)

// Exit codes.
const (
	exitCodeOK       = 0
	exitCodeInternal = 1
	exitCodeFailOn   = 2
	exitCodeBadInput = 3
)

// exitError carries a process exit code alongside the error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func badInput(format string, args ...any) error {
	return &exitError{code: exitCodeBadInput, err: fmt.Errorf(format, args...)}
}

// runFlags are the per-invocation settings not held in config.
type runFlags struct {
	root        string
	out         string // report destination; empty = stdout
	analyzeOnly bool
	offline     bool // never construct a provider
	noHistory   bool
	style       string
	width       int
}

// run executes one analyze or generate pass and writes the report.
func run(ctx context.Context, c *config.Config, f runFlags, stdout io.Writer, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := c.Validate(); err != nil {
		return &exitError{code: exitCodeBadInput, err: err}
	}
	info, err := os.Stat(f.root)
	if err != nil || !info.IsDir() {
		return badInput("root %q is not a directory", f.root)
	}

	client, meta, err := newClient(c, f.offline, log)
	if err != nil {
		return &exitError{code: exitCodeBadInput, err: err}
	}

	p := &pipeline.Pipeline{
		Registry: templates.Default(),
		Client:   client,
		Meta:     meta,
		Logger:   log,
	}
	report, err := p.Run(ctx, pipeline.Options{
		Root:           f.root,
		CoverageReport: c.Coverage.Report,
		ModulePath:     c.Coverage.ModulePath,
		Framework:      c.Generation.Framework,
		Threshold:      c.Generation.Threshold,
		Limit:          c.Generation.Limit,
		Concurrency:    c.Generation.Concurrency,
		Workers:        c.Scan.Workers,
		MaxFileSize:    c.Scan.MaxFileSize,
		Ignore:         c.Scan.Ignore,
		NoGitignore:    c.Scan.NoGitignore,
		SkipPrivate:    c.Generation.SkipPrivate,
		RemoteReview:   c.Generation.RemoteReview,
		Profile:        c.Generation.Profile,
		AnalyzeOnly:    f.analyzeOnly,
	})
	if err != nil {
		return &exitError{code: exitCodeInternal, err: err}
	}

	if !f.analyzeOnly && c.Output.Dir != "" {
		dir := underRoot(f.root, c.Output.Dir)
		written, err := render.WriteTests(dir, report.Tests)
		if err != nil {
			return &exitError{code: exitCodeInternal, err: err}
		}
		log.Info("wrote generated tests", zap.String("dir", dir), zap.Int("files", len(written)))
	}

	if !f.noHistory && c.Output.History != "" {
		record(ctx, underRoot(f.root, c.Output.History), report, log)
	}

	if err := writeReport(report, c.Output.Format, f, stdout); err != nil {
		return &exitError{code: exitCodeInternal, err: err}
	}

	if c.Generation.FailOn != "" {
		threshold, _ := verdict.ParseVerdict(c.Generation.FailOn)
		if verdict.ShouldFail(report.Summary.Verdict, threshold) {
			return &exitError{
				code: exitCodeFailOn,
				err:  fmt.Errorf("verdict %s meets fail-on threshold %s", report.Summary.Verdict, threshold),
			}
		}
	}
	return nil
}

// newClient builds the content-provider client. Offline runs get a nil
// client so synthesis takes its fallback paths without network calls.
func newClient(c *config.Config, offline bool, log *zap.Logger) (*llm.Client, schema.Meta, error) {
	meta := schema.Meta{Provider: "offline", Temperature: c.LLM.Temperature}
	name := strings.ToLower(c.LLM.Provider)
	if offline || name == "offline" || name == "none" {
		return nil, meta, nil
	}
	model := c.LLM.Model
	if model == "" {
		model = llm.DefaultModel(name)
	}
	provider, err := llm.NewProvider(name, model)
	if err != nil {
		return nil, meta, err
	}
	meta.Provider = name
	meta.Model = model
	return &llm.Client{
		Provider:    provider,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
		Timeout:     c.GetLLMTimeout(),
		Logger:      log,
	}, meta, nil
}

// record saves report to the history database. Failures are logged; history
// never fails a run.
func record(ctx context.Context, path string, report *schema.Report, log *zap.Logger) {
	store, err := history.Open(path)
	if err != nil {
		log.Warn("history unavailable", zap.String("path", path), zap.Error(err))
		return
	}
	defer store.Close()
	if err := store.Save(ctx, report); err != nil {
		log.Warn("history save failed", zap.String("run", report.RunID), zap.Error(err))
	}
}

func writeReport(report *schema.Report, format string, f runFlags, stdout io.Writer) error {
	var out []byte
	switch format {
	case "json":
		b, err := render.RenderJSON(report)
		if err != nil {
			return err
		}
		out = append(b, '\n')
	case "markdown":
		out = []byte(render.RenderMarkdown(report))
	default:
		style := f.style
		if f.out != "" && style == "" {
			style = "notty"
		}
		s, err := render.RenderTerminal(report, style, f.width)
		if err != nil {
			return err
		}
		out = []byte(s)
	}

	if f.out == "" {
		_, err := stdout.Write(out)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.out), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return os.WriteFile(f.out, out, 0o644)
}

func underRoot(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// historyFlags configure the history command.
type historyFlags struct {
	root   string
	db     string
	limit  int
	runID  string
	target string
	format string
}

func runHistory(ctx context.Context, h historyFlags, stdout io.Writer) error {
	if h.db == "" {
		h.db = history.DefaultPath
	}
	path := underRoot(h.root, h.db)
	if _, err := os.Stat(path); err != nil {
		return badInput("no history at %s", path)
	}
	store, err := history.Open(path)
	if err != nil {
		return &exitError{code: exitCodeInternal, err: err}
	}
	defer store.Close()

	switch {
	case h.runID != "":
		report, err := store.Get(ctx, h.runID)
		if errors.Is(err, history.ErrNotFound) {
			return &exitError{code: exitCodeBadInput, err: err}
		}
		if err != nil {
			return &exitError{code: exitCodeInternal, err: err}
		}
		if h.format == "json" {
			b, err := render.RenderJSON(report)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(stdout, "%s\n", b)
			return err
		}
		_, err = io.WriteString(stdout, render.RenderMarkdown(report))
		return err

	case h.target != "":
		runs, err := store.Target(ctx, h.target)
		if err != nil {
			return &exitError{code: exitCodeInternal, err: err}
		}
		if len(runs) == 0 {
			fmt.Fprintf(stdout, "no recorded tests for %s\n", h.target)
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tWHEN\tSTATE\tACCEPTED\tUNRESOLVED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
				r.RunID, r.CreatedAt.Local().Format(time.DateTime), r.State, yesNo(r.Accepted), r.Unresolved)
		}
		return tw.Flush()

	default:
		runs, err := store.List(ctx, h.limit)
		if err != nil {
			return &exitError{code: exitCodeInternal, err: err}
		}
		if len(runs) == 0 {
			fmt.Fprintln(stdout, "no recorded runs")
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tWHEN\tVERDICT\tSCORE\tCOVERAGE\tGENERATED\tACCEPTED\tDEGRADED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f%%\t%d\t%d\t%d\n",
				r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Verdict, r.Score,
				r.OverallCoverage*100, r.Generated, r.Accepted, r.Degraded)
		}
		return tw.Flush()
	}
}

// runInit writes the default configuration to path.
func runInit(path string, force bool, stdout io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		return badInput("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return &exitError{code: exitCodeInternal, err: err}
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
