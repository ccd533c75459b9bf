package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/testgap/internal/config"
	"github.com/dshills/testgap/internal/pipeline"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Set by the root command before any subcommand runs.
	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "testgap:", err)
	}
	stop()
	os.Exit(exitCode(err))
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "testgap",
		Short:         "Find untested code and synthesize tests for it",
		Version:       pipeline.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = filepath.Join(rootArg(args), config.DefaultPath)
			}
			var err error
			cfg, err = config.Load(path)
			if err != nil {
				return &exitError{code: exitCodeBadInput, err: err}
			}
			logger, err = cfg.Logging.NewLogger(verbose)
			if err != nil {
				return &exitError{code: exitCodeBadInput, err: err}
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <root>/"+config.DefaultPath+")")

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newInitCmd())
	return root
}

func rootArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// sharedFlags are the flags common to analyze and generate. Only flags the
// user set override the config file.
type sharedFlags struct {
	run       runFlags
	coverage  string
	threshold float64
	limit     int
	ignore    []string
	format    string
}

func (s *sharedFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&s.coverage, "coverage", "", "Coverage report (coverage.py JSON or Go profile), relative to root")
	fs.Float64Var(&s.threshold, "threshold", 0, "Files below this coverage ratio are gaps (0-1)")
	fs.IntVar(&s.limit, "limit", 0, "Process at most this many prioritized files (0 = all)")
	fs.StringSliceVar(&s.ignore, "ignore", nil, "Additional directory names to skip")
	fs.StringVarP(&s.format, "format", "f", "", "Output format: json, markdown, terminal")
	fs.StringVarP(&s.run.out, "out", "o", "", "Write the report to this file instead of stdout")
	fs.BoolVar(&s.run.noHistory, "no-history", false, "Do not record the run in the history database")
	fs.StringVar(&s.run.style, "style", "", "Terminal style (dark, light, notty); default picks from the terminal")
	fs.IntVar(&s.run.width, "width", 100, "Terminal word-wrap width")
}

func (s *sharedFlags) apply(cmd *cobra.Command, c *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("coverage") {
		c.Coverage.Report = s.coverage
	}
	if fs.Changed("threshold") {
		c.Generation.Threshold = s.threshold
	}
	if fs.Changed("limit") {
		c.Generation.Limit = s.limit
	}
	if fs.Changed("ignore") {
		c.Scan.Ignore = append(c.Scan.Ignore, s.ignore...)
	}
	if fs.Changed("format") {
		c.Output.Format = s.format
	}
}

func newAnalyzeCmd() *cobra.Command {
	var s sharedFlags
	cmd := &cobra.Command{
		Use:   "analyze [root]",
		Short: "Report coverage gaps and detected test frameworks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s.apply(cmd, cfg)
			s.run.root = rootArg(args)
			s.run.analyzeOnly = true
			s.run.offline = true
			return run(cmd.Context(), cfg, s.run, cmd.OutOrStdout(), logger)
		},
	}
	s.register(cmd)
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		s              sharedFlags
		framework      string
		profileName    string
		provider       string
		model          string
		concurrency    int
		outDir         string
		failOn         string
		remoteReview   bool
		includePrivate bool
	)
	cmd := &cobra.Command{
		Use:   "generate [root]",
		Short: "Synthesize and validate tests for the highest-priority gaps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s.apply(cmd, cfg)
			fs := cmd.Flags()
			if fs.Changed("framework") {
				cfg.Generation.Framework = framework
			}
			if fs.Changed("profile") {
				cfg.Generation.Profile = profileName
			}
			if fs.Changed("provider") {
				cfg.LLM.Provider = provider
			}
			if fs.Changed("model") {
				cfg.LLM.Model = model
			}
			if fs.Changed("concurrency") {
				cfg.Generation.Concurrency = concurrency
			}
			if fs.Changed("write") {
				cfg.Output.Dir = outDir
			}
			if fs.Changed("fail-on") {
				cfg.Generation.FailOn = failOn
			}
			if fs.Changed("remote-review") {
				cfg.Generation.RemoteReview = remoteReview
			}
			if fs.Changed("include-private") {
				cfg.Generation.SkipPrivate = !includePrivate
			}
			s.run.root = rootArg(args)
			return run(cmd.Context(), cfg, s.run, cmd.OutOrStdout(), logger)
		},
	}
	s.register(cmd)
	fs := cmd.Flags()
	fs.StringVar(&framework, "framework", "", "Test framework to generate for (default: detected, then language default)")
	fs.StringVarP(&profileName, "profile", "p", "", "Synthesis profile")
	fs.StringVar(&provider, "provider", "", "Content provider: anthropic, openai, google, offline")
	fs.StringVar(&model, "model", "", "Provider model")
	fs.IntVar(&concurrency, "concurrency", 0, "Targets synthesized in parallel")
	fs.StringVarP(&outDir, "write", "w", "", "Write generated tests under this directory (relative to root)")
	fs.StringVar(&failOn, "fail-on", "", "Exit 2 when the verdict is at least this severe (PARTIAL, DEGRADED, FAILED)")
	fs.BoolVar(&remoteReview, "remote-review", false, "Ask the provider to critique locally accepted tests")
	fs.BoolVar(&includePrivate, "include-private", false, "Also generate tests for private and unexported targets")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var h historyFlags
	cmd := &cobra.Command{
		Use:   "history [root]",
		Short: "List recorded runs, show one run, or trace one target",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h.root = rootArg(args)
			if h.db == "" {
				h.db = cfg.Output.History
			}
			return runHistory(cmd.Context(), h, cmd.OutOrStdout())
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&h.db, "db", "", "History database (default from config, relative to root)")
	fs.IntVarP(&h.limit, "limit", "n", 20, "Number of runs to list (0 = all)")
	fs.StringVar(&h.runID, "run", "", "Print the stored report for this run ID")
	fs.StringVar(&h.target, "target", "", "Show recorded outcomes for one qualified name")
	fs.StringVarP(&h.format, "format", "f", "markdown", "Report format for --run: json, markdown")
	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [root]",
		Short: "Write a default " + config.DefaultPath,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = filepath.Join(rootArg(args), config.DefaultPath)
			}
			return runInit(path, force, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func exitCode(err error) int {
	if err == nil {
		return exitCodeOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitCodeInternal
}
