package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lukemcguire/linkguardian/config"
	"github.com/lukemcguire/linkguardian/crawler"
	"github.com/lukemcguire/linkguardian/metrics"
	"github.com/lukemcguire/linkguardian/result"
	"github.com/lukemcguire/linkguardian/scan"
	"github.com/lukemcguire/linkguardian/tui"
)

// errBrokenLinks is returned by a command whose scan found broken links.
var errBrokenLinks = errors.New("broken links found")

var errCancelled = errors.New("scan cancelled")

// cli holds the flag values and the effective configuration of one invocation.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	noTUI      bool
	noRobots   bool
	branches   []string
	flags      *config.Config

	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Scan
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	return newCLI(stdout, stderr).rootCmd()
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{stdout: stdout, stderr: stderr, flags: config.Default()}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "linkguardian",
		Short: "Find broken links on a website or in a GitHub README",
		Long: "linkguardian crawls a website (or reads a GitHub repository's README),\n" +
			"checks every link it finds and reports the broken ones.\n\n" +
			"Exit codes: 0 no broken links, 1 broken links found, 2 error.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "YAML config file")
	pf.IntVar(&c.flags.Concurrency, "concurrency", c.flags.Concurrency, "maximum concurrent link probes")
	pf.DurationVar(&c.flags.Timeout, "timeout", c.flags.Timeout, "timeout per link probe and page fetch")
	pf.IntVar(&c.flags.MaxRedirects, "max-redirects", c.flags.MaxRedirects, "redirects followed before giving up")
	pf.StringVar(&c.flags.UserAgent, "user-agent", c.flags.UserAgent, "User-Agent header")
	pf.StringVar(&c.flags.Format, "format", c.flags.Format, "output format: table, json or csv")
	pf.StringVar(&c.flags.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	pf.StringVar(&c.flags.LogLevel, "log-level", c.flags.LogLevel, "log level: debug, info, warn or error")
	pf.BoolVar(&c.noTUI, "no-tui", false, "disable the interactive terminal UI")

	root.AddCommand(c.siteCmd(), c.githubCmd())
	return root
}

func (c *cli) siteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site <url>",
		Short: "Crawl a website and check every link found",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.execute(cmd, args[0], result.ModeSite)
		},
	}
	f := cmd.Flags()
	f.IntVar(&c.flags.MaxDepth, "max-depth", c.flags.MaxDepth, "number of page levels to crawl")
	f.DurationVar(&c.flags.CrawlDelay, "crawl-delay", c.flags.CrawlDelay, "minimum delay between page fetches")
	f.BoolVar(&c.noRobots, "no-robots", false, "ignore robots.txt")
	f.IntVar(&c.flags.Retries, "retries", c.flags.Retries, "retries for transient page fetch failures")
	f.DurationVar(&c.flags.RetryDelay, "retry-delay", c.flags.RetryDelay, "base delay between page fetch retries")
	f.Int64Var(&c.flags.MemoryLimitMB, "memory-limit", 0, "soft memory limit in MB, 0 to disable")
	return cmd
}

func (c *cli) githubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "github <repo-url>",
		Short: "Check the links in a GitHub repository's README",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.execute(cmd, args[0], result.ModeRepository)
		},
	}
	cmd.Flags().StringSliceVar(&c.branches, "branch", nil, "branches searched for README.md, in order (default main, master)")
	return cmd
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then every flag set on the command line.
func (c *cli) loadConfig(cmd *cobra.Command) error {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	overrides := map[string]func(){
		"concurrency":   func() { cfg.Concurrency = c.flags.Concurrency },
		"timeout":       func() { cfg.Timeout = c.flags.Timeout },
		"max-redirects": func() { cfg.MaxRedirects = c.flags.MaxRedirects },
		"user-agent":    func() { cfg.UserAgent = c.flags.UserAgent },
		"format":        func() { cfg.Format = c.flags.Format },
		"metrics-file":  func() { cfg.MetricsFile = c.flags.MetricsFile },
		"log-level":     func() { cfg.LogLevel = c.flags.LogLevel },
		"max-depth":     func() { cfg.MaxDepth = c.flags.MaxDepth },
		"crawl-delay":   func() { cfg.CrawlDelay = c.flags.CrawlDelay },
		"no-robots":     func() { cfg.RespectRobots = !c.noRobots },
		"retries":       func() { cfg.Retries = c.flags.Retries },
		"retry-delay":   func() { cfg.RetryDelay = c.flags.RetryDelay },
		"memory-limit":  func() { cfg.MemoryLimitMB = c.flags.MemoryLimitMB },
	}
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *cli) execute(cmd *cobra.Command, target string, mode result.Mode) error {
	if err := c.loadConfig(cmd); err != nil {
		return err
	}

	useTUI := c.useTUI()
	c.logger = c.newLogger(useTUI)
	c.metrics = metrics.New()

	var (
		report *result.Report
		err    error
	)
	if useTUI {
		report, err = c.runTUI(cmd.Context(), target, mode)
	} else {
		report, err = c.scan(cmd.Context(), target, mode, nil)
	}
	if err != nil {
		return err
	}

	if c.cfg.MetricsFile != "" {
		if err := c.metrics.WriteTextfile(c.cfg.MetricsFile); err != nil {
			return err
		}
	}

	if !useTUI {
		if err := result.Write(c.stdout, report, result.Format(c.cfg.Format)); err != nil {
			return err
		}
	}

	if report.HasBrokenLinks() {
		return errBrokenLinks
	}
	return nil
}

func (c *cli) scan(ctx context.Context, target string, mode result.Mode, progress chan<- crawler.CrawlEvent) (*result.Report, error) {
	s := scan.New(c.cfg,
		scan.WithLogger(c.logger),
		scan.WithMetrics(c.metrics),
		scan.WithProgress(progress),
		scan.WithBranches(c.branches...),
	)
	if mode == result.ModeRepository {
		return s.Repository(ctx, target)
	}
	return s.Site(ctx, target)
}

func (c *cli) runTUI(ctx context.Context, target string, mode result.Mode) (*result.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.NewModel(ctx, cancel, func(ctx context.Context, progress chan<- crawler.CrawlEvent) (*result.Report, error) {
		return c.scan(ctx, target, mode, progress)
	})
	finalModel, err := tea.NewProgram(model, tea.WithOutput(c.stdout)).Run()
	if err != nil {
		return nil, fmt.Errorf("run terminal ui: %w", err)
	}

	final := finalModel.(tui.Model)
	if final.Cancelled() {
		return nil, errCancelled
	}
	if final.Err() != nil {
		return nil, final.Err()
	}
	return final.Report(), nil
}

// useTUI reports whether the interactive UI should render the scan.
func (c *cli) useTUI() bool {
	if c.noTUI || result.Format(c.cfg.Format) != result.FormatTable {
		return false
	}
	f, ok := c.stdout.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newLogger writes text logs to stderr. While the UI owns the terminal only
// errors are logged.
func (c *cli) newLogger(useTUI bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.cfg.LogLevel)); err != nil {
		level = slog.LevelWarn
	}
	if useTUI {
		level = max(level, slog.LevelError)
	}
	return slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))
}
