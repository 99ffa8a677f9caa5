// Package main provides the linkcrawl CLI entrypoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lukemcguire/linkcrawl/config"
	"github.com/lukemcguire/linkcrawl/crawler"
	"github.com/lukemcguire/linkcrawl/result"
	"github.com/lukemcguire/linkcrawl/tui"
)

// Exit codes.
const (
	exitOK     = 0
	exitBroken = 1 // Broken links found or the run aborted
	exitUsage  = 2
)

// options are the CLI settings that are not part of config.Config.
type options struct {
	configFile string
	format     string
	output     string
	logFile    string
}

// internFlag collects repeated -intern values.
type internFlag struct {
	patterns *[]string
}

func (f internFlag) String() string {
	if f.patterns == nil {
		return ""
	}
	return strings.Join(*f.patterns, ",")
}

func (f internFlag) Set(v string) error {
	*f.patterns = append(*f.patterns, v)
	return nil
}

// newFlagSet binds every config field to a flag writing into cfg. Only
// flags given on the command line change cfg, so the set can be parsed over
// values loaded from a file.
func newFlagSet(cfg *config.Config, opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("linkcrawl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.IntVar(&cfg.RecursionLevel, "recursion-level", cfg.RecursionLevel, "maximum link depth below the root (-1 for unlimited)")
	fs.IntVar(&cfg.Threads, "threads", cfg.Threads, "number of concurrent workers")
	fs.Var(internFlag{&cfg.InternPatterns}, "intern", "scope pattern for recursion (repeatable; re:, host:, domain: or URL prefix)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request timeout")
	fs.StringVar(&cfg.Proxy, "proxy", cfg.Proxy, "proxy URL (default from environment)")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "user agent string")
	fs.Int64Var(&cfg.MaxBodySize, "max-body-size", cfg.MaxBodySize, "maximum bytes read from a response body")
	fs.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "requests per second (0 disables limiting)")
	fs.BoolVar(&cfg.AdaptiveRate, "adaptive-rate", cfg.AdaptiveRate, "adjust the rate limit from response times, within 5 to 100 requests per second")
	fs.DurationVar(&cfg.TargetRTT, "target-rtt", cfg.TargetRTT, "response time the adaptive rate limit aims for")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "number of retries for transient errors")
	fs.DurationVar(&cfg.RetryBaseDelay, "retry-delay", cfg.RetryBaseDelay, "base delay between retries")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "maximum delay between retries")
	fs.BoolVar(&cfg.RespectRobots, "robots", cfg.RespectRobots, "honour robots.txt")
	fs.BoolVar(&cfg.CheckMX, "check-mx", cfg.CheckMX, "look up mail hosts for mailto: links")
	fs.StringVar(&cfg.VisitedStore, "visited-store", cfg.VisitedStore, "visited set backend (memory or bloom)")
	fs.StringVar(&cfg.VisitedFile, "visited-file", cfg.VisitedFile, "bloom filter file kept across runs")
	fs.UintVar(&cfg.VisitedCapacity, "visited-capacity", cfg.VisitedCapacity, "expected number of URLs for the bloom filter")
	fs.Int64Var(&cfg.MemoryLimitMB, "memory-limit", cfg.MemoryLimitMB, "soft memory limit in MB (0 disables throttling)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "log every result, not only failures")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging (runs a single worker)")

	fs.StringVar(&opts.configFile, "config", opts.configFile, "JSON configuration file")
	fs.StringVar(&opts.format, "format", opts.format, "output format: tui, text, json or csv")
	fs.StringVar(&opts.output, "o", opts.output, "write the report to this file instead of stdout (text report in tui mode)")
	fs.StringVar(&opts.logFile, "log-file", opts.logFile, "write logs to this file")
	return fs
}

// parseArgs builds the configuration: defaults, then the -config file,
// then explicit flags. It returns the root URL.
func parseArgs(args []string) (config.Config, options, string, error) {
	cfg := config.Default()
	opts := options{format: "tui"}
	fs := newFlagSet(&cfg, &opts)
	if err := fs.Parse(args); err != nil {
		return cfg, opts, "", err
	}

	if opts.configFile != "" {
		loaded, err := config.LoadFile(opts.configFile)
		if err != nil {
			return cfg, opts, "", err
		}
		cfg = loaded
		fs = newFlagSet(&cfg, &opts)
		if err := fs.Parse(args); err != nil {
			return cfg, opts, "", err
		}
	}

	if fs.NArg() != 1 {
		return cfg, opts, "", errors.New("expected exactly one root URL")
	}
	rootURL, err := rootArg(fs.Arg(0))
	if err != nil {
		return cfg, opts, "", err
	}
	switch opts.format {
	case "tui", "text", "json", "csv":
	default:
		return cfg, opts, "", fmt.Errorf("unknown format %q", opts.format)
	}
	// Debug traces from concurrent workers would interleave.
	if cfg.Debug {
		cfg.Threads = 1
	}
	return cfg, opts, rootURL, cfg.Validate()
}

// rootArg completes a root URL typed without a scheme: www.example.com is
// http, ftp.example.com is ftp.
func rootArg(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	lower := strings.ToLower(arg)
	switch {
	case arg == "":
		return "", errors.New("empty root URL")
	case strings.HasPrefix(lower, "www."):
		return "http://" + arg, nil
	case strings.HasPrefix(lower, "ftp."):
		return "ftp://" + arg, nil
	default:
		return arg, nil
	}
}

func usage(w io.Writer) {
	cfg := config.Default()
	opts := options{format: "tui"}
	fs := newFlagSet(&cfg, &opts)
	fs.SetOutput(w)
	_, _ = fmt.Fprintln(w, "Usage: linkcrawl [flags] <url>")
	_, _ = fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}

// newLogger builds the zap logger. The TUI owns the terminal, so it only
// logs when a log file is given.
func newLogger(cfg config.Config, opts options) (*zap.Logger, error) {
	if opts.format == "tui" && opts.logFile == "" {
		return zap.NewNop(), nil
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Encoding = "console"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stderr"}
	if opts.logFile != "" {
		zapCfg.OutputPaths = []string{opts.logFile}
	}
	if cfg.Debug {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zapCfg.Build()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, opts, rootURL, err := parseArgs(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			usage(os.Stdout)
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		usage(os.Stderr)
		return exitUsage
	}

	logger, err := newLogger(cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: create logger: %v\n", err)
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rep report
	if opts.format == "tui" {
		rep, err = runTUI(ctx, rootURL, cfg, logger)
	} else {
		rep, err = runPlain(ctx, rootURL, cfg, logger)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUsage
	}

	if opts.format != "tui" || opts.output != "" {
		if err := writeReport(opts, rep); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitUsage
		}
	}
	if rep.err != nil {
		logger.Error("run aborted", zap.Error(rep.err))
		if opts.format != "tui" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", rep.err)
		}
		return exitBroken
	}
	if rep.summary.Broken() > 0 {
		return exitBroken
	}
	return exitOK
}

// report is the outcome of one run as printed by the CLI.
type report struct {
	root    string
	results []result.CheckResult
	summary result.Summary
	err     error // Error the run aborted with
}

// runTUI runs the check behind the Bubble Tea UI.
func runTUI(ctx context.Context, rootURL string, cfg config.Config, logger *zap.Logger) (report, error) {
	sink := tui.NewSink(100)
	handle, err := crawler.Start(ctx, rootURL, cfg, result.Tee(sink, result.NewLogSink(logger, cfg.Verbose)),
		crawler.WithLogger(logger))
	if err != nil {
		return report{}, err
	}

	finalModel, err := tea.NewProgram(tui.NewModel(handle, sink)).Run()
	// A second q or ctrl+c leaves before the run has finished.
	handle.Cancel()
	summary, runErr := handle.Wait()
	if err != nil {
		return report{}, fmt.Errorf("run terminal UI: %w", err)
	}

	if model, ok := finalModel.(tui.Model); ok && model.Done() {
		return report{root: sink.Root(), results: model.Results(), summary: model.Summary(), err: model.Err()}, nil
	}
	return report{root: sink.Root(), results: sink.Results(), summary: summary, err: runErr}, nil
}

// runPlain runs the check logging to the configured logger.
func runPlain(ctx context.Context, rootURL string, cfg config.Config, logger *zap.Logger) (report, error) {
	collector := result.NewCollector()
	handle, err := crawler.Start(ctx, rootURL, cfg, result.Tee(collector, result.NewLogSink(logger, cfg.Verbose)),
		crawler.WithLogger(logger))
	if err != nil {
		return report{}, err
	}
	summary, runErr := handle.Wait()
	return report{root: collector.Root(), results: collector.Results(), summary: summary, err: runErr}, nil
}

func writeReport(opts options, rep report) (err error) {
	var w io.Writer = os.Stdout
	if opts.output != "" {
		f, createErr := os.Create(opts.output)
		if createErr != nil {
			return fmt.Errorf("create output file: %w", createErr)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close output file: %w", closeErr)
			}
		}()
		w = f
	}

	switch opts.format {
	case "json":
		return result.WriteJSON(w, rep.root, rep.results, rep.summary)
	case "csv":
		return result.WriteCSV(w, rep.results)
	default:
		result.PrintResults(w, rep.results, rep.summary)
		return nil
	}
}
