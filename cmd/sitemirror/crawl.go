package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/frontier"
	applog "github.com/nao1215/sitemirror/internal/log"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/pathmap"
	"github.com/nao1215/sitemirror/internal/persist"
	"github.com/nao1215/sitemirror/internal/pipeline"
	"github.com/nao1215/sitemirror/internal/report"
)

// errInvalidHeader is returned for --header values without a colon.
var errInvalidHeader = errors.New("invalid header, expected \"Name: value\"")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>...",
		Short: "Mirror one or more web sites to disk",
		Long: `Crawl fetches every page reachable from the seed URLs and mirrors it to disk.

Each seed is an independent crawl with its own scope and save directory.
Links are followed when their host is in --allowed-domains (all hosts when
the list is empty) and the absolute URL matches --regex-allowed-urls from
its start. Every URL is fetched at most once per crawl.

Responses are written to <save-dir>/<url path>; directory-like URLs get an
index file named after the Content-Type ("index.html", "index.json").

Examples:
  # Mirror a site into ./docs.example.com
  sitemirror crawl https://docs.example.com/

  # Stay under /v2/ and allow the static host
  sitemirror crawl -a docs.example.com -a static.example.com \
    -r 'https://(docs|static)\.example\.com/v2/' https://docs.example.com/v2/

  # Only record the discovered URLs, do not write content
  sitemirror crawl --only-links --links-dir ./links https://example.com/

  # Two requests per host, half a second apart, through a SOCKS proxy
  sitemirror crawl -n 2 -D 500ms --proxy socks5://127.0.0.1:1080 https://example.com/

  # Crawl three sites concurrently and write a Markdown summary
  sitemirror crawl -b 3 -m -o report.md https://a.example https://b.example https://c.example

Configuration file (.sitemirror) example:
  sites:
    docs.example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
      depth: 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCrawlCmd,
	}

	// Scope flags
	cmd.Flags().StringSliceP("allowed-domains", "a", nil,
		"Hosts links may lead to (repeatable or comma separated; empty allows all)")
	cmd.Flags().StringP("regex-allowed-urls", "r", config.DefaultAllowedURLPattern,
		"Regular expression URLs must match from their start")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link depth from the seed (-1 for unlimited)")
	cmd.Flags().IntP("max-pages", "p", 0,
		"Maximum number of URLs per crawl (0 for unlimited)")

	// Politeness flags
	cmd.Flags().IntP("requests-per-domain", "n", config.DefaultRequestsPerDomain,
		"Maximum concurrent requests to one host")
	cmd.Flags().IntP("concurrency", "C", 0,
		"Maximum concurrent requests overall (default twice --requests-per-domain)")
	cmd.Flags().DurationP("delay", "D", config.DefaultDelay,
		"Delay between requests to the same host")
	cmd.Flags().Bool("randomize-delay", true,
		"Multiply each delay by a random factor between 0.5 and 1.5")
	cmd.Flags().Float64("rate", 0,
		"Maximum requests per second per host (0 for no limit)")

	// Request flags
	cmd.Flags().Int("max-redirects", config.DefaultMaxRedirects,
		"Maximum redirect hops per chain")
	cmd.Flags().IntP("retries", "R", config.DefaultRetries,
		"Retries after the first attempt for transient failures")
	cmd.Flags().String("backoff", config.DefaultBackoff,
		"Retry backoff policy: exponential or fixed")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for a single request including the body")
	cmd.Flags().StringP("user-agent", "U", "",
		"User-Agent header (default a common browser string)")
	cmd.Flags().StringArrayP("header", "H", nil,
		"Extra request header as \"Name: value\" (repeatable)")
	cmd.Flags().String("cookie", "",
		"Cookie header sent with every request")
	cmd.Flags().String("proxy", "",
		"Proxy URL (socks5://host:port or http://host:port)")
	cmd.Flags().Int64("max-body-size", 0,
		"Maximum decoded body size in bytes (0 for no limit)")

	// Output flags
	cmd.Flags().StringP("save-dir", "s", "",
		"Directory to mirror into (default ./<host>; <save-dir>/<host> with several seeds)")
	cmd.Flags().Bool("override", false,
		"Overwrite files that already exist instead of skipping them")
	cmd.Flags().Bool("only-links", false,
		"Record fetched URLs in <domain>-links.txt instead of saving content")
	cmd.Flags().Bool("also-save-links", false,
		"Record fetched URLs in addition to saving content")
	cmd.Flags().String("links-dir", "",
		"Directory of the link files (default current directory)")
	cmd.Flags().StringP("log-file", "l", "",
		"Append the log to this file ([domain] is replaced by the seed host)")

	// Run flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of seeds crawled concurrently")
	cmd.Flags().Duration("shutdown-grace", config.DefaultShutdownGrace,
		"Time in-flight requests may finish after an interrupt")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemirror in current or home directory)")
	cmd.Flags().Bool("no-journal", false,
		"Do not record the crawl in the journal")
	cmd.Flags().String("journal-dir", "",
		"Journal directory (default XDG data directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON summary (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown summary (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write the summary to the specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// The first signal cancels the crawl; in-flight requests get the
	// shutdown grace period. A second signal kills the process.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	context.AfterFunc(ctx, stop)

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.AllowedDomains, err = flags.GetStringSlice("allowed-domains"); err != nil {
		return nil, err
	}
	if cfg.AllowedURLPattern, err = flags.GetString("regex-allowed-urls"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.RequestsPerDomain, err = flags.GetInt("requests-per-domain"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.RandomizeDelay, err = flags.GetBool("randomize-delay"); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}
	if cfg.MaxRedirects, err = flags.GetInt("max-redirects"); err != nil {
		return nil, err
	}
	if cfg.Retries, err = flags.GetInt("retries"); err != nil {
		return nil, err
	}
	if cfg.Backoff, err = flags.GetString("backoff"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	rawHeaders, err := flags.GetStringArray("header")
	if err != nil {
		return nil, err
	}
	if cfg.Headers, err = parseHeaders(rawHeaders); err != nil {
		return nil, err
	}
	if cfg.Cookie, err = flags.GetString("cookie"); err != nil {
		return nil, err
	}
	if cfg.ProxyURL, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.SaveDir, err = flags.GetString("save-dir"); err != nil {
		return nil, err
	}
	if cfg.Overwrite, err = flags.GetBool("override"); err != nil {
		return nil, err
	}
	if cfg.OnlyLinks, err = flags.GetBool("only-links"); err != nil {
		return nil, err
	}
	if cfg.AlsoSaveLinks, err = flags.GetBool("also-save-links"); err != nil {
		return nil, err
	}
	if cfg.LinksDir, err = flags.GetString("links-dir"); err != nil {
		return nil, err
	}
	if cfg.LogFile, err = flags.GetString("log-file"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.ShutdownGrace, err = flags.GetDuration("shutdown-grace"); err != nil {
		return nil, err
	}
	if cfg.NoJournal, err = flags.GetBool("no-journal"); err != nil {
		return nil, err
	}
	journalDir, err := flags.GetString("journal-dir")
	if err != nil {
		return nil, err
	}
	if journalDir != "" {
		cfg.JournalDir = journalDir
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.Seeds = args

	return cfg, nil
}

// loadSiteConfigs loads the configuration file. A file the user named
// explicitly must exist; a missing default file yields an empty config.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	configPath := config.FindConfigFile(explicitPath)
	switch {
	case configPath != "":
		siteConfigs, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		return siteConfigs, nil
	case explicitPath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
	default:
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}
}

// parseHeaders turns "Name: value" flag values into a header map.
func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidHeader, h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// runCrawl crawls every seed and writes the summaries.
// Log output goes to logOut, the summaries to out (or the report file).
func runCrawl(ctx context.Context, cfg *config.Config, out, logOut io.Writer) error {
	logger := applog.NewSecureLogger(logOut, cfg.Verbose)

	m := &mirror{cfg: cfg, logOut: logOut, logger: logger}

	if !cfg.NoJournal {
		db, err := database.Open(cfg.JournalDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer db.Close()
		m.journal = db
		logger.Debug("journal opened", "path", db.Path())
	}

	bp := pipeline.NewBatchProcessor(m.crawl,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	results := make([]pipeline.BatchResult, len(cfg.Seeds))
	var mu sync.Mutex
	done := 0
	startTime := time.Now()

	batchErr := bp.ProcessBatchWithCallback(ctx, cfg.Seeds, func(r pipeline.BatchResult, index int) {
		mu.Lock()
		defer mu.Unlock()
		done++
		results[index] = r
		if len(cfg.Seeds) > 1 {
			fmt.Fprintf(logOut, "[%d/%d] %s: %s\n", done, len(cfg.Seeds), r.Seed, batchStatus(r))
		}
	})

	var summaries []*model.CrawlSummary
	var failed []error
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", r.Seed, r.Err))
			continue
		}
		if r.Summary != nil {
			summaries = append(summaries, r.Summary)
		}
	}

	if err := outputReports(cfg, out, summaries); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Debug("all crawls finished",
		"seeds", len(cfg.Seeds),
		"failed", len(failed),
		"elapsed", time.Since(startTime).Round(time.Millisecond),
	)

	if ctx.Err() != nil {
		return fmt.Errorf("crawl interrupted: %w", ctx.Err())
	}
	if batchErr != nil {
		return batchErr
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d crawls failed: %w", len(failed), len(cfg.Seeds), errors.Join(failed...))
	}
	return nil
}

// batchStatus is the one-line progress message of a finished seed.
func batchStatus(r pipeline.BatchResult) string {
	switch {
	case r.Err != nil:
		return "failed: " + r.Err.Error()
	case r.Summary == nil:
		return "skipped"
	case r.Summary.Cancelled:
		return fmt.Sprintf("cancelled after %d URLs", r.Summary.Fetched)
	default:
		return fmt.Sprintf("%d URLs fetched, %d files written", r.Summary.Fetched, r.Summary.Written)
	}
}

// mirror holds what the crawls of one invocation share.
type mirror struct {
	cfg     *config.Config
	journal *database.CrawlDB
	logOut  io.Writer
	logger  *slog.Logger
}

// crawl runs the complete crawl of one seed. It is the BatchProcessor's
// CrawlFunc, so several crawls may run at once.
func (m *mirror) crawl(ctx context.Context, seed string) (*model.CrawlSummary, error) {
	siteCfg, err := m.cfg.ForSeed(seed)
	if err != nil {
		return nil, err
	}
	scope, err := siteCfg.Compile(seed)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := m.seedLogger(siteCfg, scope.Host)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := closeLog(); err != nil {
			m.logger.Warn("failed to close log file", "host", scope.Host, "error", err)
		}
	}()

	f, err := fetcher.New(siteCfg.FetcherOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}
	defer f.Client().CloseIdleConnections()

	var runID string
	if m.journal != nil {
		if runID, err = m.journal.StartRun(ctx, scope.Seed); err != nil {
			return nil, fmt.Errorf("failed to start journal run: %w", err)
		}
	}

	p, saveDir, closeSinks := m.buildPipeline(siteCfg, scope.Host, runID, logger)
	defer func() {
		if err := closeSinks(); err != nil {
			logger.Warn("failed to close link log", "error", err)
		}
	}()

	sched := crawler.NewScheduler(
		frontier.New(scope.FrontierOptions()),
		f,
		crawler.WithHandler(p),
		crawler.WithLimiter(crawler.NewHostLimiter(siteCfg.LimiterOptions())),
		crawler.WithRetryPolicy(siteCfg.RetryPolicy()),
		crawler.WithWorkers(siteCfg.GlobalConcurrency()),
		crawler.WithMaxRedirects(siteCfg.MaxRedirects),
		crawler.WithShutdownGrace(siteCfg.ShutdownGrace),
		crawler.WithLogger(logger),
	)

	summary, err := sched.Run(ctx, scope.Seed)
	if err != nil {
		return nil, err
	}
	summary.RunID = runID
	summary.SaveDir = saveDir

	if m.journal != nil {
		// The run is finished even when the crawl was interrupted.
		if err := m.journal.FinishRun(context.WithoutCancel(ctx), runID, summary); err != nil {
			logger.Warn("failed to finish journal run", "run", runID, "error", err)
		}
	}
	return summary, nil
}

// buildPipeline assembles the result handlers for one crawl: the link log
// and the content sink as selected by the mode, link extraction, and the
// journal. It returns the pipeline, the save directory ("" when content is
// not saved) and a function closing the link log.
func (m *mirror) buildPipeline(siteCfg *config.Config, host, runID string, logger *slog.Logger) (*pipeline.Pipeline, string, func() error) {
	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)

	closeSinks := func() error { return nil }
	mode := siteCfg.Mode()

	if mode.Links {
		links := persist.NewLinkSink(siteCfg.LinksDir)
		closeSinks = links.Close
		p.AddStep(pipeline.NewLinkLogStep(links, host))
		logger.Info("recording fetched URLs", "file", links.Path(host))
	}

	var saveDir string
	if mode.Content {
		saveDir = siteCfg.SaveDirFor(host)
		sink := persist.NewContentSink(saveDir, pathmap.NewMapper(nil))
		p.AddStep(pipeline.NewContentStep(sink,
			pipeline.WithOverwrite(siteCfg.Overwrite),
			pipeline.WithContentLogger(logger),
		))
		logger.Info("mirroring content", "dir", saveDir)
	}

	p.AddStep(pipeline.NewExtractStep())

	if m.journal != nil {
		p.AddStep(pipeline.NewJournalStep(m.journal, runID))
	}

	logger.Debug("pipeline assembled", "steps", p.StepNames())
	return p, saveDir, closeSinks
}

// seedLogger returns the logger of one crawl. With a log file configured
// the output is also appended to that file.
func (m *mirror) seedLogger(siteCfg *config.Config, host string) (*slog.Logger, func() error, error) {
	path := siteCfg.LogFileFor(host)
	if path == "" {
		return m.logger.With("host", host), func() error { return nil }, nil
	}

	w, closeFn, err := applog.Tee(m.logOut, path)
	if err != nil {
		return nil, nil, err
	}
	return applog.NewSecureLogger(w, siteCfg.Verbose).With("host", host), closeFn, nil
}

// newReportWriter returns the writer for the selected output format.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// outputReports writes every summary in seed order, to the report file
// when one is configured and to out otherwise.
func outputReports(cfg *config.Config, out io.Writer, summaries []*model.CrawlSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	output := out
	if cfg.ReportFile != "" {
		f, err := createReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	writer := newReportWriter(cfg, output)
	for _, summary := range summaries {
		if _, err := writer.Write(summary); err != nil {
			return err
		}
	}
	return nil
}

// createReportFile creates or truncates path, creating its directory.
func createReportFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // User-provided report path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
