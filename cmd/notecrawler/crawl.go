package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"notecrawler/pkg/auth"
	"notecrawler/pkg/checkpoint"
	"notecrawler/pkg/config"
	"notecrawler/pkg/crawler"
	"notecrawler/pkg/logger"
	"notecrawler/pkg/metadata"
	"notecrawler/pkg/models"
	"notecrawler/pkg/ratelimit"
	"notecrawler/pkg/signer"
	"notecrawler/pkg/storage"
	"notecrawler/pkg/ui"
	"notecrawler/pkg/ui/tui"
	"notecrawler/pkg/xhs"
)

var (
	// Crawl command flags
	outputDir       string
	checkpointFile  string
	identityName    string
	batchSize       int
	maxPages        int
	parallel        int
	rateLimit       int
	retryIncomplete bool
	exportWorkbook  bool
	useTUI          bool
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl [account...]",
	Short: "Crawl the configured accounts",
	Long: `Crawl every account listed in the configuration, or only the ones named
on the command line (by name or id).

Each account's notes are listed newest first. Notes already present in the
checkpoint are skipped; the rest are fetched, normalised and appended to
<output>/<account>_notes.csv in batches. Interrupting a crawl (Ctrl+C)
flushes the current batch, so the next run resumes where this one stopped.

Identity cookies are read from, in order:
  - the configuration file and NOTECRAWLER_A1 / NOTECRAWLER_WEB_SESSION
  - the stored identity named by --identity ('notecrawler auth login')
  - the default stored identity`,
	Example: `  # Crawl every configured account
  notecrawler crawl

  # Crawl two accounts with a custom batch size
  notecrawler crawl PKU THU --batch-size 20

  # Retry notes whose detail fetch failed on an earlier run
  notecrawler crawl --retry-incomplete

  # Full-screen dashboard
  notecrawler crawl --tui`,
	Args: cobra.ArbitraryArgs,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)
	addCrawlFlags(crawlCmd)
	addCrawlFlags(rootCmd)
}

func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for CSV files")
	cmd.Flags().StringVar(&checkpointFile, "checkpoint", "", "checkpoint file name or path")
	cmd.Flags().StringVarP(&identityName, "identity", "i", "", "stored identity to sign requests with")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per CSV flush")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "listing pages per account")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "accounts crawled at the same time")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per minute")
	cmd.Flags().BoolVar(&retryIncomplete, "retry-incomplete", false, "leave failed details out of the CSV and retry them next run")
	cmd.Flags().BoolVar(&exportWorkbook, "export-workbook", true, "write a consolidated XLSX workbook after the crawl")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "use the full-screen dashboard")
}

// crawlFlags collects the flags the user set explicitly
func crawlFlags(cmd *cobra.Command, args []string) map[string]interface{} {
	flags := make(map[string]interface{})
	set := cmd.Flags().Changed

	if set("output") {
		flags["output"] = outputDir
	}
	if set("checkpoint") {
		flags["checkpoint"] = checkpointFile
	}
	if set("identity") {
		flags["identity"] = identityName
	}
	if set("batch-size") {
		flags["batch-size"] = batchSize
	}
	if set("max-pages") {
		flags["max-pages"] = maxPages
	}
	if set("parallel") {
		flags["parallel"] = parallel
	}
	if set("rate-limit") {
		flags["requests-per-minute"] = rateLimit
	}
	if set("retry-incomplete") {
		flags["retry-incomplete"] = retryIncomplete
	}
	if set("export-workbook") {
		flags["export-workbook"] = exportWorkbook
	}
	if cmd.Flags().Changed("log-level") || verbose {
		flags["log-level"] = logLevel
	}
	if len(args) > 0 {
		flags["accounts"] = args
	}
	return flags
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, crawlFlags(cmd, args))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	log.WithField("version", version).Info("notecrawler starting")

	if err := resolveIdentity(cfg, log); err != nil {
		return err
	}
	if err := cfg.ValidateIdentity(); err != nil {
		ui.PrintWarning("Run 'notecrawler auth login' to store identity cookies")
		return fmt.Errorf("invalid configuration: %w", err)
	}

	browserSigner, err := signer.NewBrowserSigner(signer.BrowserConfigFrom(cfg), log)
	if err != nil {
		return fmt.Errorf("failed to initialize signer: %w", err)
	}
	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	client := xhs.NewClientFromConfig(cfg, browserSigner, limiter, log)

	store, err := checkpoint.Open(cfg.CheckpointPath(), log)
	if err != nil {
		return err
	}
	writer, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		return fmt.Errorf("failed to prepare output directory: %w", err)
	}

	targets := crawler.Targets(cfg.Accounts)
	deps := crawler.Deps{
		API:    client,
		Store:  store,
		Writer: writer,
		Logger: log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var summary *metadata.RunSummary
	var runErr error
	if useTUI {
		summary, runErr = crawlWithTUI(ctx, stop, cfg, deps, targets)
	} else {
		summary, runErr = crawlWithProgress(ctx, cfg, deps, targets)
	}

	if notifications {
		ui.NewNotifier().NotifyRun(summary, runErr)
	}

	switch {
	case summary != nil && summary.Cancelled:
		ui.PrintWarning("Crawl interrupted; progress is checkpointed, rerun to resume")
		return nil
	case runErr != nil:
		log.WithError(runErr).Error("Crawl failed")
		return runErr
	}

	ui.PrintSuccess("[CRAWL COMPLETED SUCCESSFULLY]")
	return nil
}

func crawlWithProgress(ctx context.Context, cfg *config.Config, deps crawler.Deps, targets []models.AccountTarget) (*metadata.RunSummary, error) {
	var out io.Writer = os.Stdout
	if ui.IsQuiet() {
		out = io.Discard
	}
	progress := ui.NewCrawlProgress(out, verbose)
	deps.Progress = progress

	orchestrator, err := crawler.NewOrchestrator(cfg, deps)
	if err != nil {
		return nil, err
	}

	ui.PrintInfo("Accounts", fmt.Sprintf("%d", len(targets)))
	ui.PrintInfo("Output", cfg.Output.BaseDirectory)
	ui.PrintHighlight("[CRAWLING]")

	summary, err := orchestrator.Run(ctx, targets)
	progress.Complete(summary)
	return summary, err
}

// crawlWithTUI runs the crawl behind the dashboard. Quitting the dashboard
// cancels the crawl, which then flushes and checkpoints before returning.
func crawlWithTUI(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, deps crawler.Deps, targets []models.AccountTarget) (*metadata.RunSummary, error) {
	terminal := tui.NewTUI(targets)
	deps.Progress = terminal

	orchestrator, err := crawler.NewOrchestrator(cfg, deps)
	if err != nil {
		return nil, err
	}

	type result struct {
		summary *metadata.RunSummary
		err     error
	}
	crawlDone := make(chan result, 1)
	go func() {
		summary, err := orchestrator.Run(ctx, targets)
		terminal.Finish(summary, err)
		crawlDone <- result{summary, err}
	}()

	tuiDone := make(chan error, 1)
	go func() {
		tuiDone <- terminal.Start()
	}()

	var res result
	select {
	case res = <-crawlDone:
		terminal.Stop()
		<-tuiDone
	case err := <-tuiDone:
		cancel()
		res = <-crawlDone
		if err != nil {
			res.err = errors.Join(res.err, fmt.Errorf("dashboard: %w", err))
		}
	}

	ui.NewCrawlProgress(os.Stdout, false).Complete(res.summary)
	return res.summary, res.err
}

// newLogger builds the run logger. The dashboard owns the terminal, so logs
// go to the configured file or nowhere while it runs.
func newLogger(cfg *config.Config) (logger.Logger, error) {
	if useTUI && cfg.Logging.File == "" {
		return logger.NewWithWriter(io.Discard, cfg.Logging.Level)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.GetLogger(), nil
}

// resolveIdentity fills missing cookies from the credential stores. An
// identity asked for by name must exist.
func resolveIdentity(cfg *config.Config, log logger.Logger) error {
	if cfg.Platform.A1 != "" && cfg.Platform.WebSession != "" && cfg.Platform.Identity == "" {
		log.Debug("Using identity cookies from configuration")
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	identity, err := manager.Resolve(cfg.Platform.Identity)
	if err != nil {
		if cfg.Platform.Identity != "" {
			return fmt.Errorf("identity %q: %w", cfg.Platform.Identity, err)
		}
		log.Debug("No stored identity found")
		return nil
	}

	identity.ApplyTo(&cfg.Platform)
	log.WithField("identity", identity.Name).Info("Using stored identity")
	ui.PrintInfo("Identity", identity.Name)
	return nil
}
