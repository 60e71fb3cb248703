package crawler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"notecrawler/internal/accountpool"
	"notecrawler/pkg/config"
	"notecrawler/pkg/logger"
	"notecrawler/pkg/metadata"
	"notecrawler/pkg/models"
)

// existingIDReader is implemented by writers that can list the ids already
// in an account's output
type existingIDReader interface {
	ExistingIDs(account string) ([]string, error)
}

// outputRepairer is implemented by writers that can drop a row left half
// written by an interrupted run
type outputRepairer interface {
	Repair(account string) (bool, error)
}

// workbookExporter is implemented by writers that can consolidate their
// output into one workbook
type workbookExporter interface {
	ExportWorkbook(path string, accounts []string) (int, error)
}

// Orchestrator runs the account passes of one crawl
type Orchestrator struct {
	cfg    *config.Config
	deps   Deps
	logger logger.Logger
}

// NewOrchestrator wires an orchestrator. API, Store and Writer are
// required; a Fetcher is built from cfg when deps carries none.
func NewOrchestrator(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("crawler: config is required")
	}
	if deps.API == nil || deps.Store == nil || deps.Writer == nil {
		return nil, errors.New("crawler: api, checkpoint store and writer are required")
	}
	deps.setDefaults()

	if deps.Fetcher == nil {
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		deps.Fetcher = NewFetcher(deps.API, FetcherOptions{
			Attempts:   cfg.RateLimit.MaxRetries,
			RetryDelay: cfg.RateLimit.RetryDelay,
			Location:   loc,
			Sleep:      deps.Sleep,
			Logger:     deps.Logger,
		})
	}

	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.WithField("component", "crawler"),
	}, nil
}

// Targets converts the configured accounts
func Targets(accounts []config.AccountConfig) []models.AccountTarget {
	out := make([]models.AccountTarget, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, models.AccountTarget{Name: a.Name, ID: a.ID})
	}
	return out
}

// Run crawls every account and returns the run summary. Failed accounts
// are recorded and the remaining ones still run unless crawl.stop_on_error
// is set. The error joins every account failure.
func (o *Orchestrator) Run(ctx context.Context, accounts []models.AccountTarget) (*metadata.RunSummary, error) {
	summary := metadata.NewRunSummary(o.deps.Now())
	o.logger.InfoWithFields("Starting crawl", map[string]interface{}{
		"run_id":   summary.RunID,
		"accounts": len(accounts),
		"parallel": o.cfg.Crawl.ParallelAccounts,
	})

	reconciled, err := o.reconcile(accounts)
	if err != nil {
		return summary, err
	}
	summary.Reconciled = reconciled

	stats := make([]*AccountStats, len(accounts))
	failures := make([]error, len(accounts))
	task := func(ctx context.Context, job accountpool.Job) error {
		s, err := o.crawlAccount(ctx, job.Account)
		stats[job.Index] = &s
		failures[job.Index] = err
		return err
	}

	var runErr error
	if o.cfg.Crawl.ParallelAccounts > 1 && len(accounts) > 1 {
		runErr = o.runParallel(ctx, accounts, task)
	} else {
		runErr = o.runSequential(ctx, accounts, task)
	}

	for i, s := range stats {
		if s == nil {
			continue
		}
		summary.Accounts = append(summary.Accounts, toSummary(*s, failures[i]))
	}
	summary.Cancelled = ctx.Err() != nil
	if summary.Cancelled && runErr == nil {
		runErr = ctx.Err()
	}
	summary.Checkpoint = o.deps.Store.Path()
	summary.Processed = o.deps.Store.Len()

	if o.cfg.Output.ExportWorkbook {
		if path, err := o.exportWorkbook(accounts); err != nil {
			o.logger.WithError(err).Error("Failed to export workbook")
			runErr = errors.Join(runErr, err)
		} else {
			summary.Workbook = path
		}
	}

	summary.Finish(o.deps.Now())
	if o.cfg.Output.WriteSummary {
		path := filepath.Join(o.cfg.Output.BaseDirectory, metadata.SummaryFile)
		if err := summary.Save(path); err != nil {
			o.logger.WithError(err).Warn("Failed to write run summary")
		}
	}

	written, skipped, incomplete := summary.Totals()
	o.logger.InfoWithFields("Crawl finished", map[string]interface{}{
		"run_id":     summary.RunID,
		"written":    written,
		"skipped":    skipped,
		"incomplete": incomplete,
		"failed":     len(summary.FailedAccounts()),
		"cancelled":  summary.Cancelled,
		"duration":   summary.FinishedAt.Sub(summary.StartedAt),
	})

	return summary, runErr
}

// runSequential crawls the accounts in order, one at a time
func (o *Orchestrator) runSequential(ctx context.Context, accounts []models.AccountTarget, task accountpool.Task) error {
	var errs []error
	for i, account := range accounts {
		if ctx.Err() != nil {
			break
		}
		if err := task(ctx, accountpool.Job{Index: i, Account: account}); err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", account.Name, err))
			if o.cfg.Crawl.StopOnError || ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

// runParallel spreads the accounts over crawl.parallel_accounts workers
func (o *Orchestrator) runParallel(ctx context.Context, accounts []models.AccountTarget, task accountpool.Task) error {
	pool := accountpool.New(o.cfg.Crawl.ParallelAccounts, o.cfg.Crawl.StopOnError, o.deps.Logger)
	results, poolErr := pool.Run(ctx, accounts, task)

	var errs []error
	for _, r := range results {
		if r.Error != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", r.Job.Account.Name, r.Error))
		}
	}
	if len(errs) == 0 && poolErr != nil {
		errs = append(errs, poolErr)
	}
	return errors.Join(errs...)
}

// crawlAccount runs one Paginator to completion
func (o *Orchestrator) crawlAccount(ctx context.Context, account models.AccountTarget) (AccountStats, error) {
	o.deps.Progress.AccountStarted(account)

	p := NewPaginator(account, PaginatorOptions{
		BatchSize:       o.cfg.Crawl.BatchSize,
		MaxPages:        o.cfg.Crawl.MaxPages,
		ItemDelay:       o.cfg.Crawl.ItemDelay,
		PageDelay:       o.cfg.Crawl.PageDelay,
		FlushInterval:   o.cfg.Crawl.FlushInterval,
		ListingAttempts: o.cfg.RateLimit.MaxRetries,
		RetryDelay:      o.cfg.RateLimit.RetryDelay,
		RetryIncomplete: o.cfg.Crawl.RetryIncomplete,
	}, o.deps)

	stats, err := p.Run(ctx)
	logger.LogAccountSummary(o.logger, account.Name, stats.Pages, stats.Written, stats.Skipped, stats.Duration, err)
	o.deps.Progress.AccountFinished(stats, err)
	return stats, err
}

// reconcile adds ids already present in the output files to the checkpoint.
// A crash between a CSV append and the checkpoint save leaves such ids.
func (o *Orchestrator) reconcile(accounts []models.AccountTarget) (int, error) {
	reader, ok := o.deps.Writer.(existingIDReader)
	if !ok {
		return 0, nil
	}

	repairer, _ := o.deps.Writer.(outputRepairer)

	added := 0
	for _, account := range accounts {
		if repairer != nil {
			repaired, err := repairer.Repair(account.Name)
			if err != nil {
				return added, fmt.Errorf("failed to repair output for %s: %w", account.Name, err)
			}
			if repaired {
				o.logger.WarnWithFields("Dropped incomplete final row from output", map[string]interface{}{
					"account": account.Name,
				})
			}
		}
		ids, err := reader.ExistingIDs(account.Name)
		if err != nil {
			return added, fmt.Errorf("failed to read existing output for %s: %w", account.Name, err)
		}
		for _, id := range ids {
			if !o.deps.Store.Contains(id) {
				o.deps.Store.Add(id)
				added++
			}
		}
	}

	if added > 0 {
		o.logger.InfoWithFields("Checkpoint reconciled with existing output", map[string]interface{}{
			"added": added,
		})
		if err := o.deps.Store.Save(); err != nil {
			return added, err
		}
	}
	return added, nil
}

// exportWorkbook writes the consolidated workbook and returns its path, or
// the empty string when no account has output yet
func (o *Orchestrator) exportWorkbook(accounts []models.AccountTarget) (string, error) {
	exporter, ok := o.deps.Writer.(workbookExporter)
	if !ok {
		return "", nil
	}

	names := make([]string, 0, len(accounts))
	for _, a := range accounts {
		names = append(names, a.Name)
	}

	path := filepath.Join(o.cfg.Output.BaseDirectory, o.cfg.Output.WorkbookName)
	sheets, err := exporter.ExportWorkbook(path, names)
	if err != nil {
		return "", err
	}
	if sheets == 0 {
		return "", nil
	}
	o.logger.InfoWithFields("Workbook exported", map[string]interface{}{
		"path":   path,
		"sheets": sheets,
	})
	return path, nil
}

func toSummary(s AccountStats, err error) metadata.AccountSummary {
	out := metadata.AccountSummary{
		Name:         s.Account.Name,
		ID:           s.Account.ID,
		Pages:        s.Pages,
		Listed:       s.Listed,
		Skipped:      s.Skipped,
		Written:      s.Written,
		Incomplete:   s.Incomplete,
		DetailErrors: s.DetailErrors,
		StartedAt:    s.StartedAt,
		Duration:     metadata.Duration(s.Duration),
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
