package accountpool

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"notecrawler/pkg/logger"
	"notecrawler/pkg/models"
)

// Task crawls the account of one job. It must honour ctx cancellation.
type Task func(ctx context.Context, job Job) error

// Job represents a single account queued for a worker
type Job struct {
	Index   int
	Account models.AccountTarget
}

// Result represents the outcome of a job
type Result struct {
	Job      Job
	Error    error
	Duration time.Duration
	// Skipped is set when the job never ran because the pool stopped first
	Skipped bool
}

// Pool runs account crawls on a fixed number of workers. Each worker runs
// its own task, so per-account state and backoff never cross workers.
type Pool struct {
	numWorkers  int
	stopOnError bool
	logger      logger.Logger
}

// New creates a pool with numWorkers workers (at least one). With
// stopOnError the first failing task cancels the remaining ones.
func New(numWorkers int, stopOnError bool, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{
		numWorkers:  numWorkers,
		stopOnError: stopOnError,
		logger:      log.WithField("component", "accountpool"),
	}
}

// Run executes task for every account and returns one result per account
// in input order. The returned error is the first task error when the pool
// stops on error, otherwise the context error if the run was cancelled.
func (p *Pool) Run(ctx context.Context, accounts []models.AccountTarget, task Task) ([]Result, error) {
	results := make([]Result, len(accounts))
	for i, account := range accounts {
		results[i] = Result{Job: Job{Index: i, Account: account}, Skipped: true}
	}
	if len(accounts) == 0 {
		return results, nil
	}

	workers := p.numWorkers
	if workers > len(accounts) {
		workers = len(accounts)
	}

	p.logger.InfoWithFields("Starting account pool", map[string]interface{}{
		"num_workers": workers,
		"accounts":    len(accounts),
	})

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan Job, workers*2)

	g.Go(func() error {
		defer close(jobs)
		for i, account := range accounts {
			select {
			case jobs <- Job{Index: i, Account: account}:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for id := 0; id < workers; id++ {
		id := id
		g.Go(func() error {
			return p.worker(gctx, id, jobs, task, results)
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	p.logger.Info("Account pool stopped")
	return results, err
}

// worker is the main worker routine. Each job index is written by exactly
// one worker, so results needs no lock.
func (p *Pool) worker(ctx context.Context, id int, jobs <-chan Job, task Task, results []Result) error {
	for job := range jobs {
		if ctx.Err() != nil {
			p.logger.DebugWithFields("Worker stopping - context cancelled", map[string]interface{}{
				"worker_id": id,
			})
			return nil
		}

		p.logger.DebugWithFields("Worker processing account", map[string]interface{}{
			"worker_id": id,
			"account":   job.Account.Name,
		})

		start := time.Now()
		err := task(ctx, job)
		results[job.Index] = Result{Job: job, Error: err, Duration: time.Since(start)}

		if err != nil && p.stopOnError {
			return fmt.Errorf("account %s: %w", job.Account.Name, err)
		}
	}
	return nil
}
