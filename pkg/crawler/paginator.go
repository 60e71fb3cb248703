package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notecrawler/pkg/checkpoint"
	errs "notecrawler/pkg/errors"
	"notecrawler/pkg/logger"
	"notecrawler/pkg/models"
	"notecrawler/pkg/retry"
	"notecrawler/pkg/xhs"
)

// State is a Paginator's position in its account pass
type State int

const (
	StateStart State = iota
	StatePaging
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StatePaging:
		return "paging"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PaginatorOptions configures one account pass
type PaginatorOptions struct {
	BatchSize     int
	MaxPages      int
	ItemDelay     time.Duration
	PageDelay     time.Duration
	FlushInterval time.Duration

	// ListingAttempts and RetryDelay bound the rate limit retries of a
	// listing call
	ListingAttempts int
	RetryDelay      time.Duration

	// RetryIncomplete keeps records whose detail fetch failed out of the
	// output and the processed set so a later run fetches them again
	RetryIncomplete bool
}

// AccountStats counts what one account pass did
type AccountStats struct {
	Account      models.AccountTarget
	Pages        int
	Listed       int
	Skipped      int
	Written      int
	Incomplete   int
	DetailErrors int
	StartedAt    time.Time
	Duration     time.Duration
}

// Deps are the collaborators shared by the paginators of a run
type Deps struct {
	API      NoteAPI
	Fetcher  *Fetcher
	Store    *checkpoint.Store
	Writer   RecordWriter
	Progress ProgressReporter
	Logger   logger.Logger
	Sleep    retry.SleepFunc
	Now      func() time.Time
}

func (d *Deps) setDefaults() {
	if d.Progress == nil {
		d.Progress = nopProgress{}
	}
	if d.Logger == nil {
		d.Logger = logger.GetLogger()
	}
	if d.Sleep == nil {
		d.Sleep = retry.Wait
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// Paginator walks one account's listing page by page, enriches every item
// not yet processed and writes them in batches
type Paginator struct {
	account models.AccountTarget
	opts    PaginatorOptions
	deps    Deps
	logger  logger.Logger

	state  State
	cursor models.Cursor
	batch  *batch
	seen   map[string]struct{}
	stats  AccountStats
}

// NewPaginator creates the driver for one account pass
func NewPaginator(account models.AccountTarget, opts PaginatorOptions, deps Deps) *Paginator {
	deps.setDefaults()
	if opts.ListingAttempts <= 0 {
		opts.ListingAttempts = DefaultDetailAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRateLimitDelay
	}
	log := deps.Logger.WithField("account", account.Name)
	return &Paginator{
		account: account,
		opts:    opts,
		deps:    deps,
		logger:  log,
		state:   StateStart,
		seen:    make(map[string]struct{}),
		stats:   AccountStats{Account: account},
	}
}

// State returns the current state
func (p *Paginator) State() State {
	return p.state
}

// Stats returns the counters so far
func (p *Paginator) Stats() AccountStats {
	return p.stats
}

// Run drives the pass to StateDone. Whatever is buffered is flushed before
// Run returns, including on listing failure and on cancellation.
func (p *Paginator) Run(ctx context.Context) (stats AccountStats, err error) {
	p.stats.StartedAt = p.deps.Now()
	p.batch = newBatch(p.account.Name, p.opts.BatchSize, p.deps.Writer, p.deps.Store, p.deps.Progress, p.logger, p.stats.StartedAt)

	defer func() {
		if ferr := p.batch.flush(flushFinal, p.deps.Now()); ferr != nil {
			err = errors.Join(err, ferr)
		}
		p.stats.Written = p.batch.written
		p.stats.Duration = p.deps.Now().Sub(p.stats.StartedAt)
		stats = p.stats
	}()

	for {
		switch p.state {
		case StateStart:
			p.cursor = models.Cursor{HasMore: true}
			p.stats.Pages = 0
			p.state = StatePaging

		case StatePaging:
			if err := p.step(ctx); err != nil {
				return p.stats, err
			}

		case StateDone:
			return p.stats, nil
		}
	}
}

// step processes one listing page and decides the next state
func (p *Paginator) step(ctx context.Context) error {
	page, err := p.listPage(ctx)
	if err != nil {
		return err
	}
	p.stats.Pages++
	p.stats.Listed += len(page.Stubs)

	fresh := 0
	for _, stub := range page.Stubs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.claim(stub.ItemID) {
			p.stats.Skipped++
			continue
		}
		fresh++
		if err := p.processItem(ctx, stub); err != nil {
			return err
		}
	}

	logger.LogPage(p.logger, p.account.Name, p.stats.Pages, len(page.Stubs), fresh, page.HasMore)
	p.deps.Progress.PageProcessed(p.account.Name, p.stats.Pages, len(page.Stubs), fresh, page.HasMore)

	p.cursor = models.Cursor{Token: page.Cursor, HasMore: page.HasMore}
	if !p.cursor.HasMore || p.cursor.Token == "" || (p.opts.MaxPages > 0 && p.stats.Pages >= p.opts.MaxPages) {
		p.state = StateDone
		return nil
	}

	return p.deps.Sleep(ctx, p.opts.PageDelay)
}

// claim reserves an item for this pass. It fails for items handled by an
// earlier run, earlier in this pass or by another account's pass running
// alongside. A claimed item is released unless it reaches the output.
func (p *Paginator) claim(id string) bool {
	if _, ok := p.seen[id]; ok {
		return false
	}
	return p.deps.Store.Claim(id)
}

// processItem enriches one stub and buffers it
func (p *Paginator) processItem(ctx context.Context, stub models.ItemStub) error {
	record, err := p.deps.Fetcher.FetchDetail(ctx, stub)
	if err != nil && ctx.Err() != nil {
		p.deps.Store.Release(stub.ItemID)
		return ctx.Err()
	}
	p.seen[stub.ItemID] = struct{}{}

	logger.LogItem(p.logger, p.account.Name, stub.ItemID, err)
	p.deps.Progress.ItemProcessed(p.account.Name, stub.ItemID, err)

	if err != nil {
		p.stats.DetailErrors++
		if p.opts.RetryIncomplete {
			p.stats.Incomplete++
			p.deps.Store.MarkIncomplete(stub.ItemID)
			p.deps.Store.Release(stub.ItemID)
			return p.deps.Sleep(ctx, p.opts.ItemDelay)
		}
		record.Incomplete = true
	}

	full := p.batch.add(record)

	if err := p.deps.Sleep(ctx, p.opts.ItemDelay); err != nil {
		return err
	}

	now := p.deps.Now()
	switch {
	case full:
		return p.batch.flush(flushSize, now)
	case p.batch.due(p.opts.FlushInterval, now):
		return p.batch.flush(flushInterval, now)
	}
	return nil
}

// listPage fetches the page at the current cursor, retrying while the
// listing is rate limited
func (p *Paginator) listPage(ctx context.Context) (*xhs.NotesPage, error) {
	page, err := retry.DoWithResult(func() (*xhs.NotesPage, error) {
		return p.deps.API.UserNotes(ctx, p.account.ID, p.cursor.Token)
	}, &retry.Config{
		MaxAttempts: p.opts.ListingAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: p.opts.RetryDelay},
		RetryIf:     retry.RetryIfRateLimited,
		Sleep:       p.deps.Sleep,
		Context:     ctx,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.LogRateLimit(p.logger, "user_posted", "", attempt, delay)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: account %s page %d: %w", errs.ErrListingFetchFailed, p.account.Name, p.stats.Pages+1, err)
	}
	return page, nil
}
