package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "notecrawler/pkg/errors"
	"notecrawler/pkg/logger"
	"notecrawler/pkg/models"
	"notecrawler/pkg/normalize"
	"notecrawler/pkg/retry"
	"notecrawler/pkg/xhs"
)

const (
	// DefaultDetailAttempts is the total number of detail calls per item
	DefaultDetailAttempts = 3
	// DefaultRateLimitDelay is the pause after a rate limited call
	DefaultRateLimitDelay = 30 * time.Second
)

// FetcherOptions configures a Fetcher
type FetcherOptions struct {
	Attempts   int
	RetryDelay time.Duration
	Location   *time.Location
	Sleep      retry.SleepFunc
	Logger     logger.Logger
}

// Fetcher enriches item stubs with their detail record
type Fetcher struct {
	api        NoteAPI
	attempts   int
	retryDelay time.Duration
	loc        *time.Location
	sleep      retry.SleepFunc
	logger     logger.Logger
}

// NewFetcher creates a detail fetcher
func NewFetcher(api NoteAPI, opts FetcherOptions) *Fetcher {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultDetailAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRateLimitDelay
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Wait
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	return &Fetcher{
		api:        api,
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
		loc:        opts.Location,
		sleep:      opts.Sleep,
		logger:     opts.Logger,
	}
}

// FetchDetail returns the enriched record for stub. Rate limited calls are
// retried after a fixed pause; when every attempt is rate limited the error
// wraps ErrDetailFetchExhausted. Any other failure is returned at once.
// On error the returned record carries the stub fields and zero details.
func (f *Fetcher) FetchDetail(ctx context.Context, stub models.ItemStub) (models.ItemRecord, error) {
	record := models.NewRecord(stub)

	card, err := retry.DoWithResult(func() (*xhs.NoteCard, error) {
		return f.api.NoteDetail(ctx, stub.ItemID, stub.SecondaryToken)
	}, &retry.Config{
		MaxAttempts: f.attempts,
		Backoff:     &retry.ConstantBackoff{Delay: f.retryDelay},
		RetryIf:     retry.RetryIfRateLimited,
		Sleep:       f.sleep,
		Context:     ctx,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.LogRateLimit(f.logger, "note_detail", stub.ItemID, attempt, delay)
		},
	})
	if err != nil {
		if errs.IsRateLimited(err) && !errors.Is(err, context.Canceled) {
			return record, fmt.Errorf("%w: item %s after %d attempts: %w", errs.ErrDetailFetchExhausted, stub.ItemID, f.attempts, err)
		}
		return record, fmt.Errorf("item %s: %w", stub.ItemID, err)
	}

	return mergeDetail(record, card, f.loc), nil
}

// mergeDetail copies the normalized detail fields onto record
func mergeDetail(record models.ItemRecord, card *xhs.NoteCard, loc *time.Location) models.ItemRecord {
	if card.Title != "" {
		record.Title = card.Title
	}
	if card.Type != "" {
		record.Type = card.Type
	}
	record.Content = normalize.Content(card.Desc)

	info := card.InteractInfo
	record.LikeCount = normalize.ParseCount(info.LikedCount.String())
	record.CollectCount = normalize.ParseCount(info.CollectedCount.String())
	record.ShareCount = normalize.ParseCount(info.ShareCount.String())
	record.CommentCount = normalize.ParseCount(info.CommentCount.String())

	published := normalize.FirstNonEmpty(card.Time.String(), card.CreateTime.String(), card.LastUpdateTime.String())
	record.PublishTime = normalize.FormatPublishTime(published, loc)
	return record
}
