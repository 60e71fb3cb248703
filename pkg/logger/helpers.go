package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRateLimit records an upstream throttling response and the wait before
// the next attempt
func LogRateLimit(l Logger, operation, itemID string, attempt int, wait time.Duration) {
	l.WithFields(map[string]interface{}{
		"operation": operation,
		"item_id":   itemID,
		"attempt":   attempt,
		"wait":      wait,
		"action":    "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogItem records the outcome of one item enrichment
func LogItem(l Logger, account, itemID string, err error) {
	entry := l.WithFields(map[string]interface{}{
		"account": account,
		"item_id": itemID,
	})
	if err != nil {
		entry.WithError(err).Warn("Item detail unavailable, keeping listing fields")
		return
	}
	entry.Debug("Item enriched")
}

// LogPage records one listing page
func LogPage(l Logger, account string, page, items, fresh int, hasMore bool) {
	l.InfoWithFields("Listing page processed", map[string]interface{}{
		"account":  account,
		"page":     page,
		"items":    items,
		"new":      fresh,
		"has_more": hasMore,
	})
}

// LogFlush records a batch persisted to the output file
func LogFlush(l Logger, account string, records int, reason string) {
	l.InfoWithFields("Batch flushed", map[string]interface{}{
		"account": account,
		"records": records,
		"reason":  reason,
	})
}

// LogAccountSummary records the end of one account pass
func LogAccountSummary(l Logger, account string, pages, written, skipped int, elapsed time.Duration, err error) {
	entry := l.WithFields(map[string]interface{}{
		"account":  account,
		"pages":    pages,
		"written":  written,
		"skipped":  skipped,
		"duration": elapsed,
	})
	if err != nil {
		entry.WithError(err).Error("Account crawl failed")
		return
	}
	entry.Info("Account crawl completed")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
