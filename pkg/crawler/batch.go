package crawler

import (
	"fmt"
	"time"

	"notecrawler/pkg/checkpoint"
	"notecrawler/pkg/logger"
	"notecrawler/pkg/models"
)

// Flush reasons
const (
	flushSize     = "size"
	flushInterval = "interval"
	flushFinal    = "final"
)

// batch buffers the records of one account pass until they are written.
// It is owned by a single Paginator and is not safe for concurrent use.
type batch struct {
	account string
	size    int
	records []models.ItemRecord

	writer   RecordWriter
	store    *checkpoint.Store
	progress ProgressReporter
	logger   logger.Logger

	lastFlush time.Time
	written   int
}

func newBatch(account string, size int, writer RecordWriter, store *checkpoint.Store, progress ProgressReporter, log logger.Logger, now time.Time) *batch {
	if size < 1 {
		size = 1
	}
	return &batch{
		account:   account,
		size:      size,
		records:   make([]models.ItemRecord, 0, size),
		writer:    writer,
		store:     store,
		progress:  progress,
		logger:    log,
		lastFlush: now,
	}
}

// add buffers a record and reports whether the batch is full
func (b *batch) add(record models.ItemRecord) bool {
	b.records = append(b.records, record)
	return len(b.records) >= b.size
}

func (b *batch) len() int {
	return len(b.records)
}

// due reports whether interval has passed since the last flush
func (b *batch) due(interval time.Duration, now time.Time) bool {
	return interval > 0 && len(b.records) > 0 && now.Sub(b.lastFlush) >= interval
}

// flush appends the buffer to the output, marks its ids processed, saves
// the checkpoint and clears the buffer. The checkpoint is only saved after
// the append succeeded, so an id is never recorded without its row. Pending
// incomplete markers are saved even when the buffer is empty.
func (b *batch) flush(reason string, now time.Time) error {
	if len(b.records) == 0 && !b.store.Dirty() {
		return nil
	}

	n := len(b.records)
	if n > 0 {
		ids := make([]string, 0, n)
		for _, r := range b.records {
			ids = append(ids, r.ItemID)
		}
		if err := b.writer.Append(b.account, b.records); err != nil {
			// The ids stay unprocessed and are fetched again next run.
			b.store.Release(ids...)
			b.records = b.records[:0]
			return fmt.Errorf("failed to write batch for %s: %w", b.account, err)
		}
		b.store.Add(ids...)
		b.records = b.records[:0]
		b.written += n
	}
	b.lastFlush = now

	if err := b.store.Save(); err != nil {
		return fmt.Errorf("failed to save checkpoint after batch for %s: %w", b.account, err)
	}

	if n > 0 {
		logger.LogFlush(b.logger, b.account, n, reason)
		b.progress.BatchFlushed(b.account, n)
	}
	return nil
}
