package crawler

import (
	"context"

	"notecrawler/pkg/models"
	"notecrawler/pkg/xhs"
)

// NoteAPI defines the upstream operations the crawler needs
type NoteAPI interface {
	UserNotes(ctx context.Context, userID, cursor string) (*xhs.NotesPage, error)
	NoteDetail(ctx context.Context, noteID, xsecToken string) (*xhs.NoteCard, error)
}

// RecordWriter appends records to an account's durable output
type RecordWriter interface {
	Append(account string, records []models.ItemRecord) error
}

// ProgressReporter receives per item and per page progress
type ProgressReporter interface {
	AccountStarted(account models.AccountTarget)
	ItemProcessed(account, itemID string, err error)
	PageProcessed(account string, page, items, fresh int, hasMore bool)
	BatchFlushed(account string, records int)
	AccountFinished(stats AccountStats, err error)
}

type nopProgress struct{}

func (nopProgress) AccountStarted(models.AccountTarget)          {}
func (nopProgress) ItemProcessed(string, string, error)          {}
func (nopProgress) PageProcessed(string, int, int, int, bool)    {}
func (nopProgress) BatchFlushed(string, int)                     {}
func (nopProgress) AccountFinished(AccountStats, error)          {}
