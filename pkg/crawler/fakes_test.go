package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	errs "notecrawler/pkg/errors"
	"notecrawler/pkg/models"
	"notecrawler/pkg/xhs"
)

const (
	testItemDelay  = 10 * time.Millisecond
	testPageDelay  = 20 * time.Millisecond
	testRetryDelay = 30 * time.Second
)

func rateLimited() error {
	return errs.New(errs.ErrorTypeRateLimit, xhs.CodeRateLimited, "too many requests")
}

// fakeAPI serves listing pages keyed by user id and cursor, and detail
// cards keyed by note id. Queued errors are returned before the data.
type fakeAPI struct {
	mu sync.Mutex

	pages   map[string]map[string]*xhs.NotesPage
	cards   map[string]*xhs.NoteCard
	listErr map[string][]error
	cardErr map[string][]error

	listCalls   map[string]int
	detailCalls map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages:       make(map[string]map[string]*xhs.NotesPage),
		cards:       make(map[string]*xhs.NoteCard),
		listErr:     make(map[string][]error),
		cardErr:     make(map[string][]error),
		listCalls:   make(map[string]int),
		detailCalls: make(map[string]int),
	}
}

// addPage registers the page served for userID at cursor. Every note gets
// a detail card with a like count derived from its position.
func (f *fakeAPI) addPage(userID, cursor, next string, hasMore bool, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages[userID] == nil {
		f.pages[userID] = make(map[string]*xhs.NotesPage)
	}
	page := &xhs.NotesPage{Cursor: next, HasMore: hasMore}
	for _, id := range ids {
		page.Stubs = append(page.Stubs, models.ItemStub{ItemID: id, SecondaryToken: "tok-" + id, Type: "normal", Title: "title " + id})
		if _, ok := f.cards[id]; !ok {
			f.cards[id] = &xhs.NoteCard{
				NoteID: id,
				Type:   "normal",
				Title:  "title " + id,
				Desc:   "about\n" + id,
				Time:   "1700000000000",
				InteractInfo: xhs.InteractInfo{
					LikedCount:     xhs.FlexString(fmt.Sprintf("%d", len(f.cards)+1)),
					CollectedCount: "1.2万",
				},
			}
		}
	}
	f.pages[userID][cursor] = page
}

func (f *fakeAPI) failListing(userID, cursor string, queued ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := userID + "|" + cursor
	f.listErr[key] = append(f.listErr[key], queued...)
}

func (f *fakeAPI) failDetail(id string, queued ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cardErr[id] = append(f.cardErr[id], queued...)
}

func (f *fakeAPI) UserNotes(ctx context.Context, userID, cursor string) (*xhs.NotesPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls[userID]++
	key := userID + "|" + cursor
	if queued := f.listErr[key]; len(queued) > 0 {
		f.listErr[key] = queued[1:]
		return nil, queued[0]
	}
	page, ok := f.pages[userID][cursor]
	if !ok {
		return nil, errs.New(errs.ErrorTypeNotFound, 404, "no page %q for %s", cursor, userID)
	}
	return page, nil
}

func (f *fakeAPI) NoteDetail(ctx context.Context, noteID, xsecToken string) (*xhs.NoteCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls[noteID]++
	if queued := f.cardErr[noteID]; len(queued) > 0 {
		f.cardErr[noteID] = queued[1:]
		return nil, queued[0]
	}
	card, ok := f.cards[noteID]
	if !ok {
		return nil, errs.New(errs.ErrorTypeNotFound, 0, "note %s has no detail card", noteID)
	}
	copied := *card
	return &copied, nil
}

func (f *fakeAPI) totalDetailCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.detailCalls {
		n += c
	}
	return n
}

func (f *fakeAPI) detailCallsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[id]
}

func (f *fakeAPI) listCallsFor(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[userID]
}

// sleepRecorder records every requested pause without waiting. When
// cancelAt matches a pause, cancel is called before returning.
type sleepRecorder struct {
	mu       sync.Mutex
	calls    []time.Duration
	cancelAt func(n int, d time.Duration) bool
	cancel   context.CancelFunc
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	n := len(s.calls)
	s.mu.Unlock()

	if s.cancelAt != nil && s.cancelAt(n, d) && s.cancel != nil {
		s.cancel()
	}
	return ctx.Err()
}

func (s *sleepRecorder) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == d {
			n++
		}
	}
	return n
}

// recordingWriter keeps every appended batch in memory
type recordingWriter struct {
	mu      sync.Mutex
	batches map[string][][]models.ItemRecord
	err     error
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{batches: make(map[string][][]models.ItemRecord)}
}

func (w *recordingWriter) Append(account string, records []models.ItemRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	copied := make([]models.ItemRecord, len(records))
	copy(copied, records)
	w.batches[account] = append(w.batches[account], copied)
	return nil
}

func (w *recordingWriter) sizes(account string) []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []int
	for _, b := range w.batches[account] {
		out = append(out, len(b))
	}
	return out
}

func (w *recordingWriter) ids(account string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, b := range w.batches[account] {
		for _, r := range b {
			out = append(out, r.ItemID)
		}
	}
	return out
}

func (w *recordingWriter) records(account string) []models.ItemRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.ItemRecord
	for _, b := range w.batches[account] {
		out = append(out, b...)
	}
	return out
}
