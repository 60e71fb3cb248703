package crawler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notecrawler/pkg/checkpoint"
	errs "notecrawler/pkg/errors"
	"notecrawler/pkg/logger"
	"notecrawler/pkg/models"
	"notecrawler/pkg/storage"
)

var pku = models.AccountTarget{Name: "PKU", ID: "u1"}

func openStore(t *testing.T, dir string) *checkpoint.Store {
	t.Helper()
	store, err := checkpoint.Open(filepath.Join(dir, "processed_ids.json"), logger.NewNopLogger())
	require.NoError(t, err)
	return store
}

func testOptions(batchSize int) PaginatorOptions {
	return PaginatorOptions{
		BatchSize:       batchSize,
		MaxPages:        50,
		ItemDelay:       testItemDelay,
		PageDelay:       testPageDelay,
		ListingAttempts: 3,
		RetryDelay:      testRetryDelay,
	}
}

func newTestPaginator(api *fakeAPI, writer RecordWriter, store *checkpoint.Store, sleeper *sleepRecorder, opts PaginatorOptions) *Paginator {
	return NewPaginator(pku, opts, Deps{
		API:     api,
		Fetcher: newTestFetcher(api, sleeper),
		Store:   store,
		Writer:  writer,
		Logger:  logger.NewNopLogger(),
		Sleep:   sleeper.Sleep,
	})
}

func TestPaginatorTwoPageScenario(t *testing.T) {
	dir := t.TempDir()
	api := newFakeAPI()
	api.addPage("u1", "", "c1", true, "n1", "n2")
	api.addPage("u1", "c1", "", false, "n3")

	output, err := storage.NewManager(dir)
	require.NoError(t, err)
	store := openStore(t, dir)
	sleeper := &sleepRecorder{}

	p := newTestPaginator(api, output, store, sleeper, testOptions(2))
	assert.Equal(t, StateStart, p.State())

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, p.State())
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 3, stats.Listed)
	assert.Equal(t, 3, stats.Written)
	assert.Equal(t, 0, stats.Skipped)

	header, rows, err := output.ReadRows("PKU")
	require.NoError(t, err)
	assert.Equal(t, models.Columns, header)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"n1", "n2", "n3"}, []string{rows[0][0], rows[1][0], rows[2][0]})
	assert.Equal(t, "12000", rows[0][6])
	assert.Equal(t, "about n1", rows[0][4])

	reopened := openStore(t, dir)
	assert.Equal(t, 3, reopened.Len())
	for _, id := range []string{"n1", "n2", "n3"} {
		assert.True(t, reopened.Contains(id))
	}

	assert.Equal(t, 3, sleeper.count(testItemDelay))
	assert.Equal(t, 1, sleeper.count(testPageDelay))
	assert.Equal(t, 2, api.listCallsFor("u1"))
}

func TestPaginatorSkipsProcessedItems(t *testing.T) {
	api := newFakeAPI()
	api.addPage("u1", "", "", false, "n1", "n2", "n3")

	store := openStore(t, t.TempDir())
	store.Add("n2")
	writer := newRecordingWriter()
	sleeper := &sleepRecorder{}

	stats, err := newTestPaginator(api, writer, store, sleeper, testOptions(10)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"n1", "n3"}, writer.ids("PKU"))
	assert.Equal(t, 0, api.detailCallsFor("n2"))
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.Written)
	// skipped items cost no pause
	assert.Equal(t, 2, sleeper.count(testItemDelay))
}

func TestPaginatorSkipsDuplicatesWithinPass(t *testing.T) {
	api := newFakeAPI()
	api.addPage("u1", "", "c1", true, "n1", "n2")
	api.addPage("u1", "c1", "", false, "n2", "n3")

	writer := newRecordingWriter()
	stats, err := newTestPaginator(api, writer, openStore(t, t.TempDir()), &sleepRecorder{}, testOptions(10)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"n1", "n2", "n3"}, writer.ids("PKU"))
	assert.Equal(t, 1, api.detailCallsFor("n2"))
	assert.Equal(t, 1, stats.Skipped)
}

func TestPaginatorFlushBoundary(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		want      []int
	}{
		{name: "partial final batch", batchSize: 2, want: []int{2, 2, 1}},
		{name: "exact multiple", batchSize: 5, want: []int{5}},
		{name: "batch larger than crawl", batchSize: 10, want: []int{5}},
		{name: "one per batch", batchSize: 1, want: []int{1, 1, 1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.addPage("u1", "", "", false, "n1", "n2", "n3", "n4", "n5")
			writer := newRecordingWriter()

			stats, err := newTestPaginator(api, writer, openStore(t, t.TempDir()), &sleepRecorder{}, testOptions(tt.batchSize)).Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.want, writer.sizes("PKU"))
			assert.Equal(t, 5, stats.Written)
		})
	}
}

func TestPaginatorIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	api := newFakeAPI()
	api.addPage("u1", "", "c1", true, "n1", "n2")
	api.addPage("u1", "c1", "", false, "n3")
	writer := newRecordingWriter()

	_, err := newTestPaginator(api, writer, openStore(t, dir), &sleepRecorder{}, testOptions(2)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, api.totalDetailCalls())

	stats, err := newTestPaginator(api, writer, openStore(t, dir), &sleepRecorder{}, testOptions(2)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Written)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 3, api.totalDetailCalls())
	assert.Equal(t, []string{"n1", "n2", "n3"}, writer.ids("PKU"))
}

func TestPaginatorResumesAfterCancellation(t *testing.T) {
	dir := t.TempDir()
	api := newFakeAPI()
	api.addPage("u1", "", "", false, "n1", "n2", "n3", "n4", "n5")
	writer := newRecordingWriter()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// interrupt during the pause after the third item
	sleeper := &sleepRecorder{
		cancel: cancel,
		cancelAt: func(n int, d time.Duration) bool {
			return n == 3 && d == testItemDelay
		},
	}

	stats, err := newTestPaginator(api, writer, openStore(t, dir), sleeper, testOptions(2)).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// the partial batch is written by the shutdown flush
	assert.Equal(t, []int{2, 1}, writer.sizes("PKU"))
	assert.Equal(t, 3, stats.Written)

	resumed := openStore(t, dir)
	assert.Equal(t, 3, resumed.Len())

	stats, err = newTestPaginator(api, writer, resumed, &sleepRecorder{}, testOptions(2)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Written)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, []string{"n1", "n2", "n3", "n4", "n5"}, writer.ids("PKU"))
	for _, id := range []string{"n1", "n2", "n3", "n4", "n5"} {
		assert.Equal(t, 1, api.detailCallsFor(id), id)
	}
}

func TestPaginatorListingRateLimitExhausted(t *testing.T) {
	api := newFakeAPI()
	api.addPage("u1", "", "c1", true, "n1")
	api.failListing("u1", "c1", rateLimited(), rateLimited(), rateLimited())
	writer := newRecordingWriter()
	sleeper := &sleepRecorder{}

	stats, err := newTestPaginator(api, writer, openStore(t, t.TempDir()), sleeper, testOptions(10)).Run(context.Background())
	require.Error(t, err)

	assert.True(t, errors.Is(err, errs.ErrListingFetchFailed))
	assert.True(t, errs.IsRateLimited(err))
	assert.Equal(t, 4, api.listCallsFor("u1"))
	assert.Equal(t, 2, sleeper.count(testRetryDelay))
	// items of the first page are still written
	assert.Equal(t, []string{"n1"}, writer.ids("PKU"))
	assert.Equal(t, 1, stats.Pages)
}

func TestPaginatorListingRecoversFromRateLimit(t *testing.T) {
	api := newFakeAPI()
	api.addPage("u1", "", "", false, "n1")
	api.failListing("u1", "", rateLimited())
	writer := newRecordingWriter()
	sleeper := &sleepRecorder{}

	_, err := newTestPaginator(api, writer, openStore(t, t.TempDir()), sleeper, testOptions(10)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, api.listCallsFor("u1"))
	assert.Equal(t, 1, sleeper.count(testRetryDelay))
	assert.Equal(t, []string{"n1"}, writer.ids("PKU"))
}

func TestPaginatorListingAuthFailureIsNotRetried(t *testing.T) {
	api := newFakeAPI()
	api.failListing("u1", "", errs.New(errs.ErrorTypeAuth, 461, "verification required"))
	writer := newRecordingWriter()
	sleeper := &sleepRecorder{}

	_, err := newTestPaginator(api, writer, openStore(t, t.TempDir()), sleeper, testOptions(10)).Run(context.Background())
	require.Error(t, err)

	assert.True(t, errors.Is(err, errs.ErrListingFetchFailed))
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
	assert.Equal(t, 1, api.listCallsFor("u1"))
	assert.Empty(t, writer.ids("PKU"))
}

func TestPaginatorTermination(t *testing.T) {
	t.Run("max pages", func(t *testing.T) {
		api := newFakeAPI()
		api.addPage("u1", "", "c1", true, "n1")
		api.addPage("u1", "c1", "c2", true, "n2")
		api.addPage("u1", "c2", "", false, "n3")
		sleeper := &sleepRecorder{}

		opts := testOptions(10)
		opts.MaxPages = 2
		stats, err := newTestPaginator(api, newRecordingWriter(), openStore(t, t.TempDir()), sleeper, opts).Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, stats.Pages)
		assert.Equal(t, 2, api.listCallsFor("u1"))
		assert.Equal(t, 1, sleeper.count(testPageDelay))
	})

	t.Run("empty cursor", func(t *testing.T) {
		api := newFakeAPI()
		api.addPage("u1", "", "", true, "n1")

		stats, err := newTestPaginator(api, newRecordingWriter(), openStore(t, t.TempDir()), &sleepRecorder{}, testOptions(10)).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Pages)
		assert.Equal(t, 1, api.listCallsFor("u1"))
	})

	t.Run("empty listing", func(t *testing.T) {
		api := newFakeAPI()
		api.addPage("u1", "", "", false)
		writer := newRecordingWriter()

		stats, err := newTestPaginator(api, writer, openStore(t, t.TempDir()), &sleepRecorder{}, testOptions(10)).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Pages)
		assert.Empty(t, writer.sizes("PKU"))
	})
}

func TestPaginatorAbsorbsDetailFailure(t *testing.T) {
	api := newFakeAPI()
	api.addPage("u1", "", "", false, "n1", "n2", "n3")
	api.failDetail("n2", errs.New(errs.ErrorTypeServerError, 500, "upstream error"))
	writer := newRecordingWriter()
	store := openStore(t, t.TempDir())

	stats, err := newTestPaginator(api, writer, store, &sleepRecorder{}, testOptions(10)).Run(context.Background())
	require.NoError(t, err)

	records := writer.records("PKU")
	require.Len(t, records, 3)
	failed := records[1]
	assert.Equal(t, "n2", failed.ItemID)
	assert.Equal(t, "title n2", failed.Title)
	assert.Equal(t, int64(0), failed.LikeCount)
	assert.Equal(t, "", failed.PublishTime)
	assert.True(t, failed.Incomplete)

	assert.True(t, store.Contains("n2"))
	assert.Equal(t, 1, stats.DetailErrors)
	assert.Equal(t, 0, stats.Incomplete)
}

func TestPaginatorRetryIncomplete(t *testing.T) {
	dir := t.TempDir()
	api := newFakeAPI()
	api.addPage("u1", "", "", false, "n1", "n2", "n3")
	api.failDetail("n2", rateLimited(), rateLimited(), rateLimited())
	writer := newRecordingWriter()
	store := openStore(t, dir)

	opts := testOptions(10)
	opts.RetryIncomplete = true
	stats, err := newTestPaginator(api, writer, store, &sleepRecorder{}, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"n1", "n3"}, writer.ids("PKU"))
	assert.False(t, store.Contains("n2"))
	assert.True(t, store.IsIncomplete("n2"))
	assert.Equal(t, 1, stats.Incomplete)
	assert.FileExists(t, filepath.Join(dir, "processed_ids"+checkpoint.IncompleteSuffix))

	// the next run picks the incomplete item up again
	store = openStore(t, dir)
	assert.Equal(t, []string{"n2"}, store.IncompleteIDs())
	stats, err = newTestPaginator(api, writer, store, &sleepRecorder{}, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"n1", "n3", "n2"}, writer.ids("PKU"))
	assert.Equal(t, 1, stats.Written)
	assert.True(t, store.Contains("n2"))
	assert.Empty(t, store.IncompleteIDs())
	_, statErr := os.Stat(filepath.Join(dir, "processed_ids"+checkpoint.IncompleteSuffix))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPaginatorFlushInterval(t *testing.T) {
	api := newFakeAPI()
	api.addPage("u1", "", "", false, "n1", "n2", "n3")
	writer := newRecordingWriter()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sleeper := &sleepRecorder{}
	opts := testOptions(10)
	opts.FlushInterval = 90 * time.Second

	p := NewPaginator(pku, opts, Deps{
		API:     api,
		Fetcher: newTestFetcher(api, sleeper),
		Store:   openStore(t, t.TempDir()),
		Writer:  writer,
		Logger:  logger.NewNopLogger(),
		Sleep:   sleeper.Sleep,
		Now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
	})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, writer.sizes("PKU"))
}

func TestPaginatorWriteFailureKeepsIDsUnprocessed(t *testing.T) {
	api := newFakeAPI()
	api.addPage("u1", "", "", false, "n1", "n2")
	writer := newRecordingWriter()
	writer.err = errors.New("disk full")
	store := openStore(t, t.TempDir())

	_, err := newTestPaginator(api, writer, store, &sleepRecorder{}, testOptions(2)).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, store.Contains("n1"))
	assert.Equal(t, 0, store.Len())
	assert.True(t, store.Claim("n1"), "unwritten ids are released for other passes")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "start", StateStart.String())
	assert.Equal(t, "paging", StatePaging.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "state(7)", State(7).String())
}
