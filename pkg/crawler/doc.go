// Package crawler provides the core crawl loop for per-account note listings.
//
// The crawler package orchestrates a crawl run, coordinating the upstream
// API client, the checkpoint store and the CSV output.
//
// Architecture:
//
// The Orchestrator iterates the configured accounts, sequentially or on a
// small worker pool, and runs one Paginator per account. A Paginator:
//   - Walks the listing page by page through an explicit state machine
//   - Skips items whose id is already in the checkpoint
//   - Enriches new items through the Fetcher
//   - Buffers records and flushes them in batches
//
// Usage:
//
//	orch, err := crawler.NewOrchestrator(cfg, crawler.Deps{
//	    API:    client,
//	    Store:  store,
//	    Writer: output,
//	})
//	if err != nil {
//	    return err
//	}
//
//	summary, err := orch.Run(ctx, crawler.Targets(cfg.Accounts))
//
// Rate Limiting:
//
// A rate limited detail call is retried after a fixed pause (30 seconds by
// default), three attempts in total. Listing calls get the same treatment;
// a listing that stays rate limited ends the account's pass.
//
// Persistence:
//
// A flush appends the batch to the account's CSV and only then records its
// ids in the checkpoint. Whatever is buffered is flushed when a pass ends,
// fails or is cancelled, so an interrupted run resumes where it stopped.
package crawler
