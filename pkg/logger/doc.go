// Package logger provides the structured logging interface used across the
// crawler.
//
// It wraps zerolog. Console output is coloured and goes to stderr; when a log
// file is configured every event is also appended to it as a JSON line.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("account", "pku")
//	log.Info("Account crawl started")
//
// The Log* helpers give the crawl pipeline a consistent field vocabulary
// (account, item_id, page, attempt). Tests use NewNopLogger or NewTestLogger,
// which records messages for assertions.
package logger
