// Package checkpoint persists the set of processed note ids.
//
// The set is global: one JSON array file covers every account and every run,
// so an id written once is never fetched again. The file is rewritten
// atomically after each batch flush. When incomplete items are being retried,
// their ids live in a "<name>.incomplete.json" sidecar until a later run
// enriches them.
package checkpoint
