// Package harvester drives the account harvest, one page of identifiers per iteration.
//
// An iteration reads the persisted cursor, fetches one page from the source, runs every
// identifier through the pre-filter, skips identifiers whose artifact already exists and
// fetches the rest on a bounded worker pool. Only when every identifier of the page has
// reached a terminal outcome is the page's end cursor persisted, so a crash at any point
// re-processes at most one page and never loses an identifier.
//
// Outcomes:
//
//   - saved: the detail was fetched and written
//   - skipped_existing: an artifact for the identifier is already on disk
//   - skipped_by_filter: the pre-filter rejected the identifier, with a reason
//   - failed: the detail fetch or the write failed after retries
//
// Per-identifier failures never abort a page. A page fetch failure aborts the iteration
// and a cursor read or write failure ends the run.
//
// Usage:
//
//	h, err := harvester.New(harvester.OptionsFromConfig(cfg.Harvest),
//	    client, client, filter.New(cfg.Filter, log), store, cursor, log)
//	if err != nil {
//	    log.Fatal(err.Error())
//	}
//	result, err := h.Run(ctx)
//
// Shutdown:
//
// Cancelling the context stops new pages and new fetches. Fetches already running get
// Options.ShutdownGrace to finish; artifacts and the cursor file are written atomically,
// so a forced exit after that leaves no partial files behind.
package harvester
