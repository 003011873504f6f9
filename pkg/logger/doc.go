// Package logger provides the structured logging interface used across tonscraper.
//
// It wraps zerolog. Fields added through WithField and WithFields live on a
// child zerolog context, so a logger scoped to a run or a page can be handed
// down to workers without re-encoding its fields on every event.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("run_id", runID)
//	log.InfoWithFields("page fetched", map[string]interface{}{
//	    "identifiers": 100,
//	    "has_next":    true,
//	})
//
// Console output is colourised; when a log file is configured every event is
// also appended to it as a JSON line. Tests use NewTestLogger to capture
// messages or NewNopLogger to discard them.
package logger
