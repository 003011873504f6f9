package harvester

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tonscraper/pkg/filter"
	"tonscraper/pkg/toncenter"
)

// PageSource lists identifiers one page at a time
type PageSource interface {
	FetchPage(ctx context.Context, pageSize int, cursor string) (*toncenter.Page, error)
}

// DetailFetcher fetches the raw detail payload of one identifier
type DetailFetcher interface {
	FetchDetail(ctx context.Context, identifier string) (json.RawMessage, error)
}

// Classifier is the pre-filter deciding which identifiers are worth a detail fetch
type Classifier interface {
	Classify(identifier string) filter.Decision
}

// ArtifactStore persists detail payloads, one file per identifier
type ArtifactStore interface {
	Exists(identifier string) (bool, error)
	Write(identifier string, payload json.RawMessage) (string, error)
}

// CursorStore persists the pagination position between iterations
type CursorStore interface {
	Load() (cursor string, ok bool, err error)
	Advance(cursor string, saved int) error
}

// Recorder receives harvest events, typically for metrics
type Recorder interface {
	ObserveOutcome(outcome string)
	ObserveFilterSkip(reason string)
	ObserveIteration(d time.Duration, err error, cursorAdvanced bool)
	DetailStarted()
	DetailFinished()
}

type nopRecorder struct{}

func (nopRecorder) ObserveOutcome(string) {}
func (nopRecorder) ObserveFilterSkip(string) {}
func (nopRecorder) ObserveIteration(time.Duration, error, bool) {}
func (nopRecorder) DetailStarted() {}
func (nopRecorder) DetailFinished() {}

// guardedFetcher refuses to start fetches once the iteration context is done,
// and reports in-flight fetches to the recorder
type guardedFetcher struct {
	DetailFetcher
	parent context.Context
	rec    Recorder
}

func (g guardedFetcher) FetchDetail(ctx context.Context, identifier string) (json.RawMessage, error) {
	if err := g.parent.Err(); err != nil {
		return nil, fmt.Errorf("not started: %w", err)
	}
	g.rec.DetailStarted()
	defer g.rec.DetailFinished()
	return g.DetailFetcher.FetchDetail(ctx, identifier)
}
