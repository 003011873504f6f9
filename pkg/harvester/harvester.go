package harvester

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"tonscraper/internal/fetchpool"
	"tonscraper/pkg/config"
	"tonscraper/pkg/logger"
	"tonscraper/pkg/toncenter"
)

const (
	MinConcurrency = 1
	MaxConcurrency = 10
)

// Options controls pagination, concurrency and the run loop
type Options struct {
	PageSize      int
	MaxConcurrent int
	// MaxIterations stops Run after that many iterations; 0 means until exhausted
	MaxIterations  int
	IterationDelay time.Duration
	// ShutdownGrace is how long in-flight fetches may keep running after cancellation
	ShutdownGrace time.Duration
}

// OptionsFromConfig maps the harvest config section to Options
func OptionsFromConfig(cfg config.HarvestConfig) Options {
	return Options{
		PageSize:       cfg.PageSize,
		MaxConcurrent:  cfg.MaxConcurrent,
		MaxIterations:  cfg.MaxIterations,
		IterationDelay: cfg.IterationDelay,
		ShutdownGrace:  cfg.ShutdownGrace,
	}
}

// Harvester drives page iterations: fetch a page, filter it, fetch and store the
// details of new identifiers, then advance the cursor.
type Harvester struct {
	opts       Options
	source     PageSource
	fetcher    DetailFetcher
	classifier Classifier
	store      ArtifactStore
	cursor     CursorStore
	recorder   Recorder
	logger     logger.Logger
	newRunID   func() string
}

// New validates opts and wires the collaborators
func New(opts Options, source PageSource, fetcher DetailFetcher, classifier Classifier,
	store ArtifactStore, cursor CursorStore, log logger.Logger) (*Harvester, error) {
	if opts.MaxConcurrent < MinConcurrency || opts.MaxConcurrent > MaxConcurrency {
		return nil, fmt.Errorf("max concurrent must be between %d and %d, got %d",
			MinConcurrency, MaxConcurrency, opts.MaxConcurrent)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = toncenter.DefaultPageSize
	}
	if source == nil || fetcher == nil || classifier == nil || store == nil || cursor == nil {
		return nil, errors.New("harvester requires a source, fetcher, classifier, store and cursor")
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Harvester{
		opts:       opts,
		source:     source,
		fetcher:    fetcher,
		classifier: classifier,
		store:      store,
		cursor:     cursor,
		recorder:   nopRecorder{},
		logger:     log,
		newRunID:   func() string { return uuid.New().String() },
	}, nil
}

// SetRecorder attaches a metrics recorder
func (h *Harvester) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	h.recorder = r
}

// Options returns the effective options
func (h *Harvester) Options() Options { return h.opts }

// IterationResult describes one processed page
type IterationResult struct {
	RunID string
	// Cursor is the position the page was fetched from, empty for the start
	Cursor         string
	Summary        BatchSummary
	HasNextPage    bool
	NextCursor     string
	CursorAdvanced bool
	// PeakInFlight is the highest number of detail fetches that overlapped
	PeakInFlight int
	Duration     time.Duration
}

// RunIteration processes one page. The cursor is advanced only after every identifier
// of the page reached a terminal outcome. A page fetch failure or a cursor failure is
// returned as an error with the cursor untouched; per-identifier failures only show up
// in the summary. The result is never nil.
func (h *Harvester) RunIteration(ctx context.Context) (res *IterationResult, err error) {
	start := time.Now()
	res = &IterationResult{RunID: h.newRunID()}
	log := h.logger.WithField("run_id", res.RunID)

	defer func() {
		res.Duration = time.Since(start)
		h.recorder.ObserveIteration(res.Duration, err, res.CursorAdvanced)
	}()

	cursor, _, err := h.cursor.Load()
	if err != nil {
		log.WithError(err).Error("Failed to read cursor")
		return res, err
	}
	res.Cursor = cursor

	log.DebugWithFields("Fetching page", map[string]interface{}{
		"cursor":    cursor,
		"page_size": h.opts.PageSize,
	})

	page, err := h.source.FetchPage(ctx, h.opts.PageSize, cursor)
	if err != nil {
		log.WithError(err).WithField("cursor", cursor).Error("Page fetch failed, iteration aborted")
		return res, err
	}
	res.HasNextPage = page.HasNextPage
	res.NextCursor = page.NextCursor

	if len(page.Identifiers) == 0 && !page.HasNextPage {
		log.Info("Source exhausted, nothing to process")
		return res, nil
	}

	outcomes, peak, err := h.processPage(ctx, log, page.Identifiers)
	res.PeakInFlight = peak
	res.Summary = Summarize(outcomes)
	for _, o := range outcomes {
		h.recorder.ObserveOutcome(string(o.Outcome))
		if o.Outcome == OutcomeSkippedByFilter {
			h.recorder.ObserveFilterSkip(o.Reason)
		}
	}
	if err != nil {
		log.WarnWithFields("Iteration interrupted, cursor not advanced", map[string]interface{}{
			"cursor": cursor,
			"failed": res.Summary.Failed,
		})
		return res, err
	}

	if page.NextCursor != "" {
		if err := h.cursor.Advance(page.NextCursor, res.Summary.Successful); err != nil {
			log.WithError(err).Error("Failed to persist cursor")
			return res, err
		}
		res.CursorAdvanced = true
	}

	log.InfoWithFields("Iteration complete", map[string]interface{}{
		"total":             res.Summary.Total,
		"saved":             res.Summary.Successful,
		"failed":            res.Summary.Failed,
		"skipped_existing":  res.Summary.SkippedExisting,
		"skipped_by_filter": res.Summary.SkippedByFilter,
		"peak_in_flight":    res.PeakInFlight,
		"has_next_page":     res.HasNextPage,
		"next_cursor":       res.NextCursor,
		"duration":          time.Since(start),
	})
	return res, nil
}

// processPage returns one outcome per identifier, in page order. The error is non-nil
// only when cancellation left some identifier failed, in which case the page must be
// processed again.
func (h *Harvester) processPage(ctx context.Context, log logger.Logger, identifiers []string) ([]ProcessingOutcome, int, error) {
	outcomes := make([]ProcessingOutcome, len(identifiers))
	index := make(map[string]int)
	var pending []string
	var repeats []int

	for i, id := range identifiers {
		outcomes[i].Identifier = id

		if d := h.classifier.Classify(id); !d.Keep {
			outcomes[i].Outcome = OutcomeSkippedByFilter
			outcomes[i].Reason = d.Reason
			log.DebugWithFields("Identifier skipped by filter", map[string]interface{}{
				"identifier": id,
				"reason":     d.Reason,
			})
			continue
		}

		// A repeated identifier within one page is fetched once; later copies
		// take the first copy's outcome once it is known
		if _, seen := index[id]; seen {
			repeats = append(repeats, i)
			continue
		}
		index[id] = i

		exists, err := h.store.Exists(id)
		if err != nil {
			markFailed(&outcomes[i], err)
			continue
		}
		if exists {
			outcomes[i].Outcome = OutcomeSkippedExisting
			continue
		}
		pending = append(pending, id)
	}

	var peak int
	if len(pending) > 0 {
		peak = h.dispatch(ctx, log, pending, index, outcomes)
	}
	for _, i := range repeats {
		resolveRepeat(&outcomes[i], outcomes[index[outcomes[i].Identifier]])
	}

	if ctx.Err() != nil {
		for _, o := range outcomes {
			if o.Outcome == OutcomeFailed {
				return outcomes, peak, ctx.Err()
			}
		}
	}
	return outcomes, peak, nil
}

// dispatch runs the pending fetches on a bounded pool and waits for all of them.
// It returns the peak number of overlapping fetches.
func (h *Harvester) dispatch(ctx context.Context, log logger.Logger, pending []string, index map[string]int, outcomes []ProcessingOutcome) int {
	workCtx, stop := h.workContext(ctx, log)
	defer stop()

	fetcher := guardedFetcher{DetailFetcher: h.fetcher, parent: ctx, rec: h.recorder}
	pool := fetchpool.New(workCtx, h.opts.MaxConcurrent, fetcher, h.store, log)
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, id := range pending {
			if ctx.Err() != nil {
				return
			}
			if err := pool.Submit(fetchpool.Job{Identifier: id}); err != nil {
				return
			}
		}
	}()

	done := make(map[string]bool, len(pending))
	for r := range pool.Results() {
		o := &outcomes[index[r.Job.Identifier]]
		done[r.Job.Identifier] = true
		if r.Success() {
			o.Outcome = OutcomeSaved
			o.Path = r.Path
			continue
		}
		markFailed(o, r.Error)
	}

	for _, id := range pending {
		if !done[id] {
			markFailed(&outcomes[index[id]], fmt.Errorf("not dispatched: %w", ctx.Err()))
		}
	}
	return pool.MaxInFlight()
}

// workContext detaches in-flight fetches from ctx: they are cancelled only once
// ShutdownGrace has elapsed after ctx is done.
func (h *Harvester) workContext(ctx context.Context, log logger.Logger) (context.Context, func()) {
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	grace := h.opts.ShutdownGrace

	stopAfter := context.AfterFunc(ctx, func() {
		if grace <= 0 {
			cancel()
			return
		}
		log.WarnWithFields("Shutdown requested, waiting for in-flight fetches", map[string]interface{}{
			"grace": grace,
		})
		timer := time.AfterFunc(grace, cancel)
		context.AfterFunc(workCtx, func() { timer.Stop() })
	})

	return workCtx, func() {
		stopAfter()
		cancel()
	}
}

// resolveRepeat sets the outcome of a later copy of an identifier from the first
// copy. It is SkippedExisting only when the artifact is on disk.
func resolveRepeat(o *ProcessingOutcome, first ProcessingOutcome) {
	switch first.Outcome {
	case OutcomeSaved, OutcomeSkippedExisting:
		o.Outcome = OutcomeSkippedExisting
		o.Path = first.Path
	default:
		o.Outcome = first.Outcome
		o.Reason = first.Reason
		o.Error = first.Error
	}
}

func markFailed(o *ProcessingOutcome, err error) {
	o.Outcome = OutcomeFailed
	o.Error = err.Error()
}

// StopReason tells why Run returned
type StopReason string

const (
	StopExhausted       StopReason = "exhausted"
	StopCursorUnchanged StopReason = "cursor_unchanged"
	StopMaxIterations   StopReason = "max_iterations"
	StopCancelled       StopReason = "cancelled"
)

// RunResult aggregates every iteration of a Run
type RunResult struct {
	Iterations    int
	PagesAdvanced int
	Summary       BatchSummary
	StopReason    StopReason
}

// Run repeats RunIteration until the source has no next page, the persisted cursor
// stops moving, MaxIterations is reached or ctx is cancelled. Cancellation is a clean
// stop; page fetch and cursor failures end the run with an error.
func (h *Harvester) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}

	for {
		if ctx.Err() != nil {
			result.StopReason = StopCancelled
			return result, nil
		}
		if h.opts.MaxIterations > 0 && result.Iterations >= h.opts.MaxIterations {
			result.StopReason = StopMaxIterations
			return result, nil
		}

		res, err := h.RunIteration(ctx)
		result.Iterations++
		result.Summary.Merge(res.Summary)
		if res.CursorAdvanced {
			result.PagesAdvanced++
		}
		if err != nil {
			if ctx.Err() != nil && isCancellation(err) {
				result.StopReason = StopCancelled
				return result, nil
			}
			return result, err
		}

		if !res.HasNextPage {
			result.StopReason = StopExhausted
			return result, nil
		}

		next, ok, err := h.cursor.Load()
		if err != nil {
			return result, err
		}
		if !ok || next == res.Cursor {
			h.logger.WarnWithFields("Cursor did not advance, stopping", map[string]interface{}{
				"cursor": res.Cursor,
			})
			result.StopReason = StopCursorUnchanged
			return result, nil
		}

		if h.opts.IterationDelay > 0 {
			select {
			case <-ctx.Done():
				result.StopReason = StopCancelled
				return result, nil
			case <-time.After(h.opts.IterationDelay):
			}
		}
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
