package fetchpool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tonscraper/pkg/logger"
)

// Job is one identifier whose detail must be fetched and stored
type Job struct {
	Identifier string
}

// Result is the terminal state of a Job
type Result struct {
	Job      Job
	Path     string
	Size     int
	Error    error
	Duration time.Duration
}

// Success reports whether the artifact was written
func (r Result) Success() bool { return r.Error == nil }

// DetailFetcher fetches the raw detail payload for an identifier
type DetailFetcher interface {
	FetchDetail(ctx context.Context, identifier string) (json.RawMessage, error)
}

// ArtifactWriter persists a payload for an identifier and returns where it went
type ArtifactWriter interface {
	Write(identifier string, payload json.RawMessage) (string, error)
}

// Pool runs a fixed number of workers, so at most that many fetches are in flight
type Pool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	stopOnce    sync.Once
	ctx         context.Context
	fetcher     DetailFetcher
	writer      ArtifactWriter
	logger      logger.Logger

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// New creates a pool of numWorkers workers. Workers use ctx for their upstream calls.
func New(ctx context.Context, numWorkers int, fetcher DetailFetcher, writer ArtifactWriter, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Pool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		fetcher:     fetcher,
		writer:      writer,
		logger:      log,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.logger.DebugWithFields("starting fetch pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues a job. It fails once the pool context is done.
func (p *Pool) Submit(job Job) error {
	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("fetch pool is shutting down: %w", err)
	}
	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("fetch pool is shutting down: %w", p.ctx.Err())
	}
}

// Stop closes the queue, waits for every queued job to finish, then closes Results.
// It must be called from the submitting goroutine after the last Submit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobQueue)
		p.wg.Wait()
		close(p.resultQueue)
	})
}

// Results yields one Result per accepted job and is closed by Stop
func (p *Pool) Results() <-chan Result {
	return p.resultQueue
}

// MaxInFlight returns the highest number of jobs processed at the same time
func (p *Pool) MaxInFlight() int { return int(p.maxInFlight.Load()) }

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	// Drain the queue even after cancellation so every accepted job gets a Result
	for job := range p.jobQueue {
		p.resultQueue <- p.process(job, id)
	}
}

func (p *Pool) process(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	if err := p.ctx.Err(); err != nil {
		result.Error = fmt.Errorf("not started: %w", err)
		return result
	}

	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		prev := p.maxInFlight.Load()
		if n <= prev || p.maxInFlight.CompareAndSwap(prev, n) {
			break
		}
	}

	payload, err := p.fetcher.FetchDetail(p.ctx, job.Identifier)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		p.logger.WarnWithFields("detail fetch failed", map[string]interface{}{
			"worker_id":  workerID,
			"identifier": job.Identifier,
			"error":      err.Error(),
			"duration":   result.Duration,
		})
		return result
	}
	result.Size = len(payload)

	path, err := p.writer.Write(job.Identifier, payload)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		p.logger.ErrorWithFields("failed to store detail", map[string]interface{}{
			"worker_id":  workerID,
			"identifier": job.Identifier,
			"error":      err.Error(),
		})
		return result
	}

	result.Path = path
	result.Duration = time.Since(start)
	p.logger.DebugWithFields("detail stored", map[string]interface{}{
		"worker_id":  workerID,
		"identifier": job.Identifier,
		"size":       result.Size,
		"duration":   result.Duration,
	})
	return result
}
