package fetchpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tonscraper/pkg/logger"
)

// mockFetcher tracks how many fetches overlap
type mockFetcher struct {
	delay    time.Duration
	failFor  map[string]error
	calls    atomic.Int32
	current  atomic.Int32
	peak     atomic.Int32
	blockCtx bool
}

func (m *mockFetcher) FetchDetail(ctx context.Context, identifier string) (json.RawMessage, error) {
	m.calls.Add(1)
	n := m.current.Add(1)
	defer m.current.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if m.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if err := m.failFor[identifier]; err != nil {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"address":%q}`, identifier)), nil
}

type mockWriter struct {
	mu      sync.Mutex
	saved   map[string]json.RawMessage
	failFor map[string]error
}

func newMockWriter() *mockWriter {
	return &mockWriter{saved: make(map[string]json.RawMessage)}
}

func (m *mockWriter) Write(identifier string, payload json.RawMessage) (string, error) {
	if err := m.failFor[identifier]; err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[identifier] = payload
	return "/data/" + identifier, nil
}

func (m *mockWriter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func runJobs(t *testing.T, pool *Pool, ids []string) []Result {
	t.Helper()
	pool.Start()

	go func() {
		for _, id := range ids {
			if err := pool.Submit(Job{Identifier: id}); err != nil {
				break
			}
		}
		pool.Stop()
	}()

	var results []Result
	for r := range pool.Results() {
		results = append(results, r)
	}
	return results
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("0:%02d", i)
	}
	return out
}

func TestPoolProcessesEveryJob(t *testing.T) {
	fetcher := &mockFetcher{}
	writer := newMockWriter()
	pool := New(context.Background(), 3, fetcher, writer, logger.NewNopLogger())

	results := runJobs(t, pool, ids(20))

	require.Len(t, results, 20)
	for _, r := range results {
		assert.True(t, r.Success(), r.Job.Identifier)
		assert.Equal(t, "/data/"+r.Job.Identifier, r.Path)
		assert.Positive(t, r.Size)
	}
	assert.Equal(t, 20, writer.count())
	assert.Equal(t, int32(20), fetcher.calls.Load())
}

// Ten pending fetches with a limit of three never overlap more than three at a time
func TestPoolBoundsInFlightFetches(t *testing.T) {
	fetcher := &mockFetcher{delay: 30 * time.Millisecond}
	pool := New(context.Background(), 3, fetcher, newMockWriter(), logger.NewNopLogger())

	results := runJobs(t, pool, ids(10))

	require.Len(t, results, 10)
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(3))
	assert.LessOrEqual(t, pool.MaxInFlight(), 3)
	// The pool is actually concurrent
	assert.Greater(t, fetcher.peak.Load(), int32(1))
	assert.GreaterOrEqual(t, pool.MaxInFlight(), int(fetcher.peak.Load()))
}

func TestPoolRecordsFailuresWithoutStopping(t *testing.T) {
	fetchErr := errors.New("detail unavailable")
	writeErr := errors.New("disk full")
	fetcher := &mockFetcher{failFor: map[string]error{"0:01": fetchErr}}
	writer := newMockWriter()
	writer.failFor = map[string]error{"0:02": writeErr}

	pool := New(context.Background(), 2, fetcher, writer, logger.NewNopLogger())
	results := runJobs(t, pool, ids(5))

	require.Len(t, results, 5)
	byID := make(map[string]Result)
	for _, r := range results {
		byID[r.Job.Identifier] = r
	}
	assert.ErrorIs(t, byID["0:01"].Error, fetchErr)
	assert.ErrorIs(t, byID["0:02"].Error, writeErr)
	assert.Equal(t, 3, writer.count())
}

func TestPoolCancellationStillYieldsResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &mockFetcher{blockCtx: true}
	pool := New(ctx, 2, fetcher, newMockWriter(), logger.NewNopLogger())

	pool.Start()
	for _, id := range ids(2) {
		require.NoError(t, pool.Submit(Job{Identifier: id}))
	}

	var results []Result
	done := make(chan struct{})
	go func() {
		for r := range pool.Results() {
			results = append(results, r)
		}
		close(done)
	}()

	cancel()
	assert.Error(t, pool.Submit(Job{Identifier: "0:late"}))
	pool.Stop()
	<-done

	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
}
