package checkpoint

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	errs "tonscraper/pkg/errors"
	"tonscraper/pkg/logger"
)

const currentVersion = 1

// Checkpoint is the persisted harvest position
type Checkpoint struct {
	Cursor         string    `json:"cursor"`
	PagesProcessed int64     `json:"pages_processed"`
	RecordsSaved   int64     `json:"records_saved"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int       `json:"version"`
}

// Manager reads and replaces the cursor file. The file is only ever replaced whole.
type Manager struct {
	mu     sync.Mutex
	path   string
	logger logger.Logger
}

// NewManager returns a Manager for the cursor file at path
func NewManager(path string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{path: path, logger: log}
}

// Path returns the cursor file location
func (m *Manager) Path() string { return m.path }

// Load returns the persisted cursor. ok is false when there is no cursor yet,
// meaning the harvest starts from the beginning.
func (m *Manager) Load() (cursor string, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.read()
	if err != nil || cp == nil {
		return "", false, err
	}
	return cp.Cursor, cp.Cursor != "", nil
}

// State returns the full checkpoint record, or nil when none exists
func (m *Manager) State() (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read()
}

// Save persists cursor and keeps the existing counters
func (m *Manager) Save(cursor string) error {
	return m.Advance(cursor, 0)
}

// Advance persists cursor as the position after one fully processed page and adds
// saved to the running record count
func (m *Manager) Advance(cursor string, saved int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.read()
	if err != nil {
		return &errs.CursorIOError{Cursor: cursor, Op: "save", Err: err}
	}
	now := time.Now().UTC()
	if cp == nil {
		cp = &Checkpoint{CreatedAt: now}
	}
	cp.Cursor = cursor
	cp.PagesProcessed++
	cp.RecordsSaved += int64(saved)
	cp.UpdatedAt = now
	cp.Version = currentVersion

	if err := m.write(cp); err != nil {
		return &errs.CursorIOError{Cursor: cursor, Op: "save", Err: err}
	}

	m.logger.DebugWithFields("cursor saved", map[string]interface{}{
		"cursor":          cursor,
		"pages_processed": cp.PagesProcessed,
		"records_saved":   cp.RecordsSaved,
	})
	return nil
}

// Reset removes the cursor file so the next run starts from the beginning.
// The previous file is copied to <path>.backup first.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.backup(); err != nil {
		return &errs.CursorIOError{Op: "backup", Err: err}
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return &errs.CursorIOError{Op: "reset", Err: err}
	}

	m.logger.InfoWithFields("cursor reset", map[string]interface{}{"path": m.path})
	return nil
}

// Info summarises the checkpoint for status output. It returns nil when no checkpoint exists.
func (m *Manager) Info() (map[string]interface{}, error) {
	cp, err := m.State()
	if err != nil || cp == nil {
		return nil, err
	}

	return map[string]interface{}{
		"cursor":          cp.Cursor,
		"pages_processed": cp.PagesProcessed,
		"records_saved":   cp.RecordsSaved,
		"created_at":      cp.CreatedAt,
		"updated_at":      cp.UpdatedAt,
		"age":             time.Since(cp.UpdatedAt).Round(time.Second),
	}, nil
}

func (m *Manager) read() (*Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &errs.CursorIOError{Op: "load", Err: err}
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &errs.CursorIOError{Op: "decode", Err: err}
	}
	return &cp, nil
}

func (m *Manager) write(cp *Checkpoint) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".cursor-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (m *Manager) backup() error {
	src, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()

	dst, err := os.Create(m.path + ".backup")
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
