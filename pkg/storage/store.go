package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	errs "tonscraper/pkg/errors"
)

// Store writes one JSON artifact per identifier into a hash sharded directory tree.
// The depth is fixed for the lifetime of a Store.
type Store struct {
	root     string
	depth    int
	prefixes []string
	written  atomic.Int64
}

// NewStore creates the root directory and returns a Store using depth shard levels
func NewStore(root string, depth int, cosmeticPrefixes []string) (*Store, error) {
	if depth < MinDepth || depth > MaxDepth {
		return nil, fmt.Errorf("storage depth %d out of range [%d,%d]", depth, MinDepth, MaxDepth)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &Store{
		root:     root,
		depth:    depth,
		prefixes: append([]string(nil), cosmeticPrefixes...),
	}, nil
}

// Root returns the storage root directory
func (s *Store) Root() string { return s.root }

// Depth returns the number of shard directory levels
func (s *Store) Depth() int { return s.depth }

// Written returns how many artifacts this Store has written
func (s *Store) Written() int64 { return s.written.Load() }

// Path returns the artifact path for identifier
func (s *Store) Path(identifier string) string {
	dir := leafDir(s.root, ShardPath(identifier, s.depth, s.prefixes...))
	return filepath.Join(dir, FileName(identifier))
}

// Exists reports whether the artifact for identifier is present. It never creates directories.
func (s *Store) Exists(identifier string) (bool, error) {
	path := s.Path(identifier)
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, &errs.StorageError{Identifier: identifier, Op: "stat", Path: path, Err: err}
	}
}

// Write pretty prints payload and stores it for identifier. The file is written to a
// temporary name in the leaf directory, synced, then renamed into place.
func (s *Store) Write(identifier string, payload json.RawMessage) (string, error) {
	path := s.Path(identifier)
	fail := func(op string, err error) (string, error) {
		return "", &errs.StorageError{Identifier: identifier, Op: op, Path: path, Err: err}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		return fail("encode", err)
	}
	pretty.WriteByte('\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail("mkdir", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fail("create", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(pretty.Bytes()); err != nil {
		tmp.Close()
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("close", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fail("chmod", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fail("rename", err)
	}
	committed = true

	s.written.Add(1)
	return path, nil
}
