package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "tonscraper/pkg/errors"
)

const testIdentifier = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

func TestShardPathDeterministic(t *testing.T) {
	for depth := MinDepth; depth <= MaxDepth; depth++ {
		first := ShardPath(testIdentifier, depth, "0:")
		second := ShardPath(testIdentifier, depth, "0:")
		assert.Equal(t, first, second)
		require.Len(t, first, depth)
		for _, seg := range first {
			assert.Len(t, seg, 2)
		}
	}

	// Deeper paths extend shallower ones
	assert.Equal(t, ShardPath(testIdentifier, 2), ShardPath(testIdentifier, 4)[:2])
}

func TestShardPathStripsCosmeticPrefix(t *testing.T) {
	bare := strings.TrimPrefix(testIdentifier, "0:")

	assert.Equal(t, ShardPath(bare, 3), ShardPath(testIdentifier, 3, "0:"))
	assert.NotEqual(t, ShardPath(bare, 3), ShardPath(testIdentifier, 3))
}

func TestShardPathClampsDepth(t *testing.T) {
	assert.Len(t, ShardPath(testIdentifier, 0), MinDepth)
	assert.Len(t, ShardPath(testIdentifier, 12), MaxDepth)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "inspect_0_abc.json", FileName("0:abc"))
	assert.Equal(t, "inspect_-1_a_b_c.json", FileName("-1:a/b\\c"))
}

func TestOptimalDepth(t *testing.T) {
	tests := []struct {
		expected int64
		want     int
	}{
		{0, 2},
		{1000, 2},
		{65_536_000, 2},
		{65_536_001, 3},
		{100_000_000, 3},
		{16_777_216_000, 3},
		{16_777_216_001, 4},
		{capacity(6), 6},
		{capacity(6) + 1, 6},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, OptimalDepth(tt.expected), "expected files %d", tt.expected)
	}

	// Smallest depth satisfying the bound
	for _, n := range []int64{1, 70_000_000, 5_000_000_000, 20_000_000_000_000} {
		d := OptimalDepth(n)
		assert.LessOrEqual(t, n, capacity(d))
		if d > MinDepth {
			assert.Greater(t, n, capacity(d-1))
		}
	}

	assert.False(t, DepthSaturated(capacity(6)))
	assert.True(t, DepthSaturated(capacity(6)+1))
}

func TestStoreWriteAndExists(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root, 3, []string{"0:"})
	require.NoError(t, err)

	exists, err := store.Exists(testIdentifier)
	require.NoError(t, err)
	assert.False(t, exists)

	// Exists must not create the shard chain
	segments := ShardPath(testIdentifier, 3, "0:")
	_, statErr := os.Stat(filepath.Join(root, segments[0]))
	assert.True(t, os.IsNotExist(statErr))

	payload := json.RawMessage(`{"balance":"1000000000","status":"active","code":null}`)
	path, err := store.Write(testIdentifier, payload)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, segments[0], segments[1], segments[2], FileName(testIdentifier)), path)
	assert.Equal(t, path, store.Path(testIdentifier))

	exists, err = store.Exists(testIdentifier)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(1), store.Written())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"balance\": \"1000000000\",\n  \"status\": \"active\",\n  \"code\": null\n}\n", string(data))

	// No temporary files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStoreExistsIgnoresLeftoverTempFile(t *testing.T) {
	store, err := NewStore(t.TempDir(), 3, []string{"0:"})
	require.NoError(t, err)

	path := store.Path(testIdentifier)
	dir := filepath.Dir(path)
	require.NoError(t, os.MkdirAll(dir, 0755))

	// what a crash between create and rename leaves behind
	leftover := filepath.Join(dir, "."+filepath.Base(path)+".123456.tmp")
	require.NoError(t, os.WriteFile(leftover, []byte(`{"partial":`), 0600))

	exists, err := store.Exists(testIdentifier)
	require.NoError(t, err)
	assert.False(t, exists)

	written, err := store.Write(testIdentifier, json.RawMessage(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, path, written)

	exists, err = store.Exists(testIdentifier)
	require.NoError(t, err)
	assert.True(t, exists)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var artifacts []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".tmp") {
			artifacts = append(artifacts, e.Name())
		}
	}
	assert.Equal(t, []string{filepath.Base(path)}, artifacts)
	assert.EqualValues(t, 1, store.Written())
}

func TestStoreWritePreservesValues(t *testing.T) {
	store, err := NewStore(t.TempDir(), 2, nil)
	require.NoError(t, err)

	// Large integers and key order survive untouched
	payload := json.RawMessage(`{"z":123456789012345678901234567890,"a":[1.50,"x"]}`)
	path, err := store.Write("0:ff", payload)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "123456789012345678901234567890")
	assert.Contains(t, string(data), "1.50")
	assert.Less(t, strings.Index(string(data), `"z"`), strings.Index(string(data), `"a"`))
}

func TestStoreWriteRejectsInvalidJSON(t *testing.T) {
	store, err := NewStore(t.TempDir(), 2, nil)
	require.NoError(t, err)

	_, err = store.Write("0:ff", json.RawMessage(`{"broken":`))
	var storageErr *errs.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "encode", storageErr.Op)
	assert.Equal(t, "0:ff", storageErr.Identifier)

	exists, err := store.Exists("0:ff")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreConcurrentWritesSharingDirectories(t *testing.T) {
	store, err := NewStore(t.TempDir(), 2, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "0:" + strings.Repeat(string(rune('a'+i%6)), 4) + string(rune('0'+i%10)) + string(rune('a'+i/10))
			_, err := store.Write(id, json.RawMessage(`{}`))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(50), store.Written())
}

func TestNewStoreRejectsBadDepth(t *testing.T) {
	_, err := NewStore(t.TempDir(), 1, nil)
	assert.Error(t, err)
	_, err = NewStore(t.TempDir(), 7, nil)
	assert.Error(t, err)
}
