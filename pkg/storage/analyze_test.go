package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeDistribution(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root, 2, nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := store.Write(fmt.Sprintf("0:%064x", i), json.RawMessage(`{"i":1}`))
		require.NoError(t, err)
	}

	// Leftover temp file from a crashed write and an unrelated file are ignored
	leaf := filepath.Dir(store.Path("0:" + fmt.Sprintf("%064x", 0)))
	require.NoError(t, os.WriteFile(filepath.Join(leaf, ".inspect_x.json.123.tmp"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("hi"), 0644))

	dist, err := AnalyzeDistribution(root)
	require.NoError(t, err)

	assert.Equal(t, int64(20), dist.TotalFiles)
	assert.Equal(t, map[int]int64{2: 20}, dist.FilesByDepth)
	assert.GreaterOrEqual(t, dist.TotalDirectories, dist.LeafDirectories)
	assert.InDelta(t, float64(dist.TotalFiles)/float64(dist.LeafDirectories), dist.AvgFilesPerDir, 1e-9)
	assert.GreaterOrEqual(t, dist.MaxFilesPerDir, dist.MinFilesPerDir)
	assert.GreaterOrEqual(t, dist.MinFilesPerDir, int64(1))
}

func TestAnalyzeDistributionMixedDepths(t *testing.T) {
	root := t.TempDir()
	shallow, err := NewStore(root, 2, nil)
	require.NoError(t, err)
	deep, err := NewStore(root, 4, nil)
	require.NoError(t, err)

	_, err = shallow.Write("0:aa", json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = deep.Write("0:bb", json.RawMessage(`{}`))
	require.NoError(t, err)

	dist, err := AnalyzeDistribution(root)
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{2: 1, 4: 1}, dist.FilesByDepth)
}

func TestAnalyzeDistributionMissingRoot(t *testing.T) {
	dist, err := AnalyzeDistribution(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, dist.TotalFiles)
	assert.Zero(t, dist.AvgFilesPerDir)
}

func TestDetectDepth(t *testing.T) {
	root := t.TempDir()

	_, ok, err := DetectDepth(root)
	require.NoError(t, err)
	assert.False(t, ok)

	store, err := NewStore(root, 5, nil)
	require.NoError(t, err)
	_, err = store.Write("0:cafe", json.RawMessage(`{}`))
	require.NoError(t, err)

	depth, ok, err := DetectDepth(root)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, depth)
}

func TestResolveDepth(t *testing.T) {
	root := t.TempDir()

	res, err := ResolveDepth(0, 100_000_000, root)
	require.NoError(t, err)
	assert.Equal(t, DepthResolution{Depth: 3, Source: DepthFromEstimate}, res)

	store, err := NewStore(root, 4, nil)
	require.NoError(t, err)
	_, err = store.Write("0:beef", json.RawMessage(`{}`))
	require.NoError(t, err)

	res, err = ResolveDepth(0, 100_000_000, root)
	require.NoError(t, err)
	assert.Equal(t, DepthResolution{Depth: 4, Source: DepthFromTree}, res)

	res, err = ResolveDepth(6, 100_000_000, root)
	require.NoError(t, err)
	assert.Equal(t, DepthResolution{Depth: 6, Source: DepthFromOverride}, res)

	_, err = ResolveDepth(9, 0, root)
	assert.Error(t, err)

	res, err = ResolveDepth(0, capacity(6)+1, t.TempDir())
	require.NoError(t, err)
	assert.True(t, res.Saturated)
	assert.Equal(t, MaxDepth, res.Depth)
}

func TestResolveDepthIgnoresFlatTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName("0:aa")), []byte("{}"), 0644))

	res, err := ResolveDepth(0, 1000, root)
	require.NoError(t, err)
	assert.Equal(t, DepthFromEstimate, res.Source)
	assert.Equal(t, MinDepth, res.Depth)
}
