package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Distribution summarises how artifacts are spread across a tree
type Distribution struct {
	TotalFiles       int64   `json:"total_files"`
	TotalDirectories int64   `json:"total_directories"`
	LeafDirectories  int64   `json:"leaf_directories"`
	AvgFilesPerDir   float64 `json:"avg_files_per_dir"`
	MaxFilesPerDir   int64   `json:"max_files_per_dir"`
	MinFilesPerDir   int64   `json:"min_files_per_dir"`
	// FilesByDepth counts artifacts per shard depth; more than one key means a mixed tree
	FilesByDepth map[int]int64 `json:"files_by_depth"`
}

// DepthSource says where a resolved depth came from
type DepthSource string

const (
	DepthFromOverride DepthSource = "override"
	DepthFromTree     DepthSource = "detected"
	DepthFromEstimate DepthSource = "optimal"
)

// DepthResolution is the process wide depth chosen at startup
type DepthResolution struct {
	Depth     int
	Source    DepthSource
	Saturated bool
}

func isArtifact(name string) bool {
	return strings.HasPrefix(name, "inspect_") && strings.HasSuffix(name, ".json")
}

// AnalyzeDistribution walks root and reports artifact counts per leaf directory.
// Leaf directories are those holding at least one artifact. Temporary files are ignored.
// A missing root yields an empty Distribution.
func AnalyzeDistribution(root string) (Distribution, error) {
	dist := Distribution{FilesByDepth: make(map[int]int64)}
	perDir := make(map[string]int64)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if path != root {
				dist.TotalDirectories++
			}
			return nil
		}
		if !isArtifact(d.Name()) {
			return nil
		}

		dir := filepath.Dir(path)
		perDir[dir]++
		dist.TotalFiles++
		dist.FilesByDepth[relativeDepth(root, dir)]++
		return nil
	})
	if err != nil {
		return Distribution{}, fmt.Errorf("failed to analyze %s: %w", root, err)
	}

	dist.LeafDirectories = int64(len(perDir))
	for _, n := range perDir {
		if n > dist.MaxFilesPerDir {
			dist.MaxFilesPerDir = n
		}
		if dist.MinFilesPerDir == 0 || n < dist.MinFilesPerDir {
			dist.MinFilesPerDir = n
		}
	}
	if dist.LeafDirectories > 0 {
		dist.AvgFilesPerDir = float64(dist.TotalFiles) / float64(dist.LeafDirectories)
	}

	return dist, nil
}

// DetectDepth returns the shard depth of the first artifact found under root.
// ok is false when the tree holds no artifacts.
func DetectDepth(root string) (depth int, ok bool, err error) {
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !isArtifact(d.Name()) {
			return nil
		}
		depth = relativeDepth(root, filepath.Dir(path))
		ok = true
		return fs.SkipAll
	})
	if walkErr != nil {
		return 0, false, fmt.Errorf("failed to detect depth under %s: %w", root, walkErr)
	}
	return depth, ok, nil
}

// ResolveDepth picks the depth for this process: an explicit override wins, then the
// depth of an existing tree, then OptimalDepth for the expected artifact count.
// A detected depth outside [MinDepth, MaxDepth] is ignored.
func ResolveDepth(override int, expectedFiles int64, root string) (DepthResolution, error) {
	if override != 0 {
		if override < MinDepth || override > MaxDepth {
			return DepthResolution{}, fmt.Errorf("depth override %d out of range [%d,%d]", override, MinDepth, MaxDepth)
		}
		return DepthResolution{Depth: override, Source: DepthFromOverride}, nil
	}

	detected, ok, err := DetectDepth(root)
	if err != nil {
		return DepthResolution{}, err
	}
	if ok && detected >= MinDepth && detected <= MaxDepth {
		return DepthResolution{Depth: detected, Source: DepthFromTree}, nil
	}

	return DepthResolution{
		Depth:     OptimalDepth(expectedFiles),
		Source:    DepthFromEstimate,
		Saturated: DepthSaturated(expectedFiles),
	}, nil
}

func relativeDepth(root, dir string) int {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(os.PathSeparator)))
}
