package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	// MinDepth and MaxDepth bound the number of shard directory levels
	MinDepth = 2
	MaxDepth = 6

	// TargetFilesPerDir is the average leaf occupancy OptimalDepth aims for
	TargetFilesPerDir = 1000

	fanout = 256
)

var fileNameReplacer = strings.NewReplacer(":", "_", "/", "_", "\\", "_")

// ClampDepth forces depth into [MinDepth, MaxDepth]
func ClampDepth(depth int) int {
	if depth < MinDepth {
		return MinDepth
	}
	if depth > MaxDepth {
		return MaxDepth
	}
	return depth
}

// ShardPath returns the directory segments for identifier. Each segment is two hex
// characters of the sha256 of the identifier with the first matching cosmetic prefix removed.
func ShardPath(identifier string, depth int, cosmeticPrefixes ...string) []string {
	depth = ClampDepth(depth)

	key := identifier
	for _, prefix := range cosmeticPrefixes {
		if prefix != "" && strings.HasPrefix(key, prefix) {
			key = key[len(prefix):]
			break
		}
	}

	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])

	segments := make([]string, depth)
	for i := 0; i < depth; i++ {
		segments[i] = digest[i*2 : i*2+2]
	}
	return segments
}

// FileName returns the artifact file name for identifier
func FileName(identifier string) string {
	return "inspect_" + fileNameReplacer.Replace(identifier) + ".json"
}

// OptimalDepth returns the smallest depth in [MinDepth, MaxDepth] that keeps the
// average leaf directory at or below TargetFilesPerDir for expectedFiles artifacts.
// It returns MaxDepth when even that is not enough; see DepthSaturated.
func OptimalDepth(expectedFiles int64) int {
	for depth := MinDepth; depth <= MaxDepth; depth++ {
		if expectedFiles <= capacity(depth) {
			return depth
		}
	}
	return MaxDepth
}

// DepthSaturated reports whether expectedFiles exceeds what MaxDepth can hold at TargetFilesPerDir
func DepthSaturated(expectedFiles int64) bool {
	return expectedFiles > capacity(MaxDepth)
}

// capacity is TargetFilesPerDir * 256^depth; 256^6 * 1000 still fits in int64
func capacity(depth int) int64 {
	c := int64(TargetFilesPerDir)
	for i := 0; i < depth; i++ {
		c *= fanout
	}
	return c
}

func leafDir(root string, segments []string) string {
	return filepath.Join(append([]string{root}, segments...)...)
}
