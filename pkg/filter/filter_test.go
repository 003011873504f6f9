package filter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tonscraper/pkg/config"
	errs "tonscraper/pkg/errors"
	"tonscraper/pkg/logger"
)

const (
	// a real basechain account
	regularPayload = "83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"
	// 21 of 64 digits are zero, between the system and normal thresholds
	midZeroPayload = "0a0b0c0d10e20f304a05b06c07d08e0f9a0b0c0d4e05060708090a4b5c6d7e8f"
	// 40 leading zeros
	zeroHeavyPayload = "00000000000000000000000000000000000000001a2b3c4d5e6f7a8b9c1d2e3f"
	// leading run of sixteen identical digits
	edgeRunPayload = "ffffffffffffffff3729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a"
	// only two distinct 8 digit chunks
	repeatedChunkPayload = "deadbeefdeadbeefdeadbeefdeadbeefcafebabecafebabecafebabecafebabe"
)

// The thresholds are tuned heuristics. These cases pin the current behaviour for
// clear-cut identifiers and are not a claim of exact classification.
func TestClassifyRules(t *testing.T) {
	cfg := config.DefaultFilterConfig()
	cfg.CustomPatterns = []string{"^0:83df"}
	f := New(cfg, logger.NewNopLogger())

	tests := []struct {
		name       string
		identifier string
		keep       bool
		reason     string
	}{
		{"regular basechain account", "0:" + "1" + regularPayload[1:], true, ""},
		{"reserved masterchain", "-1:" + regularPayload, false, ReasonReservedShard},
		{"wrong payload length", "0:" + regularPayload[:63], false, ReasonInvalidLength},
		{"zero heavy", "0:" + zeroHeavyPayload, false, ReasonZeroHeavy},
		{"mid zero density on normal shard", "0:" + midZeroPayload, true, ""},
		{"leading run", "0:" + edgeRunPayload, false, ReasonSystemPattern},
		{"repeated chunks", "0:" + repeatedChunkPayload, false, ReasonSystemPattern},
		{"too short", "5:abc", false, ReasonTooShort},
		{"custom pattern", "0:" + regularPayload, false, "custom_pattern:^0:83df"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := f.Classify(tt.identifier)
			assert.Equal(t, tt.keep, d.Keep)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestSystemShardUsesStricterZeroThreshold(t *testing.T) {
	cfg := config.DefaultFilterConfig()

	// with the defaults the reserved rule shadows the system threshold
	assert.Equal(t, []string{"-1"}, cfg.ShadowedSystemShards())
	assert.Equal(t, ReasonReservedShard, New(cfg, nil).Classify("-1:"+midZeroPayload).Reason)

	cfg.ReservedShards = nil
	assert.Empty(t, cfg.ShadowedSystemShards())
	f := New(cfg, nil)

	assert.Equal(t, Decision{Keep: false, Reason: ReasonZeroHeavy}, f.Classify("-1:"+midZeroPayload))
	assert.Equal(t, Decision{Keep: true}, f.Classify("0:"+midZeroPayload))
}

func TestFirstMatchWins(t *testing.T) {
	cfg := config.DefaultFilterConfig()
	cfg.CustomPatterns = []string{".*"}
	f := New(cfg, nil)

	// Reserved beats every later rule, including the custom catch-all
	assert.Equal(t, ReasonReservedShard, f.Classify("-1:"+zeroHeavyPayload).Reason)
	// Zero density beats the edge run that the same payload also has
	assert.Equal(t, ReasonZeroHeavy, f.Classify("0:"+zeroHeavyPayload).Reason)
}

func TestInvalidPatternFailsOpen(t *testing.T) {
	tl := logger.NewTestLogger()
	cfg := config.DefaultFilterConfig()
	cfg.CustomPatterns = []string{"([", "^0:ffff"}
	f := New(cfg, tl)

	configErrs := f.ConfigErrors()
	require.Len(t, configErrs, 1)
	var fce *errs.FilterConfigError
	require.ErrorAs(t, configErrs[0], &fce)
	assert.Equal(t, "([", fce.Pattern)
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)

	// The broken pattern never matches, the valid one still does
	assert.True(t, f.Classify("0:"+regularPayload).Keep)
	assert.Equal(t, "custom_pattern:^0:ffff", f.Classify("0:ffff"+regularPayload[4:]).Reason)
}

func TestStatsSnapshotAndReset(t *testing.T) {
	f := New(config.DefaultFilterConfig(), nil)

	f.ClassifyAll([]string{
		"0:" + regularPayload,
		"-1:" + regularPayload,
		"-1:" + midZeroPayload,
		"0:" + zeroHeavyPayload,
	})

	snap := f.Stats().Snapshot()
	assert.Equal(t, int64(4), snap.Total)
	assert.Equal(t, int64(1), snap.Kept)
	assert.Equal(t, int64(3), snap.Skipped)
	assert.Equal(t, map[string]int64{ReasonReservedShard: 2, ReasonZeroHeavy: 1}, snap.SkippedByReason)

	// Snapshots are copies
	snap.SkippedByReason[ReasonReservedShard] = 100
	assert.Equal(t, int64(2), f.Stats().Snapshot().SkippedByReason[ReasonReservedShard])

	f.Stats().Reset()
	snap = f.Stats().Snapshot()
	assert.Zero(t, snap.Total)
	assert.Empty(t, snap.SkippedByReason)
}

func TestClassifyConcurrent(t *testing.T) {
	f := New(config.DefaultFilterConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f.Classify("0:" + regularPayload)
				f.Classify("-1:" + regularPayload)
			}
		}()
	}
	wg.Wait()

	snap := f.Stats().Snapshot()
	assert.Equal(t, int64(1600), snap.Total)
	assert.Equal(t, int64(800), snap.Kept)
	assert.Equal(t, int64(800), snap.SkippedByReason[ReasonReservedShard])
}

func TestZeroFraction(t *testing.T) {
	assert.Equal(t, 0.0, ZeroFraction(""))
	assert.Equal(t, 0.5, ZeroFraction("0a0b"))
	assert.Equal(t, 1.0, ZeroFraction("0000"))
}
