package filter

import (
	"regexp"
	"strings"

	"tonscraper/pkg/config"
	errs "tonscraper/pkg/errors"
	"tonscraper/pkg/logger"
)

// Skip reasons reported in Decision.Reason
const (
	ReasonReservedShard = "reserved_shard"
	ReasonInvalidLength = "invalid_length"
	ReasonZeroHeavy     = "zero_heavy"
	ReasonSystemPattern = "system_pattern"
	ReasonTooShort      = "too_short"
	// ReasonCustomPattern is followed by ":<pattern>"
	ReasonCustomPattern = "custom_pattern"
)

// Decision is the outcome of classifying one identifier. Reason is empty when Keep is true.
type Decision struct {
	Keep   bool
	Reason string
}

type pattern struct {
	source string
	re     *regexp.Regexp
}

// Filter decides from an identifier alone whether fetching its detail is worth an upstream call.
// It is safe for concurrent use.
type Filter struct {
	cfg       config.FilterConfig
	reserved  map[string]struct{}
	system    map[string]struct{}
	patterns  []pattern
	badConfig []error
	stats     *Stats
}

// New builds a Filter. Custom patterns that fail to compile are logged and never match.
func New(cfg config.FilterConfig, log logger.Logger) *Filter {
	if log == nil {
		log = logger.NewNopLogger()
	}

	f := &Filter{
		cfg:      cfg,
		reserved: toSet(cfg.ReservedShards),
		system:   toSet(cfg.SystemShards),
		stats:    NewStats(),
	}
	if f.cfg.ChunkSize <= 0 {
		f.cfg.ChunkSize = 8
	}

	for _, p := range cfg.CustomPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			cfgErr := &errs.FilterConfigError{Pattern: p, Err: err}
			f.badConfig = append(f.badConfig, cfgErr)
			log.WithError(cfgErr).WarnWithFields("ignoring invalid filter pattern", map[string]interface{}{
				"pattern": p,
			})
			f.patterns = append(f.patterns, pattern{source: p})
			continue
		}
		f.patterns = append(f.patterns, pattern{source: p, re: re})
	}

	return f
}

// ConfigErrors returns the FilterConfigErrors collected while compiling custom patterns
func (f *Filter) ConfigErrors() []error {
	return append([]error(nil), f.badConfig...)
}

// Stats returns the filter's running counters
func (f *Filter) Stats() *Stats {
	return f.stats
}

// Classify applies the rules in order and records the decision in the filter's Stats
func (f *Filter) Classify(identifier string) Decision {
	d := f.decide(identifier)
	f.stats.record(d)
	return d
}

// ClassifyAll classifies identifiers in order
func (f *Filter) ClassifyAll(identifiers []string) []Decision {
	out := make([]Decision, len(identifiers))
	for i, id := range identifiers {
		out[i] = f.Classify(id)
	}
	return out
}

func (f *Filter) decide(identifier string) Decision {
	shard, payload := splitIdentifier(identifier)

	if _, ok := f.reserved[shard]; ok {
		return skip(ReasonReservedShard)
	}

	if want, ok := f.cfg.ShardPayloadLengths[shard]; ok && len(payload) != want {
		return skip(ReasonInvalidLength)
	}

	threshold := f.cfg.NormalZeroThreshold
	if _, ok := f.system[shard]; ok {
		threshold = f.cfg.SystemZeroThreshold
	}
	if len(payload) > 0 && ZeroFraction(payload) > threshold {
		return skip(ReasonZeroHeavy)
	}

	if f.degenerate(strings.ToLower(payload)) {
		return skip(ReasonSystemPattern)
	}

	if len(identifier) < f.cfg.MinLength {
		return skip(ReasonTooShort)
	}

	for _, p := range f.patterns {
		if p.re != nil && p.re.MatchString(identifier) {
			return skip(ReasonCustomPattern + ":" + p.source)
		}
	}

	return Decision{Keep: true}
}

// degenerate reports long single-digit runs at either edge of the payload,
// or too few distinct chunks across it
func (f *Filter) degenerate(payload string) bool {
	if n := f.cfg.EdgeRunLength; n > 0 && len(payload) >= n {
		if leadingRun(payload) >= n || trailingRun(payload) >= n {
			return true
		}
	}

	if f.cfg.MinDistinctChunks > 0 {
		chunks := chunk(payload, f.cfg.ChunkSize)
		// Payloads with fewer chunks than required are left to the length rules
		if len(chunks) >= f.cfg.MinDistinctChunks {
			distinct := make(map[string]struct{}, len(chunks))
			for _, c := range chunks {
				distinct[c] = struct{}{}
			}
			if len(distinct) < f.cfg.MinDistinctChunks {
				return true
			}
		}
	}

	return false
}

// splitIdentifier splits "<shard>:<payload>". Identifiers without a shard prefix have an empty shard.
func splitIdentifier(identifier string) (string, string) {
	shard, payload, ok := strings.Cut(identifier, ":")
	if !ok {
		return "", identifier
	}
	return shard, payload
}

// ZeroFraction returns the share of '0' digits in s
func ZeroFraction(s string) float64 {
	if s == "" {
		return 0
	}
	return float64(strings.Count(s, "0")) / float64(len(s))
}

func leadingRun(s string) int {
	n := 1
	for n < len(s) && s[n] == s[0] {
		n++
	}
	return n
}

func trailingRun(s string) int {
	last := len(s) - 1
	n := 1
	for n <= last && s[last-n] == s[last] {
		n++
	}
	return n
}

func chunk(s string, size int) []string {
	var out []string
	for start := 0; start < len(s); start += size {
		end := start + size
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[start:end])
	}
	return out
}

func skip(reason string) Decision {
	return Decision{Keep: false, Reason: reason}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
