package harvester

// Outcome is the terminal state of one identifier within an iteration
type Outcome string

const (
	OutcomeSaved           Outcome = "saved"
	OutcomeSkippedExisting Outcome = "skipped_existing"
	OutcomeSkippedByFilter Outcome = "skipped_by_filter"
	OutcomeFailed          Outcome = "failed"
)

// ProcessingOutcome records what happened to one identifier
type ProcessingOutcome struct {
	Identifier string  `json:"identifier"`
	Outcome    Outcome `json:"outcome"`
	// Reason is the filter reason for SkippedByFilter
	Reason string `json:"reason,omitempty"`
	Path   string `json:"path,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OutcomeError pairs a failed identifier with its error
type OutcomeError struct {
	Identifier string `json:"identifier"`
	Error      string `json:"error"`
}

// BatchSummary aggregates the outcomes of one or more pages
type BatchSummary struct {
	Total           int                 `json:"total"`
	Successful      int                 `json:"successful"`
	Failed          int                 `json:"failed"`
	Skipped         int                 `json:"skipped"`
	SkippedExisting int                 `json:"skipped_existing"`
	SkippedByFilter int                 `json:"skipped_by_filter"`
	Errors          []OutcomeError      `json:"errors,omitempty"`
	Outcomes        []ProcessingOutcome `json:"-"`
}

// Summarize aggregates outcomes. Every outcome is counted exactly once.
func Summarize(outcomes []ProcessingOutcome) BatchSummary {
	s := BatchSummary{Outcomes: outcomes}
	for _, o := range outcomes {
		s.add(o)
	}
	return s
}

func (s *BatchSummary) add(o ProcessingOutcome) {
	s.Total++
	switch o.Outcome {
	case OutcomeSaved:
		s.Successful++
	case OutcomeSkippedExisting:
		s.Skipped++
		s.SkippedExisting++
	case OutcomeSkippedByFilter:
		s.Skipped++
		s.SkippedByFilter++
	default:
		s.Failed++
		s.Errors = append(s.Errors, OutcomeError{Identifier: o.Identifier, Error: o.Error})
	}
}

// Merge folds other into s, dropping the per-identifier outcome list
func (s *BatchSummary) Merge(other BatchSummary) {
	s.Total += other.Total
	s.Successful += other.Successful
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.SkippedExisting += other.SkippedExisting
	s.SkippedByFilter += other.SkippedByFilter
	s.Errors = append(s.Errors, other.Errors...)
}
