package automation

// Outcome classifies one firing attempt for a (rule, event) pair.
type Outcome int

const (
	// OutcomeSkipped: the pair was not eligible this tick (already fired,
	// group filter mismatch, trigger window not open). Nothing changed.
	OutcomeSkipped Outcome = iota

	// OutcomeFired: the action ran and the rule id was recorded on the
	// event. Terminal for the pair.
	OutcomeFired

	// OutcomeDeferred: the action faulted before completing; the event was
	// left unmarked so the pair retries on the next tick.
	OutcomeDeferred
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFired:
		return "fired"
	case OutcomeDeferred:
		return "deferred"
	default:
		return "skipped"
	}
}

// FireResult is the machine-readable record of one attempt.
type FireResult struct {
	RuleID  string
	EventID string
	Outcome Outcome

	// Reason is set for Skipped and Deferred outcomes.
	Reason string

	// Err carries the underlying fault for Deferred outcomes.
	Err error
}
