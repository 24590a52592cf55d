package acquire

import "github.com/heyjunin/HLSgrab/pkg/errors"

// State is a step of the acquisition state machine.
type State int

const (
	Idle State = iota
	Probing
	PrimaryAttempt
	FallbackAttempt
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Probing:
		return "probing"
	case PrimaryAttempt:
		return "primary_attempt"
	case FallbackAttempt:
		return "fallback_attempt"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is how a job ended, as reported in its single end-of-job notification.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// OutcomeOf classifies a job's final error.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.IsType(err, errors.Cancelled):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
