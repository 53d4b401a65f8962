package model

import (
	"time"
)

// Outcome tags a DumpResult
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNotRunning
	OutcomeTimedOut
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotRunning:
		return "not_running"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DumpResult is the outcome of a single dump of a single service.
// Text is set for OutcomeSuccess only, Err for OutcomeFailed and OutcomeTimedOut.
type DumpResult struct {
	Name    string
	Args    []string
	Outcome Outcome
	Text    []byte
	Err     error
	Started time.Time
	Stopped time.Time
}

func (r DumpResult) Duration() time.Duration {
	if r.Started.IsZero() || r.Stopped.IsZero() {
		return 0
	}
	return r.Stopped.Sub(r.Started)
}
