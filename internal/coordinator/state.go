package coordinator

import (
	"github.com/maestro-performance/maestro-go/internal/client/domain"
	"github.com/maestro-performance/maestro-go/internal/coordinator/distribution"
	"github.com/maestro-performance/maestro-go/internal/coordinator/profile"
)

type State string

const (
	StateIdle       State = "idle"
	StateWarmUp     State = "warm-up"
	StateRunning    State = "running"
	StateCollecting State = "collecting"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed-out"
)

var allStates = []string{
	string(StateIdle),
	string(StateWarmUp),
	string(StateRunning),
	string(StateCollecting),
	string(StateSuccess),
	string(StateFailed),
	string(StateTimedOut),
}

// IsFinal is true for the states a phase ends in.
func (s State) IsFinal() bool {
	return s == StateSuccess || s == StateFailed || s == StateTimedOut
}

// PhaseResult describes how one phase of a test ended.
type PhaseResult struct {
	Phase      profile.Phase
	State      State
	TestNumber int32
	Peers      *distribution.PeerSet
	// Outcomes holds the outcome reported by each peer. Nil if the phase ended before collecting.
	Outcomes *domain.WatchContext
	Message  string
}

func (r PhaseResult) Failures() []domain.PeerOutcome {
	if r.Outcomes == nil {
		return nil
	}
	return r.Outcomes.Failures()
}

// Result describes a full run: the warm-up, if enabled, and the measured phase.
type Result struct {
	State  State
	Phases []PhaseResult
}

// Last is the result of the last phase that ran.
func (r *Result) Last() (PhaseResult, bool) {
	if len(r.Phases) == 0 {
		return PhaseResult{}, false
	}
	return r.Phases[len(r.Phases)-1], true
}
