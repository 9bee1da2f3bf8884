// Package services implements the reconciliation and state-management core
// of the journalsync engine: the per-date content lifecycle, remote
// reconciliation, the sync phase machine, the sync runner/scheduler, and
// pending-ops accounting.
package services

import (
	"sync"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
)

// Phase is the coarse health of sync as a whole, deliberately decoupled
// from any single note's lifecycle.
type Phase string

const (
	PhaseDisabled Phase = "disabled"
	PhaseOffline  Phase = "offline"
	PhaseReady    Phase = "ready"
	PhaseSyncing  Phase = "syncing"
	PhaseError    Phase = "error"
)

// Intent records that a sync should run. Immediate intents bypass the
// scheduler's debounce.
type Intent struct {
	Immediate bool
}

// PhaseState is the full machine state: phase, last observed sync status,
// and the recorded intent (nil when none).
type PhaseState struct {
	Phase  Phase
	Status models.SyncStatus
	Intent *Intent
}

// Phase events. Every transition is a pure function of (state, event); the
// machine never performs work itself — starting syncs is the runner's job.

// InputsChanged carries the enablement/connectivity signals.
type InputsChanged struct {
	Enabled bool
	Online  bool
}

// SyncRequested records intent while ready or errored. An errored machine
// must keep accepting requests: a failed cycle is retried by the next user
// action or external trigger, never by an internal loop.
type SyncRequested struct {
	Immediate bool
}

// SyncStarted is emitted by the execution service when a cycle begins.
type SyncStarted struct{}

// SyncFinished is emitted by the execution service when a cycle settles.
type SyncFinished struct {
	Status models.SyncStatus
}

// PhaseEvent is one of InputsChanged, SyncRequested, SyncStarted,
// SyncFinished.
type PhaseEvent interface{ isPhaseEvent() }

func (InputsChanged) isPhaseEvent() {}
func (SyncRequested) isPhaseEvent() {}
func (SyncStarted) isPhaseEvent()   {}
func (SyncFinished) isPhaseEvent()  {}

// InitialPhaseState is where every machine starts.
func InitialPhaseState() PhaseState {
	return PhaseState{Phase: PhaseDisabled, Status: models.SyncStatusIdle}
}

// ReducePhase computes the next state for an event. Pure: no side effects,
// no clock, no I/O.
func ReducePhase(s PhaseState, ev PhaseEvent) PhaseState {
	switch e := ev.(type) {
	case InputsChanged:
		if !e.Enabled {
			return PhaseState{Phase: PhaseDisabled, Status: models.SyncStatusIdle}
		}
		if !e.Online {
			if s.Phase == PhaseDisabled {
				// enabled while offline: machine leaves disabled straight
				// into offline
				return PhaseState{Phase: PhaseOffline, Status: models.SyncStatusOffline}
			}
			return PhaseState{Phase: PhaseOffline, Status: s.Status, Intent: nil}
		}
		// enabled && online
		if s.Phase == PhaseDisabled || s.Phase == PhaseOffline {
			// becoming ready sets an immediate intent: a sync should run as
			// soon as possible
			return PhaseState{Phase: PhaseReady, Status: models.SyncStatusIdle, Intent: &Intent{Immediate: true}}
		}
		return s

	case SyncRequested:
		if s.Phase != PhaseReady && s.Phase != PhaseError {
			return s
		}
		next := s
		next.Intent = &Intent{Immediate: e.Immediate}
		return next

	case SyncStarted:
		if s.Phase != PhaseReady && s.Phase != PhaseError {
			return s
		}
		return PhaseState{Phase: PhaseSyncing, Status: models.SyncStatusSyncing}

	case SyncFinished:
		if s.Phase != PhaseSyncing {
			return s
		}
		switch e.Status {
		case models.SyncStatusOffline:
			return PhaseState{Phase: PhaseOffline, Status: models.SyncStatusOffline}
		case models.SyncStatusError:
			return PhaseState{Phase: PhaseError, Status: models.SyncStatusError}
		default:
			return PhaseState{Phase: PhaseReady, Status: e.Status}
		}
	}
	return s
}

// PhaseMachine is a guarded wrapper around ReducePhase for concurrent use.
// The onChange callback fires outside the lock whenever the state actually
// changed; subscribers must re-validate relevance before acting on it.
type PhaseMachine struct {
	mu       sync.Mutex
	state    PhaseState
	onChange func(PhaseState)
}

func NewPhaseMachine(onChange func(PhaseState)) *PhaseMachine {
	return &PhaseMachine{state: InitialPhaseState(), onChange: onChange}
}

// Dispatch applies an event and returns the resulting state.
func (m *PhaseMachine) Dispatch(ev PhaseEvent) PhaseState {
	m.mu.Lock()
	prev := m.state
	next := ReducePhase(prev, ev)
	m.state = next
	m.mu.Unlock()

	if next != prev && m.onChange != nil {
		m.onChange(next)
	}
	return next
}

// State returns the current state.
func (m *PhaseMachine) State() PhaseState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TakeIntent pops the recorded intent, if any.
func (m *PhaseMachine) TakeIntent() *Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent := m.state.Intent
	m.state.Intent = nil
	return intent
}
