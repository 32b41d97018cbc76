package reactor

import (
	"fmt"

	"github.com/dyluth/h2o/pkg/runlog"
)

// State is a step of an actor's life cycle.
type State int

const (
	stateNone State = iota - 1
	StateStarted
	StateAwaitingAdmission
	StateReady
	StateAwaitingGate
	StateBonding
	StateAwaitingBarrier
	StateFinished
)

var stateNames = map[State]string{
	stateNone:              "none",
	StateStarted:           "started",
	StateAwaitingAdmission: "awaiting-admission",
	StateReady:             "ready",
	StateAwaitingGate:      "awaiting-gate",
	StateBonding:           "bonding",
	StateAwaitingBarrier:   "awaiting-barrier",
	StateFinished:          "finished",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Phase returns the label logged on entry to s, or "" for states that are
// entered silently.
func (s State) Phase() runlog.Phase {
	switch s {
	case StateStarted:
		return runlog.PhaseStarted
	case StateAwaitingAdmission:
		return runlog.PhaseWaiting
	case StateReady:
		return runlog.PhaseReady
	case StateBonding:
		return runlog.PhaseBeginBonding
	case StateAwaitingBarrier:
		return runlog.PhaseBonded
	case StateFinished:
		return runlog.PhaseFinished
	default:
		return ""
	}
}

// next lists the legal successors of every state. AwaitingAdmission and Ready
// are the waiter and releaser branches of the gate.
var next = map[State][]State{
	stateNone:              {StateStarted},
	StateStarted:           {StateAwaitingAdmission, StateReady},
	StateAwaitingAdmission: {StateAwaitingGate},
	StateReady:             {StateAwaitingGate},
	StateAwaitingGate:      {StateBonding},
	StateBonding:           {StateAwaitingBarrier},
	StateAwaitingBarrier:   {StateFinished},
}

func canTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition describes one actor changing state. Molecule is 0 until the
// actor has been woken into a molecule.
type Transition struct {
	Kind     runlog.Kind
	Index    int
	Molecule int
	From     State
	To       State
}

// Release describes a gate decision that formed a molecule. Hydrogen and
// Oxygen are the available counts seen at release time, before draining.
type Release struct {
	Molecule int
	Kind     runlog.Kind
	Index    int
	Hydrogen int
	Oxygen   int
}

// Observer receives instrumentation callbacks from actor goroutines.
// Implementations must be safe for concurrent use.
type Observer interface {
	OnTransition(Transition)
	OnRelease(Release)
}

type nopObserver struct{}

func (nopObserver) OnTransition(Transition) {}
func (nopObserver) OnRelease(Release)       {}
