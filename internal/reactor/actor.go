package reactor

import (
	"context"
	"fmt"

	"github.com/dyluth/h2o/pkg/runlog"
)

// actor is one hydrogen or oxygen unit. It owns no shared state.
type actor struct {
	kind     runlog.Kind
	index    int
	state    State
	molecule int
	c        *coordinator
}

func newActor(c *coordinator, kind runlog.Kind, index int) *actor {
	return &actor{kind: kind, index: index, state: stateNone, c: c}
}

func (a *actor) String() string {
	return fmt.Sprintf("%c %d", a.kind.Char(), a.index)
}

// enter moves the actor to state s, notifies the observer and logs the
// state's phase label, if it has one.
func (a *actor) enter(ctx context.Context, s State) error {
	if !canTransition(a.state, s) {
		return fmt.Errorf("actor %s: illegal transition %s -> %s", a, a.state, s)
	}

	from := a.state
	a.state = s

	if phase := s.Phase(); phase != "" {
		if _, err := a.c.journal.Append(ctx, a.kind, a.index, phase); err != nil {
			return err
		}
	}

	a.c.observer.OnTransition(Transition{
		Kind:     a.kind,
		Index:    a.index,
		Molecule: a.molecule,
		From:     from,
		To:       s,
	})
	return nil
}

// run drives the actor through its whole life cycle.
func (a *actor) run(ctx context.Context) error {
	if err := a.enter(ctx, StateStarted); err != nil {
		return err
	}

	if err := a.c.admit(ctx, a); err != nil {
		return err
	}

	if err := a.enter(ctx, StateAwaitingGate); err != nil {
		return err
	}
	m, err := a.c.awaitGate(ctx, a)
	if err != nil {
		return err
	}
	a.molecule = m.id

	if err := a.enter(ctx, StateBonding); err != nil {
		return err
	}
	if err := a.c.bond(ctx); err != nil {
		return err
	}

	if err := a.enter(ctx, StateAwaitingBarrier); err != nil {
		return err
	}
	if err := a.c.complete(ctx, m); err != nil {
		return err
	}

	return a.enter(ctx, StateFinished)
}
