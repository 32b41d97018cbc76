package reactor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/h2o/pkg/runlog"
	"github.com/rs/zerolog"
)

// Journal is the serialized "append a line" capability actors report to.
// *ledger.Ledger satisfies it.
type Journal interface {
	Append(ctx context.Context, kind runlog.Kind, index int, phase runlog.Phase) (runlog.Entry, error)
}

// pauseFunc sleeps a random duration in [0, bound]; it returns early with an
// error only if ctx is cancelled.
type pauseFunc func(ctx context.Context, bound time.Duration) error

// coordinator is the shared coordination state of one run. It is created per
// run and passed by reference to every actor.
type coordinator struct {
	target    int
	bondDelay time.Duration
	journal   Journal
	observer  Observer
	logger    zerolog.Logger
	pause     pauseFunc

	// admission holds the single molecule-in-progress token.
	admission *semaphore
	// ready is taken by the first bonder of a molecule and returned by the
	// molecule's barrier step.
	ready        *semaphore
	hydrogenGate *semaphore
	oxygenGate   *semaphore

	// Guarded by the admission token.
	hydrogen int
	oxygen   int
	formed   int
	current  *molecule

	bondMu       *semaphore
	bondDone     *semaphore
	bondArrivals int // guarded by bondMu

	tallyMu         sync.Mutex
	barrierArrivals int
	completed       int

	finished *latch
}

func newCoordinator(target int, bondDelay time.Duration, journal Journal, observer Observer, logger zerolog.Logger, pause pauseFunc) *coordinator {
	return &coordinator{
		target:       target,
		bondDelay:    bondDelay,
		journal:      journal,
		observer:     observer,
		logger:       logger,
		pause:        pause,
		admission:    newSemaphore(1),
		ready:        newSemaphore(1),
		hydrogenGate: newSemaphore(0),
		oxygenGate:   newSemaphore(0),
		bondMu:       newSemaphore(1),
		bondDone:     newSemaphore(0),
		finished:     newLatch(),
	}
}

// molecule is one formed group. It carries the admission token from the
// releaser to whichever member completes the group's barrier step.
type molecule struct {
	id       int
	token    *semaphore
	handOnce sync.Once
}

// handBack returns the admission token. Only the first call has an effect.
func (m *molecule) handBack() {
	m.handOnce.Do(func() { m.token.release(1) })
}

func (c *coordinator) gate(kind runlog.Kind) *semaphore {
	if kind == runlog.Hydrogen {
		return c.hydrogenGate
	}
	return c.oxygenGate
}

// verifyDrained checks the end-of-run invariants once every actor has returned.
func (c *coordinator) verifyDrained() error {
	c.tallyMu.Lock()
	completed := c.completed
	c.tallyMu.Unlock()

	switch {
	case completed != 3*c.target:
		return fmt.Errorf("completed %d actors, expected %d", completed, 3*c.target)
	case c.formed != c.target:
		return fmt.Errorf("formed %d molecules, expected %d", c.formed, c.target)
	case c.hydrogen != 0 || c.oxygen != 0:
		return fmt.Errorf("unclaimed atoms left: hydrogen=%d oxygen=%d", c.hydrogen, c.oxygen)
	case c.bondArrivals != 0 || c.barrierArrivals != 0:
		return fmt.Errorf("rendezvous not reset: bond=%d barrier=%d", c.bondArrivals, c.barrierArrivals)
	}
	return nil
}
