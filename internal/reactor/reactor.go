package reactor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyluth/h2o/internal/config"
	"github.com/dyluth/h2o/pkg/runlog"
	"github.com/rs/zerolog"
)

// ErrInterrupted is returned by Run when the caller's context is cancelled
// before every actor finished.
var ErrInterrupted = errors.New("run interrupted")

// Summary describes a completed run.
type Summary struct {
	Molecules int
	Actors    int
	Elapsed   time.Duration
}

// Option configures a Reactor.
type Option func(*Reactor)

// WithObserver installs instrumentation callbacks.
func WithObserver(o Observer) Option {
	return func(r *Reactor) { r.observer = o }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reactor) { r.logger = l }
}

// WithSeed makes delay draws reproducible.
func WithSeed(seed uint64) Option {
	return func(r *Reactor) { r.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// Reactor runs one simulation: it spawns 2N hydrogen and N oxygen actors and
// waits for all of them.
type Reactor struct {
	params   config.Params
	journal  Journal
	observer Observer
	logger   zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New validates params and creates a reactor that reports to journal.
func New(params *config.Params, journal Journal, opts ...Option) (*Reactor, error) {
	if params == nil {
		return nil, fmt.Errorf("params are required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if journal == nil {
		return nil, fmt.Errorf("journal is required")
	}

	r := &Reactor{
		params:   *params,
		journal:  journal,
		observer: nopObserver{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return r, nil
}

// Run spawns every actor and blocks until all have terminated.
//
// The first actor error cancels the remaining actors and is returned. If ctx
// is cancelled before every actor finished, every blocked actor returns and
// Run reports ErrInterrupted. A cancel that arrives after the last actor
// finished does not turn a complete run into an interrupted one.
func (r *Reactor) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	n := r.params.Molecules

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c := newCoordinator(n, r.params.BondDelay(), r.journal, r.observer, r.logger, r.pause)

	var (
		wg       sync.WaitGroup
		finished atomic.Int64
	)
	spawn := func(kind runlog.Kind, count int, bound time.Duration) {
		defer wg.Done()
		for i := 1; i <= count; i++ {
			if runCtx.Err() != nil {
				return
			}
			a := newActor(c, kind, i)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := a.run(runCtx); err != nil {
					cancel(fmt.Errorf("actor %s: %w", a, err))
					return
				}
				finished.Add(1)
			}()
			if err := r.pause(runCtx, bound); err != nil {
				return
			}
		}
	}

	r.logger.Debug().Int("molecules", n).Int("actors", 3*n).Msg("spawning actors")

	wg.Add(2)
	go spawn(runlog.Hydrogen, 2*n, r.params.HydrogenDelay())
	go spawn(runlog.Oxygen, n, r.params.OxygenDelay())
	wg.Wait()

	if finished.Load() == int64(3*n) {
		if err := c.verifyDrained(); err != nil {
			return nil, fmt.Errorf("protocol invariant violated: %w", err)
		}
		return &Summary{
			Molecules: n,
			Actors:    3 * n,
			Elapsed:   time.Since(start),
		}, nil
	}

	if ctx.Err() != nil {
		r.logger.Debug().Msg("run interrupted")
		return nil, fmt.Errorf("%w: %v", ErrInterrupted, context.Cause(ctx))
	}
	if err := context.Cause(runCtx); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("protocol invariant violated: %d of %d actors finished", finished.Load(), 3*n)
}

// pause sleeps a uniformly drawn duration in [0, bound] milliseconds.
func (r *Reactor) pause(ctx context.Context, bound time.Duration) error {
	if bound <= 0 {
		return ctx.Err()
	}

	r.rngMu.Lock()
	d := time.Duration(r.rng.Int64N(bound.Milliseconds()+1)) * time.Millisecond
	r.rngMu.Unlock()

	if d == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
