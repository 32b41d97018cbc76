package reactor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/h2o/internal/audit"
	"github.com/dyluth/h2o/internal/config"
	"github.com/dyluth/h2o/internal/ledger"
	"github.com/dyluth/h2o/pkg/runlog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// monitor checks the protocol guarantees as they happen.
type monitor struct {
	mu         sync.Mutex
	releases   []Release
	bonding    map[int]int // molecule -> actors currently in Bonding
	maxBonding int
	members    map[int][]runlog.Kind
	finished   int
	violations []string
}

func newMonitor() *monitor {
	return &monitor{bonding: make(map[int]int), members: make(map[int][]runlog.Kind)}
}

func (m *monitor) OnRelease(r Release) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Hydrogen < 2 || r.Oxygen < 1 {
		m.violations = append(m.violations, fmt.Sprintf("molecule %d released with H=%d O=%d", r.Molecule, r.Hydrogen, r.Oxygen))
	}
	m.releases = append(m.releases, r)
}

func (m *monitor) OnTransition(tr Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch tr.To {
	case StateBonding:
		m.bonding[tr.Molecule]++
		m.members[tr.Molecule] = append(m.members[tr.Molecule], tr.Kind)
		if len(m.bonding) > 1 {
			m.violations = append(m.violations, fmt.Sprintf("molecules bonding concurrently: %v", m.bonding))
		}
		total := 0
		for _, n := range m.bonding {
			total += n
		}
		if total > m.maxBonding {
			m.maxBonding = total
		}
	case StateAwaitingBarrier:
		m.bonding[tr.Molecule]--
		if m.bonding[tr.Molecule] == 0 {
			delete(m.bonding, tr.Molecule)
		}
	case StateFinished:
		m.finished++
	}
}

func params(n, gh, gO, b int) *config.Params {
	return &config.Params{Molecules: n, HydrogenDelayMs: gh, OxygenDelayMs: gO, BondDelayMs: b}
}

func runToCompletion(t *testing.T, p *config.Params, seed uint64) (*Summary, *monitor, []runlog.Entry) {
	t.Helper()

	var buf bytes.Buffer
	mon := newMonitor()
	r, err := New(p, ledger.New(&buf), WithObserver(mon), WithSeed(seed))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := r.Run(ctx)
	require.NoError(t, err)

	entries, err := audit.Parse(&buf)
	require.NoError(t, err)
	return summary, mon, entries
}

func assertHealthy(t *testing.T, n int, mon *monitor, entries []runlog.Entry) {
	t.Helper()

	report := audit.Check(entries, n)
	assert.True(t, report.OK(), "audit violations: %+v", report.Violations)
	assert.Empty(t, mon.violations)
	assert.Len(t, mon.releases, n)
	assert.LessOrEqual(t, mon.maxBonding, 3)
	assert.Equal(t, 3*n, mon.finished)

	for id, kinds := range mon.members {
		hydrogen := 0
		for _, k := range kinds {
			if k == runlog.Hydrogen {
				hydrogen++
			}
		}
		assert.Equal(t, 2, hydrogen, "molecule %d should have two hydrogen members", id)
		assert.Len(t, kinds, 3, "molecule %d should have three members", id)
	}
}

func countPhase(entries []runlog.Entry, kind runlog.Kind, phase runlog.Phase) int {
	n := 0
	for _, e := range entries {
		if e.Kind == kind && e.Phase == phase {
			n++
		}
	}
	return n
}

func TestRun_SingleMolecule(t *testing.T) {
	summary, mon, entries := runToCompletion(t, params(1, 0, 0, 0), 1)

	assert.Equal(t, 1, summary.Molecules)
	assert.Equal(t, 3, summary.Actors)
	assert.Len(t, entries, 15)
	assertHealthy(t, 1, mon, entries)

	for _, phase := range []runlog.Phase{runlog.PhaseStarted, runlog.PhaseBeginBonding, runlog.PhaseBonded, runlog.PhaseFinished} {
		assert.Equal(t, 2, countPhase(entries, runlog.Hydrogen, phase), "hydrogen %s lines", phase)
		assert.Equal(t, 1, countPhase(entries, runlog.Oxygen, phase), "oxygen %s lines", phase)
	}
	assert.Equal(t, 1, countPhase(entries, runlog.Hydrogen, runlog.PhaseReady)+countPhase(entries, runlog.Oxygen, runlog.PhaseReady))
}

func TestRun_TwoMoleculesFormInSequence(t *testing.T) {
	_, mon, entries := runToCompletion(t, params(2, 0, 0, 0), 2)

	assertHealthy(t, 2, mon, entries)
	assert.Len(t, entries, 30)
	assert.Equal(t, 1, mon.releases[0].Molecule)
	assert.Equal(t, 2, mon.releases[1].Molecule)
}

func TestRun_FinishedCounts(t *testing.T) {
	for _, n := range []int{1, 3, 7} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			_, mon, entries := runToCompletion(t, params(n, 0, 0, 0), uint64(n))

			assertHealthy(t, n, mon, entries)
			assert.Equal(t, 2*n, countPhase(entries, runlog.Hydrogen, runlog.PhaseFinished))
			assert.Equal(t, n, countPhase(entries, runlog.Oxygen, runlog.PhaseFinished))
		})
	}
}

func TestRun_RandomInterleavings(t *testing.T) {
	iterations := 40
	if testing.Short() {
		iterations = 5
	}

	for i := 0; i < iterations; i++ {
		n := 1 + i%9
		p := params(n, i%3, (i+1)%3, i%2)
		t.Run(fmt.Sprintf("iter%02d/N=%d", i, n), func(t *testing.T) {
			_, mon, entries := runToCompletion(t, p, uint64(i))
			assertHealthy(t, n, mon, entries)
		})
	}
}

// phaseTrigger cancels a context the first time a given phase is logged.
type phaseTrigger struct {
	*ledger.Ledger
	phase  runlog.Phase
	cancel context.CancelFunc
	once   sync.Once
}

func (j *phaseTrigger) Append(ctx context.Context, kind runlog.Kind, index int, phase runlog.Phase) (runlog.Entry, error) {
	e, err := j.Ledger.Append(ctx, kind, index, phase)
	if phase == j.phase {
		j.once.Do(j.cancel)
	}
	return e, err
}

func TestRun_Interrupted(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	journal := &phaseTrigger{Ledger: ledger.New(&buf), phase: runlog.PhaseBonded, cancel: cancel}
	mon := newMonitor()
	r, err := New(params(3, 0, 0, 0), journal, WithObserver(mon))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInterrupted)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after interrupt")
	}

	assert.Less(t, mon.finished, 9, "an interrupted run cannot finish every actor")
	assert.NotContains(t, buf.String(), ":finished")
}

// countTrigger cancels a context once the journal holds limit lines.
type countTrigger struct {
	*ledger.Ledger
	limit  int
	cancel context.CancelFunc
}

func (j *countTrigger) Append(ctx context.Context, kind runlog.Kind, index int, phase runlog.Phase) (runlog.Entry, error) {
	e, err := j.Ledger.Append(ctx, kind, index, phase)
	if err == nil && e.Seq >= j.limit {
		j.cancel()
	}
	return e, err
}

func TestRun_CancelAfterLastFinishedIsComplete(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			var buf bytes.Buffer
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			journal := &countTrigger{Ledger: ledger.New(&buf), limit: 15 * n, cancel: cancel}
			mon := newMonitor()
			r, err := New(params(n, 0, 0, 0), journal, WithObserver(mon))
			require.NoError(t, err)

			summary, err := r.Run(ctx)
			require.NoError(t, err)
			require.NotNil(t, summary)
			assert.Equal(t, 3*n, summary.Actors)
			assert.Error(t, ctx.Err(), "the caller's context should have been cancelled")

			entries, err := audit.Parse(&buf)
			require.NoError(t, err)
			assert.Len(t, entries, 15*n)
			assertHealthy(t, n, mon, entries)
		})
	}
}

// failingJournal accepts limit appends and then fails.
type failingJournal struct {
	mu    sync.Mutex
	limit int
	calls int
}

var errSinkFull = errors.New("sink full")

func (j *failingJournal) Append(_ context.Context, kind runlog.Kind, index int, phase runlog.Phase) (runlog.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	if j.calls > j.limit {
		return runlog.Entry{}, errSinkFull
	}
	return runlog.Entry{Seq: j.calls, Kind: kind, Index: index, Phase: phase}, nil
}

func TestRun_JournalFailureIsFatal(t *testing.T) {
	for _, limit := range []int{0, 4, 11, 20} {
		t.Run(fmt.Sprintf("after %d lines", limit), func(t *testing.T) {
			r, err := New(params(2, 0, 0, 0), &failingJournal{limit: limit})
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			summary, err := r.Run(ctx)
			require.Error(t, err)
			assert.Nil(t, summary)
			assert.ErrorIs(t, err, errSinkFull)
			assert.NotErrorIs(t, err, ErrInterrupted)
			assert.True(t, strings.HasPrefix(err.Error(), "actor "), "error should name the failing actor: %v", err)
		})
	}
}

func TestRun_DelaysAreHonoured(t *testing.T) {
	start := time.Now()
	_, mon, entries := runToCompletion(t, params(2, 20, 20, 20), 99)
	assertHealthy(t, 2, mon, entries)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNew_Validates(t *testing.T) {
	journal := ledger.New(&bytes.Buffer{})

	_, err := New(nil, journal)
	assert.ErrorContains(t, err, "params are required")

	_, err = New(params(0, 0, 0, 0), journal)
	assert.ErrorIs(t, err, config.ErrInvalidInput)

	_, err = New(params(1, 0, 0, 6000), journal)
	assert.ErrorIs(t, err, config.ErrInvalidInput)

	_, err = New(params(1, 0, 0, 0), nil)
	assert.ErrorContains(t, err, "journal is required")
}

func TestActor_IllegalTransition(t *testing.T) {
	c := newCoordinator(1, 0, ledger.New(&bytes.Buffer{}), nopObserver{}, zerolog.Nop(), func(ctx context.Context, _ time.Duration) error { return ctx.Err() })
	a := newActor(c, runlog.Hydrogen, 1)
	ctx := context.Background()

	err := a.enter(ctx, StateBonding)
	assert.ErrorContains(t, err, "illegal transition none -> bonding")

	require.NoError(t, a.enter(ctx, StateStarted))
	require.NoError(t, a.enter(ctx, StateAwaitingAdmission))
	err = a.enter(ctx, StateReady)
	assert.ErrorContains(t, err, "illegal transition awaiting-admission -> ready")
}

func TestStatePhases(t *testing.T) {
	tests := []struct {
		state State
		phase runlog.Phase
	}{
		{StateStarted, runlog.PhaseStarted},
		{StateAwaitingAdmission, runlog.PhaseWaiting},
		{StateReady, runlog.PhaseReady},
		{StateAwaitingGate, ""},
		{StateBonding, runlog.PhaseBeginBonding},
		{StateAwaitingBarrier, runlog.PhaseBonded},
		{StateFinished, runlog.PhaseFinished},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.phase, tt.state.Phase())
		})
	}
}
