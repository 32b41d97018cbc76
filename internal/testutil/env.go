// Package testutil provides an isolated Redis-backed environment for tests
// that exercise the run log mirror.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/h2o/pkg/runlog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// Environment is one test's private workspace: a temp directory, an
// in-memory Redis server and a mirror client for a unique run name.
type Environment struct {
	T        *testing.T
	TmpDir   string
	Redis    *miniredis.Miniredis
	RedisURL string
	RunName  string
	Client   *runlog.Client
}

// SetupEnvironment starts miniredis and creates a client for a fresh run
// name. Everything is cleaned up when the test ends.
func SetupEnvironment(t *testing.T) *Environment {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	runName := fmt.Sprintf("test-%s", uuid.NewString()[:8])
	client, err := runlog.NewClient(&redis.Options{Addr: mr.Addr()}, runName)
	require.NoError(t, err, "Failed to create run log client")
	t.Cleanup(func() { client.Close() })

	return &Environment{
		T:        t,
		TmpDir:   t.TempDir(),
		Redis:    mr,
		RedisURL: "redis://" + mr.Addr(),
		RunName:  runName,
		Client:   client,
	}
}

// Path returns a path inside the environment's temp directory.
func (env *Environment) Path(name string) string {
	return filepath.Join(env.TmpDir, name)
}

// ReadFile returns the content of a file in the temp directory.
func (env *Environment) ReadFile(name string) string {
	env.T.Helper()
	data, err := os.ReadFile(env.Path(name))
	require.NoError(env.T, err, "Failed to read %s", name)
	return string(data)
}

// SetInfo records run info for the environment's run.
func (env *Environment) SetInfo(molecules int, status runlog.RunStatus) {
	env.T.Helper()
	require.NoError(env.T, env.Client.SetInfo(context.Background(), &runlog.RunInfo{
		Name:        env.RunName,
		Molecules:   molecules,
		Status:      status,
		StartedAtMs: time.Now().UnixMilli(),
	}))
}

// Publish mirrors entries for the environment's run.
func (env *Environment) Publish(entries ...runlog.Entry) {
	env.T.Helper()
	for _, e := range entries {
		require.NoError(env.T, env.Client.Publish(context.Background(), e))
	}
}

// WaitForStatus polls run info until it reports status or timeout expires.
func (env *Environment) WaitForStatus(status runlog.RunStatus, timeout time.Duration) *runlog.RunInfo {
	env.T.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		info, err := env.Client.GetInfo(ctx)
		if err == nil && info.Status == status {
			return info
		}
		if err != nil && !runlog.IsNotFound(err) && ctx.Err() == nil {
			require.NoError(env.T, err, "Failed to read run info")
		}

		select {
		case <-ctx.Done():
			require.FailNow(env.T, "Timed out waiting for run status", "want %s", status)
			return nil
		case <-ticker.C:
		}
	}
}

// OneMolecule returns a complete, consistent log of a single-molecule run.
func OneMolecule() []runlog.Entry {
	type actor struct {
		kind  runlog.Kind
		index int
	}
	actors := []actor{{runlog.Hydrogen, 1}, {runlog.Hydrogen, 2}, {runlog.Oxygen, 1}}

	var entries []runlog.Entry
	add := func(a actor, phase runlog.Phase) {
		entries = append(entries, runlog.Entry{Seq: len(entries) + 1, Kind: a.kind, Index: a.index, Phase: phase})
	}

	for _, a := range actors {
		add(a, runlog.PhaseStarted)
	}
	add(actors[0], runlog.PhaseWaiting)
	add(actors[1], runlog.PhaseWaiting)
	add(actors[2], runlog.PhaseReady)
	for _, phase := range []runlog.Phase{runlog.PhaseBeginBonding, runlog.PhaseBonded, runlog.PhaseFinished} {
		for _, a := range actors {
			add(a, phase)
		}
	}
	return entries
}
