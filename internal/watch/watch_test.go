package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/h2o/internal/testutil"
	"github.com/dyluth/h2o/pkg/runlog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer lets the test read output while StreamEntries writes it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func render(entries []runlog.Entry) string {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Line())
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestParseOutputFormat(t *testing.T) {
	f, err := ParseOutputFormat("default")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatDefault, f)

	f, err = ParseOutputFormat("json")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatJSON, f)

	_, err = ParseOutputFormat("yaml")
	assert.ErrorContains(t, err, `unknown output format "yaml"`)
}

func TestStreamEntries(t *testing.T) {
	ctx := context.Background()

	t.Run("replays a finished run", func(t *testing.T) {
		env := testutil.SetupEnvironment(t)
		env.SetInfo(1, runlog.RunStatusRunning)
		entries := testutil.OneMolecule()
		env.Publish(entries...)
		env.SetInfo(1, runlog.RunStatusFinished)

		var out bytes.Buffer
		require.NoError(t, StreamEntries(ctx, env.Client, OutputFormatDefault, &out))
		assert.Equal(t, render(entries), out.String())
	})

	t.Run("follows a live run until every actor finished", func(t *testing.T) {
		env := testutil.SetupEnvironment(t)
		env.SetInfo(1, runlog.RunStatusRunning)
		entries := testutil.OneMolecule()
		env.Publish(entries[:5]...)

		var out syncBuffer
		done := make(chan error, 1)
		go func() { done <- StreamEntries(ctx, env.Client, OutputFormatDefault, &out) }()

		for _, e := range entries[5:] {
			time.Sleep(5 * time.Millisecond)
			env.Publish(e)
		}

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("StreamEntries did not return")
		}
		assert.Equal(t, render(entries), out.String())
	})

	t.Run("writes JSON lines", func(t *testing.T) {
		env := testutil.SetupEnvironment(t)
		env.SetInfo(1, runlog.RunStatusFinished)
		entries := testutil.OneMolecule()
		env.Publish(entries...)

		var out bytes.Buffer
		require.NoError(t, StreamEntries(ctx, env.Client, OutputFormatJSON, &out))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, len(entries))

		var first runlog.Entry
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		assert.Equal(t, entries[0], first)
		assert.Contains(t, lines[5], `"kind":"O"`)
	})

	t.Run("stops when the run is interrupted", func(t *testing.T) {
		env := testutil.SetupEnvironment(t)
		env.SetInfo(1, runlog.RunStatusRunning)
		entries := testutil.OneMolecule()
		env.Publish(entries[:7]...)

		var out syncBuffer
		done := make(chan error, 1)
		go func() { done <- StreamEntries(ctx, env.Client, OutputFormatDefault, &out) }()

		time.Sleep(50 * time.Millisecond)
		env.SetInfo(1, runlog.RunStatusInterrupted)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("StreamEntries did not notice the interrupted run")
		}
		assert.Equal(t, render(entries[:7]), out.String())
	})

	t.Run("returns on context cancellation", func(t *testing.T) {
		env := testutil.SetupEnvironment(t)
		env.SetInfo(1, runlog.RunStatusRunning)

		cctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		err := StreamEntries(cctx, env.Client, OutputFormatDefault, &bytes.Buffer{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("unknown run", func(t *testing.T) {
		env := testutil.SetupEnvironment(t)
		err := StreamEntries(ctx, env.Client, OutputFormatDefault, &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}

func TestStream_GapIsWrittenAndLogged(t *testing.T) {
	var logs bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&logs)
	t.Cleanup(func() { log.Logger = prev })

	entries := testutil.OneMolecule()
	var out bytes.Buffer
	s := &stream{w: &out, format: OutputFormatDefault, next: 1, expected: 3}

	require.NoError(t, s.emit(entries[0]))
	require.NoError(t, s.emit(entries[2]))
	require.NoError(t, s.emit(entries[1]), "a late entry behind the gap")

	assert.Equal(t, render([]runlog.Entry{entries[0], entries[2]}), out.String())
	assert.Equal(t, 4, s.next)

	line := logs.String()
	assert.Contains(t, line, `"level":"warn"`)
	assert.Contains(t, line, `"expected":2`)
	assert.Contains(t, line, `"seq":3`)
	assert.Equal(t, 1, strings.Count(line, "\n"), "only the gap is logged")
}
