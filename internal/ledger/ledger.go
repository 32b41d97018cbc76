// Package ledger implements the append-only, line-sequenced run log that every
// actor reports its phase transitions to.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dyluth/h2o/pkg/runlog"
)

// Mirror receives every entry after it has been written to the backing sink.
// *runlog.Client satisfies Mirror.
type Mirror interface {
	Publish(ctx context.Context, e runlog.Entry) error
}

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("ledger is closed")

// WriteError reports a failure to write, flush or mirror a log line.
// The ledger refuses further appends once one has occurred.
type WriteError struct {
	Entry runlog.Entry
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write log line %d: %v", e.Entry.Seq, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

type flusher interface {
	Flush() error
}

// Ledger serializes appends from concurrently running actors and numbers them.
type Ledger struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	mirrors []Mirror
	seq     int
	failed  error
	closed  bool
}

// New creates a ledger writing to w. If w has a Flush method it is called after
// every line.
func New(w io.Writer, mirrors ...Mirror) *Ledger {
	return &Ledger{w: w, mirrors: mirrors}
}

// Create truncates (or creates) the file at path and returns a ledger writing
// to it. The file is closed by Close.
func Create(path string, mirrors ...Mirror) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := New(f, mirrors...)
	l.closer = f
	return l, nil
}

// Append assigns the next sequence number to the transition, writes the line
// and forwards it to every mirror. The lock is held for the whole operation so
// the file and every mirror observe the same order.
func (l *Ledger) Append(ctx context.Context, kind runlog.Kind, index int, phase runlog.Phase) (runlog.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return runlog.Entry{}, ErrClosed
	}
	if l.failed != nil {
		return runlog.Entry{}, l.failed
	}

	entry := runlog.Entry{Seq: l.seq + 1, Kind: kind, Index: index, Phase: phase}
	if err := entry.Validate(); err != nil {
		return runlog.Entry{}, fmt.Errorf("invalid log entry: %w", err)
	}

	if err := l.write(ctx, entry); err != nil {
		l.failed = &WriteError{Entry: entry, Err: err}
		return runlog.Entry{}, l.failed
	}

	l.seq = entry.Seq
	return entry, nil
}

func (l *Ledger) write(ctx context.Context, entry runlog.Entry) error {
	if _, err := io.WriteString(l.w, entry.Line()+"\n"); err != nil {
		return err
	}
	if f, ok := l.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return err
		}
	}

	for _, m := range l.mirrors {
		if err := m.Publish(ctx, entry); err != nil {
			return fmt.Errorf("mirror: %w", err)
		}
	}
	return nil
}

// Len returns the number of lines written so far.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Close closes the backing file, if the ledger owns one. Safe to call more than once.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
