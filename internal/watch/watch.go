// Package watch streams a mirrored run log from Redis to a terminal.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/h2o/pkg/runlog"
	"github.com/rs/zerolog/log"
)

// OutputFormat selects how entries are written.
type OutputFormat string

const (
	// OutputFormatDefault writes entries in the run log line format.
	OutputFormatDefault OutputFormat = "default"
	// OutputFormatJSON writes one JSON object per entry.
	OutputFormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a format name.
func ParseOutputFormat(name string) (OutputFormat, error) {
	switch OutputFormat(name) {
	case OutputFormatDefault, OutputFormatJSON:
		return OutputFormat(name), nil
	}
	return "", fmt.Errorf("unknown output format %q", name)
}

// ErrRunNotFound is returned when the mirror holds no info for the run.
var ErrRunNotFound = errors.New("run not found")

// Source is the read side of a run log mirror. *runlog.Client satisfies it.
type Source interface {
	GetInfo(ctx context.Context) (*runlog.RunInfo, error)
	Entries(ctx context.Context) ([]runlog.Entry, error)
	Subscribe(ctx context.Context) (*runlog.Subscription, error)
}

// PollInterval is how often the run status is re-read while streaming.
var PollInterval = 200 * time.Millisecond

// StreamEntries writes every entry of the run to w in sequence order.
//
// It subscribes before replaying stored entries so nothing published in
// between is missed, and drops duplicates by sequence number. It returns nil
// once every actor has logged finished or the run is no longer running, and
// ctx.Err() if ctx is cancelled first.
func StreamEntries(ctx context.Context, src Source, format OutputFormat, w io.Writer) error {
	info, err := src.GetInfo(ctx)
	if err != nil {
		if runlog.IsNotFound(err) {
			return ErrRunNotFound
		}
		return fmt.Errorf("failed to read run info: %w", err)
	}

	sub, err := src.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	s := &stream{src: src, w: w, format: format, next: 1, expected: 3 * info.Molecules}

	if err := s.catchUp(ctx, 0); err != nil {
		return err
	}
	if s.done() || info.Status != runlog.RunStatusRunning {
		return nil
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	errs := sub.Errors()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case e, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("line event subscription closed")
			}
			if e.Seq > s.next {
				// A live event overtook the replay or an event was dropped.
				if err := s.catchUp(ctx, e.Seq-1); err != nil {
					return err
				}
			}
			if err := s.emit(e); err != nil {
				return err
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn().Err(err).Msg("skipping malformed line event")

		case <-ticker.C:
			info, err := src.GetInfo(ctx)
			if err != nil {
				return fmt.Errorf("failed to read run info: %w", err)
			}
			if info.Status != runlog.RunStatusRunning {
				if err := s.catchUp(ctx, 0); err != nil {
					return err
				}
				return nil
			}
		}

		if s.done() {
			return nil
		}
	}
}

type stream struct {
	src      Source
	w        io.Writer
	format   OutputFormat
	next     int
	expected int
	finished int
}

func (s *stream) done() bool {
	return s.expected > 0 && s.finished >= s.expected
}

// catchUp emits stored entries not yet written, up to seq limit (0 means
// no limit).
func (s *stream) catchUp(ctx context.Context, limit int) error {
	stored, err := s.src.Entries(ctx)
	if err != nil {
		return err
	}
	for _, e := range stored {
		if limit > 0 && e.Seq > limit {
			break
		}
		if err := s.emit(e); err != nil {
			return err
		}
	}
	return nil
}

// emit writes e unless an entry with the same or a later seq was already
// written. A gap is written through and logged as a warning.
func (s *stream) emit(e runlog.Entry) error {
	if e.Seq < s.next {
		return nil
	}
	if e.Seq > s.next {
		log.Warn().Int("expected", s.next).Int("seq", e.Seq).Msg("entries missing from the mirror")
	}
	s.next = e.Seq + 1
	if e.Phase == runlog.PhaseFinished {
		s.finished++
	}

	switch s.format {
	case OutputFormatJSON:
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		_, err = fmt.Fprintf(s.w, "%s\n", line)
		return err
	default:
		_, err := fmt.Fprintln(s.w, e.Line())
		return err
	}
}
