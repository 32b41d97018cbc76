package runlog

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the element an actor simulates.
type Kind byte

const (
	// Hydrogen actors are spawned two per molecule.
	Hydrogen Kind = 'H'

	// Oxygen actors are spawned one per molecule.
	Oxygen Kind = 'O'
)

// Char returns the single-character marker used in log lines.
func (k Kind) Char() byte {
	return byte(k)
}

// String returns the marker as a string ("H" or "O").
func (k Kind) String() string {
	return string(rune(k))
}

// Validate checks that k is a known kind.
func (k Kind) Validate() error {
	switch k {
	case Hydrogen, Oxygen:
		return nil
	default:
		return fmt.Errorf("invalid kind %q (must be 'H' or 'O')", rune(k))
	}
}

// MarshalText implements encoding.TextMarshaler so entries encode kinds as "H"/"O".
func (k Kind) MarshalText() ([]byte, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return []byte{byte(k)}, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	if len(text) != 1 {
		return fmt.Errorf("invalid kind %q", string(text))
	}
	parsed := Kind(text[0])
	if err := parsed.Validate(); err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Phase is the label an actor logs on a life-cycle transition.
type Phase string

const (
	PhaseStarted      Phase = "started"
	PhaseWaiting      Phase = "waiting"
	PhaseReady        Phase = "ready"
	PhaseBeginBonding Phase = "begin bonding"
	PhaseBonded       Phase = "bonded"
	PhaseFinished     Phase = "finished"
)

// Rank returns the position of the phase in an actor's life cycle.
// Waiting and ready are alternatives and share rank 1. Unknown phases return -1.
func (p Phase) Rank() int {
	switch p {
	case PhaseStarted:
		return 0
	case PhaseWaiting, PhaseReady:
		return 1
	case PhaseBeginBonding:
		return 2
	case PhaseBonded:
		return 3
	case PhaseFinished:
		return 4
	default:
		return -1
	}
}

// Validate checks that p is one of the six known phases.
func (p Phase) Validate() error {
	if p.Rank() < 0 {
		return fmt.Errorf("invalid phase %q", string(p))
	}
	return nil
}

// Entry is a single line of a run log.
type Entry struct {
	Seq   int   `json:"seq"`   // Global sequence number, starts at 1
	Kind  Kind  `json:"kind"`  // Actor kind
	Index int   `json:"index"` // 1-based index within the kind
	Phase Phase `json:"phase"` // Phase label
}

// Validate checks all fields of the entry.
func (e Entry) Validate() error {
	if e.Seq < 1 {
		return fmt.Errorf("sequence number must be >= 1, got %d", e.Seq)
	}
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if e.Index < 1 {
		return fmt.Errorf("actor index must be >= 1, got %d", e.Index)
	}
	return e.Phase.Validate()
}

// Actor returns the "<kind> <index>" name of the actor that wrote the entry.
func (e Entry) Actor() string {
	return fmt.Sprintf("%c %d", e.Kind.Char(), e.Index)
}

// Line renders the entry without a trailing newline.
func (e Entry) Line() string {
	return fmt.Sprintf("%d\t: %c %d\t:%s", e.Seq, e.Kind.Char(), e.Index, e.Phase)
}

// ParseLine parses a line produced by Entry.Line. A trailing newline is allowed.
func ParseLine(line string) (Entry, error) {
	line = strings.TrimRight(line, "\r\n")

	seqPart, rest, ok := strings.Cut(line, "\t: ")
	if !ok {
		return Entry{}, fmt.Errorf("malformed log line %q: missing sequence separator", line)
	}
	actorPart, phasePart, ok := strings.Cut(rest, "\t:")
	if !ok {
		return Entry{}, fmt.Errorf("malformed log line %q: missing phase separator", line)
	}

	seq, err := strconv.Atoi(seqPart)
	if err != nil {
		return Entry{}, fmt.Errorf("malformed log line %q: invalid sequence number: %w", line, err)
	}

	kindPart, indexPart, ok := strings.Cut(actorPart, " ")
	if !ok || len(kindPart) != 1 {
		return Entry{}, fmt.Errorf("malformed log line %q: invalid actor %q", line, actorPart)
	}
	index, err := strconv.Atoi(indexPart)
	if err != nil {
		return Entry{}, fmt.Errorf("malformed log line %q: invalid actor index: %w", line, err)
	}

	entry := Entry{
		Seq:   seq,
		Kind:  Kind(kindPart[0]),
		Index: index,
		Phase: Phase(phasePart),
	}
	if err := entry.Validate(); err != nil {
		return Entry{}, fmt.Errorf("malformed log line %q: %w", line, err)
	}
	return entry, nil
}

// RunStatus is the life-cycle state of a mirrored run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusFinished    RunStatus = "finished"
	RunStatusInterrupted RunStatus = "interrupted"
	RunStatusFailed      RunStatus = "failed"
)

// Validate checks that s is a known status.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusFinished, RunStatusInterrupted, RunStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid run status %q", string(s))
	}
}

// RunInfo describes a mirrored run. Watchers use Molecules to know when the
// run is complete.
type RunInfo struct {
	Name            string    `json:"name"`
	Molecules       int       `json:"molecules"`
	HydrogenDelayMs int       `json:"hydrogen_delay_ms"`
	OxygenDelayMs   int       `json:"oxygen_delay_ms"`
	BondDelayMs     int       `json:"bond_delay_ms"`
	Status          RunStatus `json:"status"`
	StartedAtMs     int64     `json:"started_at_ms"`
	FinishedAtMs    int64     `json:"finished_at_ms,omitempty"`
}

// Validate checks the run info before it is written.
func (r *RunInfo) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("run name cannot be empty")
	}
	if r.Molecules < 1 {
		return fmt.Errorf("molecules must be >= 1, got %d", r.Molecules)
	}
	return r.Status.Validate()
}

// ExpectedLines returns the number of log lines a complete run produces.
// Every actor logs five lines since waiting and ready are alternatives.
func (r *RunInfo) ExpectedLines() int {
	return 3 * r.Molecules * 5
}
