package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MaxDelayMs is the largest accepted delay bound, in milliseconds.
const MaxDelayMs = 5000

// ErrInvalidInput marks malformed or out-of-range command-line input.
var ErrInvalidInput = errors.New("invalid input")

// Params are the four positional run parameters: N GH GO B.
type Params struct {
	Molecules       int // N: molecules to assemble, > 0
	HydrogenDelayMs int // GH: bound on the pause between hydrogen spawns
	OxygenDelayMs   int // GO: bound on the pause between oxygen spawns
	BondDelayMs     int // B: bound on the pause before entering the bonding rendezvous
}

// ParseArgs parses exactly four positional integers. Every failure wraps
// ErrInvalidInput.
func ParseArgs(args []string) (*Params, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("%w: expected 4 arguments (N GH GO B), got %d", ErrInvalidInput, len(args))
	}

	names := [4]string{"N", "GH", "GO", "B"}
	var values [4]int
	for i, raw := range args {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidInput, names[i], raw)
		}
		values[i] = v
	}

	p := &Params{
		Molecules:       values[0],
		HydrogenDelayMs: values[1],
		OxygenDelayMs:   values[2],
		BondDelayMs:     values[3],
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks N > 0 and every delay bound in [0, MaxDelayMs].
func (p *Params) Validate() error {
	if p.Molecules <= 0 {
		return fmt.Errorf("%w: N must be > 0, got %d", ErrInvalidInput, p.Molecules)
	}

	delays := []struct {
		name  string
		value int
	}{
		{"GH", p.HydrogenDelayMs},
		{"GO", p.OxygenDelayMs},
		{"B", p.BondDelayMs},
	}
	for _, d := range delays {
		if d.value < 0 || d.value > MaxDelayMs {
			return fmt.Errorf("%w: %s must be in [0, %d], got %d", ErrInvalidInput, d.name, MaxDelayMs, d.value)
		}
	}
	return nil
}

// Actors returns the total number of actors a run spawns.
func (p *Params) Actors() int {
	return 3 * p.Molecules
}

func (p *Params) HydrogenDelay() time.Duration {
	return time.Duration(p.HydrogenDelayMs) * time.Millisecond
}

func (p *Params) OxygenDelay() time.Duration {
	return time.Duration(p.OxygenDelayMs) * time.Millisecond
}

func (p *Params) BondDelay() time.Duration {
	return time.Duration(p.BondDelayMs) * time.Millisecond
}
