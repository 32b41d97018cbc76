package commands

import (
	"errors"

	"github.com/dyluth/h2o/internal/reactor"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitInvalid     = 1   // invalid input, bad configuration, audit violations
	ExitResource    = 2   // file, Redis or log write failures
	ExitInterrupted = 130 // SIGINT/SIGTERM
)

// exitError attaches an exit code to an error that has already been
// reported to the user.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	if errors.Is(err, reactor.ErrInterrupted) {
		return ExitInterrupted
	}
	// Flag and argument errors from cobra land here too.
	return ExitInvalid
}
