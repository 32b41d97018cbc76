package reactor

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Teardown releases run resources exactly once, whichever of the normal,
// error or interrupt paths reaches it first. Steps run in reverse order of
// registration.
type Teardown struct {
	mu    sync.Mutex
	once  sync.Once
	steps []teardownStep
	err   error
}

type teardownStep struct {
	name string
	fn   func() error
}

// Add registers a named cleanup step. Steps added after Run are ignored.
func (t *Teardown) Add(name string, fn func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, teardownStep{name: name, fn: fn})
}

// AddCloser registers c.Close as a cleanup step.
func (t *Teardown) AddCloser(name string, c io.Closer) {
	t.Add(name, c.Close)
}

// Run executes every step once and returns the joined errors. Later calls
// return the same result without running anything.
func (t *Teardown) Run() error {
	t.once.Do(func() {
		t.mu.Lock()
		steps := t.steps
		t.steps = nil
		t.mu.Unlock()

		var errs []error
		for i := len(steps) - 1; i >= 0; i-- {
			if err := steps[i].fn(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", steps[i].name, err))
			}
		}
		t.err = errors.Join(errs...)
	})
	return t.err
}
