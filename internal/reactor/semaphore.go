package reactor

import (
	"container/list"
	"context"
	"sync"
)

// semaphore is a FIFO counting semaphore. release(n) hands a permit to exactly
// n waiters, banking whatever is left over, so "wake two hydrogen waiters" wakes
// two and never more. Permits have no owner: any goroutine may release.
type semaphore struct {
	mu      sync.Mutex
	permits int
	waiters list.List // of chan struct{}
}

func newSemaphore(permits int) *semaphore {
	return &semaphore{permits: permits}
}

// acquire blocks until a permit is available. It only gives up when ctx is
// cancelled, which happens on the interrupt path.
func (s *semaphore) acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.permits > 0 && s.waiters.Len() == 0 {
		s.permits--
		s.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	elem := s.waiters.PushBack(ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-ready:
			// Granted while we were being cancelled; pass the permit on.
			s.mu.Unlock()
			s.release(1)
		default:
			s.waiters.Remove(elem)
			s.mu.Unlock()
		}
		return ctx.Err()
	}
}

// release wakes up to n waiters in arrival order and banks the rest.
func (s *semaphore) release(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ; n > 0; n-- {
		front := s.waiters.Front()
		if front == nil {
			s.permits += n
			return
		}
		s.waiters.Remove(front)
		close(front.Value.(chan struct{}))
	}
}

// available reports banked permits and queued waiters.
func (s *semaphore) available() (permits, waiting int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits, s.waiters.Len()
}

// latch is a one-shot broadcast: once opened every current and future waiter
// passes.
type latch struct {
	once sync.Once
	ch   chan struct{}
}

func newLatch() *latch {
	return &latch{ch: make(chan struct{})}
}

func (l *latch) open() {
	l.once.Do(func() { close(l.ch) })
}

func (l *latch) wait(ctx context.Context) error {
	select {
	case <-l.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *latch) isOpen() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}
