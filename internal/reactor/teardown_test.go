package reactor

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func TestTeardown_RunsOnceInReverseOrder(t *testing.T) {
	var td Teardown
	var order []string
	td.Add("first", func() error { order = append(order, "first"); return nil })
	td.Add("second", func() error { order = append(order, "second"); return nil })

	closer := &countingCloser{}
	td.AddCloser("closer", closer)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, td.Run())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, closer.calls)
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestTeardown_JoinsErrors(t *testing.T) {
	var td Teardown
	errLog := errors.New("log close failed")
	errRedis := errors.New("redis close failed")
	td.AddCloser("log", &countingCloser{err: errLog})
	td.Add("ok", func() error { return nil })
	td.AddCloser("redis", &countingCloser{err: errRedis})

	err := td.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, errLog)
	assert.ErrorIs(t, err, errRedis)
	assert.Contains(t, err.Error(), "redis: redis close failed")

	assert.Equal(t, err, td.Run(), "later calls return the first result")
}
