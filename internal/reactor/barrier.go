package reactor

import "context"

// complete is the completion barrier. The third member of a molecule to get
// here hands the admission token back so the next molecule can form; every
// actor then waits until all 3N actors have bonded.
func (c *coordinator) complete(ctx context.Context, m *molecule) error {
	c.tallyMu.Lock()
	c.barrierArrivals++
	c.completed++

	if c.barrierArrivals == 3 {
		c.barrierArrivals = 0
		c.ready.release(1)
		m.handBack()
		c.logger.Debug().Int("molecule", m.id).Int("completed", c.completed).Msg("molecule complete")
	}

	done := c.completed == 3*c.target
	c.tallyMu.Unlock()

	if done {
		c.logger.Debug().Int("actors", 3*c.target).Msg("all actors bonded")
		c.finished.open()
		return nil
	}
	return c.finished.wait(ctx)
}
