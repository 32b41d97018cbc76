package reactor

import "context"

// bond is the three-party rendezvous run by the members of the current
// molecule. All three return only after all three have arrived.
func (c *coordinator) bond(ctx context.Context) error {
	if err := c.pause(ctx, c.bondDelay); err != nil {
		return err
	}

	if err := c.bondMu.acquire(ctx); err != nil {
		return err
	}
	c.bondArrivals++

	if c.bondArrivals == 1 {
		if err := c.ready.acquire(ctx); err != nil {
			c.bondMu.release(1)
			return err
		}
	}

	if c.bondArrivals == 3 {
		c.bondArrivals = 0
		c.bondDone.release(2)
		c.bondMu.release(1)
		return nil
	}

	c.bondMu.release(1)
	return c.bondDone.acquire(ctx)
}
