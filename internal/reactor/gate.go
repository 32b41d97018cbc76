package reactor

import (
	"context"

	"github.com/dyluth/h2o/pkg/runlog"
)

// admit runs the group formation gate for an arriving actor. On return the
// actor is either the releaser of a new molecule (state Ready, admission token
// kept) or a waiter (state AwaitingAdmission, token handed back).
func (c *coordinator) admit(ctx context.Context, a *actor) error {
	if err := c.admission.acquire(ctx); err != nil {
		return err
	}
	if err := c.ready.acquire(ctx); err != nil {
		c.admission.release(1)
		return err
	}
	defer c.ready.release(1)

	if a.kind == runlog.Hydrogen {
		c.hydrogen++
	} else {
		c.oxygen++
	}

	if c.hydrogen >= 2 && c.oxygen >= 1 {
		if err := a.enter(ctx, StateReady); err != nil {
			c.admission.release(1)
			return err
		}
		c.releaseMolecule(a)
		return nil
	}

	if err := a.enter(ctx, StateAwaitingAdmission); err != nil {
		c.admission.release(1)
		return err
	}
	c.admission.release(1)
	return nil
}

// releaseMolecule drains two hydrogen and one oxygen and wakes exactly that
// many gate waiters. The caller holds the admission token, which now belongs
// to the new molecule.
func (c *coordinator) releaseMolecule(releaser *actor) {
	c.formed++
	m := &molecule{id: c.formed, token: c.admission}
	c.current = m

	c.observer.OnRelease(Release{
		Molecule: m.id,
		Kind:     releaser.kind,
		Index:    releaser.index,
		Hydrogen: c.hydrogen,
		Oxygen:   c.oxygen,
	})
	c.logger.Debug().
		Int("molecule", m.id).
		Str("releaser", releaser.String()).
		Int("hydrogen", c.hydrogen).
		Int("oxygen", c.oxygen).
		Msg("molecule released")

	c.hydrogen -= 2
	c.oxygen--
	c.hydrogenGate.release(2)
	c.oxygenGate.release(1)
}

// awaitGate blocks until the actor is woken into a molecule and returns it.
func (c *coordinator) awaitGate(ctx context.Context, a *actor) (*molecule, error) {
	if err := c.gate(a.kind).acquire(ctx); err != nil {
		return nil, err
	}
	// current cannot change until this actor has passed the barrier.
	return c.current, nil
}
