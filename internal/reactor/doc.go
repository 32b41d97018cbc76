// Package reactor assembles water molecules from independently scheduled
// hydrogen and oxygen actors.
//
// Each actor is a goroutine that runs a fixed, linear life cycle over a shared
// coordinator:
//
//	Started → AwaitingAdmission | Ready → AwaitingGate → Bonding → AwaitingBarrier → Finished
//
// The protocol has three rendezvous points:
//
//   - Group formation gate. Under the admission token an arriving actor bumps
//     its kind's available count. If two hydrogen and one oxygen are available
//     it becomes the releaser: it wakes exactly two hydrogen and one oxygen
//     waiters and keeps the admission token for the lifetime of the molecule.
//     Otherwise it hands the token back and waits on its kind's release gate.
//   - Bonding rendezvous. The three members of the current molecule meet at a
//     three-party barrier; nobody leaves before all three have arrived.
//   - Completion barrier. The last member of a molecule to reach it hands the
//     admission token back, letting the next molecule form. Every actor then
//     waits until all 3N actors have bonded.
//
// Because the admission token is held from release until the molecule's
// barrier step, molecules are assembled strictly one at a time.
package reactor
