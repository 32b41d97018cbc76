// Package runlog provides the shared Go definitions for an h2o run log and a
// Redis mirror of it.
//
// # Overview
//
// Every hydrogen and oxygen actor reports its phase transitions as log
// entries. An entry carries a global sequence number, the actor kind, the
// actor's 1-based index within its kind, and the phase label. The canonical
// rendering is one line per entry:
//
//	<seq>\t: <kind> <index>\t:<phase>
//
// Entry.Line renders that form and ParseLine is its exact inverse, so the file
// written by a run can be audited offline.
//
// # Redis Mirror
//
// A run may be mirrored to Redis so it can be watched live from another
// terminal. All keys and channels are namespaced by run name so that several
// runs can share one Redis server:
//
// Lines: h2o:{run}:lines (LIST, append-only)
// Run info: h2o:{run}:info (HASH)
// Line events: h2o:{run}:line_events (Pub/Sub, JSON-encoded entries)
//
// # Usage Example
//
//	client, err := runlog.NewClient(&redis.Options{Addr: "localhost:6379"}, "run-1")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	entry := runlog.Entry{Seq: 1, Kind: runlog.Hydrogen, Index: 1, Phase: runlog.PhaseStarted}
//	if err := client.Publish(ctx, entry); err != nil {
//		log.Fatal(err)
//	}
package runlog
