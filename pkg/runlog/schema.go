package runlog

import "fmt"

// Redis key pattern helpers
//
// Key pattern: h2o:{run}:{entity}
// Channel pattern: h2o:{run}:{event_type}_events

// LinesKey returns the Redis key of the append-only list of rendered lines.
// Pattern: h2o:{run}:lines
func LinesKey(run string) string {
	return fmt.Sprintf("h2o:%s:lines", run)
}

// InfoKey returns the Redis key of the run info hash.
// Pattern: h2o:{run}:info
func InfoKey(run string) string {
	return fmt.Sprintf("h2o:%s:info", run)
}

// LineEventsChannel returns the Pub/Sub channel carrying JSON-encoded entries.
// Pattern: h2o:{run}:line_events
func LineEventsChannel(run string) string {
	return fmt.Sprintf("h2o:%s:line_events", run)
}
