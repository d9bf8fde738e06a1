package bridge

import "time"

// DefaultStartupGrace is how long after connecting events are discarded.
// The platform may replay the last message on connect.
const DefaultStartupGrace = 500 * time.Millisecond

// Suppressor drops events that arrive too soon after the connection started.
// It is a heuristic: a message sent inside the window is lost, and a replay
// delivered after it is dispatched twice.
type Suppressor struct {
	Grace time.Duration
}

// ShouldSuppress reports whether an event seen at now falls inside the grace
// window. The window is half-open: exactly Grace after connectTime passes.
func (s Suppressor) ShouldSuppress(now, connectTime time.Time) bool {
	return now.Sub(connectTime) < s.Grace
}
