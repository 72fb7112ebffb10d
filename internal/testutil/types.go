package testutil

import "time"

// ExecutionRecord holds the start and end times for a single sleep call.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}
