package testsupport

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Epoch is the instant fake clocks start at when no start time is given.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewFakeClock returns a clockwork fake frozen at start. A zero start uses Epoch.
func NewFakeClock(start time.Time) *clockwork.FakeClock {
	if start.IsZero() {
		start = Epoch
	}
	return clockwork.NewFakeClockAt(start)
}
