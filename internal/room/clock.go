package room

import "time"

// Clock abstracts time so the playback anchor, grace windows, and idle
// destruction timer can be tested without real sleeps. Production code
// uses realClock; tests inject a fake that advances deterministically.
type Clock interface {
	Now() time.Time
}

// realClock is the production Clock, backed by time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the default Clock used outside of tests.
var RealClock Clock = realClock{}
