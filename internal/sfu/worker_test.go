package sfu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestWorker_TripsAfterConsecutiveFailures covers breaker health: a worker
// that fails 5 calls in a row reports unhealthy, so pickWorker skips it.
func TestWorker_TripsAfterConsecutiveFailures(t *testing.T) {
	w := newWorker(0, testLogger())
	assert.True(t, w.Healthy())

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		err := w.Call(func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.False(t, w.Healthy())
}

func TestWorker_LoadTracking(t *testing.T) {
	w := newWorker(0, testLogger())
	assert.Equal(t, 0, w.load())
	w.incrLoad()
	w.incrLoad()
	assert.Equal(t, 2, w.load())
	w.decrLoad()
	assert.Equal(t, 1, w.load())
}
