package sfu

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/syncroom/server/internal/metrics"
)

// Worker is one slot in the SFU's fixed media-worker pool. It doesn't own
// an OS process the way a real mediasoup worker would; it owns a breaker,
// fed by Call, whose open state marks the worker unhealthy for router
// assignment, standing in for "the worker is wedged" detection before a
// fatal exit. The Bridge's router operations do not run through Call, so
// the breaker changes state only for work passed to Call directly.
type Worker struct {
	id      int
	breaker *gobreaker.CircuitBreaker

	mu     sync.Mutex
	routed int // number of routers currently assigned to this worker

	logger *slog.Logger
}

// newWorker constructs a Worker with its own circuit breaker. A breaker
// trips after 5 consecutive failures and half-opens after 10s, at which
// point a single trial call decides whether it's healthy again.
func newWorker(id int, logger *slog.Logger) *Worker {
	w := &Worker{id: id, logger: logger.With("component", "sfu.worker", "worker_id", id)}
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("sfu-worker-%d", id),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.logger.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
			switch {
			case to == gobreaker.StateOpen && from != gobreaker.StateOpen:
				metrics.SFUWorkersBusy.Inc()
			case from == gobreaker.StateOpen && to != gobreaker.StateOpen:
				metrics.SFUWorkersBusy.Dec()
			}
		},
	})
	return w
}

// Call runs fn through the worker's circuit breaker, so repeated failures
// (a wedged worker) are detected before the pool keeps routing new routers
// to it.
func (w *Worker) Call(fn func() error) error {
	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// Healthy reports whether the breaker currently allows calls.
func (w *Worker) Healthy() bool {
	return w.breaker.State() != gobreaker.StateOpen
}

func (w *Worker) incrLoad() {
	w.mu.Lock()
	w.routed++
	w.mu.Unlock()
}

func (w *Worker) decrLoad() {
	w.mu.Lock()
	if w.routed > 0 {
		w.routed--
	}
	w.mu.Unlock()
}

func (w *Worker) load() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.routed
}
