package breaker

import (
	"sync"
	"time"

	"peopleops/webhook-outbox-relay/log"

	"github.com/sony/gobreaker"
)

// Registry holds one circuit breaker per destination name, created lazily
// and kept for the process lifetime. It is process-local state; each relay
// instance decides independently when to stop calling a destination.
type Registry struct {
	mu        sync.RWMutex
	breakers  map[string]*gobreaker.CircuitBreaker
	threshold uint32
	cooldown  time.Duration
}

func NewRegistry(threshold uint32, cooldown time.Duration) *Registry {
	if threshold < 1 {
		threshold = 5
	}

	return &Registry{
		breakers:  map[string]*gobreaker.CircuitBreaker{},
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Execute runs fn behind the destination's breaker. While the breaker is
// open the call fails fast with gobreaker.ErrOpenState and the network is
// never touched; callers treat that as a delivery failure like any other.
func (r *Registry) Execute(destination string, fn func() error) error {
	_, err := r.get(destination).Execute(func() (interface{}, error) {
		return nil, fn()
	})

	return err
}

func (r *Registry) get(destination string) *gobreaker.CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[destination]
	r.mu.RUnlock()

	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok = r.breakers[destination]; ok {
		return cb
	}

	threshold := r.threshold
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "destination-" + destination,
		Timeout: r.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Logger.Warnf("circuit breaker %s moved from %s to %s", name, from, to)
		},
	})
	r.breakers[destination] = cb

	return cb
}
