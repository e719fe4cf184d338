package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var ErrOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a failing dependency for a cooldown period.
// After the cooldown a single trial call is let through; its outcome decides
// whether the breaker closes again. A threshold of zero disables the breaker.
type CircuitBreaker struct {
	name          string
	mu            sync.Mutex
	state         State
	failureCount  int
	lastErrorTime time.Time
	threshold     int
	timeout       time.Duration
	now           func() time.Time
}

func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		state:     StateClosed,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Execute(action func() error) error {
	return cb.ExecuteContext(context.Background(), action)
}

// ExecuteContext is Execute for calls made on behalf of ctx. Failures seen
// after ctx is done are not counted.
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, action func() error) error {
	if cb == nil || cb.threshold <= 0 {
		return action()
	}

	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastErrorTime) <= cb.timeout {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.state = StateHalfOpen
	case StateHalfOpen:
		// a trial call is already in flight
		cb.mu.Unlock()
		return ErrOpen
	}
	cb.mu.Unlock()

	err := action()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && ctx.Err() != nil {
		if cb.state == StateHalfOpen {
			cb.state = StateOpen
		}
		return err
	}

	if err != nil {
		cb.failureCount++
		cb.lastErrorTime = cb.now()

		if cb.failureCount >= cb.threshold || cb.state == StateHalfOpen {
			cb.state = StateOpen
			slog.Warn("Circuit Breaker OPENED", "breaker", cb.name, "failures", cb.failureCount)
		}
		return err
	}

	if cb.state == StateHalfOpen {
		slog.Info("Circuit Breaker RECOVERED", "breaker", cb.name)
	}
	cb.failureCount = 0
	cb.state = StateClosed

	return nil
}
