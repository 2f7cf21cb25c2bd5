package source

import (
	"log"
	"sync"
	"time"
)

// CircuitBreaker stops calling a source after repeated failures
type CircuitBreaker struct {
	name             string
	failureThreshold int
	resetTimeout     time.Duration
	now              func() time.Time

	consecutiveFailures int
	totalFailures       int
	totalRequests       int
	isOpen              bool
	openedAt            time.Time

	mutex sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// RecordSuccess closes the breaker and clears the failure streak
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.consecutiveFailures = 0
	cb.isOpen = false
}

// RecordFailure counts a failed call and opens the breaker at the threshold
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.totalFailures++
	cb.consecutiveFailures++

	if !cb.isOpen && cb.consecutiveFailures >= cb.failureThreshold {
		cb.isOpen = true
		cb.openedAt = cb.now()
		log.Printf("CircuitBreaker: %s open after %d consecutive failures, retry after %v",
			cb.name, cb.consecutiveFailures, cb.resetTimeout)
	}
}

// CanProceed reports whether a call is allowed. After the reset timeout an
// open breaker lets one trial call through.
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		log.Printf("CircuitBreaker: %s half-open after %v", cb.name, cb.resetTimeout)
		cb.isOpen = false
		cb.consecutiveFailures = cb.failureThreshold - 1
		return true
	}

	return false
}

// Status returns current circuit breaker status
func (cb *CircuitBreaker) Status() (isOpen bool, failures int, total int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen, cb.totalFailures, cb.totalRequests
}
