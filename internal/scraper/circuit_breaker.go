package scraper

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CircuitBreaker stops fetching when the source keeps answering with
// blocking responses (403/429)
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration
	logger           *logrus.Logger
	now              func() time.Time

	consecutiveFailures int
	totalRequests       int
	totalFailures       int
	trips               int
	isOpen              bool
	openedAt            time.Time

	mutex sync.Mutex
}

// BreakerStatus is a snapshot of the breaker state
type BreakerStatus struct {
	Open                bool      `json:"open"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalRequests       int       `json:"total_requests"`
	TotalFailures       int       `json:"total_failures"`
	Trips               int       `json:"trips"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
}

// NewCircuitBreaker creates a breaker that opens after failureThreshold
// consecutive blocking responses. A non-positive threshold disables it.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, logger *logrus.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		logger:           logger,
		now:              time.Now,
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed response. Only blocking statuses count
// towards opening the breaker; any other failure ends the streak.
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.totalFailures++
	if !isBlockingStatus(statusCode) {
		cb.consecutiveFailures = 0
		return
	}

	cb.consecutiveFailures++
	if cb.failureThreshold > 0 && !cb.isOpen && cb.consecutiveFailures >= cb.failureThreshold {
		cb.isOpen = true
		cb.openedAt = cb.now()
		cb.trips++
		cb.logger.WithFields(logrus.Fields{
			"component":   "circuit_breaker",
			"status":      statusCode,
			"consecutive": cb.consecutiveFailures,
			"reset_after": cb.resetTimeout.String(),
		}).Warn("circuit breaker open: source is blocking requests")
	}
}

func isBlockingStatus(statusCode int) bool {
	return statusCode == 403 || statusCode == 429
}

// CanProceed checks if requests are allowed. After the reset timeout the
// breaker half-opens: the next request goes through and a single further
// blocking response opens it again.
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		cb.logger.WithField("component", "circuit_breaker").Info("circuit breaker half-open, allowing a probe request")
		cb.isOpen = false
		cb.consecutiveFailures = max(0, cb.failureThreshold-1)
		return true
	}

	return false
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() BreakerStatus {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return BreakerStatus{
		Open:                cb.isOpen,
		ConsecutiveFailures: cb.consecutiveFailures,
		TotalRequests:       cb.totalRequests,
		TotalFailures:       cb.totalFailures,
		Trips:               cb.trips,
		OpenedAt:            cb.openedAt,
	}
}
