package scraper

import (
	"testing"
	"time"

	"skimeister/internal/logging"
)

func TestCircuitBreakerOpensOnConsecutiveBlocks(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, logging.Discard())

	cb.RecordFailure(403)
	cb.RecordFailure(429)
	if !cb.CanProceed() {
		t.Fatalf("expected breaker closed below threshold")
	}
	cb.RecordFailure(403)
	if cb.CanProceed() {
		t.Fatalf("expected breaker open at threshold")
	}
	if status := cb.GetStatus(); !status.Open || status.Trips != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestCircuitBreakerIgnoresNonBlockingFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, logging.Discard())
	for i := 0; i < 5; i++ {
		cb.RecordFailure(500)
		cb.RecordFailure(0)
	}
	if !cb.CanProceed() {
		t.Fatalf("expected 5xx and connection errors not to open the breaker")
	}
	if status := cb.GetStatus(); status.TotalFailures != 10 {
		t.Fatalf("expected failures to be counted, got %+v", status)
	}
}

func TestCircuitBreakerNonBlockingFailureResetsStreak(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, logging.Discard())
	cb.RecordFailure(403)
	cb.RecordFailure(500)
	cb.RecordFailure(403)
	if !cb.CanProceed() {
		t.Fatalf("expected a 5xx between blocks to reset the consecutive count")
	}
	if status := cb.GetStatus(); status.ConsecutiveFailures != 1 {
		t.Fatalf("expected one consecutive block, got %+v", status)
	}

	cb.RecordFailure(0)
	cb.RecordFailure(429)
	if !cb.CanProceed() {
		t.Fatalf("expected a connection error between blocks to reset the consecutive count")
	}
}

func TestCircuitBreakerSuccessResetsStreak(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, logging.Discard())
	cb.RecordFailure(429)
	cb.RecordSuccess()
	cb.RecordFailure(429)
	if !cb.CanProceed() {
		t.Fatalf("expected success to reset the consecutive count")
	}
}

func TestCircuitBreakerHalfOpensAfterReset(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, logging.Discard())
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return clock }

	cb.RecordFailure(403)
	cb.RecordFailure(403)
	if cb.CanProceed() {
		t.Fatalf("expected open breaker")
	}

	clock = clock.Add(2 * time.Minute)
	if !cb.CanProceed() {
		t.Fatalf("expected half-open breaker after reset timeout")
	}

	// a single further block re-opens it
	cb.RecordFailure(403)
	if cb.CanProceed() {
		t.Fatalf("expected breaker to re-open after a failed probe")
	}
	if cb.GetStatus().Trips != 2 {
		t.Fatalf("expected two trips, got %d", cb.GetStatus().Trips)
	}
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := NewCircuitBreaker(0, time.Minute, logging.Discard())
	for i := 0; i < 10; i++ {
		cb.RecordFailure(403)
	}
	if !cb.CanProceed() {
		t.Fatalf("expected disabled breaker to stay closed")
	}
}
