package crs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"roomsync/internal/domain"
)

// Mock is the deterministic in-memory provider for environments without a
// live CRS. It honors idempotency keys through a local dedup cache: a
// repeated key returns the original result without a second side effect.
type Mock struct {
	mu sync.Mutex

	seen       map[string]domain.ProviderBookingResult
	calls      int
	availCalls int

	degradeNext int
	failNext    int
	unhealthy   bool
}

func NewMock() *Mock {
	return &Mock{seen: make(map[string]domain.ProviderBookingResult)}
}

// DegradeNext scripts the next n booking calls to complete with a degraded
// outcome.
func (m *Mock) DegradeNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degradeNext = n
}

// FailNext scripts the next n booking calls to fail hard, as a timeout would.
func (m *Mock) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

func (m *Mock) SetUnhealthy(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unhealthy = v
}

// Calls reports how many booking calls actually reached the provider,
// idempotent replays excluded.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// AvailabilityCalls reports how many availability queries reached the provider.
func (m *Mock) AvailabilityCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availCalls
}

func (m *Mock) CheckAvailability(ctx context.Context, q domain.ProviderAvailabilityQuery) (domain.ProviderResult, error) {
	m.mu.Lock()
	m.availCalls++
	m.mu.Unlock()
	if !q.CheckIn.Before(q.CheckOut) {
		return domain.ProviderResult{Status: domain.ProviderDegraded, Message: "invalid date range"}, nil
	}
	return domain.ProviderResult{Status: domain.ProviderSuccess, Message: "available", Latency: time.Millisecond}, nil
}

func (m *Mock) CreateOrConfirmBooking(ctx context.Context, req domain.ProviderBookingRequest) (domain.ProviderBookingResult, error) {
	if req.IdempotencyKey == "" {
		return domain.ProviderBookingResult{Status: domain.ProviderDegraded, Message: "missing idempotency key"}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.seen[req.IdempotencyKey]; ok {
		return prev, nil
	}

	if m.failNext > 0 {
		m.failNext--
		return domain.ProviderBookingResult{}, fmt.Errorf("%w: simulated timeout", domain.ErrProviderUnavailable)
	}

	m.calls++

	if m.degradeNext > 0 {
		m.degradeNext--
		// Not cached: a degraded outcome made no reservation, so the next
		// attempt with the same key must reach the provider again.
		return domain.ProviderBookingResult{Status: domain.ProviderDegraded, Message: "inventory sync in progress"}, nil
	}

	ref := strings.ToUpper(strings.ReplaceAll(strings.TrimPrefix(req.IdempotencyKey, "bk-"), "-", ""))
	if len(ref) > 12 {
		ref = ref[:12]
	}
	res := domain.ProviderBookingResult{
		Status:        domain.ProviderSuccess,
		ReservationID: "MOCK-" + ref,
		Message:       "confirmed",
	}
	m.seen[req.IdempotencyKey] = res
	return res, nil
}

func (m *Mock) HealthCheck(ctx context.Context) (domain.ProviderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unhealthy {
		return domain.ProviderResult{Status: domain.ProviderDegraded, Message: "mock degraded", Latency: time.Millisecond}, nil
	}
	return domain.ProviderResult{Status: domain.ProviderSuccess, Message: "ok", Latency: time.Millisecond}, nil
}
