package domain

import (
	"context"
	"time"
)

// BookingStore is the persistence port for bookings. Implementations must
// enforce two things the services rely on for correctness:
//
//   - CreateBooking enforces inventory capacity at commit time: if inserting
//     the booking would push any stay night over the room type's unit count,
//     it returns ErrNoAvailability. The availability pre-check in the service
//     layer is an optimization only.
//   - IncrementRetry is a compare-and-set: it increments retry_count only if
//     the stored value still equals fromRetry and the status is retryable,
//     returning ErrConflict otherwise. Concurrent sweeps must not burn two
//     budget units for one attempt.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)

	// UpdateStatus transitions id between statuses, compare-and-set on the
	// current status. Returns ErrConflict when the booking already moved.
	UpdateStatus(ctx context.Context, id string, from, to Status) error

	// ConfirmBooking sets status=confirmed and records the provider
	// reservation reference, guarded on status=booking_requested.
	ConfirmBooking(ctx context.Context, id, providerRef string) error

	IncrementRetry(ctx context.Context, id string, fromRetry int) error

	// ListRetryable returns bookings in a retryable status with
	// retry_count strictly below ceiling.
	ListRetryable(ctx context.Context, ceiling int) ([]Booking, error)

	// ListAtRisk returns bookings in a retryable status with retry_count at
	// or above ceiling. These need operator attention, not more retries.
	ListAtRisk(ctx context.Context, ceiling int) ([]Booking, error)

	// OverlappingBookings returns bookings for the room type in a blocking
	// status whose stay intersects [from, to).
	OverlappingBookings(ctx context.Context, roomTypeID string, from, to time.Time) ([]Booking, error)
}

// Catalog is the read-only port over room types, rate plans and pricing
// configuration. Catalog CRUD itself is owned elsewhere.
type Catalog interface {
	GetRoomType(ctx context.Context, id string) (RoomType, error)
	GetRatePlan(ctx context.Context, id string) (RatePlan, error)

	// PricingRules returns active rules scoped to the room type plus active
	// global rules.
	PricingRules(ctx context.Context, roomTypeID string) ([]PricingRule, error)

	OccupancyBands(ctx context.Context, roomTypeID string) ([]OccupancyPricing, error)
}

// ProviderStatus is the normalized outcome of a completed provider call.
// Hard failures (timeout, network) surface as an error instead.
type ProviderStatus string

const (
	ProviderSuccess  ProviderStatus = "success"
	ProviderDegraded ProviderStatus = "degraded"
)

type ProviderResult struct {
	Status  ProviderStatus
	Message string
	Latency time.Duration
}

type ProviderAvailabilityQuery struct {
	CheckIn  time.Time
	CheckOut time.Time
	Adults   int
	Children int
}

// ProviderBookingRequest carries externally-mapped codes; the idempotency key
// is derived from the booking id so repeated delivery is a provider-side no-op.
type ProviderBookingRequest struct {
	IdempotencyKey string
	RoomTypeCode   string
	RatePlanCode   string
	CheckIn        time.Time
	CheckOut       time.Time
	Rooms          int
	Adults         int
	Children       int
	GuestName      string
	GuestEmail     string
}

type ProviderBookingResult struct {
	Status        ProviderStatus
	ReservationID string
	Message       string
}

// Provider is the CRS adapter port. The implementation (mock or HTTP) is
// chosen from configuration at process start.
type Provider interface {
	CheckAvailability(ctx context.Context, q ProviderAvailabilityQuery) (ProviderResult, error)
	CreateOrConfirmBooking(ctx context.Context, req ProviderBookingRequest) (ProviderBookingResult, error)
	HealthCheck(ctx context.Context) (ProviderResult, error)
}

// CodeMapper translates internal room type / rate plan identifiers into the
// external system's vocabulary.
type CodeMapper interface {
	RoomTypeCode(id, code string) string
	RatePlanCode(id, code string) string
}

// Limiter is the request-rate guard. The in-process map is one implementation;
// a shared-store implementation backs multi-instance deployments.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
