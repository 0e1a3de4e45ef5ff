// Package memory is the in-process store used by tests and demo
// environments. It enforces the same commit-time guarantees as the MySQL
// store: capacity recount inside CreateBooking and compare-and-set semantics
// on status and retry-count mutations, all under one mutex.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"roomsync/internal/domain"
)

type Store struct {
	mu sync.Mutex

	bookings  map[string]domain.Booking
	roomTypes map[string]domain.RoomType
	ratePlans map[string]domain.RatePlan
	rules     []domain.PricingRule
	bands     []domain.OccupancyPricing
}

func New() *Store {
	return &Store{
		bookings:  make(map[string]domain.Booking),
		roomTypes: make(map[string]domain.RoomType),
		ratePlans: make(map[string]domain.RatePlan),
	}
}

// ---- catalog seeding (catalog CRUD itself is out of scope) ----

func (s *Store) SeedRoomType(rt domain.RoomType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomTypes[rt.ID] = rt
}

func (s *Store) SeedRatePlan(rp domain.RatePlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratePlans[rp.ID] = rp
}

func (s *Store) SeedPricingRule(r domain.PricingRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
}

func (s *Store) SeedOccupancyBand(b domain.OccupancyPricing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.MinOccupancy > b.MaxOccupancy {
		panic(fmt.Sprintf("occupancy band %s: min %d > max %d", b.ID, b.MinOccupancy, b.MaxOccupancy))
	}
	s.bands = append(s.bands, b)
}

// ---- Catalog ----

func (s *Store) GetRoomType(ctx context.Context, id string) (domain.RoomType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.roomTypes[id]
	if !ok {
		return domain.RoomType{}, fmt.Errorf("%w: room type %s", domain.ErrNotFound, id)
	}
	return rt, nil
}

func (s *Store) GetRatePlan(ctx context.Context, id string) (domain.RatePlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rp, ok := s.ratePlans[id]
	if !ok {
		return domain.RatePlan{}, fmt.Errorf("%w: rate plan %s", domain.ErrNotFound, id)
	}
	return rp, nil
}

func (s *Store) PricingRules(ctx context.Context, roomTypeID string) ([]domain.PricingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PricingRule
	for _, r := range s.rules {
		if r.Active && (r.RoomTypeID == "" || r.RoomTypeID == roomTypeID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) OccupancyBands(ctx context.Context, roomTypeID string) ([]domain.OccupancyPricing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OccupancyPricing
	for _, b := range s.bands {
		if b.RoomTypeID == roomTypeID {
			out = append(out, b)
		}
	}
	return out, nil
}

// ---- BookingStore ----

// CreateBooking recounts capacity for every stay night under the store lock;
// the pre-check in the service layer is not the serialization point.
func (s *Store) CreateBooking(ctx context.Context, b *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.roomTypes[b.RoomTypeID]
	if !ok {
		return fmt.Errorf("%w: room type %s", domain.ErrNotFound, b.RoomTypeID)
	}

	for n := b.CheckIn; n.Before(b.CheckOut); n = n.AddDate(0, 0, 1) {
		used := 0
		for _, ex := range s.bookings {
			if ex.RoomTypeID == b.RoomTypeID && ex.Status.Blocks() && ex.OccupiesNight(n) {
				used += ex.Rooms
			}
		}
		if used+b.Rooms > rt.Units {
			return fmt.Errorf("%w on %s", domain.ErrNoAvailability, n.Format("2006-01-02"))
		}
	}

	s.bookings[b.ID] = *b
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	return b, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, from, to domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	if b.Status != from {
		return fmt.Errorf("%w: booking %s is %s, not %s", domain.ErrConflict, id, b.Status, from)
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	s.bookings[id] = b
	return nil
}

func (s *Store) ConfirmBooking(ctx context.Context, id, providerRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	if b.Status != domain.StatusBookingRequested {
		return fmt.Errorf("%w: booking %s is %s", domain.ErrConflict, id, b.Status)
	}
	b.Status = domain.StatusConfirmed
	b.ProviderRef = providerRef
	b.UpdatedAt = time.Now().UTC()
	s.bookings[id] = b
	return nil
}

func (s *Store) IncrementRetry(ctx context.Context, id string, fromRetry int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	if !b.Status.Retryable() || b.RetryCount != fromRetry {
		return fmt.Errorf("%w: booking %s retry state moved", domain.ErrConflict, id)
	}
	b.RetryCount++
	b.UpdatedAt = time.Now().UTC()
	s.bookings[id] = b
	return nil
}

func (s *Store) ListRetryable(ctx context.Context, ceiling int) ([]domain.Booking, error) {
	return s.list(func(b domain.Booking) bool {
		return b.Status.Retryable() && b.RetryCount < ceiling
	}), nil
}

func (s *Store) ListAtRisk(ctx context.Context, ceiling int) ([]domain.Booking, error) {
	return s.list(func(b domain.Booking) bool {
		return b.Status.Retryable() && b.RetryCount >= ceiling
	}), nil
}

func (s *Store) OverlappingBookings(ctx context.Context, roomTypeID string, from, to time.Time) ([]domain.Booking, error) {
	return s.list(func(b domain.Booking) bool {
		return b.RoomTypeID == roomTypeID && b.Status.Blocks() &&
			b.CheckIn.Before(to) && b.CheckOut.After(from)
	}), nil
}

func (s *Store) list(keep func(domain.Booking) bool) []domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Booking
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
