package app

import (
	"context"
	"fmt"
	"time"

	"roomsync/internal/domain"
)

const dateLayout = "2006-01-02"

type AvailabilityResult struct {
	Available        bool           `json:"available"`
	RemainingByNight map[string]int `json:"remaining_by_night"`
	FirstShortNight  string         `json:"first_short_night,omitempty"`
}

type AvailabilityEngine struct {
	store   domain.BookingStore
	catalog domain.Catalog
}

func NewAvailabilityEngine(s domain.BookingStore, c domain.Catalog) *AvailabilityEngine {
	return &AvailabilityEngine{store: s, catalog: c}
}

// Check computes per-night remaining inventory over [checkIn, checkOut) and
// accepts only if every night can absorb the requested room count. The first
// insufficient night is reported on rejection.
func (e *AvailabilityEngine) Check(ctx context.Context, roomTypeID string, checkIn, checkOut time.Time, rooms int) (AvailabilityResult, error) {
	if !checkIn.Before(checkOut) {
		return AvailabilityResult{}, fmt.Errorf("%w: check-in must precede check-out", domain.ErrValidation)
	}
	if rooms < 1 {
		return AvailabilityResult{}, fmt.Errorf("%w: rooms must be positive", domain.ErrValidation)
	}

	remaining, err := e.remainingByNight(ctx, roomTypeID, checkIn, checkOut)
	if err != nil {
		return AvailabilityResult{}, err
	}

	res := AvailabilityResult{Available: true, RemainingByNight: remaining}
	for n := checkIn; n.Before(checkOut); n = n.AddDate(0, 0, 1) {
		if remaining[n.Format(dateLayout)] < rooms {
			res.Available = false
			res.FirstShortNight = n.Format(dateLayout)
			break
		}
	}
	return res, nil
}

// Calendar is the same per-night computation over an arbitrary reporting
// window, independent of any booking attempt.
func (e *AvailabilityEngine) Calendar(ctx context.Context, roomTypeID string, from, to time.Time) (map[string]int, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: window start must precede end", domain.ErrValidation)
	}
	return e.remainingByNight(ctx, roomTypeID, from, to)
}

func (e *AvailabilityEngine) remainingByNight(ctx context.Context, roomTypeID string, from, to time.Time) (map[string]int, error) {
	rt, err := e.catalog.GetRoomType(ctx, roomTypeID)
	if err != nil {
		return nil, err
	}

	existing, err := e.store.OverlappingBookings(ctx, roomTypeID, from, to)
	if err != nil {
		return nil, err
	}

	remaining := make(map[string]int)
	for n := from; n.Before(to); n = n.AddDate(0, 0, 1) {
		used := 0
		for _, b := range existing {
			if b.Status.Blocks() && b.OccupiesNight(n) {
				used += b.Rooms
			}
		}
		remaining[n.Format(dateLayout)] = rt.Units - used
	}
	return remaining, nil
}
