package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"roomsync/internal/domain"
)

// ConfirmPolicy configures the confirmation/retry loop.
type ConfirmPolicy struct {
	// RetryCeiling bounds automated plus manual confirmation attempts.
	RetryCeiling int
	// WebhookConsumesBudget makes the payment-webhook path consume a retry
	// budget unit like admin retries do. The source systems disagree on this,
	// so it is policy, not hardcoded behavior.
	WebhookConsumesBudget bool
	// SweepWorkers bounds sweep fan-out.
	SweepWorkers int
}

func DefaultConfirmPolicy() ConfirmPolicy {
	return ConfirmPolicy{RetryCeiling: 12, SweepWorkers: 4}
}

// FinalizeOutcome classifies one confirmation attempt.
type FinalizeOutcome string

const (
	OutcomeConfirmed   FinalizeOutcome = "confirmed"
	OutcomeNoop        FinalizeOutcome = "noop"        // booking already past the retryable states
	OutcomeDegraded    FinalizeOutcome = "degraded"    // provider answered, did not confirm
	OutcomeUnavailable FinalizeOutcome = "unavailable" // provider call could not complete
)

type FinalizeResult struct {
	BookingID   string          `json:"booking_id"`
	Status      domain.Status   `json:"status"`
	Outcome     FinalizeOutcome `json:"outcome"`
	Message     string          `json:"message,omitempty"`
	ProviderRef string          `json:"provider_ref,omitempty"`
	RetryCount  int             `json:"retry_count"`
}

type SweepOutcome struct {
	BookingID string          `json:"booking_id"`
	Outcome   FinalizeOutcome `json:"outcome"`
	Message   string          `json:"message,omitempty"`
}

type SweepSummary struct {
	Processed    int            `json:"processed"`
	Succeeded    int            `json:"succeeded"`
	StillPending int            `json:"still_pending"`
	AtRisk       int            `json:"at_risk"`
	Outcomes     []SweepOutcome `json:"outcomes"`
}

// ConfirmService drives bookings from payment confirmation through external
// CRS registration to a terminal state.
type ConfirmService struct {
	store    domain.BookingStore
	catalog  domain.Catalog
	provider domain.Provider
	mapper   domain.CodeMapper
	policy   ConfirmPolicy
}

func NewConfirmService(store domain.BookingStore, catalog domain.Catalog, provider domain.Provider, mapper domain.CodeMapper, policy ConfirmPolicy) *ConfirmService {
	if policy.RetryCeiling <= 0 {
		policy.RetryCeiling = DefaultConfirmPolicy().RetryCeiling
	}
	if policy.SweepWorkers <= 0 {
		policy.SweepWorkers = DefaultConfirmPolicy().SweepWorkers
	}
	return &ConfirmService{store: store, catalog: catalog, provider: provider, mapper: mapper, policy: policy}
}

// IdempotencyKey derives the stable provider-side dedup key for a booking.
// Every attempt for the same booking reuses it, so a timed-out call can be
// reissued safely under the "no effect assumed" rule.
func IdempotencyKey(bookingID string) string { return "bk-" + bookingID }

// FinalizeFromWebhook is the idempotent finalize step. A booking already past
// the retryable states yields a no-op result, never an error. Degraded and
// unavailable provider outcomes leave the booking retryable and do not touch
// the retry counter; attempt bookkeeping belongs to the retry path.
func (s *ConfirmService) FinalizeFromWebhook(ctx context.Context, bookingID string) (FinalizeResult, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return FinalizeResult{}, err
	}

	res := FinalizeResult{BookingID: b.ID, Status: b.Status, RetryCount: b.RetryCount}
	if !b.Status.Retryable() {
		res.Outcome = OutcomeNoop
		res.Message = fmt.Sprintf("booking already %s", b.Status)
		return res, nil
	}

	if b.Status == domain.StatusPaymentSuccess {
		err := s.store.UpdateStatus(ctx, b.ID, domain.StatusPaymentSuccess, domain.StatusBookingRequested)
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return FinalizeResult{}, err
		}
		if err != nil {
			// Lost a race; reload and re-evaluate rather than assuming.
			return s.FinalizeFromWebhook(ctx, bookingID)
		}
		b.Status = domain.StatusBookingRequested
		res.Status = b.Status
	}

	req, err := s.providerRequest(ctx, b)
	if err != nil {
		return FinalizeResult{}, err
	}

	out, err := s.provider.CreateOrConfirmBooking(ctx, req)
	if err != nil {
		// Timeout or network failure: no effect assumed, booking stays
		// retryable, surfaced for operational alerting.
		log.Error().Err(err).Str("booking", b.ID).Msg("provider call failed")
		res.Outcome = OutcomeUnavailable
		res.Message = err.Error()
		return res, nil
	}

	switch out.Status {
	case domain.ProviderSuccess:
		if err := s.store.ConfirmBooking(ctx, b.ID, out.ReservationID); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// A concurrent attempt confirmed first; same terminal state.
				return s.noopCurrent(ctx, bookingID)
			}
			return FinalizeResult{}, err
		}
		log.Info().Str("booking", b.ID).Str("provider_ref", out.ReservationID).Msg("booking confirmed")
		res.Status = domain.StatusConfirmed
		res.Outcome = OutcomeConfirmed
		res.ProviderRef = out.ReservationID
		res.Message = out.Message
	default:
		log.Warn().Str("booking", b.ID).Str("detail", out.Message).Msg("provider degraded, booking stays retryable")
		res.Outcome = OutcomeDegraded
		res.Message = out.Message
	}
	return res, nil
}

// RetryConfirmation consumes one retry budget unit and reattempts the
// finalize step. The increment happens before the provider call so the
// counter reflects attempts made even if the call crashes mid-flight.
func (s *ConfirmService) RetryConfirmation(ctx context.Context, bookingID string) (FinalizeResult, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return FinalizeResult{}, err
	}
	if !b.Status.Retryable() {
		return FinalizeResult{}, fmt.Errorf("%w: booking is %s", domain.ErrConflict, b.Status)
	}
	if b.RetryCount >= s.policy.RetryCeiling {
		return FinalizeResult{}, fmt.Errorf("%w (%d attempts); booking needs manual review", domain.ErrRetryLimit, b.RetryCount)
	}

	if err := s.store.IncrementRetry(ctx, b.ID, b.RetryCount); err != nil {
		return FinalizeResult{}, err
	}

	res, err := s.FinalizeFromWebhook(ctx, bookingID)
	if err != nil {
		return FinalizeResult{}, err
	}
	res.RetryCount = b.RetryCount + 1
	return res, nil
}

// MarkPaymentReceived is the payment webhook entry point: it advances the
// booking to payment_success (idempotently) and runs one finalize attempt.
// Whether that attempt consumes retry budget is policy.
func (s *ConfirmService) MarkPaymentReceived(ctx context.Context, bookingID string) (FinalizeResult, error) {
	err := s.store.UpdateStatus(ctx, bookingID, domain.StatusPaymentPending, domain.StatusPaymentSuccess)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return FinalizeResult{}, err
	}
	if s.policy.WebhookConsumesBudget {
		res, err := s.RetryConfirmation(ctx, bookingID)
		if errors.Is(err, domain.ErrRetryLimit) || errors.Is(err, domain.ErrConflict) {
			// Webhook delivery must stay idempotent even at the ceiling.
			return s.noopCurrent(ctx, bookingID)
		}
		return res, err
	}
	return s.FinalizeFromWebhook(ctx, bookingID)
}

// MarkManualReview is the explicit operator override for a stuck booking.
func (s *ConfirmService) MarkManualReview(ctx context.Context, bookingID string) error {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if !b.Status.Retryable() {
		return fmt.Errorf("%w: booking is %s", domain.ErrConflict, b.Status)
	}
	return s.store.UpdateStatus(ctx, b.ID, b.Status, domain.StatusManualReview)
}

// AtRisk reports bookings at or above the retry ceiling still awaiting
// confirmation. Reaching the ceiling is a durable state, not an error.
func (s *ConfirmService) AtRisk(ctx context.Context) ([]domain.Booking, error) {
	return s.store.ListAtRisk(ctx, s.policy.RetryCeiling)
}

// SweepOnce re-drives every stuck booking below the ceiling with bounded
// fan-out. Safe to run concurrently with itself: the CAS retry increment
// makes one of two racing attempts a no-op.
func (s *ConfirmService) SweepOnce(ctx context.Context) (SweepSummary, error) {
	stuck, err := s.store.ListRetryable(ctx, s.policy.RetryCeiling)
	if err != nil {
		return SweepSummary{}, err
	}

	sum := SweepSummary{Processed: len(stuck)}
	var mu sync.Mutex
	sem := semaphore.NewWeighted(int64(s.policy.SweepWorkers))
	var wg sync.WaitGroup

	for _, b := range stuck {
		if err := sem.Acquire(ctx, 1); err != nil {
			return SweepSummary{}, err
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)

			out := SweepOutcome{BookingID: id}
			res, rerr := s.RetryConfirmation(ctx, id)
			switch {
			case rerr != nil && errors.Is(rerr, domain.ErrConflict):
				// Lost a race with a concurrent retry or the booking moved on.
				out.Outcome = OutcomeNoop
				out.Message = rerr.Error()
			case rerr != nil:
				out.Outcome = OutcomeUnavailable
				out.Message = rerr.Error()
			default:
				out.Outcome = res.Outcome
				out.Message = res.Message
			}

			mu.Lock()
			if out.Outcome == OutcomeConfirmed {
				sum.Succeeded++
			} else if out.Outcome != OutcomeNoop {
				sum.StillPending++
			}
			sum.Outcomes = append(sum.Outcomes, out)
			mu.Unlock()
		}(b.ID)
	}
	wg.Wait()

	atRisk, err := s.store.ListAtRisk(ctx, s.policy.RetryCeiling)
	if err != nil {
		return SweepSummary{}, err
	}
	sum.AtRisk = len(atRisk)

	log.Info().
		Int("processed", sum.Processed).
		Int("succeeded", sum.Succeeded).
		Int("still_pending", sum.StillPending).
		Int("at_risk", sum.AtRisk).
		Msg("sweep finished")
	return sum, nil
}

func (s *ConfirmService) providerRequest(ctx context.Context, b domain.Booking) (domain.ProviderBookingRequest, error) {
	rt, err := s.catalog.GetRoomType(ctx, b.RoomTypeID)
	if err != nil {
		return domain.ProviderBookingRequest{}, err
	}
	rp, err := s.catalog.GetRatePlan(ctx, b.RatePlanID)
	if err != nil {
		return domain.ProviderBookingRequest{}, err
	}
	return domain.ProviderBookingRequest{
		IdempotencyKey: IdempotencyKey(b.ID),
		RoomTypeCode:   s.mapper.RoomTypeCode(rt.ID, rt.Code),
		RatePlanCode:   s.mapper.RatePlanCode(rp.ID, rp.Code),
		CheckIn:        b.CheckIn,
		CheckOut:       b.CheckOut,
		Rooms:          b.Rooms,
		Adults:         b.Adults,
		Children:       b.Children,
		GuestName:      b.GuestName,
		GuestEmail:     b.GuestEmail,
	}, nil
}

func (s *ConfirmService) noopCurrent(ctx context.Context, bookingID string) (FinalizeResult, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return FinalizeResult{}, err
	}
	return FinalizeResult{
		BookingID:   b.ID,
		Status:      b.Status,
		Outcome:     OutcomeNoop,
		Message:     fmt.Sprintf("booking already %s", b.Status),
		ProviderRef: b.ProviderRef,
		RetryCount:  b.RetryCount,
	}, nil
}
