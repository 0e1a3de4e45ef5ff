package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"roomsync/internal/domain"
)

// CreateBookingRequest is the full guest/stay/pricing payload. The caller
// supplies the amounts it showed the guest; we recompute and cross-check them.
type CreateBookingRequest struct {
	RoomTypeID string `json:"room_type_id" validate:"required"`
	RatePlanID string `json:"rate_plan_id" validate:"required"`
	CheckIn    string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut   string `json:"check_out" validate:"required,datetime=2006-01-02"`

	GuestName  string `json:"guest_name" validate:"required,min=2,max=120"`
	GuestEmail string `json:"guest_email" validate:"required,email"`
	GuestPhone string `json:"guest_phone" validate:"omitempty,min=6,max=20"`

	Rooms    int `json:"rooms" validate:"required,min=1,max=10"`
	Adults   int `json:"adults" validate:"required,min=1,max=40"`
	Children int `json:"children" validate:"min=0,max=40"`

	BaseAmount  float64 `json:"base_amount" validate:"required,gt=0"`
	TaxAmount   float64 `json:"tax_amount" validate:"gte=0"`
	TotalAmount float64 `json:"total_amount" validate:"required,gt=0"`

	// PaymentConfirmed is set by trusted callers (payment context) only;
	// it seeds the booking in payment_success instead of payment_pending.
	PaymentConfirmed bool `json:"-"`
}

type BookingService struct {
	store    domain.BookingStore
	catalog  domain.Catalog
	avail    *AvailabilityEngine
	pricing  *PricingEngine
	provider domain.Provider
	validate *validator.Validate
}

func NewBookingService(store domain.BookingStore, catalog domain.Catalog, avail *AvailabilityEngine, pricing *PricingEngine, provider domain.Provider) *BookingService {
	return &BookingService{
		store:    store,
		catalog:  catalog,
		avail:    avail,
		pricing:  pricing,
		provider: provider,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreatePending validates the request, gates it on availability and pricing,
// and persists the booking in its initial pending state with retry count 0.
// Caller-supplied amounts that disagree with the recomputed quote are
// rejected, never silently corrected.
func (s *BookingService) CreatePending(ctx context.Context, req CreateBookingRequest) (domain.Booking, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.Booking{}, fmt.Errorf("%w: %s", domain.ErrValidation, validationDetail(err))
	}

	checkIn, err := time.ParseInLocation(dateLayout, req.CheckIn, time.UTC)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("%w: bad check_in", domain.ErrValidation)
	}
	checkOut, err := time.ParseInLocation(dateLayout, req.CheckOut, time.UTC)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("%w: bad check_out", domain.ErrValidation)
	}
	if !checkIn.Before(checkOut) {
		return domain.Booking{}, fmt.Errorf("%w: check-in must precede check-out", domain.ErrValidation)
	}

	av, err := s.avail.Check(ctx, req.RoomTypeID, checkIn, checkOut, req.Rooms)
	if err != nil {
		return domain.Booking{}, err
	}
	if !av.Available {
		return domain.Booking{}, fmt.Errorf("%w on %s", domain.ErrNoAvailability, av.FirstShortNight)
	}

	// The external system is consulted at creation too, but only advisorily:
	// local inventory is the serialization point, and a flapping provider
	// must not block sales. Discrepancies surface at confirmation time.
	extQuery := domain.ProviderAvailabilityQuery{
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Adults:   req.Adults,
		Children: req.Children,
	}
	if ext, err := s.provider.CheckAvailability(ctx, extQuery); err != nil {
		log.Warn().Err(err).Str("room_type", req.RoomTypeID).
			Msg("provider availability check unreachable; proceeding on local inventory")
	} else if ext.Status != domain.ProviderSuccess {
		log.Warn().Str("room_type", req.RoomTypeID).Str("message", ext.Message).
			Msg("provider availability degraded; proceeding on local inventory")
	}

	quote, err := s.pricing.Quote(ctx, req.RoomTypeID, req.RatePlanID, checkIn, checkOut, req.Adults+req.Children, req.Rooms)
	if err != nil {
		return domain.Booking{}, err
	}
	if !amountsMatch(req.BaseAmount, quote.BaseAmount) ||
		!amountsMatch(req.TaxAmount, quote.TaxAmount) ||
		!amountsMatch(req.TotalAmount, quote.TotalAmount) {
		log.Warn().
			Str("room_type", req.RoomTypeID).
			Float64("client_total", req.TotalAmount).
			Float64("computed_total", quote.TotalAmount).
			Msg("booking rejected: client amounts differ from recomputed quote")
		return domain.Booking{}, fmt.Errorf("%w: expected total %.2f", domain.ErrPriceMismatch, quote.TotalAmount)
	}

	status := domain.StatusPaymentPending
	if req.PaymentConfirmed {
		status = domain.StatusPaymentSuccess
	}

	now := time.Now().UTC()
	b := domain.Booking{
		ID:          uuid.NewString(),
		RoomTypeID:  req.RoomTypeID,
		RatePlanID:  req.RatePlanID,
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		GuestName:   req.GuestName,
		GuestEmail:  req.GuestEmail,
		GuestPhone:  req.GuestPhone,
		Rooms:       req.Rooms,
		Adults:      req.Adults,
		Children:    req.Children,
		BaseAmount:  quote.BaseAmount,
		TaxAmount:   quote.TaxAmount,
		TotalAmount: quote.TotalAmount,
		Status:      status,
		RetryCount:  0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.Number = bookingNumber(b.ID)

	// The store recounts capacity under its own lock; the Check above is a
	// fast pre-filter, not the serialization point.
	if err := s.store.CreateBooking(ctx, &b); err != nil {
		return domain.Booking{}, err
	}

	log.Info().
		Str("booking", b.ID).
		Str("number", b.Number).
		Str("status", string(b.Status)).
		Float64("total", b.TotalAmount).
		Msg("booking created")
	return b, nil
}

// GetBooking is a read-only lookup.
func (s *BookingService) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// amountsMatch tolerates one minor unit of rounding drift.
func amountsMatch(a, b float64) bool {
	return math.Abs(a-b) < 0.011
}

// bookingNumber derives the human-facing number from the booking id.
func bookingNumber(id string) string {
	compact := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return "RS-" + compact
}

func validationDetail(err error) string {
	var ve validator.ValidationErrors
	if ok := isValidationErrors(err, &ve); ok && len(ve) > 0 {
		parts := make([]string, 0, len(ve))
		for _, fe := range ve {
			parts = append(parts, fmt.Sprintf("%s fails %s", fe.Field(), fe.Tag()))
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}

func isValidationErrors(err error, out *validator.ValidationErrors) bool {
	if ve, ok := err.(validator.ValidationErrors); ok {
		*out = ve
		return true
	}
	return false
}
