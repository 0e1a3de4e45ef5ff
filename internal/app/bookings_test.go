package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"roomsync/internal/adapters/crs"
	"roomsync/internal/app"
	"roomsync/internal/domain"
	"roomsync/internal/storage/memory"
)

func newBookingService(st *memory.Store) (*app.BookingService, *crs.Mock) {
	mock := crs.NewMock()
	avail := app.NewAvailabilityEngine(st, st)
	pricing := app.NewPricingEngine(st, app.DefaultPricingConfig())
	return app.NewBookingService(st, st, avail, pricing, mock), mock
}

// quotedRequest builds a request whose amounts match the engine's own quote.
func quotedRequest(t *testing.T, st *memory.Store, in, out string, rooms int) app.CreateBookingRequest {
	t.Helper()
	pricing := app.NewPricingEngine(st, app.DefaultPricingConfig())
	q, err := pricing.Quote(context.Background(), "rt1", "rp1", day(t, in), day(t, out), rooms, rooms)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	return app.CreateBookingRequest{
		RoomTypeID: "rt1", RatePlanID: "rp1",
		CheckIn: in, CheckOut: out,
		GuestName: "Ada Lovelace", GuestEmail: "ada@example.com",
		Rooms: rooms, Adults: rooms,
		BaseAmount: q.BaseAmount, TaxAmount: q.TaxAmount, TotalAmount: q.TotalAmount,
	}
}

func TestCreatePending_HappyPath(t *testing.T) {
	st := seedCatalog(t, 1000, 2)
	svc, _ := newBookingService(st)

	req := quotedRequest(t, st, "2026-09-01", "2026-09-03", 1)
	b, err := svc.CreatePending(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != domain.StatusPaymentPending {
		t.Fatalf("status = %s, want payment_pending", b.Status)
	}
	if b.RetryCount != 0 {
		t.Fatalf("retry count = %d, want 0", b.RetryCount)
	}
	if !strings.HasPrefix(b.Number, "RS-") || len(b.Number) != 11 {
		t.Fatalf("booking number %q malformed", b.Number)
	}

	got, err := svc.GetBooking(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalAmount != b.TotalAmount || got.Number != b.Number {
		t.Fatalf("persisted booking differs: %+v vs %+v", got, b)
	}
}

func TestCreatePending_PaymentConfirmedSeedsPaymentSuccess(t *testing.T) {
	st := seedCatalog(t, 1000, 2)
	svc, _ := newBookingService(st)

	req := quotedRequest(t, st, "2026-09-01", "2026-09-02", 1)
	req.PaymentConfirmed = true
	b, err := svc.CreatePending(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != domain.StatusPaymentSuccess {
		t.Fatalf("status = %s, want payment_success", b.Status)
	}
}

func TestCreatePending_Validation(t *testing.T) {
	st := seedCatalog(t, 1000, 2)
	svc, _ := newBookingService(st)

	cases := []struct {
		name   string
		mutate func(*app.CreateBookingRequest)
	}{
		{"missing guest name", func(r *app.CreateBookingRequest) { r.GuestName = "" }},
		{"bad email", func(r *app.CreateBookingRequest) { r.GuestEmail = "not-an-email" }},
		{"bad date format", func(r *app.CreateBookingRequest) { r.CheckIn = "01/09/2026" }},
		{"zero rooms", func(r *app.CreateBookingRequest) { r.Rooms = 0 }},
		{"inverted range", func(r *app.CreateBookingRequest) { r.CheckIn, r.CheckOut = r.CheckOut, r.CheckIn }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := quotedRequest(t, st, "2026-09-01", "2026-09-02", 1)
			tc.mutate(&req)
			_, err := svc.CreatePending(context.Background(), req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreatePending_RejectsMismatchedAmounts(t *testing.T) {
	st := seedCatalog(t, 1000, 2)
	svc, _ := newBookingService(st)

	req := quotedRequest(t, st, "2026-09-01", "2026-09-02", 1)
	req.TotalAmount += 5

	_, err := svc.CreatePending(context.Background(), req)
	if !errors.Is(err, domain.ErrPriceMismatch) {
		t.Fatalf("expected price mismatch, got %v", err)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("price mismatch should map to conflict, got %v", err)
	}
}

func TestCreatePending_RejectsWhenFull(t *testing.T) {
	st := seedCatalog(t, 1000, 1)
	svc, _ := newBookingService(st)

	first := quotedRequest(t, st, "2026-09-01", "2026-09-02", 1)
	if _, err := svc.CreatePending(context.Background(), first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	second := quotedRequest(t, st, "2026-09-01", "2026-09-02", 1)
	_, err := svc.CreatePending(context.Background(), second)
	if !errors.Is(err, domain.ErrNoAvailability) {
		t.Fatalf("expected no-availability, got %v", err)
	}
}

// Two concurrent requests for the last unit: exactly one must win. The store
// recount, not the pre-check, is the serialization point.
func TestCreatePending_ConcurrentLastUnit(t *testing.T) {
	st := seedCatalog(t, 1000, 1)
	svc, _ := newBookingService(st)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := quotedRequest(t, st, "2026-09-01", "2026-09-02", 1)
			_, errs[i] = svc.CreatePending(context.Background(), req)
		}(i)
	}
	wg.Wait()

	var ok, full int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrNoAvailability):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || full != 1 {
		t.Fatalf("got %d successes and %d rejections, want exactly 1 of each", ok, full)
	}
}

func TestCreatePending_ConsultsProvider(t *testing.T) {
	st := seedCatalog(t, 1000, 2)
	svc, mock := newBookingService(st)

	req := quotedRequest(t, st, "2026-09-01", "2026-09-03", 1)
	if _, err := svc.CreatePending(context.Background(), req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := mock.AvailabilityCalls(); got != 1 {
		t.Fatalf("provider availability calls = %d, want 1", got)
	}
}

// unreachableProvider simulates a CRS that cannot answer availability at all.
type unreachableProvider struct{ *crs.Mock }

func (p unreachableProvider) CheckAvailability(ctx context.Context, q domain.ProviderAvailabilityQuery) (domain.ProviderResult, error) {
	return domain.ProviderResult{}, domain.ErrProviderUnavailable
}

// The external availability check is advisory: a dead provider must not block
// sales, since the local count is the serialization point and discrepancies
// reconcile at confirmation time.
func TestCreatePending_ProviderOutageDoesNotBlock(t *testing.T) {
	st := seedCatalog(t, 1000, 2)
	avail := app.NewAvailabilityEngine(st, st)
	pricing := app.NewPricingEngine(st, app.DefaultPricingConfig())
	svc := app.NewBookingService(st, st, avail, pricing, unreachableProvider{crs.NewMock()})

	req := quotedRequest(t, st, "2026-09-01", "2026-09-03", 1)
	b, err := svc.CreatePending(context.Background(), req)
	if err != nil {
		t.Fatalf("create during provider outage: %v", err)
	}
	if b.Status != domain.StatusPaymentPending {
		t.Fatalf("status = %s, want payment_pending", b.Status)
	}
}
