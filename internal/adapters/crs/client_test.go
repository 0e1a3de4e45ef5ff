package crs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"roomsync/internal/adapters/crs"
	"roomsync/internal/domain"
)

func newClient(t *testing.T, baseURL string) *crs.Client {
	t.Helper()
	cl, err := crs.NewClient(crs.Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		HotelID: "h1",
		Timeout: 2 * time.Second,
		RPS:     100, // high RPS for tests
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	return cl
}

func bookingReq() domain.ProviderBookingRequest {
	in := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return domain.ProviderBookingRequest{
		IdempotencyKey: "bk-123",
		RoomTypeCode:   "DLX",
		RatePlanCode:   "FLEX",
		CheckIn:        in,
		CheckOut:       in.AddDate(0, 0, 2),
		Rooms:          1,
		Adults:         2,
		GuestName:      "Test Guest",
		GuestEmail:     "guest@example.com",
	}
}

func TestClient_CreateBooking_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") != "bk-123" {
			t.Errorf("missing idempotency key header")
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(500)
		default:
			w.WriteHeader(200)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "confirmed", "reservation_id": "CRS-42",
			})
		}
	}))
	defer ts.Close()

	cl := newClient(t, ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := cl.CreateOrConfirmBooking(ctx, bookingReq())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Status != domain.ProviderSuccess || got.ReservationID != "CRS-42" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_CreateBooking_ConflictIsIdempotentReplay(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "confirmed", "reservation_id": "CRS-OLD",
		})
	}))
	defer ts.Close()

	cl := newClient(t, ts.URL)
	got, err := cl.CreateOrConfirmBooking(context.Background(), bookingReq())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Status != domain.ProviderSuccess || got.ReservationID != "CRS-OLD" {
		t.Fatalf("409 should decode the original reservation, got %+v", got)
	}
}

func TestClient_CreateBooking_UnknownStatusIsDegraded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "queued", "message": "queued for sync",
		})
	}))
	defer ts.Close()

	cl := newClient(t, ts.URL)
	got, err := cl.CreateOrConfirmBooking(context.Background(), bookingReq())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Status != domain.ProviderDegraded {
		t.Fatalf("unknown status should normalize to degraded, got %+v", got)
	}
}

func TestClient_CreateBooking_ExhaustedRetriesIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	cl := newClient(t, ts.URL)
	_, err := cl.CreateOrConfirmBooking(context.Background(), bookingReq())
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider-unavailable, got %v", err)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	cl := newClient(t, ts.URL)
	_, err := cl.CreateOrConfirmBooking(context.Background(), bookingReq())
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestClient_CheckAvailability(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hotels/h1/availability" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("check_in") != "2026-09-01" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "available"})
	}))
	defer ts.Close()

	cl := newClient(t, ts.URL)
	in := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	got, err := cl.CheckAvailability(context.Background(), domain.ProviderAvailabilityQuery{
		CheckIn: in, CheckOut: in.AddDate(0, 0, 1), Adults: 2,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Status != domain.ProviderSuccess {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestClient_HealthCheck_EmptyBodyIsHealthy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cl := newClient(t, ts.URL)
	got, err := cl.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Status != domain.ProviderSuccess {
		t.Fatalf("bare 200 should be healthy, got %+v", got)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer ts.Close()

	cl := newClient(t, ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cl.HealthCheck(ctx)
	if err == nil {
		t.Fatal("expected error after context deadline")
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := crs.NewClient(crs.Config{HotelID: "h1"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := crs.NewClient(crs.Config{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing hotel id")
	}
}
