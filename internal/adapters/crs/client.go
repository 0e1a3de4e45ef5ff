package crs

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"roomsync/internal/adapters/observability"
	"roomsync/internal/domain"
)

// Client is the HTTP-backed CRS provider. It normalizes provider responses
// into the tri-state result contract: a completed call that did not achieve
// its goal is a degraded result; only a call that could not complete at all
// (timeout, network, exhausted retries) returns an error.
type Client struct {
	base    string
	hc      *http.Client
	key     string
	hotelID string
	rl      *rate.Limiter
}

type Config struct {
	BaseURL string
	APIKey  string
	HotelID string
	Timeout time.Duration // per-call budget; exceeding it is a hard failure
	RPS     int
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("CRS API key is required")
	}
	if cfg.HotelID == "" {
		return nil, fmt.Errorf("CRS hotel id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		hc:      &http.Client{Timeout: cfg.Timeout},
		key:     cfg.APIKey,
		hotelID: cfg.HotelID,
		rl:      rate.NewLimiter(rate.Limit(cfg.RPS), cfg.RPS),
	}, nil
}

// ---- Provider operations ----

type availabilityPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) CheckAvailability(ctx context.Context, q domain.ProviderAvailabilityQuery) (domain.ProviderResult, error) {
	url := fmt.Sprintf("%s/hotels/%s/availability?check_in=%s&check_out=%s&adults=%d&children=%d",
		c.base, c.hotelID,
		q.CheckIn.Format("2006-01-02"), q.CheckOut.Format("2006-01-02"),
		q.Adults, q.Children)

	start := time.Now()
	var out availabilityPayload
	err := c.do(ctx, http.MethodGet, url, nil, "", &out)
	lat := time.Since(start)
	if err != nil {
		observability.ObserveExternal("crs", "availability", 0, lat)
		return domain.ProviderResult{}, fmt.Errorf("%w: %s", domain.ErrProviderUnavailable, err)
	}
	observability.ObserveExternal("crs", "availability", http.StatusOK, lat)

	res := domain.ProviderResult{Status: normalizeStatus(out.Status), Message: out.Message, Latency: lat}
	return res, nil
}

type reservationPayload struct {
	Status        string `json:"status"`
	ReservationID string `json:"reservation_id"`
	Message       string `json:"message"`
}

func (c *Client) CreateOrConfirmBooking(ctx context.Context, req domain.ProviderBookingRequest) (domain.ProviderBookingResult, error) {
	url := fmt.Sprintf("%s/hotels/%s/reservations", c.base, c.hotelID)
	body := map[string]any{
		"room_type_code": req.RoomTypeCode,
		"rate_plan_code": req.RatePlanCode,
		"check_in":       req.CheckIn.Format("2006-01-02"),
		"check_out":      req.CheckOut.Format("2006-01-02"),
		"rooms":          req.Rooms,
		"adults":         req.Adults,
		"children":       req.Children,
		"guest_name":     req.GuestName,
		"guest_email":    req.GuestEmail,
	}

	start := time.Now()
	var out reservationPayload
	err := c.do(ctx, http.MethodPost, url, body, req.IdempotencyKey, &out)
	lat := time.Since(start)
	if err != nil {
		observability.ObserveExternal("crs", "reservation", 0, lat)
		return domain.ProviderBookingResult{}, fmt.Errorf("%w: %s", domain.ErrProviderUnavailable, err)
	}
	observability.ObserveExternal("crs", "reservation", http.StatusOK, lat)

	return domain.ProviderBookingResult{
		Status:        normalizeStatus(out.Status),
		ReservationID: out.ReservationID,
		Message:       out.Message,
	}, nil
}

func (c *Client) HealthCheck(ctx context.Context) (domain.ProviderResult, error) {
	url := fmt.Sprintf("%s/health", c.base)
	start := time.Now()
	var out availabilityPayload
	err := c.do(ctx, http.MethodGet, url, nil, "", &out)
	lat := time.Since(start)
	if err != nil {
		observability.ObserveExternal("crs", "health", 0, lat)
		return domain.ProviderResult{}, fmt.Errorf("%w: %s", domain.ErrProviderUnavailable, err)
	}
	observability.ObserveExternal("crs", "health", http.StatusOK, lat)

	st := normalizeStatus(out.Status)
	if out.Status == "" {
		st = domain.ProviderSuccess // bare 200 health endpoints
	}
	return domain.ProviderResult{Status: st, Message: out.Message, Latency: lat}, nil
}

// normalizeStatus folds the provider's vocabulary into the tri-state. Unknown
// values are degraded: the call completed but did not clearly succeed.
func normalizeStatus(s string) domain.ProviderStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ok", "success", "confirmed", "available", "healthy", "up":
		return domain.ProviderSuccess
	default:
		return domain.ProviderDegraded
	}
}

// ---- Internals ----

var (
	errNotFound     = errors.New("crs: not found")
	errUnauthorized = errors.New("crs: unauthorized")
)

// do performs a request with client-side rate limiting, retries on 429 and
// transient 5xx honoring Retry-After, and JSON-decodes into out. The
// idempotency key makes POST retries safe.
func (c *Client) do(ctx context.Context, method, url string, body any, idemKey string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		var rdr io.Reader
		if payload != nil {
			rdr = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rdr)
		if err != nil {
			return err
		}
		req.Header.Set("X-API-Key", c.key)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "roomsync/1.0")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if idemKey != "" {
			req.Header.Set("Idempotency-Key", idemKey)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusConflict:
			// 409 carries the previously created reservation for a repeated
			// idempotency key; its body decodes like a success.
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err == io.EOF {
				return nil
			}
			return err

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return errNotFound

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return errUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to
// +50% jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
