package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"roomsync/internal/adapters/observability"
	"roomsync/internal/app"
	"roomsync/internal/domain"
)

type Handlers struct {
	Bookings *app.BookingService
	Avail    *app.AvailabilityEngine
	Confirm  *app.ConfirmService
	Provider domain.Provider

	Limiter       domain.Limiter
	OperatorToken string
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Get("/v1/availability", h.getAvailability)
	s.mux.Get("/v1/bookings/{id}", h.getBooking)

	// Public mutation endpoints share the request-rate guard.
	s.mux.Group(func(r chi.Router) {
		r.Use(RateLimit(h.Limiter))
		r.Post("/v1/bookings", h.createBooking)
		r.Post("/v1/webhooks/payment", h.paymentWebhook)
	})

	s.mux.Route("/v1/admin", func(r chi.Router) {
		r.Use(RequireOperator(h.OperatorToken))
		r.Post("/bookings/{id}/retry", h.retryBooking)
		r.Post("/bookings/{id}/manual-review", h.manualReview)
		r.Get("/bookings/at-risk", h.atRisk)
		r.Post("/sweep", h.sweep)
		r.Get("/provider/health", h.providerHealth)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// writeErr maps the domain error taxonomy onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrProviderUnavailable):
		writeProblem(w, http.StatusBadGateway, "Provider Unavailable", err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "unexpected error")
	}
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req app.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return
	}
	b, err := h.Bookings.CreatePending(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     b.ID,
		"number": b.Number,
		"status": b.Status,
		"total":  b.TotalAmount,
	})
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) getAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	checkIn, err1 := time.ParseInLocation("2006-01-02", q.Get("check_in"), time.UTC)
	checkOut, err2 := time.ParseInLocation("2006-01-02", q.Get("check_out"), time.UTC)
	if q.Get("room_type") == "" || err1 != nil || err2 != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Query", "room_type, check_in and check_out (YYYY-MM-DD) are required")
		return
	}
	rooms := 1
	if v := q.Get("rooms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeProblem(w, http.StatusBadRequest, "Invalid Query", "rooms must be a positive integer")
			return
		}
		rooms = n
	}
	res, err := h.Avail.Check(r.Context(), q.Get("room_type"), checkIn, checkOut, rooms)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type webhookPayload struct {
	BookingID string `json:"booking_id"`
}

func (h *Handlers) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.BookingID == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "booking_id is required")
		return
	}
	res, err := h.Confirm.MarkPaymentReceived(r.Context(), p.BookingID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if res.Outcome == app.OutcomeConfirmed {
		observability.ObserveTransition(string(domain.StatusBookingRequested), string(domain.StatusConfirmed))
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) retryBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.Confirm.RetryConfirmation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if res.Outcome == app.OutcomeConfirmed {
		observability.ObserveTransition(string(domain.StatusBookingRequested), string(domain.StatusConfirmed))
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) manualReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Confirm.MarkManualReview(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(domain.StatusManualReview)})
}

func (h *Handlers) atRisk(w http.ResponseWriter, r *http.Request) {
	list, err := h.Confirm.AtRisk(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	observability.SetAtRisk(len(list))
	writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "bookings": list})
}

func (h *Handlers) sweep(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Confirm.SweepOnce(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	for _, o := range sum.Outcomes {
		observability.ObserveSweep(string(o.Outcome))
	}
	observability.SetAtRisk(sum.AtRisk)
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handlers) providerHealth(w http.ResponseWriter, r *http.Request) {
	res, err := h.Provider.HealthCheck(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     res.Status,
		"message":    res.Message,
		"latency_ms": res.Latency.Milliseconds(),
	})
}
