package domain

import "time"

// Status is the booking lifecycle state.
//
//	payment_pending -> payment_success -> booking_requested -> confirmed
//	                                                        -> failed
//	                                                        -> manual_review
type Status string

const (
	StatusPaymentPending   Status = "payment_pending"
	StatusPaymentSuccess   Status = "payment_success"
	StatusBookingRequested Status = "booking_requested"
	StatusConfirmed        Status = "confirmed"
	StatusFailed           Status = "failed"
	StatusManualReview     Status = "manual_review"
)

// Retryable reports whether the confirmation loop may still act on a booking.
func (s Status) Retryable() bool {
	return s == StatusPaymentSuccess || s == StatusBookingRequested
}

// Terminal reports whether no automated transition leaves this state.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusManualReview
}

// Blocks reports whether a booking in this state occupies inventory. Only
// failed releases the rooms: a manual_review booking may already hold a
// reservation on the provider side, so its nights stay counted until an
// operator resolves it.
func (s Status) Blocks() bool {
	return s != StatusFailed
}

// RetryableStatuses is the set consulted by sweep/list queries.
var RetryableStatuses = []Status{StatusPaymentSuccess, StatusBookingRequested}

type Booking struct {
	ID     string `json:"id"`
	Number string `json:"number"` // human-facing, e.g. RS-3F9A27C1

	RoomTypeID string `json:"room_type_id"`
	RatePlanID string `json:"rate_plan_id"`

	CheckIn  time.Time `json:"check_in"` // date-granular, UTC midnight
	CheckOut time.Time `json:"check_out"`

	GuestName  string `json:"guest_name"`
	GuestEmail string `json:"guest_email"`
	GuestPhone string `json:"guest_phone,omitempty"`

	Rooms    int `json:"rooms"`
	Adults   int `json:"adults"`
	Children int `json:"children"`

	BaseAmount  float64 `json:"base_amount"`
	TaxAmount   float64 `json:"tax_amount"`
	TotalAmount float64 `json:"total_amount"`

	Status      Status `json:"status"`
	RetryCount  int    `json:"retry_count"`
	ProviderRef string `json:"provider_ref,omitempty"` // CRS reservation id once confirmed

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Nights returns the number of room-nights in the stay.
func (b Booking) Nights() int {
	return int(b.CheckOut.Sub(b.CheckIn).Hours() / 24)
}

// OccupiesNight reports whether the stay covers night n (checkIn <= n < checkOut).
func (b Booking) OccupiesNight(n time.Time) bool {
	return !n.Before(b.CheckIn) && n.Before(b.CheckOut)
}
