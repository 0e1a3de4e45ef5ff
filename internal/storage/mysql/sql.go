package mysql

// Status sets used by the confirmation loop and the availability recount.
const (
	retryableStatuses = `'payment_success','booking_requested'`
	blockingStatuses  = `'payment_pending','payment_success','booking_requested','confirmed','manual_review'`
)

const insertBookingSQL = `
INSERT INTO bookings
  (id, number, room_type_id, rate_plan_id, check_in, check_out,
   guest_name, guest_email, guest_phone, rooms, adults, children,
   base_amount, tax_amount, total_amount, status, retry_count)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const getBookingSQL = `
SELECT id, number, room_type_id, rate_plan_id, check_in, check_out,
       guest_name, guest_email, guest_phone, rooms, adults, children,
       base_amount, tax_amount, total_amount, status, retry_count,
       provider_ref, created_at, updated_at
FROM bookings
WHERE id = ?
`

// Compare-and-set on the current status.
const updateStatusSQL = `
UPDATE bookings
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = ?
`

const confirmBookingSQL = `
UPDATE bookings
SET status = 'confirmed', provider_ref = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'booking_requested'
`

// Compare-and-set on the current retry count: two concurrent sweeps must not
// burn two budget units for one logical attempt.
const incrementRetrySQL = `
UPDATE bookings
SET retry_count = retry_count + 1, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND retry_count = ? AND status IN (` + retryableStatuses + `)
`

const listRetryableSQL = getBookingSelect + `
WHERE status IN (` + retryableStatuses + `) AND retry_count < ?
ORDER BY created_at, id
`

const listAtRiskSQL = getBookingSelect + `
WHERE status IN (` + retryableStatuses + `) AND retry_count >= ?
ORDER BY created_at, id
`

const overlappingSQL = getBookingSelect + `
WHERE room_type_id = ? AND status IN (` + blockingStatuses + `)
  AND check_in < ? AND check_out > ?
`

const getBookingSelect = `
SELECT id, number, room_type_id, rate_plan_id, check_in, check_out,
       guest_name, guest_email, guest_phone, rooms, adults, children,
       base_amount, tax_amount, total_amount, status, retry_count,
       provider_ref, created_at, updated_at
FROM bookings
`

// Row lock on the room type serializes concurrent creations for the same
// inventory; the per-night recount happens inside that critical section.
const lockRoomTypeSQL = `
SELECT units FROM room_types WHERE id = ? AND active = 1 FOR UPDATE
`

const overlappingForUpdateSQL = `
SELECT check_in, check_out, rooms
FROM bookings
WHERE room_type_id = ? AND status IN (` + blockingStatuses + `)
  AND check_in < ? AND check_out > ?
`

// ---- catalog reads ----

const getRoomTypeSQL = `
SELECT id, name, code, base_price, max_occupancy, units, active
FROM room_types
WHERE id = ?
`

const getRatePlanSQL = `
SELECT id, room_type_id, name, code, price_modifier_pct, min_stay_nights,
       cancellation_policy, deposit_pct, active, display_order
FROM rate_plans
WHERE id = ?
`

const pricingRulesSQL = `
SELECT id, COALESCE(room_type_id, ''), start_date, end_date, modifier_pct,
       min_stay_nights, priority, active, created_at
FROM pricing_rules
WHERE active = 1 AND (room_type_id IS NULL OR room_type_id = ?)
`

const occupancyBandsSQL = `
SELECT id, room_type_id, min_occupancy, max_occupancy, modifier_pct
FROM occupancy_pricing
WHERE room_type_id = ?
ORDER BY min_occupancy
`
