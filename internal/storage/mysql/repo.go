package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"roomsync/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ---- BookingStore ----

// CreateBooking enforces the capacity constraint at commit time: it locks the
// room type row, recounts every stay night against live bookings, and only
// then inserts. Two concurrent requests for the last unit serialize on the
// row lock; the loser gets ErrNoAvailability.
func (r *Repo) CreateBooking(ctx context.Context, b *domain.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var units int
	if err := tx.QueryRowContext(ctx, lockRoomTypeSQL, b.RoomTypeID).Scan(&units); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: room type %s", domain.ErrNotFound, b.RoomTypeID)
		}
		return err
	}

	rows, err := tx.QueryContext(ctx, overlappingForUpdateSQL, b.RoomTypeID, b.CheckOut, b.CheckIn)
	if err != nil {
		return err
	}
	type stay struct {
		in, out time.Time
		rooms   int
	}
	var existing []stay
	for rows.Next() {
		var s stay
		if err := rows.Scan(&s.in, &s.out, &s.rooms); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for n := b.CheckIn; n.Before(b.CheckOut); n = n.AddDate(0, 0, 1) {
		used := 0
		for _, s := range existing {
			if !n.Before(s.in) && n.Before(s.out) {
				used += s.rooms
			}
		}
		if used+b.Rooms > units {
			return fmt.Errorf("%w on %s", domain.ErrNoAvailability, n.Format("2006-01-02"))
		}
	}

	if _, err := tx.ExecContext(ctx, insertBookingSQL,
		b.ID, b.Number, b.RoomTypeID, b.RatePlanID, b.CheckIn, b.CheckOut,
		b.GuestName, b.GuestEmail, b.GuestPhone, b.Rooms, b.Adults, b.Children,
		b.BaseAmount, b.TaxAmount, b.TotalAmount, string(b.Status), b.RetryCount,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx, getBookingSQL, id))
}

func (r *Repo) UpdateStatus(ctx context.Context, id string, from, to domain.Status) error {
	res, err := r.db.ExecContext(ctx, updateStatusSQL, string(to), id, string(from))
	if err != nil {
		return err
	}
	return r.casOutcome(ctx, res, id, fmt.Sprintf("not %s", from))
}

func (r *Repo) ConfirmBooking(ctx context.Context, id, providerRef string) error {
	res, err := r.db.ExecContext(ctx, confirmBookingSQL, providerRef, id)
	if err != nil {
		return err
	}
	return r.casOutcome(ctx, res, id, "not booking_requested")
}

func (r *Repo) IncrementRetry(ctx context.Context, id string, fromRetry int) error {
	res, err := r.db.ExecContext(ctx, incrementRetrySQL, id, fromRetry)
	if err != nil {
		return err
	}
	return r.casOutcome(ctx, res, id, fmt.Sprintf("retry_count moved past %d", fromRetry))
}

// casOutcome distinguishes "row gone" from "row moved on" after a guarded
// UPDATE matched nothing.
func (r *Repo) casOutcome(ctx context.Context, res sql.Result, id, detail string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: booking %s is %s (%s)", domain.ErrConflict, id, status, detail)
}

func (r *Repo) ListRetryable(ctx context.Context, ceiling int) ([]domain.Booking, error) {
	return r.queryBookings(ctx, listRetryableSQL, ceiling)
}

func (r *Repo) ListAtRisk(ctx context.Context, ceiling int) ([]domain.Booking, error) {
	return r.queryBookings(ctx, listAtRiskSQL, ceiling)
}

func (r *Repo) OverlappingBookings(ctx context.Context, roomTypeID string, from, to time.Time) ([]domain.Booking, error) {
	return r.queryBookings(ctx, overlappingSQL, roomTypeID, to, from)
}

func (r *Repo) queryBookings(ctx context.Context, q string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanBooking(row rowScanner) (domain.Booking, error) {
	var b domain.Booking
	var status string
	var phone, providerRef sql.NullString
	if err := row.Scan(
		&b.ID, &b.Number, &b.RoomTypeID, &b.RatePlanID, &b.CheckIn, &b.CheckOut,
		&b.GuestName, &b.GuestEmail, &phone, &b.Rooms, &b.Adults, &b.Children,
		&b.BaseAmount, &b.TaxAmount, &b.TotalAmount, &status, &b.RetryCount,
		&providerRef, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Booking{}, domain.ErrNotFound
		}
		return domain.Booking{}, err
	}
	b.Status = domain.Status(status)
	b.GuestPhone = phone.String
	b.ProviderRef = providerRef.String
	return b, nil
}

// ---- Catalog ----

func (r *Repo) GetRoomType(ctx context.Context, id string) (domain.RoomType, error) {
	var rt domain.RoomType
	err := r.db.QueryRowContext(ctx, getRoomTypeSQL, id).Scan(
		&rt.ID, &rt.Name, &rt.Code, &rt.BasePrice, &rt.MaxOccupancy, &rt.Units, &rt.Active)
	if err == sql.ErrNoRows {
		return domain.RoomType{}, fmt.Errorf("%w: room type %s", domain.ErrNotFound, id)
	}
	return rt, err
}

func (r *Repo) GetRatePlan(ctx context.Context, id string) (domain.RatePlan, error) {
	var rp domain.RatePlan
	err := r.db.QueryRowContext(ctx, getRatePlanSQL, id).Scan(
		&rp.ID, &rp.RoomTypeID, &rp.Name, &rp.Code, &rp.PriceModifierPct, &rp.MinStayNights,
		&rp.CancellationPolicy, &rp.DepositPct, &rp.Active, &rp.DisplayOrder)
	if err == sql.ErrNoRows {
		return domain.RatePlan{}, fmt.Errorf("%w: rate plan %s", domain.ErrNotFound, id)
	}
	return rp, err
}

func (r *Repo) PricingRules(ctx context.Context, roomTypeID string) ([]domain.PricingRule, error) {
	rows, err := r.db.QueryContext(ctx, pricingRulesSQL, roomTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PricingRule
	for rows.Next() {
		var pr domain.PricingRule
		if err := rows.Scan(&pr.ID, &pr.RoomTypeID, &pr.StartDate, &pr.EndDate,
			&pr.ModifierPct, &pr.MinStayNights, &pr.Priority, &pr.Active, &pr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (r *Repo) OccupancyBands(ctx context.Context, roomTypeID string) ([]domain.OccupancyPricing, error) {
	rows, err := r.db.QueryContext(ctx, occupancyBandsSQL, roomTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OccupancyPricing
	for rows.Next() {
		var b domain.OccupancyPricing
		if err := rows.Scan(&b.ID, &b.RoomTypeID, &b.MinOccupancy, &b.MaxOccupancy, &b.ModifierPct); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
