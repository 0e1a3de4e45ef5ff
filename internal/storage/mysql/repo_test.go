package mysql

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"roomsync/internal/domain"
)

func newMock(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

func TestUpdateStatus_Applied(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("payment_success", "b1", "payment_pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "b1", domain.StatusPaymentPending, domain.StatusPaymentSuccess)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestUpdateStatus_ConflictWhenRowMovedOn(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("payment_success", "b1", "payment_pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM bookings`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("confirmed"))

	err := repo.UpdateStatus(context.Background(), "b1", domain.StatusPaymentPending, domain.StatusPaymentSuccess)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateStatus_NotFoundWhenRowGone(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("payment_success", "b1", "payment_pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM bookings`).
		WithArgs("b1").
		WillReturnError(sql.ErrNoRows)

	err := repo.UpdateStatus(context.Background(), "b1", domain.StatusPaymentPending, domain.StatusPaymentSuccess)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestIncrementRetry_CAS(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("b1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.IncrementRetry(context.Background(), "b1", 3); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Stale base value matches nothing and surfaces as conflict.
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("b1", 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM bookings`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("booking_requested"))
	if err := repo.IncrementRetry(context.Background(), "b1", 3); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestConfirmBooking_GuardedOnBookingRequested(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("CRS-1", "b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.ConfirmBooking(context.Background(), "b1", "CRS-1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetBooking(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestCreateBooking_RejectsWhenRecountFails(t *testing.T) {
	repo, mock := newMock(t)
	in := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	out := in.AddDate(0, 0, 2)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT units FROM room_types`).
		WithArgs("rt1").
		WillReturnRows(sqlmock.NewRows([]string{"units"}).AddRow(1))
	mock.ExpectQuery(`SELECT check_in, check_out, rooms`).
		WithArgs("rt1", out, in).
		WillReturnRows(sqlmock.NewRows([]string{"check_in", "check_out", "rooms"}).
			AddRow(in, out, 1))
	mock.ExpectRollback()

	b := domain.Booking{
		ID: "b1", RoomTypeID: "rt1", CheckIn: in, CheckOut: out, Rooms: 1,
		Status: domain.StatusPaymentPending,
	}
	err := repo.CreateBooking(context.Background(), &b)
	if !errors.Is(err, domain.ErrNoAvailability) {
		t.Fatalf("expected no-availability, got %v", err)
	}
}

func TestCreateBooking_CommitsWhenCapacityHolds(t *testing.T) {
	repo, mock := newMock(t)
	in := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	out := in.AddDate(0, 0, 2)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT units FROM room_types`).
		WithArgs("rt1").
		WillReturnRows(sqlmock.NewRows([]string{"units"}).AddRow(2))
	mock.ExpectQuery(`SELECT check_in, check_out, rooms`).
		WithArgs("rt1", out, in).
		WillReturnRows(sqlmock.NewRows([]string{"check_in", "check_out", "rooms"}).
			AddRow(in, out, 1))
	mock.ExpectExec(`INSERT INTO bookings`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b := domain.Booking{
		ID: "b1", RoomTypeID: "rt1", CheckIn: in, CheckOut: out, Rooms: 1,
		Status: domain.StatusPaymentPending,
	}
	if err := repo.CreateBooking(context.Background(), &b); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestCreateBooking_UnknownRoomType(t *testing.T) {
	repo, mock := newMock(t)
	in := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT units FROM room_types`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	b := domain.Booking{
		ID: "b1", RoomTypeID: "ghost", CheckIn: in, CheckOut: in.AddDate(0, 0, 1), Rooms: 1,
	}
	err := repo.CreateBooking(context.Background(), &b)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
