package repository

import (
    "context"
    "errors"
    "regexp"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/bus-seat-booking/internal/model"
)

func sampleBooking() *model.Booking {
    ref := "mock_1"
    return &model.Booking{
        PNR: "MZK4Q7ABCDEF", UserID: 11, TripID: 3,
        Source: "Pune", Destination: "Mumbai",
        TravelDate: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
        Passengers: []model.Passenger{
            {Name: "Asha", Age: 31, Gender: model.GenderFemale, SeatLabel: "1A"},
            {Name: "Ravi", Age: 34, Gender: model.GenderMale, SeatLabel: "1B"},
        },
        Fare:          model.FareBreakdown{Fare: 100000, GST: 5000, ConvenienceFee: 2000, Total: 107000},
        PaymentStatus: model.PaymentPaid,
        Status:        model.BookingBooked,
        PaymentRef:    &ref,
    }
}

func TestCreateBookingWritesPassengers(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectBegin()
    mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(42, 1))
    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO booking_passengers (booking_id, position, name, age, gender, seat_label) VALUES (?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?)")).
        WithArgs(42, 0, "Asha", 31, "female", "1A", 42, 1, "Ravi", 34, "male", "1B").
        WillReturnResult(sqlmock.NewResult(0, 2))
    mock.ExpectCommit()

    b := sampleBooking()
    if err := NewBookingRepo(db).Create(context.Background(), b); err != nil {
        t.Fatalf("create: %v", err)
    }
    if b.ID != 42 || b.CreatedAt.IsZero() {
        t.Fatalf("id/timestamps not set: %+v", b)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCreateBookingDuplicatePNR(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectBegin()
    mock.ExpectExec("INSERT INTO bookings").
        WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'uq_bookings_pnr'"})
    mock.ExpectRollback()

    err = NewBookingRepo(db).Create(context.Background(), sampleBooking())
    if !errors.Is(err, model.ErrDuplicatePNR) {
        t.Fatalf("err = %v, want ErrDuplicatePNR", err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCreateBookingPassengerFailureRollsBack(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectBegin()
    mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(42, 1))
    mock.ExpectExec("INSERT INTO booking_passengers").
        WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
    mock.ExpectRollback()

    err = NewBookingRepo(db).Create(context.Background(), sampleBooking())
    if !model.IsTransient(err) {
        t.Fatalf("err = %v, want transient", err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

var bookingCols = []string{"id", "pnr", "user_id", "trip_id", "source", "destination", "travel_date",
    "fare_cents", "gst_cents", "fee_cents", "discount_cents", "wallet_used_cents", "total_cents",
    "coupon_code", "payment_status", "status", "payment_ref",
    "refund_percent", "refund_amount_cents", "cancelled_at", "created_at", "updated_at"}

func TestGetBookingWithPassengers(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
    mock.ExpectQuery("FROM bookings WHERE id = ?").WithArgs(42).
        WillReturnRows(sqlmock.NewRows(bookingCols).AddRow(
            int64(42), "MZK4Q7ABCDEF", int64(11), int64(3), "Pune", "Mumbai", at.AddDate(0, 1, 0),
            int64(100000), int64(5000), int64(2000), int64(10000), int64(0), int64(97000),
            "FIRST10", "paid", "booked", "mock_1",
            int64(0), int64(0), nil, at, at,
        ))
    mock.ExpectQuery("FROM booking_passengers").WithArgs(42).
        WillReturnRows(sqlmock.NewRows([]string{"booking_id", "name", "age", "gender", "seat_label"}).
            AddRow(int64(42), "Asha", int64(31), "female", "1A").
            AddRow(int64(42), "Ravi", int64(34), "male", "1B"))

    b, err := NewBookingRepo(db).GetByID(context.Background(), 42)
    if err != nil {
        t.Fatalf("get: %v", err)
    }
    if b.Fare.CouponCode == nil || *b.Fare.CouponCode != "FIRST10" || b.Fare.Total != 97000 {
        t.Fatalf("unexpected fare %+v", b.Fare)
    }
    if got := b.SeatLabels(); len(got) != 2 || got[0] != "1A" || got[1] != "1B" {
        t.Fatalf("seats = %v", got)
    }
    if b.CancelledAt != nil {
        t.Fatalf("cancelled_at should be nil")
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestGetBookingNotFound(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectQuery("FROM bookings").WillReturnRows(sqlmock.NewRows(bookingCols))
    if _, err := NewBookingRepo(db).GetByID(context.Background(), 1); !errors.Is(err, model.ErrNotFound) {
        t.Fatalf("err = %v, want ErrNotFound", err)
    }
}

func TestMarkCancelledOnlyOnce(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()
    repo := NewBookingRepo(db)
    at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

    q := regexp.QuoteMeta("WHERE id = ? AND status = 'booked'")
    mock.ExpectExec(q).WithArgs(at, 80, 85600, at, 42).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(q).WithArgs(at, 80, 85600, at, 42).WillReturnResult(sqlmock.NewResult(0, 0))

    if err := repo.MarkCancelled(context.Background(), 42, at, 80, 85600); err != nil {
        t.Fatalf("first cancel: %v", err)
    }
    if err := repo.MarkCancelled(context.Background(), 42, at, 80, 85600); !errors.Is(err, model.ErrAlreadyCancelled) {
        t.Fatalf("second cancel err = %v, want ErrAlreadyCancelled", err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}
