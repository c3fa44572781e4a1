package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/iliyamo/bus-seat-booking/internal/model"
)

// BookingRepo persists bookings and their passengers.  A booking and its
// passenger rows are written in one transaction; after that the only
// permitted change is the conditional cancellation in MarkCancelled.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, pnr, user_id, trip_id, source, destination, travel_date,
                        fare_cents, gst_cents, fee_cents, discount_cents, wallet_used_cents, total_cents,
                        coupon_code, payment_status, status, payment_ref,
                        refund_percent, refund_amount_cents, cancelled_at, created_at, updated_at`

// Create inserts the booking and its passengers.  On success the generated
// ID and timestamps are set on b.  A PNR collision returns
// model.ErrDuplicatePNR and leaves nothing behind.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return classify("begin booking", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    now := time.Now().UTC()
    const q = `INSERT INTO bookings (pnr, user_id, trip_id, source, destination, travel_date,
                   fare_cents, gst_cents, fee_cents, discount_cents, wallet_used_cents, total_cents,
                   coupon_code, payment_status, status, payment_ref, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    f := b.Fare
    res, err := tx.ExecContext(ctx, q,
        b.PNR, b.UserID, b.TripID, b.Source, b.Destination, b.TravelDate.UTC(),
        int64(f.Fare), int64(f.GST), int64(f.ConvenienceFee), int64(f.Discount), int64(f.WalletUsed), int64(f.Total),
        nullString(f.CouponCode), b.PaymentStatus, b.Status, nullString(b.PaymentRef), now, now,
    )
    if err != nil {
        if isDuplicate(err) {
            return model.ErrDuplicatePNR
        }
        return classify("insert booking", err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return classify("insert booking", err)
    }

    if len(b.Passengers) > 0 {
        query := `INSERT INTO booking_passengers (booking_id, position, name, age, gender, seat_label) VALUES `
        args := make([]any, 0, len(b.Passengers)*6)
        for i, p := range b.Passengers {
            if i > 0 {
                query += ","
            }
            query += "(?, ?, ?, ?, ?, ?)"
            args = append(args, uint64(id), i, p.Name, p.Age, p.Gender, p.SeatLabel)
        }
        if _, err := tx.ExecContext(ctx, query, args...); err != nil {
            return classify("insert passengers", err)
        }
    }

    if err := tx.Commit(); err != nil {
        return classify("commit booking", err)
    }
    committed = true
    b.ID = uint64(id)
    b.CreatedAt, b.UpdatedAt = now, now
    return nil
}

func scanBooking(s rowScanner) (*model.Booking, error) {
    var b model.Booking
    var fare, gst, fee, disc, wallet, total, refund int64
    var coupon, payRef sql.NullString
    var cancelledAt sql.NullTime
    if err := s.Scan(
        &b.ID, &b.PNR, &b.UserID, &b.TripID, &b.Source, &b.Destination, &b.TravelDate,
        &fare, &gst, &fee, &disc, &wallet, &total,
        &coupon, &b.PaymentStatus, &b.Status, &payRef,
        &b.RefundPercent, &refund, &cancelledAt, &b.CreatedAt, &b.UpdatedAt,
    ); err != nil {
        return nil, err
    }
    b.Fare = model.FareBreakdown{
        Fare: model.Money(fare), GST: model.Money(gst), ConvenienceFee: model.Money(fee),
        Discount: model.Money(disc), WalletUsed: model.Money(wallet), Total: model.Money(total),
    }
    if coupon.Valid {
        c := coupon.String
        b.Fare.CouponCode = &c
    }
    if payRef.Valid {
        ref := payRef.String
        b.PaymentRef = &ref
    }
    b.RefundAmount = model.Money(refund)
    if cancelledAt.Valid {
        at := cancelledAt.Time
        b.CancelledAt = &at
    }
    b.Passengers = []model.Passenger{}
    return &b, nil
}

// GetByID loads one booking with its passengers in seat order.  Ownership
// is checked by the caller.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
    q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
    b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
    if err != nil {
        return nil, classify("load booking", err)
    }
    if err := r.attachPassengers(ctx, []*model.Booking{b}); err != nil {
        return nil, err
    }
    return b, nil
}

// GetByPNR loads one booking by its reference.
func (r *BookingRepo) GetByPNR(ctx context.Context, pnr string) (*model.Booking, error) {
    q := `SELECT ` + bookingColumns + ` FROM bookings WHERE pnr = ?`
    b, err := scanBooking(r.db.QueryRowContext(ctx, q, pnr))
    if err != nil {
        return nil, classify("load booking", err)
    }
    if err := r.attachPassengers(ctx, []*model.Booking{b}); err != nil {
        return nil, err
    }
    return b, nil
}

// ListByUser returns the user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]*model.Booking, error) {
    if limit < 1 || limit > 100 {
        limit = 20
    }
    if offset < 0 {
        offset = 0
    }
    q := `SELECT ` + bookingColumns + `
          FROM bookings
          WHERE user_id = ?
          ORDER BY created_at DESC, id DESC
          LIMIT ? OFFSET ?`
    rows, err := r.db.QueryContext(ctx, q, userID, limit, offset)
    if err != nil {
        return nil, classify("list bookings", err)
    }
    defer rows.Close()
    out := make([]*model.Booking, 0)
    for rows.Next() {
        b, err := scanBooking(rows)
        if err != nil {
            return nil, classify("list bookings", err)
        }
        out = append(out, b)
    }
    if err := rows.Err(); err != nil {
        return nil, classify("list bookings", err)
    }
    if err := r.attachPassengers(ctx, out); err != nil {
        return nil, err
    }
    return out, nil
}

// attachPassengers loads passengers for all given bookings in one query.
func (r *BookingRepo) attachPassengers(ctx context.Context, bookings []*model.Booking) error {
    if len(bookings) == 0 {
        return nil
    }
    index := make(map[uint64]*model.Booking, len(bookings))
    args := make([]any, 0, len(bookings))
    for _, b := range bookings {
        index[b.ID] = b
        args = append(args, b.ID)
    }
    q := `SELECT booking_id, name, age, gender, seat_label
          FROM booking_passengers
          WHERE booking_id IN (?` + strings.Repeat(",?", len(bookings)-1) + `)
          ORDER BY booking_id, position`
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return classify("load passengers", err)
    }
    defer rows.Close()
    for rows.Next() {
        var bookingID uint64
        var p model.Passenger
        if err := rows.Scan(&bookingID, &p.Name, &p.Age, &p.Gender, &p.SeatLabel); err != nil {
            return classify("load passengers", err)
        }
        if b, ok := index[bookingID]; ok {
            b.Passengers = append(b.Passengers, p)
        }
    }
    if err := rows.Err(); err != nil {
        return classify("load passengers", err)
    }
    return nil
}

// MarkCancelled moves a booked booking to cancelled/refunded and records
// the refund.  The status check and the write are one UPDATE, so of two
// concurrent cancellations exactly one wins; the loser gets
// model.ErrAlreadyCancelled.
func (r *BookingRepo) MarkCancelled(ctx context.Context, id uint64, at time.Time, percent int, amount model.Money) error {
    const q = `UPDATE bookings
               SET status = 'cancelled', payment_status = 'refunded', cancelled_at = ?,
                   refund_percent = ?, refund_amount_cents = ?, updated_at = ?
               WHERE id = ? AND status = 'booked'`
    res, err := r.db.ExecContext(ctx, q, at.UTC(), percent, int64(amount), at.UTC(), id)
    if err != nil {
        return classify("cancel booking", err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return classify("cancel booking", err)
    }
    if n == 0 {
        return model.ErrAlreadyCancelled
    }
    return nil
}

func nullString(s *string) sql.NullString {
    if s == nil {
        return sql.NullString{}
    }
    return sql.NullString{String: *s, Valid: true}
}
