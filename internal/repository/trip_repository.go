package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "strings"
    "time"

    "github.com/iliyamo/bus-seat-booking/internal/model"
)

// TripRepo reads trips joined with their route and owns the only write
// path to a trip's seat set.  Route and trip records themselves are
// maintained by the administrative service.
type TripRepo struct {
    db *sql.DB
}

// NewTripRepo returns a new TripRepo bound to the given database.
func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

const tripColumns = `t.id, t.route_id, r.source, r.destination, t.bus_id, t.operator_name,
                     t.departure_at, t.arrival_at, t.fare_cents, t.total_seats,
                     t.booked_seats, t.seat_version, t.status, t.created_at, t.updated_at`

type rowScanner interface {
    Scan(dest ...any) error
}

func scanTrip(s rowScanner) (*model.Trip, error) {
    var t model.Trip
    var fare int64
    var seats []byte
    if err := s.Scan(
        &t.ID, &t.RouteID, &t.Source, &t.Destination, &t.BusID, &t.OperatorName,
        &t.DepartureAt, &t.ArrivalAt, &fare, &t.TotalSeats,
        &seats, &t.SeatVersion, &t.Status, &t.CreatedAt, &t.UpdatedAt,
    ); err != nil {
        return nil, err
    }
    t.Fare = model.Money(fare)
    labels, err := decodeSeats(seats)
    if err != nil {
        return nil, err
    }
    t.BookedSeats = labels
    return &t, nil
}

// GetByID loads a trip with its route.  Returns model.ErrNotFound when the
// trip does not exist.
func (r *TripRepo) GetByID(ctx context.Context, id uint64) (*model.Trip, error) {
    q := `SELECT ` + tripColumns + `
          FROM trips t
          JOIN routes r ON r.id = t.route_id
          WHERE t.id = ?`
    t, err := scanTrip(r.db.QueryRowContext(ctx, q, id))
    if err != nil {
        return nil, classify("load trip", err)
    }
    return t, nil
}

// LoadSeatSet reads the seat set and its version.
func (r *TripRepo) LoadSeatSet(ctx context.Context, tripID uint64) (model.SeatSet, error) {
    const q = `SELECT id, status, total_seats, booked_seats, seat_version FROM trips WHERE id = ?`
    var set model.SeatSet
    var seats []byte
    err := r.db.QueryRowContext(ctx, q, tripID).Scan(&set.TripID, &set.Status, &set.TotalSeats, &seats, &set.Version)
    if err != nil {
        return model.SeatSet{}, classify("load seat set", err)
    }
    if set.Seats, err = decodeSeats(seats); err != nil {
        return model.SeatSet{}, err
    }
    return set, nil
}

// SwapSeats replaces the seat set only if seat_version still equals
// expected (and, with requireScheduled, the trip is still scheduled).  The
// check and the write are a single UPDATE; false means another writer got
// there first or the trip left the scheduled state.
func (r *TripRepo) SwapSeats(ctx context.Context, tripID uint64, expected uint32, seats []string, requireScheduled bool) (bool, error) {
    if seats == nil {
        seats = []string{}
    }
    payload, err := json.Marshal(seats)
    if err != nil {
        return false, err
    }
    q := `UPDATE trips SET booked_seats = ?, seat_version = seat_version + 1
          WHERE id = ? AND seat_version = ?`
    if requireScheduled {
        q += ` AND status = 'scheduled'`
    }
    res, err := r.db.ExecContext(ctx, q, string(payload), tripID, expected)
    if err != nil {
        return false, classify("swap seats", err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, classify("swap seats", err)
    }
    return n == 1, nil
}

// TripSearchQuery defines filters & pagination for searching trips.
// Source and Destination match case-insensitively; Date selects the UTC
// calendar day of departure.
type TripSearchQuery struct {
    Source      string
    Destination string
    Date        time.Time
    Page        int
    PageSize    int
}

// TripRow is one search result with live availability.
type TripRow struct {
    ID             uint64      `json:"id"`
    Source         string      `json:"source"`
    Destination    string      `json:"destination"`
    BusID          string      `json:"bus_id"`
    OperatorName   string      `json:"operator_name"`
    DepartureAt    time.Time   `json:"departure_at"`
    ArrivalAt      time.Time   `json:"arrival_at"`
    Fare           model.Money `json:"fare"`
    TotalSeats     int         `json:"total_seats"`
    AvailableSeats int         `json:"available_seats"`
}

// Search returns scheduled trips between two places departing on the given
// day, earliest first, along with the total match count.
func (r *TripRepo) Search(ctx context.Context, q TripSearchQuery) ([]TripRow, int64, error) {
    if q.Page < 1 {
        q.Page = 1
    }
    if q.PageSize < 1 || q.PageSize > 100 {
        q.PageSize = 20
    }
    day := time.Date(q.Date.Year(), q.Date.Month(), q.Date.Day(), 0, 0, 0, 0, time.UTC)
    cond := `t.status = 'scheduled' AND r.is_active = 1
             AND LOWER(r.source) = ? AND LOWER(r.destination) = ?
             AND t.departure_at >= ? AND t.departure_at < ?`
    args := []any{
        strings.ToLower(strings.TrimSpace(q.Source)),
        strings.ToLower(strings.TrimSpace(q.Destination)),
        day, day.Add(24 * time.Hour),
    }

    var total int64
    countSQL := `SELECT COUNT(*)
        FROM trips t
        JOIN routes r ON r.id = t.route_id
        WHERE ` + cond
    if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
        return nil, 0, classify("count trips", err)
    }

    dataSQL := `SELECT ` + tripColumns + `
        FROM trips t
        JOIN routes r ON r.id = t.route_id
        WHERE ` + cond + `
        ORDER BY t.departure_at ASC
        LIMIT ? OFFSET ?`
    argsData := append(append([]any{}, args...), q.PageSize, (q.Page-1)*q.PageSize)
    rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
    if err != nil {
        return nil, 0, classify("search trips", err)
    }
    defer rows.Close()

    out := make([]TripRow, 0, q.PageSize)
    for rows.Next() {
        t, err := scanTrip(rows)
        if err != nil {
            return nil, 0, classify("search trips", err)
        }
        out = append(out, TripRow{
            ID: t.ID, Source: t.Source, Destination: t.Destination,
            BusID: t.BusID, OperatorName: t.OperatorName,
            DepartureAt: t.DepartureAt, ArrivalAt: t.ArrivalAt,
            Fare: t.Fare, TotalSeats: t.TotalSeats,
            AvailableSeats: model.SeatSet{TotalSeats: t.TotalSeats, Seats: t.BookedSeats}.Available(),
        })
    }
    if err := rows.Err(); err != nil {
        return nil, 0, classify("search trips", err)
    }
    return out, total, nil
}

// ActiveRoutes lists the routes open for booking, ordered by source and
// destination.  Place names are returned normalized.
func (r *TripRepo) ActiveRoutes(ctx context.Context) ([]model.Route, error) {
    const q = `SELECT id, source, destination, distance_km, is_active, created_at, updated_at
               FROM routes WHERE is_active = 1
               ORDER BY source, destination`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, classify("list routes", err)
    }
    defer rows.Close()
    out := []model.Route{}
    for rows.Next() {
        var rt model.Route
        if err := rows.Scan(&rt.ID, &rt.Source, &rt.Destination, &rt.DistanceKm, &rt.IsActive, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
            return nil, classify("list routes", err)
        }
        rt.Source = model.NormalizePlace(rt.Source)
        rt.Destination = model.NormalizePlace(rt.Destination)
        out = append(out, rt)
    }
    if err := rows.Err(); err != nil {
        return nil, classify("list routes", err)
    }
    return out, nil
}

func decodeSeats(raw []byte) ([]string, error) {
    labels := []string{}
    if len(raw) == 0 {
        return labels, nil
    }
    if err := json.Unmarshal(raw, &labels); err != nil {
        return nil, err
    }
    return labels, nil
}
