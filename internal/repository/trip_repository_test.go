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

func TestLoadSeatSetDecodesJSON(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectQuery(regexp.QuoteMeta("SELECT id, status, total_seats, booked_seats, seat_version FROM trips")).
        WithArgs(7).
        WillReturnRows(sqlmock.NewRows([]string{"id", "status", "total_seats", "booked_seats", "seat_version"}).
            AddRow(int64(7), "scheduled", int64(40), []byte(`["1A","1B"]`), int64(3)))

    set, err := NewTripRepo(db).LoadSeatSet(context.Background(), 7)
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if set.Version != 3 || set.TotalSeats != 40 || len(set.Seats) != 2 || set.Seats[1] != "1B" {
        t.Fatalf("unexpected seat set %+v", set)
    }
    if set.Available() != 38 {
        t.Fatalf("available = %d, want 38", set.Available())
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestLoadSeatSetMissingTrip(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectQuery("FROM trips").WithArgs(9).
        WillReturnRows(sqlmock.NewRows([]string{"id", "status", "total_seats", "booked_seats", "seat_version"}))

    _, err = NewTripRepo(db).LoadSeatSet(context.Background(), 9)
    if !errors.Is(err, model.ErrNotFound) {
        t.Fatalf("err = %v, want ErrNotFound", err)
    }
}

func TestSwapSeatsIsConditional(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()
    repo := NewTripRepo(db)

    swap := regexp.QuoteMeta("UPDATE trips SET booked_seats = ?, seat_version = seat_version + 1")
    mock.ExpectExec(swap + `.*AND seat_version = \?.*AND status = 'scheduled'`).
        WithArgs(`["1A","2B"]`, 7, 3).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(swap).
        WithArgs(`["1A"]`, 7, 3).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectExec(swap).
        WithArgs(`[]`, 7, 4).
        WillReturnResult(sqlmock.NewResult(0, 1))

    ok, err := repo.SwapSeats(context.Background(), 7, 3, []string{"1A", "2B"}, true)
    if err != nil || !ok {
        t.Fatalf("first swap ok=%v err=%v", ok, err)
    }
    ok, err = repo.SwapSeats(context.Background(), 7, 3, []string{"1A"}, false)
    if err != nil || ok {
        t.Fatalf("stale swap ok=%v err=%v, want false", ok, err)
    }
    ok, err = repo.SwapSeats(context.Background(), 7, 4, nil, false)
    if err != nil || !ok {
        t.Fatalf("empty swap ok=%v err=%v", ok, err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestSwapSeatsDeadlockIsTransient(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectExec("UPDATE trips").
        WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})

    _, err = NewTripRepo(db).SwapSeats(context.Background(), 1, 0, []string{"1A"}, true)
    if !model.IsTransient(err) {
        t.Fatalf("err = %v, want transient", err)
    }
}

func TestGetTripJoinsRoute(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    dep := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
    cols := []string{"id", "route_id", "source", "destination", "bus_id", "operator_name",
        "departure_at", "arrival_at", "fare_cents", "total_seats",
        "booked_seats", "seat_version", "status", "created_at", "updated_at"}
    mock.ExpectQuery("JOIN routes r ON r.id = t.route_id").WithArgs(3).
        WillReturnRows(sqlmock.NewRows(cols).AddRow(
            int64(3), int64(1), "Pune", "Mumbai", "MH12-AB-1234", "Friendly Travels",
            dep, dep.Add(4*time.Hour), int64(50000), int64(40),
            []byte(`["3C"]`), int64(1), "scheduled", dep, dep,
        ))

    trip, err := NewTripRepo(db).GetByID(context.Background(), 3)
    if err != nil {
        t.Fatalf("get: %v", err)
    }
    if trip.Source != "Pune" || trip.Fare != 50000 || len(trip.BookedSeats) != 1 {
        t.Fatalf("unexpected trip %+v", trip)
    }
}

func TestSearchTripsFiltersByDay(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
    mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
        WithArgs("pune", "mumbai", day, day.Add(24*time.Hour)).
        WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
    cols := []string{"id", "route_id", "source", "destination", "bus_id", "operator_name",
        "departure_at", "arrival_at", "fare_cents", "total_seats",
        "booked_seats", "seat_version", "status", "created_at", "updated_at"}
    dep := day.Add(9 * time.Hour)
    mock.ExpectQuery("ORDER BY t.departure_at ASC").
        WithArgs("pune", "mumbai", day, day.Add(24*time.Hour), 20, 0).
        WillReturnRows(sqlmock.NewRows(cols).AddRow(
            int64(5), int64(1), "Pune", "Mumbai", "MH12-AB-1234", "Friendly Travels",
            dep, dep.Add(4*time.Hour), int64(50000), int64(40),
            []byte(`["1A","1B","1C"]`), int64(3), "scheduled", dep, dep,
        ))

    rows, total, err := NewTripRepo(db).Search(context.Background(), TripSearchQuery{
        Source: " Pune ", Destination: "MUMBAI", Date: day.Add(15 * time.Hour),
    })
    if err != nil {
        t.Fatalf("search: %v", err)
    }
    if total != 1 || len(rows) != 1 || rows[0].AvailableSeats != 37 {
        t.Fatalf("unexpected result total=%d rows=%+v", total, rows)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestActiveRoutesNormalizesNames(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
    mock.ExpectQuery("FROM routes WHERE is_active = 1").
        WillReturnRows(sqlmock.NewRows([]string{"id", "source", "destination", "distance_km", "is_active", "created_at", "updated_at"}).
            AddRow(int64(1), "pune", "NAVI  mumbai", 148.5, true, now, now))

    routes, err := NewTripRepo(db).ActiveRoutes(context.Background())
    if err != nil {
        t.Fatalf("routes: %v", err)
    }
    if len(routes) != 1 || routes[0].Source != "Pune" || routes[0].Destination != "Navi Mumbai" || routes[0].DistanceKm != 148.5 {
        t.Fatalf("routes = %+v", routes)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}
