package model

import "time"

// Trip lifecycle states.  scheduled is the only state that accepts seat
// claims; cancelled and completed are terminal.
const (
	TripScheduled = "scheduled"
	TripCancelled = "cancelled"
	TripCompleted = "completed"
)

// Trip is a scheduled departure on a route.  BookedSeats is the ordered
// set of seat labels currently sold; it is owned by the seat inventory
// guard and only changes through a version-checked swap, never through a
// plain read-then-save.
//
// Fields:
//  ID           – primary key identifier.
//  RouteID      – route served by this trip.
//  Source       – route origin (joined from routes).
//  Destination  – route destination (joined from routes).
//  BusID        – carrier identifier.
//  OperatorName – display name of the operator.
//  DepartureAt  – scheduled departure (UTC).
//  ArrivalAt    – scheduled arrival (UTC).
//  Fare         – fare per seat.
//  TotalSeats   – seat capacity.
//  BookedSeats  – labels currently sold, unique within the trip.
//  SeatVersion  – incremented on every seat set change.
//  Status       – scheduled, cancelled or completed.
type Trip struct {
	ID           uint64    // trips.id
	RouteID      uint64    // trips.route_id
	Source       string    // routes.source
	Destination  string    // routes.destination
	BusID        string    // trips.bus_id
	OperatorName string    // trips.operator_name
	DepartureAt  time.Time // trips.departure_at
	ArrivalAt    time.Time // trips.arrival_at
	Fare         Money     // trips.fare_cents
	TotalSeats   int       // trips.total_seats
	BookedSeats  []string  // trips.booked_seats (JSON array)
	SeatVersion  uint32    // trips.seat_version
	Status       string    // trips.status
	CreatedAt    time.Time // trips.created_at
	UpdatedAt    time.Time // trips.updated_at
}

// SeatSet is the slice of a trip the inventory guard works on: the booked
// labels, the capacity and the version used for the conditional write.
type SeatSet struct {
	TripID     uint64
	Status     string
	TotalSeats int
	Seats      []string
	Version    uint32
}

// Available returns how many seats remain unsold.
func (s SeatSet) Available() int {
	n := s.TotalSeats - len(s.Seats)
	if n < 0 {
		return 0
	}
	return n
}
