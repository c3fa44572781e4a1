// Package queue defines message payloads exchanged over the message broker.
package queue

import (
    "fmt"
    "strings"
    "time"
)

// QueueName is the durable queue booking events are published to.
const QueueName = "booking.events"

// Event types.
const (
    EventBookingCreated   = "booking.created"
    EventBookingCancelled = "booking.cancelled"
)

// BookingEvent is published when a booking is created or cancelled.  It
// carries enough for the notification service to address the user and
// describe the trip without querying the primary database.  Delivery is
// at most once.
type BookingEvent struct {
    EventID           string    `json:"event_id"`
    Type              string    `json:"type"`
    UserID            uint64    `json:"user_id"`
    BookingID         uint64    `json:"booking_id"`
    PNR               string    `json:"pnr"`
    Source            string    `json:"source"`
    Destination       string    `json:"destination"`
    TravelDate        time.Time `json:"travel_date"`
    Seats             []string  `json:"seats"`
    AmountCents       int64     `json:"amount_cents"`
    RefundPercent     int       `json:"refund_percent,omitempty"`
    RefundAmountCents int64     `json:"refund_amount_cents,omitempty"`
    OccurredAt        time.Time `json:"occurred_at"`
}

// Line renders the event as one human-friendly log line.
func (ev BookingEvent) Line() string {
    seats := "[]"
    if len(ev.Seats) > 0 {
        seats = fmt.Sprintf("[%s]", strings.Join(ev.Seats, ","))
    }
    switch ev.Type {
    case EventBookingCancelled:
        return fmt.Sprintf("[%s] Booking cancelled | pnr=%s | booking_id=%d | user_id=%d | route=\"%s -> %s\" | travel=%s | refund=%d%% %d cents | seats=%s\n",
            ev.OccurredAt.UTC().Format(time.RFC3339), ev.PNR, ev.BookingID, ev.UserID, ev.Source, ev.Destination,
            ev.TravelDate.UTC().Format(time.RFC3339), ev.RefundPercent, ev.RefundAmountCents, seats)
    default:
        return fmt.Sprintf("[%s] Booking confirmed | pnr=%s | booking_id=%d | user_id=%d | route=\"%s -> %s\" | travel=%s | total=%d cents | seats=%s\n",
            ev.OccurredAt.UTC().Format(time.RFC3339), ev.PNR, ev.BookingID, ev.UserID, ev.Source, ev.Destination,
            ev.TravelDate.UTC().Format(time.RFC3339), ev.AmountCents, seats)
    }
}
