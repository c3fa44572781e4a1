package model

import "time"

// Booking status values.
const (
	BookingBooked    = "booked"
	BookingCancelled = "cancelled"
)

// Payment status values.  A booking moves pending → paid → refunded and
// never skips paid.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

// Passenger genders accepted on a booking.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// Passenger is one traveller on a booking and the seat assigned to them.
type Passenger struct {
	Name      string `json:"name"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	SeatLabel string `json:"seat_number"`
}

// FareBreakdown decomposes a booking total.  Total always equals
// Fare + GST + ConvenienceFee − Discount − WalletUsed and is never
// negative.  CouponCode is set only when a coupon actually applied.
type FareBreakdown struct {
	Fare           Money   `json:"fare_amount"`
	GST            Money   `json:"gst_amount"`
	ConvenienceFee Money   `json:"convenience_fee"`
	Discount       Money   `json:"discount_amount"`
	CouponCode     *string `json:"coupon_code"`
	WalletUsed     Money   `json:"wallet_used"`
	Total          Money   `json:"total_amount"`
}

// Booking is an issued ticket.  Source, Destination and TravelDate are
// copies taken from the trip at booking time so later route or schedule
// edits cannot rewrite an issued ticket.
//
// Fields:
//  ID            – primary key identifier.
//  PNR           – unique human-facing reference.
//  UserID        – owner of the booking.
//  TripID        – trip the seats were claimed on.
//  Source        – origin snapshot.
//  Destination   – destination snapshot.
//  TravelDate    – departure snapshot; refunds are computed against it.
//  Passengers    – one entry per claimed seat.
//  Fare          – fare breakdown.
//  PaymentStatus – pending, paid or refunded.
//  Status        – booked or cancelled.
//  PaymentRef    – payment order id (mock ids accepted).
//  RefundPercent – tier applied on cancellation.
//  RefundAmount  – amount credited on cancellation.
//  CancelledAt   – set only on cancellation.
type Booking struct {
	ID            uint64
	PNR           string
	UserID        uint64
	TripID        uint64
	Source        string
	Destination   string
	TravelDate    time.Time
	Passengers    []Passenger
	Fare          FareBreakdown
	PaymentStatus string
	Status        string
	PaymentRef    *string
	RefundPercent int
	RefundAmount  Money
	CancelledAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SeatLabels returns the seats held by the booking in passenger order.
func (b *Booking) SeatLabels() []string {
	out := make([]string, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		out = append(out, p.SeatLabel)
	}
	return out
}
