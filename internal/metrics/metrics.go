// Package metrics declares the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_created_total",
		Help: "The total number of bookings persisted",
	})
	BookingsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_cancelled_total",
		Help: "The total number of bookings cancelled",
	})
	BookingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_failures_total",
		Help: "Booking and cancellation failures by error class",
	}, []string{"op", "class"})
	SeatClaimRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seat_claim_retries_total",
		Help: "Seat set writes that lost an optimistic version race and were retried",
	})
	SeatConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seat_conflicts_total",
		Help: "Seat claims rejected because seats were already booked",
	})
	FatalInconsistencies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fatal_inconsistencies_total",
		Help: "Compensating actions that failed and need manual reconciliation",
	})
	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Booking events that could not be queued or published",
	})
	WalletMovements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_movements_total",
		Help: "Wallet debits and credits applied",
	}, []string{"kind"})
)
