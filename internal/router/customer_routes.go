package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-booking/internal/middleware"
)

// Roles accepted on the booking endpoints.  Tokens come from the external
// auth service.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// RegisterCustomer registers the user-scoped endpoints under /v1.  All of
// them require a valid JWT.  Creating a booking is additionally rate
// limited per user and honours Idempotency-Key.
func RegisterCustomer(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(RoleCustomer, RoleAdmin),
	)
	g.POST("/bookings", d.Bookings.Create,
		middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Logger),
		middleware.Idempotency(d.Redis, d.IdemTTL, d.Logger),
	)
	g.GET("/bookings", d.Bookings.List)
	g.GET("/bookings/:id", d.Bookings.Get)
	g.POST("/bookings/:id/cancel", d.Bookings.Cancel)
	g.GET("/wallet", d.Wallet.Show)
}
