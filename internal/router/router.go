package router // package router defines how HTTP routes are registered for the API

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/bus-seat-booking/internal/config"
	"github.com/iliyamo/bus-seat-booking/internal/handler"
	"github.com/iliyamo/bus-seat-booking/internal/middleware"
)

// Deps bundles what the routes need.  Redis may be nil, which disables
// the rate limiter, the read cache and Idempotency-Key handling.
type Deps struct {
	Bookings  *handler.BookingHandler
	Wallet    *handler.WalletHandler
	Trips     *handler.TripHandler
	DB        handler.Pinger
	Redis     *redis.Client
	JWTSecret string
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	IdemTTL   time.Duration
	Logger    *slog.Logger
}

// New builds the echo instance with the shared middleware stack and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	Use(e, d.Logger)
	RegisterRoutes(e, d)
	RegisterPublic(e, d)
	RegisterCustomer(e, d)
	return e
}

// Use installs request ids, panic recovery and access logging to slog.
func Use(e *echo.Echo, logger *slog.Logger) {
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency_ms", v.Latency.Milliseconds(), "request_id", v.RequestID}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))
}

// RegisterRoutes registers the operational endpoints.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.DB != nil {
		e.GET("/readyz", handler.Ready(d.DB))
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers the unauthenticated read endpoints.  Search and
// preview go through the Redis read cache; seat availability never does.
func RegisterPublic(e *echo.Echo, d Deps) {
	cache := middleware.NewRedisCache(d.Cache, d.Redis, d.Logger)
	e.GET("/v1/fares/preview", d.Bookings.Preview, cache)
	e.GET("/v1/routes", d.Trips.Routes, cache)
	e.GET("/v1/trips/search", d.Trips.Search, cache)
	e.GET("/v1/trips/:id/seats", d.Trips.Seats)
}
