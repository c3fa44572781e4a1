package handler

import (
    "context"
    "log/slog"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-booking/internal/model"
    "github.com/iliyamo/bus-seat-booking/internal/repository"
)

// TripSearcher finds bookable trips.
type TripSearcher interface {
    Search(ctx context.Context, q repository.TripSearchQuery) ([]repository.TripRow, int64, error)
    ActiveRoutes(ctx context.Context) ([]model.Route, error)
}

// SeatViewer reads a trip's current seat set.
type SeatViewer interface {
    Snapshot(ctx context.Context, tripID uint64) (model.SeatSet, error)
}

// TripHandler serves the public trip endpoints.
type TripHandler struct {
    Trips    TripSearcher
    SeatSets SeatViewer
    Logger   *slog.Logger
}

func NewTripHandler(trips TripSearcher, seats SeatViewer, logger *slog.Logger) *TripHandler {
    if trips == nil || seats == nil {
        panic("nil dependency passed to NewTripHandler")
    }
    if logger == nil {
        logger = slog.Default()
    }
    return &TripHandler{Trips: trips, SeatSets: seats, Logger: logger}
}

// Search handles GET /v1/trips/search?source&destination&date=YYYY-MM-DD
// with page and page_size.  All three filters are required.
func (h *TripHandler) Search(c echo.Context) error {
    source := model.NormalizePlace(c.QueryParam("source"))
    dest := model.NormalizePlace(c.QueryParam("destination"))
    if source == "" || dest == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "message": "source and destination are required"})
    }
    date, err := time.Parse("2006-01-02", c.QueryParam("date"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "field": "date", "message": "expected YYYY-MM-DD"})
    }
    page, size := paging(c)

    items, total, err := h.Trips.Search(c.Request().Context(), repository.TripSearchQuery{
        Source:      source,
        Destination: dest,
        Date:        date,
        Page:        page,
        PageSize:    size,
    })
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    if items == nil {
        items = []repository.TripRow{}
    }
    return c.JSON(http.StatusOK, echo.Map{
        "data":      items,
        "total":     total,
        "page":      page,
        "page_size": size,
    })
}

// Routes handles GET /v1/routes: the active routes trips can be searched on.
func (h *TripHandler) Routes(c echo.Context) error {
    routes, err := h.Trips.ActiveRoutes(c.Request().Context())
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"data": routes})
}

// Seats handles GET /v1/trips/:id/seats.  It is never cached.
func (h *TripHandler) Seats(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
    }
    set, err := h.SeatSets.Snapshot(c.Request().Context(), id)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    booked := set.Seats
    if booked == nil {
        booked = []string{}
    }
    return c.JSON(http.StatusOK, echo.Map{
        "trip_id":      set.TripID,
        "status":       set.Status,
        "total_seats":  set.TotalSeats,
        "booked_seats": booked,
        "available":    set.Available(),
    })
}
