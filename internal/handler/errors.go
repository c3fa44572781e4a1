package handler

import (
    "errors"
    "log/slog"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-booking/internal/model"
)

// writeError maps the booking error taxonomy onto HTTP.  Fatal
// inconsistencies wrap their cause, so they are matched first.
func writeError(c echo.Context, logger *slog.Logger, err error) error {
    var (
        fatal model.FatalInconsistencyError
        ve    model.ValidationError
        sc    model.SeatConflictError
        tu    model.TripUnavailableError
    )
    switch {
    case errors.As(err, &fatal):
        return c.JSON(http.StatusInternalServerError, echo.Map{
            "error":   "internal_inconsistency",
            "message": "the operation could not be completed; support has been notified",
        })
    case errors.As(err, &ve):
        body := echo.Map{"error": "validation_error", "message": ve.Error()}
        if ve.Field != "" {
            body["field"] = ve.Field
        }
        return c.JSON(http.StatusBadRequest, body)
    case errors.As(err, &sc):
        seats := sc.Seats
        if seats == nil {
            seats = []string{}
        }
        return c.JSON(http.StatusConflict, echo.Map{
            "error":             "seat_conflict",
            "message":           sc.Error(),
            "conflicting_seats": seats,
            "available":         sc.Available,
        })
    case errors.As(err, &tu):
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "trip_unavailable", "message": tu.Error()})
    case model.IsTransient(err):
        c.Response().Header().Set("Retry-After", "1")
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily_unavailable", "message": "please retry"})
    case errors.Is(err, model.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
    case errors.Is(err, model.ErrForbidden):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    case errors.Is(err, model.ErrAlreadyCancelled):
        return c.JSON(http.StatusConflict, echo.Map{"error": "already_cancelled"})
    case errors.Is(err, model.ErrDuplicatePNR):
        return c.JSON(http.StatusConflict, echo.Map{"error": "duplicate_reference", "message": "please retry"})
    }
    logger.Error("unhandled error", "method", c.Request().Method, "path", c.Path(), "error", err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
}
