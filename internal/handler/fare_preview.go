package handler

import (
    "fmt"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-booking/internal/model"
)

// Preview handles GET /v1/fares/preview?base_fare=500&seats=2&coupon=FIRST10.
// base_fare is the per-seat fare in currency units.  Nothing is reserved
// or charged; the answer is the breakdown a booking would get.
func (h *BookingHandler) Preview(c echo.Context) error {
    base, err := model.ParseMoney(c.QueryParam("base_fare"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "field": "base_fare", "message": "must be a decimal amount"})
    }
    seats := 1
    if raw := strings.TrimSpace(c.QueryParam("seats")); raw != "" {
        if seats, err = strconv.Atoi(raw); err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "field": "seats", "message": "must be an integer"})
        }
    }
    if seats < 1 || seats > model.MaxSeatsPerBooking {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "field": "seats", "message": fmt.Sprintf("must be between 1 and %d", model.MaxSeatsPerBooking)})
    }
    f, err := h.Bookings.Preview(base, seats, c.QueryParam("coupon"))
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, f)
}
