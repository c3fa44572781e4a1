package handler // handler holds the echo HTTP handlers of the booking API

import (
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-booking/internal/middleware"
)

// getUserID returns the id JWTAuth put into the context.
func getUserID(c echo.Context) (uint64, bool) {
    return middleware.UserID(c)
}

func unauthorized(c echo.Context) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

// paging reads page and page_size the same way for every list endpoint:
// page defaults to 1, page_size to 20 and is capped at 100.
func paging(c echo.Context) (page, size int) {
    page, _ = strconv.Atoi(c.QueryParam("page"))
    if page < 1 {
        page = 1
    }
    size, _ = strconv.Atoi(c.QueryParam("page_size"))
    if size < 1 {
        size = 20
    }
    if size > 100 {
        size = 100
    }
    return page, size
}
