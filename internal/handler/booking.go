package handler

import (
    "context"
    "log/slog"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-booking/internal/model"
    "github.com/iliyamo/bus-seat-booking/internal/service"
)

// BookingService is the booking ledger as seen by the HTTP layer.
type BookingService interface {
    Create(ctx context.Context, userID uint64, req service.CreateRequest) (*model.Booking, error)
    Cancel(ctx context.Context, userID, bookingID uint64) (*service.CancelResult, error)
    Get(ctx context.Context, userID, bookingID uint64) (*model.Booking, error)
    List(ctx context.Context, userID uint64, limit, offset int) ([]*model.Booking, error)
    Preview(baseFare model.Money, seatCount int, coupon string) (model.FareBreakdown, error)
}

// BookingHandler serves /v1/bookings and the fare preview.  All booking
// routes sit behind JWTAuth.
type BookingHandler struct {
    Bookings BookingService
    Logger   *slog.Logger
}

// NewBookingHandler panics on a nil service.
func NewBookingHandler(bookings BookingService, logger *slog.Logger) *BookingHandler {
    if bookings == nil {
        panic("nil booking service passed to NewBookingHandler")
    }
    if logger == nil {
        logger = slog.Default()
    }
    return &BookingHandler{Bookings: bookings, Logger: logger}
}

// bookingView is the JSON shape of a booking; the fare breakdown is
// flattened into it.
type bookingView struct {
    ID            uint64            `json:"id"`
    PNR           string            `json:"pnr"`
    TripID        uint64            `json:"trip_id"`
    Source        string            `json:"source"`
    Destination   string            `json:"destination"`
    TravelDate    time.Time         `json:"travel_date"`
    Passengers    []model.Passenger `json:"passengers"`
    model.FareBreakdown
    PaymentStatus string            `json:"payment_status"`
    Status        string            `json:"status"`
    PaymentRef    *string           `json:"payment_ref"`
    RefundPercent int               `json:"refund_percent"`
    RefundAmount  model.Money       `json:"refund_amount"`
    CancelledAt   *time.Time        `json:"cancelled_at"`
    CreatedAt     time.Time         `json:"created_at"`
}

func viewOf(b *model.Booking) bookingView {
    return bookingView{
        ID:            b.ID,
        PNR:           b.PNR,
        TripID:        b.TripID,
        Source:        b.Source,
        Destination:   b.Destination,
        TravelDate:    b.TravelDate,
        Passengers:    b.Passengers,
        FareBreakdown: b.Fare,
        PaymentStatus: b.PaymentStatus,
        Status:        b.Status,
        PaymentRef:    b.PaymentRef,
        RefundPercent: b.RefundPercent,
        RefundAmount:  b.RefundAmount,
        CancelledAt:   b.CancelledAt,
        CreatedAt:     b.CreatedAt,
    }
}

// Create handles POST /v1/bookings.  Body: trip_id, seats, passengers
// (name, age, gender, optional seat_number), optional coupon_code,
// use_wallet and payment_order_id.  Answers 201 with the booking.
func (h *BookingHandler) Create(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    var req service.CreateRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    b, err := h.Bookings.Create(c.Request().Context(), userID, req)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusCreated, viewOf(b))
}

// List handles GET /v1/bookings?page&page_size, newest first.
func (h *BookingHandler) List(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    page, size := paging(c)
    items, err := h.Bookings.List(c.Request().Context(), userID, size, (page-1)*size)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    out := make([]bookingView, 0, len(items))
    for _, b := range items {
        out = append(out, viewOf(b))
    }
    return c.JSON(http.StatusOK, echo.Map{"data": out, "page": page, "page_size": size})
}

// Get handles GET /v1/bookings/:id.  Other users' bookings are 403.
func (h *BookingHandler) Get(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    b, err := h.Bookings.Get(c.Request().Context(), userID, id)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, viewOf(b))
}

// Cancel handles POST /v1/bookings/:id/cancel.  The refund goes to the
// wallet; the answer carries the refund tier, amount and new balance.
func (h *BookingHandler) Cancel(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    res, err := h.Bookings.Cancel(c.Request().Context(), userID, id)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "booking":        viewOf(res.Booking),
        "refund_percent": res.RefundPercent,
        "refund_amount":  res.RefundAmount,
        "wallet_balance": res.WalletBalance,
    })
}
