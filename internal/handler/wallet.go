package handler

import (
    "context"
    "log/slog"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-booking/internal/model"
)

// WalletReader is the read side of the wallet ledger.
type WalletReader interface {
    Balance(ctx context.Context, userID uint64) (model.Money, error)
    Entries(ctx context.Context, userID uint64, limit int) ([]model.WalletEntry, error)
}

// WalletHandler serves GET /v1/wallet.
type WalletHandler struct {
    Wallet WalletReader
    Logger *slog.Logger
}

func NewWalletHandler(w WalletReader, logger *slog.Logger) *WalletHandler {
    if w == nil {
        panic("nil wallet passed to NewWalletHandler")
    }
    if logger == nil {
        logger = slog.Default()
    }
    return &WalletHandler{Wallet: w, Logger: logger}
}

// Show returns the balance and the most recent journal entries
// (?limit, default 20, max 100).
func (h *WalletHandler) Show(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    limit, _ := strconv.Atoi(c.QueryParam("limit"))
    if limit < 1 {
        limit = 20
    }
    if limit > 100 {
        limit = 100
    }
    ctx := c.Request().Context()
    bal, err := h.Wallet.Balance(ctx, userID)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    entries, err := h.Wallet.Entries(ctx, userID, limit)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    if entries == nil {
        entries = []model.WalletEntry{}
    }
    return c.JSON(http.StatusOK, echo.Map{"balance": bal, "entries": entries})
}
