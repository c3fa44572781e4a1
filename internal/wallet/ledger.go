// Package wallet is the per-user balance used as partial payment and as
// the refund target.  Every movement is a single atomic change against
// the stored balance and carries an idempotency key, so concurrent
// bookings and refunds for the same user never lose an update and a
// retried movement is applied once.
package wallet

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/bus-seat-booking/internal/metrics"
	"github.com/iliyamo/bus-seat-booking/internal/model"
)

// Store is the persistence behind the ledger.  Debit must fail with
// model.ErrInsufficientFunds instead of driving the balance negative.
type Store interface {
	Balance(ctx context.Context, userID uint64) (model.Money, error)
	Debit(ctx context.Context, userID uint64, amount model.Money, key string) (model.Money, error)
	Credit(ctx context.Context, userID uint64, amount model.Money, kind, key string) (model.Money, error)
	Reverse(ctx context.Context, userID uint64, debitKey, reversalKey string) (model.Money, error)
	Entries(ctx context.Context, userID uint64, limit int) ([]model.WalletEntry, error)
}

// Ledger validates amounts and bounds every store call with a timeout.
type Ledger struct {
	store     Store
	opTimeout time.Duration
	logger    *slog.Logger
}

// NewLedger builds a Ledger.  A zero timeout defaults to 3s.
func NewLedger(store Store, opTimeout time.Duration, logger *slog.Logger) *Ledger {
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, opTimeout: opTimeout, logger: logger}
}

// Balance returns the user's current balance.
func (l *Ledger) Balance(ctx context.Context, userID uint64) (model.Money, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()
	return l.store.Balance(ctx, userID)
}

// Debit takes amount from the wallet and returns the new balance.  The
// caller clamps amount to the balance first; a concurrent debit that got
// there first still yields model.ErrInsufficientFunds, never a negative
// balance.  A zero amount reads the balance and moves nothing.
func (l *Ledger) Debit(ctx context.Context, userID uint64, amount model.Money, key string) (model.Money, error) {
	if amount < 0 {
		return 0, model.ValidationError{Field: "amount", Msg: "must not be negative"}
	}
	if amount == 0 {
		return l.Balance(ctx, userID)
	}
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()
	bal, err := l.store.Debit(ctx, userID, amount, key)
	if err != nil {
		return 0, err
	}
	metrics.WalletMovements.WithLabelValues(model.EntryDebit).Inc()
	l.logger.Info("wallet debited", "user_id", userID, "amount_cents", int64(amount), "key", key, "balance_cents", int64(bal))
	return bal, nil
}

// Credit adds amount unconditionally and returns the new balance.  kind is
// model.EntryRefund or model.EntryReversal.  A zero credit is still
// journaled under key, so every cancellation leaves its refund row.
func (l *Ledger) Credit(ctx context.Context, userID uint64, amount model.Money, kind, key string) (model.Money, error) {
	if amount < 0 {
		return 0, model.ValidationError{Field: "amount", Msg: "must not be negative"}
	}
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()
	bal, err := l.store.Credit(ctx, userID, amount, kind, key)
	if err != nil {
		return 0, err
	}
	metrics.WalletMovements.WithLabelValues(kind).Inc()
	l.logger.Info("wallet credited", "user_id", userID, "kind", kind, "amount_cents", int64(amount), "key", key, "balance_cents", int64(bal))
	return bal, nil
}

// Reverse undoes the booking debit made under pnr, if it landed, and
// returns the amount given back.  Calling it again is a no-op.
func (l *Ledger) Reverse(ctx context.Context, userID uint64, pnr string) (model.Money, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()
	amount, err := l.store.Reverse(ctx, userID, model.DebitKey(pnr), model.ReversalKey(pnr))
	if err != nil {
		return 0, err
	}
	if amount > 0 {
		metrics.WalletMovements.WithLabelValues(model.EntryReversal).Inc()
		l.logger.Info("wallet debit reversed", "user_id", userID, "pnr", pnr, "amount_cents", int64(amount))
	}
	return amount, nil
}

// Entries returns recent journal rows, newest first.
func (l *Ledger) Entries(ctx context.Context, userID uint64, limit int) ([]model.WalletEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()
	return l.store.Entries(ctx, userID, limit)
}
