package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/bus-seat-booking/internal/model"
)

// WalletRepo stores per-user balances and the wallet journal.  Balances
// change only through a single conditional or incrementing UPDATE, never
// read-modify-write, and every movement is journaled under a unique
// entry key so replaying the same movement is a no-op.
type WalletRepo struct {
    db *sql.DB
}

// NewWalletRepo returns a new WalletRepo bound to the given database.
func NewWalletRepo(db *sql.DB) *WalletRepo { return &WalletRepo{db: db} }

// Balance returns the current balance.  A user without a wallet row has a
// zero balance.
func (r *WalletRepo) Balance(ctx context.Context, userID uint64) (model.Money, error) {
    return r.balance(ctx, r.db, userID)
}

type querier interface {
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *WalletRepo) balance(ctx context.Context, q querier, userID uint64) (model.Money, error) {
    var cents int64
    err := q.QueryRowContext(ctx, `SELECT balance_cents FROM wallets WHERE user_id = ?`, userID).Scan(&cents)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, nil
    }
    if err != nil {
        return 0, classify("wallet balance", err)
    }
    return model.Money(cents), nil
}

// Debit subtracts amount if the balance covers it and journals the
// movement under key.  It returns model.ErrInsufficientFunds when the
// balance is too low.  A key that was already applied returns the current
// balance without moving money again.
func (r *WalletRepo) Debit(ctx context.Context, userID uint64, amount model.Money, key string) (model.Money, error) {
    const q = `UPDATE wallets SET balance_cents = balance_cents - ?
               WHERE user_id = ? AND balance_cents >= ?`
    return r.apply(ctx, userID, model.EntryDebit, key, amount, func(tx *sql.Tx) error {
        res, err := tx.ExecContext(ctx, q, int64(amount), userID, int64(amount))
        if err != nil {
            return classify("wallet debit", err)
        }
        n, err := res.RowsAffected()
        if err != nil {
            return classify("wallet debit", err)
        }
        if n == 0 {
            return model.ErrInsufficientFunds
        }
        return nil
    })
}

// Credit adds amount, creating the wallet row on first use.  kind is
// model.EntryRefund or model.EntryReversal.  Replays of key are no-ops.
func (r *WalletRepo) Credit(ctx context.Context, userID uint64, amount model.Money, kind, key string) (model.Money, error) {
    const q = `INSERT INTO wallets (user_id, balance_cents) VALUES (?, ?)
               ON DUPLICATE KEY UPDATE balance_cents = balance_cents + VALUES(balance_cents)`
    return r.apply(ctx, userID, kind, key, amount, func(tx *sql.Tx) error {
        if _, err := tx.ExecContext(ctx, q, userID, int64(amount)); err != nil {
            return classify("wallet credit", err)
        }
        return nil
    })
}

// Reverse credits back the amount journaled under debitKey, recording it
// under reversalKey.  It moves nothing when the debit never landed or the
// reversal was already applied, and returns the amount actually reversed.
func (r *WalletRepo) Reverse(ctx context.Context, userID uint64, debitKey, reversalKey string) (model.Money, error) {
    var cents int64
    err := r.db.QueryRowContext(ctx,
        `SELECT amount_cents FROM wallet_entries WHERE entry_key = ? AND user_id = ? AND kind = 'debit'`,
        debitKey, userID).Scan(&cents)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, nil
    }
    if err != nil {
        return 0, classify("wallet reversal", err)
    }
    if _, err := r.Credit(ctx, userID, model.Money(cents), model.EntryReversal, reversalKey); err != nil {
        return 0, err
    }
    return model.Money(cents), nil
}

// apply journals the movement and runs move in the same transaction.  The
// journal insert comes first so a duplicate key stops the movement before
// the balance is touched.
func (r *WalletRepo) apply(ctx context.Context, userID uint64, kind, key string, amount model.Money, move func(*sql.Tx) error) (model.Money, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, classify("begin wallet", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    const entry = `INSERT INTO wallet_entries (user_id, entry_key, kind, amount_cents) VALUES (?, ?, ?, ?)`
    if _, err := tx.ExecContext(ctx, entry, userID, key, kind, int64(amount)); err != nil {
        if isDuplicate(err) {
            _ = tx.Rollback()
            committed = true
            return r.balance(ctx, r.db, userID)
        }
        return 0, classify("wallet journal", err)
    }
    if err := move(tx); err != nil {
        return 0, err
    }
    bal, err := r.balance(ctx, tx, userID)
    if err != nil {
        return 0, err
    }
    if err := tx.Commit(); err != nil {
        return 0, classify("commit wallet", err)
    }
    committed = true
    return bal, nil
}

// Entries returns the most recent journal rows for a user, newest first.
func (r *WalletRepo) Entries(ctx context.Context, userID uint64, limit int) ([]model.WalletEntry, error) {
    if limit < 1 || limit > 100 {
        limit = 20
    }
    const q = `SELECT id, user_id, entry_key, kind, amount_cents, created_at
               FROM wallet_entries
               WHERE user_id = ?
               ORDER BY created_at DESC, id DESC
               LIMIT ?`
    rows, err := r.db.QueryContext(ctx, q, userID, limit)
    if err != nil {
        return nil, classify("wallet entries", err)
    }
    defer rows.Close()
    out := make([]model.WalletEntry, 0)
    for rows.Next() {
        var e model.WalletEntry
        var cents int64
        if err := rows.Scan(&e.ID, &e.UserID, &e.EntryKey, &e.Kind, &cents, &e.CreatedAt); err != nil {
            return nil, classify("wallet entries", err)
        }
        e.Amount = model.Money(cents)
        out = append(out, e)
    }
    if err := rows.Err(); err != nil {
        return nil, classify("wallet entries", err)
    }
    return out, nil
}
