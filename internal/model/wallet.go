package model

import "time"

// Wallet entry kinds recorded in the wallet journal.
const (
	EntryDebit    = "debit"
	EntryReversal = "reversal"
	EntryRefund   = "refund"
)

// WalletEntry is one journal row of a wallet movement.  EntryKey is
// unique; replaying a movement with the same key is a no-op so retries
// never apply a debit or credit twice.
//
// Fields:
//  ID       – primary key identifier.
//  UserID   – wallet owner.
//  EntryKey – idempotency key such as "refund:<pnr>".
//  Kind     – debit, reversal or refund.
//  Amount   – absolute amount moved.
type WalletEntry struct {
	ID        uint64    `json:"id"`         // wallet_entries.id
	UserID    uint64    `json:"-"`          // wallet_entries.user_id
	EntryKey  string    `json:"reference"`  // wallet_entries.entry_key
	Kind      string    `json:"kind"`       // wallet_entries.kind
	Amount    Money     `json:"amount"`     // wallet_entries.amount_cents
	CreatedAt time.Time `json:"created_at"` // wallet_entries.created_at
}

// DebitKey, ReversalKey and RefundKey build the journal keys used by the
// booking ledger for a given PNR.
func DebitKey(pnr string) string    { return "debit:" + pnr }
func ReversalKey(pnr string) string { return "reversal:" + pnr }
func RefundKey(pnr string) string   { return "refund:" + pnr }
