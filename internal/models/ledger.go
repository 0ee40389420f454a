package models

import (
	"time"
)

type OwnerKind string

const (
	OwnerPlatform OwnerKind = "PLATFORM"
	OwnerUser     OwnerKind = "USER"
)

type TransactionKind string

const (
	KindReload  TransactionKind = "RELOAD"
	KindPayment TransactionKind = "PAYMENT"
	KindRefund  TransactionKind = "REFUND"
	KindPayout  TransactionKind = "PAYOUT"
)

type Account struct {
	ID             string    `json:"id" db:"id"`
	OwnerKind      OwnerKind `json:"owner_kind" db:"owner_kind"`
	UserID         *string   `json:"user_id,omitempty" db:"user_id"`
	AvailableCents int64     `json:"available_cents" db:"available_cents"`
	PendingCents   int64     `json:"pending_cents" db:"pending_cents"`
	Version        int64     `json:"version" db:"version"` // for optimistic locking
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// CanOverdraw reports whether the account may carry a negative available
// balance. Only the PLATFORM clearing account can.
func (a *Account) CanOverdraw() bool {
	return a.OwnerKind == OwnerPlatform
}

type Balance struct {
	AvailableCents int64 `json:"available_cents"`
	PendingCents   int64 `json:"pending_cents"`
}

// LedgerTransaction is an append-only movement of AmountCents from one
// account to another. ReferenceID is unique across the ledger.
type LedgerTransaction struct {
	ID            string          `json:"id" db:"id"`
	FromAccountID string          `json:"from_account_id" db:"from_account_id"`
	ToAccountID   string          `json:"to_account_id" db:"to_account_id"`
	AmountCents   int64           `json:"amount_cents" db:"amount_cents"` // in cents
	Kind          TransactionKind `json:"kind" db:"kind"`
	ReferenceID   string          `json:"reference_id" db:"reference_id"`
	Memo          string          `json:"memo,omitempty" db:"memo"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// TransactionRef is what wallet operations hand back to callers. Replayed is
// set when the reference had already been applied and the stored result is
// returned instead of moving funds again.
type TransactionRef struct {
	TransactionID string          `json:"transaction_id"`
	ReferenceID   string          `json:"reference_id"`
	Kind          TransactionKind `json:"kind"`
	AmountCents   int64           `json:"amount_cents"`
	CreatedAt     time.Time       `json:"created_at"`
	Replayed      bool            `json:"replayed"`
}

func (t *LedgerTransaction) Ref(replayed bool) *TransactionRef {
	return &TransactionRef{
		TransactionID: t.ID,
		ReferenceID:   t.ReferenceID,
		Kind:          t.Kind,
		AmountCents:   t.AmountCents,
		CreatedAt:     t.CreatedAt,
		Replayed:      replayed,
	}
}

// ReconcileReport compares an account's stored balance with the net of the
// ledger rows that reference it.
type ReconcileReport struct {
	AccountID      string `json:"account_id"`
	AvailableCents int64  `json:"available_cents"`
	LedgerNetCents int64  `json:"ledger_net_cents"`
	Balanced       bool   `json:"balanced"`
}
