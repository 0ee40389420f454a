package models

import "time"

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type PaymentType string

const (
	PaymentTypeBooking      PaymentType = "booking"
	PaymentTypeWalletReload PaymentType = "wallet_reload"
)

type VerifyAction string

const (
	ActionApprove VerifyAction = "approve"
	ActionReject  VerifyAction = "reject"
)

// MethodWallet marks payments settled from the customer's own wallet.
const MethodWallet = "wallet"

type Payment struct {
	ID              string        `json:"id" db:"id"`
	UserID          string        `json:"user_id" db:"user_id"`
	BookingID       *string       `json:"booking_id,omitempty" db:"booking_id"`
	Type            PaymentType   `json:"payment_type" db:"payment_type"`
	Status          PaymentStatus `json:"status" db:"status"`
	Method          string        `json:"method" db:"method"`
	ReferenceNumber string        `json:"reference_number" db:"reference_number"`
	ProofRef        string        `json:"proof_ref,omitempty" db:"proof_ref"`
	AmountCents     int64         `json:"amount_cents" db:"amount_cents"`
	VerifiedBy      *string       `json:"verified_by,omitempty" db:"verified_by"`
	VerifiedAt      *time.Time    `json:"verified_at,omitempty" db:"verified_at"`
	Notes           string        `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// ProofSubmission is the customer-supplied part of a Payment.
type ProofSubmission struct {
	Method          string `json:"method" validate:"required,max=50"`
	ReferenceNumber string `json:"reference_number" validate:"required,max=100"`
	ProofRef        string `json:"proof_ref" validate:"omitempty,max=500"`
	AmountCents     int64  `json:"amount_cents" validate:"required,gt=0"`
}
