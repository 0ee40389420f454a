package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/servicehub/backend/internal/database"
	"github.com/servicehub/backend/internal/models"
)

const paymentColumns = `id, user_id, booking_id, payment_type, status, method, reference_number, proof_ref, amount_cents, verified_by, verified_at, notes, created_at, updated_at`

// openBookingPaymentIndex allows one pending or paid payment per booking.
// Attempts are sequential: a new one is only allowed once the last failed.
const openBookingPaymentIndex = "payments_booking_open"

// errPaymentSettled means the payment left pending between read and update.
var errPaymentSettled = errors.New("payment already settled")

type PaymentStore struct {
	now func() time.Time
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{now: time.Now}
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.BookingID, &p.Type, &p.Status, &p.Method, &p.ReferenceNumber,
		&p.ProofRef, &p.AmountCents, &p.VerifiedBy, &p.VerifiedAt, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PaymentStore) CreatePayment(ctx context.Context, q database.Queryer, p *models.Payment) error {
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.UserID, p.BookingID, p.Type, p.Status, p.Method, p.ReferenceNumber, p.ProofRef,
		p.AmountCents, p.VerifiedBy, p.VerifiedAt, p.Notes, p.CreatedAt, p.UpdatedAt)
	if database.UniqueConstraint(err) == openBookingPaymentIndex {
		return fmt.Errorf("%w: booking %s already has an open payment", models.ErrInvalidStateTransition, *p.BookingID)
	}
	return err
}

func (s *PaymentStore) GetPayment(ctx context.Context, q database.Queryer, paymentID string) (*models.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1`, paymentID))
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", paymentID, err)
	}
	return p, nil
}

// LatestForBooking returns the most recent payment attempt for the booking.
func (s *PaymentStore) LatestForBooking(ctx context.Context, q database.Queryer, bookingID string) (*models.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, bookingID))
	if err != nil {
		return nil, fmt.Errorf("payment for booking %s: %w", bookingID, err)
	}
	return p, nil
}

// Settle moves a pending payment to status. It fails with errPaymentSettled
// if someone else settled it first.
func (s *PaymentStore) Settle(ctx context.Context, q database.Queryer, p *models.Payment, status models.PaymentStatus, adminID, notes string) error {
	now := s.now()
	result, err := q.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, verified_by = $2, verified_at = $3, notes = $4, updated_at = $5
		WHERE id = $6 AND status = $7`,
		status, adminID, now, notes, now, p.ID, models.PaymentPending)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: payment %s", errPaymentSettled, p.ID)
	}

	p.Status, p.VerifiedBy, p.VerifiedAt, p.Notes, p.UpdatedAt = status, &adminID, &now, notes, now
	return nil
}
