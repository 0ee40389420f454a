package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/audit"
	"github.com/servicehub/backend/internal/booking"
	"github.com/servicehub/backend/internal/database"
	"github.com/servicehub/backend/internal/models"
)

// PaymentVerificationService records manual payment proofs and applies the
// admin's verdict to the booking or wallet they pay for.
type PaymentVerificationService struct {
	db       *sql.DB
	payments *PaymentStore
	bookings *BookingService
	wallet   *WalletService
	audit    audit.Logger
}

func NewPaymentVerificationService(db *sql.DB, bookings *BookingService, wallet *WalletService, auditLogger audit.Logger) *PaymentVerificationService {
	return &PaymentVerificationService{
		db:       db,
		payments: NewPaymentStore(),
		bookings: bookings,
		wallet:   wallet,
		audit:    auditLogger,
	}
}

// VerificationResult is the settled payment and what it caused.
type VerificationResult struct {
	Payment  *models.Payment        `json:"payment"`
	Booking  *models.Booking        `json:"booking,omitempty"`
	Reload   *models.TransactionRef `json:"reload,omitempty"`
	Replayed bool                   `json:"replayed"`
}

// SubmitProof records a pending payment. With a booking ID it is the first
// payment attempt for that booking; without one it is a wallet reload
// request.
func (s *PaymentVerificationService) SubmitProof(ctx context.Context, userID string, bookingID *string, proof models.ProofSubmission) (*models.Payment, error) {
	if proof.AmountCents <= 0 {
		return nil, models.ErrInvalidAmount
	}

	payment := &models.Payment{
		ID:              uuid.NewString(),
		UserID:          userID,
		Type:            models.PaymentTypeWalletReload,
		Status:          models.PaymentPending,
		Method:          proof.Method,
		ReferenceNumber: proof.ReferenceNumber,
		ProofRef:        proof.ProofRef,
		AmountCents:     proof.AmountCents,
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if bookingID == nil {
			return s.payments.CreatePayment(ctx, tx, payment)
		}

		b, err := s.customerBooking(ctx, tx, userID, *bookingID)
		if err != nil {
			return err
		}
		_, err = s.payments.LatestForBooking(ctx, tx, b.ID)
		if err == nil {
			return fmt.Errorf("%w: booking %s already has a payment, resubmit instead", models.ErrInvalidStateTransition, b.ID)
		}
		if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		payment.Type = models.PaymentTypeBooking
		payment.BookingID = &b.ID
		return s.payments.CreatePayment(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[PAYMENT] Proof %s submitted by %s (%s, %d cents)", payment.ID, userID, payment.Type, payment.AmountCents)
	return payment, nil
}

// Verify settles a pending payment. The payment flip and its consequence
// (booking transition or wallet reload) commit together. Repeating the same
// verdict returns the stored payment; the opposite verdict is rejected.
func (s *PaymentVerificationService) Verify(ctx context.Context, paymentID string, action models.VerifyAction, adminID, notes string) (*VerificationResult, error) {
	target, ev, err := verdict(action)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{}
	err = inTx(ctx, s.db, s.audit, func(ctx context.Context, tx *sql.Tx) error {
		*result = VerificationResult{}
		p, err := s.payments.GetPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		result.Payment = p

		if p.Status == target {
			result.Replayed = true
			return nil
		}
		if p.Status != models.PaymentPending {
			return fmt.Errorf("%w: payment %s is already %s", models.ErrInvalidStateTransition, p.ID, p.Status)
		}

		if err := s.payments.Settle(ctx, tx, p, target, adminID, notes); err != nil {
			if errors.Is(err, errPaymentSettled) {
				return fmt.Errorf("%w: %v", models.ErrConcurrencyConflict, err)
			}
			return err
		}

		switch p.Type {
		case models.PaymentTypeBooking:
			if p.BookingID == nil {
				return fmt.Errorf("payment %s has no booking", p.ID)
			}
			transition, err := s.bookings.ApplyEventTx(ctx, tx, *p.BookingID, ev, nil)
			if err != nil {
				return err
			}
			result.Booking = transition.Booking
		case models.PaymentTypeWalletReload:
			if action != models.ActionApprove {
				return nil
			}
			ref, err := s.wallet.ReloadTx(ctx, tx, p.UserID, p.AmountCents,
				"wallet reload "+p.ReferenceNumber, reloadReference(p.ID))
			if err != nil {
				return err
			}
			result.Reload = ref
		}
		return nil
	})
	if err != nil {
		s.audit.LogError(paymentID, adminID, err)
		return nil, err
	}

	if result.Replayed {
		log.Printf("[PAYMENT] Payment %s already %s, nothing to do", paymentID, target)
		return result, nil
	}
	s.audit.LogVerification(paymentID, adminID, string(action))
	log.Printf("[PAYMENT] Payment %s %s by %s", paymentID, target, adminID)
	return result, nil
}

// ResubmitProof opens a new payment attempt after the previous one was
// rejected and puts the booking back to awaiting verification.
func (s *PaymentVerificationService) ResubmitProof(ctx context.Context, userID, bookingID string, proof models.ProofSubmission) (*models.Payment, error) {
	if proof.AmountCents <= 0 {
		return nil, models.ErrInvalidAmount
	}

	var payment *models.Payment
	err := inTx(ctx, s.db, s.audit, func(ctx context.Context, tx *sql.Tx) error {
		b, err := s.customerBooking(ctx, tx, userID, bookingID)
		if err != nil {
			return err
		}

		latest, err := s.payments.LatestForBooking(ctx, tx, b.ID)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: booking %s has no payment to resubmit", models.ErrInvalidStateTransition, b.ID)
		}
		if err != nil {
			return err
		}
		if latest.Status != models.PaymentFailed {
			return fmt.Errorf("%w: latest payment %s is %s", models.ErrInvalidStateTransition, latest.ID, latest.Status)
		}

		payment = &models.Payment{
			ID:              uuid.NewString(),
			UserID:          userID,
			BookingID:       &b.ID,
			Type:            models.PaymentTypeBooking,
			Status:          models.PaymentPending,
			Method:          proof.Method,
			ReferenceNumber: proof.ReferenceNumber,
			ProofRef:        proof.ProofRef,
			AmountCents:     proof.AmountCents,
		}
		if err := s.payments.CreatePayment(ctx, tx, payment); err != nil {
			return err
		}

		_, err = s.bookings.ApplyEventTx(ctx, tx, b.ID, booking.PaymentResubmitted, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[PAYMENT] Proof %s resubmitted for booking %s", payment.ID, bookingID)
	return payment, nil
}

// PayWithWallet pays the booking from the customer's wallet balance and
// marks it paid in the same transaction. Paying again, or losing the race to
// a concurrent call, returns the wallet payment already recorded.
func (s *PaymentVerificationService) PayWithWallet(ctx context.Context, userID, bookingID string) (*VerificationResult, error) {
	result := &VerificationResult{}
	err := inTx(ctx, s.db, s.audit, func(ctx context.Context, tx *sql.Tx) error {
		*result = VerificationResult{}
		b, err := s.customerBooking(ctx, tx, userID, bookingID)
		if err != nil {
			return err
		}

		latest, err := s.payments.LatestForBooking(ctx, tx, b.ID)
		switch {
		case err == nil && latest.Method == models.MethodWallet && latest.Status == models.PaymentPaid:
			result.Payment, result.Booking, result.Replayed = latest, b, true
			return nil
		case err == nil && latest.Status != models.PaymentFailed:
			return fmt.Errorf("%w: booking %s already has a %s payment", models.ErrInvalidStateTransition, b.ID, latest.Status)
		case err != nil && !errors.Is(err, models.ErrNotFound):
			return err
		}

		ref, err := s.wallet.PayFromWalletTx(ctx, tx, userID, b.TotalPriceCents,
			"payment for booking "+b.ID, paymentReference(b.ID))
		if err != nil {
			return err
		}

		now := s.payments.now()
		payment := &models.Payment{
			ID:              uuid.NewString(),
			UserID:          userID,
			BookingID:       &b.ID,
			Type:            models.PaymentTypeBooking,
			Status:          models.PaymentPaid,
			Method:          models.MethodWallet,
			ReferenceNumber: ref.TransactionID,
			AmountCents:     b.TotalPriceCents,
			VerifiedAt:      &now,
		}
		if err := s.payments.CreatePayment(ctx, tx, payment); err != nil {
			return err
		}

		if b.PaymentStatus == models.PaymentFailed {
			if _, err := s.bookings.ApplyEventTx(ctx, tx, b.ID, booking.PaymentResubmitted, nil); err != nil {
				return err
			}
		}
		transition, err := s.bookings.ApplyEventTx(ctx, tx, b.ID, booking.PaymentVerified, nil)
		if err != nil {
			return err
		}

		result.Payment, result.Booking = payment, transition.Booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		log.Printf("[PAYMENT] Booking %s already paid from wallet as %s", bookingID, result.Payment.ID)
		return result, nil
	}
	log.Printf("[PAYMENT] Booking %s paid from wallet by %s", bookingID, userID)
	return result, nil
}

func (s *PaymentVerificationService) customerBooking(ctx context.Context, tx *sql.Tx, userID, bookingID string) (*models.Booking, error) {
	b, err := s.bookings.store.GetBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != userID {
		return nil, fmt.Errorf("booking %s: %w", bookingID, models.ErrNotFound)
	}
	if b.Status.Terminal() {
		return nil, fmt.Errorf("%w: booking %s is %s", models.ErrInvalidStateTransition, b.ID, b.Status)
	}
	return b, nil
}

func reloadReference(paymentID string) string { return "payment:" + paymentID + ":reload" }

func verdict(action models.VerifyAction) (models.PaymentStatus, booking.Event, error) {
	switch action {
	case models.ActionApprove:
		return models.PaymentPaid, booking.PaymentVerified, nil
	case models.ActionReject:
		return models.PaymentFailed, booking.PaymentRejected, nil
	}
	return "", "", fmt.Errorf("%w: unknown action %q", models.ErrInvalidStateTransition, action)
}
