package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/audit"
	"github.com/servicehub/backend/internal/booking"
	"github.com/servicehub/backend/internal/config"
	"github.com/servicehub/backend/internal/database"
	"github.com/servicehub/backend/internal/models"
)

// BookingService persists booking transitions decided by the booking
// package and settles their money side through the wallet.
type BookingService struct {
	db      *sql.DB
	store   *BookingStore
	wallet  *WalletService
	audit   audit.Logger
	retrier *conflictRetrier
}

func NewBookingService(db *sql.DB, cfg *config.WalletConfig, wallet *WalletService, auditLogger audit.Logger) *BookingService {
	return &BookingService{
		db:      db,
		store:   NewBookingStore(),
		wallet:  wallet,
		audit:   auditLogger,
		retrier: newConflictRetrier(cfg),
	}
}

// TransitionResult is a booking after an event, plus the refund it caused.
type TransitionResult struct {
	Booking *models.Booking        `json:"booking"`
	Refund  *models.TransactionRef `json:"refund,omitempty"`
	Changed bool                   `json:"changed"`
}

// CreateBooking reserves a service for the customer at the listing's
// current price and confirmation policy.
func (s *BookingService) CreateBooking(ctx context.Context, customerID, serviceID string) (*models.Booking, error) {
	var b *models.Booking
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		listing, err := s.store.GetServiceListing(ctx, tx, serviceID)
		if err != nil {
			return err
		}
		if listing.ProviderID == customerID {
			return fmt.Errorf("%w: providers cannot book their own service", models.ErrInvalidStateTransition)
		}

		b = &models.Booking{
			ID:              uuid.NewString(),
			CustomerID:      customerID,
			ProviderID:      listing.ProviderID,
			ServiceID:       listing.ID,
			Status:          models.BookingPending,
			PaymentStatus:   models.PaymentPending,
			TotalPriceCents: listing.PriceCents,
			AutoConfirm:     listing.AutoConfirm,
		}
		return s.store.CreateBooking(ctx, tx, b)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[BOOKING] Created booking %s for customer %s (service %s, %d cents)", b.ID, customerID, serviceID, b.TotalPriceCents)
	return b, nil
}

// Get returns the booking if the caller is a party to it or an admin.
func (s *BookingService) Get(ctx context.Context, caller models.Identity, bookingID string) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeParty(caller, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BookingService) History(ctx context.Context, caller models.Identity, bookingID string) ([]models.BookingEvent, error) {
	if _, err := s.Get(ctx, caller, bookingID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, s.db, bookingID)
}

func (s *BookingService) ProviderApprove(ctx context.Context, providerID, bookingID string) (*TransitionResult, error) {
	return s.apply(ctx, bookingID, booking.ProviderApproved, ownedBy(providerID))
}

func (s *BookingService) ProviderDecline(ctx context.Context, providerID, bookingID string) (*TransitionResult, error) {
	return s.apply(ctx, bookingID, booking.ProviderDeclined, ownedBy(providerID))
}

func (s *BookingService) ProviderCancel(ctx context.Context, providerID, bookingID string) (*TransitionResult, error) {
	return s.apply(ctx, bookingID, booking.ProviderCanceled, ownedBy(providerID))
}

// MarkCompleted closes a confirmed booking. The provider or an admin may do
// it.
func (s *BookingService) MarkCompleted(ctx context.Context, caller models.Identity, bookingID string) (*TransitionResult, error) {
	check := ownedBy(caller.ID)
	if caller.IsAdmin() {
		check = nil
	}
	return s.apply(ctx, bookingID, booking.MarkCompleted, check)
}

// Payout pays the provider the booking total once the booking is completed.
// Repeating it returns the first payout.
func (s *BookingService) Payout(ctx context.Context, bookingID string) (*models.TransactionRef, error) {
	b, err := s.store.GetBooking(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingCompleted || b.PaymentStatus != models.PaymentPaid {
		return nil, fmt.Errorf("%w: payout needs a completed, paid booking (got %s/%s)",
			models.ErrInvalidStateTransition, b.Status, b.PaymentStatus)
	}
	return s.wallet.ProcessPayout(ctx, b.ProviderID, b.TotalPriceCents, b.ID)
}

func (s *BookingService) apply(ctx context.Context, bookingID string, ev booking.Event, check func(*models.Booking) error) (*TransitionResult, error) {
	var result *TransitionResult
	err := inTx(ctx, s.db, s.audit, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		result, err = s.ApplyEventTx(ctx, tx, bookingID, ev, check)
		return err
	})
	if err != nil {
		log.Printf("[BOOKING] %s on booking %s failed: %v", ev, bookingID, err)
		return nil, err
	}
	return result, nil
}

// ApplyEventTx runs one event against the booking inside tx: decide, write
// the new state under the booking's version, append history and issue the
// refund the decision asks for. check, if set, runs against every fresh read
// of the booking before deciding.
func (s *BookingService) ApplyEventTx(ctx context.Context, tx *sql.Tx, bookingID string, ev booking.Event, check func(*models.Booking) error) (*TransitionResult, error) {
	var (
		current  *models.Booking
		from     models.BookingStatus
		decision booking.Decision
		changed  bool
	)

	err := s.retrier.do(ctx, "booking", bookingID, func(attempt int) error {
		b, err := s.store.GetBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(b); err != nil {
				return err
			}
		}

		state := booking.StateOf(b)
		d, err := booking.Decide(state, ev)
		if err != nil {
			return err
		}

		current, from, decision, changed = b, b.Status, d, d.Changed(state)
		if !changed {
			return nil
		}

		next := *b
		next.Status = d.Status
		next.PaymentStatus = d.PaymentStatus
		if d.SetProviderConfirm && next.ProviderConfirmedAt == nil {
			confirmedAt := s.store.now()
			next.ProviderConfirmedAt = &confirmedAt
		}
		if err := s.store.UpdateBooking(ctx, tx, &next, b.Version); err != nil {
			return err
		}
		current = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{Booking: current, Changed: changed}
	if !changed {
		log.Printf("[BOOKING] %s on booking %s changed nothing", ev, bookingID)
		return result, nil
	}

	if err := s.store.AppendEvent(ctx, tx, &models.BookingEvent{
		BookingID:  current.ID,
		Event:      string(ev),
		FromStatus: from,
		ToStatus:   current.Status,
	}); err != nil {
		return nil, err
	}

	if decision.IssueRefund {
		refund, err := s.wallet.ProcessRefundTx(ctx, tx, current.CustomerID, current.TotalPriceCents, current.ID,
			fmt.Sprintf("refund for booking %s (%s)", current.ID, ev))
		if err != nil {
			return nil, fmt.Errorf("refund booking %s: %w", current.ID, err)
		}
		result.Refund = refund
	}

	audit.For(ctx, s.audit).LogTransition(current.ID, string(ev), string(from), string(current.Status))
	log.Printf("[BOOKING] Booking %s: %s -> %s on %s (payment %s)", current.ID, from, current.Status, ev, current.PaymentStatus)
	return result, nil
}

func ownedBy(providerID string) func(*models.Booking) error {
	return func(b *models.Booking) error {
		if b.ProviderID != providerID {
			return fmt.Errorf("booking %s: %w", b.ID, models.ErrNotFound)
		}
		return nil
	}
}

func authorizeParty(caller models.Identity, b *models.Booking) error {
	if caller.IsAdmin() || caller.ID == b.CustomerID || caller.ID == b.ProviderID {
		return nil
	}
	return fmt.Errorf("booking %s: %w", b.ID, models.ErrNotFound)
}
