package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/audit"
	"github.com/servicehub/backend/internal/config"
	"github.com/servicehub/backend/internal/database"
	"github.com/servicehub/backend/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/servicehub/backend/internal/services"

// Reference keys for booking-scoped ledger operations. A booking can have at
// most one of each.
func refundReference(bookingID string) string  { return "booking:" + bookingID + ":refund" }
func paymentReference(bookingID string) string { return "booking:" + bookingID + ":payment" }
func payoutReference(bookingID string) string  { return "booking:" + bookingID + ":payout" }

type WalletService struct {
	db      *sql.DB
	store   *LedgerStore
	audit   audit.Logger
	tracer  trace.Tracer
	retrier *conflictRetrier
}

func NewWalletService(db *sql.DB, cfg *config.WalletConfig, auditLogger audit.Logger) *WalletService {
	return &WalletService{
		db:      db,
		store:   NewLedgerStore(),
		audit:   auditLogger,
		tracer:  otel.Tracer(instrumentationName),
		retrier: newConflictRetrier(cfg),
	}
}

type transfer struct {
	from      *models.Account
	to        *models.Account
	amount    int64
	kind      models.TransactionKind
	reference string
	memo      string
}

// GetBalance is read-only and runs outside any transaction.
func (s *WalletService) GetBalance(ctx context.Context, accountID string) (*models.Balance, error) {
	account, err := s.store.GetAccount(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	return &models.Balance{AvailableCents: account.AvailableCents, PendingCents: account.PendingCents}, nil
}

func (s *WalletService) GetUserBalance(ctx context.Context, userID string) (*models.Balance, error) {
	account, err := s.store.GetUserAccount(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return &models.Balance{AvailableCents: account.AvailableCents, PendingCents: account.PendingCents}, nil
}

// OpenAccount creates the user's wallet at onboarding. Opening an existing
// wallet returns it unchanged.
func (s *WalletService) OpenAccount(ctx context.Context, userID string) (*models.Account, error) {
	account := &models.Account{
		ID:        uuid.NewString(),
		OwnerKind: models.OwnerUser,
		UserID:    &userID,
	}
	err := s.store.CreateAccount(ctx, s.db, account)
	if errors.Is(err, models.ErrDuplicateOperation) {
		return s.store.GetUserAccount(ctx, s.db, userID)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[WALLET] Opened account %s for user %s", account.ID, userID)
	return account, nil
}

// EnsurePlatformAccount creates the single PLATFORM account if missing.
func (s *WalletService) EnsurePlatformAccount(ctx context.Context) (*models.Account, error) {
	account, err := s.store.GetPlatformAccount(ctx, s.db)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	account = &models.Account{ID: uuid.NewString(), OwnerKind: models.OwnerPlatform}
	err = s.store.CreateAccount(ctx, s.db, account)
	if errors.Is(err, models.ErrDuplicateOperation) {
		return s.store.GetPlatformAccount(ctx, s.db)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[WALLET] Created platform account %s", account.ID)
	return account, nil
}

// Reload credits the user's wallet from the platform.
func (s *WalletService) Reload(ctx context.Context, userID string, amount int64, memo, referenceID string) (*models.TransactionRef, error) {
	return s.run(ctx, "wallet.reload", referenceID, func(ctx context.Context, tx *sql.Tx) (*models.TransactionRef, error) {
		return s.ReloadTx(ctx, tx, userID, amount, memo, referenceID)
	})
}

func (s *WalletService) ReloadTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, memo, referenceID string) (*models.TransactionRef, error) {
	return s.userTransferTx(ctx, tx, userID, amount, models.KindReload, referenceID, memo, false)
}

// PayFromWallet debits the user's wallet in favour of the platform.
func (s *WalletService) PayFromWallet(ctx context.Context, userID string, amount int64, memo, referenceID string) (*models.TransactionRef, error) {
	return s.run(ctx, "wallet.pay", referenceID, func(ctx context.Context, tx *sql.Tx) (*models.TransactionRef, error) {
		return s.PayFromWalletTx(ctx, tx, userID, amount, memo, referenceID)
	})
}

func (s *WalletService) PayFromWalletTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, memo, referenceID string) (*models.TransactionRef, error) {
	return s.userTransferTx(ctx, tx, userID, amount, models.KindPayment, referenceID, memo, true)
}

// ProcessRefund returns amount to the user for bookingID. Only the first
// call per booking moves funds.
func (s *WalletService) ProcessRefund(ctx context.Context, userID string, amount int64, bookingID, reason string) (*models.TransactionRef, error) {
	reference := refundReference(bookingID)
	return s.run(ctx, "wallet.refund", reference, func(ctx context.Context, tx *sql.Tx) (*models.TransactionRef, error) {
		return s.ProcessRefundTx(ctx, tx, userID, amount, bookingID, reason)
	})
}

func (s *WalletService) ProcessRefundTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, bookingID, reason string) (*models.TransactionRef, error) {
	return s.userTransferTx(ctx, tx, userID, amount, models.KindRefund, refundReference(bookingID), reason, false)
}

// ProcessPayout credits a provider's wallet for a completed booking.
func (s *WalletService) ProcessPayout(ctx context.Context, providerID string, amount int64, bookingID string) (*models.TransactionRef, error) {
	reference := payoutReference(bookingID)
	return s.run(ctx, "wallet.payout", reference, func(ctx context.Context, tx *sql.Tx) (*models.TransactionRef, error) {
		return s.userTransferTx(ctx, tx, providerID, amount, models.KindPayout, reference, "payout for booking "+bookingID, false)
	})
}

func (s *WalletService) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.LedgerTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListTransactions(ctx, s.db, accountID, limit)
}

func (s *WalletService) ListUserTransactions(ctx context.Context, userID string, limit int) ([]models.LedgerTransaction, error) {
	account, err := s.store.GetUserAccount(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return s.ListTransactions(ctx, account.ID, limit)
}

// Reconcile checks that the stored balance equals the net of the ledger rows
// referencing the account.
func (s *WalletService) Reconcile(ctx context.Context, accountID string) (*models.ReconcileReport, error) {
	report := &models.ReconcileReport{AccountID: accountID}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		account, err := s.store.GetAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		net, err := s.store.LedgerNet(ctx, tx, accountID)
		if err != nil {
			return err
		}
		report.AvailableCents = account.AvailableCents
		report.LedgerNetCents = net
		report.Balanced = account.AvailableCents == net
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !report.Balanced {
		log.Printf("[WALLET] Account %s out of balance: stored=%d ledger=%d", accountID, report.AvailableCents, report.LedgerNetCents)
	}
	return report, nil
}

// run executes fn in its own transaction. When a concurrent request with the
// same reference commits first, the insert fails on the unique key and fn
// runs again to pick up the stored result.
func (s *WalletService) run(ctx context.Context, op, reference string, fn func(context.Context, *sql.Tx) (*models.TransactionRef, error)) (*models.TransactionRef, error) {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("ledger.reference", reference)))
	defer span.End()

	var ref *models.TransactionRef
	err := inTx(ctx, s.db, s.audit, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		ref, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("ledger.replayed", ref.Replayed))
	return ref, nil
}

// userTransferTx moves amount between the user's wallet and the platform
// account. debit selects the direction: true takes money from the user.
func (s *WalletService) userTransferTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, kind models.TransactionKind, reference, memo string, debit bool) (*models.TransactionRef, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}

	prior, err := s.store.FindTransactionByReference(ctx, tx, reference)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	user, err := s.store.GetUserAccount(ctx, tx, userID)
	if err != nil && (prior == nil || !errors.Is(err, models.ErrNotFound)) {
		return nil, err
	}
	if prior != nil {
		return s.replay(prior, user, amount, kind, debit)
	}

	platform, err := s.store.GetPlatformAccount(ctx, tx)
	if err != nil {
		return nil, err
	}

	t := transfer{from: platform, to: user, amount: amount, kind: kind, reference: reference, memo: memo}
	if debit {
		t.from, t.to = user, platform
	}
	return s.transferTx(ctx, tx, t)
}

// replay returns the stored transaction for a reference that was already
// applied. The stored row must describe the same operation: same kind, same
// amount and the same user on the same side.
func (s *WalletService) replay(prior *models.LedgerTransaction, user *models.Account, amount int64, kind models.TransactionKind, debit bool) (*models.TransactionRef, error) {
	userSide := prior.ToAccountID
	if debit {
		userSide = prior.FromAccountID
	}
	if prior.Kind != kind || prior.AmountCents != amount || user == nil || user.ID != userSide {
		log.Printf("[WALLET] Reference %s reused for a different operation (stored %s %d)", prior.ReferenceID, prior.Kind, prior.AmountCents)
		return nil, fmt.Errorf("%w: reference %s is %s of %d cents", models.ErrReferenceConflict, prior.ReferenceID, prior.Kind, prior.AmountCents)
	}
	log.Printf("[WALLET] Reference %s already applied as %s, returning prior result", prior.ReferenceID, prior.ID)
	return prior.Ref(true), nil
}

func (s *WalletService) transferTx(ctx context.Context, tx *sql.Tx, t transfer) (*models.TransactionRef, error) {
	entry := &models.LedgerTransaction{
		ID:            uuid.NewString(),
		FromAccountID: t.from.ID,
		ToAccountID:   t.to.ID,
		AmountCents:   t.amount,
		Kind:          t.kind,
		ReferenceID:   t.reference,
		Memo:          t.memo,
	}
	if err := s.store.InsertTransaction(ctx, tx, entry); err != nil {
		return nil, err
	}

	// Write accounts in consistent order to prevent deadlocks
	legs := []struct {
		account *models.Account
		delta   int64
	}{
		{t.from, -t.amount},
		{t.to, t.amount},
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].account.ID < legs[j].account.ID })

	for _, leg := range legs {
		if err := s.applyDelta(ctx, tx, leg.account, leg.delta); err != nil {
			s.audit.LogError(t.reference, leg.account.ID, err)
			return nil, err
		}
	}

	audit.For(ctx, s.audit).LogTransfer(entry.ID, t.from.ID, t.to.ID, t.amount, string(t.kind))
	return entry.Ref(false), nil
}

// applyDelta adds delta to the account's available balance with a
// compare-and-swap on its version. A mismatch re-reads the row and retries
// with jittered backoff.
func (s *WalletService) applyDelta(ctx context.Context, tx *sql.Tx, snapshot *models.Account, delta int64) error {
	account := snapshot
	return s.retrier.do(ctx, "account", account.ID, func(attempt int) error {
		if attempt > 1 {
			fresh, err := s.store.GetAccount(ctx, tx, account.ID)
			if err != nil {
				return err
			}
			account = fresh
		}

		next := account.AvailableCents + delta
		if next < 0 && !account.CanOverdraw() {
			return fmt.Errorf("%w: account %s has %d, needs %d",
				models.ErrInsufficientFunds, account.ID, account.AvailableCents, -delta)
		}

		return s.store.CompareAndSwapBalance(ctx, tx, account.ID, next, account.PendingCents, account.Version)
	})
}
