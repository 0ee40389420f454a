package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/servicehub/backend/internal/config"
	"github.com/servicehub/backend/internal/models"
	"github.com/stretchr/testify/require"
)

const (
	platformAccountID = "acct-platform"
	userAccountID     = "acct-user"
	customerID        = "user-customer"
	providerID        = "user-provider"
	bookingID         = "booking-1"
)

var (
	accountCols = []string{"id", "owner_kind", "user_id", "available_cents", "pending_cents", "version", "created_at", "updated_at"}
	ledgerCols  = []string{"id", "from_account_id", "to_account_id", "amount_cents", "kind", "reference_id", "memo", "created_at"}
	bookingCols = []string{"id", "customer_id", "provider_id", "service_id", "status", "payment_status",
		"provider_confirmed_at", "total_price_cents", "auto_confirm", "version", "created_at", "updated_at"}
	paymentCols = []string{"id", "user_id", "booking_id", "payment_type", "status", "method", "reference_number",
		"proof_ref", "amount_cents", "verified_by", "verified_at", "notes", "created_at", "updated_at"}

	fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testWalletConfig() *config.WalletConfig {
	return &config.WalletConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Jitter:         0.5,
	}
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func platformRow(available, version int64) *sqlmock.Rows {
	return sqlmock.NewRows(accountCols).
		AddRow(platformAccountID, "PLATFORM", nil, available, int64(0), version, fixedTime, fixedTime)
}

func userRow(accountID, userID string, available, version int64) *sqlmock.Rows {
	return sqlmock.NewRows(accountCols).
		AddRow(accountID, "USER", userID, available, int64(0), version, fixedTime, fixedTime)
}

func ledgerRow(id, from, to string, amount int64, kind models.TransactionKind, reference string) *sqlmock.Rows {
	return sqlmock.NewRows(ledgerCols).
		AddRow(id, from, to, amount, string(kind), reference, "", fixedTime)
}

type bookingFixture struct {
	status        models.BookingStatus
	paymentStatus models.PaymentStatus
	confirmedAt   *time.Time
	autoConfirm   bool
	price         int64
	version       int64
}

func bookingRow(f bookingFixture) *sqlmock.Rows {
	var confirmedAt any
	if f.confirmedAt != nil {
		confirmedAt = *f.confirmedAt
	}
	return sqlmock.NewRows(bookingCols).
		AddRow(bookingID, customerID, providerID, "service-1", string(f.status), string(f.paymentStatus),
			confirmedAt, f.price, f.autoConfirm, f.version, fixedTime, fixedTime)
}

func paymentRow(id string, paymentType models.PaymentType, status models.PaymentStatus, method string, amount int64) *sqlmock.Rows {
	var booking any
	if paymentType == models.PaymentTypeBooking {
		booking = bookingID
	}
	return sqlmock.NewRows(paymentCols).
		AddRow(id, customerID, booking, string(paymentType), string(status), method, "BANK-REF-1",
			"", amount, nil, nil, "", fixedTime, fixedTime)
}

// expectUserTransfer queues the reads a wallet transfer performs before it
// writes: reference lookup (miss), the user's wallet and the platform account.
func expectUserTransfer(mock sqlmock.Sqlmock, reference string, userAvailable, userVersion, platformAvailable, platformVersion int64) {
	mock.ExpectQuery("FROM ledger_transactions WHERE reference_id").
		WithArgs(reference).
		WillReturnRows(sqlmock.NewRows(ledgerCols))
	mock.ExpectQuery("FROM accounts WHERE user_id").
		WithArgs(customerID).
		WillReturnRows(userRow(userAccountID, customerID, userAvailable, userVersion))
	mock.ExpectQuery("FROM accounts WHERE owner_kind").
		WithArgs("PLATFORM").
		WillReturnRows(platformRow(platformAvailable, platformVersion))
}

func expectBalanceUpdate(mock sqlmock.Sqlmock, accountID string, available, version int64, rows int64) {
	mock.ExpectExec("UPDATE accounts SET available_cents").
		WithArgs(available, int64(0), sqlmock.AnyArg(), accountID, version).
		WillReturnResult(sqlmock.NewResult(0, rows))
}

// expectStoredReference queues the reads of a reference that was already
// applied: the stored ledger row and the customer's wallet it is checked
// against.
func expectStoredReference(mock sqlmock.Sqlmock, reference string, stored *sqlmock.Rows) {
	mock.ExpectQuery("FROM ledger_transactions WHERE reference_id").
		WithArgs(reference).
		WillReturnRows(stored)
	mock.ExpectQuery("FROM accounts WHERE user_id").
		WithArgs(customerID).
		WillReturnRows(userRow(userAccountID, customerID, 2000, 2))
}
