package services

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/servicehub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newBookingService(t *testing.T) (*BookingService, sqlmock.Sqlmock, *MockAuditLogger) {
	db, sqlMock := newMockDB(t)
	auditLog := &MockAuditLogger{}
	wallet := NewWalletService(db, testWalletConfig(), auditLog)
	return NewBookingService(db, testWalletConfig(), wallet, auditLog), sqlMock, auditLog
}

func expectGetBooking(mock sqlmock.Sqlmock, f bookingFixture) {
	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs(bookingID).
		WillReturnRows(bookingRow(f))
}

func expectBookingUpdate(mock sqlmock.Sqlmock, status models.BookingStatus, paymentStatus models.PaymentStatus, confirmedAt driver.Value, version, rows int64) {
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs(string(status), string(paymentStatus), confirmedAt, sqlmock.AnyArg(), bookingID, version).
		WillReturnResult(sqlmock.NewResult(0, rows))
}

func expectBookingEvent(mock sqlmock.Sqlmock, event string, from, to models.BookingStatus) {
	mock.ExpectQuery("INSERT INTO booking_events").
		WithArgs(bookingID, event, string(from), string(to), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
}

func TestBookingService_CreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("inherits price and confirmation policy", func(t *testing.T) {
		service, sqlMock, _ := newBookingService(t)

		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery("FROM services WHERE id").
			WithArgs("service-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "provider_id", "price_cents", "auto_confirm"}).
				AddRow("service-1", providerID, int64(4500), true))
		sqlMock.ExpectExec("INSERT INTO bookings").
			WithArgs(sqlmock.AnyArg(), customerID, providerID, "service-1", "pending", "pending", nil,
				int64(4500), true, int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		sqlMock.ExpectCommit()

		b, err := service.CreateBooking(ctx, customerID, "service-1")
		require.NoError(t, err)
		assert.Equal(t, int64(4500), b.TotalPriceCents)
		assert.True(t, b.AutoConfirm)
		assert.Equal(t, models.BookingPending, b.Status)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("unknown service", func(t *testing.T) {
		service, sqlMock, _ := newBookingService(t)

		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery("FROM services WHERE id").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id", "provider_id", "price_cents", "auto_confirm"}))
		sqlMock.ExpectRollback()

		_, err := service.CreateBooking(ctx, customerID, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

func TestBookingService_ProviderApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("before payment only records the confirmation", func(t *testing.T) {
		service, sqlMock, auditLog := newBookingService(t)

		sqlMock.ExpectBegin()
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingPending, paymentStatus: models.PaymentPending, price: 2000, version: 1})
		expectBookingUpdate(sqlMock, models.BookingPending, models.PaymentPending, sqlmock.AnyArg(), 1, 1)
		expectBookingEvent(sqlMock, "ProviderApproved", models.BookingPending, models.BookingPending)
		sqlMock.ExpectCommit()

		auditLog.On("LogTransition", bookingID, "ProviderApproved", "pending", "pending").Return()

		result, err := service.ProviderApprove(ctx, providerID, bookingID)
		require.NoError(t, err)
		assert.True(t, result.Changed)
		assert.Equal(t, models.BookingPending, result.Booking.Status)
		assert.NotNil(t, result.Booking.ProviderConfirmedAt)
		assert.Equal(t, int64(2), result.Booking.Version)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("after payment confirms the booking", func(t *testing.T) {
		service, sqlMock, auditLog := newBookingService(t)

		sqlMock.ExpectBegin()
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingPending, paymentStatus: models.PaymentPaid, price: 2000, version: 2})
		expectBookingUpdate(sqlMock, models.BookingConfirmed, models.PaymentPaid, sqlmock.AnyArg(), 2, 1)
		expectBookingEvent(sqlMock, "ProviderApproved", models.BookingPending, models.BookingConfirmed)
		sqlMock.ExpectCommit()

		auditLog.On("LogTransition", bookingID, "ProviderApproved", "pending", "confirmed").Return()

		result, err := service.ProviderApprove(ctx, providerID, bookingID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingConfirmed, result.Booking.Status)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("approving twice changes nothing", func(t *testing.T) {
		service, sqlMock, _ := newBookingService(t)
		confirmedAt := fixedTime

		sqlMock.ExpectBegin()
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingPending, paymentStatus: models.PaymentPending,
			confirmedAt: &confirmedAt, price: 2000, version: 2})
		sqlMock.ExpectCommit()

		result, err := service.ProviderApprove(ctx, providerID, bookingID)
		require.NoError(t, err)
		assert.False(t, result.Changed)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("other providers cannot see the booking", func(t *testing.T) {
		service, sqlMock, _ := newBookingService(t)

		sqlMock.ExpectBegin()
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingPending, paymentStatus: models.PaymentPending, price: 2000, version: 1})
		sqlMock.ExpectRollback()

		_, err := service.ProviderApprove(ctx, "someone-else", bookingID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("retries when the booking moved underneath", func(t *testing.T) {
		service, sqlMock, auditLog := newBookingService(t)

		// A payment verification landed between read and write.
		sqlMock.ExpectBegin()
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingPending, paymentStatus: models.PaymentPending, price: 2000, version: 1})
		expectBookingUpdate(sqlMock, models.BookingPending, models.PaymentPending, sqlmock.AnyArg(), 1, 0)
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingPending, paymentStatus: models.PaymentPaid, price: 2000, version: 2})
		expectBookingUpdate(sqlMock, models.BookingConfirmed, models.PaymentPaid, sqlmock.AnyArg(), 2, 1)
		expectBookingEvent(sqlMock, "ProviderApproved", models.BookingPending, models.BookingConfirmed)
		sqlMock.ExpectCommit()

		auditLog.On("LogTransition", bookingID, "ProviderApproved", "pending", "confirmed").Return()

		result, err := service.ProviderApprove(ctx, providerID, bookingID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingConfirmed, result.Booking.Status)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

func TestBookingService_ProviderDecline(t *testing.T) {
	ctx := context.Background()
	refundReference := "booking:" + bookingID + ":refund"

	t.Run("declining a paid confirmed booking refunds the customer", func(t *testing.T) {
		service, sqlMock, auditLog := newBookingService(t)
		confirmedAt := fixedTime

		sqlMock.ExpectBegin()
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingConfirmed, paymentStatus: models.PaymentPaid,
			confirmedAt: &confirmedAt, price: 2000, version: 3})
		expectBookingUpdate(sqlMock, models.BookingCanceled, models.PaymentPaid, sqlmock.AnyArg(), 3, 1)
		expectBookingEvent(sqlMock, "ProviderDeclined", models.BookingConfirmed, models.BookingCanceled)
		expectUserTransfer(sqlMock, refundReference, 0, 1, 2000, 5)
		sqlMock.ExpectExec("INSERT INTO ledger_transactions").
			WithArgs(sqlmock.AnyArg(), platformAccountID, userAccountID, int64(2000), "REFUND", refundReference, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectBalanceUpdate(sqlMock, platformAccountID, 0, 5, 1)
		expectBalanceUpdate(sqlMock, userAccountID, 2000, 1, 1)
		sqlMock.ExpectCommit()

		auditLog.On("LogTransfer", mock.Anything, platformAccountID, userAccountID, int64(2000), "REFUND").Return()
		auditLog.On("LogTransition", bookingID, "ProviderDeclined", "confirmed", "canceled").Return()

		result, err := service.ProviderDecline(ctx, providerID, bookingID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingCanceled, result.Booking.Status)
		require.NotNil(t, result.Refund)
		assert.Equal(t, int64(2000), result.Refund.AmountCents)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
		auditLog.AssertExpectations(t)
	})

	t.Run("declining again is rejected without a second refund", func(t *testing.T) {
		service, sqlMock, _ := newBookingService(t)

		sqlMock.ExpectBegin()
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingCanceled, paymentStatus: models.PaymentPaid, price: 2000, version: 4})
		sqlMock.ExpectRollback()

		_, err := service.ProviderDecline(ctx, providerID, bookingID)
		assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("declining an unpaid booking cancels without refund", func(t *testing.T) {
		service, sqlMock, auditLog := newBookingService(t)

		sqlMock.ExpectBegin()
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingPending, paymentStatus: models.PaymentPending, price: 2000, version: 1})
		expectBookingUpdate(sqlMock, models.BookingCanceled, models.PaymentPending, nil, 1, 1)
		expectBookingEvent(sqlMock, "ProviderDeclined", models.BookingPending, models.BookingCanceled)
		sqlMock.ExpectCommit()

		auditLog.On("LogTransition", bookingID, "ProviderDeclined", "pending", "canceled").Return()

		result, err := service.ProviderDecline(ctx, providerID, bookingID)
		require.NoError(t, err)
		assert.Nil(t, result.Refund)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

func TestBookingService_MarkCompleted(t *testing.T) {
	ctx := context.Background()
	confirmedAt := fixedTime

	t.Run("admin completes a confirmed booking", func(t *testing.T) {
		service, sqlMock, auditLog := newBookingService(t)

		sqlMock.ExpectBegin()
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingConfirmed, paymentStatus: models.PaymentPaid,
			confirmedAt: &confirmedAt, price: 2000, version: 3})
		expectBookingUpdate(sqlMock, models.BookingCompleted, models.PaymentPaid, sqlmock.AnyArg(), 3, 1)
		expectBookingEvent(sqlMock, "MarkCompleted", models.BookingConfirmed, models.BookingCompleted)
		sqlMock.ExpectCommit()

		auditLog.On("LogTransition", bookingID, "MarkCompleted", "confirmed", "completed").Return()

		result, err := service.MarkCompleted(ctx, models.Identity{ID: "admin-1", Role: models.RoleAdmin}, bookingID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingCompleted, result.Booking.Status)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("pending booking cannot complete", func(t *testing.T) {
		service, sqlMock, _ := newBookingService(t)

		sqlMock.ExpectBegin()
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingPending, paymentStatus: models.PaymentPaid, price: 2000, version: 2})
		sqlMock.ExpectRollback()

		_, err := service.MarkCompleted(ctx, models.Identity{ID: providerID, Role: models.RoleProvider}, bookingID)
		assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

func TestBookingService_Payout(t *testing.T) {
	service, sqlMock, _ := newBookingService(t)

	expectGetBooking(sqlMock, bookingFixture{status: models.BookingConfirmed, paymentStatus: models.PaymentPaid, price: 2000, version: 3})

	_, err := service.Payout(context.Background(), bookingID)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestBookingService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("party can read", func(t *testing.T) {
		service, sqlMock, _ := newBookingService(t)
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingPending, paymentStatus: models.PaymentPending, price: 2000, version: 1})

		b, err := service.Get(ctx, models.Identity{ID: customerID, Role: models.RoleCustomer}, bookingID)
		require.NoError(t, err)
		assert.Equal(t, customerID, b.CustomerID)
	})

	t.Run("stranger cannot", func(t *testing.T) {
		service, sqlMock, _ := newBookingService(t)
		expectGetBooking(sqlMock, bookingFixture{status: models.BookingPending, paymentStatus: models.PaymentPending, price: 2000, version: 1})

		_, err := service.Get(ctx, models.Identity{ID: "stranger", Role: models.RoleCustomer}, bookingID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}
