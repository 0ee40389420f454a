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

const bookingColumns = `id, customer_id, provider_id, service_id, status, payment_status, provider_confirmed_at, total_price_cents, auto_confirm, version, created_at, updated_at`

// BookingStore is the SQL layer for services, bookings and booking history.
type BookingStore struct {
	now func() time.Time
}

func NewBookingStore() *BookingStore {
	return &BookingStore{now: time.Now}
}

func (s *BookingStore) GetServiceListing(ctx context.Context, q database.Queryer, serviceID string) (*models.ServiceListing, error) {
	var listing models.ServiceListing
	err := q.QueryRowContext(ctx, `
		SELECT id, provider_id, price_cents, auto_confirm
		FROM services
		WHERE id = $1`, serviceID).Scan(&listing.ID, &listing.ProviderID, &listing.PriceCents, &listing.AutoConfirm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %s: %w", serviceID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (s *BookingStore) GetBooking(ctx context.Context, q database.Queryer, bookingID string) (*models.Booking, error) {
	var b models.Booking
	err := q.QueryRowContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1`, bookingID).Scan(&b.ID, &b.CustomerID, &b.ProviderID, &b.ServiceID, &b.Status,
		&b.PaymentStatus, &b.ProviderConfirmedAt, &b.TotalPriceCents, &b.AutoConfirm, &b.Version,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", bookingID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BookingStore) CreateBooking(ctx context.Context, q database.Queryer, b *models.Booking) error {
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.Version == 0 {
		b.Version = 1
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.CustomerID, b.ProviderID, b.ServiceID, b.Status, b.PaymentStatus,
		b.ProviderConfirmedAt, b.TotalPriceCents, b.AutoConfirm, b.Version, b.CreatedAt, b.UpdatedAt)
	return err
}

// UpdateBooking persists the mutable fields of b if the stored row is still
// at expectedVersion.
func (s *BookingStore) UpdateBooking(ctx context.Context, q database.Queryer, b *models.Booking, expectedVersion int64) error {
	b.UpdatedAt = s.now()
	result, err := q.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1, payment_status = $2, provider_confirmed_at = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6`,
		b.Status, b.PaymentStatus, b.ProviderConfirmedAt, b.UpdatedAt, b.ID, expectedVersion)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: booking %s at version %d", errVersionMismatch, b.ID, expectedVersion)
	}

	b.Version = expectedVersion + 1
	return nil
}

func (s *BookingStore) AppendEvent(ctx context.Context, q database.Queryer, ev *models.BookingEvent) error {
	ev.CreatedAt = s.now()
	return q.QueryRowContext(ctx, `
		INSERT INTO booking_events (booking_id, event, from_status, to_status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		ev.BookingID, ev.Event, ev.FromStatus, ev.ToStatus, ev.CreatedAt).Scan(&ev.ID)
}

func (s *BookingStore) ListEvents(ctx context.Context, q database.Queryer, bookingID string) ([]models.BookingEvent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, booking_id, event, from_status, to_status, created_at
		FROM booking_events
		WHERE booking_id = $1
		ORDER BY id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.BookingEvent{}
	for rows.Next() {
		var ev models.BookingEvent
		if err := rows.Scan(&ev.ID, &ev.BookingID, &ev.Event, &ev.FromStatus, &ev.ToStatus, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
