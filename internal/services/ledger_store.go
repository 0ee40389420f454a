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

const accountColumns = `id, owner_kind, user_id, available_cents, pending_cents, version, created_at, updated_at`

const ledgerColumns = `id, from_account_id, to_account_id, amount_cents, kind, reference_id, memo, created_at`

// LedgerStore is the SQL layer for accounts and ledger transactions. Every
// method takes the Queryer to run on, so callers decide which transaction a
// read or write belongs to.
type LedgerStore struct {
	now func() time.Time
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	err := row.Scan(&account.ID, &account.OwnerKind, &account.UserID, &account.AvailableCents,
		&account.PendingCents, &account.Version, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *LedgerStore) GetAccount(ctx context.Context, q database.Queryer, accountID string) (*models.Account, error) {
	account, err := scanAccount(q.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1`, accountID))
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", accountID, err)
	}
	return account, nil
}

func (s *LedgerStore) GetUserAccount(ctx context.Context, q database.Queryer, userID string) (*models.Account, error) {
	account, err := scanAccount(q.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("wallet for user %s: %w", userID, err)
	}
	return account, nil
}

func (s *LedgerStore) GetPlatformAccount(ctx context.Context, q database.Queryer) (*models.Account, error) {
	account, err := scanAccount(q.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE owner_kind = $1`, models.OwnerPlatform))
	if err != nil {
		return nil, fmt.Errorf("platform account: %w", err)
	}
	return account, nil
}

func (s *LedgerStore) CreateAccount(ctx context.Context, q database.Queryer, account *models.Account) error {
	now := s.now()
	account.CreatedAt, account.UpdatedAt = now, now
	if account.Version == 0 {
		account.Version = 1
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.OwnerKind, account.UserID, account.AvailableCents,
		account.PendingCents, account.Version, account.CreatedAt, account.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: account already exists", models.ErrDuplicateOperation)
	}
	return err
}

// CompareAndSwapBalance writes the new balances only if the row still has
// the version the caller read, bumping the version on success.
func (s *LedgerStore) CompareAndSwapBalance(ctx context.Context, q database.Queryer, accountID string, available, pending, version int64) error {
	result, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET available_cents = $1, pending_cents = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5`,
		available, pending, s.now(), accountID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: account %s at version %d", errVersionMismatch, accountID, version)
	}

	return nil
}

func (s *LedgerStore) InsertTransaction(ctx context.Context, q database.Queryer, entry *models.LedgerTransaction) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_transactions (`+ledgerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.FromAccountID, entry.ToAccountID, entry.AmountCents,
		entry.Kind, entry.ReferenceID, entry.Memo, entry.CreatedAt)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: reference %s", models.ErrDuplicateOperation, entry.ReferenceID)
	}
	return err
}

func scanLedgerTransaction(row rowScanner) (*models.LedgerTransaction, error) {
	var entry models.LedgerTransaction
	err := row.Scan(&entry.ID, &entry.FromAccountID, &entry.ToAccountID, &entry.AmountCents,
		&entry.Kind, &entry.ReferenceID, &entry.Memo, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *LedgerStore) FindTransactionByReference(ctx context.Context, q database.Queryer, referenceID string) (*models.LedgerTransaction, error) {
	entry, err := scanLedgerTransaction(q.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_transactions
		WHERE reference_id = $1`, referenceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return entry, err
}

func (s *LedgerStore) ListTransactions(ctx context.Context, q database.Queryer, accountID string, limit int) ([]models.LedgerTransaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_transactions
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerTransaction{}
	for rows.Next() {
		entry, err := scanLedgerTransaction(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// LedgerNet is credits minus debits over every ledger row touching the
// account.
func (s *LedgerStore) LedgerNet(ctx context.Context, q database.Queryer, accountID string) (int64, error) {
	var net int64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN to_account_id = $1 THEN amount_cents ELSE -amount_cents END), 0)
		FROM ledger_transactions
		WHERE from_account_id = $1 OR to_account_id = $1`, accountID).Scan(&net)
	return net, err
}
