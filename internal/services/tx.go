package services

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/servicehub/backend/internal/audit"
	"github.com/servicehub/backend/internal/database"
	"github.com/servicehub/backend/internal/models"
)

// inTx runs fn in one transaction and writes the audit events fn raised only
// after the commit. A duplicate ledger reference means a concurrent request
// committed the same operation first: fn runs once more in a new
// transaction, where it finds that operation and returns it as a replay.
func inTx(ctx context.Context, db *sql.DB, logger audit.Logger, fn func(ctx context.Context, tx *sql.Tx) error) error {
	err := auditedTx(ctx, db, logger, fn)
	if errors.Is(err, models.ErrDuplicateOperation) {
		log.Printf("[IDEMPOTENCY] %v, reading back the committed result", err)
		err = auditedTx(ctx, db, logger, fn)
	}
	return err
}

func auditedTx(ctx context.Context, db *sql.DB, logger audit.Logger, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, pending := audit.Begin(ctx)
	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		return fn(ctx, tx)
	})
	if err != nil {
		return err
	}
	pending.Flush(logger)
	return nil
}
