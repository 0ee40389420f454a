package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/servicehub/backend/internal/config"
	"github.com/servicehub/backend/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// errVersionMismatch means a row changed between read and conditional write.
var errVersionMismatch = errors.New("version mismatch")

// conflictRetrier reruns a read-compute-CAS step while it fails with
// errVersionMismatch, up to cfg.MaxAttempts, counting every retry.
type conflictRetrier struct {
	cfg     *config.WalletConfig
	retries metric.Int64Counter
}

func newConflictRetrier(cfg *config.WalletConfig) *conflictRetrier {
	retries, err := otel.Meter(instrumentationName).Int64Counter("wallet.optimistic_lock.retries",
		metric.WithDescription("Conditional writes retried after a version mismatch"))
	if err != nil {
		log.Printf("[RETRY] retry counter unavailable: %v", err)
		retries = noop.Int64Counter{}
	}
	return &conflictRetrier{cfg: cfg, retries: retries}
}

// do calls step with the 1-based attempt number. Errors other than
// errVersionMismatch stop immediately and are returned as is. Exhausting the
// attempts yields ErrConcurrencyConflict.
func (r *conflictRetrier) do(ctx context.Context, entity, id string, step func(attempt int) error) error {
	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := step(attempt)
		if err != nil && !errors.Is(err, errVersionMismatch) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
			log.Printf("[RETRY] Version conflict on %s %s (attempt %d/%d), retrying in %s",
				entity, id, attempt, r.cfg.MaxAttempts, wait)
		}),
	)
	if errors.Is(err, errVersionMismatch) {
		return fmt.Errorf("%w: %s %s still contended after %d attempts", models.ErrConcurrencyConflict, entity, id, attempt)
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}

func (r *conflictRetrier) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxInterval = r.cfg.MaxBackoff
	b.RandomizationFactor = r.cfg.Jitter
	return b
}
