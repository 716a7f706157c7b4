// Package ledger implements the per-consumer idempotency ledger: a
// unique-constrained record of processed event ids, checked and set inside the
// same transaction as the consumer's business effect.
package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createProcessedEventsSQL = `
CREATE TABLE IF NOT EXISTS processed_events (
  event_id text NOT NULL,
  service_name text NOT NULL,
  processed_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (event_id, service_name)
)`

const markProcessedSQL = `
INSERT INTO processed_events (event_id, service_name)
VALUES ($1, $2)
ON CONFLICT (event_id, service_name) DO NOTHING
`

const releaseProcessedSQL = `
DELETE FROM processed_events WHERE event_id = $1 AND service_name = $2
`

// Effect is a consumer's business-effect write, run on the same transaction
// as the idempotency mark. An alias so consumer-side guard interfaces can
// declare the plain func type.
type Effect = func(ctx context.Context, tx pgx.Tx) error

type Ledger struct {
	Pool    *pgxpool.Pool
	Service string
}

func New(pool *pgxpool.Pool, service string) *Ledger {
	return &Ledger{Pool: pool, Service: service}
}

func (l *Ledger) EnsureSchema(ctx context.Context) error {
	_, err := l.Pool.Exec(ctx, createProcessedEventsSQL)
	return err
}

// Run claims eventID and applies effect atomically. It reports
// processed=false without error when the event was already claimed: duplicate
// delivery is absorbed, not failed. Two concurrent deliveries of the same
// event id serialize on the primary-key lock, so exactly one effect commits.
func (l *Ledger) Run(ctx context.Context, eventID string, effect Effect) (processed bool, err error) {
	tx, err := l.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, markProcessedSQL, eventID, l.Service)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if effect != nil {
		if err := effect(ctx, tx); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit ledger tx: %w", err)
	}
	return true, nil
}

// Release removes a claim. Used only to compensate a claim whose follow-up
// publish failed synchronously, so a redelivery can retry.
func (l *Ledger) Release(ctx context.Context, eventID string) error {
	_, err := l.Pool.Exec(ctx, releaseProcessedSQL, eventID, l.Service)
	return err
}
