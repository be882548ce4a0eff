// Package store persists notification delivery records in PostgreSQL so
// clinic staff can audit which appointments were notified and over which
// channels.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Tjuaco/Molaris-sub001/internal/models"
)

var errPoolNotInitialised = errors.New("store: pool is not initialised")

const deliveryLogSchema = `
CREATE TABLE IF NOT EXISTS notification_deliveries (
    id BIGSERIAL PRIMARY KEY,
    message_id UUID NOT NULL,
    appointment_id TEXT NOT NULL,
    event TEXT NOT NULL,
    attempt INTEGER NOT NULL DEFAULT 1,
    outcomes JSONB NOT NULL DEFAULT '[]'::jsonb,
    any_succeeded BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notification_deliveries_message_id
    ON notification_deliveries(message_id);
CREATE INDEX IF NOT EXISTS idx_notification_deliveries_appointment_id
    ON notification_deliveries(appointment_id);
`

// DeliveryRow is one audit record: a single dispatch attempt for a
// notification request with its per-channel outcomes.
type DeliveryRow struct {
	MessageID     string
	AppointmentID string
	Event         string
	Attempt       int
	Outcomes      []models.OutcomeRecord
	AnySucceeded  bool
	CreatedAt     time.Time
}

// DeliveryLog writes delivery audit rows through a pgx connection pool.
type DeliveryLog struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open connects to PostgreSQL using the given connection string and ensures
// the delivery log schema exists.
func Open(ctx context.Context, connString string, logger zerolog.Logger) (*DeliveryLog, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("store: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	log := &DeliveryLog{pool: pool, logger: logger}
	if err := log.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return log, nil
}

func (d *DeliveryLog) ensureSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, deliveryLogSchema); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Insert records one dispatch attempt. A zero CreatedAt defaults to now.
func (d *DeliveryLog) Insert(ctx context.Context, row DeliveryRow) error {
	if d == nil || d.pool == nil {
		return errPoolNotInitialised
	}

	outcomes, err := json.Marshal(row.Outcomes)
	if err != nil {
		return fmt.Errorf("store: marshal outcomes: %w", err)
	}

	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const insertSQL = `
INSERT INTO notification_deliveries
    (message_id, appointment_id, event, attempt, outcomes, any_succeeded, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := d.pool.Exec(ctx, insertSQL,
		row.MessageID,
		row.AppointmentID,
		row.Event,
		row.Attempt,
		outcomes,
		row.AnySucceeded,
		createdAt,
	); err != nil {
		return fmt.Errorf("store: insert delivery: %w", err)
	}

	d.logger.Debug().
		Str("message_id", row.MessageID).
		Str("appointment_id", row.AppointmentID).
		Bool("any_succeeded", row.AnySucceeded).
		Msg("delivery record stored")

	return nil
}

// Close releases the underlying connection pool.
func (d *DeliveryLog) Close() {
	if d != nil && d.pool != nil {
		d.pool.Close()
	}
}
