// Package outbox persists appointment events in the same transaction as the
// state change and drains them to the live channel and the broker.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinicbook_backend/platform/events"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
)

// Sink identifies one delivery channel of an outbox row.
type Sink string

const (
	SinkLive   Sink = "live"
	SinkBroker Sink = "broker"
)

const errRepoNotConfigured = "outbox repository not configured"

type Record struct {
	ID                uuid.UUID
	EventType         string
	AggregateID       uuid.UUID
	PatientID         *uuid.UUID
	Payload           json.RawMessage
	Status            Status
	LiveDeliveredAt   *time.Time
	BrokerDeliveredAt *time.Time
	Attempts          int
	NextAttemptAt     time.Time
	LastError         *string
	CreatedAt         time.Time
}

// Envelope decodes the stored event.
func (r Record) Envelope() (events.Envelope, error) {
	var env events.Envelope
	if err := json.Unmarshal(r.Payload, &env); err != nil {
		return events.Envelope{}, fmt.Errorf("decode outbox payload %s: %w", r.ID, err)
	}
	return env, nil
}

// Delivered reports whether sink already received this row.
func (r Record) Delivered(sink Sink) bool {
	switch sink {
	case SinkLive:
		return r.LiveDeliveredAt != nil
	case SinkBroker:
		return r.BrokerDeliveredAt != nil
	}
	return false
}

// Execer is satisfied by pgx.Tx and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Insert writes an event row using q, which is normally the transaction that
// carries the appointment change. The envelope ID becomes the row ID.
func Insert(ctx context.Context, q Execer, env events.Envelope, patientID *uuid.UUID) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = q.Exec(ctx,
		`INSERT INTO appointment_outbox (id, event_type, aggregate_id, patient_id, payload, status, next_attempt_at)
		 VALUES ($1, $2, $3, $4, $5, 'pending', now())`,
		env.ID, env.Type, env.AggregateID, patientID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `o.id, o.event_type, o.aggregate_id, o.patient_id, o.payload, o.status,
	o.live_delivered_at, o.broker_delivered_at, o.attempts, o.next_attempt_at, o.last_error, o.created_at`

// ClaimDue moves up to limit due rows to processing and returns them. Rows
// left in processing longer than staleAfter (a crashed dispatcher) are
// claimed again.
func (r *Repository) ClaimDue(ctx context.Context, limit int, staleAfter time.Duration) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM appointment_outbox
		WHERE (status = 'pending' AND next_attempt_at <= now())
		   OR (status = 'processing' AND updated_at < now() - make_interval(secs => $2))
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE appointment_outbox o
	SET status = 'processing', attempts = o.attempts + 1, updated_at = now()
	FROM cte
	WHERE o.id = cte.id
	RETURNING `+recordColumns, limit, staleAfter.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}

	results, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to scan outbox events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit outbox claim: %w", err)
	}
	return results, nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var rec Record
	var status string
	err := row.Scan(&rec.ID, &rec.EventType, &rec.AggregateID, &rec.PatientID, &rec.Payload, &status,
		&rec.LiveDeliveredAt, &rec.BrokerDeliveredAt, &rec.Attempts, &rec.NextAttemptAt, &rec.LastError, &rec.CreatedAt)
	rec.Status = Status(status)
	return rec, err
}

// MarkSinkDelivered records that one sink received the row so a retry skips it.
func (r *Repository) MarkSinkDelivered(ctx context.Context, id uuid.UUID, sink Sink) error {
	var column string
	switch sink {
	case SinkLive:
		column = "live_delivered_at"
	case SinkBroker:
		column = "broker_delivered_at"
	default:
		return fmt.Errorf("unknown outbox sink %q", sink)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE appointment_outbox SET `+column+` = COALESCE(`+column+`, now()), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox sink delivered: %w", err)
	}
	return nil
}

// Complete marks the row delivered to every sink.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE appointment_outbox SET status = 'delivered', last_error = NULL, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to complete outbox event: %w", err)
	}
	return nil
}

// Reschedule returns the row to pending until nextAttemptAt.
func (r *Repository) Reschedule(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE appointment_outbox
		 SET status = 'pending', next_attempt_at = $2, last_error = $3, updated_at = now()
		 WHERE id = $1`, id, nextAttemptAt, lastError)
	if err != nil {
		return fmt.Errorf("failed to reschedule outbox event: %w", err)
	}
	return nil
}

// Fail parks the row after the attempt cap.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE appointment_outbox SET status = 'failed', last_error = $2, updated_at = now() WHERE id = $1`,
		id, lastError)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	return nil
}

// DeleteFinishedBefore removes delivered and failed rows last touched before cutoff.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM appointment_outbox WHERE status IN ('delivered', 'failed') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished outbox events: %w", err)
	}
	return tag.RowsAffected(), nil
}
