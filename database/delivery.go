/*
Copyright 2025 Vidigest Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/vidigest/vidigest/model"
)

// EnqueueDeliveryMessage inserts a new delivery row keyed by the idempotency
// key. Enqueuing a key that already has a row, terminal or not, is a no-op
// and returns false; rows are retained after terminal states for audit.
func (d *Datasource) EnqueueDeliveryMessage(ctx context.Context, msg *model.DeliveryMessage) (bool, error) {
	ctx, span := otel.Tracer("pipeline.delivery").Start(ctx, "Enqueueing delivery message")
	defer span.End()

	msg.Status = model.DeliveryPending
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt

	res, err := d.Conn.ExecContext(ctx, `
		INSERT INTO delivery_messages (message_id, video_id, target, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'PENDING', 0, $5, $6)
		ON CONFLICT (message_id) DO NOTHING
	`, msg.MessageID, msg.VideoID, msg.Target, msg.Payload, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("enqueue delivery %s: %w", msg.MessageID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// GetDeliveryMessage retrieves a delivery message by idempotency key.
func (d *Datasource) GetDeliveryMessage(ctx context.Context, messageID string) (*model.DeliveryMessage, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT message_id, video_id, target, payload, status, attempts, next_retry_at, last_error, created_at, updated_at
		FROM delivery_messages WHERE message_id = $1
	`, messageID)
	return scanDeliveryMessage(row)
}

// MarkDeliveryProcessing claims a non-terminal message for one delivery
// attempt. False means another worker holds it or it already terminated.
func (d *Datasource) MarkDeliveryProcessing(ctx context.Context, messageID string) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE delivery_messages
		SET status = 'PROCESSING', updated_at = NOW()
		WHERE message_id = $1 AND status IN ('PENDING', 'FAILED')
	`, messageID)
	if err != nil {
		return false, fmt.Errorf("mark delivery %s processing: %w", messageID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// MarkDeliveryDelivered is the terminal success transition. The status
// condition guarantees at most one DELIVERED row per idempotency key even if
// two workers race on the same message.
func (d *Datasource) MarkDeliveryDelivered(ctx context.Context, messageID string) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE delivery_messages
		SET status = 'DELIVERED', last_error = NULL, updated_at = NOW()
		WHERE message_id = $1 AND status NOT IN ('DELIVERED', 'DEAD_LETTER')
	`, messageID)
	if err != nil {
		return false, fmt.Errorf("mark delivery %s delivered: %w", messageID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// RecordDeliveryFailure records a failed attempt: bumps the attempt count,
// stores the error and the next-eligible-retry timestamp.
func (d *Datasource) RecordDeliveryFailure(ctx context.Context, messageID string, nextRetryAt time.Time, lastError string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE delivery_messages
		SET status = 'FAILED', attempts = attempts + 1, next_retry_at = $2, last_error = $3, updated_at = NOW()
		WHERE message_id = $1 AND status NOT IN ('DELIVERED', 'DEAD_LETTER')
	`, messageID, nextRetryAt, lastError)
	if err != nil {
		return fmt.Errorf("record delivery failure %s: %w", messageID, err)
	}
	return nil
}

// MarkDeliveryDeadLetter is the terminal failure transition, taken when the
// retry budget is exhausted.
func (d *Datasource) MarkDeliveryDeadLetter(ctx context.Context, messageID, lastError string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE delivery_messages
		SET status = 'DEAD_LETTER', attempts = attempts + 1, next_retry_at = NULL, last_error = $2, updated_at = NOW()
		WHERE message_id = $1 AND status NOT IN ('DELIVERED', 'DEAD_LETTER')
	`, messageID, lastError)
	if err != nil {
		return fmt.Errorf("mark delivery %s dead-letter: %w", messageID, err)
	}
	return nil
}

// ReleaseStalledDelivery returns a PROCESSING row to PENDING so a future
// attempt can claim it again. Used when the worker that marked the row died
// before recording an outcome; the staleness condition leaves rows a live
// worker touched after the scan alone.
func (d *Datasource) ReleaseStalledDelivery(ctx context.Context, messageID string, cutoff time.Time) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE delivery_messages
		SET status = 'PENDING', updated_at = NOW()
		WHERE message_id = $1 AND status = 'PROCESSING' AND updated_at < $2
	`, messageID, cutoff)
	if err != nil {
		return false, fmt.Errorf("release stalled delivery %s: %w", messageID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// GetStalledDeliveries returns non-terminal messages untouched since cutoff.
// The recovery sweep re-enqueues them so a crashed worker never strands a
// message short of its terminal state.
func (d *Datasource) GetStalledDeliveries(ctx context.Context, cutoff time.Time, limit int) ([]*model.DeliveryMessage, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT message_id, video_id, target, payload, status, attempts, next_retry_at, last_error, created_at, updated_at
		FROM delivery_messages
		WHERE status IN ('PENDING', 'PROCESSING', 'FAILED') AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("get stalled deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*model.DeliveryMessage
	for rows.Next() {
		msg, err := scanDeliveryMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDeliveryMessage(row rowScanner) (*model.DeliveryMessage, error) {
	msg := &model.DeliveryMessage{}
	var nextRetryAt sql.NullTime
	var lastError sql.NullString
	err := row.Scan(&msg.MessageID, &msg.VideoID, &msg.Target, &msg.Payload, &msg.Status,
		&msg.Attempts, &nextRetryAt, &lastError, &msg.CreatedAt, &msg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("delivery message not found")
	}
	if err != nil {
		return nil, err
	}
	if nextRetryAt.Valid {
		msg.NextRetryAt = &nextRetryAt.Time
	}
	msg.LastError = lastError.String
	return msg, nil
}
