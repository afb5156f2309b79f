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

// EnsureLedgerEntry creates a PENDING entry for the video if none exists.
// Safe to call on every discovery pass.
func (d *Datasource) EnsureLedgerEntry(ctx context.Context, videoID, channelID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO ledger_entries (video_id, channel_id, status, created_at, updated_at)
		VALUES ($1, $2, 'PENDING', NOW(), NOW())
		ON CONFLICT (video_id) DO NOTHING
	`, videoID, channelID)
	if err != nil {
		return fmt.Errorf("ensure ledger entry %s: %w", videoID, err)
	}
	return nil
}

// ClaimLedgerEntry atomically transitions PENDING -> IN_PROGRESS for the
// video, but only when no unexpired claim exists. This single conditional
// update is the pipeline's only concurrency-control point: of any number of
// concurrent claim attempts exactly one sees rows-affected 1. Expired claims
// are reclaimable, which is how crashed workers are recovered.
func (d *Datasource) ClaimLedgerEntry(ctx context.Context, videoID, claimToken string, expiresAt time.Time) (bool, error) {
	ctx, span := otel.Tracer("pipeline.ledger").Start(ctx, "Claiming ledger entry")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = 'IN_PROGRESS', claim_token = $2, claimed_at = NOW(), claim_expires_at = $3, updated_at = NOW()
		WHERE video_id = $1
		  AND (status = 'PENDING' OR (status = 'IN_PROGRESS' AND claim_expires_at < NOW()))
	`, videoID, claimToken, expiresAt)
	if err != nil {
		return false, fmt.Errorf("claim ledger entry %s: %w", videoID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// CompleteLedgerEntry marks the entry COMPLETED. Only the claim holder can
// complete; a stale worker whose claim was taken over affects nothing.
func (d *Datasource) CompleteLedgerEntry(ctx context.Context, videoID, claimToken string) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = 'COMPLETED', completed_at = NOW(), claim_token = NULL, claim_expires_at = NULL, updated_at = NOW()
		WHERE video_id = $1 AND claim_token = $2 AND status = 'IN_PROGRESS'
	`, videoID, claimToken)
	if err != nil {
		return false, fmt.Errorf("complete ledger entry %s: %w", videoID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// FailLedgerEntry marks the entry FAILED with a reason.
func (d *Datasource) FailLedgerEntry(ctx context.Context, videoID, claimToken, reason string) error {
	return d.finishEntry(ctx, videoID, claimToken, model.StatusFailed, reason)
}

// SkipLedgerEntryPermanent marks the entry SKIPPED_PERMANENT; the video is
// never attempted again.
func (d *Datasource) SkipLedgerEntryPermanent(ctx context.Context, videoID, claimToken, reason string) error {
	return d.finishEntry(ctx, videoID, claimToken, model.StatusSkippedPermanent, reason)
}

// ReleaseLedgerEntry returns the entry to PENDING so a future run picks the
// video up again (retryable skip).
func (d *Datasource) ReleaseLedgerEntry(ctx context.Context, videoID, claimToken, reason string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = 'PENDING', claim_token = NULL, claimed_at = NULL, claim_expires_at = NULL,
		    failure_reason = $3, updated_at = NOW()
		WHERE video_id = $1 AND claim_token = $2 AND status = 'IN_PROGRESS'
	`, videoID, claimToken, reason)
	if err != nil {
		return fmt.Errorf("release ledger entry %s: %w", videoID, err)
	}
	return nil
}

func (d *Datasource) finishEntry(ctx context.Context, videoID, claimToken, status, reason string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = $3, failure_reason = $4, claim_token = NULL, claim_expires_at = NULL, updated_at = NOW()
		WHERE video_id = $1 AND claim_token = $2 AND status = 'IN_PROGRESS'
	`, videoID, claimToken, status, reason)
	if err != nil {
		return fmt.Errorf("finish ledger entry %s as %s: %w", videoID, status, err)
	}
	return nil
}

// GetLedgerEntry retrieves the entry for a video id.
func (d *Datasource) GetLedgerEntry(ctx context.Context, videoID string) (*model.LedgerEntry, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT video_id, channel_id, status, claim_token, claimed_at, claim_expires_at,
		       completed_at, failure_reason, created_at, updated_at
		FROM ledger_entries WHERE video_id = $1
	`, videoID)

	entry := &model.LedgerEntry{}
	var claimToken, failureReason sql.NullString
	var claimedAt, claimExpiresAt, completedAt sql.NullTime
	err := row.Scan(&entry.VideoID, &entry.ChannelID, &entry.Status, &claimToken, &claimedAt,
		&claimExpiresAt, &completedAt, &failureReason, &entry.CreatedAt, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ledger entry %s not found", videoID)
	}
	if err != nil {
		return nil, err
	}

	entry.ClaimToken = claimToken.String
	entry.FailureReason = failureReason.String
	if claimedAt.Valid {
		entry.ClaimedAt = &claimedAt.Time
	}
	if claimExpiresAt.Valid {
		entry.ClaimExpiresAt = &claimExpiresAt.Time
	}
	if completedAt.Valid {
		entry.CompletedAt = &completedAt.Time
	}
	return entry, nil
}
