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

package vidigest

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vidigest/vidigest/database"
	"github.com/vidigest/vidigest/model"
)

var ledgerTracer = otel.Tracer("vidigest.ledger")

// ErrAlreadyClaimed is returned by Claim when the entry is held by another
// worker or has already reached a terminal status. Callers skip the item.
var ErrAlreadyClaimed = errors.New("ledger entry is already claimed or terminal")

// ErrClaimLost is returned when a completion or release arrives after the
// claim expired and another worker took over. The late worker's writes are
// discarded; the current holder's outcome stands.
var ErrClaimLost = errors.New("claim token no longer owns the ledger entry")

// Claim is proof of exclusive ownership of one video's ledger entry until
// ExpiresAt. All terminal transitions require the claim so a worker that
// outlived its claim cannot overwrite a successor's result.
type Claim struct {
	VideoID   string
	Token     string
	ExpiresAt time.Time
}

// ProcessingLedger is the durable record of which videos have been processed.
// It is the pipeline's idempotency backbone: a video summarized and delivered
// once is never reprocessed, and two workers can never hold the same video at
// the same time.
type ProcessingLedger struct {
	datasource   database.IDataSource
	claimTimeout time.Duration
}

func NewProcessingLedger(db database.IDataSource, claimTimeout time.Duration) *ProcessingLedger {
	if claimTimeout <= 0 {
		claimTimeout = 15 * time.Minute
	}
	return &ProcessingLedger{datasource: db, claimTimeout: claimTimeout}
}

// Claim registers the video if it is new and atomically takes exclusive
// ownership of its entry. The claim succeeds only when the entry is PENDING or
// holds an expired IN_PROGRESS claim; in every other case ErrAlreadyClaimed is
// returned. Claims expire after the configured timeout so a crashed worker
// cannot strand an entry.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - videoID string: The video to claim.
// - channelID string: The channel the video was discovered on.
//
// Returns:
// - *Claim: The claim held by this worker.
// - error: ErrAlreadyClaimed when the entry is not claimable, or a database error.
func (l *ProcessingLedger) Claim(ctx context.Context, videoID, channelID string) (*Claim, error) {
	ctx, span := ledgerTracer.Start(ctx, "ClaimLedgerEntry")
	defer span.End()
	span.SetAttributes(attribute.String("video.id", videoID))

	if err := l.datasource.EnsureLedgerEntry(ctx, videoID, channelID); err != nil {
		return nil, err
	}

	token := model.GenerateIDWithPrefix("claim")
	expiresAt := time.Now().Add(l.claimTimeout)
	claimed, err := l.datasource.ClaimLedgerEntry(ctx, videoID, token, expiresAt)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrAlreadyClaimed
	}

	logrus.WithFields(logrus.Fields{"video_id": videoID, "channel_id": channelID}).
		Debug("claimed ledger entry")
	return &Claim{VideoID: videoID, Token: token, ExpiresAt: expiresAt}, nil
}

// Complete marks the claimed entry COMPLETED. The transition is conditional on
// the claim token still owning the entry; a stale worker gets ErrClaimLost.
func (l *ProcessingLedger) Complete(ctx context.Context, claim *Claim) error {
	ctx, span := ledgerTracer.Start(ctx, "CompleteLedgerEntry")
	defer span.End()

	done, err := l.datasource.CompleteLedgerEntry(ctx, claim.VideoID, claim.Token)
	if err != nil {
		return err
	}
	if !done {
		return ErrClaimLost
	}
	return nil
}

// Fail marks the claimed entry FAILED with the given reason. Failed entries
// are terminal; resurrecting one is an operator action, not a pipeline one.
func (l *ProcessingLedger) Fail(ctx context.Context, claim *Claim, reason string) error {
	ctx, span := ledgerTracer.Start(ctx, "FailLedgerEntry")
	defer span.End()
	return l.datasource.FailLedgerEntry(ctx, claim.VideoID, claim.Token, reason)
}

// SkipPermanent marks the claimed entry SKIPPED_PERMANENT. Used for content
// the source reports as never becoming available.
func (l *ProcessingLedger) SkipPermanent(ctx context.Context, claim *Claim, reason string) error {
	ctx, span := ledgerTracer.Start(ctx, "SkipLedgerEntryPermanent")
	defer span.End()
	return l.datasource.SkipLedgerEntryPermanent(ctx, claim.VideoID, claim.Token, reason)
}

// Release returns the claimed entry to PENDING so a later run picks it up
// again. Used for temporarily gated content and for transient failures that
// outlived their retry budget.
func (l *ProcessingLedger) Release(ctx context.Context, claim *Claim, reason string) error {
	ctx, span := ledgerTracer.Start(ctx, "ReleaseLedgerEntry")
	defer span.End()
	return l.datasource.ReleaseLedgerEntry(ctx, claim.VideoID, claim.Token, reason)
}

// Entry returns the current ledger entry for a video.
func (l *ProcessingLedger) Entry(ctx context.Context, videoID string) (*model.LedgerEntry, error) {
	return l.datasource.GetLedgerEntry(ctx, videoID)
}
