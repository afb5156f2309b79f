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
	"time"

	"github.com/vidigest/vidigest/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	contentItem
	ledgerEntry
	deliveryMessage
}

// contentItem defines methods for handling content items.
type contentItem interface {
	CreateContentItem(ctx context.Context, item *model.ContentItem) (bool, error)             // Creates a content item; no-op if the video id exists
	GetContentItem(ctx context.Context, videoID string) (*model.ContentItem, error)           // Retrieves a content item by video id
	UpdateContentSummaries(ctx context.Context, item *model.ContentItem) error                // Persists the orchestrator's summary output
}

// ledgerEntry defines methods for the processing ledger and its claim protocol.
type ledgerEntry interface {
	EnsureLedgerEntry(ctx context.Context, videoID, channelID string) error                                  // Creates a PENDING entry if none exists
	ClaimLedgerEntry(ctx context.Context, videoID, claimToken string, expiresAt time.Time) (bool, error)     // Atomically acquires the claim; false if held
	CompleteLedgerEntry(ctx context.Context, videoID, claimToken string) (bool, error)                       // IN_PROGRESS->COMPLETED transition by the claim holder
	FailLedgerEntry(ctx context.Context, videoID, claimToken, reason string) error                           // Marks the entry FAILED
	SkipLedgerEntryPermanent(ctx context.Context, videoID, claimToken, reason string) error                  // Marks the entry SKIPPED_PERMANENT
	ReleaseLedgerEntry(ctx context.Context, videoID, claimToken, reason string) error                        // Returns the entry to PENDING (retryable skip)
	GetLedgerEntry(ctx context.Context, videoID string) (*model.LedgerEntry, error)                          // Retrieves the entry by video id
}

// deliveryMessage defines methods for the durable delivery queue.
type deliveryMessage interface {
	EnqueueDeliveryMessage(ctx context.Context, msg *model.DeliveryMessage) (bool, error)                    // Inserts the message; no-op if the key exists
	GetDeliveryMessage(ctx context.Context, messageID string) (*model.DeliveryMessage, error)                // Retrieves a message by idempotency key
	MarkDeliveryProcessing(ctx context.Context, messageID string) (bool, error)                              // Claims a non-terminal message for one attempt
	MarkDeliveryDelivered(ctx context.Context, messageID string) (bool, error)                               // Terminal success; at most one per key
	RecordDeliveryFailure(ctx context.Context, messageID string, nextRetryAt time.Time, lastError string) error // Failed attempt: bumps attempts, schedules retry
	MarkDeliveryDeadLetter(ctx context.Context, messageID, lastError string) error                           // Terminal failure after the retry budget
	GetStalledDeliveries(ctx context.Context, cutoff time.Time, limit int) ([]*model.DeliveryMessage, error) // Non-terminal messages untouched since cutoff
	ReleaseStalledDelivery(ctx context.Context, messageID string, cutoff time.Time) (bool, error)            // Returns a stale PROCESSING row to PENDING
}
