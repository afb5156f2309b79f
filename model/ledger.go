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

package model

import (
	"encoding/json"
	"time"
)

// Ledger entry statuses. PENDING entries are eligible for claiming;
// IN_PROGRESS entries are owned by exactly one worker until the claim
// expires; the remaining statuses are terminal. A retryable skip returns the
// entry to PENDING rather than introducing a status of its own.
const (
	StatusPending          = "PENDING"
	StatusInProgress       = "IN_PROGRESS"
	StatusCompleted        = "COMPLETED"
	StatusFailed           = "FAILED"
	StatusSkippedPermanent = "SKIPPED_PERMANENT"
)

// LedgerEntry is the durable processing record for one video. At most one
// unexpired claim may exist per video id; the claim token identifies the
// owner so only the claim holder can complete or release the entry.
type LedgerEntry struct {
	ID             int64      `json:"-"`
	VideoID        string     `json:"video_id"`
	ChannelID      string     `json:"channel_id"`
	Status         string     `json:"status"`
	ClaimToken     string     `json:"claim_token,omitempty"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	ClaimExpiresAt *time.Time `json:"claim_expires_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (entry *LedgerEntry) ToJSON() ([]byte, error) {
	return json.Marshal(entry)
}

// Terminal reports whether the entry can never be processed again.
func (entry *LedgerEntry) Terminal() bool {
	switch entry.Status {
	case StatusCompleted, StatusFailed, StatusSkippedPermanent:
		return true
	}
	return false
}
