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
	"fmt"
	"time"
)

// Delivery message statuses. DELIVERED and DEAD_LETTER are terminal; rows are
// retained after reaching a terminal status for audit.
const (
	DeliveryPending    = "PENDING"
	DeliveryProcessing = "PROCESSING"
	DeliveryDelivered  = "DELIVERED"
	DeliveryFailed     = "FAILED"
	DeliveryDeadLetter = "DEAD_LETTER"
)

// DeliveryMessage is one durable delivery-queue entry. MessageID is the
// idempotency key: enqueuing the same key twice while a non-terminal row
// exists is a no-op, and no two DELIVERED rows ever share a key.
type DeliveryMessage struct {
	ID          int64      `json:"-"`
	MessageID   string     `json:"message_id"`
	VideoID     string     `json:"video_id"`
	Target      string     `json:"target"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (msg *DeliveryMessage) ToJSON() ([]byte, error) {
	return json.Marshal(msg)
}

// Terminal reports whether the message has reached a state the worker will
// never move it out of.
func (msg *DeliveryMessage) Terminal() bool {
	return msg.Status == DeliveryDelivered || msg.Status == DeliveryDeadLetter
}

// DeliveryMessageID builds the idempotency key for a video and delivery
// target pair.
func DeliveryMessageID(videoID, target string) string {
	return fmt.Sprintf("%s:%s", videoID, target)
}
