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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/vidigest/vidigest/model"
)

func newDeliveryMessage() *model.DeliveryMessage {
	return &model.DeliveryMessage{
		MessageID: model.DeliveryMessageID("v123", "telegram-channel-7"),
		VideoID:   "v123",
		Target:    "telegram-channel-7",
		Payload:   "*Deep Learning Intro*\n\nDeep learning is powerful",
	}
}

func TestEnqueueDeliveryMessage_New(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	msg := newDeliveryMessage()

	mock.ExpectExec("INSERT INTO delivery_messages").
		WithArgs(msg.MessageID, msg.VideoID, msg.Target, msg.Payload, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.EnqueueDeliveryMessage(context.Background(), msg)
	assert.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.DeliveryPending, msg.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueDeliveryMessage_DuplicateKeyIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	msg := newDeliveryMessage()

	mock.ExpectExec("INSERT INTO delivery_messages").
		WithArgs(msg.MessageID, msg.VideoID, msg.Target, msg.Payload, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := ds.EnqueueDeliveryMessage(context.Background(), msg)
	assert.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDeliveryProcessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE delivery_messages").
		WithArgs("v123:telegram-channel-7").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ds.MarkDeliveryProcessing(context.Background(), "v123:telegram-channel-7")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDeliveryProcessing_TerminalMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE delivery_messages").
		WithArgs("v123:telegram-channel-7").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := ds.MarkDeliveryProcessing(context.Background(), "v123:telegram-channel-7")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDeliveryDelivered_OnlyOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE delivery_messages").
		WithArgs("v123:telegram-channel-7").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE delivery_messages").
		WithArgs("v123:telegram-channel-7").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := ds.MarkDeliveryDelivered(context.Background(), "v123:telegram-channel-7")
	assert.NoError(t, err)
	assert.True(t, ok)

	// Second transition for the same key touches nothing.
	ok, err = ds.MarkDeliveryDelivered(context.Background(), "v123:telegram-channel-7")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDeliveryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	nextRetry := time.Now().Add(2 * time.Second)

	mock.ExpectExec("UPDATE delivery_messages").
		WithArgs("v123:telegram-channel-7", nextRetry, "telegram send: status 502").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.RecordDeliveryFailure(context.Background(), "v123:telegram-channel-7", nextRetry, "telegram send: status 502")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDeliveryDeadLetter(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE delivery_messages").
		WithArgs("v123:telegram-channel-7", "max retry attempts reached").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.MarkDeliveryDeadLetter(context.Background(), "v123:telegram-channel-7", "max retry attempts reached")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStalledDelivery(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	cutoff := time.Now().Add(-10 * time.Minute)

	mock.ExpectExec("UPDATE delivery_messages").
		WithArgs("v123:telegram-channel-7", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE delivery_messages").
		WithArgs("v123:telegram-channel-7", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := ds.ReleaseStalledDelivery(context.Background(), "v123:telegram-channel-7", cutoff)
	assert.NoError(t, err)
	assert.True(t, ok)

	// A row updated since the cutoff, or no longer PROCESSING, is untouched.
	ok, err = ds.ReleaseStalledDelivery(context.Background(), "v123:telegram-channel-7", cutoff)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStalledDeliveries(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()
	cutoff := now.Add(-10 * time.Minute)

	rows := sqlmock.NewRows([]string{
		"message_id", "video_id", "target", "payload", "status", "attempts",
		"next_retry_at", "last_error", "created_at", "updated_at",
	}).
		AddRow("v1:t1", "v1", "t1", "payload-1", model.DeliveryProcessing, 1, nil, "timeout", now.Add(-time.Hour), now.Add(-time.Hour)).
		AddRow("v2:t1", "v2", "t1", "payload-2", model.DeliveryPending, 0, nil, nil, now.Add(-time.Hour), now.Add(-30*time.Minute))

	mock.ExpectQuery("SELECT message_id, video_id, target").
		WithArgs(cutoff, 50).
		WillReturnRows(rows)

	stalled, err := ds.GetStalledDeliveries(context.Background(), cutoff, 50)
	assert.NoError(t, err)
	assert.Len(t, stalled, 2)
	assert.Equal(t, "v1:t1", stalled[0].MessageID)
	assert.Equal(t, 1, stalled[0].Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
