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
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/vidigest/vidigest/config"
	"github.com/vidigest/vidigest/internal/errkind"
	"github.com/vidigest/vidigest/internal/notification"
	"github.com/vidigest/vidigest/internal/redisconn"
	"github.com/vidigest/vidigest/internal/retry"
	"github.com/vidigest/vidigest/model"
)

var queueTracer = otel.Tracer("vidigest.queue")

// Queue is the transport side of the delivery queue. The database row is the
// source of truth for delivery state; the asynq task only schedules work, and
// its task id mirrors the row's message id so Redis deduplicates alongside
// the unique row constraint.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redisconn.ParseURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// Enqueue schedules a persisted delivery message for the workers. A task id
// conflict means the message is already queued and is treated as success;
// at-least-once semantics come from the database row, not from Redis.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - msg *model.DeliveryMessage: The delivery message to schedule.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) Enqueue(ctx context.Context, msg *model.DeliveryMessage) error {
	ctx, span := queueTracer.Start(ctx, "Adding Delivery To Redis Queue")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(msg.MessageID),
		asynq.Queue(cfg.Queue.DeliveryQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	}
	task := asynq.NewTask(cfg.Queue.DeliveryQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			logrus.WithField("message_id", msg.MessageID).Debug("delivery already queued, skipping")
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued delivery: %+v", msg.MessageID)
	return nil
}

// EnqueueDelivery records a summary delivery in the durable queue and hands it
// to the workers. The message id (video + target) is the idempotency key:
// while a non-terminal row exists for that key the call is a no-op, so
// re-running a pipeline stage never produces a second delivery.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - videoID string: The summarized video.
// - target string: The delivery destination.
// - payload string: The rendered digest text.
//
// Returns:
// - error: An error if the message could not be persisted or scheduled.
func (v *Vidigest) EnqueueDelivery(ctx context.Context, videoID, target, payload string) error {
	ctx, span := queueTracer.Start(ctx, "EnqueueDelivery")
	defer span.End()

	msg := &model.DeliveryMessage{
		MessageID: model.DeliveryMessageID(videoID, target),
		VideoID:   videoID,
		Target:    target,
		Payload:   payload,
		Status:    model.DeliveryPending,
	}
	created, err := v.datasource.EnqueueDeliveryMessage(ctx, msg)
	if err != nil {
		return err
	}
	if !created {
		logrus.WithField("message_id", msg.MessageID).Info("delivery already recorded, not enqueuing again")
		return nil
	}
	return v.queue.Enqueue(ctx, msg)
}

// ProcessDelivery is the delivery worker handler. It reloads the durable row,
// sends the digest to the target and records the outcome. Send failures are
// retried by asynq on the shared backoff curve until the attempt budget runs
// out, at which point the message is dead-lettered and operators are alerted.
// Duplicate task executions against an already-terminal row are no-ops.
func (v *Vidigest) ProcessDelivery(ctx context.Context, t *asynq.Task) error {
	ctx, span := queueTracer.Start(ctx, "ProcessDelivery")
	defer span.End()

	var task model.DeliveryMessage
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		// Unparseable payloads can never succeed. Drop the task; the row (if
		// any) will surface through the recovery sweep.
		logrus.WithError(err).Error("discarding malformed delivery task")
		return nil
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return v.processDelivery(ctx, task.MessageID, retried, maxRetry)
}

// processDelivery does the actual work of one delivery attempt. retried is
// the number of attempts already consumed; when it reaches maxRetry the
// message is on its final attempt.
func (v *Vidigest) processDelivery(ctx context.Context, messageID string, retried, maxRetry int) error {
	msg, err := v.datasource.GetDeliveryMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Terminal() {
		logrus.WithField("message_id", msg.MessageID).Debug("delivery already terminal, skipping")
		return nil
	}

	taken, err := v.datasource.MarkDeliveryProcessing(ctx, msg.MessageID)
	if err != nil {
		return err
	}
	if !taken {
		// Another worker moved the row first.
		return nil
	}

	sendErr := v.messenger.Send(ctx, msg.Target, msg.Payload)
	if sendErr == nil {
		delivered, err := v.datasource.MarkDeliveryDelivered(ctx, msg.MessageID)
		if err != nil {
			return err
		}
		if delivered {
			logrus.WithFields(logrus.Fields{"message_id": msg.MessageID, "video_id": msg.VideoID}).
				Info("delivered summary")
		}
		return nil
	}

	if retried >= maxRetry || errkind.Is(sendErr, errkind.InvalidRequest) {
		if err := v.datasource.MarkDeliveryDeadLetter(ctx, msg.MessageID, sendErr.Error()); err != nil {
			return err
		}
		notification.NotifyError(errkind.Newf(errkind.Delivery,
			"delivery %s dead-lettered after %d attempts: %v", msg.MessageID, retried+1, sendErr))
		return nil
	}

	// The backoff for this attempt is drawn once: the row's next_retry_at and
	// asynq's reschedule both use it, so the two never disagree about when the
	// message is eligible again.
	delay := v.retry.Delay(retried + 1)
	if err := v.datasource.RecordDeliveryFailure(ctx, msg.MessageID, time.Now().Add(delay), sendErr.Error()); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"message_id": msg.MessageID, "attempt": retried + 1}).
		WithError(sendErr).Warn("delivery attempt failed, will retry")
	return &scheduledRetryError{cause: sendErr, delay: delay}
}

// scheduledRetryError carries the backoff already stamped on the delivery row
// so the task scheduler reuses it instead of drawing its own.
type scheduledRetryError struct {
	cause error
	delay time.Duration
}

func (e *scheduledRetryError) Error() string { return e.cause.Error() }

func (e *scheduledRetryError) Unwrap() error { return e.cause }

// RetryDelayFunc builds the retry-delay function for the delivery worker
// server. A failure from ProcessDelivery carries the delay already recorded on
// the durable row; anything else falls back to the policy curve.
func RetryDelayFunc(policy retry.Policy) func(n int, err error, t *asynq.Task) time.Duration {
	return func(n int, err error, t *asynq.Task) time.Duration {
		var scheduled *scheduledRetryError
		if errors.As(err, &scheduled) {
			return scheduled.delay
		}
		return policy.Delay(n)
	}
}
