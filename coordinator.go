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
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vidigest/vidigest/config"
	"github.com/vidigest/vidigest/internal/errkind"
	"github.com/vidigest/vidigest/internal/lease"
	"github.com/vidigest/vidigest/internal/notification"
	"github.com/vidigest/vidigest/internal/source"
	"github.com/vidigest/vidigest/model"
)

var coordinatorTracer = otel.Tracer("vidigest.coordinator")

// ProcessDueChannels runs one pipeline pass over every configured channel.
// Channels run concurrently up to the configured bound; a channel that fails
// validation or whose lease is held elsewhere is skipped without affecting the
// others. The call returns once every started channel has finished.
//
// Parameters:
// - ctx context.Context: The context for the pass. Cancellation stops new items; in-flight items finish.
//
// Returns:
// - error: An error if the configuration could not be loaded.
func (v *Vidigest) ProcessDueChannels(ctx context.Context) error {
	ctx, span := coordinatorTracer.Start(ctx, "ProcessDueChannels")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	sem := make(chan struct{}, conf.Pipeline.MaxConcurrentChannels)
	var wg sync.WaitGroup
	for _, channel := range conf.Channels {
		if err := channel.Validate(); err != nil {
			notification.NotifyError(errkind.Newf(errkind.Config, "channel %s skipped: %v", channel.ID, err))
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(ch config.ChannelConfig) {
			defer wg.Done()
			defer func() { <-sem }()
			v.processChannel(ctx, ch)
		}(channel)
	}
	wg.Wait()
	return nil
}

// processChannel walks one channel's discovery feed under an exclusive lease.
// Items are processed sequentially in discovery order; one item's failure is
// absorbed by the ledger and never stops the walk.
func (v *Vidigest) processChannel(ctx context.Context, channel config.ChannelConfig) {
	ctx, span := coordinatorTracer.Start(ctx, "ProcessChannel")
	defer span.End()
	span.SetAttributes(attribute.String("channel.id", channel.ID))

	conf, err := config.Fetch()
	if err != nil {
		logrus.WithError(err).Error("cannot load configuration for channel run")
		return
	}
	leaseTTL := time.Duration(conf.Pipeline.LeaseTtlSeconds) * time.Second

	channelLease := lease.NewChannelLease(v.redis, channel.ID, model.GenerateIDWithPrefix("run"))
	if err := channelLease.Acquire(ctx, leaseTTL); err != nil {
		logrus.WithField("channel_id", channel.ID).Debug("channel run already in progress elsewhere")
		return
	}
	defer func() {
		if err := channelLease.Release(context.WithoutCancel(ctx)); err != nil {
			logrus.WithError(err).WithField("channel_id", channel.ID).Warn("failed to release channel lease")
		}
	}()

	refs, err := v.source.ListRecent(ctx, channel.ID)
	if err != nil {
		logrus.WithError(err).WithField("channel_id", channel.ID).Error("failed to list channel videos")
		return
	}

	for _, ref := range refs {
		select {
		case <-ctx.Done():
			logrus.WithField("channel_id", channel.ID).Info("channel run interrupted, remaining items deferred")
			return
		default:
		}

		if err := v.processItem(ctx, channel, ref); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"channel_id": channel.ID,
				"video_id":   ref.VideoID,
			}).Error("item processing failed")
		}

		if err := channelLease.Extend(ctx, leaseTTL); err != nil {
			logrus.WithError(err).WithField("channel_id", channel.ID).
				Warn("lost channel lease mid-run, stopping walk")
			return
		}
	}
}

// processItem drives one video from claim to queued delivery. The outcome of
// every failure is decided by its classification: permanently restricted
// content is skipped forever, temporarily gated content and transient
// failures return the entry to PENDING for a later run, and everything else
// marks the entry FAILED.
func (v *Vidigest) processItem(ctx context.Context, channel config.ChannelConfig, ref source.VideoRef) error {
	ctx, span := coordinatorTracer.Start(ctx, "ProcessItem")
	defer span.End()
	span.SetAttributes(attribute.String("video.id", ref.VideoID))

	claim, err := v.ledger.Claim(ctx, ref.VideoID, channel.ID)
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			return nil
		}
		return err
	}

	if err := v.runItem(ctx, channel, ref, claim); err != nil {
		return v.settleFailure(ctx, claim, err)
	}
	return v.ledger.Complete(ctx, claim)
}

func (v *Vidigest) runItem(ctx context.Context, channel config.ChannelConfig, ref source.VideoRef, claim *Claim) error {
	capture, err := v.source.Fetch(ctx, ref.VideoID)
	if err != nil {
		return err
	}

	item := &model.ContentItem{
		VideoID:           capture.VideoID,
		ChannelID:         channel.ID,
		Title:             capture.Title,
		RawSegments:       capture.Segments,
		CleanedTranscript: NormalizeTranscript(capture.Segments),
	}
	if item.CleanedTranscript == "" {
		return errkind.Newf(errkind.PermanentContent, "video %s has an empty caption track", ref.VideoID)
	}

	created, err := v.datasource.CreateContentItem(ctx, item)
	if err != nil {
		return err
	}
	if !created {
		// The item survived an earlier attempt; its stored transcript is
		// write-once and wins over a re-fetch.
		stored, err := v.datasource.GetContentItem(ctx, ref.VideoID)
		if err != nil {
			return err
		}
		item = stored
	}

	if err := v.Summarize(ctx, item, channel); err != nil {
		return err
	}
	if err := v.datasource.UpdateContentSummaries(ctx, item); err != nil {
		return err
	}
	return v.EnqueueDelivery(ctx, item.VideoID, channel.Target, renderDigest(item))
}

// settleFailure maps a classified item failure onto its ledger transition.
func (v *Vidigest) settleFailure(ctx context.Context, claim *Claim, cause error) error {
	switch errkind.Classify(cause) {
	case errkind.PermanentContent:
		if err := v.ledger.SkipPermanent(ctx, claim, cause.Error()); err != nil {
			return err
		}
	case errkind.TemporaryContent, errkind.Transient:
		if err := v.ledger.Release(ctx, claim, cause.Error()); err != nil {
			return err
		}
	default:
		if err := v.ledger.Fail(ctx, claim, cause.Error()); err != nil {
			return err
		}
		notification.NotifyError(cause)
	}
	return cause
}

// renderDigest formats one content item as the delivery payload.
func renderDigest(item *model.ContentItem) string {
	text := fmt.Sprintf("*%s*\n\n%s", item.Title, item.FinalSummary)
	if item.FallbackApplied {
		text += "\n\n_Summary produced in degraded mode._"
	}
	return text
}
