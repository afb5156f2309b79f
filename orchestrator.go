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
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vidigest/vidigest/config"
	"github.com/vidigest/vidigest/internal/errkind"
	"github.com/vidigest/vidigest/internal/llm"
	"github.com/vidigest/vidigest/model"
)

var orchestratorTracer = otel.Tracer("vidigest.orchestrator")

const (
	summaryPromptTemplate = "Summarize the following video transcript in a few short paragraphs. " +
		"Focus on the main arguments and concrete takeaways.\n\nTitle: %s\n\nTranscript:\n%s"
	synthesisPromptTemplate = "Two independent summaries of the same video transcript follow. " +
		"Merge them into a single coherent summary that keeps every substantive point and drops repetition.\n\n" +
		"Summary A:\n%s\n\nSummary B:\n%s"
)

// Summarize runs the summarization stages for one content item and sets its
// final summary. Single-stage channels call the primary model once.
// Multi-stage channels run primary and secondary summaries and then a
// synthesis pass, degrading per the channel's fallback policy when the
// secondary or synthesis stage fails or the cost ceiling is reached before
// synthesis. Every stage call is retried on transient errors before any
// degradation decision is made; only a primary failure fails the item.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - item *model.ContentItem: The item whose cleaned transcript is summarized. Mutated in place.
// - channel config.ChannelConfig: The owning channel's model and policy configuration.
//
// Returns:
// - error: A classified error when no acceptable summary could be produced.
func (v *Vidigest) Summarize(ctx context.Context, item *model.ContentItem, channel config.ChannelConfig) error {
	ctx, span := orchestratorTracer.Start(ctx, "Summarize", trace.WithAttributes(
		attribute.String("video.id", item.VideoID),
		attribute.String("channel.id", channel.ID),
	))
	defer span.End()

	if item.CleanedTranscript == "" {
		return errkind.Newf(errkind.PermanentContent, "video %s has no transcript to summarize", item.VideoID)
	}

	if !channel.MultiStage || channel.FallbackPolicy == config.FallbackSingleModel {
		return v.summarizeSingleStage(ctx, item, channel)
	}
	return v.summarizeMultiStage(ctx, item, channel)
}

func (v *Vidigest) summarizeSingleStage(ctx context.Context, item *model.ContentItem, channel config.ChannelConfig) error {
	primary, err := v.runStage(ctx, item, model.StagePrimary, channel.Models.Primary,
		fmt.Sprintf(summaryPromptTemplate, item.Title, item.CleanedTranscript))
	if err != nil {
		return err
	}
	item.PrimarySummary = primary
	item.FinalSummary = primary
	return nil
}

func (v *Vidigest) summarizeMultiStage(ctx context.Context, item *model.ContentItem, channel config.ChannelConfig) error {
	prompt := fmt.Sprintf(summaryPromptTemplate, item.Title, item.CleanedTranscript)

	// The primary stage has no fallback: without it there is nothing to
	// degrade to, so its failure fails the item.
	primary, err := v.runStage(ctx, item, model.StagePrimary, channel.Models.Primary, prompt)
	if err != nil {
		return err
	}
	item.PrimarySummary = primary

	// Retries are already exhausted by runStage, so any secondary failure,
	// transient or not, degrades to the fallback branch. The item still
	// completes with a summary.
	secondary, err := v.runStage(ctx, item, model.StageSecondary, channel.Models.Secondary, prompt)
	if err != nil {
		logrus.WithFields(logrus.Fields{"video_id": item.VideoID, "channel_id": channel.ID}).
			WithError(err).Warn("secondary stage failed, degrading")
		v.applyFallback(ctx, item, channel)
		return nil
	}
	item.SecondarySummary = secondary

	if ceilingReached(item, channel) {
		logrus.WithFields(logrus.Fields{
			"video_id":     item.VideoID,
			"channel_id":   channel.ID,
			"cost":         item.CostEstimate.String(),
			"cost_ceiling": channel.CostCeiling.String(),
		}).Warn("cost ceiling reached before synthesis, degrading")
		v.applyFallback(ctx, item, channel)
		return nil
	}

	synthesis, err := v.runStage(ctx, item, model.StageSynthesis, channel.Models.Synthesis,
		fmt.Sprintf(synthesisPromptTemplate, item.PrimarySummary, item.SecondarySummary))
	if err != nil {
		logrus.WithFields(logrus.Fields{"video_id": item.VideoID, "channel_id": channel.ID}).
			WithError(err).Warn("synthesis stage failed, degrading")
		v.applyFallback(ctx, item, channel)
		return nil
	}
	item.SynthesisSummary = synthesis
	item.FinalSummary = synthesis
	return nil
}

// runStage executes one model call with the shared retry policy and records
// its usage and cost on the item.
func (v *Vidigest) runStage(ctx context.Context, item *model.ContentItem, stage string, spec llm.ModelSpec, prompt string) (string, error) {
	ctx, span := orchestratorTracer.Start(ctx, fmt.Sprintf("Stage %s", stage))
	defer span.End()
	span.SetAttributes(attribute.String("model.id", spec.ModelID))

	var completion *llm.Completion
	err := v.retry.Do(ctx, func() error {
		c, err := v.gateway.Generate(ctx, spec, prompt)
		if err != nil {
			return err
		}
		// An empty completion is a failed attempt, not a summary.
		if strings.TrimSpace(c.Text) == "" {
			return errkind.Newf(errkind.Transient, "model %s returned an empty completion", spec.ModelID)
		}
		completion = c
		return nil
	})
	if err != nil {
		return "", err
	}

	item.RecordStage(stage, model.StageRecord{ModelID: spec.ModelID, Usage: completion.Usage}, llm.Cost(spec, completion.Usage))
	return completion.Text, nil
}

// applyFallback resolves the final summary from the variants already produced,
// per the channel's policy, and marks the item degraded. Called only when the
// primary summary exists; it cannot fail.
func (v *Vidigest) applyFallback(ctx context.Context, item *model.ContentItem, channel config.ChannelConfig) {
	_, span := orchestratorTracer.Start(ctx, "ApplyFallback")
	defer span.End()

	item.FallbackApplied = true
	switch channel.FallbackPolicy {
	case config.FallbackBestSummary:
		item.FinalSummary = bestOf(item.PrimarySummary, item.SecondarySummary, v.minSummaryLength)
	default:
		item.FinalSummary = item.PrimarySummary
	}
}

// bestOf prefers the secondary summary only when it is usable (present and at
// least minLength) and strictly longer than the primary. Ties go to primary
// so the choice is deterministic.
func bestOf(primary, secondary string, minLength int) string {
	if secondary == "" || len(secondary) < minLength {
		return primary
	}
	if len(secondary) > len(primary) {
		return secondary
	}
	return primary
}

// ceilingReached reports whether the channel's cost ceiling bars further
// stage calls for this item. A zero ceiling disables the check.
func ceilingReached(item *model.ContentItem, channel config.ChannelConfig) bool {
	return channel.CostCeiling.IsPositive() && item.CostEstimate.GreaterThanOrEqual(channel.CostCeiling)
}
