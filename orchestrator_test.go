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
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vidigest/vidigest/config"
	"github.com/vidigest/vidigest/internal/errkind"
	"github.com/vidigest/vidigest/internal/llm"
	"github.com/vidigest/vidigest/model"
)

const longSecondary = "a considerably longer secondary summary that easily clears the minimum length"

func testItem() *model.ContentItem {
	return &model.ContentItem{
		VideoID:           "v123",
		ChannelID:         "ch-7",
		Title:             "Deep Learning Intro",
		CleanedTranscript: "Deep learning is powerful and here is a transcript about it",
	}
}

func stageResponder(responses map[string]string) *stubGateway {
	return &stubGateway{
		generate: func(ctx context.Context, spec llm.ModelSpec, prompt string) (*llm.Completion, error) {
			text, ok := responses[spec.ModelID]
			if !ok {
				return nil, errkind.Newf(errkind.InvalidRequest, "unexpected model %s", spec.ModelID)
			}
			return &llm.Completion{Text: text, Usage: model.TokenUsage{InputTokens: 1000, OutputTokens: 100}}, nil
		},
	}
}

func TestSummarize_SingleStage(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	v.gateway = stageResponder(map[string]string{"gpt-4o-mini": "primary summary text"})

	item := testItem()
	err := v.Summarize(context.Background(), item, testChannel(false, config.FallbackPrimarySummary))
	assert.NoError(t, err)
	assert.Equal(t, "primary summary text", item.FinalSummary)
	assert.Equal(t, "primary summary text", item.PrimarySummary)
	assert.False(t, item.FallbackApplied)
	assert.Len(t, item.Stages, 1)
	assert.Equal(t, "gpt-4o-mini", item.Stages[model.StagePrimary].ModelID)
}

func TestSummarize_SingleModelPolicyIgnoresOtherStages(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	v.gateway = stageResponder(map[string]string{"gpt-4o-mini": "primary summary text"})

	// MultiStage is set but the policy pins everything to the primary model.
	item := testItem()
	err := v.Summarize(context.Background(), item, testChannel(true, config.FallbackSingleModel))
	assert.NoError(t, err)
	assert.Equal(t, "primary summary text", item.FinalSummary)
	assert.Len(t, item.Stages, 1)
}

func TestSummarize_MultiStage(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	v.gateway = stageResponder(map[string]string{
		"gpt-4o-mini":      "primary summary text",
		"claude-3-5-haiku": "secondary summary text",
		"gpt-4o":           "synthesized combined summary",
	})

	item := testItem()
	err := v.Summarize(context.Background(), item, testChannel(true, config.FallbackBestSummary))
	assert.NoError(t, err)
	assert.Equal(t, "synthesized combined summary", item.FinalSummary)
	assert.Equal(t, "secondary summary text", item.SecondarySummary)
	assert.False(t, item.FallbackApplied)
	assert.Len(t, item.Stages, 3)
	assert.True(t, item.CostEstimate.IsPositive())
}

func TestSummarize_PrimaryFailureFailsItem(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	v.gateway = &stubGateway{
		generate: func(ctx context.Context, spec llm.ModelSpec, prompt string) (*llm.Completion, error) {
			return nil, errkind.Newf(errkind.InvalidRequest, "prompt rejected")
		},
	}

	item := testItem()
	err := v.Summarize(context.Background(), item, testChannel(true, config.FallbackBestSummary))
	assert.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidRequest))
	assert.Empty(t, item.FinalSummary)
}

func TestSummarize_SecondaryPersistentFailureDegrades(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	v.gateway = &stubGateway{
		generate: func(ctx context.Context, spec llm.ModelSpec, prompt string) (*llm.Completion, error) {
			if spec.ModelID == "claude-3-5-haiku" {
				return nil, errkind.Newf(errkind.InvalidRequest, "model retired")
			}
			return &llm.Completion{Text: "primary summary text", Usage: model.TokenUsage{InputTokens: 100, OutputTokens: 10}}, nil
		},
	}

	item := testItem()
	err := v.Summarize(context.Background(), item, testChannel(true, config.FallbackBestSummary))
	assert.NoError(t, err)
	assert.True(t, item.FallbackApplied)
	assert.Equal(t, "primary summary text", item.FinalSummary)
	assert.Empty(t, item.SynthesisSummary)
}

func TestSummarize_SecondaryTransientExhaustionDegrades(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	calls := 0
	v.gateway = &stubGateway{
		generate: func(ctx context.Context, spec llm.ModelSpec, prompt string) (*llm.Completion, error) {
			if spec.ModelID == "claude-3-5-haiku" {
				calls++
				return nil, errkind.Newf(errkind.Transient, "rate limited")
			}
			return &llm.Completion{Text: "primary summary text", Usage: model.TokenUsage{InputTokens: 100, OutputTokens: 10}}, nil
		},
	}

	item := testItem()
	err := v.Summarize(context.Background(), item, testChannel(true, config.FallbackBestSummary))
	assert.NoError(t, err)
	// The tight test policy allows one retry before degrading.
	assert.Equal(t, 2, calls)
	assert.True(t, item.FallbackApplied)
	assert.Equal(t, "primary summary text", item.FinalSummary)
	assert.Empty(t, item.SynthesisSummary)
}

func TestSummarize_SynthesisTransientExhaustionDegrades(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	v.gateway = &stubGateway{
		generate: func(ctx context.Context, spec llm.ModelSpec, prompt string) (*llm.Completion, error) {
			switch spec.ModelID {
			case "gpt-4o-mini":
				return &llm.Completion{Text: "short primary", Usage: model.TokenUsage{InputTokens: 100, OutputTokens: 10}}, nil
			case "claude-3-5-haiku":
				return &llm.Completion{Text: longSecondary, Usage: model.TokenUsage{InputTokens: 100, OutputTokens: 10}}, nil
			default:
				return nil, errkind.Newf(errkind.Transient, "rate limited")
			}
		},
	}

	item := testItem()
	err := v.Summarize(context.Background(), item, testChannel(true, config.FallbackBestSummary))
	assert.NoError(t, err)
	assert.True(t, item.FallbackApplied)
	assert.Empty(t, item.SynthesisSummary)
	// best_summary keeps the longer usable variant once synthesis is off the table.
	assert.Equal(t, longSecondary, item.FinalSummary)
	assert.NotEmpty(t, item.FinalSummary)
}

func TestSummarize_EmptyPrimaryCompletionFailsItem(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	v.gateway = stageResponder(map[string]string{"gpt-4o-mini": "   "})

	item := testItem()
	err := v.Summarize(context.Background(), item, testChannel(false, config.FallbackPrimarySummary))
	assert.Error(t, err)
	assert.True(t, errkind.IsTransient(err))
	assert.Empty(t, item.FinalSummary)
}

func TestSummarize_EmptySynthesisCompletionDegrades(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	v.gateway = stageResponder(map[string]string{
		"gpt-4o-mini":      "primary summary text",
		"claude-3-5-haiku": "secondary summary text",
		"gpt-4o":           "",
	})

	item := testItem()
	err := v.Summarize(context.Background(), item, testChannel(true, config.FallbackBestSummary))
	assert.NoError(t, err)
	assert.True(t, item.FallbackApplied)
	assert.Empty(t, item.SynthesisSummary)
	assert.NotEmpty(t, item.FinalSummary)
}

func TestSummarize_CostCeilingSkipsSynthesis(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	v.gateway = stageResponder(map[string]string{
		"gpt-4o-mini":      "short primary",
		"claude-3-5-haiku": longSecondary,
		"gpt-4o":           "never called",
	})

	channel := testChannel(true, config.FallbackBestSummary)
	channel.CostCeiling = decimal.NewFromFloat(0.0001)

	item := testItem()
	err := v.Summarize(context.Background(), item, channel)
	assert.NoError(t, err)
	assert.True(t, item.FallbackApplied)
	assert.Empty(t, item.SynthesisSummary)
	// best_summary picks the longer usable variant.
	assert.Equal(t, longSecondary, item.FinalSummary)
	_, synthesisRan := item.Stages[model.StageSynthesis]
	assert.False(t, synthesisRan)
}

func TestSummarize_ZeroCeilingDisablesCheck(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	v.gateway = stageResponder(map[string]string{
		"gpt-4o-mini":      "primary summary text",
		"claude-3-5-haiku": "secondary summary text",
		"gpt-4o":           "synthesized combined summary",
	})

	item := testItem()
	err := v.Summarize(context.Background(), item, testChannel(true, config.FallbackBestSummary))
	assert.NoError(t, err)
	assert.Equal(t, "synthesized combined summary", item.FinalSummary)
}

func TestSummarize_EmptyTranscript(t *testing.T) {
	mockPipelineConfig()
	v := newTestVidigest(nil)
	item := testItem()
	item.CleanedTranscript = ""

	err := v.Summarize(context.Background(), item, testChannel(false, config.FallbackPrimarySummary))
	assert.True(t, errkind.Is(err, errkind.PermanentContent))
}

func TestBestOf(t *testing.T) {
	long := strings.Repeat("x", 30)
	longer := strings.Repeat("y", 40)
	short := "tiny"

	// Secondary wins only when usable and strictly longer.
	assert.Equal(t, longer, bestOf(long, longer, 20))
	assert.Equal(t, longer, bestOf(longer, long, 20))
	assert.Equal(t, long, bestOf(long, short, 20))
	assert.Equal(t, long, bestOf(long, "", 20))
	assert.Equal(t, long, bestOf(long, long, 20))
}
