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

	"github.com/shopspring/decimal"
)

// Summarization stage identifiers. Stored on the content item so the audit
// trail records which model produced which variant.
const (
	StagePrimary   = "primary"
	StageSecondary = "secondary"
	StageSynthesis = "synthesis"
)

// CaptionSegment is one timed caption line as handed over by the source
// collaborator. Segments may overlap: streaming captions re-emit the tail of
// the previous line at the start of the next one.
type CaptionSegment struct {
	Offset time.Duration `json:"offset"`
	Text   string        `json:"text"`
}

// TokenUsage records the token counts reported by the language-model gateway
// for a single stage call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// StageRecord captures the model identity and token usage of one completed
// summarization stage.
type StageRecord struct {
	ModelID string     `json:"model_id"`
	Usage   TokenUsage `json:"usage"`
}

// ContentItem is one unit of work tracked through the pipeline: a single
// video's caption track and everything the pipeline derived from it. Items
// are append-only; they are marked terminal, never deleted.
type ContentItem struct {
	ID                int64                  `json:"-"`
	VideoID           string                 `json:"video_id"`
	ChannelID         string                 `json:"channel_id"`
	Title             string                 `json:"title"`
	RawSegments       []CaptionSegment       `json:"raw_segments,omitempty"`
	CleanedTranscript string                 `json:"cleaned_transcript"`
	PrimarySummary    string                 `json:"primary_summary,omitempty"`
	SecondarySummary  string                 `json:"secondary_summary,omitempty"`
	SynthesisSummary  string                 `json:"synthesis_summary,omitempty"`
	FinalSummary      string                 `json:"final_summary,omitempty"`
	Stages            map[string]StageRecord `json:"stages,omitempty"`
	CostEstimate      decimal.Decimal        `json:"cost_estimate"`
	FallbackApplied   bool                   `json:"fallback_applied"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	MetaData          map[string]interface{} `json:"meta_data,omitempty"`
}

func (item *ContentItem) ToJSON() ([]byte, error) {
	return json.Marshal(item)
}

// RecordStage stores the model id and token usage for a completed stage and
// folds its cost into the running estimate.
func (item *ContentItem) RecordStage(stage string, rec StageRecord, cost decimal.Decimal) {
	if item.Stages == nil {
		item.Stages = make(map[string]StageRecord)
	}
	item.Stages[stage] = rec
	item.CostEstimate = item.CostEstimate.Add(cost)
}
