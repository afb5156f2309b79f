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

package llm

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vidigest/vidigest/model"
)

// ModelSpec is a fully resolved model choice for one summarization stage:
// provider, concrete model id and the pricing needed for cost accounting.
// Specs are resolved once at configuration time; nothing re-interprets model
// strings per call.
type ModelSpec struct {
	Provider        string          `json:"provider"`
	ModelID         string          `json:"model_id"`
	MaxTokens       int             `json:"max_tokens"`
	InputCostPer1K  decimal.Decimal `json:"input_cost_per_1k"`
	OutputCostPer1K decimal.Decimal `json:"output_cost_per_1k"`
}

// Completion is the gateway's answer to a single generate call.
type Completion struct {
	Text  string
	Usage model.TokenUsage
}

// Gateway is the language-model collaborator. Implementations must return
// classified errors (errkind) so callers can decide between retry, fallback
// and hard failure.
type Gateway interface {
	Generate(ctx context.Context, spec ModelSpec, prompt string) (*Completion, error)
}

var oneThousand = decimal.NewFromInt(1000)

// Cost prices a completion against the spec's per-1K token rates.
func Cost(spec ModelSpec, usage model.TokenUsage) decimal.Decimal {
	in := decimal.NewFromInt(usage.InputTokens).Div(oneThousand).Mul(spec.InputCostPer1K)
	out := decimal.NewFromInt(usage.OutputTokens).Div(oneThousand).Mul(spec.OutputCostPer1K)
	return in.Add(out)
}
