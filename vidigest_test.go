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
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/vidigest/vidigest/config"
	"github.com/vidigest/vidigest/database"
	"github.com/vidigest/vidigest/internal/llm"
	"github.com/vidigest/vidigest/internal/retry"
	"github.com/vidigest/vidigest/internal/source"
)

// Shared test doubles for the external collaborators.

type stubGateway struct {
	generate func(ctx context.Context, spec llm.ModelSpec, prompt string) (*llm.Completion, error)
}

func (g *stubGateway) Generate(ctx context.Context, spec llm.ModelSpec, prompt string) (*llm.Completion, error) {
	return g.generate(ctx, spec, prompt)
}

type stubMessenger struct {
	send func(ctx context.Context, target, text string) error
}

func (m *stubMessenger) Send(ctx context.Context, target, text string) error {
	return m.send(ctx, target, text)
}

type stubSource struct {
	listRecent func(ctx context.Context, channelID string) ([]source.VideoRef, error)
	fetch      func(ctx context.Context, videoID string) (*source.Capture, error)
}

func (s *stubSource) ListRecent(ctx context.Context, channelID string) ([]source.VideoRef, error) {
	return s.listRecent(ctx, channelID)
}

func (s *stubSource) Fetch(ctx context.Context, videoID string) (*source.Capture, error) {
	return s.fetch(ctx, videoID)
}

// newTestVidigest wires a Vidigest over the given datasource with a tight
// retry policy so retry-exhaustion paths run in milliseconds.
func newTestVidigest(ds database.IDataSource) *Vidigest {
	return &Vidigest{
		datasource: ds,
		ledger:     NewProcessingLedger(ds, time.Minute),
		retry: retry.Policy{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
		},
		minSummaryLength: 20,
	}
}

// newLeaseRedisStub returns a Redis client that grants every channel lease
// and accepts its release.
func newLeaseRedisStub(t *testing.T) redis.UniversalClient {
	t.Helper()
	client, clientMock := redismock.NewClientMock()
	clientMock.Regexp().ExpectSetNX(`vidigest:channel:.*`, `.*`, 60*time.Second).SetVal(true)
	clientMock.Regexp().ExpectEval(`.*`, []string{`vidigest:channel:.*`}, `.*`).SetVal(int64(1))
	return client
}

func mockPipelineConfig() {
	config.MockConfig(&config.Configuration{
		Queue: config.QueueConfig{
			DeliveryQueue:    config.DEFAULT_DELIVERY_QUEUE,
			MaxRetryAttempts: 3,
			WorkerCount:      1,
		},
		Pipeline: config.PipelineConfig{
			MaxConcurrentChannels: 2,
			ClaimTimeoutSeconds:   60,
			LeaseTtlSeconds:       60,
			MinSummaryLength:      20,
		},
	})
}

func testChannel(multiStage bool, policy string) config.ChannelConfig {
	return config.ChannelConfig{
		ID:             "ch-7",
		Target:         "@digests",
		MultiStage:     multiStage,
		FallbackPolicy: policy,
		Models: config.StageModels{
			Primary: llm.ModelSpec{
				Provider:        "openai",
				ModelID:         "gpt-4o-mini",
				InputCostPer1K:  decimal.NewFromFloat(0.00015),
				OutputCostPer1K: decimal.NewFromFloat(0.0006),
			},
			Secondary: llm.ModelSpec{
				Provider:        "anthropic",
				ModelID:         "claude-3-5-haiku",
				InputCostPer1K:  decimal.NewFromFloat(0.0008),
				OutputCostPer1K: decimal.NewFromFloat(0.004),
			},
			Synthesis: llm.ModelSpec{
				Provider:        "openai",
				ModelID:         "gpt-4o",
				InputCostPer1K:  decimal.NewFromFloat(0.0025),
				OutputCostPer1K: decimal.NewFromFloat(0.01),
			},
		},
	}
}
