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
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidigest/vidigest/config"
	"github.com/vidigest/vidigest/database"
	"github.com/vidigest/vidigest/internal/llm"
	"github.com/vidigest/vidigest/internal/redisconn"
	"github.com/vidigest/vidigest/internal/retry"
	"github.com/vidigest/vidigest/internal/source"
	"github.com/vidigest/vidigest/internal/telegram"
)

// Vidigest is the pipeline service: it owns the processing ledger, the
// delivery queue and the external collaborators, and drives content items
// from discovery to delivered summary.
type Vidigest struct {
	datasource database.IDataSource
	queue      *Queue
	ledger     *ProcessingLedger
	redis      redis.UniversalClient
	source     source.Collaborator
	gateway    llm.Gateway
	messenger  telegram.Gateway
	retry      retry.Policy

	// Resolved once at construction so the fallback branch never has to
	// consult configuration mid-item.
	minSummaryLength int
}

// NewVidigest initializes a new instance of Vidigest with the provided database datasource.
// It fetches the configuration and wires the Redis client, delivery queue,
// processing ledger and gateway clients.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *Vidigest: A pointer to the newly created Vidigest instance.
// - error: An error if any of the initialization steps fail.
func NewVidigest(db database.IDataSource) (*Vidigest, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redisconn.NewClient([]string{configuration.Redis.Dns})
	if err != nil {
		return nil, err
	}

	newVidigest := &Vidigest{
		datasource: db,
		queue:      NewQueue(configuration),
		ledger:     NewProcessingLedger(db, time.Duration(configuration.Pipeline.ClaimTimeoutSeconds)*time.Second),
		redis:      redisClient.Client(),
		source:     source.NewClient(configuration.Source.Url, time.Duration(configuration.Source.TimeoutSeconds)*time.Second),
		gateway:    llm.NewClient(configuration.LLM.BaseUrl, configuration.LLM.ApiKey, time.Duration(configuration.LLM.TimeoutSeconds)*time.Second),
		messenger:  telegram.NewClient(configuration.Telegram.BotToken, time.Duration(configuration.Telegram.TimeoutSeconds)*time.Second),
		retry:      configuration.Retry.Policy(),

		minSummaryLength: configuration.Pipeline.MinSummaryLength,
	}
	return newVidigest, nil
}

// Queue exposes the delivery queue, mainly for the worker command.
func (v *Vidigest) Queue() *Queue {
	return v.queue
}

// Datasource exposes the backing datasource.
func (v *Vidigest) Datasource() database.IDataSource {
	return v.datasource
}
