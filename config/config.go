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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vidigest/vidigest/internal/llm"
	"github.com/vidigest/vidigest/internal/retry"
)

// Fallback policies selectable per channel.
const (
	FallbackBestSummary    = "best_summary"
	FallbackPrimarySummary = "primary_summary"
	FallbackSingleModel    = "single_model"
)

const (
	DEFAULT_DELIVERY_QUEUE  = "vidigest:deliveries"
	DEFAULT_MONITORING_PORT = "5551"
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"VIDIGEST_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"VIDIGEST_REDIS_DNS"`
}

type SourceConfig struct {
	Url            string `json:"url" envconfig:"VIDIGEST_SOURCE_URL"`
	TimeoutSeconds int    `json:"timeout_seconds" envconfig:"VIDIGEST_SOURCE_TIMEOUT_SECONDS"`
}

type LLMConfig struct {
	BaseUrl        string `json:"base_url" envconfig:"VIDIGEST_LLM_BASE_URL"`
	ApiKey         string `json:"api_key" envconfig:"VIDIGEST_LLM_API_KEY"`
	TimeoutSeconds int    `json:"timeout_seconds" envconfig:"VIDIGEST_LLM_TIMEOUT_SECONDS"`
}

type TelegramConfig struct {
	BotToken       string `json:"bot_token" envconfig:"VIDIGEST_TELEGRAM_BOT_TOKEN"`
	TimeoutSeconds int    `json:"timeout_seconds" envconfig:"VIDIGEST_TELEGRAM_TIMEOUT_SECONDS"`
}

type QueueConfig struct {
	DeliveryQueue    string `json:"delivery_queue" envconfig:"VIDIGEST_QUEUE_DELIVERY"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"VIDIGEST_QUEUE_MAX_RETRY_ATTEMPTS"`
	WorkerCount      int    `json:"worker_count" envconfig:"VIDIGEST_QUEUE_WORKER_COUNT"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"VIDIGEST_QUEUE_MONITORING_PORT"`
}

type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts" envconfig:"VIDIGEST_RETRY_MAX_ATTEMPTS"`
	InitialDelayMs int     `json:"initial_delay_ms" envconfig:"VIDIGEST_RETRY_INITIAL_DELAY_MS"`
	MaxDelayMs     int     `json:"max_delay_ms" envconfig:"VIDIGEST_RETRY_MAX_DELAY_MS"`
	Multiplier     float64 `json:"multiplier" envconfig:"VIDIGEST_RETRY_MULTIPLIER"`
	Jitter         float64 `json:"jitter" envconfig:"VIDIGEST_RETRY_JITTER"`
}

// Policy materializes the retry settings into the shared policy value used
// by the orchestrator and the delivery queue.
func (r RetryConfig) Policy() retry.Policy {
	p := retry.Default()
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelayMs > 0 {
		p.InitialDelay = time.Duration(r.InitialDelayMs) * time.Millisecond
	}
	if r.MaxDelayMs > 0 {
		p.MaxDelay = time.Duration(r.MaxDelayMs) * time.Millisecond
	}
	if r.Multiplier > 0 {
		p.Multiplier = r.Multiplier
	}
	if r.Jitter > 0 {
		p.Jitter = r.Jitter
	}
	return p
}

type PipelineConfig struct {
	MaxConcurrentChannels int `json:"max_concurrent_channels" envconfig:"VIDIGEST_PIPELINE_MAX_CONCURRENT_CHANNELS"`
	ClaimTimeoutSeconds   int `json:"claim_timeout_seconds" envconfig:"VIDIGEST_PIPELINE_CLAIM_TIMEOUT_SECONDS"`
	LeaseTtlSeconds       int `json:"lease_ttl_seconds" envconfig:"VIDIGEST_PIPELINE_LEASE_TTL_SECONDS"`
	MinSummaryLength      int `json:"min_summary_length" envconfig:"VIDIGEST_PIPELINE_MIN_SUMMARY_LENGTH"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"VIDIGEST_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

// StageModels holds the resolved model choice for each summarization stage.
type StageModels struct {
	Primary   llm.ModelSpec `json:"primary"`
	Secondary llm.ModelSpec `json:"secondary"`
	Synthesis llm.ModelSpec `json:"synthesis"`
}

// ChannelConfig is the per-channel pipeline configuration. A channel that
// fails validation is skipped for the run; it never takes the coordinator or
// other channels down with it.
type ChannelConfig struct {
	ID             string          `json:"id"`
	Target         string          `json:"target"`
	MultiStage     bool            `json:"multi_stage"`
	FallbackPolicy string          `json:"fallback_policy"`
	CostCeiling    decimal.Decimal `json:"cost_ceiling"`
	Models         StageModels     `json:"models"`
}

// Validate checks the channel is runnable: a delivery target, a known
// fallback policy and a primary model are always required; multi-stage mode
// additionally needs secondary and synthesis models.
func (c ChannelConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Target, validation.Required),
		validation.Field(&c.FallbackPolicy, validation.Required,
			validation.In(FallbackBestSummary, FallbackPrimarySummary, FallbackSingleModel)),
	)
	if err != nil {
		return err
	}
	if c.Models.Primary.ModelID == "" {
		return errors.New("primary model id is required")
	}
	if c.MultiStage && c.FallbackPolicy != FallbackSingleModel {
		if c.Models.Secondary.ModelID == "" {
			return errors.New("secondary model id is required in multi-stage mode")
		}
		if c.Models.Synthesis.ModelID == "" {
			return errors.New("synthesis model id is required in multi-stage mode")
		}
	}
	if c.CostCeiling.IsNegative() {
		return errors.New("cost ceiling cannot be negative")
	}
	return nil
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"VIDIGEST_PROJECT_NAME"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Source       SourceConfig     `json:"source"`
	LLM          LLMConfig        `json:"llm"`
	Telegram     TelegramConfig   `json:"telegram"`
	Queue        QueueConfig      `json:"queue"`
	Retry        RetryConfig      `json:"retry"`
	Pipeline     PipelineConfig   `json:"pipeline"`
	Notification Notification     `json:"notification"`
	Channels     []ChannelConfig  `json:"channels"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("vidigest", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called vidigest.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Vidigest"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Queue.DeliveryQueue == "" {
		cnf.Queue.DeliveryQueue = DEFAULT_DELIVERY_QUEUE
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}
	if cnf.Queue.WorkerCount <= 0 {
		cnf.Queue.WorkerCount = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
	}

	if cnf.Pipeline.MaxConcurrentChannels <= 0 {
		cnf.Pipeline.MaxConcurrentChannels = 3
	}
	if cnf.Pipeline.ClaimTimeoutSeconds <= 0 {
		cnf.Pipeline.ClaimTimeoutSeconds = 900
	}
	if cnf.Pipeline.LeaseTtlSeconds <= 0 {
		cnf.Pipeline.LeaseTtlSeconds = 1800
	}
	if cnf.Pipeline.MinSummaryLength <= 0 {
		cnf.Pipeline.MinSummaryLength = 80
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
