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
	"fmt"
	"net/http"
	"time"

	"github.com/vidigest/vidigest/internal/errkind"
	"github.com/vidigest/vidigest/internal/request"
	"github.com/vidigest/vidigest/model"
)

// Client talks to an OpenAI-compatible chat-completions endpoint. One client
// serves all providers that speak the protocol; the model id on the spec
// selects the model per call.
type Client struct {
	baseURL     string
	apiKey      string
	callTimeout time.Duration
}

func NewClient(baseURL, apiKey string, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = 120 * time.Second
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, callTimeout: callTimeout}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate runs one completion call with the client's per-call timeout.
// HTTP 429 and 5xx map to transient errors, 4xx to invalid requests.
func (c *Client) Generate(ctx context.Context, spec ModelSpec, prompt string) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	body, err := request.ToJSONBody(chatRequest{
		Model:     spec.ModelID,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: spec.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/chat/completions", c.baseURL), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	var parsed chatResponse
	resp, err := request.Call(req, &parsed)
	if err != nil {
		return nil, errkind.Newf(errkind.Transient, "llm call failed: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errkind.Newf(errkind.Transient, "model %s rate limited", spec.ModelID)
	case resp.StatusCode >= 500:
		return nil, errkind.Newf(errkind.Transient, "model %s unavailable: status %d", spec.ModelID, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg := "request rejected"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, errkind.Newf(errkind.InvalidRequest, "model %s: %s", spec.ModelID, msg)
	}

	if len(parsed.Choices) == 0 {
		return nil, errkind.Newf(errkind.Transient, "model %s returned no choices", spec.ModelID)
	}

	return &Completion{
		Text: parsed.Choices[0].Message.Content,
		Usage: model.TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}
