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

package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vidigest/vidigest/internal/errkind"
	"github.com/vidigest/vidigest/internal/request"
)

const defaultAPIBase = "https://api.telegram.org"

// Gateway is the messaging collaborator the delivery queue hands finished
// summaries to. Target is a chat or channel identifier.
type Gateway interface {
	Send(ctx context.Context, target, text string) error
}

// Client sends messages through the Telegram Bot API. Delivery may be
// retried by the queue, so duplicate sends are possible and accepted; these
// are notifications, not transactions.
type Client struct {
	apiBase     string
	botToken    string
	callTimeout time.Duration
}

func NewClient(botToken string, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Client{apiBase: defaultAPIBase, botToken: botToken, callTimeout: callTimeout}
}

// NewClientWithBase points the client at a non-default API host. Used by
// tests and by self-hosted bot API gateways.
func NewClientWithBase(apiBase, botToken string, callTimeout time.Duration) *Client {
	c := NewClient(botToken, callTimeout)
	c.apiBase = apiBase
	return c
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Send posts one message to target. HTTP 429 and 5xx responses come back as
// transient delivery errors so the queue reschedules them; other API
// rejections are delivery failures that still count against the retry budget.
func (c *Client) Send(ctx context.Context, target, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	body, err := request.ToJSONBody(sendMessageRequest{
		ChatID:    target,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}

	var parsed sendMessageResponse
	resp, err := request.Call(req, &parsed)
	if err != nil {
		return errkind.Newf(errkind.Transient, "telegram send to %s failed: %v", target, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errkind.Newf(errkind.Transient, "telegram send to %s: status %d", target, resp.StatusCode)
	case !parsed.OK:
		return errkind.Newf(errkind.Delivery, "telegram send to %s rejected: %s", target, parsed.Description)
	}
	return nil
}
