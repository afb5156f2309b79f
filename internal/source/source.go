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

package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vidigest/vidigest/internal/errkind"
	"github.com/vidigest/vidigest/internal/request"
	"github.com/vidigest/vidigest/model"
)

// VideoRef is one candidate work item in a channel's discovery feed, in
// discovery order.
type VideoRef struct {
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
}

// Capture is the raw material for one video: its metadata and timed caption
// track. How the upstream produces it is opaque to the pipeline.
type Capture struct {
	VideoID   string                 `json:"video_id"`
	ChannelID string                 `json:"channel_id"`
	Title     string                 `json:"title"`
	Segments  []model.CaptionSegment `json:"segments"`
}

// Collaborator is the content-discovery service the coordinator pulls work
// from. Fetch surfaces restriction states as classified errors:
// temporarily gated content as TEMPORARY_CONTENT, permanently restricted
// content as PERMANENT_CONTENT.
type Collaborator interface {
	ListRecent(ctx context.Context, channelID string) ([]VideoRef, error)
	Fetch(ctx context.Context, videoID string) (*Capture, error)
}

// Client is an HTTP implementation of Collaborator against the caption-feed
// service.
type Client struct {
	baseURL     string
	callTimeout time.Duration
}

func NewClient(baseURL string, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Client{baseURL: baseURL, callTimeout: callTimeout}
}

func (c *Client) ListRecent(ctx context.Context, channelID string) ([]VideoRef, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/channels/%s/videos", c.baseURL, channelID), nil)
	if err != nil {
		return nil, err
	}

	var refs []VideoRef
	resp, err := request.Call(req, &refs)
	if err != nil {
		return nil, errkind.Newf(errkind.Transient, "list videos for %s: %v", channelID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errkind.Newf(errkind.Transient, "list videos for %s: status %d", channelID, resp.StatusCode)
	}
	return refs, nil
}

func (c *Client) Fetch(ctx context.Context, videoID string) (*Capture, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/videos/%s/captions", c.baseURL, videoID), nil)
	if err != nil {
		return nil, err
	}

	var capture Capture
	resp, err := request.Call(req, &capture)
	if err != nil {
		return nil, errkind.Newf(errkind.Transient, "fetch captions for %s: %v", videoID, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return &capture, nil
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusGone:
		// Members-only, region-blocked or deleted content never becomes
		// available again.
		return nil, errkind.Newf(errkind.PermanentContent, "video %s is permanently restricted", videoID)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusTooEarly:
		// Premieres and early-access gating resolve on a later run.
		return nil, errkind.Newf(errkind.TemporaryContent, "video %s is not available yet", videoID)
	default:
		return nil, errkind.Newf(errkind.Transient, "fetch captions for %s: status %d", videoID, resp.StatusCode)
	}
}
