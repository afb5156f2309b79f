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
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/vidigest/vidigest/internal/errkind"
)

func TestListRecent(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://feed.internal/channels/ch-7/videos",
		httpmock.NewStringResponder(200, `[
			{"video_id": "v123", "title": "Deep Learning Intro"},
			{"video_id": "v124", "title": "Deep Learning Part 2"}
		]`))

	c := NewClient("https://feed.internal", 5*time.Second)
	refs, err := c.ListRecent(context.Background(), "ch-7")
	assert.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Equal(t, "v123", refs[0].VideoID)
}

func TestFetch_Success(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://feed.internal/videos/v123/captions",
		httpmock.NewStringResponder(200, `{
			"video_id": "v123",
			"channel_id": "ch-7",
			"title": "Deep Learning Intro",
			"segments": [
				{"offset": 0, "text": "Deep learning is"},
				{"offset": 2000000000, "text": "learning is powerful"}
			]
		}`))

	c := NewClient("https://feed.internal", 5*time.Second)
	capture, err := c.Fetch(context.Background(), "v123")
	assert.NoError(t, err)
	assert.Equal(t, "ch-7", capture.ChannelID)
	assert.Len(t, capture.Segments, 2)
}

func TestFetch_PermanentlyRestricted(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://feed.internal/videos/v999/captions",
		httpmock.NewStringResponder(403, `{"error": "members only"}`))

	c := NewClient("https://feed.internal", 5*time.Second)
	_, err := c.Fetch(context.Background(), "v999")
	assert.True(t, errkind.Is(err, errkind.PermanentContent))
}

func TestFetch_NotAvailableYet(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://feed.internal/videos/v888/captions",
		httpmock.NewStringResponder(404, ``))

	c := NewClient("https://feed.internal", 5*time.Second)
	_, err := c.Fetch(context.Background(), "v888")
	assert.True(t, errkind.Is(err, errkind.TemporaryContent))
}

func TestFetch_ServerErrorIsTransient(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://feed.internal/videos/v777/captions",
		httpmock.NewStringResponder(500, ``))

	c := NewClient("https://feed.internal", 5*time.Second)
	_, err := c.Fetch(context.Background(), "v777")
	assert.True(t, errkind.IsTransient(err))
}
