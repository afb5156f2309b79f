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

package notification

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vidigest/vidigest/config"
	"github.com/vidigest/vidigest/internal/request"
)

// SlackNotification posts an operator alert to the configured Slack webhook.
func SlackNotification(err error) {
	conf, confErr := config.Fetch()
	if confErr != nil {
		logrus.Error(confErr)
		return
	}

	data := json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{
				"type": "header",
				"text": {
					"type": "plain_text",
					"text": "Vidigest pipeline alert",
					"emoji": true
				}
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Error:*\n%v"
					},
					{
						"type": "mrkdwn",
						"text": "*Time:*\n%v"
					}
				]
			}
		]
	}`, err.Error(), time.Now().Format(time.RFC822)))

	payload, marshalErr := request.ToJSONBody(&data)
	if marshalErr != nil {
		logrus.Error(marshalErr)
		return
	}

	req, reqErr := http.NewRequest(http.MethodPost, conf.Notification.Slack.WebhookUrl, payload)
	if reqErr != nil {
		logrus.Error(reqErr)
		return
	}

	var response map[string]interface{}
	if _, callErr := request.Call(req, &response); callErr != nil {
		logrus.Error(callErr)
	}
}

// WebhookNotification posts an operator alert to the configured generic
// webhook with any configured headers.
func WebhookNotification(err error) {
	conf, confErr := config.Fetch()
	if confErr != nil {
		logrus.Error(confErr)
		return
	}

	data := map[string]interface{}{"error": err.Error(), "at": time.Now().Format(time.RFC3339)}
	payload, marshalErr := request.ToJSONBody(&data)
	if marshalErr != nil {
		logrus.Error(marshalErr)
		return
	}

	req, reqErr := http.NewRequest(http.MethodPost, conf.Notification.Webhook.Url, payload)
	if reqErr != nil {
		logrus.Error(reqErr)
		return
	}
	for k, v := range conf.Notification.Webhook.Headers {
		req.Header.Set(k, v)
	}

	var response map[string]interface{}
	if _, callErr := request.Call(req, &response); callErr != nil {
		logrus.Error(callErr)
	}
}

// NotifyError reports a pipeline error through every configured operator
// channel. Dead-lettered deliveries and channel configuration failures land
// here; it never blocks or fails the caller.
func NotifyError(systemError error) {
	logrus.Error(systemError)

	conf, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}

	if conf.Notification.Slack.WebhookUrl != "" {
		SlackNotification(systemError)
	}
	if conf.Notification.Webhook.Url != "" {
		WebhookNotification(systemError)
	}
}
