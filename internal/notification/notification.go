/*
Copyright 2024 Blnk Finance Authors.

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
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/nexus/config"
	"github.com/jerry-enebeli/nexus/internal/request"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

// Slack posts operator alerts to an incoming webhook.
type Slack struct {
	WebhookURL string
	Client     *http.Client
}

func NewSlack(webhookURL string) *Slack {
	return &Slack{WebhookURL: webhookURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

func buildSlackMessage(title string, err error, at time.Time) slackMessage {
	return slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: title, Emoji: true}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: "*Error:*\n" + err.Error()}}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: "*Time:*\n" + at.Format(time.RFC822)}}},
	}}
}

// Send delivers one alert synchronously.
func (s *Slack) Send(ctx context.Context, title string, err error) error {
	payload, marshalErr := json.Marshal(buildSlackMessage(title, err, time.Now()))
	if marshalErr != nil {
		return marshalErr
	}

	body, reqErr := request.ToJsonReq(json.RawMessage(payload))
	if reqErr != nil {
		return reqErr
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, body)
	if reqErr != nil {
		return reqErr
	}

	// Slack answers "ok" as plain text, so the body is not decoded.
	_, callErr := request.Do(s.Client, req, nil)
	return callErr
}

// NotifyError logs systemError and, when a Slack webhook is configured, forwards
// it in the background so callers on hot paths never wait on Slack.
func NotifyError(systemError error) {
	logrus.Error(systemError)

	conf, err := config.Fetch()
	if err != nil {
		log.Println(err)
		return
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := NewSlack(conf.Notification.Slack.WebhookUrl).Send(ctx, "Error From Nexus 🐞", systemError); err != nil {
			logrus.WithError(err).Warn("failed to deliver slack notification")
		}
	}()
}
