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

package nexus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/nexus/config"
	"github.com/jerry-enebeli/nexus/model"
)

func webhookConfig(redisAddr, url string) *config.Configuration {
	return &config.Configuration{
		Redis: config.RedisConfig{Dns: redisAddr},
		Queue: config.QueueConfig{WebhookQueue: config.DefaultWebhookQueue},
		Notification: config.Notification{
			Webhook: config.WebhookConfig{Url: url, Headers: map[string]string{"X-Signature": "s3cret"}},
		},
	}
}

func TestWebhooksSend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	webhooks, err := NewWebhooks(webhookConfig(mr.Addr(), "https://hooks.example.test/nexus"))
	require.NoError(t, err)
	defer webhooks.Close()

	err = webhooks.Send(context.Background(), NewWebhook{
		Event:   EventSaleInvoiced,
		Payload: SaleEvent{SaleID: "sale_1", Status: model.StatusInvoiced},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())
}

func TestWebhooksSendWithoutURL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	webhooks, err := NewWebhooks(webhookConfig(mr.Addr(), ""))
	require.NoError(t, err)
	defer webhooks.Close()

	require.NoError(t, webhooks.Send(context.Background(), NewWebhook{Event: EventSaleInvoiced}))
	assert.Empty(t, mr.Keys())

	var nilWebhooks *Webhooks
	assert.NoError(t, nilWebhooks.Send(context.Background(), NewWebhook{Event: EventSaleInvoiced}))
}

func TestProcessWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	url := "https://hooks.example.test/nexus"
	config.MockConfig(webhookConfig("localhost:6379", url))

	var received NewWebhook
	httpmock.RegisterResponder(http.MethodPost, url, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "s3cret", req.Header.Get("X-Signature"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&received))
		return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
	})

	payload, err := json.Marshal(NewWebhook{Event: EventSaleDeadLettered, Payload: SaleEvent{SaleID: "sale_1", Reason: "rejected"}})
	require.NoError(t, err)

	err = ProcessWebhook(context.Background(), asynq.NewTask(config.DefaultWebhookQueue, payload))
	require.NoError(t, err)
	assert.Equal(t, EventSaleDeadLettered, received.Event)
}

func TestProcessWebhook_ReceiverDown(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	url := "https://hooks.example.test/nexus"
	config.MockConfig(webhookConfig("localhost:6379", url))
	httpmock.RegisterResponder(http.MethodPost, url, httpmock.NewErrorResponder(errors.New("connection refused")))

	payload, err := json.Marshal(NewWebhook{Event: EventSaleInvoiced})
	require.NoError(t, err)

	err = ProcessWebhook(context.Background(), asynq.NewTask(config.DefaultWebhookQueue, payload))
	assert.Error(t, err)
}
