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
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/nexus/config"
	redis_db "github.com/jerry-enebeli/nexus/internal/redis-db"
	"github.com/jerry-enebeli/nexus/internal/request"
	"github.com/jerry-enebeli/nexus/model"
)

const (
	EventSaleInvoiced     = "sale.invoiced"
	EventSaleDeadLettered = "sale.dead_lettered"
	EventSaleConfirmed    = "sale.confirmed"
)

// NewWebhook represents the structure of a webhook notification.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// SaleEvent is the payload of every sale webhook.
type SaleEvent struct {
	SaleID           string           `json:"sale_id"`
	Status           model.SaleStatus `json:"status"`
	Attempts         int              `json:"attempts"`
	ConfirmationCode string           `json:"confirmation_code,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// Webhooks enqueues outgoing notifications on the asynq webhook queue, so a
// slow receiver never delays invoicing.
type Webhooks struct {
	client *asynq.Client
	queue  string
	url    string
}

func NewWebhooks(conf *config.Configuration) (*Webhooks, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	})
	return &Webhooks{client: client, queue: conf.Queue.WebhookQueue, url: conf.Notification.Webhook.Url}, nil
}

// Send enqueues a webhook. It is a no-op when no webhook url is configured.
func (w *Webhooks) Send(ctx context.Context, newWebhook NewWebhook) error {
	if w == nil || w.url == "" {
		return nil
	}

	payload, err := json.Marshal(newWebhook)
	if err != nil {
		return err
	}
	task := asynq.NewTask(w.queue, payload, asynq.Queue(w.queue), asynq.MaxRetry(5))
	info, err := w.client.EnqueueContext(ctx, task)
	if err != nil {
		logrus.WithError(err).WithField("event", newWebhook.Event).Error("failed to enqueue webhook")
		return err
	}
	logrus.WithFields(logrus.Fields{"event": newWebhook.Event, "task_id": info.ID}).Debug("webhook enqueued")
	return nil
}

func (w *Webhooks) Close() error {
	if w == nil {
		return nil
	}
	return w.client.Close()
}

// emit enqueues a sale webhook. Failures are logged and never fail the caller.
func (n *Nexus) emit(ctx context.Context, event string, payload SaleEvent) {
	payload.Timestamp = time.Now().UTC()
	if err := n.webhooks.Send(ctx, NewWebhook{Event: event, Payload: payload}); err != nil {
		logrus.WithError(err).WithField("sale_id", payload.SaleID).Warn("failed to send sale webhook")
	}
}

// processHTTP delivers a webhook to the configured receiver.
func processHTTP(ctx context.Context, conf *config.Configuration, data NewWebhook) error {
	body, err := request.ToJsonReq(data)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, body)
	if err != nil {
		return err
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	_, err = request.Call(req, nil)
	return err
}

// ProcessWebhook is the asynq handler of the webhook queue. Returning an error
// lets asynq retry the delivery.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("dropping malformed webhook task")
		return nil
	}

	if err := processHTTP(ctx, conf, payload); err != nil {
		logrus.WithError(err).WithField("event", payload.Event).Warn("webhook delivery failed")
		return err
	}
	logrus.WithField("event", payload.Event).Info("webhook delivered")
	return nil
}
