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
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/nexus/model"
)

// promoteBatch bounds how many due jobs a single dequeue moves to the ready list.
const promoteBatch = 100

// promoteScript moves due members of the delayed set (KEYS[2]) to the tail of
// the ready list (KEYS[1]) in one atomic step.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, job in ipairs(due) do
	redis.call('ZREM', KEYS[2], job)
	redis.call('RPUSH', KEYS[1], job)
end
return #due
`)

// InvoiceQueue is the durable hand-off between checkout and the invoicing
// workers: a Redis list of ready jobs plus a sorted set of jobs waiting out a
// retry delay. Delivery is at-least-once with possible loss; a job popped by a
// worker that dies before updating the sale is recovered by the reconciliation
// sweep. No ordering is kept across retries.
type InvoiceQueue struct {
	client  redis.UniversalClient
	name    string
	delayed string
}

func NewInvoiceQueue(client redis.UniversalClient, name string) *InvoiceQueue {
	return &InvoiceQueue{
		client:  client,
		name:    name,
		delayed: name + ":delayed",
	}
}

// Enqueue appends job to the ready list. Broker errors are returned as-is and
// never retried here.
func (q *InvoiceQueue) Enqueue(ctx context.Context, job model.InvoiceJob) error {
	ctx, span := tracer.Start(ctx, "Adding invoice job to Redis queue")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", job.SaleID), attribute.Int("job.attempts", job.Attempts))

	payload, err := job.ToJSON()
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.name, payload).Err()
}

// EnqueueIn makes job visible to workers once delay has elapsed. A non-positive
// delay is a plain Enqueue.
func (q *InvoiceQueue) EnqueueIn(ctx context.Context, job model.InvoiceJob, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}

	ctx, span := tracer.Start(ctx, "Scheduling invoice job retry")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", job.SaleID), attribute.Int64("job.delay_ms", delay.Milliseconds()))

	payload, err := job.ToJSON()
	if err != nil {
		return err
	}
	due := time.Now().Add(delay).UnixMilli()
	return q.client.ZAdd(ctx, q.delayed, redis.Z{Score: float64(due), Member: payload}).Err()
}

// promoteDue moves every delayed job whose due time has passed onto the ready list.
func (q *InvoiceQueue) promoteDue(ctx context.Context) (int64, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return promoteScript.Run(ctx, q.client, []string{q.name, q.delayed}, now, promoteBatch).Int64()
}

// Dequeue blocks for at most timeout waiting for a ready job. ok is false when
// the wait ended without one. Malformed payloads are logged and dropped.
func (q *InvoiceQueue) Dequeue(ctx context.Context, timeout time.Duration) (job model.InvoiceJob, ok bool, err error) {
	if _, err := q.promoteDue(ctx); err != nil {
		return model.InvoiceJob{}, false, err
	}

	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return model.InvoiceJob{}, false, nil
	}
	if err != nil {
		return model.InvoiceJob{}, false, err
	}

	// BLPOP answers [key, value].
	job, err = model.ParseInvoiceJob([]byte(result[1]))
	if err != nil {
		logrus.WithField("payload", result[1]).WithError(err).Error("dropping malformed invoice job")
		return model.InvoiceJob{}, false, nil
	}
	return job, true, nil
}

// Len reports how many jobs are ready and how many are waiting out a delay.
func (q *InvoiceQueue) Len(ctx context.Context) (ready int64, delayed int64, err error) {
	pipe := q.client.Pipeline()
	readyCmd := pipe.LLen(ctx, q.name)
	delayedCmd := pipe.ZCard(ctx, q.delayed)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return readyCmd.Val(), delayedCmd.Val(), nil
}
