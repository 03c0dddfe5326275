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
	"embed"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/nexus/config"
	"github.com/jerry-enebeli/nexus/database"
	"github.com/jerry-enebeli/nexus/internal/cache"
	redis_db "github.com/jerry-enebeli/nexus/internal/redis-db"
	"github.com/jerry-enebeli/nexus/model"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("nexus")

// Nexus wires the sale store, the invoicing queue and the invoice generator
// together. One instance owns the process-wide Redis and webhook clients.
type Nexus struct {
	config     *config.Configuration
	datasource database.IDataSource
	redis      redis.UniversalClient
	queue      *InvoiceQueue
	catalog    *Catalog
	generator  InvoiceGenerator
	retry      RetryPolicy
	webhooks   *Webhooks
	closers    []func() error
}

// NewNexus builds an instance from the loaded configuration, connecting to
// Redis and pointing the generator at the configured invoicing authority.
func NewNexus(db database.IDataSource) (*Nexus, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	redisClient, err := redis_db.NewRedisClient([]string{configuration.Redis.Dns}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	webhooks, err := NewWebhooks(configuration)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	n := New(configuration, db, redisClient.Client(), NewHTTPInvoiceGenerator(configuration.Invoicing))
	n.webhooks = webhooks
	n.closers = append(n.closers, webhooks.Close, redisClient.Close)
	return n, nil
}

// New assembles an instance from already opened dependencies.
func New(conf *config.Configuration, db database.IDataSource, rdb redis.UniversalClient, generator InvoiceGenerator) *Nexus {
	return &Nexus{
		config:     conf,
		datasource: db,
		redis:      rdb,
		queue:      NewInvoiceQueue(rdb, conf.Queue.InvoiceQueue),
		catalog:    NewCatalog(db, cache.NewCache(rdb, conf.Catalog.CacheTTL), conf.Catalog.CacheTTL),
		generator:  generator,
		retry:      NewRetryPolicy(conf.Queue),
	}
}

// Queue exposes the invoicing queue.
func (n *Nexus) Queue() *InvoiceQueue {
	return n.queue
}

// EnqueueInvoicing queues a fresh invoicing job for the sale.
func (n *Nexus) EnqueueInvoicing(ctx context.Context, saleID string) error {
	return n.queue.Enqueue(ctx, model.InvoiceJob{SaleID: saleID})
}

// GetSale reads the current state of a sale from the store. Status reads are
// never served from cache.
func (n *Nexus) GetSale(ctx context.Context, saleID string) (*model.Sale, error) {
	return n.datasource.GetSale(ctx, saleID)
}

// Close releases the clients this instance opened.
func (n *Nexus) Close() error {
	var err error
	for _, closeFn := range n.closers {
		err = errors.Join(err, closeFn())
	}
	n.closers = nil
	return err
}
