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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/nexus/database"
	"github.com/jerry-enebeli/nexus/internal/apierror"
	"github.com/jerry-enebeli/nexus/internal/cache"
	"github.com/jerry-enebeli/nexus/model"
)

const priceCacheKeyPrefix = "nexus:catalog:price:"

var (
	lowStockMarkup    = decimal.RequireFromString("1.10")
	mediumStockMarkup = decimal.RequireFromString("1.05")
)

// Catalog resolves the price charged for a product at checkout.
type Catalog struct {
	datasource database.IDataSource
	cache      cache.Cache
	ttl        time.Duration
}

func NewCatalog(datasource database.IDataSource, c cache.Cache, ttl time.Duration) *Catalog {
	return &Catalog{datasource: datasource, cache: c, ttl: ttl}
}

// PriceFor applies the stock based markup to the product's base price: 10%
// under 10 units, 5% under 50, none otherwise. The result has two decimals.
func PriceFor(p model.Product) decimal.Decimal {
	price := p.BasePrice
	switch {
	case p.Stock < 10:
		price = price.Mul(lowStockMarkup)
	case p.Stock < 50:
		price = price.Mul(mediumStockMarkup)
	}
	return price.Round(2)
}

// ResolvePrices returns the current price of every requested product. An id
// missing from the catalog is an input error.
func (c *Catalog) ResolvePrices(ctx context.Context, productIDs []string) (map[string]decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Resolving catalog prices")
	defer span.End()

	prices := make(map[string]decimal.Decimal, len(productIDs))
	var missing []string
	for _, id := range productIDs {
		if _, seen := prices[id]; seen {
			continue
		}
		if price, ok := c.cachedPrice(ctx, id); ok {
			prices[id] = price
			continue
		}
		prices[id] = decimal.Decimal{}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return prices, nil
	}

	products, err := c.datasource.GetProductsByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}

	found := make(map[string]bool, len(products))
	for _, p := range products {
		price := PriceFor(p)
		prices[p.ProductID] = price
		found[p.ProductID] = true
		c.storePrice(ctx, p.ProductID, price)
	}
	for _, id := range missing {
		if !found[id] {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown product %q", id), nil)
		}
	}
	return prices, nil
}

func (c *Catalog) cachedPrice(ctx context.Context, productID string) (decimal.Decimal, bool) {
	if c.cache == nil {
		return decimal.Decimal{}, false
	}
	var raw string
	err := c.cache.Get(ctx, priceCacheKeyPrefix+productID, &raw)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logrus.WithError(err).WithField("product_id", productID).Warn("price cache read failed")
		}
		return decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}

func (c *Catalog) storePrice(ctx context.Context, productID string, price decimal.Decimal) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, priceCacheKeyPrefix+productID, price.StringFixed(2), c.ttl); err != nil {
		logrus.WithError(err).WithField("product_id", productID).Warn("price cache write failed")
	}
}
