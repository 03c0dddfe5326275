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

package database

import (
	"context"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/nexus/internal/apierror"
	"github.com/jerry-enebeli/nexus/model"
)

// GetProductsByIDs loads the catalog entries for the given ids. Unknown ids are
// simply absent from the result.
func (d Datasource) GetProductsByIDs(ctx context.Context, productIDs []string) ([]model.Product, error) {
	ctx, span := otel.Tracer("nexus.database").Start(ctx, "Fetching products by ids")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT product_id, sku, name, base_price, stock, created_at
		FROM nexus.products
		WHERE product_id = ANY($1)
	`, pq.Array(productIDs))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve products", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ProductID, &p.SKU, &p.Name, &p.BasePrice, &p.Stock, &p.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over products", err)
	}
	return products, nil
}
