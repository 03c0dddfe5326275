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
	"time"

	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/nexus/internal/apierror"
	"github.com/jerry-enebeli/nexus/model"
)

// MarkForReconciliation flags a sale whose job could not be enqueued.
func (d Datasource) MarkForReconciliation(ctx context.Context, saleID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE nexus.sales
		SET needs_reconciliation = TRUE, updated_at = $2
		WHERE sale_id = $1
	`, saleID, time.Now().UTC())
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to flag sale for reconciliation", err)
	}
	return nil
}

// MarkQueued records that a job for the sale has just been enqueued. Queue
// times are written from the application clock in UTC, like created_at, so the
// stuck check compares like with like.
func (d Datasource) MarkQueued(ctx context.Context, saleID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE nexus.sales
		SET last_queued_at = $2, needs_reconciliation = FALSE, updated_at = $2
		WHERE sale_id = $1
	`, saleID, time.Now().UTC())
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark sale as queued", err)
	}
	return nil
}

// GetStuckSales returns sales still awaiting invoicing that were flagged, or
// whose last enqueue is older than olderThan. Only the columns needed to
// rebuild a job are loaded.
func (d Datasource) GetStuckSales(ctx context.Context, olderThan time.Time, limit int) ([]*model.Sale, error) {
	ctx, span := otel.Tracer("nexus.database").Start(ctx, "Fetching stuck sales")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT sale_id, invoice_attempts, needs_reconciliation, created_at
		FROM nexus.sales
		WHERE status = $1
		AND (needs_reconciliation OR COALESCE(last_queued_at, created_at) < $2)
		ORDER BY created_at
		LIMIT $3
	`, model.StatusPendingInvoicing, olderThan, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stuck sales", err)
	}
	defer rows.Close()

	sales := []*model.Sale{}
	for rows.Next() {
		sale := &model.Sale{Status: model.StatusPendingInvoicing}
		if err := rows.Scan(&sale.SaleID, &sale.InvoiceAttempts, &sale.NeedsReconciliation, &sale.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan stuck sale", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over stuck sales", err)
	}
	return sales, nil
}
