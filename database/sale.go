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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/nexus/internal/apierror"
	"github.com/jerry-enebeli/nexus/model"
)

const saleColumns = `sale_id, customer_id, total, status, invoice_artifact, confirmation_code, signature_hash,
	failure_reason, invoice_attempts, needs_reconciliation, last_queued_at, created_at, updated_at`

// CreateSale writes the sale and its line items in one transaction. A sale
// created in PENDING_INVOICING is considered queued at its creation time.
func (d Datasource) CreateSale(ctx context.Context, sale *model.Sale) (*model.Sale, error) {
	ctx, span := otel.Tracer("nexus.database").Start(ctx, "Saving sale to db")
	defer span.End()

	if sale.SaleID == "" {
		sale.SaleID = model.GenerateUUIDWithSuffix("sale")
	}
	now := time.Now().UTC()
	sale.CreatedAt = now
	sale.UpdatedAt = now
	sale.LastQueuedAt = nil
	if sale.Status == model.StatusPendingInvoicing {
		sale.LastQueuedAt = &now
	}
	span.SetAttributes(attribute.String("sale.id", sale.SaleID))

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nexus.sales (sale_id, customer_id, total, status, invoice_attempts, needs_reconciliation, last_queued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sale.SaleID, sale.CustomerID, sale.Total, sale.Status, sale.InvoiceAttempts, false, sale.LastQueuedAt, sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, apierror.NewAPIError(apierror.ErrConflict, "Sale with this ID already exists", err)
			case "foreign_key_violation":
				return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Sale references an unknown customer", err)
			case "numeric_value_out_of_range":
				return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Sale total is too large", err)
			}
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create sale", err)
	}

	for i, item := range sale.LineItems {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO nexus.sale_line_items (sale_id, position, product_id, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, sale.SaleID, i, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "numeric_value_out_of_range" {
				return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Sale line item amount is too large", err)
			}
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create sale line item", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit sale", err)
	}

	return sale, nil
}

func scanSale(row interface{ Scan(dest ...any) error }) (*model.Sale, error) {
	sale := &model.Sale{}
	var (
		customerID       sql.NullString
		confirmationCode sql.NullString
		signatureHash    sql.NullString
		failureReason    sql.NullString
		lastQueuedAt     sql.NullTime
	)

	err := row.Scan(&sale.SaleID, &customerID, &sale.Total, &sale.Status, &sale.InvoiceArtifact,
		&confirmationCode, &signatureHash, &failureReason, &sale.InvoiceAttempts,
		&sale.NeedsReconciliation, &lastQueuedAt, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if customerID.Valid {
		sale.CustomerID = &customerID.String
	}
	sale.ConfirmationCode = confirmationCode.String
	sale.SignatureHash = signatureHash.String
	sale.FailureReason = failureReason.String
	if lastQueuedAt.Valid {
		sale.LastQueuedAt = &lastQueuedAt.Time
	}
	return sale, nil
}

// GetSale reads a sale and its ordered line items straight from Postgres.
func (d Datasource) GetSale(ctx context.Context, saleID string) (*model.Sale, error) {
	ctx, span := otel.Tracer("nexus.database").Start(ctx, "Getting sale from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM nexus.sales WHERE sale_id = $1`, saleID)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Sale with ID '%s' not found", saleID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve sale", err)
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, subtotal
		FROM nexus.sale_line_items
		WHERE sale_id = $1
		ORDER BY position
	`, saleID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve sale line items", err)
	}
	defer rows.Close()

	sale.LineItems = []model.LineItem{}
	for rows.Next() {
		var item model.LineItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan sale line item", err)
		}
		sale.LineItems = append(sale.LineItems, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over sale line items", err)
	}

	return sale, nil
}

// ConditionalUpdateSale moves a sale from expected to mutation.Status. The write
// is a compare-and-set on the status column, so concurrent writers cannot both
// win and a resolved sale is never overwritten.
func (d Datasource) ConditionalUpdateSale(ctx context.Context, saleID string, expected model.SaleStatus, mutation model.SaleMutation) (bool, error) {
	ctx, span := otel.Tracer("nexus.database").Start(ctx, "Conditionally updating sale status")
	defer span.End()
	span.SetAttributes(
		attribute.String("sale.id", saleID),
		attribute.String("sale.expected_status", string(expected)),
		attribute.String("sale.target_status", string(mutation.Status)),
	)

	if !model.CanTransition(expected, mutation.Status) {
		return false, apierror.NewAPIError(apierror.ErrBadRequest,
			fmt.Sprintf("cannot move sale from %s to %s", expected, mutation.Status),
			fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, expected, mutation.Status))
	}

	var (
		result sql.Result
		err    error
	)
	now := time.Now().UTC()
	switch mutation.Status {
	case model.StatusInvoiced:
		result, err = d.Conn.ExecContext(ctx, `
			UPDATE nexus.sales
			SET status = $1, invoice_artifact = $2, confirmation_code = $3, signature_hash = $4,
				needs_reconciliation = FALSE, updated_at = $7
			WHERE sale_id = $5 AND status = $6
		`, mutation.Status, mutation.InvoiceArtifact, mutation.ConfirmationCode, mutation.SignatureHash, saleID, expected, now)
	case model.StatusFailedDeadLetter:
		result, err = d.Conn.ExecContext(ctx, `
			UPDATE nexus.sales
			SET status = $1, failure_reason = $2, needs_reconciliation = FALSE, updated_at = $5
			WHERE sale_id = $3 AND status = $4
		`, mutation.Status, mutation.FailureReason, saleID, expected, now)
	default:
		result, err = d.Conn.ExecContext(ctx, `
			UPDATE nexus.sales
			SET status = $1, updated_at = $4
			WHERE sale_id = $2 AND status = $3
		`, mutation.Status, saleID, expected, now)
	}
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update sale", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected == 1, nil
}

// RecordInvoiceAttempt persists the attempt counter of a job about to be
// retried. The counter only grows, and it is written only while the sale is
// still awaiting invoicing.
func (d Datasource) RecordInvoiceAttempt(ctx context.Context, saleID string, attempts int) error {
	ctx, span := otel.Tracer("nexus.database").Start(ctx, "Recording invoice attempt")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE nexus.sales
		SET invoice_attempts = GREATEST(invoice_attempts, $2), last_queued_at = $3, updated_at = $3
		WHERE sale_id = $1 AND status = $4
	`, saleID, attempts, time.Now().UTC(), model.StatusPendingInvoicing)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record invoice attempt", err)
	}
	return nil
}
