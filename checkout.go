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

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/nexus/internal/apierror"
	"github.com/jerry-enebeli/nexus/model"
)

// MaxLineQuantity caps a single line so totals stay within the NUMERIC(14,2)
// sale columns.
const MaxLineQuantity = 10000

// CheckoutItem is one requested product line. A client supplied unit price is
// accepted for compatibility but never charged; prices come from the catalog.
type CheckoutItem struct {
	ProductID string
	Quantity  int64
	UnitPrice *decimal.Decimal
}

func (i CheckoutItem) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ProductID, validation.Required),
		validation.Field(&i.Quantity, validation.Required, validation.Min(int64(1)), validation.Max(int64(MaxLineQuantity))),
	)
}

// CheckoutRequest is a cart submitted for purchase. DeferredPayment sales wait
// in PENDING_PAYMENT for confirmation over the messaging channel and are not
// invoiced by the pipeline.
type CheckoutRequest struct {
	CustomerID      *string
	Items           []CheckoutItem
	DeferredPayment bool
}

func (r CheckoutRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Items, validation.Required.Error("at least one line item is required")),
		validation.Field(&r.CustomerID, validation.NilOrNotEmpty),
	)
}

// CheckoutResult is returned to the buyer as soon as the sale is stored.
type CheckoutResult struct {
	SaleID string           `json:"sale_id"`
	Total  decimal.Decimal  `json:"total"`
	Status model.SaleStatus `json:"status"`
}

// Checkout prices the cart, stores the sale and queues it for invoicing. The
// outcome depends only on the sale being stored: if the job cannot be queued
// the sale is flagged for the reconciliation sweep and checkout still succeeds.
func (n *Nexus) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := tracer.Start(ctx, "Checkout")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	productIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	prices, err := n.catalog.ResolvePrices(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	lineItems := make([]model.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		lineItems = append(lineItems, model.NewLineItem(item.ProductID, item.Quantity, prices[item.ProductID]))
	}

	status := model.StatusPendingInvoicing
	if req.DeferredPayment {
		status = model.StatusPendingPayment
	}

	sale, err := n.datasource.CreateSale(ctx, &model.Sale{
		CustomerID: req.CustomerID,
		LineItems:  lineItems,
		Total:      model.ComputeTotal(lineItems),
		Status:     status,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("sale.id", sale.SaleID), attribute.String("sale.status", string(sale.Status)))

	if sale.Status == model.StatusPendingInvoicing {
		if err := n.EnqueueInvoicing(ctx, sale.SaleID); err != nil {
			log := logrus.WithField("sale_id", sale.SaleID)
			log.WithError(err).Error("failed to enqueue invoicing job, deferring to reconciliation")
			if markErr := n.datasource.MarkForReconciliation(ctx, sale.SaleID); markErr != nil {
				log.WithError(markErr).Error("failed to flag sale for reconciliation")
			}
		}
	}

	return &CheckoutResult{SaleID: sale.SaleID, Total: sale.Total, Status: sale.Status}, nil
}
