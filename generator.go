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
	"net/http"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/nexus/config"
	"github.com/jerry-enebeli/nexus/internal/request"
	"github.com/jerry-enebeli/nexus/model"
)

// InvoiceGenerator issues the invoice for a sale with the external authority.
// Implementations report failures as *TransientInvoiceError or
// *PermanentInvoiceError; any other error is treated as transient.
type InvoiceGenerator interface {
	Generate(ctx context.Context, sale *model.Sale) (*model.Invoice, error)
}

// TransientInvoiceError is a failure that may succeed on a later attempt.
type TransientInvoiceError struct {
	Reason string
	Err    error
}

func (e *TransientInvoiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient invoice failure: %s: %v", e.Reason, e.Err)
	}
	return "transient invoice failure: " + e.Reason
}

func (e *TransientInvoiceError) Unwrap() error { return e.Err }

// PermanentInvoiceError is a failure no retry can fix, such as the authority
// rejecting the sale's data.
type PermanentInvoiceError struct {
	Reason string
	Err    error
}

func (e *PermanentInvoiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent invoice failure: %s: %v", e.Reason, e.Err)
	}
	return "permanent invoice failure: " + e.Reason
}

func (e *PermanentInvoiceError) Unwrap() error { return e.Err }

// IsPermanentInvoiceError reports whether err must not be retried.
func IsPermanentInvoiceError(err error) bool {
	var permanent *PermanentInvoiceError
	return errors.As(err, &permanent)
}

type authorityLineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type authorityRequest struct {
	SaleID     string              `json:"sale_id"`
	CustomerID *string             `json:"customer_id,omitempty"`
	LineItems  []authorityLineItem `json:"line_items"`
	Total      decimal.Decimal     `json:"total"`
	IssuedAt   string              `json:"created_at"`
}

// HTTPInvoiceGenerator posts the sale to the invoicing authority's HTTP API.
// 2xx yields the invoice, 4xx is permanent, and 5xx or a network error is
// transient. 408 and 429 are treated as transient too.
type HTTPInvoiceGenerator struct {
	URL     string
	Headers map[string]string
	Client  *http.Client
}

func NewHTTPInvoiceGenerator(conf config.InvoicingConfig) *HTTPInvoiceGenerator {
	return &HTTPInvoiceGenerator{
		URL:     conf.AuthorityURL,
		Headers: conf.Headers,
		Client:  &http.Client{Timeout: conf.Timeout},
	}
}

func (g *HTTPInvoiceGenerator) Generate(ctx context.Context, sale *model.Sale) (*model.Invoice, error) {
	ctx, span := tracer.Start(ctx, "Requesting invoice from authority")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", sale.SaleID))

	if g.URL == "" {
		return nil, &TransientInvoiceError{Reason: "invoicing authority url is not configured"}
	}

	items := make([]authorityLineItem, 0, len(sale.LineItems))
	for _, item := range sale.LineItems {
		items = append(items, authorityLineItem(item))
	}
	body, err := request.ToJsonReq(authorityRequest{
		SaleID:     sale.SaleID,
		CustomerID: sale.CustomerID,
		LineItems:  items,
		Total:      sale.Total,
		IssuedAt:   sale.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
	if err != nil {
		return nil, &PermanentInvoiceError{Reason: "sale could not be encoded", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, body)
	if err != nil {
		return nil, &PermanentInvoiceError{Reason: "invalid authority request", Err: err}
	}
	for key, value := range g.Headers {
		req.Header.Set(key, value)
	}

	invoice := &model.Invoice{}
	_, err = request.Do(g.Client, req, invoice)
	if err != nil {
		return nil, classifyAuthorityError(err)
	}
	if len(invoice.Artifact) == 0 || invoice.ConfirmationCode == "" || invoice.SignatureHash == "" {
		return nil, &TransientInvoiceError{Reason: "authority response is missing the artifact, confirmation code or signature"}
	}
	return invoice, nil
}

func classifyAuthorityError(err error) error {
	var statusErr *request.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout, statusErr.StatusCode == http.StatusTooManyRequests:
			return &TransientInvoiceError{Reason: "authority asked to retry", Err: err}
		case statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
			return &PermanentInvoiceError{Reason: "authority rejected the sale", Err: err}
		}
		return &TransientInvoiceError{Reason: "authority unavailable", Err: err}
	}
	return &TransientInvoiceError{Reason: "authority unreachable", Err: err}
}
