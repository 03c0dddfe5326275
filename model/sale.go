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

package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SaleStatus is a state of the sale state machine.
type SaleStatus string

const (
	StatusPendingPayment    SaleStatus = "PENDING_PAYMENT"
	StatusPendingInvoicing  SaleStatus = "PENDING_INVOICING"
	StatusInvoiced          SaleStatus = "INVOICED"
	StatusFailedDeadLetter  SaleStatus = "FAILED_DEAD_LETTER"
	StatusConfirmedExternal SaleStatus = "CONFIRMED_BY_EXTERNAL_CHANNEL"
)

// transitions lists every edge of the state graph. Anything missing is forbidden.
var transitions = map[SaleStatus][]SaleStatus{
	StatusPendingPayment:   {StatusConfirmedExternal},
	StatusPendingInvoicing: {StatusInvoiced, StatusFailedDeadLetter},
}

// ErrInvalidTransition is returned when a mutation would move a sale along an edge
// that does not exist in the state graph.
var ErrInvalidTransition = errors.New("invalid sale status transition")

// Valid reports whether s is a known status.
func (s SaleStatus) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPendingInvoicing, StatusInvoiced, StatusFailedDeadLetter, StatusConfirmedExternal:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s SaleStatus) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether a sale may move from one status to another.
func CanTransition(from, to SaleStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LineItem is one product line of a sale.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Sale is a customer order awaiting or having completed invoicing.
type Sale struct {
	ID                  int64           `json:"-"`
	SaleID              string          `json:"id"`
	CustomerID          *string         `json:"customer_id,omitempty"`
	LineItems           []LineItem      `json:"line_items"`
	Total               decimal.Decimal `json:"total"`
	Status              SaleStatus      `json:"status"`
	InvoiceArtifact     []byte          `json:"invoice_artifact,omitempty"`
	ConfirmationCode    string          `json:"confirmation_code,omitempty"`
	SignatureHash       string          `json:"signature_hash,omitempty"`
	FailureReason       string          `json:"failure_reason,omitempty"`
	InvoiceAttempts     int             `json:"invoice_attempts"`
	NeedsReconciliation bool            `json:"-"`
	LastQueuedAt        *time.Time      `json:"-"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// NewLineItem builds a line item and computes its subtotal.
func NewLineItem(productID string, quantity int64, unitPrice decimal.Decimal) LineItem {
	return LineItem{
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Subtotal:  unitPrice.Mul(decimal.NewFromInt(quantity)),
	}
}

// ComputeTotal returns the sum of the line item subtotals.
func ComputeTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// Validate checks the structural invariants of a stored sale: at least one line,
// positive quantities, non-negative prices, consistent subtotals and total.
func (s *Sale) Validate() error {
	if len(s.LineItems) == 0 {
		return errors.New("sale has no line items")
	}
	for i, item := range s.LineItems {
		if item.Quantity <= 0 {
			return fmt.Errorf("line item %d: quantity must be greater than zero", i)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("line item %d: unit price must not be negative", i)
		}
		if !item.Subtotal.Equal(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))) {
			return fmt.Errorf("line item %d: subtotal does not match quantity * unit price", i)
		}
	}
	if !s.Total.Equal(ComputeTotal(s.LineItems)) {
		return errors.New("sale total does not match the sum of line item subtotals")
	}
	return nil
}

// SaleMutation is the set of fields a conditional update may write. Only the
// fields relevant to the target status are persisted.
type SaleMutation struct {
	Status           SaleStatus
	InvoiceArtifact  []byte
	ConfirmationCode string
	SignatureHash    string
	FailureReason    string
}

// Invoiced builds the mutation that completes invoicing.
func Invoiced(invoice *Invoice) SaleMutation {
	return SaleMutation{
		Status:           StatusInvoiced,
		InvoiceArtifact:  invoice.Artifact,
		ConfirmationCode: invoice.ConfirmationCode,
		SignatureHash:    invoice.SignatureHash,
	}
}

// DeadLettered builds the mutation that parks a sale after invoicing gave up.
func DeadLettered(reason string) SaleMutation {
	return SaleMutation{Status: StatusFailedDeadLetter, FailureReason: reason}
}

// Invoice is what the invoicing authority returns for an accepted sale.
type Invoice struct {
	Artifact         []byte `json:"artifact"`
	ConfirmationCode string `json:"confirmation_code"`
	SignatureHash    string `json:"signature_hash"`
}
