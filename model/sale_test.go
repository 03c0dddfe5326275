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
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SaleStatus
		want     bool
	}{
		{StatusPendingInvoicing, StatusInvoiced, true},
		{StatusPendingInvoicing, StatusFailedDeadLetter, true},
		{StatusPendingPayment, StatusConfirmedExternal, true},
		{StatusPendingInvoicing, StatusConfirmedExternal, false},
		{StatusInvoiced, StatusConfirmedExternal, false},
		{StatusInvoiced, StatusPendingInvoicing, false},
		{StatusFailedDeadLetter, StatusInvoiced, false},
		{StatusPendingPayment, StatusInvoiced, false},
		{StatusConfirmedExternal, StatusPendingPayment, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusInvoiced.Terminal())
	assert.True(t, StatusFailedDeadLetter.Terminal())
	assert.True(t, StatusConfirmedExternal.Terminal())
	assert.False(t, StatusPendingInvoicing.Terminal())
	assert.False(t, StatusPendingPayment.Terminal())
	assert.False(t, SaleStatus("SHIPPED").Terminal())
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	all := []SaleStatus{StatusPendingPayment, StatusPendingInvoicing, StatusInvoiced, StatusFailedDeadLetter, StatusConfirmedExternal}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s must not move to %s", from, to)
		}
	}
}

func TestNewLineItemComputesSubtotal(t *testing.T) {
	item := NewLineItem("prod_A", 2, decimal.RequireFromString("10.00"))
	assert.True(t, item.Subtotal.Equal(decimal.RequireFromString("20.00")))
}

func TestComputeTotal(t *testing.T) {
	items := []LineItem{
		NewLineItem("prod_A", 2, decimal.RequireFromString("10.00")),
		NewLineItem("prod_B", 3, decimal.RequireFromString("0.10")),
	}
	assert.Equal(t, "20.3", ComputeTotal(items).String())
	assert.True(t, ComputeTotal(nil).IsZero())
}

func TestSaleValidate(t *testing.T) {
	items := []LineItem{NewLineItem("prod_A", 2, decimal.RequireFromString("10.00"))}

	valid := &Sale{LineItems: items, Total: ComputeTotal(items)}
	require.NoError(t, valid.Validate())

	empty := &Sale{}
	assert.EqualError(t, empty.Validate(), "sale has no line items")

	mismatch := &Sale{LineItems: items, Total: decimal.RequireFromString("19.99")}
	assert.EqualError(t, mismatch.Validate(), "sale total does not match the sum of line item subtotals")

	badQty := &Sale{LineItems: []LineItem{{ProductID: "prod_A", Quantity: 0}}}
	assert.Error(t, badQty.Validate())

	tampered := &Sale{LineItems: []LineItem{{
		ProductID: "prod_A",
		Quantity:  2,
		UnitPrice: decimal.RequireFromString("10.00"),
		Subtotal:  decimal.RequireFromString("1.00"),
	}}, Total: decimal.RequireFromString("1.00")}
	assert.Error(t, tampered.Validate())
}

func TestMutationBuilders(t *testing.T) {
	m := Invoiced(&Invoice{Artifact: []byte("<xml/>"), ConfirmationCode: "CDR-1", SignatureHash: "abc"})
	assert.Equal(t, StatusInvoiced, m.Status)
	assert.Equal(t, []byte("<xml/>"), m.InvoiceArtifact)
	assert.Equal(t, "CDR-1", m.ConfirmationCode)
	assert.Equal(t, "abc", m.SignatureHash)

	d := DeadLettered("authority unreachable")
	assert.Equal(t, StatusFailedDeadLetter, d.Status)
	assert.Equal(t, "authority unreachable", d.FailureReason)
	assert.Empty(t, d.InvoiceArtifact)
}
