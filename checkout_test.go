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
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"

	"github.com/jerry-enebeli/nexus/internal/apierror"
	"github.com/jerry-enebeli/nexus/model"
)

func TestCheckoutCreatesSaleAndEnqueues(t *testing.T) {
	n, _, _, mr := newTestNexus(t)
	store := newMemoryStore(product("A", "10.00", 100))
	n.datasource = store
	n.catalog = NewCatalog(store, nil, 0)

	clientPrice := decimal.RequireFromString("1.00")
	result, err := n.Checkout(context.Background(), CheckoutRequest{
		Items: []CheckoutItem{{ProductID: "A", Quantity: 2, UnitPrice: &clientPrice}},
	})
	require.NoError(t, err)
	assert.Equal(t, "20.00", result.Total.StringFixed(2))
	assert.Equal(t, model.StatusPendingInvoicing, result.Status)

	sale, err := store.GetSale(context.Background(), result.SaleID)
	require.NoError(t, err)
	assert.True(t, sale.Total.Equal(model.ComputeTotal(sale.LineItems)))
	assert.Equal(t, "10.00", sale.LineItems[0].UnitPrice.StringFixed(2))

	items, err := mr.List("nexus:invoicing:test")
	require.NoError(t, err)
	require.Len(t, items, 1)
	job, err := model.ParseInvoiceJob([]byte(items[0]))
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceJob{SaleID: result.SaleID, Attempts: 0}, job)
}

func TestCheckoutRejectsInvalidCart(t *testing.T) {
	n, ds, _, mr := newTestNexus(t)

	tests := []struct {
		name string
		req  CheckoutRequest
	}{
		{name: "empty cart", req: CheckoutRequest{}},
		{name: "zero quantity", req: CheckoutRequest{Items: []CheckoutItem{{ProductID: "A", Quantity: 0}}}},
		{name: "negative quantity", req: CheckoutRequest{Items: []CheckoutItem{{ProductID: "A", Quantity: -1}}}},
		{name: "quantity above line cap", req: CheckoutRequest{Items: []CheckoutItem{{ProductID: "A", Quantity: MaxLineQuantity + 1}}}},
		{name: "huge quantity", req: CheckoutRequest{Items: []CheckoutItem{{ProductID: "A", Quantity: 1 << 50}}}},
		{name: "missing product", req: CheckoutRequest{Items: []CheckoutItem{{Quantity: 1}}}},
		{name: "blank customer", req: CheckoutRequest{CustomerID: ptr.String(""), Items: []CheckoutItem{{ProductID: "A", Quantity: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Checkout(context.Background(), tt.req)
			assert.True(t, apierror.IsCode(err, apierror.ErrInvalidInput), "got %v", err)
		})
	}

	ds.AssertNotCalled(t, "CreateSale", mock.Anything, mock.Anything)
	assert.False(t, mr.Exists("nexus:invoicing:test"))
}

func TestCheckoutUnknownProduct(t *testing.T) {
	n, _, _, _ := newTestNexus(t)
	store := newMemoryStore()
	n.datasource = store
	n.catalog = NewCatalog(store, nil, 0)

	_, err := n.Checkout(context.Background(), CheckoutRequest{Items: []CheckoutItem{{ProductID: "ghost", Quantity: 1}}})
	assert.True(t, apierror.IsCode(err, apierror.ErrInvalidInput))
	assert.Empty(t, store.sales)
}

func TestCheckoutSucceedsWhenQueueIsDown(t *testing.T) {
	n, _, _, mr := newTestNexus(t)
	store := newMemoryStore(product("A", "10.00", 100))
	n.datasource = store
	n.catalog = NewCatalog(store, nil, 0)
	mr.Close()

	result, err := n.Checkout(context.Background(), CheckoutRequest{Items: []CheckoutItem{{ProductID: "A", Quantity: 1}}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingInvoicing, result.Status)

	sale, err := store.GetSale(context.Background(), result.SaleID)
	require.NoError(t, err)
	assert.True(t, sale.NeedsReconciliation)
}

func TestCheckoutDeferredPaymentIsNotQueued(t *testing.T) {
	n, _, _, mr := newTestNexus(t)
	store := newMemoryStore(product("A", "10.00", 100))
	n.datasource = store
	n.catalog = NewCatalog(store, nil, 0)

	result, err := n.Checkout(context.Background(), CheckoutRequest{
		CustomerID:      ptr.String("cus_1"),
		Items:           []CheckoutItem{{ProductID: "A", Quantity: 1}},
		DeferredPayment: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingPayment, result.Status)
	assert.False(t, mr.Exists("nexus:invoicing:test"))
}

func TestCheckoutStoreFailure(t *testing.T) {
	n, ds, _, _ := newTestNexus(t)
	ds.On("GetProductsByIDs", mock.Anything, []string{"A"}).Return([]model.Product{product("A", "10.00", 100)}, nil)
	ds.On("CreateSale", mock.Anything, mock.Anything).
		Return(nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create sale", errors.New("db down")))

	_, err := n.Checkout(context.Background(), CheckoutRequest{Items: []CheckoutItem{{ProductID: "A", Quantity: 1}}})
	assert.True(t, apierror.IsCode(err, apierror.ErrInternalServer))
}
