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

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/jerry-enebeli/nexus/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Sale methods

func (m *MockDataSource) CreateSale(ctx context.Context, sale *model.Sale) (*model.Sale, error) {
	args := m.Called(ctx, sale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if fn, ok := args.Get(0).(func(context.Context, *model.Sale) *model.Sale); ok {
		return fn(ctx, sale), args.Error(1)
	}
	return args.Get(0).(*model.Sale), args.Error(1)
}

func (m *MockDataSource) GetSale(ctx context.Context, saleID string) (*model.Sale, error) {
	args := m.Called(ctx, saleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Sale), args.Error(1)
}

func (m *MockDataSource) ConditionalUpdateSale(ctx context.Context, saleID string, expected model.SaleStatus, mutation model.SaleMutation) (bool, error) {
	args := m.Called(ctx, saleID, expected, mutation)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) RecordInvoiceAttempt(ctx context.Context, saleID string, attempts int) error {
	args := m.Called(ctx, saleID, attempts)
	return args.Error(0)
}

// Reconciliation methods

func (m *MockDataSource) MarkForReconciliation(ctx context.Context, saleID string) error {
	args := m.Called(ctx, saleID)
	return args.Error(0)
}

func (m *MockDataSource) MarkQueued(ctx context.Context, saleID string) error {
	args := m.Called(ctx, saleID)
	return args.Error(0)
}

func (m *MockDataSource) GetStuckSales(ctx context.Context, olderThan time.Time, limit int) ([]*model.Sale, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Sale), args.Error(1)
}

// Catalog methods

func (m *MockDataSource) GetProductsByIDs(ctx context.Context, productIDs []string) ([]model.Product, error) {
	args := m.Called(ctx, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockDataSource) GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

func (m *MockDataSource) GetLatestPendingPaymentSale(ctx context.Context, customerID string) (*model.Sale, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Sale), args.Error(1)
}

func (m *MockDataSource) Close() error {
	args := m.Called()
	return args.Error(0)
}
