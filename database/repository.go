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

	"github.com/jerry-enebeli/nexus/model"
)

// IDataSource groups every persistence operation the services depend on.
type IDataSource interface {
	sale
	saleReconciliation
	product
	customer
	Close() error
}

// sale holds the state machine reads and guarded writes.
type sale interface {
	CreateSale(ctx context.Context, sale *model.Sale) (*model.Sale, error)
	GetSale(ctx context.Context, saleID string) (*model.Sale, error)
	// ConditionalUpdateSale applies mutation only while the sale is still in
	// expected. It reports false when another writer got there first.
	ConditionalUpdateSale(ctx context.Context, saleID string, expected model.SaleStatus, mutation model.SaleMutation) (bool, error)
	RecordInvoiceAttempt(ctx context.Context, saleID string, attempts int) error
}

// saleReconciliation is the bookkeeping used to recover jobs lost between the
// store and the queue.
type saleReconciliation interface {
	MarkForReconciliation(ctx context.Context, saleID string) error
	MarkQueued(ctx context.Context, saleID string) error
	GetStuckSales(ctx context.Context, olderThan time.Time, limit int) ([]*model.Sale, error)
}

type product interface {
	GetProductsByIDs(ctx context.Context, productIDs []string) ([]model.Product, error)
}

type customer interface {
	GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error)
	GetLatestPendingPaymentSale(ctx context.Context, customerID string) (*model.Sale, error)
}
