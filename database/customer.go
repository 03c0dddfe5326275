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

	"github.com/jerry-enebeli/nexus/internal/apierror"
	"github.com/jerry-enebeli/nexus/model"
)

func (d Datasource) GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	c := &model.Customer{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT customer_id, tax_id, name, email, whatsapp_phone, created_at
		FROM nexus.customers
		WHERE whatsapp_phone = $1
	`, phone).Scan(&c.CustomerID, &c.TaxID, &c.Name, &c.Email, &c.WhatsAppPhone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "No customer registered with this phone", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve customer", err)
	}
	return c, nil
}

// GetLatestPendingPaymentSale returns the newest sale of the customer that is
// still waiting for payment confirmation.
func (d Datasource) GetLatestPendingPaymentSale(ctx context.Context, customerID string) (*model.Sale, error) {
	var saleID string
	err := d.Conn.QueryRowContext(ctx, `
		SELECT sale_id
		FROM nexus.sales
		WHERE customer_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, customerID, model.StatusPendingPayment).Scan(&saleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "No sale awaiting payment for this customer", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve pending sale", err)
	}
	return d.GetSale(ctx, saleID)
}
