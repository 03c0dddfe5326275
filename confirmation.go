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
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/nexus/model"
)

var confirmationKeywords = []string{"CONFIRMAR", "ACEPTO"}

// IsConfirmationMessage reports whether a customer's chat message accepts the
// pending order.
func IsConfirmationMessage(text string) bool {
	normalized := strings.ToUpper(text)
	for _, keyword := range confirmationKeywords {
		if strings.Contains(normalized, keyword) {
			return true
		}
	}
	return false
}

// ConfirmSale records an external payment confirmation. It reports false when
// the sale was no longer awaiting payment.
func (n *Nexus) ConfirmSale(ctx context.Context, saleID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Confirming sale from external channel")
	defer span.End()

	won, err := n.datasource.ConditionalUpdateSale(ctx, saleID, model.StatusPendingPayment,
		model.SaleMutation{Status: model.StatusConfirmedExternal})
	if err != nil {
		return false, err
	}
	if !won {
		logrus.WithField("sale_id", saleID).Info("sale is not awaiting payment, confirmation ignored")
		return false, nil
	}

	n.emit(ctx, EventSaleConfirmed, SaleEvent{SaleID: saleID, Status: model.StatusConfirmedExternal})
	return true, nil
}

// ConfirmLatestByPhone confirms the newest sale awaiting payment of the
// customer registered with phone.
func (n *Nexus) ConfirmLatestByPhone(ctx context.Context, phone string) (string, bool, error) {
	customer, err := n.datasource.GetCustomerByPhone(ctx, phone)
	if err != nil {
		return "", false, err
	}

	sale, err := n.datasource.GetLatestPendingPaymentSale(ctx, customer.CustomerID)
	if err != nil {
		return "", false, err
	}

	won, err := n.ConfirmSale(ctx, sale.SaleID)
	return sale.SaleID, won, err
}
