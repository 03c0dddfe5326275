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
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. BasePrice is the list price; the price charged at
// checkout is resolved from it by the catalog.
type Product struct {
	ID        int64           `json:"-"`
	ProductID string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"base_price"`
	Stock     int64           `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
}

// Customer is a purchasing party of the storefront.
type Customer struct {
	ID            int64     `json:"-"`
	CustomerID    string    `json:"id"`
	TaxID         string    `json:"tax_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	WhatsAppPhone string    `json:"whatsapp_phone,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
