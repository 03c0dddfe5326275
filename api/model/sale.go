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

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/jerry-enebeli/nexus"
)

type CheckoutItem struct {
	ProductID string           `json:"product_id"`
	Quantity  int64            `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type CreateCheckout struct {
	CustomerID      *string        `json:"customer_id,omitempty"`
	Items           []CheckoutItem `json:"items"`
	DeferredPayment bool           `json:"deferred_payment"`
}

func (i CheckoutItem) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ProductID, validation.Required),
		validation.Field(&i.Quantity, validation.Required, validation.Min(int64(1)), validation.Max(int64(nexus.MaxLineQuantity))),
	)
}

func (c *CreateCheckout) ValidateCreateCheckout() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Items, validation.Required.Error("at least one line item is required")),
		validation.Field(&c.CustomerID, validation.NilOrNotEmpty),
	)
}

func (c *CreateCheckout) ToCheckoutRequest() nexus.CheckoutRequest {
	items := make([]nexus.CheckoutItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, nexus.CheckoutItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return nexus.CheckoutRequest{
		CustomerID:      c.CustomerID,
		Items:           items,
		DeferredPayment: c.DeferredPayment,
	}
}

// WhatsAppWebhook is the subset of the WhatsApp Cloud API notification body
// needed to read incoming text messages.
type WhatsAppWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []WhatsAppMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type WhatsAppMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// TextMessages flattens every text message in the notification.
func (w *WhatsAppWebhook) TextMessages() []WhatsAppMessage {
	var messages []WhatsAppMessage
	for _, entry := range w.Entry {
		for _, change := range entry.Changes {
			for _, message := range change.Value.Messages {
				if message.Type == "text" {
					messages = append(messages, message)
				}
			}
		}
	}
	return messages
}

type VerifyWebhook struct {
	Mode        string `form:"hub.mode"`
	VerifyToken string `form:"hub.verify_token"`
	Challenge   string `form:"hub.challenge"`
}

func (v *VerifyWebhook) ValidateVerifyWebhook(expectedToken string) error {
	return validation.ValidateStruct(v,
		validation.Field(&v.Mode, validation.Required, validation.In("subscribe")),
		validation.Field(&v.Challenge, validation.Required),
		validation.Field(&v.VerifyToken, validation.Required, validation.By(func(value interface{}) error {
			if expectedToken == "" || value.(string) != expectedToken {
				return errors.New("verify token does not match")
			}
			return nil
		})),
	)
}
