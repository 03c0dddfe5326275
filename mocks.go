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

	"github.com/stretchr/testify/mock"

	"github.com/jerry-enebeli/nexus/model"
)

// MockInvoiceGenerator is a testify mock of InvoiceGenerator.
type MockInvoiceGenerator struct {
	mock.Mock
}

func (m *MockInvoiceGenerator) Generate(ctx context.Context, sale *model.Sale) (*model.Invoice, error) {
	args := m.Called(ctx, sale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}
