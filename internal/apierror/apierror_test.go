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

package apierror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jerry-enebeli/nexus/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	details := "Some internal error details"
	apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "Something went wrong", details)

	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
	assert.Equal(t, "Something went wrong", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "INTERNAL_SERVER_ERROR: Something went wrong", apiErr.Error())
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "NotFound Error",
			err:      apierror.NewAPIError(apierror.ErrNotFound, "Resource not found", nil),
			expected: http.StatusNotFound,
		},
		{
			name:     "Conflict Error",
			err:      apierror.NewAPIError(apierror.ErrConflict, "Status changed concurrently", nil),
			expected: http.StatusConflict,
		},
		{
			name:     "InvalidInput Error",
			err:      apierror.NewAPIError(apierror.ErrInvalidInput, "Cart is empty", nil),
			expected: http.StatusBadRequest,
		},
		{
			name:     "Wrapped InvalidInput Error",
			err:      fmt.Errorf("checkout: %w", apierror.NewAPIError(apierror.ErrInvalidInput, "Cart is empty", nil)),
			expected: http.StatusBadRequest,
		},
		{
			name:     "InternalServer Error",
			err:      apierror.NewAPIError(apierror.ErrInternalServer, "Database down", nil),
			expected: http.StatusInternalServerError,
		},
		{
			name:     "Non-API Error",
			err:      errors.New("some random error"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apierror.MapErrorToHTTPStatus(tt.err))
		})
	}
}

func TestIsCode(t *testing.T) {
	notFound := apierror.NewAPIError(apierror.ErrNotFound, "Sale not found", nil)
	assert.True(t, apierror.IsCode(notFound, apierror.ErrNotFound))
	assert.True(t, apierror.IsCode(fmt.Errorf("load: %w", notFound), apierror.ErrNotFound))
	assert.False(t, apierror.IsCode(notFound, apierror.ErrConflict))
	assert.False(t, apierror.IsCode(errors.New("plain"), apierror.ErrNotFound))
}

func TestUnwrapDetails(t *testing.T) {
	cause := errors.New("connection refused")
	apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load sale", cause)
	assert.ErrorIs(t, apiErr, cause)
}
