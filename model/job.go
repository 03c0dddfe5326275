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
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// InvoiceJob is the payload carried by the invoicing queue.
type InvoiceJob struct {
	SaleID   string `json:"saleId"`
	Attempts int    `json:"attempts"`
}

// Next returns a copy of the job for the following attempt.
func (j InvoiceJob) Next() InvoiceJob {
	return InvoiceJob{SaleID: j.SaleID, Attempts: j.Attempts + 1}
}

// ToJSON encodes the job in its wire shape.
func (j InvoiceJob) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// ParseInvoiceJob decodes a job and rejects payloads without a sale id or with a
// negative attempt counter.
func ParseInvoiceJob(payload []byte) (InvoiceJob, error) {
	var job InvoiceJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return InvoiceJob{}, err
	}
	if job.SaleID == "" {
		return InvoiceJob{}, fmt.Errorf("invoice job is missing saleId")
	}
	if job.Attempts < 0 {
		return InvoiceJob{}, fmt.Errorf("invoice job has negative attempts: %d", job.Attempts)
	}
	return job, nil
}

// GenerateUUIDWithSuffix generates a UUID prefixed with the given module name.
func GenerateUUIDWithSuffix(module string) string {
	return fmt.Sprintf("%s_%s", module, uuid.New().String())
}
