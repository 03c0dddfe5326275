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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/nexus/internal/apierror"
	"github.com/jerry-enebeli/nexus/model"
)

type generatorFunc func(ctx context.Context, sale *model.Sale) (*model.Invoice, error)

func (f generatorFunc) Generate(ctx context.Context, sale *model.Sale) (*model.Invoice, error) {
	return f(ctx, sale)
}

func pendingSale(id string) *model.Sale {
	items := []model.LineItem{model.NewLineItem("A", 2, decimal.RequireFromString("10.00"))}
	return &model.Sale{SaleID: id, LineItems: items, Total: model.ComputeTotal(items), Status: model.StatusPendingInvoicing}
}

var testInvoice = &model.Invoice{Artifact: []byte("<cfdi/>"), ConfirmationCode: "CONF-1", SignatureHash: "abc"}

func isDeadLetter(m model.SaleMutation) bool {
	return m.Status == model.StatusFailedDeadLetter && m.FailureReason != ""
}

func TestProcessJobInvoices(t *testing.T) {
	n, ds, gen, _ := newTestNexus(t)
	w := NewInvoicingWorker(n)
	sale := pendingSale("sale_1")

	ds.On("GetSale", mock.Anything, "sale_1").Return(sale, nil)
	gen.On("Generate", mock.Anything, sale).Return(testInvoice, nil)
	ds.On("ConditionalUpdateSale", mock.Anything, "sale_1", model.StatusPendingInvoicing, model.Invoiced(testInvoice)).Return(true, nil)

	outcome := w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_1", Attempts: 2})
	assert.Equal(t, OutcomeInvoiced, outcome)
	ds.AssertExpectations(t)
}

func TestProcessJobMissingSaleIsDropped(t *testing.T) {
	n, ds, gen, mr := newTestNexus(t)
	w := NewInvoicingWorker(n)

	ds.On("GetSale", mock.Anything, "sale_gone").Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Sale not found", nil))

	outcome := w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_gone"})
	assert.Equal(t, OutcomeDropped, outcome)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "ConditionalUpdateSale", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, mr.Keys())
}

func TestProcessJobResolvedSaleIsDropped(t *testing.T) {
	n, ds, gen, _ := newTestNexus(t)
	w := NewInvoicingWorker(n)
	sale := pendingSale("sale_1")
	sale.Status = model.StatusInvoiced

	ds.On("GetSale", mock.Anything, "sale_1").Return(sale, nil)

	assert.Equal(t, OutcomeDropped, w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_1"}))
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestProcessJobTransientFailureRetries(t *testing.T) {
	n, ds, gen, _ := newTestNexus(t)
	w := NewInvoicingWorker(n)
	sale := pendingSale("sale_1")

	ds.On("GetSale", mock.Anything, "sale_1").Return(sale, nil)
	gen.On("Generate", mock.Anything, sale).Return(nil, &TransientInvoiceError{Reason: "authority unavailable"})
	ds.On("RecordInvoiceAttempt", mock.Anything, "sale_1", 1).Return(nil)

	outcome := w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_1", Attempts: 0})
	assert.Equal(t, OutcomeRetried, outcome)
	ds.AssertNotCalled(t, "ConditionalUpdateSale", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	ready, delayed, err := n.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), ready)
	assert.Equal(t, int64(1), delayed)

	members, err := n.redis.ZRange(context.Background(), "nexus:invoicing:test:delayed", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{`{"saleId":"sale_1","attempts":1}`}, members)
}

func TestProcessJobUnknownErrorIsTransient(t *testing.T) {
	n, ds, gen, _ := newTestNexus(t)
	w := NewInvoicingWorker(n)
	sale := pendingSale("sale_1")

	ds.On("GetSale", mock.Anything, "sale_1").Return(sale, nil)
	gen.On("Generate", mock.Anything, sale).Return(nil, errors.New("unexpected EOF"))
	ds.On("RecordInvoiceAttempt", mock.Anything, "sale_1", 4).Return(nil)

	assert.Equal(t, OutcomeRetried, w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_1", Attempts: 3}))
}

func TestProcessJobExhaustedAttemptsDeadLetters(t *testing.T) {
	n, ds, gen, mr := newTestNexus(t)
	w := NewInvoicingWorker(n)
	sale := pendingSale("sale_1")

	ds.On("GetSale", mock.Anything, "sale_1").Return(sale, nil)
	gen.On("Generate", mock.Anything, sale).Return(nil, &TransientInvoiceError{Reason: "authority unavailable"})
	ds.On("ConditionalUpdateSale", mock.Anything, "sale_1", model.StatusPendingInvoicing, mock.MatchedBy(isDeadLetter)).Return(true, nil)

	outcome := w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_1", Attempts: 5})
	assert.Equal(t, OutcomeDeadLettered, outcome)
	ds.AssertNotCalled(t, "RecordInvoiceAttempt", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, mr.Keys())
}

func TestProcessJobPermanentFailureDeadLettersImmediately(t *testing.T) {
	n, ds, gen, mr := newTestNexus(t)
	w := NewInvoicingWorker(n)
	sale := pendingSale("sale_1")

	ds.On("GetSale", mock.Anything, "sale_1").Return(sale, nil)
	gen.On("Generate", mock.Anything, sale).Return(nil, &PermanentInvoiceError{Reason: "invalid tax id"})
	ds.On("ConditionalUpdateSale", mock.Anything, "sale_1", model.StatusPendingInvoicing, mock.MatchedBy(isDeadLetter)).Return(true, nil)

	assert.Equal(t, OutcomeDeadLettered, w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_1"}))
	assert.Empty(t, mr.Keys())
}

func TestProcessJobInvalidSaleDeadLetters(t *testing.T) {
	n, ds, gen, _ := newTestNexus(t)
	w := NewInvoicingWorker(n)
	sale := pendingSale("sale_1")
	sale.Total = decimal.NewFromInt(999)

	ds.On("GetSale", mock.Anything, "sale_1").Return(sale, nil)
	ds.On("ConditionalUpdateSale", mock.Anything, "sale_1", model.StatusPendingInvoicing, mock.MatchedBy(func(m model.SaleMutation) bool {
		return isDeadLetter(m) && strings.Contains(m.FailureReason, "sale is invalid")
	})).Return(true, nil)

	assert.Equal(t, OutcomeDeadLettered, w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_1"}))
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestProcessJobLostRaceIsBenign(t *testing.T) {
	n, ds, gen, _ := newTestNexus(t)
	w := NewInvoicingWorker(n)
	sale := pendingSale("sale_1")

	ds.On("GetSale", mock.Anything, "sale_1").Return(sale, nil)
	gen.On("Generate", mock.Anything, sale).Return(nil, &PermanentInvoiceError{Reason: "rejected"})
	ds.On("ConditionalUpdateSale", mock.Anything, "sale_1", model.StatusPendingInvoicing, mock.Anything).Return(false, nil)

	assert.Equal(t, OutcomeSkipped, w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_1"}))
}

func TestProcessJobRecoversFromPanic(t *testing.T) {
	n, ds, _, _ := newTestNexus(t)
	n.generator = generatorFunc(func(context.Context, *model.Sale) (*model.Invoice, error) {
		panic("authority client exploded")
	})
	w := NewInvoicingWorker(n)

	ds.On("GetSale", mock.Anything, "sale_1").Return(pendingSale("sale_1"), nil)

	assert.Equal(t, OutcomePanic, w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_1"}))
}

func TestProcessJobGeneratorTimeoutIsTransient(t *testing.T) {
	n, ds, _, _ := newTestNexus(t)
	n.generator = generatorFunc(func(ctx context.Context, _ *model.Sale) (*model.Invoice, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	w := NewInvoicingWorker(n)
	w.invoiceTimeout = 50 * time.Millisecond

	ds.On("GetSale", mock.Anything, "sale_1").Return(pendingSale("sale_1"), nil)
	ds.On("RecordInvoiceAttempt", mock.Anything, "sale_1", 1).Return(nil)

	assert.Equal(t, OutcomeRetried, w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_1"}))
}

func TestProcessJobRequeueFailureFlagsSale(t *testing.T) {
	n, ds, gen, mr := newTestNexus(t)
	w := NewInvoicingWorker(n)
	sale := pendingSale("sale_1")

	ds.On("GetSale", mock.Anything, "sale_1").Return(sale, nil)
	gen.On("Generate", mock.Anything, sale).Run(func(mock.Arguments) { mr.Close() }).
		Return(nil, &TransientInvoiceError{Reason: "authority unavailable"})
	ds.On("RecordInvoiceAttempt", mock.Anything, "sale_1", 1).Return(nil)
	ds.On("MarkForReconciliation", mock.Anything, "sale_1").Return(nil)

	assert.Equal(t, OutcomeFailed, w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: "sale_1"}))
	ds.AssertCalled(t, "MarkForReconciliation", mock.Anything, "sale_1")
}

// runPipeline drives every queued job through the worker until the queue is
// empty, promoting delayed retries immediately.
func runPipeline(t *testing.T, n *Nexus, w *InvoicingWorker, maxJobs int) int {
	t.Helper()
	ctx := context.Background()
	processed := 0
	for ; processed < maxJobs; processed++ {
		members, err := n.redis.ZRange(ctx, n.queue.delayed, 0, -1).Result()
		require.NoError(t, err)
		for _, m := range members {
			require.NoError(t, n.redis.ZAdd(ctx, n.queue.delayed, redis.Z{Score: 0, Member: m}).Err())
		}
		job, ok, err := n.queue.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		if !ok {
			return processed
		}
		w.ProcessJob(ctx, job)
	}
	return processed
}

func TestPipelineDeadLettersAfterMaxAttempts(t *testing.T) {
	n, _, _, _ := newTestNexus(t)
	store := newMemoryStore(product("A", "10.00", 100))
	n.datasource = store
	n.catalog = NewCatalog(store, nil, 0)

	var calls int
	n.generator = generatorFunc(func(context.Context, *model.Sale) (*model.Invoice, error) {
		calls++
		return nil, &TransientInvoiceError{Reason: "authority unavailable"}
	})
	w := NewInvoicingWorker(n)

	result, err := n.Checkout(context.Background(), CheckoutRequest{Items: []CheckoutItem{{ProductID: "A", Quantity: 2}}})
	require.NoError(t, err)
	assert.Equal(t, "20.00", result.Total.StringFixed(2))

	processed := runPipeline(t, n, w, 20)
	assert.Equal(t, 6, processed)
	assert.Equal(t, 6, calls)

	sale, err := store.GetSale(context.Background(), result.SaleID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailedDeadLetter, sale.Status)
	assert.Equal(t, 5, sale.InvoiceAttempts)
	assert.NotEmpty(t, sale.FailureReason)
	assert.True(t, sale.Total.Equal(model.ComputeTotal(sale.LineItems)))
}

func TestPipelineInvoicesAfterTransientFailures(t *testing.T) {
	n, _, _, _ := newTestNexus(t)
	store := newMemoryStore(product("A", "10.00", 100))
	n.datasource = store
	n.catalog = NewCatalog(store, nil, 0)

	var calls int
	n.generator = generatorFunc(func(context.Context, *model.Sale) (*model.Invoice, error) {
		calls++
		if calls < 3 {
			return nil, &TransientInvoiceError{Reason: "authority unavailable"}
		}
		return testInvoice, nil
	})
	w := NewInvoicingWorker(n)

	result, err := n.Checkout(context.Background(), CheckoutRequest{Items: []CheckoutItem{{ProductID: "A", Quantity: 1}}})
	require.NoError(t, err)

	assert.Equal(t, 3, runPipeline(t, n, w, 20))

	sale, err := store.GetSale(context.Background(), result.SaleID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInvoiced, sale.Status)
	assert.Equal(t, []byte("<cfdi/>"), sale.InvoiceArtifact)
	assert.Equal(t, "CONF-1", sale.ConfirmationCode)
	assert.Equal(t, "abc", sale.SignatureHash)

	ready, delayed, err := n.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ready+delayed)
}

func TestConcurrentWritersOnlyOneWins(t *testing.T) {
	n, _, _, _ := newTestNexus(t)
	store := newMemoryStore()
	n.datasource = store
	sale := pendingSale("")
	_, err := store.CreateSale(context.Background(), sale)
	require.NoError(t, err)

	n.generator = generatorFunc(func(context.Context, *model.Sale) (*model.Invoice, error) {
		return testInvoice, nil
	})
	w := NewInvoicingWorker(n)

	var wg sync.WaitGroup
	outcomes := make([]JobOutcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = w.ProcessJob(context.Background(), model.InvoiceJob{SaleID: sale.SaleID})
		}()
	}
	wg.Wait()

	invoiced := 0
	for _, o := range outcomes {
		if o == OutcomeInvoiced {
			invoiced++
		} else {
			assert.Contains(t, []JobOutcome{OutcomeSkipped, OutcomeDropped}, o)
		}
	}
	assert.Equal(t, 1, invoiced)
}

func TestWorkerRunStopsOnShutdown(t *testing.T) {
	n, _, _, _ := newTestNexus(t)
	store := newMemoryStore(product("A", "10.00", 100))
	n.datasource = store
	n.catalog = NewCatalog(store, nil, 0)
	n.generator = generatorFunc(func(context.Context, *model.Sale) (*model.Invoice, error) {
		return testInvoice, nil
	})
	n.config.Queue.Concurrency = 2
	w := NewInvoicingWorker(n)

	result, err := n.Checkout(context.Background(), CheckoutRequest{Items: []CheckoutItem{{ProductID: "A", Quantity: 1}}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		sale, err := store.GetSale(context.Background(), result.SaleID)
		return err == nil && sale.Status == model.StatusInvoiced
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop after shutdown")
	}
}
