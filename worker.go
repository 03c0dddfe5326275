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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jerry-enebeli/nexus/internal/apierror"
	"github.com/jerry-enebeli/nexus/internal/notification"
	"github.com/jerry-enebeli/nexus/model"
)

// JobOutcome is what happened to a single invoicing job.
type JobOutcome string

const (
	OutcomeInvoiced     JobOutcome = "invoiced"
	OutcomeRetried      JobOutcome = "retried"
	OutcomeDeadLettered JobOutcome = "dead_lettered"
	// OutcomeDropped means the job had nothing left to do: the sale is gone or
	// already resolved.
	OutcomeDropped JobOutcome = "dropped"
	// OutcomeSkipped means another writer resolved the sale while the job ran.
	OutcomeSkipped JobOutcome = "skipped"
	OutcomeFailed  JobOutcome = "failed"
	OutcomePanic   JobOutcome = "panic"
)

// brokerErrorPause is how long a loop waits after the broker fails a dequeue.
const brokerErrorPause = time.Second

// InvoicingWorker drains the invoicing queue and drives each sale to INVOICED
// or FAILED_DEAD_LETTER.
type InvoicingWorker struct {
	nexus          *Nexus
	dequeueTimeout time.Duration
	invoiceTimeout time.Duration
	concurrency    int
}

func NewInvoicingWorker(n *Nexus) *InvoicingWorker {
	return &InvoicingWorker{
		nexus:          n,
		dequeueTimeout: n.config.Queue.DequeueTimeout,
		invoiceTimeout: n.config.Invoicing.Timeout,
		concurrency:    n.config.Queue.Concurrency,
	}
}

// Run starts the configured number of loops and blocks until ctx is cancelled
// and every in-flight job has finished.
func (w *InvoicingWorker) Run(ctx context.Context) error {
	var g errgroup.Group
	for i := 0; i < max(w.concurrency, 1); i++ {
		g.Go(func() error {
			w.loop(ctx, i)
			return nil
		})
	}
	return g.Wait()
}

func (w *InvoicingWorker) loop(ctx context.Context, id int) {
	log := logrus.WithField("worker", id)
	log.Info("invoicing worker started")
	defer log.Info("invoicing worker stopped")

	// Dequeue and processing run detached from shutdown so that a popped job
	// is always carried to the end; shutdown is observed between jobs.
	work := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return
		}

		job, ok, err := w.nexus.queue.Dequeue(work, w.dequeueTimeout)
		if err != nil {
			log.WithError(err).Error("failed to dequeue invoice job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(brokerErrorPause):
			}
			continue
		}
		if !ok {
			continue
		}

		w.ProcessJob(work, job)
	}
}

// ProcessJob handles one job. It never panics and never returns an error:
// every failure is resolved into a retry, a dead letter or a log line.
func (w *InvoicingWorker) ProcessJob(ctx context.Context, job model.InvoiceJob) (outcome JobOutcome) {
	ctx, span := tracer.Start(ctx, "Processing invoice job")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", job.SaleID), attribute.Int("job.attempts", job.Attempts))

	log := logrus.WithFields(logrus.Fields{"sale_id": job.SaleID, "attempts": job.Attempts})
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic while processing invoice job: %v", r)
			outcome = OutcomePanic
		}
		span.SetAttributes(attribute.String("job.outcome", string(outcome)))
	}()

	sale, err := w.nexus.datasource.GetSale(ctx, job.SaleID)
	if err != nil {
		if apierror.IsCode(err, apierror.ErrNotFound) {
			log.Warn("sale not found, dropping invoice job")
			return OutcomeDropped
		}
		return w.retryOrDeadLetter(ctx, job, &TransientInvoiceError{Reason: "sale could not be loaded", Err: err})
	}

	if sale.Status != model.StatusPendingInvoicing {
		log.WithField("status", sale.Status).Info("sale already resolved, dropping invoice job")
		return OutcomeDropped
	}

	if err := sale.Validate(); err != nil {
		return w.deadLetter(ctx, job, &PermanentInvoiceError{Reason: "sale is invalid", Err: err})
	}

	generateCtx, cancel := context.WithTimeout(ctx, w.invoiceTimeout)
	invoice, err := w.nexus.generator.Generate(generateCtx, sale)
	cancel()
	if err != nil {
		if IsPermanentInvoiceError(err) {
			return w.deadLetter(ctx, job, err)
		}
		return w.retryOrDeadLetter(ctx, job, err)
	}

	won, err := w.nexus.datasource.ConditionalUpdateSale(ctx, sale.SaleID, model.StatusPendingInvoicing, model.Invoiced(invoice))
	if err != nil {
		// The authority has issued the invoice but the sale could not be
		// updated. The sweep re-enqueues the sale once it looks stuck.
		notification.NotifyError(fmt.Errorf("sale %s was invoiced (%s) but could not be updated: %w", sale.SaleID, invoice.ConfirmationCode, err))
		return OutcomeFailed
	}
	if !won {
		log.Info("sale resolved concurrently, discarding invoice result")
		return OutcomeSkipped
	}

	log.WithField("confirmation_code", invoice.ConfirmationCode).Info("sale invoiced")
	w.nexus.emit(ctx, EventSaleInvoiced, SaleEvent{
		SaleID:           sale.SaleID,
		Status:           model.StatusInvoiced,
		Attempts:         job.Attempts,
		ConfirmationCode: invoice.ConfirmationCode,
	})
	return OutcomeInvoiced
}

// retryOrDeadLetter handles a transient failure: the job is re-enqueued with a
// backoff delay until the attempt budget is spent.
func (w *InvoicingWorker) retryOrDeadLetter(ctx context.Context, job model.InvoiceJob, cause error) JobOutcome {
	if !w.nexus.retry.ShouldRetry(job.Attempts) {
		return w.deadLetter(ctx, job, fmt.Errorf("gave up after %d attempts: %w", job.Attempts+1, cause))
	}

	next := job.Next()
	log := logrus.WithFields(logrus.Fields{"sale_id": job.SaleID, "attempts": next.Attempts})

	if err := w.nexus.datasource.RecordInvoiceAttempt(ctx, job.SaleID, next.Attempts); err != nil {
		log.WithError(err).Warn("failed to persist invoice attempt")
	}

	delay := w.nexus.retry.Delay(next.Attempts)
	if err := w.nexus.queue.EnqueueIn(ctx, next, delay); err != nil {
		log.WithError(err).Error("failed to re-enqueue invoice job")
		if markErr := w.nexus.datasource.MarkForReconciliation(ctx, job.SaleID); markErr != nil {
			log.WithError(markErr).Error("failed to flag sale for reconciliation")
		}
		return OutcomeFailed
	}

	log.WithError(cause).WithField("delay", delay).Warn("invoice attempt failed, retry scheduled")
	return OutcomeRetried
}

// deadLetter parks the sale in FAILED_DEAD_LETTER and alerts operators. Losing
// the status race to another writer is not an error and raises no alert.
func (w *InvoicingWorker) deadLetter(ctx context.Context, job model.InvoiceJob, cause error) JobOutcome {
	log := logrus.WithFields(logrus.Fields{"sale_id": job.SaleID, "attempts": job.Attempts})

	won, err := w.nexus.datasource.ConditionalUpdateSale(ctx, job.SaleID, model.StatusPendingInvoicing, model.DeadLettered(cause.Error()))
	if err != nil {
		log.WithError(err).Error("failed to dead-letter sale")
		return OutcomeFailed
	}
	if !won {
		log.Info("sale resolved concurrently, not dead-lettering")
		return OutcomeSkipped
	}

	notification.NotifyError(fmt.Errorf("sale %s moved to %s: %w", job.SaleID, model.StatusFailedDeadLetter, cause))
	w.nexus.emit(ctx, EventSaleDeadLettered, SaleEvent{
		SaleID:   job.SaleID,
		Status:   model.StatusFailedDeadLetter,
		Attempts: job.Attempts,
		Reason:   cause.Error(),
	})
	return OutcomeDeadLettered
}
