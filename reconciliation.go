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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	redlock "github.com/jerry-enebeli/nexus/internal/lock"
	"github.com/jerry-enebeli/nexus/model"
)

const sweepLockKey = "nexus:reconciliation:lock"

// ErrSweepInProgress is returned when another instance holds the sweep lock.
var ErrSweepInProgress = errors.New("a reconciliation sweep is already running")

// ReconciliationSweeper re-enqueues sales that are awaiting invoicing but have
// no live job: sales whose enqueue failed at checkout, and sales whose job was
// lost between dequeue and the status update. Only one instance sweeps at a
// time; duplicates of a live job are harmless because status writes are
// conditional.
type ReconciliationSweeper struct {
	nexus          *Nexus
	interval       time.Duration
	stuckThreshold time.Duration
	batchSize      int
	owner          string
	stopCh         chan struct{}
	wg             sync.WaitGroup
	running        bool
	mu             sync.Mutex
}

func NewReconciliationSweeper(n *Nexus) *ReconciliationSweeper {
	return &ReconciliationSweeper{
		nexus:          n,
		interval:       n.config.Reconciliation.Interval,
		stuckThreshold: n.config.Reconciliation.StuckThreshold,
		batchSize:      n.config.Reconciliation.BatchSize,
		owner:          uuid.NewString(),
		stopCh:         make(chan struct{}),
	}
}

func (s *ReconciliationSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	logrus.Info("Reconciliation sweeper started")
}

func (s *ReconciliationSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logrus.Info("Reconciliation sweeper stopped")
}

func (s *ReconciliationSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *ReconciliationSweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil && !errors.Is(err, ErrSweepInProgress) {
				logrus.WithError(err).Error("reconciliation sweep failed")
				continue
			}
			if n > 0 {
				logrus.Infof("Reconciliation sweep re-enqueued %d sales", n)
			}
		}
	}
}

// Sweep runs one pass and returns how many sales were re-enqueued.
func (s *ReconciliationSweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Reconciliation sweep")
	defer span.End()

	lock := redlock.NewLocker(s.nexus.redis, sweepLockKey, s.owner)
	acquired, err := lock.TryLock(ctx, s.lockTTL())
	if err != nil {
		return 0, err
	}
	if !acquired {
		return 0, ErrSweepInProgress
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			logrus.WithError(err).Warn("failed to release reconciliation lock")
		}
	}()

	cutoff := time.Now().UTC().Add(-s.stuckThreshold)
	sales, err := s.nexus.datasource.GetStuckSales(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, sale := range sales {
		log := logrus.WithFields(logrus.Fields{"sale_id": sale.SaleID, "attempts": sale.InvoiceAttempts})
		job := model.InvoiceJob{SaleID: sale.SaleID, Attempts: sale.InvoiceAttempts}
		if err := s.nexus.queue.Enqueue(ctx, job); err != nil {
			// The broker is down; the rest of the batch would fail the same way.
			return requeued, err
		}
		if err := s.nexus.datasource.MarkQueued(ctx, sale.SaleID); err != nil {
			log.WithError(err).Warn("re-enqueued sale but failed to record it")
		}
		log.WithField("flagged", sale.NeedsReconciliation).Info("stuck sale re-enqueued")
		requeued++
	}
	return requeued, nil
}

// lockTTL is one interval, and never under 30s. A crashed holder blocks at
// most the next tick.
func (s *ReconciliationSweeper) lockTTL() time.Duration {
	if s.interval < 30*time.Second {
		return 30 * time.Second
	}
	return s.interval
}

// SweepStuckSales runs an immediate reconciliation pass.
func (n *Nexus) SweepStuckSales(ctx context.Context) (int, error) {
	return NewReconciliationSweeper(n).Sweep(ctx)
}
