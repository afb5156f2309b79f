/*
Copyright 2025 Vidigest Authors.

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

package vidigest

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vidigest/vidigest/config"
	"github.com/vidigest/vidigest/model"
)

// StalledDeliveryRecoveryProcessor re-schedules delivery rows whose asynq task
// was lost, typically after a Redis flush or a worker crash between the row
// write and the task write. The durable row is the source of truth, so any
// non-terminal row untouched past the stuck threshold gets a fresh task; the
// task id keeps this from double-scheduling a delivery that is merely slow.
// Rows a dead worker left in PROCESSING are returned to PENDING first so the
// new attempt can claim them.
type StalledDeliveryRecoveryProcessor struct {
	vidigest       *Vidigest
	batchSize      int
	pollInterval   time.Duration
	stuckThreshold time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
	running        bool
	mu             sync.Mutex

	requeue func(ctx context.Context, msg *model.DeliveryMessage) error
}

func NewStalledDeliveryRecoveryProcessor(v *Vidigest) *StalledDeliveryRecoveryProcessor {
	p := &StalledDeliveryRecoveryProcessor{
		vidigest:       v,
		batchSize:      500,
		pollInterval:   30 * time.Second,
		stuckThreshold: 10 * time.Minute,
		stopCh:         make(chan struct{}),
	}
	p.requeue = p.requeueTask
	return p
}

func (p *StalledDeliveryRecoveryProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Stalled delivery recovery processor started")
}

func (p *StalledDeliveryRecoveryProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Stalled delivery recovery processor stopped")
}

func (p *StalledDeliveryRecoveryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *StalledDeliveryRecoveryProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	// One sweep right away so rows stranded by the previous worker run are
	// not held hostage to the poll interval.
	p.recoverStalled(ctx)

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Stalled delivery recovery processor context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Stalled delivery recovery processor stop signal received")
			return
		case <-ticker.C:
			p.recoverStalled(ctx)
		}
	}
}

func (p *StalledDeliveryRecoveryProcessor) recoverStalled(ctx context.Context) int {
	cutoff := time.Now().Add(-p.stuckThreshold)
	stalled, err := p.vidigest.datasource.GetStalledDeliveries(ctx, cutoff, p.batchSize)
	if err != nil {
		logrus.Errorf("failed to get stalled deliveries: %v", err)
		return 0
	}

	if len(stalled) == 0 {
		return 0
	}

	logrus.Infof("Re-scheduling %d stalled deliveries (threshold=%v)", len(stalled), p.stuckThreshold)

	recovered := 0
	for _, msg := range stalled {
		// A row stuck in PROCESSING belonged to a worker that died between
		// claiming it and recording an outcome. Put it back to PENDING first,
		// or the re-scheduled attempt could never claim it.
		if msg.Status == model.DeliveryProcessing {
			released, err := p.vidigest.datasource.ReleaseStalledDelivery(ctx, msg.MessageID, cutoff)
			if err != nil {
				logrus.Errorf("failed to release stalled delivery %s: %v", msg.MessageID, err)
				continue
			}
			if !released {
				// A live worker touched the row after the scan; leave it be.
				continue
			}
			msg.Status = model.DeliveryPending
		}
		if err := p.requeue(ctx, msg); err != nil {
			logrus.Errorf("failed to re-schedule delivery %s: %v", msg.MessageID, err)
			continue
		}
		recovered++
	}
	return recovered
}

func (p *StalledDeliveryRecoveryProcessor) requeueTask(ctx context.Context, msg *model.DeliveryMessage) error {
	// A completed task id can linger in asynq's registry for the retention
	// window; deleting it first guarantees the new task is accepted.
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if err := p.vidigest.queue.Inspector.DeleteTask(conf.Queue.DeliveryQueue, msg.MessageID); err != nil {
		logrus.Debugf("no stale task to delete for delivery %s: %v", msg.MessageID, err)
	}
	return p.vidigest.queue.Enqueue(ctx, msg)
}

// RecoverStalledDeliveries triggers an immediate recovery sweep with the given
// threshold. Exposed for operator use; the background processor uses its own
// schedule.
func (v *Vidigest) RecoverStalledDeliveries(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold < time.Minute {
		threshold = time.Minute
	}

	processor := NewStalledDeliveryRecoveryProcessor(v)
	processor.stuckThreshold = threshold
	return processor.recoverStalled(ctx), nil
}
