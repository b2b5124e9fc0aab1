// Package reconcile runs the end-of-day sales reconciliation in the
// background: once per business day it recomputes the previous day's ledger
// record from orders, correcting any drift left by the incremental path.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kiwari-pos/fulfillment/internal/clock"
	"github.com/kiwari-pos/fulfillment/internal/sales"
	"github.com/sirupsen/logrus"
)

// Archiver recomputes a past day. Satisfied by *sales.Ledger.
type Archiver interface {
	ArchiveDay(ctx context.Context, date string) (sales.ArchiveResult, error)
}

// Reconciler checks every interval whether yesterday has been archived since
// the process started and archives it if not.
type Reconciler struct {
	archiver Archiver
	clock    *clock.Clock
	interval time.Duration
	log      logrus.FieldLogger

	mu       sync.Mutex
	lastDone string
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(archiver Archiver, clk *clock.Clock, interval time.Duration, log logrus.FieldLogger) *Reconciler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reconciler{
		archiver: archiver,
		clock:    clk,
		interval: interval,
		log:      log,
	}
}

// Start runs a first check immediately and then one per interval until Stop
// is called or ctx is cancelled. Calling Start twice is a no-op.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.run(ctx, r.done)
	r.log.WithField("interval", r.interval.String()).Info("reconciler started")
}

// Stop cancels the loop and waits for it to exit.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.log.Info("reconciler stopped")
}

func (r *Reconciler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce archives yesterday unless that already succeeded. It reports
// whether an archive ran.
func (r *Reconciler) RunOnce(ctx context.Context) bool {
	day := r.clock.Yesterday()

	r.mu.Lock()
	already := r.lastDone == day
	r.mu.Unlock()
	if already {
		return false
	}

	res, err := r.archiver.ArchiveDay(ctx, day)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		r.log.WithError(err).WithField("sale_date", day).Error("end-of-day reconciliation failed")
		return false
	}

	r.mu.Lock()
	r.lastDone = day
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"sale_date":    day,
		"total_orders": res.TotalOrders,
		"drifted":      res.Drifted(),
	}).Info("end-of-day reconciliation complete")
	return true
}

// LastArchived returns the most recent day archived by this reconciler.
func (r *Reconciler) LastArchived() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDone
}
