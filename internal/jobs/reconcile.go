package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/atelierhq/portal-server-go/internal/config"
)

// PaymentReconciler is the narrow slice of the payment service the job
// drives.
type PaymentReconciler interface {
	ReconcileProcessing(ctx context.Context, olderThan time.Time) (int, error)
}

// ReconcileJob periodically sweeps invoices stuck with an open checkout
// session, catching payments whose webhook never arrived and releasing
// sessions the processor expired.
type ReconcileJob struct {
	payments PaymentReconciler
	interval time.Duration
	done     chan struct{}
}

func NewReconcileJob(payments PaymentReconciler, interval time.Duration) *ReconcileJob {
	return &ReconcileJob{
		payments: payments,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *ReconcileJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("payment reconcile job started")
}

func (j *ReconcileJob) Stop() {
	close(j.done)
	log.Info().Msg("payment reconcile job stopped")
}

func (j *ReconcileJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.reconcile()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.reconcile()
		}
	}
}

func (j *ReconcileJob) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-config.ReconcileMinSessionAge)
	count, err := j.payments.ReconcileProcessing(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("payment reconciliation failed")
		return
	}
	if count > 0 {
		log.Info().Int("count", count).Msg("reconciled stuck checkout sessions")
	}
}
