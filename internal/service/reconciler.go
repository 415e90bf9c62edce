package service

import (
	"context"
	"time"

	"customer-wallet-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// Reconciler periodically resyncs every wallet.
type Reconciler struct {
	projector ports.BalanceProjector
	interval  time.Duration
	log       zerolog.Logger
}

func NewReconciler(projector ports.BalanceProjector, interval time.Duration, log zerolog.Logger) *Reconciler {
	return &Reconciler{projector: projector, interval: interval, log: log}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Msg("reconciler started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep.
func (r *Reconciler) RunOnce(ctx context.Context) *ports.ResyncReport {
	start := time.Now()
	report, err := r.projector.ResyncAll(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("reconciliation sweep failed")
	}
	if report != nil {
		r.log.Info().
			Int("checked", report.Checked).
			Int("drifted", len(report.Drifted)).
			Int("failed", report.Failed).
			Dur("duration", time.Since(start)).
			Msg("reconciliation sweep finished")
	}
	return report
}
