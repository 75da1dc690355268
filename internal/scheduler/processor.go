package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is the pause between daemon cycles.
const DefaultInterval = 10 * time.Second

// Processor is the daemon: it runs an evaluation pass then a reconciliation
// pass on a fixed cadence until its context is cancelled. It is a plain
// value with injected collaborators; tests drive Service passes directly.
type Processor struct {
	service  *Service
	interval time.Duration
}

func NewProcessor(service *Service, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Processor{
		service:  service,
		interval: interval,
	}
}

// Start runs the daemon loop. The first cycle runs immediately; subsequent
// cycles run every interval. Item failures are reported per item and never
// stop the loop.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "daemon").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting schedule daemon")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down schedule daemon")
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

func (p *Processor) runCycle(ctx context.Context) {
	logger := log.With().Str("component", "daemon").Logger()

	dispatches, err := p.service.EvaluateDuePass(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("evaluation pass failed")
	}

	reconciles, err := p.service.ReconcileLivePass(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("reconciliation pass failed")
	}

	dispatched, dispatchFailures := 0, 0
	for _, r := range dispatches {
		if r.Err == nil {
			dispatched++
		} else if !errIsContext(r.Err) {
			dispatchFailures++
		}
	}

	reconciled, reconcileFailures := 0, 0
	for _, r := range reconciles {
		if r.Err == nil {
			reconciled++
		} else if !errIsContext(r.Err) {
			reconcileFailures++
		}
	}

	if dispatched+dispatchFailures+reconciled+reconcileFailures > 0 {
		logger.Info().
			Int("dispatched", dispatched).
			Int("dispatch_failures", dispatchFailures).
			Int("reconciled", reconciled).
			Int("reconcile_failures", reconcileFailures).
			Msg("daemon cycle complete")
	}
}
