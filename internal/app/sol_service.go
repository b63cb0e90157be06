package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/solbridge/internal/config"
	"github.com/dokzlo13/solbridge/internal/eventbus"
	"github.com/dokzlo13/solbridge/internal/reconcile"
	"github.com/dokzlo13/solbridge/internal/sol"
)

// SolService owns the SOL client and the reconciler polling it.
type SolService struct {
	Client     *sol.Client
	Reconciler *reconcile.Reconciler

	done chan struct{}
}

// NewSolService wires the client, host, cache and event bus into a reconciler.
func NewSolService(cfg *config.Config, h reconcile.Host, cache reconcile.Cache, bus *eventbus.Bus) *SolService {
	client := sol.NewClient(cfg.Sol.Endpoint,
		sol.WithTimeout(cfg.Sol.Timeout.Duration()),
		sol.WithRateLimit(cfg.Sol.RateLimitRPS),
	)

	return &SolService{
		Client: client,
		Reconciler: reconcile.New(
			client,
			client,
			h,
			cache,
			bus,
			cfg.Reconciler.Interval.Duration(),
			cfg.Reconciler.PruneMissing,
		),
	}
}

// Start restores cached accessories and begins polling in the background.
func (s *SolService) Start(ctx context.Context) error {
	if _, err := s.Reconciler.Restore(ctx); err != nil {
		// A broken cache only delays accessories until the first poll
		log.Warn().Err(err).Msg("Failed to restore cached accessories")
	}

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.Reconciler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Reconciler error")
		}
	}()
	return nil
}

// Wait blocks until the reconciler has stopped or timeout elapses.
// It returns immediately if Start was never called.
func (s *SolService) Wait(timeout time.Duration) {
	if s.done == nil {
		return
	}
	select {
	case <-s.done:
	case <-time.After(timeout):
		log.Warn().Dur("timeout", timeout).Msg("Reconciler did not stop in time")
	}
}

// Close releases the client's connections.
func (s *SolService) Close() {
	s.Client.Close()
}
