package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/solbridge/internal/config"
	"github.com/dokzlo13/solbridge/internal/eventbus"
	"github.com/dokzlo13/solbridge/internal/ledger"
)

// LedgerService records bus events in the ledger and enforces retention.
type LedgerService struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	bus    *eventbus.Bus
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(cfg *config.Config, l *ledger.Ledger, bus *eventbus.Bus) *LedgerService {
	return &LedgerService{cfg: cfg, ledger: l, bus: bus}
}

// Start subscribes the recorder and starts the cleanup loop.
func (s *LedgerService) Start(ctx context.Context) {
	s.bus.SubscribeAll(s.record)
	go s.runCleanup(ctx)
}

func (s *LedgerService) record(event eventbus.Event) {
	if err := s.ledger.Append(ledger.EventType(event.Type), event.Token, event.Data); err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Str("token", event.Token).Msg("Failed to record event")
	}
}

// runCleanup periodically removes entries past the retention period.
func (s *LedgerService) runCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
