package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/solbridge/internal/config"
	"github.com/dokzlo13/solbridge/internal/db"
	"github.com/dokzlo13/solbridge/internal/eventbus"
	"github.com/dokzlo13/solbridge/internal/host"
	"github.com/dokzlo13/solbridge/internal/ledger"
	"github.com/dokzlo13/solbridge/internal/reconcile"
	"github.com/dokzlo13/solbridge/internal/sol"
	"github.com/dokzlo13/solbridge/internal/storage"
)

// CacheKind is the resource_state kind holding the last known device per token.
const CacheKind = "accessory"

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Store  *storage.Store
	Cache  *storage.TypedStore[sol.Device]
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Accessory host; mqtt is set when a broker is configured
	Host reconcile.Host
	mqtt *host.MQTT

	// High-level services
	Sol     *SolService
	History *LedgerService
	HTTP    *HTTPService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Storage: accessory cache and event history share one database
	s.Store = storage.NewStore(database.DB)
	s.Cache = storage.NewTypedStore[sol.Device](s.Store, CacheKind)
	s.Ledger = ledger.New(database.DB)

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Accessory host
	if cfg.MQTT.Broker != "" {
		client, err := host.Dial(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.ConnectTimeout.Duration())
		if err != nil {
			s.Close()
			return nil, err
		}
		s.mqtt = host.NewMQTT(client, cfg.MQTT.TopicPrefix, cfg.MQTT.WriteTimeout.Duration())
		s.Host = s.mqtt
	} else {
		log.Info().Msg("No MQTT broker configured, accessories stay in process")
		s.Host = host.NewMemory()
	}

	s.Sol = NewSolService(cfg, s.Host, s.Cache, s.Bus)
	s.History = NewLedgerService(cfg, s.Ledger, s.Bus)
	s.HTTP = NewHTTPService(cfg, s.Sol.Reconciler, s.Ledger)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	// Record events before anything can publish them
	s.History.Start(ctx)

	if s.mqtt != nil {
		if err := s.mqtt.Start(ctx); err != nil {
			return err
		}
	}

	if err := s.Sol.Start(ctx); err != nil {
		return err
	}

	s.HTTP.Start(ctx)
	return nil
}

// ClearCache clears the cached accessories.
func (s *Services) ClearCache() error {
	return s.Cache.Clear()
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	timeout := s.cfg.ShutdownTimeout.Duration()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Everything that can write must finish before the bus and database close
	if s.Sol != nil {
		s.Sol.Wait(timeout)
	}
	if s.mqtt != nil {
		s.mqtt.Close(ctx)
	}
	if s.HTTP != nil {
		s.HTTP.Wait(ctx)
	}
	if s.Bus != nil {
		s.Bus.Close(ctx)
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.mqtt != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.mqtt.Close(ctx)
		cancel()
	}
	if s.Sol != nil {
		s.Sol.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
