// Package app composes the marketplace engine, its collaborators, and their
// lifecycle into a runnable application. It carries no business rules itself;
// the engine lives in internal/app/services/market.
package app

import (
	"context"
	"fmt"

	"github.com/openasset/market-engine/internal/app/custodian"
	"github.com/openasset/market-engine/internal/app/events"
	"github.com/openasset/market-engine/internal/app/registry"
	marketsvc "github.com/openasset/market-engine/internal/app/services/market"
	"github.com/openasset/market-engine/internal/app/storage"
	"github.com/openasset/market-engine/internal/app/storage/memory"
	"github.com/openasset/market-engine/internal/app/system"
	"github.com/openasset/market-engine/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil store defaults to the
// in-memory implementation.
type Stores struct {
	Market storage.MarketStore
}

// Application ties the engine and its collaborators together and manages
// their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Market    *marketsvc.Service
	Registry  *registry.Ledger
	Custodian *custodian.Ledger
	Events    *events.Log
}

// Option customises application construction.
type Option func(*options)

type options struct {
	eventBufferSize int
	engine          []marketsvc.Option
}

// WithEventBufferSize sets the capacity of the market event ring buffer.
func WithEventBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBufferSize = n
		}
	}
}

// WithEngineOptions forwards options to the marketplace engine.
func WithEngineOptions(opts ...marketsvc.Option) Option {
	return func(o *options) {
		o.engine = append(o.engine, opts...)
	}
}

// New builds a fully initialised application with the provided stores. The
// in-process registry and custodian ledgers stand in for external title and
// payment systems.
func New(stores Stores, log *logger.Logger, opts ...Option) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if stores.Market == nil {
		stores.Market = memory.New()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	manager := system.NewManager()

	assetRegistry := registry.New(log)
	valueCustodian := custodian.New(log)
	eventLog := events.NewLog(o.eventBufferSize)
	engine := marketsvc.New(stores.Market, assetRegistry, valueCustodian, eventLog, log, o.engine...)

	for _, name := range []string{"registry", "custodian", "market"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:   manager,
		log:       log,
		Market:    engine,
		Registry:  assetRegistry,
		Custodian: valueCustodian,
		Events:    eventLog,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
