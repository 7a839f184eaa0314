// Package server provides the public entry point for initializing the
// agentdeck gateway.
//
// This package exists in pkg/ (not internal/) so that embedders can import
// it and compose the gateway with their own middleware around Handler.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/agentdeck/agentdeck/internal/api"
	"github.com/agentdeck/agentdeck/internal/api/handlers"
	"github.com/agentdeck/agentdeck/internal/capability"
	"github.com/agentdeck/agentdeck/internal/chat"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/metrics"
	"github.com/agentdeck/agentdeck/internal/provider"
	"github.com/agentdeck/agentdeck/internal/router"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store; in-memory unless DATABASE_URL is set.
	Store store.Store

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all gateway components from the environment and returns a
// ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the gateway with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var dataStore store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		dataStore = pg
		log.Info().Msg("Postgres store initialized")
	} else {
		dataStore = store.NewMemoryStore()
		log.Info().Msg("In-memory store initialized")
	}

	resolver := capability.NewResolver(cfg.Providers, capability.EnvCredentials{})
	registry := provider.NewRegistry(nil)
	modelRouter := router.New(resolver)
	aggregator := metrics.NewAggregator(dataStore)
	publisher := metrics.NewPublisher(aggregator)
	orchestrator := chat.NewOrchestrator(dataStore, modelRouter, registry, aggregator, cfg.Providers.UpstreamTimeout)

	h := handlers.New(dataStore, orchestrator, resolver, aggregator, publisher)
	httpRouter := api.NewRouter(cfg, h)

	return &Server{
		Handler:      httpRouter,
		Store:        dataStore,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
