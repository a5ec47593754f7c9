package cmd

import (
	"fmt"

	"github.com/gridprobe/gridprobe/internal/adapters/provider"
	"github.com/gridprobe/gridprobe/internal/catalog"
	"github.com/gridprobe/gridprobe/internal/config"
	"github.com/gridprobe/gridprobe/internal/coordinator"
	"github.com/gridprobe/gridprobe/internal/core"
	"github.com/gridprobe/gridprobe/internal/logging"
	"github.com/gridprobe/gridprobe/internal/prompt"
	"github.com/gridprobe/gridprobe/internal/session"
	"github.com/gridprobe/gridprobe/internal/store"
)

// app bundles the wired service components shared by serve and analyze.
type app struct {
	registry *provider.Registry
	coord    *coordinator.Coordinator
	catalog  *catalog.FSCatalog
	store    core.ResultStore
	manager  *session.Manager
}

// newApp wires the runtime from configuration. ephemeralStore forces the
// in-memory result store regardless of configured driver (one-shot CLI runs
// keep no database unless asked).
func newApp(cfg *config.Config, logger *logging.Logger, ephemeralStore bool) (*app, error) {
	registry := provider.NewRegistry(logger)
	coord := coordinator.New(logger)
	for name, pc := range cfg.Providers {
		err := registry.Register(pc.Protocol, provider.Settings{
			Name:            name,
			BaseURL:         pc.BaseURL,
			APIKeyEnv:       pc.APIKeyEnv,
			DefaultModel:    pc.DefaultModel,
			Timeout:         pc.Timeout,
			MaxOutputTokens: pc.MaxOutputTokens,
		})
		if err != nil {
			return nil, err
		}
		coord.SetWidth(name, pc.EffectiveSlots())
	}

	cat, err := catalog.NewFSCatalog(cfg.Catalog.Dir)
	if err != nil {
		return nil, err
	}

	var resultStore core.ResultStore
	switch {
	case ephemeralStore, cfg.Storage.Driver == "memory":
		resultStore = store.NewMemoryStore()
	case cfg.Storage.Driver == "sqlite":
		resultStore, err = store.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	manager := session.NewManager(
		logger,
		cat,
		prompt.NewBuilder(),
		registry,
		coord,
		resultStore,
		session.Config{
			Retention:      cfg.Session.Retention,
			DefaultTimeout: cfg.Session.DefaultTimeout,
			EventBuffer:    cfg.Session.EventBuffer,
		},
	)

	return &app{
		registry: registry,
		coord:    coord,
		catalog:  cat,
		store:    resultStore,
		manager:  manager,
	}, nil
}

// applyConfig pushes reloadable settings onto the running components.
// Provider endpoints and slot widths can change without a restart.
func (a *app) applyConfig(cfg *config.Config, logger *logging.Logger) {
	for name, pc := range cfg.Providers {
		err := a.registry.Register(pc.Protocol, provider.Settings{
			Name:            name,
			BaseURL:         pc.BaseURL,
			APIKeyEnv:       pc.APIKeyEnv,
			DefaultModel:    pc.DefaultModel,
			Timeout:         pc.Timeout,
			MaxOutputTokens: pc.MaxOutputTokens,
		})
		if err != nil {
			logger.Warn("skipping provider on reload", "provider", name, "error", err)
			continue
		}
		a.coord.SetWidth(name, pc.EffectiveSlots())
	}
	logger.Info("configuration reloaded", "providers", len(cfg.Providers))
}

// close releases everything in reverse wiring order.
func (a *app) close(logger *logging.Logger) {
	a.manager.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("closing result store", "error", err)
	}
}
