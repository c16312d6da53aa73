package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DikshantJangra/hoperxpharma-sub002/audit"
	"github.com/DikshantJangra/hoperxpharma-sub002/cache"
	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/composition"
	"github.com/DikshantJangra/hoperxpharma-sub002/config"
	"github.com/DikshantJangra/hoperxpharma-sub002/data"
	"github.com/DikshantJangra/hoperxpharma-sub002/handlers"
	"github.com/DikshantJangra/hoperxpharma-sub002/health"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
	"github.com/DikshantJangra/hoperxpharma-sub002/postgres"
	"github.com/DikshantJangra/hoperxpharma-sub002/substitutes"
	"github.com/DikshantJangra/hoperxpharma-sub002/validation"
)

// app holds the wired services and everything that must be closed on exit.
type app struct {
	handler *handlers.HTTPHandlerImpl
	finder  *substitutes.Service
	health  *health.HealthCheckerImpl
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApp opens the configured backends and wires the services over them.
// On error everything opened so far is closed.
func buildApp(ctx context.Context, cfg *config.Config, clk clock.Clock) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var db *sql.DB
	if cfg.DrugStore == config.StorePostgres || cfg.AuditStore == config.StorePostgres {
		if db, err = openDatabase(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
	}

	var (
		store      interfaces.DrugRepository
		dataStatus interfaces.DataStatus
	)
	switch cfg.DrugStore {
	case config.StorePostgres:
		pg := postgres.NewStore(db, clk, logging.Logger())
		if err = pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare drug schema: %w", err)
		}
		store = pg
	default:
		dc := data.NewDrugContainer(clk)
		if cfg.DrugSeedFile != "" {
			if _, err = dc.LoadSeedFile(ctx, cfg.DrugSeedFile); err != nil {
				return nil, fmt.Errorf("failed to seed catalogue: %w", err)
			}
		}
		store, dataStatus = dc, dc
	}

	substituteCache, err := cache.New(cache.Options{
		Backend:       cache.Backend(cfg.CacheBackend),
		RedisURL:      cfg.RedisURL,
		KeyPrefix:     cfg.CacheKeyPrefix,
		SweepInterval: cfg.CacheSweepInterval,
		Clock:         clk,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	a.closers = append(a.closers, substituteCache.Close)

	repo, err := openAuditRepository(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, repo.Close)

	var publisher interfaces.AuditPublisher
	if cfg.KafkaBrokers != "" {
		kp := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		a.closers = append(a.closers, kp.Close)
		publisher = kp
		logging.Info("Publishing audit entries to Kafka", "topic", cfg.KafkaAuditTopic)
	}

	validator := validation.NewCompositionValidator()
	finder := substitutes.NewService(store, substituteCache, clk, cfg.SubstituteCacheTTL)
	auditLog := audit.NewService(repo, publisher, clk)
	manager := composition.NewService(store, validator, auditLog, finder, clk)

	a.finder = finder
	a.health = health.NewHealthChecker(health.DefaultTimeout,
		health.Dependency{Name: "drug_store", Pinger: store, Critical: true},
		health.Dependency{Name: "cache", Pinger: substituteCache},
		health.Dependency{Name: "audit", Pinger: repo},
	)
	a.handler = handlers.NewHTTPHandler(finder, manager, auditLog, validator, a.health, dataStatus, clk)

	logging.Info("Backends ready",
		"drug_store", cfg.DrugStore,
		"cache", cfg.CacheBackend,
		"audit_store", cfg.AuditStore,
	)
	return a, nil
}

func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}

func openAuditRepository(ctx context.Context, cfg *config.Config, db *sql.DB) (interfaces.AuditRepository, error) {
	switch cfg.AuditStore {
	case config.StorePostgres:
		repo := audit.NewPostgresRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare audit schema: %w", err)
		}
		return repo, nil
	case config.StorePebble:
		repo, err := audit.NewPebbleRepository(cfg.AuditPebbleDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble audit store: %w", err)
		}
		return repo, nil
	default:
		return audit.NewInMemoryRepository(), nil
	}
}
