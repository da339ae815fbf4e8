package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"payportal/internal/api"
	"payportal/internal/approval"
	"payportal/internal/audit"
	"payportal/internal/auth"
	"payportal/internal/config"
	"payportal/internal/events"
	"payportal/internal/ledger"
	"payportal/internal/logging"
	"payportal/internal/metrics"
	"payportal/internal/records"
	"payportal/internal/store"
	"payportal/internal/store/memory"
	"payportal/internal/store/postgres"
	"payportal/internal/throttle"
)

// app holds every long-lived component of a running portal.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    store.Store
	ledger   *ledger.Ledger
	server   *api.Server
	consumer *events.AuditConsumer
	closers  []func()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.New(), nil
	default:
		pg, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	}
}

func newLedger(s store.Store, cfg *config.Config, logger *logging.Logger) (*ledger.Ledger, error) {
	userBalance, adminBalance, err := cfg.Ledger.Balances()
	if err != nil {
		return nil, err
	}
	return ledger.New(s,
		auth.NewPasswords(cfg.Auth.BcryptCost),
		ledger.NewNumberGenerator(s, 0),
		ledger.Balances{User: userBalance, Admin: adminBalance},
		logger), nil
}

func adminSeed(cfg *config.Config) ledger.Registration {
	return ledger.Registration{
		Name:     cfg.Admin.Name,
		Surname:  cfg.Admin.Surname,
		IDNumber: cfg.Admin.IDNumber,
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, func() { a.store.Close() })

	a.ledger, err = newLedger(a.store, cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := seedAdmin(ctx, a.ledger, cfg); err != nil {
		if !errors.Is(err, ledger.ErrNoAdminPassword) {
			return nil, fmt.Errorf("seed admin: %w", err)
		}
		logger.Warn("no admin account exists and admin.password is not set",
			zap.String("email", cfg.Admin.Email))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheusCollector("payportal")
	if err := collector.Register(registry); err != nil {
		return nil, err
	}

	var trail *audit.Store
	if cfg.Mongo.URI != "" {
		trail, err = audit.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { trail.Close(context.Background()) })
	}

	var publisher events.Publisher = events.Discard{}
	switch {
	case cfg.RabbitMQ.URI != "":
		rabbit, err := events.Dial(cfg.RabbitMQ.URI, cfg.RabbitMQ.Queue, collector, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rabbit.Close)
		publisher = rabbit
		if trail != nil {
			a.consumer = events.NewAuditConsumer(rabbit, trail, logger)
		}
	case trail != nil:
		publisher = events.Direct{Sink: trail}
	}

	var limiter throttle.Limiter = throttle.Noop{}
	if cfg.Redis.Addr != "" {
		rl, err := throttle.NewRedisLimiter(ctx, throttle.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			Limit:    cfg.Redis.LoginAttempts,
			Window:   cfg.Redis.LoginWindow,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rl.Close)
		limiter = rl
	}

	deps := api.Deps{
		Ledger:    a.ledger,
		Records:   records.New(a.store, a.ledger, logger),
		Approvals: approval.New(a.store, publisher, collector, logger),
		Tokens:    auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer),
		Storage:   a.store,
		Limiter:   limiter,
		Metrics:   collector,
		Gatherer:  registry,
		Logger:    logger,

		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if trail != nil {
		deps.Audit = trail
	}
	a.server = api.NewServer(deps)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
