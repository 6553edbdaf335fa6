package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/cache"
	"github.com/cleared-dev/ledger/internal/config"
	"github.com/cleared-dev/ledger/internal/events"
	"github.com/cleared-dev/ledger/internal/logging"
	"github.com/cleared-dev/ledger/internal/posting"
	"github.com/cleared-dev/ledger/internal/report"
	"github.com/cleared-dev/ledger/internal/store"
	"github.com/cleared-dev/ledger/internal/store/memory"
	"github.com/cleared-dev/ledger/internal/store/postgres"
)

// app is everything one command invocation needs.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	store    store.Store
	engine   *posting.Engine
	accounts *accounts.Service
	reports  *report.Aggregator
	closers  []func() error
}

// loadConfig reads path, falling back to defaults when it does not exist so
// the environment alone can configure a deployment.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default("", ""), nil
	}
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	if p := cfg.Events.AuditLog; p != "" && !filepath.IsAbs(p) {
		cfg.Events.AuditLog = filepath.Join(filepath.Dir(path), p)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Warn("using the in-memory store; nothing is persisted")
		return memory.New(), nil
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Database.URL, postgres.PoolOptions{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		}, log)
		if err != nil {
			return nil, err
		}
		return postgres.New(pool), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

func (c *cli) open(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	st, err := c.openStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a := &app{cfg: cfg, log: log, store: st}
	a.closers = append(a.closers, func() error { st.Close(); return nil })

	var (
		reportCache report.Cache
		invalidator posting.Invalidator
	)
	if cfg.Cache.Enabled {
		rc, err := cache.Connect(ctx, cache.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		}, log)
		if err != nil {
			log.Warn("report cache disabled", zap.Error(err))
		} else {
			reportCache, invalidator = rc, rc
			a.closers = append(a.closers, rc.Close)
		}
	}

	var pubs events.Fanout
	if cfg.Events.AuditLog != "" {
		pubs = append(pubs, events.NewAuditLog(cfg.Events.AuditLog))
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, log)
		pubs = append(pubs, kp)
		a.closers = append(a.closers, kp.Close)
	}

	a.engine = posting.NewEngine(st, posting.Options{
		Logger:      log,
		Publisher:   pubs,
		Invalidator: invalidator,
		MaxAttempts: cfg.Posting.MaxAttempts,
	})
	a.accounts = accounts.NewService(st, accounts.Options{
		Logger:      log,
		Publisher:   pubs,
		Invalidator: invalidator,
	})
	a.reports = report.NewAggregator(st, report.Options{Logger: log, Cache: reportCache})
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("closing", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
