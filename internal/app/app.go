// Package app wires the stores, oracle and channel handlers for one workspace.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"harvestlink/internal/config"
	"harvestlink/internal/db"
	"harvestlink/internal/engine"
	"harvestlink/internal/migrate"
	"harvestlink/internal/oracle"
	"harvestlink/internal/repo"
	"harvestlink/internal/session"
	"harvestlink/internal/sms"
)

// App holds everything the CLI commands and the HTTP server share.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Repo   repo.Repo
	Store  session.Store
	Oracle *oracle.Heuristic
	Driver engine.Driver
	SMS    sms.Responder
	Logger *zap.Logger

	redis *session.RedisStore
}

// Open migrates the workspace database, seeds the buyer directory on first
// use and builds the session store selected by cfg.Session.Backend.
func Open(ctx context.Context, workspace string, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn}
	if n, err := r.SeedBuyers(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed buyers: %w", err)
	} else if n > 0 {
		log.Info("seeded buyer directory", zap.Int("buyers", n))
	}

	a := &App{Config: cfg, DB: conn, Repo: r, Logger: log}
	switch cfg.Session.Backend {
	case config.BackendRedis:
		rs, err := session.NewRedisStore(ctx, cfg.Session.RedisURL, cfg.Session.TTL)
		if err != nil {
			conn.Close()
			return nil, err
		}
		a.redis = rs
		a.Store = rs
	default:
		a.Store = session.NewSQLiteStore(conn, cfg.Session.TTL)
	}

	orc := oracle.NewHeuristic(r, r)
	orc.DaysAhead = cfg.Oracle.DaysAhead
	orc.MaxBuyers = cfg.Oracle.MaxBuyers
	a.Oracle = orc
	a.Driver = engine.New(a.Store, orc, conn, cfg, log)
	a.SMS = sms.NewResponder(orc, conn, cfg.Oracle.Timeout, cfg.USSD.ServiceCode, log)
	log.Debug("workspace opened",
		zap.String("db", db.Path(workspace)),
		zap.String("session_backend", cfg.Session.Backend))
	return a, nil
}

func (a *App) Close() error {
	var firstErr error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
