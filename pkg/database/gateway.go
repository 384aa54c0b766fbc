package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-center-api/pkg/config"
)

// Opener builds a connection pool for a database configuration.
type Opener func(cfg config.DatabaseConfig) (*sqlx.DB, error)

// Gateway owns the process-wide connection pool. Repositories query through it so a
// Reconfigure swaps the backend for every caller at once.
type Gateway struct {
	mu     sync.RWMutex
	db     *sqlx.DB
	cfg    config.DatabaseConfig
	open   Opener
	logger *zap.Logger
}

// NewGateway opens the initial pool using the given opener (NewPostgres when nil).
func NewGateway(cfg config.DatabaseConfig, open Opener, logger *zap.Logger) (*Gateway, error) {
	if open == nil {
		open = NewPostgres
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Gateway{db: db, cfg: cfg, open: open, logger: logger}, nil
}

// NewGatewayFromDB wraps an existing pool, mainly for tests.
func NewGatewayFromDB(db *sqlx.DB) *Gateway {
	return &Gateway{db: db, open: NewPostgres, logger: zap.NewNop()}
}

// DB returns the current pool.
func (g *Gateway) DB() *sqlx.DB {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.db
}

// Config returns the configuration the current pool was opened with.
func (g *Gateway) Config() config.DatabaseConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Reconfigure opens a pool for the new credentials and swaps it in. The previous pool
// is closed after the swap; on failure the current pool stays active.
func (g *Gateway) Reconfigure(cfg config.DatabaseConfig) error {
	db, err := g.open(cfg)
	if err != nil {
		return fmt.Errorf("reconfigure database: %w", err)
	}
	g.mu.Lock()
	previous := g.db
	g.db = db
	g.cfg = cfg
	g.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			g.logger.Warn("failed to close previous database pool", zap.Error(err))
		}
	}
	g.logger.Info("database gateway reconfigured", zap.String("host", cfg.Host), zap.String("database", cfg.Name))
	return nil
}

// Ping checks the current pool.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.DB().PingContext(ctx)
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func (g *Gateway) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := g.DB().BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Close releases the pool.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}
