// Package storage persists decisions and realized trades for later review.
// Both stores are optional: a nil repository or snapshot cache turns every
// call into a no-op, preserving the engine's in-memory-only mode.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"futures-decision-engine/internal/risk"
)

// PostgresConfig holds the database connection settings.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// Repository stores decisions and closed trades in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRepository connects to PostgreSQL and verifies the connection.
func NewRepository(ctx context.Context, cfg PostgresConfig, logger zerolog.Logger) (*Repository, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	repo := &Repository{
		pool:   pool,
		logger: logger.With().Str("component", "Repository").Logger(),
	}
	repo.logger.Info().Str("database", cfg.Database).Msg("Connected to PostgreSQL")
	return repo, nil
}

// Close releases the connection pool.
func (r *Repository) Close() {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if r == nil {
		return nil
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			action VARCHAR(16) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			reason TEXT NOT NULL,
			leverage INT,
			margin DOUBLE PRECISION,
			stop_loss DOUBLE PRECISION,
			take_profit DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_symbol_time ON decisions (symbol, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS closed_trades (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(8) NOT NULL,
			pnl DOUBLE PRECISION NOT NULL,
			return_fraction DOUBLE PRECISION NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_symbol_time ON closed_trades (symbol, closed_at DESC)`,
	}

	for _, m := range migrations {
		if _, err := r.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

// SaveDecision persists one decision. Storage failure is logged, never
// propagated into the evaluation path.
func (r *Repository) SaveDecision(ctx context.Context, d risk.Decision) {
	if r == nil {
		return
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO decisions (id, symbol, action, confidence, reason, leverage, margin, stop_loss, take_profit, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.Symbol, string(d.Action), d.Confidence, d.Reason,
		d.Leverage, d.Margin, d.StopLoss, d.TakeProfit, d.Timestamp,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("symbol", d.Symbol).Msg("Failed to persist decision")
	}
}

// ClosedTrade is one realized trade row.
type ClosedTrade struct {
	ID             string
	Symbol         string
	Direction      string
	PnL            float64
	ReturnFraction float64
	ClosedAt       time.Time
}

// SaveClosedTrade persists one realized trade.
func (r *Repository) SaveClosedTrade(ctx context.Context, t ClosedTrade) {
	if r == nil {
		return
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO closed_trades (id, symbol, direction, pnl, return_fraction, closed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Symbol, t.Direction, t.PnL, t.ReturnFraction, t.ClosedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("symbol", t.Symbol).Msg("Failed to persist closed trade")
	}
}

// RecentDecisions returns the newest decisions for a symbol.
func (r *Repository) RecentDecisions(ctx context.Context, symbol string, limit int) ([]risk.Decision, error) {
	if r == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, symbol, action, confidence, reason, COALESCE(leverage, 0), COALESCE(margin, 0),
		        COALESCE(stop_loss, 0), COALESCE(take_profit, 0), created_at
		 FROM decisions WHERE symbol = $1 ORDER BY created_at DESC LIMIT $2`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var decisions []risk.Decision
	for rows.Next() {
		var d risk.Decision
		var action string
		if err := rows.Scan(&d.ID, &d.Symbol, &action, &d.Confidence, &d.Reason,
			&d.Leverage, &d.Margin, &d.StopLoss, &d.TakeProfit, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		d.Action = risk.Action(action)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
