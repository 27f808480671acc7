// Package postgres stores sync results in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

const (
	ledgerMaxConns  = 4
	ledgerIdleLimit = 10 * time.Minute
	pingTimeout     = 5 * time.Second
)

// Config locates the ledger database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewConfig reads DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME and
// DB_SSLMODE. An unparsable port falls back to 5432.
func NewConfig() *Config {
	cfg := &Config{
		Host:     envOr("DB_HOST", "localhost"),
		Port:     5432,
		User:     envOr("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASSWORD"),
		Database: envOr("DB_NAME", "zcrm"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	}
	if port, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil {
		cfg.Port = port
	}
	return cfg
}

// DSN renders the config as a libpq keyword/value connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// DB owns the connection pool behind a Ledger.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects to the ledger database and checks it answers.
func New(ctx context.Context, cfg *Config, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid ledger database settings: %w", err)
	}
	poolCfg.MaxConns = ledgerMaxConns
	poolCfg.MaxConnIdleTime = ledgerIdleLimit

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger database %s/%s is unreachable: %w", cfg.Host, cfg.Database, err)
	}

	logger.Info("Connected to ledger database",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))
	return &DB{pool: pool, logger: logger}, nil
}

// Pool is handed to NewLedger.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) Close() {
	db.pool.Close()
}

// InitSchema creates crm_sync_results and its indexes when missing.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	db.logger.Debug("Ledger schema ready")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
