package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Options are the pool and startup settings of Open.
type Options struct {
	URL      string
	MaxConns int
	MaxIdle  int
	Attempts int
	// RetryDelay is the pause between failed pings.
	RetryDelay time.Duration
}

// Open connects to PostgreSQL and pings it until it answers or the attempts run out.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*sql.DB, error) {
	if opts.URL == "" {
		return nil, errors.New("database URL is empty")
	}

	db, err := sql.Open("postgres", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
	}
	if opts.MaxIdle > 0 {
		db.SetMaxIdleConns(opts.MaxIdle)
	}

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	for i := 1; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		if i >= attempts {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		logger.Info("waiting for database", zap.Int("attempt", i), zap.Int("attempts", attempts), zap.Error(err))
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	logger.Info("connected to database")
	return db, nil
}

// Migrate applies every pending migration from sourceURL.
func Migrate(sourceURL, databaseURL string, logger *zap.Logger) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("migration init failed: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
