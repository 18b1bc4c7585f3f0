package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/netra-labs/netra/pkg/config"
	"github.com/netra-labs/netra/pkg/errors"
	"github.com/netra-labs/netra/pkg/logging"
	"github.com/netra-labs/netra/pkg/resilience"
)

// AttemptRecorder receives the outcome of every connection attempt.
// The connection monitor satisfies this interface.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, env config.Environment, duration time.Duration, err error)
}

// TimeoutScaler stretches base timeouts for current network conditions.
// The VPC connector monitor satisfies this interface.
type TimeoutScaler interface {
	ScaledTimeout(base time.Duration) time.Duration
}

// DB wraps the database connection with environment-aware timeouts
type DB struct {
	*sqlx.DB
	env       config.Environment
	cfg       *config.DatabaseConfig
	scaler    TimeoutScaler
	stmtCache map[string]*sqlx.Stmt
	stmtMutex sync.RWMutex
	logger    *logging.Logger
}

// Option configures the connection process
type Option func(*connectOptions)

type connectOptions struct {
	recorder AttemptRecorder
	scaler   TimeoutScaler
	retry    resilience.RetryConfig
}

// WithAttemptRecorder reports every connection attempt to the recorder
func WithAttemptRecorder(r AttemptRecorder) Option {
	return func(o *connectOptions) {
		o.recorder = r
	}
}

// WithTimeoutScaler stretches connection timeouts using the scaler
func WithTimeoutScaler(s TimeoutScaler) Option {
	return func(o *connectOptions) {
		o.scaler = s
	}
}

// WithRetryConfig overrides the retry schedule used while connecting
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(o *connectOptions) {
		o.retry = cfg
	}
}

// Connect establishes a database connection using the environment's timeout
// profile. The whole process is bounded by the initialization timeout; each
// individual attempt is bounded by the (possibly scaled) connection timeout
// and reported to the attempt recorder.
func Connect(ctx context.Context, cfg *config.Config, opts ...Option) (*DB, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("configuration is required")
	}

	options := connectOptions{retry: resilience.DatabaseRetryConfig()}
	for _, opt := range opts {
		opt(&options)
	}

	profile := cfg.Database.Timeouts
	logger := logging.GetLogger()

	ctx, cancel := context.WithTimeout(ctx, profile.Initialization)
	defer cancel()

	var db *sqlx.DB
	retrier := resilience.NewRetrier(options.retry)
	err := retrier.Execute(ctx, func(ctx context.Context) error {
		connTimeout := profile.Connection
		if options.scaler != nil {
			connTimeout = options.scaler.ScaledTimeout(connTimeout)
		}

		start := time.Now()
		attempted, attemptErr := connect(ctx, &cfg.Database, connTimeout)
		elapsed := time.Since(start)

		if options.recorder != nil {
			options.recorder.RecordAttempt(ctx, cfg.Environment, elapsed, attemptErr)
		}

		if attemptErr != nil {
			logger.Warn("Database connection attempt failed",
				"environment", string(cfg.Environment),
				"elapsed", elapsed.String(),
				"timeout", connTimeout.String(),
				"error", attemptErr.Error(),
			)
			return attemptErr
		}

		db = attempted
		return nil
	})
	if err != nil {
		return nil, errors.NewConnectionError(string(cfg.Environment), "failed to establish database connection").WithCause(err)
	}

	db.SetMaxOpenConns(profile.MaxOpenConns)
	db.SetMaxIdleConns(profile.MaxIdleConns)
	db.SetConnMaxLifetime(profile.ConnMaxLifetime)
	db.SetConnMaxIdleTime(10 * time.Minute)

	logger.Info("Database connected",
		"environment", string(cfg.Environment),
		"max_open_conns", profile.MaxOpenConns,
		"connection_timeout", profile.Connection.String(),
	)

	return &DB{
		DB:        db,
		env:       cfg.Environment,
		cfg:       &cfg.Database,
		scaler:    options.scaler,
		stmtCache: make(map[string]*sqlx.Stmt),
		logger:    logger,
	}, nil
}

// connect performs a single bounded connection attempt
func connect(ctx context.Context, cfg *config.DatabaseConfig, timeout time.Duration) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	connSeconds := int(timeout.Seconds())
	if connSeconds < 1 {
		connSeconds = 1
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode, connSeconds,
	)

	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, errors.NewInternalError("failed to open database").WithCause(err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if ctx.Err() != nil {
			return nil, errors.NewTimeoutError("database connect").WithCause(err)
		}
		return nil, errors.NewUnavailableError("database unreachable").WithCause(err)
	}

	return db, nil
}

// Close closes the database connection and cached statements
func (db *DB) Close() error {
	db.ClearStatementCache()
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

// Environment returns the environment this connection was established for
func (db *DB) Environment() config.Environment {
	return db.env
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	if db.DB == nil {
		return errors.NewInternalError("database connection is nil")
	}

	if err := db.PingContext(ctx); err != nil {
		return errors.NewUnavailableError("database health check failed").WithCause(err)
	}

	return nil
}

// BeginTx starts a new transaction with the given options
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	tx, err := db.DB.BeginTxx(ctx, opts)
	if err != nil {
		return nil, errors.NewInternalError("failed to begin transaction").WithCause(err)
	}
	return tx, nil
}

// WithTransaction executes a function within a database transaction
func (db *DB) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.NewInternalError("failed to rollback transaction").
				WithCause(fmt.Errorf("original error: %v, rollback error: %v", err, rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternalError("failed to commit transaction").WithCause(err)
	}

	return nil
}

// Stats returns database connection statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// Config returns the database configuration
func (db *DB) Config() *config.DatabaseConfig {
	return db.cfg
}

// queryTimeout returns the statement timeout, stretched for current
// connector conditions when a scaler is wired
func (db *DB) queryTimeout() time.Duration {
	timeout := db.cfg.Timeouts.Query
	if db.scaler != nil {
		timeout = db.scaler.ScaledTimeout(timeout)
	}
	return timeout
}

// QueryWithTimeout executes a query bounded by the profile's query timeout
func (db *DB) QueryWithTimeout(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	ctx, cancel := context.WithTimeout(ctx, db.queryTimeout())
	defer cancel()

	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternalError("query execution failed").WithCause(err)
	}

	return rows, nil
}

// ExecWithTimeout executes a statement bounded by the profile's query timeout
func (db *DB) ExecWithTimeout(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, db.queryTimeout())
	defer cancel()

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternalError("statement execution failed").WithCause(err)
	}

	return result, nil
}

// PrepareStatement prepares and caches a SQL statement
func (db *DB) PrepareStatement(ctx context.Context, name, query string) (*sqlx.Stmt, error) {
	db.stmtMutex.RLock()
	if stmt, exists := db.stmtCache[name]; exists {
		db.stmtMutex.RUnlock()
		return stmt, nil
	}
	db.stmtMutex.RUnlock()

	db.stmtMutex.Lock()
	defer db.stmtMutex.Unlock()

	// Double-check after acquiring write lock
	if stmt, exists := db.stmtCache[name]; exists {
		return stmt, nil
	}

	stmt, err := db.PreparexContext(ctx, query)
	if err != nil {
		return nil, errors.NewInternalError("failed to prepare statement").WithCause(err)
	}

	db.stmtCache[name] = stmt
	return stmt, nil
}

// ClearStatementCache closes and clears all cached prepared statements
func (db *DB) ClearStatementCache() error {
	db.stmtMutex.Lock()
	defer db.stmtMutex.Unlock()

	var errs []error
	for name, stmt := range db.stmtCache {
		if err := stmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close statement %s: %w", name, err))
		}
	}

	db.stmtCache = make(map[string]*sqlx.Stmt)

	if len(errs) > 0 {
		return errors.NewInternalError("failed to clear statement cache").WithCause(fmt.Errorf("%v", errs))
	}

	return nil
}
