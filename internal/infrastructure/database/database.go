package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/MetaCodeX/Parhelion-Logistics/internal/infrastructure/logging"
)

// Engine configuration constants.
const (
	// dirPermissions is the permission mode for a SQLite database directory.
	dirPermissions = 0750

	// connMaxLifetime is how long a pooled connection may be reused.
	connMaxLifetime = time.Hour

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute

	// defaultProbeTimeout bounds HealthCheck when the caller sets no deadline.
	defaultProbeTimeout = 5 * time.Second
)

// Opener constructs a *sql.DB for a driver name and DSN. sql.Open is the
// production implementation; tests substitute one returning a mock.
type Opener func(driverName, dsn string) (*sql.DB, error)

// Engine is the shared connection pool. It wraps a *sql.DB, checks
// connections out per unit of work and returns them afterwards.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Engine struct {
	db     *sql.DB
	driver string
	echo   bool
	log    *logging.Logger
}

// Config contains engine construction options.
type Config struct {
	// URL is the database URL (see ParseURL for accepted schemes).
	URL string

	// PoolSize is the number of idle connections kept ready.
	PoolSize int

	// MaxOverflow is how many connections may be opened beyond PoolSize
	// under load.
	MaxOverflow int

	// Echo logs every statement executed through a Session at debug level.
	Echo bool
}

// Open creates an engine without connecting. The first connection is made
// when a session or health check needs one.
//
// It performs the following setup:
//  1. Resolves the URL to a driver (pgx or sqlite3)
//  2. Creates the SQLite directory when the target is a file
//  3. Opens the pool and applies the sizing rules
//
// Connections are validated on checkout: pgx pings a reused connection
// before handing it out, and database/sql discards connections the driver
// reports as bad.
//
// Parameters:
//   - cfg: Engine configuration
//   - open: Pool constructor (nil uses sql.Open)
//   - log: Logger for statement echo (nil discards)
//
// Returns:
//   - *Engine: Engine ready for use
//   - error: If the URL is malformed or the driver rejects the DSN
func Open(cfg Config, open Opener, log *logging.Logger) (*Engine, error) {
	if open == nil {
		open = sql.Open
	}
	if log == nil {
		log = logging.Discard()
	}

	target, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	if target.Path != "" {
		if err := os.MkdirAll(filepath.Dir(target.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := open(target.Driver, target.DSN)
	if err != nil {
		return nil, &SafeError{
			msg:   fmt.Sprintf("database: opening %s engine failed (check the DATABASE_URL format)", target.Driver),
			cause: err,
		}
	}

	switch target.Driver {
	case DriverSQLite:
		// SQLite only supports one writer
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	default:
		poolSize := max(cfg.PoolSize, 1)
		sqlDB.SetMaxIdleConns(poolSize)
		sqlDB.SetMaxOpenConns(poolSize + max(cfg.MaxOverflow, 0))
	}
	lifetime, idleTime := connLimits(target)
	sqlDB.SetConnMaxLifetime(lifetime)
	sqlDB.SetConnMaxIdleTime(idleTime)

	return &Engine{
		db:     sqlDB,
		driver: target.Driver,
		echo:   cfg.Echo,
		log:    log,
	}, nil
}

// connLimits returns the connection recycling limits for a target. An
// in-memory SQLite database is dropped with its connection, so that
// connection is never recycled (zero means no limit).
func connLimits(target Target) (lifetime, idleTime time.Duration) {
	if target.Memory {
		return 0, 0
	}
	return connMaxLifetime, connMaxIdleTime
}

// Close closes the pool. Connections checked out by open sessions are
// closed when those sessions finish.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Driver returns the database/sql driver name backing the engine.
func (e *Engine) Driver() string {
	return e.driver
}

// Echo reports whether statements are logged.
func (e *Engine) Echo() bool {
	return e.echo
}

// Stats returns connection pool statistics.
func (e *Engine) Stats() sql.DBStats {
	return e.db.Stats()
}

// HealthCheck checks out a dedicated connection and runs a trivial query.
// If ctx has no deadline a default timeout applies.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, an error wrapping ErrConnectionFailed otherwise
func (e *Engine) HealthCheck(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultProbeTimeout)
		defer cancel()
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: checking out connection: %w", ErrConnectionFailed, err)
	}
	defer conn.Close() //nolint:errcheck // returning the connection to the pool

	var result int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("%w: health query: %w", ErrConnectionFailed, err)
	}
	return nil
}

// NewSession begins a transaction on a pooled connection. This is the
// session factory; callers own the returned session and must finish it with
// Commit, Rollback or Close. Manager.WithSession does this automatically.
//
// Parameters:
//   - ctx: Context for the whole session; cancelling it rolls the transaction back
//
// Returns:
//   - *Session: Active session
//   - error: Wrapping ErrConnectionFailed if no connection could be obtained
func (e *Engine) NewSession(ctx context.Context) (*Session, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning session: %w", ErrConnectionFailed, err)
	}
	return &Session{
		tx:   tx,
		echo: e.echo,
		log:  e.log,
	}, nil
}
