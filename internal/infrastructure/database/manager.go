package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/MetaCodeX/Parhelion-Logistics/internal/infrastructure/config"
	"github.com/MetaCodeX/Parhelion-Logistics/internal/infrastructure/logging"
)

// ProbeObserver receives the outcome of every CheckConnection call that
// reached a constructed engine.
type ProbeObserver interface {
	ObserveProbe(connected bool, latency time.Duration)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(log *logging.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log.With("component", "database")
		}
	}
}

// WithOpener replaces sql.Open as the pool constructor.
func WithOpener(open Opener) Option {
	return func(m *Manager) {
		m.open = open
	}
}

// WithProbeObserver registers an observer for CheckConnection outcomes.
func WithProbeObserver(o ProbeObserver) Option {
	return func(m *Manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// Manager owns the lazily-constructed engine for the process.
//
// The engine is built on the first call that needs it, and only when
// DATABASE_URL is set. An unset URL is a valid state: Engine returns nil,
// CheckConnection reports false and WithSession fails with ErrNotConfigured.
//
// Construction failures are cached. The settings snapshot is immutable, so a
// URL the driver rejected once is rejected on every retry; later callers get
// the original error immediately.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Concurrent first callers
//     observe exactly one construction attempt.
type Manager struct {
	settings  *config.Settings
	log       *logging.Logger
	open      Opener
	observers []ProbeObserver

	mu          sync.Mutex
	initialised bool
	engine      *Engine
	err         error
}

// NewManager creates a Manager for the given settings. No connection is made.
func NewManager(settings *config.Settings, opts ...Option) *Manager {
	m := &Manager{
		settings: settings,
		log:      logging.Discard(),
		open:     sql.Open,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Engine returns the shared engine, constructing it on first use.
//
// Returns:
//   - *Engine: The engine, or nil when DATABASE_URL is unset
//   - error: The (cached) construction failure; nil when unset
func (m *Manager) Engine() (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialised {
		return m.engine, m.err
	}
	m.initialised = true

	if !m.settings.DatabaseConfigured() {
		m.log.Debug("database not configured, engine left unset")
		return nil, nil
	}

	m.engine, m.err = Open(Config{
		URL:         m.settings.DatabaseURL,
		PoolSize:    m.settings.DBPoolSize,
		MaxOverflow: m.settings.DBMaxOverflow,
		Echo:        !m.settings.IsProduction(),
	}, m.open, m.log)
	if m.err != nil {
		m.log.Error("database engine construction failed", "error", m.err)
		return nil, m.err
	}

	m.log.Info("database engine created",
		"driver", m.engine.Driver(),
		"target", m.settings.DatabaseDisplay(),
		"pool_size", m.settings.DBPoolSize,
		"max_overflow", m.settings.DBMaxOverflow,
		"echo", m.engine.Echo(),
	)
	return m.engine, nil
}

// WithSession runs fn inside a session.
//
// If fn returns nil the session is committed. If fn returns an error or
// panics the session is rolled back first; the error is returned unchanged
// and a panic is re-raised. The connection goes back to the pool on every
// path.
//
// Parameters:
//   - ctx: Context for the session
//   - fn: The unit of work
//
// Returns:
//   - error: ErrNotConfigured, a construction failure, ErrConnectionFailed,
//     fn's error, or a commit failure
//
// Example:
//
//	err := manager.WithSession(ctx, func(ctx context.Context, s *database.Session) error {
//	    _, err := s.ExecContext(ctx, "INSERT INTO forecasts (id) VALUES ($1)", id)
//	    return err
//	})
func (m *Manager) WithSession(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	engine, err := m.Engine()
	if err != nil {
		return err
	}
	if engine == nil {
		return ErrNotConfigured
	}

	sess, err := engine.NewSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// No-op after a commit attempt; rolls back on error and panic paths.
		if closeErr := sess.Close(); closeErr != nil {
			m.log.Warn("session rollback failed", "error", closeErr)
		}
	}()

	if err := fn(ctx, sess); err != nil {
		return err
	}

	return sess.Commit()
}

// CheckConnection reports whether the database answers a trivial query.
//
// It never returns an error: an unset URL, a failed construction, a
// checkout failure or a query failure all yield false. Probes cut short by
// the caller's own cancellation also yield false but are not reported to
// observers.
func (m *Manager) CheckConnection(ctx context.Context) (connected bool) {
	defer func() {
		if p := recover(); p != nil {
			m.log.Error("panic during database health check", "panic", fmt.Sprint(p))
			connected = false
		}
	}()

	engine, err := m.Engine()
	if err != nil || engine == nil {
		return false
	}

	// A caller that gave up says nothing about the database.
	if ctx.Err() != nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.settings.ConnectTimeout())
	defer cancel()

	start := time.Now()
	err = engine.HealthCheck(probeCtx)
	latency := time.Since(start)

	connected = err == nil
	if !connected && ctx.Err() != nil {
		m.log.Debug("database health check abandoned by caller", "error", ctx.Err())
		return false
	}
	if !connected {
		m.log.Warn("database health check failed", "error", err, "latency_ms", latency.Milliseconds())
	}

	for _, o := range m.observers {
		o.ObserveProbe(connected, latency)
	}
	return connected
}

// Stats returns pool statistics if the engine has been constructed.
func (m *Manager) Stats() (sql.DBStats, bool) {
	m.mu.Lock()
	engine := m.engine
	m.mu.Unlock()

	if engine == nil {
		return sql.DBStats{}, false
	}
	return engine.Stats(), true
}

// Close closes the engine if it was constructed.
func (m *Manager) Close() error {
	m.mu.Lock()
	engine := m.engine
	m.mu.Unlock()

	if engine == nil {
		return nil
	}
	return engine.Close()
}
