package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/MetaCodeX/Parhelion-Logistics/internal/infrastructure/logging"
)

// Session is one unit of work bounded by a single commit or rollback.
//
// A session is owned by the goroutine that created it. Commit, Rollback and
// Close are safe to call more than once; only the first finishing call
// reaches the database.
type Session struct {
	tx   *sql.Tx
	echo bool
	log  *logging.Logger

	mu   sync.Mutex
	done bool
}

// ExecContext executes a statement that doesn't return rows.
func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.logStatement(query, args)
	result, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// QueryContext executes a query that returns rows.
// The caller must close the returned rows.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	s.logStatement(query, args)
	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// QueryRowContext executes a query that returns at most one row.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	s.logStatement(query, args)
	return s.tx.QueryRowContext(ctx, query, args...)
}

// Commit commits the session.
//
// Returns:
//   - error: ErrSessionClosed if already finished, or the commit failure
func (s *Session) Commit() error {
	if !s.finish() {
		return ErrSessionClosed
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("committing session: %w", err)
	}
	return nil
}

// Rollback discards the session's changes.
//
// Returns:
//   - error: ErrSessionClosed if already finished, or the rollback failure
func (s *Session) Rollback() error {
	if !s.finish() {
		return ErrSessionClosed
	}
	if err := s.tx.Rollback(); err != nil {
		return fmt.Errorf("rolling back session: %w", err)
	}
	return nil
}

// Close rolls back the session if it is still active and releases its
// connection. It is a no-op after Commit or Rollback.
func (s *Session) Close() error {
	err := s.Rollback()
	if err == ErrSessionClosed { //nolint:errorlint // sentinel returned unwrapped above
		return nil
	}
	return err
}

// Active reports whether the session can still be committed or rolled back.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.done
}

// finish marks the session done and reports whether this call did so.
func (s *Session) finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	return true
}

func (s *Session) logStatement(query string, args []any) {
	if !s.echo {
		return
	}
	s.log.Debug("sql statement", "statement", query, "args", len(args))
}
