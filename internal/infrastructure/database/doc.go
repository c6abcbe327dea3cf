// Package database owns the analytics service's relational database
// resources.
//
// This package manages:
//   - A lazily-constructed connection pool (Engine), built only when
//     DATABASE_URL is set
//   - Scoped sessions that commit on success and roll back on failure
//   - A connectivity probe that never returns an error
//
// PostgreSQL is reached through pgx's database/sql driver and SQLite through
// go-sqlite3. SQLAlchemy-style URLs (postgresql+asyncpg://, sqlite:///) are
// accepted unchanged; see ParseURL.
//
// Security Considerations:
//   - All queries should use parameterised statements
//   - Errors raised while opening the pool never include the DSN
//
// Usage:
//
//	manager := database.NewManager(settings, database.WithLogger(log))
//	defer manager.Close()
//
//	if manager.CheckConnection(ctx) {
//	    // database reachable
//	}
//
//	err := manager.WithSession(ctx, func(ctx context.Context, s *database.Session) error {
//	    _, err := s.ExecContext(ctx, "UPDATE forecasts SET stale = true")
//	    return err
//	})
package database
