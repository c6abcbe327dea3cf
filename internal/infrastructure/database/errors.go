package database

import "errors"

// Sentinel errors for database operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, database.ErrNotConfigured) {
//	    // DATABASE_URL is unset
//	}
var (
	// ErrNotConfigured indicates an operation needed a database but
	// DATABASE_URL is unset.
	ErrNotConfigured = errors.New("database: not configured (set DATABASE_URL)")

	// ErrConnectionFailed indicates the database could not be reached while
	// checking out a connection or starting a session.
	ErrConnectionFailed = errors.New("database: connection failed")

	// ErrUnsupportedDriver indicates the URL scheme maps to no known driver.
	ErrUnsupportedDriver = errors.New("database: unsupported driver")

	// ErrInvalidURL indicates the database URL could not be parsed.
	ErrInvalidURL = errors.New("database: invalid url")

	// ErrSessionClosed indicates a session was already committed or rolled back.
	ErrSessionClosed = errors.New("database: session already closed")
)

// SafeError wraps a cause with a message that is safe to log. Driver errors
// raised while parsing a connection string may echo credentials, so Error()
// never includes the cause; use errors.Unwrap to inspect it.
type SafeError struct {
	msg   string
	cause error
}

func (e *SafeError) Error() string { return e.msg }
func (e *SafeError) Unwrap() error { return e.cause }
