package database

import (
	"fmt"
	"net/url"
	"strings"
)

// Driver names registered with database/sql.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// sqliteBusyTimeoutMS is the lock wait applied to every SQLite connection.
const sqliteBusyTimeoutMS = 5000

// Target is a database URL resolved to a database/sql driver.
type Target struct {
	// Driver is the database/sql driver name.
	Driver string

	// DSN is the data source name handed to the driver.
	DSN string

	// Path is the SQLite file path, empty for PostgreSQL and in-memory SQLite.
	Path string

	// Memory is set for in-memory SQLite. The database lives only as long
	// as its single connection.
	Memory bool
}

// asyncpgOnlyParams are asyncpg connect options with no libpq equivalent.
// Left in the DSN, pgx would send them to the server as runtime parameters.
var asyncpgOnlyParams = map[string]bool{
	"prepared_statement_cache_size": true,
	"prepared_statement_name_func":  true,
	"statement_cache_size":          true,
	"max_cached_statement_lifetime": true,
	"max_cacheable_statement_size":  true,
	"command_timeout":               true,
	"async_fallback":                true,
}

// ParseURL maps a SQLAlchemy-style database URL onto a Go driver.
//
// Supported schemes:
//   - postgres, postgresql, postgresql+<dialect> (e.g. postgresql+asyncpg) → pgx
//   - sqlite, sqlite+<dialect> (e.g. sqlite+aiosqlite) → sqlite3
//
// SQLite URLs follow SQLAlchemy: sqlite:///relative.db, sqlite:////abs/path.db,
// and sqlite:// for an in-memory database.
func ParseURL(raw string) (Target, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok || scheme == "" {
		return Target{}, fmt.Errorf("%w: missing scheme", ErrInvalidURL)
	}

	// Split off the SQLAlchemy dialect suffix.
	base, dialect, _ := strings.Cut(strings.ToLower(scheme), "+")

	switch base {
	case "postgres", "postgresql":
		if rest == "" {
			return Target{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
		}
		if dialect == "asyncpg" {
			translated, err := translateAsyncpgQuery(rest)
			if err != nil {
				return Target{}, err
			}
			rest = translated
		}
		return Target{Driver: DriverPostgres, DSN: "postgres://" + rest}, nil

	case "sqlite":
		path, query, _ := strings.Cut(rest, "?")
		path = strings.TrimPrefix(path, "/")

		t := Target{Driver: DriverSQLite}
		if path == "" || path == ":memory:" {
			path = ":memory:"
			t.Memory = true
		} else {
			t.Path = path
		}

		t.DSN = fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", path, sqliteBusyTimeoutMS)
		if query != "" {
			t.DSN += "&" + query
		}
		return t, nil

	default:
		return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedDriver, base)
	}
}

// translateAsyncpgQuery rewrites the query of an asyncpg URL into the libpq
// names pgx understands: ssl becomes sslmode, timeout becomes
// connect_timeout, and asyncpg-only options are dropped. An explicit
// sslmode wins over ssl.
func translateAsyncpgQuery(rest string) (string, error) {
	base, query, ok := strings.Cut(rest, "?")
	if !ok || query == "" {
		return base, nil
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "", fmt.Errorf("%w: malformed query string", ErrInvalidURL)
	}

	out := url.Values{}
	for key, vals := range values {
		last := vals[len(vals)-1]
		switch {
		case key == "ssl":
			if values.Has("sslmode") {
				continue
			}
			out.Set("sslmode", asyncpgSSLMode(last))
		case key == "timeout":
			if values.Has("connect_timeout") {
				continue
			}
			out.Set("connect_timeout", last)
		case asyncpgOnlyParams[key]:
			continue
		default:
			out[key] = vals
		}
	}

	if len(out) == 0 {
		return base, nil
	}
	return base + "?" + out.Encode(), nil
}

// asyncpgSSLMode maps asyncpg's ssl values (a mode name or a boolean) to sslmode.
func asyncpgSSLMode(v string) string {
	switch mode := strings.ToLower(v); mode {
	case "true", "1", "on":
		return "require"
	case "false", "0", "off":
		return "disable"
	default:
		return mode
	}
}
