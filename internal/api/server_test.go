package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MetaCodeX/Parhelion-Logistics/internal/infrastructure/config"
	"github.com/MetaCodeX/Parhelion-Logistics/internal/infrastructure/database"
	"github.com/MetaCodeX/Parhelion-Logistics/internal/infrastructure/logging"
)

// fakeProber returns a fixed connectivity result and counts calls.
type fakeProber struct {
	connected bool
	calls     atomic.Int32
}

func (p *fakeProber) CheckConnection(context.Context) bool {
	p.calls.Add(1)
	return p.connected
}

// fakePool reports fixed pool statistics.
type fakePool struct {
	stats sql.DBStats
	ok    bool
}

func (p fakePool) Stats() (sql.DBStats, bool) { return p.stats, p.ok }

func testSettings(t *testing.T, env ...string) *config.Settings {
	t.Helper()
	if env == nil {
		env = []string{}
	}
	s, err := config.Load(config.LoadOptions{Environ: env})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return s
}

// testServer creates a Server with the given prober and a fresh metrics registry.
func testServer(t *testing.T, settings *config.Settings, prober DatabaseProber) (*Server, *Metrics) {
	t.Helper()

	metrics := NewMetrics()
	srv, err := New(Deps{
		Settings: settings,
		Logger:   logging.Discard(),
		Database: prober,
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, metrics
}

// do serves one request against the server's router.
func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	settings := testSettings(t)
	tests := []struct {
		name string
		deps Deps
	}{
		{name: "missing settings", deps: Deps{Logger: logging.Discard(), Database: &fakeProber{}}},
		{name: "missing logger", deps: Deps{Settings: settings, Database: &fakeProber{}}},
		{name: "missing database", deps: Deps{Settings: settings, Logger: logging.Discard()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t, testSettings(t, "ENVIRONMENT=testing"), &fakeProber{})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.FixedZone("CST", -6*3600))
	srv.now = func() time.Time { return fixed }

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := decode[HealthResponse](t, rec)
	if body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", body.Status)
	}
	if body.Service != "python-analytics" {
		t.Errorf("service = %q", body.Service)
	}
	if body.Version != "0.6.0-alpha" {
		t.Errorf("version = %q", body.Version)
	}
	if body.Environment != "testing" {
		t.Errorf("environment = %q, want testing", body.Environment)
	}
	if body.Timestamp != "2026-01-02T09:04:05.000006Z" {
		t.Errorf("timestamp = %q, want UTC RFC 3339", body.Timestamp)
	}
}

func TestHandleHealth_EnvironmentInAllowedSet(t *testing.T) {
	for _, env := range []string{"development", "production", "testing"} {
		t.Run(env, func(t *testing.T) {
			srv, _ := testServer(t, testSettings(t, "ENVIRONMENT="+env), &fakeProber{})
			body := decode[HealthResponse](t, do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil)))
			if body.Environment != env {
				t.Errorf("environment = %q, want %q", body.Environment, env)
			}
			if _, err := time.Parse(time.RFC3339Nano, body.Timestamp); err != nil {
				t.Errorf("timestamp %q not RFC 3339: %v", body.Timestamp, err)
			}
		})
	}
}

func TestHandleHealthDB(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		wantStatus string
	}{
		{name: "reachable", connected: true, wantStatus: "healthy"},
		{name: "unreachable", connected: false, wantStatus: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{connected: tt.connected}
			srv, _ := testServer(t, testSettings(t), prober)

			rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/health/db", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			body := decode[DatabaseHealthResponse](t, rec)
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Database.Connected != tt.connected {
				t.Errorf("connected = %v, want %v", body.Database.Connected, tt.connected)
			}
			if body.Database.Type != "postgresql" {
				t.Errorf("type = %q, want postgresql", body.Database.Type)
			}
			if prober.calls.Load() != 1 {
				t.Errorf("prober called %d times, want 1", prober.calls.Load())
			}
		})
	}
}

func TestHandleReady(t *testing.T) {
	tests := []struct {
		name       string
		env        []string
		connected  bool
		wantConfig bool
	}{
		{name: "no secret no database", env: nil, wantConfig: false},
		{name: "secret set", env: []string{"JWT_SECRET=s3cret"}, wantConfig: true},
		{name: "empty secret", env: []string{"JWT_SECRET="}, wantConfig: false},
		{name: "database reachable", env: []string{"JWT_SECRET=s3cret"}, connected: true, wantConfig: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, testSettings(t, tt.env...), &fakeProber{connected: tt.connected})

			rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			body := decode[ReadinessResponse](t, rec)
			if !body.Ready {
				t.Error("ready = false, want true")
			}
			if body.Checks.Config != tt.wantConfig {
				t.Errorf("checks.config = %v, want %v", body.Checks.Config, tt.wantConfig)
			}
			if body.Checks.Database != tt.connected {
				t.Errorf("checks.database = %v, want %v", body.Checks.Database, tt.connected)
			}
		})
	}
}

// TestHealthEndpoints_UnconfiguredDatabase runs the probes against a real
// manager with no DATABASE_URL.
func TestHealthEndpoints_UnconfiguredDatabase(t *testing.T) {
	settings := testSettings(t)
	srv, _ := testServer(t, settings, database.NewManager(settings))

	db := decode[DatabaseHealthResponse](t, do(t, srv, httptest.NewRequest(http.MethodGet, "/health/db", nil)))
	if db.Database.Connected || db.Status != "unhealthy" {
		t.Errorf("/health/db = %+v, want unhealthy and disconnected", db)
	}

	ready := decode[ReadinessResponse](t, do(t, srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil)))
	if !ready.Ready || ready.Checks.Database {
		t.Errorf("/health/ready = %+v, want ready without database", ready)
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t, testSettings(t), &fakeProber{})

	t.Run("generated", func(t *testing.T) {
		rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
		id := rec.Header().Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("X-Request-ID = %q, want a UUID: %v", id, err)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "trace-123")
		rec := do(t, srv, req)
		if got := rec.Header().Get("X-Request-ID"); got != "trace-123" {
			t.Errorf("X-Request-ID = %q, want trace-123", got)
		}
	})

	t.Run("oversized replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", maxRequestIDLength+1))
		rec := do(t, srv, req)
		if _, err := uuid.Parse(rec.Header().Get("X-Request-ID")); err != nil {
			t.Errorf("oversized request ID was not replaced: %v", err)
		}
	})
}

func TestCORS(t *testing.T) {
	srv, _ := testServer(t, testSettings(t, `CORS_ORIGINS=["http://localhost:4100"]`), &fakeProber{})

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://localhost:4100")
		rec := do(t, srv, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:4100" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Allow-Credentials = %q, want true", got)
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := do(t, srv, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/health", nil)
		req.Header.Set("Origin", "http://localhost:4100")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Authorization, X-Custom")
		rec := do(t, srv, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, X-Custom" {
			t.Errorf("Allow-Headers = %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
			t.Errorf("Allow-Methods = %q, want POST included", got)
		}
	})

	t.Run("preflight disallowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/health", nil)
		req.Header.Set("Origin", "http://evil.example")
		req.Header.Set("Access-Control-Request-Method", "GET")
		rec := do(t, srv, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := testServer(t, testSettings(t), &fakeProber{})
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decode[Error](t, rec)
	if body.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, ErrCodeInternal)
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	srv, _ := testServer(t, testSettings(t), &fakeProber{})

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound || decode[Error](t, rec).Code != ErrCodeNotFound {
		t.Errorf("GET /nope = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, httptest.NewRequest(http.MethodPost, "/health/ready", nil))
	if rec.Code != http.StatusMethodNotAllowed || decode[Error](t, rec).Code != ErrCodeMethodNotAllow {
		t.Errorf("POST /health/ready = %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, metrics := testServer(t, testSettings(t), &fakeProber{})
	if err := metrics.WatchPool(fakePool{ok: true, stats: sql.DBStats{MaxOpenConnections: 15, Idle: 2}}); err != nil {
		t.Fatalf("WatchPool() error = %v", err)
	}

	metrics.ObserveProbe(true, 3*time.Millisecond)
	metrics.ObserveProbe(false, time.Second)
	do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := do(t, srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`parhelion_analytics_database_probes_total{result="connected"} 1`,
		`parhelion_analytics_database_probes_total{result="disconnected"} 1`,
		`parhelion_analytics_http_requests_total{method="GET",route="/health",status="200"} 1`,
		`parhelion_analytics_db_pool_max_open_connections 15`,
		`parhelion_analytics_db_pool_idle_connections 2`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_PoolAbsent(t *testing.T) {
	metrics := NewMetrics()
	if err := metrics.WatchPool(fakePool{ok: false}); err != nil {
		t.Fatalf("WatchPool() error = %v", err)
	}

	families, err := metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "parhelion_analytics_db_pool_") {
			t.Errorf("pool metric %q exported without a pool", f.GetName())
		}
	}
}

func TestServer_StartClose(t *testing.T) {
	settings := testSettings(t, "HOST=127.0.0.1", "PORT=0")
	srv, _ := testServer(t, settings, &fakeProber{})

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Close() //nolint:errcheck // Test cleanup

	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() error = nil, want error")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	first, _ := testServer(t, testSettings(t, "HOST=127.0.0.1", "PORT=0"), &fakeProber{})
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer first.Close() //nolint:errcheck // Test cleanup

	_, port, _ := strings.Cut(first.Addr(), ":")
	second, _ := testServer(t, testSettings(t, "HOST=127.0.0.1", "PORT="+port), &fakeProber{})
	if err := second.Start(context.Background()); err == nil {
		second.Close() //nolint:errcheck // Test cleanup
		t.Error("Start() on a bound port error = nil, want error")
	}
}
