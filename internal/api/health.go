package api

import (
	"net/http"
	"time"
)

// databaseType is reported by /health/db. The service targets PostgreSQL.
const databaseType = "postgresql"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Timestamp   string `json:"timestamp"`
}

// DatabaseHealthResponse is the body of GET /health/db.
type DatabaseHealthResponse struct {
	Status    string         `json:"status"`
	Database  DatabaseStatus `json:"database"`
	Timestamp string         `json:"timestamp"`
}

// DatabaseStatus describes database connectivity.
type DatabaseStatus struct {
	Connected bool   `json:"connected"`
	Type      string `json:"type"`
}

// ReadinessResponse is the body of GET /health/ready.
type ReadinessResponse struct {
	Ready     bool            `json:"ready"`
	Checks    ReadinessChecks `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// ReadinessChecks lists the individual readiness inputs.
type ReadinessChecks struct {
	Database bool `json:"database"`
	Config   bool `json:"config"`
}

// timestamp formats the current time as RFC 3339 UTC.
func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// handleHealth reports liveness and service metadata.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Service:     s.settings.ServiceName,
		Version:     s.settings.Version,
		Environment: string(s.settings.Environment),
		Timestamp:   s.timestamp(),
	})
}

// handleHealthDB reports database connectivity. Always 200; the status
// field carries the outcome.
func (s *Server) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	connected := s.database.CheckConnection(r.Context())

	status := "unhealthy"
	if connected {
		status = "healthy"
	}

	writeJSON(w, http.StatusOK, DatabaseHealthResponse{
		Status: status,
		Database: DatabaseStatus{
			Connected: connected,
			Type:      databaseType,
		},
		Timestamp: s.timestamp(),
	})
}

// handleReady is the readiness probe. The service accepts traffic without a
// database, so ready is unconditionally true; the checks are informational.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ReadinessResponse{
		Ready: true,
		Checks: ReadinessChecks{
			Database: s.database.CheckConnection(r.Context()),
			Config:   s.settings.JWTSecret != "",
		},
		Timestamp: s.timestamp(),
	})
}
