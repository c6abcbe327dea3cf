// Package api provides the HTTP surface of the analytics service.
//
// It exposes liveness, database and readiness probes plus Prometheus
// metrics:
//
//	GET /health        service metadata
//	GET /health/db     database connectivity
//	GET /health/ready  readiness (always ready; checks are informational)
//	GET /metrics       Prometheus exposition
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
