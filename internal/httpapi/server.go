package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lokimcp/loki-mcp-server/internal/config"
	"github.com/lokimcp/loki-mcp-server/internal/identity"
	"github.com/lokimcp/loki-mcp-server/internal/orchestrator"
)

type identityKey struct{}

// IdentityFromContext returns the identity stashed by the MCP HTTP context
// func, or "" if none was set (e.g. a direct unit-test call).
func IdentityFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(string)
	return id
}

// identityContextFunc resolves the calling identity from the inbound HTTP
// request and attaches it to the context mcp-go threads through to tool
// handlers, the same composition shape as the obs-mcp example's
// authFromRequest/WithHTTPContextFunc wiring.
func identityContextFunc(headerName string) server.HTTPContextFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		return context.WithValue(ctx, identityKey{}, identity.Resolve(r, headerName))
	}
}

// Server bundles the HTTP surface's dependencies and the composed mux.
type Server struct {
	cfg       config.Config
	orch      *orchestrator.Orchestrator
	mcpServer *server.MCPServer
	readiness *readinessProbe

	Handler http.Handler
}

// New composes the full HTTP surface described in spec.md §4.10: health,
// readiness, metrics, the mounted MCP transport, and debug endpoints, all
// wrapped in request-id/recovery/access-log middleware.
func New(cfg config.Config, o *orchestrator.Orchestrator, mcpServer *server.MCPServer) *Server {
	s := &Server{
		cfg:       cfg,
		orch:      o,
		mcpServer: mcpServer,
		readiness: newReadinessProbe(o.Loki, o.Metrics, cfg.ReadinessTTL()),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.HandlerFor(o.Metrics.Gatherer(), promhttp.HandlerOpts{}))

	endpoint := cfg.Server.MCPEndpointPath
	if endpoint == "" {
		endpoint = "/mcp"
	}
	streamable := server.NewStreamableHTTPServer(mcpServer,
		server.WithStateLess(true),
		server.WithHTTPContextFunc(identityContextFunc(cfg.Server.IdentityHeader)),
	)
	mux.Handle(endpoint, streamable)

	if cfg.RecentActions.Enabled {
		mux.HandleFunc("/debug/recent-actions", s.handleRecentActions)
		mux.HandleFunc("/debug/cache-stats", s.handleCacheStats)
	}

	s.Handler = chain(mux, requestID, recoverer, accessLog, s.countRequests)
	return s
}

// countRequests is the innermost wrapper, so it sees the status code the
// handler wrote and records it in HTTPRequestsTotal. A request whose
// handler panics is not counted: the panic unwinds past it to recoverer.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if s.orch.Metrics != nil {
			s.orch.Metrics.HTTPRequestsTotal.WithLabelValues(r.URL.Path, statusBucket(sw.status)).Inc()
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusBucket(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// handleHealthz always reports 200 once the process is up; it never
// contacts Loki.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReadyz reports 200 when the last readiness probe (cached for
// cfg.ReadinessTTL) succeeded, 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ready, err := s.readiness.check(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !ready || err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		msg := "not ready"
		if err != nil {
			msg = err.Error()
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not-ready", "reason": msg})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
