package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lokimcp/loki-mcp-server/internal/orchestrator"
)

// Register wires all 15 tools onto s. identityFn resolves the calling
// identity from context (populated by httpapi's context func for HTTP
// transports, or a constant for stdio). requestIDFn resolves the same
// per-call request id httpapi's requestID middleware assigned and echoed
// as the X-Request-Id response header, so recent-actions entries can be
// correlated with the HTTP response that produced them.
func Register(s *server.MCPServer, o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) {
	RegisterDiscovery(s, o, identityFn, requestIDFn)
	RegisterQuery(s, o, identityFn, requestIDFn)
	RegisterAnalysis(s, o, identityFn, requestIDFn)
	RegisterUtility(s, o, identityFn, requestIDFn)
}
