package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lokimcp/loki-mcp-server/internal/orchestrator"
	"github.com/lokimcp/loki-mcp-server/internal/ring"
)

// RegisterUtility wires loki_health and loki_describe_tools. Utility tools
// never touch the shaper or guardrail; loki_health is exempt from both by
// default configuration (see Catalog).
func RegisterUtility(s *server.MCPServer, o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) {
	s.AddTool(mcp.NewTool("loki_health",
		mcp.WithDescription("Report whether the configured Loki backend is ready."),
	), healthHandler(o, identityFn, requestIDFn))

	s.AddTool(mcp.NewTool("loki_describe_tools",
		mcp.WithDescription("Return the live tool catalog: name, description, argument schema, guardrail/cache eligibility for every tool this server exposes."),
	), describeToolsHandler(o, identityFn, requestIDFn))
}

func healthHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_health"
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity := identityFn(ctx)
		requestID := requestIDFn(ctx)
		start := time.Now()

		if err := o.Admit(tool, identity); err != nil {
			return errResult(err)
		}

		ready, err := o.Loki.Ready(ctx)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeBackendError, start, 0)
			return errResult(err)
		}

		res, err := jsonResult(map[string]bool{"ready": ready})
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(res))
		return res, err
	}
}

func describeToolsHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_describe_tools"
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity := identityFn(ctx)
		requestID := requestIDFn(ctx)
		start := time.Now()

		if err := o.Admit(tool, identity); err != nil {
			return errResult(err)
		}

		res, err := jsonResult(DescribeCatalog())
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(res))
		return res, err
	}
}
