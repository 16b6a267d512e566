package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lokimcp/loki-mcp-server/internal/orchestrator"
	"github.com/lokimcp/loki-mcp-server/internal/ring"
)

// RegisterDiscovery wires the three discovery tools (loki_list_labels,
// loki_list_label_values, loki_list_series). Discovery tools never invoke
// the shaper (their results are already small, bounded string lists) or
// the guardrail; they are also on the default guardrail skip list.
func RegisterDiscovery(s *server.MCPServer, o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) {
	s.AddTool(mcp.NewTool("loki_list_labels",
		mcp.WithDescription("List all label names present in Loki within a time range. Defaults to the server's default window ending now if start/end are omitted."),
		mcp.WithString("start", mcp.Description("Start of the time range: RFC3339 timestamp, relative offset (e.g. -1h), or datemath expression.")),
		mcp.WithString("end", mcp.Description("End of the time range. Defaults to now.")),
	), listLabelsHandler(o, identityFn, requestIDFn))

	s.AddTool(mcp.NewTool("loki_list_label_values",
		mcp.WithDescription("List all distinct values Loki has observed for a given label name within a time range."),
		mcp.WithString("label", mcp.Required(), mcp.Description("The label name to enumerate values for, e.g. \"app\".")),
		mcp.WithString("start", mcp.Description("Start of the time range.")),
		mcp.WithString("end", mcp.Description("End of the time range.")),
	), listLabelValuesHandler(o, identityFn, requestIDFn))

	s.AddTool(mcp.NewTool("loki_list_series",
		mcp.WithDescription("List the distinct label-set combinations (series) matching one or more stream selectors within a time range."),
		mcp.WithArray("matchers", mcp.Description("Stream selectors to match, e.g. [\"{app=\\\"api\\\"}\"]. Omit to match all series.")),
		mcp.WithString("start", mcp.Description("Start of the time range.")),
		mcp.WithString("end", mcp.Description("End of the time range.")),
	), listSeriesHandler(o, identityFn, requestIDFn))
}

func listLabelsHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_list_labels"
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity := identityFn(ctx)
		requestID := requestIDFn(ctx)
		start := time.Now()

		if err := o.Admit(tool, identity); err != nil {
			return errResult(err)
		}

		rangeStart, rangeEnd, err := resolvedRange(o, req)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errResult(err)
		}

		labels, err := o.Loki.Labels(ctx, rangeStart, rangeEnd)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeBackendError, start, 0)
			return errResult(err)
		}

		result, err := jsonResult(labels)
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(result))
		return result, err
	}
}

func listLabelValuesHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_list_label_values"
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity := identityFn(ctx)
		requestID := requestIDFn(ctx)
		start := time.Now()

		if err := o.Admit(tool, identity); err != nil {
			return errResult(err)
		}

		label, err := req.RequireString("label")
		if err != nil || label == "" {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errMsg("label is required")
		}

		rangeStart, rangeEnd, err := resolvedRange(o, req)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errResult(err)
		}

		values, err := o.Loki.LabelValues(ctx, label, rangeStart, rangeEnd)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeBackendError, start, 0)
			return errResult(err)
		}

		result, err := jsonResult(values)
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(result))
		return result, err
	}
}

func listSeriesHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_list_series"
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity := identityFn(ctx)
		requestID := requestIDFn(ctx)
		start := time.Now()

		if err := o.Admit(tool, identity); err != nil {
			return errResult(err)
		}

		matchers := stringSliceArg(req, "matchers")

		rangeStart, rangeEnd, err := resolvedRange(o, req)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errResult(err)
		}

		series, err := o.Loki.Series(ctx, matchers, rangeStart, rangeEnd)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeBackendError, start, 0)
			return errResult(err)
		}

		result, err := jsonResult(series)
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(result))
		return result, err
	}
}
