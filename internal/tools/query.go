package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lokimcp/loki-mcp-server/internal/orchestrator"
	"github.com/lokimcp/loki-mcp-server/internal/ring"
	"github.com/lokimcp/loki-mcp-server/internal/shaper"
)

// DefaultQueryLimit and MaxQueryLimit bound the "limit" argument accepted
// by the query/execution tools, mirroring the teacher's
// DefaultLokiLogLimit/MaxLokiLogLimit constants.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 5000
)

// RegisterQuery wires the four query/execution tools. loki_query_logs,
// loki_query_range and loki_instant_query run the full pipeline: admit,
// resolve range, cache lookup, guardrail, Loki call, shape, record.
// loki_tail skips the cache lookup and always returns raw lines.
func RegisterQuery(s *server.MCPServer, o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) {
	s.AddTool(mcp.NewTool("loki_query_logs",
		mcp.WithDescription("Run a LogQL query over a time range and return matching log lines, shaped according to result size (raw/truncated/summary/smart)."),
		mcp.WithString("query", mcp.Required(), mcp.Description("LogQL query, e.g. {app=\"api\"} |= \"error\".")),
		mcp.WithString("start", mcp.Description("Start of the time range.")),
		mcp.WithString("end", mcp.Description("End of the time range.")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum log lines to fetch from Loki (default %d, max %d).", DefaultQueryLimit, MaxQueryLimit))),
		mcp.WithString("mode", mcp.Description("Response shaping mode: raw, truncated, summary, or smart (default).")),
	), queryLogsHandler(o, identityFn, requestIDFn, "loki_query_logs", "backward"))

	s.AddTool(mcp.NewTool("loki_query_range",
		mcp.WithDescription("Run a LogQL range query with explicit direction control, returning matching log lines shaped by mode."),
		mcp.WithString("query", mcp.Required(), mcp.Description("LogQL query.")),
		mcp.WithString("start", mcp.Description("Start of the time range.")),
		mcp.WithString("end", mcp.Description("End of the time range.")),
		mcp.WithNumber("limit", mcp.Description("Maximum log lines to fetch.")),
		mcp.WithString("direction", mcp.Description("forward or backward (default backward).")),
		mcp.WithString("mode", mcp.Description("Response shaping mode.")),
	), queryRangeHandler(o, identityFn, requestIDFn))

	s.AddTool(mcp.NewTool("loki_instant_query",
		mcp.WithDescription("Evaluate a LogQL query at a single instant, returning log lines present at that point."),
		mcp.WithString("query", mcp.Required(), mcp.Description("LogQL query.")),
		mcp.WithString("at", mcp.Description("Instant to evaluate at (defaults to now).")),
		mcp.WithNumber("limit", mcp.Description("Maximum log lines to return.")),
		mcp.WithString("mode", mcp.Description("Response shaping mode.")),
	), instantQueryHandler(o, identityFn, requestIDFn))

	s.AddTool(mcp.NewTool("loki_tail",
		mcp.WithDescription("Tail a LogQL query for a bounded duration, returning the lines observed. Not cached; exempt from the guardrail precheck is NOT granted (tailing is still guardrailed on the selector)."),
		mcp.WithString("query", mcp.Required(), mcp.Description("LogQL query to tail.")),
		mcp.WithNumber("durationSeconds", mcp.Description("How long to tail before returning, in seconds (default 5, max 60).")),
		mcp.WithNumber("maxLines", mcp.Description("Stop early once this many lines are observed (default 500).")),
	), tailHandler(o, identityFn, requestIDFn))
}

func clampLimit(v, fallback, max int) int {
	if v <= 0 {
		return fallback
	}
	if v > max {
		return max
	}
	return v
}

func queryLogsHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string, tool, direction string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return runRangeQuery(ctx, o, identityFn, requestIDFn, tool, req, direction)
	}
}

func queryRangeHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_query_range"
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		direction := optionalString(req, "direction")
		if direction != "forward" {
			direction = "backward"
		}
		return runRangeQuery(ctx, o, identityFn, requestIDFn, tool, req, direction)
	}
}

func runRangeQuery(ctx context.Context, o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string, tool string, req mcp.CallToolRequest, direction string) (*mcp.CallToolResult, error) {
	identity := identityFn(ctx)
	requestID := requestIDFn(ctx)
	start := time.Now()

	if err := o.Admit(tool, identity); err != nil {
		return errResult(err)
	}

	logql, err := req.RequireString("query")
	if err != nil || logql == "" {
		o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
		return errMsg("query is required")
	}

	rangeStart, rangeEnd, err := resolvedRange(o, req)
	if err != nil {
		o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
		return errResult(err)
	}

	limit := clampLimit(optionalInt(req, "limit", DefaultQueryLimit), DefaultQueryLimit, MaxQueryLimit)
	mode := shapeMode(req)

	fp := o.Fingerprint(tool, map[string]any{
		"query": logql, "start": rangeStart, "end": rangeEnd, "limit": limit, "direction": direction, "mode": string(mode),
	})

	artifact, err := o.CachedOrCompute(ctx, tool, fp, true, func(ctx context.Context) (any, error) {
		verdict, err := o.CheckGuardrail(ctx, tool, logql, rangeStart, rangeEnd)
		if err != nil {
			return nil, err
		}
		if !verdict.Allowed {
			return nil, &orchestrator.Rejection{Outcome: ring.OutcomeGuardrailRejected, Reason: verdict.Reason}
		}

		result, err := o.Loki.RangeQuery(ctx, logql, rangeStart, rangeEnd, limit, direction)
		if err != nil {
			return nil, err
		}
		lines := flattenStreams(result.Result)
		return shaper.Shape(lines, shaper.ResolveMode(mode, len(lines)), 50), nil
	})

	if err != nil {
		recordErrOutcome(o, requestID, tool, identity, start, err)
		return errResult(err)
	}

	res, err := jsonResult(artifact)
	o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(res))
	return res, err
}

func instantQueryHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_instant_query"
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity := identityFn(ctx)
		requestID := requestIDFn(ctx)
		start := time.Now()

		if err := o.Admit(tool, identity); err != nil {
			return errResult(err)
		}

		logql, err := req.RequireString("query")
		if err != nil || logql == "" {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errMsg("query is required")
		}

		at := time.Now()
		if ref := optionalString(req, "at"); ref != "" {
			rng, err := o.ResolveRange(ref, ref)
			if err != nil {
				o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
				return errResult(err)
			}
			at = rng.End
		}

		limit := clampLimit(optionalInt(req, "limit", DefaultQueryLimit), DefaultQueryLimit, MaxQueryLimit)
		mode := shapeMode(req)

		fp := o.Fingerprint(tool, map[string]any{"query": logql, "at": at, "limit": limit, "mode": string(mode)})

		artifact, err := o.CachedOrCompute(ctx, tool, fp, true, func(ctx context.Context) (any, error) {
			window := 5 * time.Minute
			verdict, err := o.CheckGuardrail(ctx, tool, logql, at.Add(-window), at)
			if err != nil {
				return nil, err
			}
			if !verdict.Allowed {
				return nil, &orchestrator.Rejection{Outcome: ring.OutcomeGuardrailRejected, Reason: verdict.Reason}
			}

			result, err := o.Loki.InstantQuery(ctx, logql, at, limit)
			if err != nil {
				return nil, err
			}
			lines := flattenStreams(result.Result)
			return shaper.Shape(lines, shaper.ResolveMode(mode, len(lines)), 50), nil
		})

		if err != nil {
			recordErrOutcome(o, requestID, tool, identity, start, err)
			return errResult(err)
		}

		res, err := jsonResult(artifact)
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(res))
		return res, err
	}
}

const (
	defaultTailSeconds  = 5
	maxTailSeconds      = 60
	defaultTailMaxLines = 500
)

func tailHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_tail"
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity := identityFn(ctx)
		requestID := requestIDFn(ctx)
		start := time.Now()

		if err := o.Admit(tool, identity); err != nil {
			return errResult(err)
		}

		logql, err := req.RequireString("query")
		if err != nil || logql == "" {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errMsg("query is required")
		}

		duration := time.Duration(clampLimit(optionalInt(req, "durationSeconds", defaultTailSeconds), defaultTailSeconds, maxTailSeconds)) * time.Second
		maxLines := clampLimit(optionalInt(req, "maxLines", defaultTailMaxLines), defaultTailMaxLines, MaxQueryLimit)

		verdict, err := o.CheckGuardrail(ctx, tool, logql, time.Now().Add(-duration), time.Now())
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeBackendError, start, 0)
			return errResult(err)
		}
		if !verdict.Allowed {
			o.RecordAction(requestID, tool, identity, ring.OutcomeGuardrailRejected, start, 0)
			return errMsg(verdict.Reason)
		}

		tailCtx, cancel := context.WithTimeout(ctx, duration)
		defer cancel()

		var lines []shaper.Line
		tailErr := o.Loki.Tail(tailCtx, logql, func(raw []byte) error {
			lines = append(lines, shaper.Line{Timestamp: time.Now().UTC(), Text: string(raw)})
			if len(lines) >= maxLines {
				return context.Canceled
			}
			return nil
		})
		if tailErr != nil && tailErr != context.DeadlineExceeded && tailErr != context.Canceled {
			o.RecordAction(requestID, tool, identity, ring.OutcomeBackendError, start, 0)
			return errResult(tailErr)
		}

		artifact := shaper.Shape(lines, shaper.ModeRaw, 50)
		res, err := jsonResult(artifact)
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(res))
		return res, err
	}
}

// recordErrOutcome classifies an error from a compute closure into the
// right ring.Outcome before recording it.
func recordErrOutcome(o *orchestrator.Orchestrator, requestID, tool, identity string, start time.Time, err error) {
	if rejection, ok := err.(*orchestrator.Rejection); ok {
		o.RecordAction(requestID, tool, identity, rejection.Outcome, start, 0)
		return
	}
	o.RecordAction(requestID, tool, identity, ring.OutcomeBackendError, start, 0)
}
