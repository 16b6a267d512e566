package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lokimcp/loki-mcp-server/internal/orchestrator"
	"github.com/lokimcp/loki-mcp-server/internal/ring"
	"github.com/lokimcp/loki-mcp-server/internal/shaper"
)

// RegisterAnalysis wires the six analysis/authoring tools. loki_find_errors
// runs the same range-query path as loki_query_logs with an error filter
// appended, and loki_top_labels ranks label values by per-value index-stats
// calls; both call the Loki client directly rather than going through the
// other tools' handlers.
func RegisterAnalysis(s *server.MCPServer, o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) {
	s.AddTool(mcp.NewTool("loki_query_stats",
		mcp.WithDescription("Estimate the cost (bytes scanned, stream count) of running a LogQL query over a time range, via Loki's query-stats endpoint."),
		mcp.WithString("query", mcp.Required(), mcp.Description("LogQL query to estimate.")),
		mcp.WithString("start", mcp.Description("Start of the time range.")),
		mcp.WithString("end", mcp.Description("End of the time range.")),
	), queryStatsHandler(o, identityFn, requestIDFn))

	s.AddTool(mcp.NewTool("loki_index_stats",
		mcp.WithDescription("Estimate the cost of a stream selector over a time range via Loki's index-stats endpoint, falling back to query-stats when unavailable."),
		mcp.WithString("selector", mcp.Required(), mcp.Description("Stream selector, e.g. {app=\"api\"}.")),
		mcp.WithString("start", mcp.Description("Start of the time range.")),
		mcp.WithString("end", mcp.Description("End of the time range.")),
	), indexStatsHandler(o, identityFn, requestIDFn))

	s.AddTool(mcp.NewTool("loki_summarize_logs",
		mcp.WithDescription("Run a LogQL query and return only the summary shape: unique streams, top label values, and a time-bucketed histogram, regardless of result size."),
		mcp.WithString("query", mcp.Required(), mcp.Description("LogQL query.")),
		mcp.WithString("start", mcp.Description("Start of the time range.")),
		mcp.WithString("end", mcp.Description("End of the time range.")),
		mcp.WithNumber("limit", mcp.Description("Maximum log lines to fetch before summarizing.")),
	), summarizeLogsHandler(o, identityFn, requestIDFn))

	s.AddTool(mcp.NewTool("loki_find_errors",
		mcp.WithDescription("Search for likely error lines in a selector's logs over a time range (appends a case-insensitive error/fatal/panic filter to the selector) and return them shaped."),
		mcp.WithString("selector", mcp.Required(), mcp.Description("Stream selector to search within, e.g. {app=\"api\"}.")),
		mcp.WithString("start", mcp.Description("Start of the time range.")),
		mcp.WithString("end", mcp.Description("End of the time range.")),
		mcp.WithNumber("limit", mcp.Description("Maximum matching lines to fetch.")),
	), findErrorsHandler(o, identityFn, requestIDFn))

	s.AddTool(mcp.NewTool("loki_top_labels",
		mcp.WithDescription("Rank the values of a label by estimated cost (bytes/entries) over a time range, using index-stats per label value."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Label name to rank values of, e.g. \"app\".")),
		mcp.WithString("start", mcp.Description("Start of the time range.")),
		mcp.WithString("end", mcp.Description("End of the time range.")),
		mcp.WithNumber("topN", mcp.Description("How many top values to return (default 5).")),
	), topLabelsHandler(o, identityFn, requestIDFn))

	s.AddTool(mcp.NewTool("loki_histogram",
		mcp.WithDescription("Run a LogQL query and return only the time-bucketed line-count histogram from the summary shape."),
		mcp.WithString("query", mcp.Required(), mcp.Description("LogQL query.")),
		mcp.WithString("start", mcp.Description("Start of the time range.")),
		mcp.WithString("end", mcp.Description("End of the time range.")),
		mcp.WithNumber("limit", mcp.Description("Maximum log lines to fetch before bucketing.")),
	), histogramHandler(o, identityFn, requestIDFn))
}

func queryStatsHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_query_stats"
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

		rangeStart, rangeEnd, err := resolvedRange(o, req)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errResult(err)
		}

		stats, err := o.Loki.QueryStats(ctx, logql, rangeStart, rangeEnd)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeBackendError, start, 0)
			return errResult(err)
		}

		res, err := jsonResult(stats)
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(res))
		return res, err
	}
}

func indexStatsHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_index_stats"
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity := identityFn(ctx)
		requestID := requestIDFn(ctx)
		start := time.Now()

		if err := o.Admit(tool, identity); err != nil {
			return errResult(err)
		}

		selector, err := req.RequireString("selector")
		if err != nil || selector == "" {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errMsg("selector is required")
		}

		rangeStart, rangeEnd, err := resolvedRange(o, req)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errResult(err)
		}

		stats, err := o.Loki.IndexStats(ctx, selector, rangeStart, rangeEnd)
		if err != nil {
			stats, err = o.Loki.QueryStats(ctx, selector, rangeStart, rangeEnd)
		}
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeBackendError, start, 0)
			return errResult(err)
		}

		res, err := jsonResult(stats)
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(res))
		return res, err
	}
}

func summarizeLogsHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_summarize_logs"
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

		rangeStart, rangeEnd, err := resolvedRange(o, req)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errResult(err)
		}
		limit := clampLimit(optionalInt(req, "limit", DefaultQueryLimit), DefaultQueryLimit, MaxQueryLimit)

		fp := o.Fingerprint(tool, map[string]any{"query": logql, "start": rangeStart, "end": rangeEnd, "limit": limit})

		summary, err := o.CachedOrCompute(ctx, tool, fp, true, func(ctx context.Context) (any, error) {
			verdict, err := o.CheckGuardrail(ctx, tool, logql, rangeStart, rangeEnd)
			if err != nil {
				return nil, err
			}
			if !verdict.Allowed {
				return nil, &orchestrator.Rejection{Outcome: ring.OutcomeGuardrailRejected, Reason: verdict.Reason}
			}
			result, err := o.Loki.RangeQuery(ctx, logql, rangeStart, rangeEnd, limit, "backward")
			if err != nil {
				return nil, err
			}
			lines := flattenStreams(result.Result)
			return shaper.Shape(lines, shaper.ModeSummary, 50), nil
		})

		if err != nil {
			recordErrOutcome(o, requestID, tool, identity, start, err)
			return errResult(err)
		}

		res, err := jsonResult(summary)
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(res))
		return res, err
	}
}

func findErrorsHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_find_errors"
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity := identityFn(ctx)
		requestID := requestIDFn(ctx)
		start := time.Now()

		if err := o.Admit(tool, identity); err != nil {
			return errResult(err)
		}

		selector, err := req.RequireString("selector")
		if err != nil || selector == "" {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errMsg("selector is required")
		}

		logql := selector + ` |~ "(?i)error|fatal|panic"`

		rangeStart, rangeEnd, err := resolvedRange(o, req)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errResult(err)
		}
		limit := clampLimit(optionalInt(req, "limit", DefaultQueryLimit), DefaultQueryLimit, MaxQueryLimit)

		fp := o.Fingerprint(tool, map[string]any{"selector": selector, "start": rangeStart, "end": rangeEnd, "limit": limit})

		artifact, err := o.CachedOrCompute(ctx, tool, fp, true, func(ctx context.Context) (any, error) {
			verdict, err := o.CheckGuardrail(ctx, tool, logql, rangeStart, rangeEnd)
			if err != nil {
				return nil, err
			}
			if !verdict.Allowed {
				return nil, &orchestrator.Rejection{Outcome: ring.OutcomeGuardrailRejected, Reason: verdict.Reason}
			}
			result, err := o.Loki.RangeQuery(ctx, logql, rangeStart, rangeEnd, limit, "backward")
			if err != nil {
				return nil, err
			}
			lines := flattenStreams(result.Result)
			return shaper.Shape(lines, shaper.ResolveMode(shaper.ModeSmart, len(lines)), 50), nil
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

const defaultTopLabelsN = 5

func topLabelsHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_top_labels"
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
		topN := clampLimit(optionalInt(req, "topN", defaultTopLabelsN), defaultTopLabelsN, 50)

		values, err := o.Loki.LabelValues(ctx, label, rangeStart, rangeEnd)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeBackendError, start, 0)
			return errResult(err)
		}

		type ranked struct {
			Value string `json:"value"`
			Bytes int64  `json:"bytes"`
			Lines int    `json:"entries"`
		}
		rankings := make([]ranked, 0, len(values))
		for _, v := range values {
			selector := `{` + label + `="` + v + `"}`
			stats, statErr := o.Loki.IndexStats(ctx, selector, rangeStart, rangeEnd)
			if statErr != nil {
				continue
			}
			rankings = append(rankings, ranked{Value: v, Bytes: stats.Bytes, Lines: stats.Entries})
		}
		for i := 1; i < len(rankings); i++ {
			for j := i; j > 0 && rankings[j].Bytes > rankings[j-1].Bytes; j-- {
				rankings[j], rankings[j-1] = rankings[j-1], rankings[j]
			}
		}
		if len(rankings) > topN {
			rankings = rankings[:topN]
		}

		res, err := jsonResult(rankings)
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(res))
		return res, err
	}
}

func histogramHandler(o *orchestrator.Orchestrator, identityFn, requestIDFn func(ctx context.Context) string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "loki_histogram"
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

		rangeStart, rangeEnd, err := resolvedRange(o, req)
		if err != nil {
			o.RecordAction(requestID, tool, identity, ring.OutcomeValidationError, start, 0)
			return errResult(err)
		}
		limit := clampLimit(optionalInt(req, "limit", DefaultQueryLimit), DefaultQueryLimit, MaxQueryLimit)

		fp := o.Fingerprint(tool, map[string]any{"query": logql, "start": rangeStart, "end": rangeEnd, "limit": limit})

		buckets, err := o.CachedOrCompute(ctx, tool, fp, true, func(ctx context.Context) (any, error) {
			verdict, err := o.CheckGuardrail(ctx, tool, logql, rangeStart, rangeEnd)
			if err != nil {
				return nil, err
			}
			if !verdict.Allowed {
				return nil, &orchestrator.Rejection{Outcome: ring.OutcomeGuardrailRejected, Reason: verdict.Reason}
			}
			result, err := o.Loki.RangeQuery(ctx, logql, rangeStart, rangeEnd, limit, "backward")
			if err != nil {
				return nil, err
			}
			lines := flattenStreams(result.Result)
			summary := shaper.Shape(lines, shaper.ModeSummary, 50)
			if summary.Summary == nil {
				return []shaper.TimeBucket{}, nil
			}
			return summary.Summary.TimeDistribution, nil
		})

		if err != nil {
			recordErrOutcome(o, requestID, tool, identity, start, err)
			return errResult(err)
		}

		res, err := jsonResult(buckets)
		o.RecordAction(requestID, tool, identity, ring.OutcomeOK, start, resultSize(res))
		return res, err
	}
}
