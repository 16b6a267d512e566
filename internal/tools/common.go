// Package tools implements the fixed 15-tool MCP catalog mediating access
// to Loki: discovery (labels/values/series), query/execution (logs/range/
// instant/tail), analysis/authoring (stats/summarize/find-errors/top-
// labels/histogram), and utility (health/describe-tools). Each tool is a
// mcp.NewTool descriptor plus a handler registered with
// server.MCPServer.AddTool, following the direct-registration idiom (as
// opposed to a generic MustTool wrapper).
package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lokimcp/loki-mcp-server/internal/lokiclient"
	"github.com/lokimcp/loki-mcp-server/internal/orchestrator"
	"github.com/lokimcp/loki-mcp-server/internal/shaper"
)

// Group classifies a tool descriptor into one of the four groups spec.md
// §4.7 describes; groups differ only in which downstream components they
// invoke.
type Group string

const (
	GroupDiscovery Group = "discovery"
	GroupQuery     Group = "query"
	GroupAnalysis  Group = "analysis"
	GroupUtility   Group = "utility"
)

// Descriptor is the static metadata for one tool: name, group,
// guardrail-applicability, and cache-eligibility. The argument schema is
// carried by the mcp.Tool itself; response-mode eligibility is not recorded
// here.
type Descriptor struct {
	Name             string
	Group            Group
	CacheEligible    bool
	GuardrailApplies bool
}

// errResult renders err as an MCP tool error result.
func errResult(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

// errMsg renders a plain message as an MCP tool error result, for
// validation failures that aren't backed by a Go error value.
func errMsg(msg string) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(msg), nil
}

// jsonResult marshals v to indented JSON and wraps it as a text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResult(fmt.Errorf("marshalling result: %w", err))
	}
	return mcp.NewToolResultText(string(data)), nil
}

// resultSize approximates the bytes returned by a tool call for the
// recent-actions ring, by summing the text content of result.
func resultSize(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}

// optionalString returns request's string argument named key, or "" if
// absent/empty.
func optionalString(req mcp.CallToolRequest, key string) string {
	v, err := req.RequireString(key)
	if err != nil {
		return ""
	}
	return v
}

// optionalInt returns request's numeric argument named key as an int, or
// fallback if absent/invalid.
func optionalInt(req mcp.CallToolRequest, key string, fallback int) int {
	v, err := req.RequireFloat(key)
	if err != nil {
		return fallback
	}
	return int(v)
}

// stringSliceArg extracts a []string from a raw JSON array argument (mcp-go
// surfaces array arguments as []any via GetArguments).
func stringSliceArg(req mcp.CallToolRequest, key string) []string {
	args := req.GetArguments()
	raw, ok := args[key]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

// resolvedRange resolves a pair of optional time-reference arguments
// ("start", "end") into an absolute range via the orchestrator's time
// resolver.
func resolvedRange(o *orchestrator.Orchestrator, req mcp.CallToolRequest) (start, end time.Time, err error) {
	rng, err := o.ResolveRange(optionalString(req, "start"), optionalString(req, "end"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return rng.Start, rng.End, nil
}

// shapeMode parses the optional "mode" argument, defaulting to smart.
func shapeMode(req mcp.CallToolRequest) shaper.Mode {
	switch optionalString(req, "mode") {
	case string(shaper.ModeRaw):
		return shaper.ModeRaw
	case string(shaper.ModeTruncated):
		return shaper.ModeTruncated
	case string(shaper.ModeSummary):
		return shaper.ModeSummary
	default:
		return shaper.ModeSmart
	}
}

// flattenStreams converts lokiclient's wire-format log streams into the
// shaper's flat Line slice.
func flattenStreams(streams []lokiclient.LogStream) []shaper.Line {
	var lines []shaper.Line
	for _, stream := range streams {
		for _, value := range stream.Values {
			if len(value) < 2 {
				continue
			}
			var nanos string
			if err := json.Unmarshal(value[0], &nanos); err != nil {
				continue
			}
			ts, err := parseUnixNanos(nanos)
			if err != nil {
				continue
			}
			var text string
			if err := json.Unmarshal(value[1], &text); err != nil {
				text = string(value[1])
			}
			lines = append(lines, shaper.Line{Timestamp: ts, Stream: stream.Stream, Text: text})
		}
	}
	return lines
}

func parseUnixNanos(s string) (time.Time, error) {
	var nanos int64
	if _, err := fmt.Sscanf(s, "%d", &nanos); err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}
