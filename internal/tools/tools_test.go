package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokimcp/loki-mcp-server/internal/fpcache"
	"github.com/lokimcp/loki-mcp-server/internal/guardrail"
	"github.com/lokimcp/loki-mcp-server/internal/lokiclient"
	"github.com/lokimcp/loki-mcp-server/internal/metrics"
	"github.com/lokimcp/loki-mcp-server/internal/orchestrator"
	"github.com/lokimcp/loki-mcp-server/internal/ratelimit"
	"github.com/lokimcp/loki-mcp-server/internal/ring"
	"github.com/lokimcp/loki-mcp-server/internal/timeref"
)

func constIdentity(ctx context.Context) string { return "test-identity" }

func constRequestID(ctx context.Context) string { return "test-request-id" }

func newTestServer(t *testing.T, handler http.HandlerFunc) (*server.MCPServer, *orchestrator.Orchestrator) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := lokiclient.New(lokiclient.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	o := &orchestrator.Orchestrator{
		Loki:         client,
		TimeResolver: timeref.NewResolver("UTC"),
		Guardrail: guardrail.NewEvaluator(guardrail.Config{
			MaxBytesScanned: 1 << 30,
			MaxStreams:      1000,
		}),
		RateLimiter:   ratelimit.New(ratelimit.Config{DefaultRPS: 1000, DefaultBurst: 100}),
		Cache:         fpcache.New(100, time.Minute),
		Ring:          ring.New(50),
		Metrics:       metrics.New("test_tools"),
		DefaultWindow: time.Hour,
		MaxWindow:     24 * time.Hour,
		CacheRounding: time.Second,
	}

	s := server.NewMCPServer("test", "0.0.0")
	Register(s, o, constIdentity, constRequestID)
	return s, o
}

func lokiHandler(t *testing.T, responses map[string]string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func TestCatalogListsAllFifteenTools(t *testing.T) {
	assert.Len(t, Catalog, 15)
	names := make(map[string]bool, len(Catalog))
	for _, d := range Catalog {
		names[d.Name] = true
	}
	for _, expected := range []string{
		"loki_list_labels", "loki_list_label_values", "loki_list_series",
		"loki_query_logs", "loki_query_range", "loki_instant_query", "loki_tail",
		"loki_query_stats", "loki_index_stats", "loki_summarize_logs",
		"loki_find_errors", "loki_top_labels", "loki_histogram",
		"loki_health", "loki_describe_tools",
	} {
		assert.True(t, names[expected], "missing tool %s", expected)
	}
}

func TestListLabelsHandlerReturnsLabels(t *testing.T) {
	_, o := newTestServer(t, lokiHandler(t, map[string]string{
		"/loki/api/v1/labels": `{"status":"success","data":["app","env"]}`,
	}))
	handler := listLabelsHandler(o, constIdentity, constRequestID)
	result, err := handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(result), "app")
}

func TestListLabelValuesRequiresLabel(t *testing.T) {
	_, o := newTestServer(t, lokiHandler(t, map[string]string{}))
	handler := listLabelValuesHandler(o, constIdentity, constRequestID)
	result, err := handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestQueryLogsHandlerShapesResult(t *testing.T) {
	_, o := newTestServer(t, lokiHandler(t, map[string]string{
		"/loki/api/v1/index/stats": `{"streams":1,"chunks":1,"entries":1,"bytes":10}`,
		"/loki/api/v1/query_range": `{"status":"success","data":{"resultType":"streams","result":[{"stream":{"app":"api"},"values":[["1700000000000000000","hello"]]}]}}`,
	}))
	handler := queryLogsHandler(o, constIdentity, constRequestID, "loki_query_logs", "backward")
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"query": `{app="api"}`}
	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(result), "hello")
}

func TestQueryLogsHandlerRejectsMissingQuery(t *testing.T) {
	_, o := newTestServer(t, lokiHandler(t, map[string]string{}))
	handler := queryLogsHandler(o, constIdentity, constRequestID, "loki_query_logs", "backward")
	result, err := handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestQueryLogsHandlerRejectedByGuardrail(t *testing.T) {
	_, o := newTestServer(t, lokiHandler(t, map[string]string{
		"/loki/api/v1/index/stats": `{"streams":1,"chunks":1,"entries":1,"bytes":10}`,
	}))
	o.Guardrail = guardrail.NewEvaluator(guardrail.Config{MaxBytesScanned: 1, MaxStreams: 1})
	handler := queryLogsHandler(o, constIdentity, constRequestID, "loki_query_logs", "backward")
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"query": `{app="api"}`}
	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	recent := o.Ring.Recent(1)
	assert.Equal(t, ring.OutcomeGuardrailRejected, recent[0].Outcome)
}

func TestFindErrorsHandlerAppendsFilter(t *testing.T) {
	var capturedQuery string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/loki/api/v1/index/stats":
			w.Write([]byte(`{"streams":1,"chunks":1,"entries":1,"bytes":10}`))
		case "/loki/api/v1/query_range":
			capturedQuery = r.URL.Query().Get("query")
			w.Write([]byte(`{"status":"success","data":{"resultType":"streams","result":[]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	_, o := newTestServer(t, handler)
	h := findErrorsHandler(o, constIdentity, constRequestID)
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"selector": `{app="api"}`}
	_, err := h(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, capturedQuery, "error|fatal|panic")
}

func TestHealthHandlerReportsReady(t *testing.T) {
	_, o := newTestServer(t, lokiHandler(t, map[string]string{
		"/ready": `ready`,
	}))
	h := healthHandler(o, constIdentity, constRequestID)
	result, err := h(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(result), "true")
}

func TestDescribeToolsHandlerListsCatalog(t *testing.T) {
	_, o := newTestServer(t, lokiHandler(t, map[string]string{}))
	h := describeToolsHandler(o, constIdentity, constRequestID)
	result, err := h(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	var infos []ToolInfo
	require.NoError(t, json.Unmarshal([]byte(resultText(result)), &infos))
	assert.Len(t, infos, 15)
}

func TestTopLabelsRanksByBytes(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/loki/api/v1/label/app/values":
			w.Write([]byte(`{"status":"success","data":["api","worker"]}`))
		case "/loki/api/v1/index/stats":
			if r.URL.Query().Get("query") == `{app="api"}` {
				w.Write([]byte(`{"streams":1,"chunks":1,"entries":100,"bytes":5000}`))
				return
			}
			w.Write([]byte(`{"streams":1,"chunks":1,"entries":10,"bytes":100}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	_, o := newTestServer(t, handler)
	h := topLabelsHandler(o, constIdentity, constRequestID)
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"label": "app"}
	result, err := h(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.True(t, strIndexBefore(resultText(result), "api", "worker"))
}

func resultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func strIndexBefore(s, a, b string) bool {
	ia := indexOf(s, a)
	ib := indexOf(s, b)
	return ia != -1 && (ib == -1 || ia < ib)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
