package guardrail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokimcp/loki-mcp-server/internal/lokiclient"
)

func newEvaluator() *Evaluator {
	return NewEvaluator(Config{
		MaxBytesScanned: 1_000_000,
		MaxStreams:      100,
		SkipTools:       map[string]bool{"loki_health": true},
	})
}

func TestEvaluatePrecheckAllows(t *testing.T) {
	e := newEvaluator()
	indexStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		return &lokiclient.Stats{Bytes: 500, Streams: 2}, nil
	}
	queryStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		t.Fatal("query-stats should not be called when index-stats succeeds")
		return nil, nil
	}
	verdict := e.Evaluate(context.Background(), "loki_query_logs", indexStats, queryStats)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, SourceIndexStats, verdict.Estimate.Source)
}

func TestEvaluatePrecheckRejectsOnBytes(t *testing.T) {
	e := newEvaluator()
	indexStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		return &lokiclient.Stats{Bytes: 5_000_000, Streams: 2}, nil
	}
	queryStats := func(ctx context.Context) (*lokiclient.Stats, error) { return nil, nil }
	verdict := e.Evaluate(context.Background(), "loki_query_logs", indexStats, queryStats)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "guardrail-precheck", verdict.Reason)
}

func TestEvaluatePrecheckRejectsOnStreams(t *testing.T) {
	e := newEvaluator()
	indexStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		return &lokiclient.Stats{Bytes: 10, Streams: 500}, nil
	}
	queryStats := func(ctx context.Context) (*lokiclient.Stats, error) { return nil, nil }
	verdict := e.Evaluate(context.Background(), "loki_query_logs", indexStats, queryStats)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "guardrail-precheck", verdict.Reason)
}

func TestEvaluateFallsBackToQueryStats(t *testing.T) {
	e := newEvaluator()
	indexStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		return nil, lokiclient.IndexStatsUnavailable
	}
	queryStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		return &lokiclient.Stats{Bytes: 10, Streams: 1}, nil
	}
	verdict := e.Evaluate(context.Background(), "loki_query_logs", indexStats, queryStats)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, SourceQueryStats, verdict.Estimate.Source)
}

func TestEvaluateRejectsUnavailableByDefault(t *testing.T) {
	e := newEvaluator()
	indexStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		return nil, lokiclient.IndexStatsUnavailable
	}
	queryStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		return nil, lokiclient.IndexStatsUnavailable
	}
	verdict := e.Evaluate(context.Background(), "loki_query_logs", indexStats, queryStats)
	require.False(t, verdict.Allowed)
	assert.Equal(t, "guardrail-unavailable", verdict.Reason)
}

func TestEvaluateSkipListBypassesEverything(t *testing.T) {
	e := newEvaluator()
	indexStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		t.Fatal("skip-listed tools must not call index-stats")
		return nil, nil
	}
	queryStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		t.Fatal("skip-listed tools must not call query-stats")
		return nil, nil
	}
	verdict := e.Evaluate(context.Background(), "loki_health", indexStats, queryStats)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, SourceSkipped, verdict.Estimate.Source)
}

func TestEvaluateDisabledPrecheckGoesStraightToQueryStats(t *testing.T) {
	e := NewEvaluator(Config{
		MaxBytesScanned:      1_000_000,
		MaxStreams:           100,
		DisablePrecheckTools: map[string]bool{"loki_summarize_logs": true},
	})
	indexStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		t.Fatal("index-stats should be bypassed when precheck is disabled")
		return nil, nil
	}
	queryStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		return &lokiclient.Stats{Bytes: 1, Streams: 1}, nil
	}
	verdict := e.Evaluate(context.Background(), "loki_summarize_logs", indexStats, queryStats)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, SourceQueryStats, verdict.Estimate.Source)
}

func TestErrRejectedMessage(t *testing.T) {
	err := &ErrRejected{Verdict: Verdict{Reason: "guardrail-precheck", Estimate: Estimate{BytesScanned: 10, Streams: 2, Source: SourceIndexStats}}}
	assert.Contains(t, err.Error(), "guardrail-precheck")
	assert.Contains(t, err.Error(), "bytes_scanned=10")
}
