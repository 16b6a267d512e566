// Package guardrail implements the two-phase, fail-closed cost guardrail:
// a cheap pre-flight cost estimate rejects queries that would scan too much
// data before any expensive Loki endpoint is ever called.
package guardrail

import (
	"context"
	"errors"
	"fmt"

	"github.com/lokimcp/loki-mcp-server/internal/lokiclient"
)

// Source identifies which estimate the guardrail's verdict relied on.
type Source string

const (
	SourceIndexStats Source = "index-stats"
	SourceQueryStats Source = "query-stats"
	SourceSkipped    Source = "skipped"
)

// Estimate is the guardrail's pre-flight cost estimate for a query.
type Estimate struct {
	BytesScanned int64
	Streams      int
	Source       Source
}

// Verdict is the outcome of evaluating an Estimate against configured
// limits.
type Verdict struct {
	Allowed bool
	Reason  string // "guardrail-precheck" or "guardrail-unavailable" when Allowed is false
	Estimate Estimate
}

// Config carries the limits and tool-level overrides the evaluator needs.
// It is a narrow view onto config.GuardrailConfig so this package does not
// depend on the config package directly.
type Config struct {
	MaxBytesScanned      int64
	MaxStreams           int
	SkipTools            map[string]bool
	DisablePrecheckTools map[string]bool
}

// Evaluator runs the two-phase guardrail check described in spec.md §4.3.
type Evaluator struct {
	cfg Config
}

// NewEvaluator builds an Evaluator from guardrail configuration.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.SkipTools == nil {
		cfg.SkipTools = map[string]bool{}
	}
	if cfg.DisablePrecheckTools == nil {
		cfg.DisablePrecheckTools = map[string]bool{}
	}
	return &Evaluator{cfg: cfg}
}

// indexStatsFn and queryStatsFn abstract the two Loki stats endpoints so the
// evaluator can be tested without a real client and without importing
// lokiclient's time-based signature (kept here rather than in an interface
// to avoid forcing callers through an adapter for every stats call).
type indexStatsFn func(ctx context.Context) (*lokiclient.Stats, error)
type queryStatsFn func(ctx context.Context) (*lokiclient.Stats, error)

// Evaluate runs the pre-check/fallback sequence for one tool call.
//
//  1. Pre-check: call indexStats. If it returns a Stats value, reject with
//     guardrail-precheck when bytes or streams exceed the configured max.
//  2. Fallback: if indexStats is unavailable (lokiclient.IndexStatsUnavailable)
//     or precheck is disabled for this tool, call queryStats instead. If that
//     is also unavailable, reject with guardrail-unavailable unless the tool
//     is on the skip list.
func (e *Evaluator) Evaluate(ctx context.Context, tool string, indexStats indexStatsFn, queryStats queryStatsFn) Verdict {
	if e.cfg.SkipTools[tool] {
		return Verdict{Allowed: true, Estimate: Estimate{Source: SourceSkipped}}
	}

	if !e.cfg.DisablePrecheckTools[tool] {
		stats, err := indexStats(ctx)
		if err == nil {
			return e.judge(stats, SourceIndexStats)
		}
		if !errors.Is(err, lokiclient.IndexStatsUnavailable) {
			return Verdict{Allowed: false, Reason: "guardrail-unavailable", Estimate: Estimate{Source: SourceIndexStats}}
		}
	}

	stats, err := queryStats(ctx)
	if err == nil {
		return e.judge(stats, SourceQueryStats)
	}

	return Verdict{Allowed: false, Reason: "guardrail-unavailable", Estimate: Estimate{Source: SourceQueryStats}}
}

func (e *Evaluator) judge(stats *lokiclient.Stats, source Source) Verdict {
	estimate := Estimate{BytesScanned: stats.Bytes, Streams: stats.Streams, Source: source}

	if e.cfg.MaxBytesScanned > 0 && stats.Bytes > e.cfg.MaxBytesScanned {
		return Verdict{Allowed: false, Reason: "guardrail-precheck", Estimate: estimate}
	}
	if e.cfg.MaxStreams > 0 && stats.Streams > e.cfg.MaxStreams {
		return Verdict{Allowed: false, Reason: "guardrail-precheck", Estimate: estimate}
	}
	return Verdict{Allowed: true, Estimate: estimate}
}

// ErrRejected wraps a rejecting Verdict into an error for callers that
// prefer the error-return idiom over inspecting Verdict.Allowed directly.
type ErrRejected struct {
	Verdict Verdict
}

func (e *ErrRejected) Error() string {
	return fmt.Sprintf("%s: bytes_scanned=%d streams=%d source=%s", e.Verdict.Reason, e.Verdict.Estimate.BytesScanned, e.Verdict.Estimate.Streams, e.Verdict.Estimate.Source)
}
