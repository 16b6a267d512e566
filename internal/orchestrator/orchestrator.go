// Package orchestrator composes the per-request pipeline described in
// spec.md §2: identity -> rate limiter -> argument validation -> time
// resolution -> fingerprint cache -> guardrail -> Loki client -> response
// shaper -> recent-actions + metrics. Tool handlers in internal/tools call
// through an Orchestrator rather than touching the component packages
// directly, so every tool applies the same ordering and bookkeeping.
package orchestrator

import (
	"context"
	"time"

	"github.com/lokimcp/loki-mcp-server/internal/fpcache"
	"github.com/lokimcp/loki-mcp-server/internal/guardrail"
	"github.com/lokimcp/loki-mcp-server/internal/lokiclient"
	"github.com/lokimcp/loki-mcp-server/internal/metrics"
	"github.com/lokimcp/loki-mcp-server/internal/ratelimit"
	"github.com/lokimcp/loki-mcp-server/internal/ring"
	"github.com/lokimcp/loki-mcp-server/internal/timeref"
)

// Orchestrator bundles every per-request component. Tool handlers hold a
// reference to one Orchestrator for the server's lifetime.
type Orchestrator struct {
	Loki        *lokiclient.Client
	TimeResolver *timeref.Resolver
	Guardrail   *guardrail.Evaluator
	RateLimiter *ratelimit.Limiter
	Cache       *fpcache.Cache
	Ring        *ring.Ring
	Metrics     *metrics.Registry

	DefaultWindow time.Duration
	MaxWindow     time.Duration
	CacheRounding time.Duration
}

// Rejection is returned by pipeline steps that short-circuit the call
// before it reaches the Loki client.
type Rejection struct {
	Outcome ring.Outcome
	Reason  string
}

func (r *Rejection) Error() string { return r.Reason }

// Admit consults the rate limiter for (tool, identity). On rejection it
// increments the rate-limited counter and returns a *Rejection.
func (o *Orchestrator) Admit(tool, identity string) error {
	if o.RateLimiter == nil {
		return nil
	}
	if o.RateLimiter.Allow(tool, identity) {
		return nil
	}
	if o.Metrics != nil {
		o.Metrics.ToolRateLimitedTotal.WithLabelValues(tool).Inc()
	}
	return &Rejection{Outcome: ring.OutcomeRateLimited, Reason: "rate-limited"}
}

// ResolveRange resolves a (startRef, endRef) pair to an absolute range
// using the configured default/max window.
func (o *Orchestrator) ResolveRange(startRef, endRef string) (timeref.Range, error) {
	return o.TimeResolver.ResolveRange(startRef, endRef, time.Now(), o.DefaultWindow, o.MaxWindow)
}

// CheckGuardrail runs the two-phase cost check for tool against selector
// over [start, end), using the Loki client's index-stats/query-stats
// endpoints. On rejection it increments the guardrail-rejections counter.
func (o *Orchestrator) CheckGuardrail(ctx context.Context, tool, selector string, start, end time.Time) (guardrail.Verdict, error) {
	if o.Guardrail == nil {
		return guardrail.Verdict{Allowed: true}, nil
	}

	indexStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		return o.Loki.IndexStats(ctx, selector, start, end)
	}
	queryStats := func(ctx context.Context) (*lokiclient.Stats, error) {
		return o.Loki.QueryStats(ctx, selector, start, end)
	}

	verdict := o.Guardrail.Evaluate(ctx, tool, indexStats, queryStats)
	if !verdict.Allowed && o.Metrics != nil {
		o.Metrics.ToolGuardrailRejections.WithLabelValues(tool).Inc()
	}
	return verdict, nil
}

// Fingerprint computes the request fingerprint for a (tool, args) pair,
// rounding any time.Time values found in args to the configured cache
// rounding granularity so adjacent calls collide deliberately.
func (o *Orchestrator) Fingerprint(tool string, args map[string]any) string {
	rounded := make(map[string]any, len(args))
	for k, v := range args {
		if t, ok := v.(time.Time); ok {
			rounded[k] = timeref.Round(t, o.CacheRounding).Format(time.RFC3339)
			continue
		}
		rounded[k] = v
	}
	return fpcache.Fingerprint(tool, rounded)
}

// CachedOrCompute looks up fingerprint in the cache, computing and storing
// it via compute on a miss. cacheEligible false bypasses the cache
// entirely (used by tail/health per spec.md §4.5).
func (o *Orchestrator) CachedOrCompute(ctx context.Context, tool, fingerprint string, cacheEligible bool, compute func(ctx context.Context) (any, error)) (any, error) {
	if !cacheEligible || o.Cache == nil {
		return compute(ctx)
	}

	if v, ok := o.Cache.Get(fingerprint); ok {
		if o.Metrics != nil {
			o.Metrics.ToolCacheTotal.WithLabelValues(tool, "hit").Inc()
		}
		return v, nil
	}

	v, err, _ := o.Cache.GetOrCompute(ctx, fingerprint, compute)
	if o.Metrics != nil {
		o.Metrics.ToolCacheTotal.WithLabelValues(tool, "miss").Inc()
	}
	return v, err
}

// RecordAction appends a ring entry and increments the tool-call counter
// for the given outcome, if those components are configured. requestID
// should be the same id the HTTP transport assigned to this call (see
// httpapi.RequestIDFromContext), so a caller correlating its own
// X-Request-Id against the debug feed finds a matching entry.
func (o *Orchestrator) RecordAction(requestID, tool, identity string, outcome ring.Outcome, start time.Time, bytesReturned int) {
	if o.Ring != nil {
		o.Ring.Record(ring.Action{
			RequestID:     requestID,
			Tool:          tool,
			Identity:      identity,
			Outcome:       outcome,
			Start:         start,
			Duration:      time.Since(start),
			BytesReturned: bytesReturned,
		})
	}
	if o.Metrics != nil {
		o.Metrics.ToolCallTotal.WithLabelValues(tool, string(outcome)).Inc()
	}
}
