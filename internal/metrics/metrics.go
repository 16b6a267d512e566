// Package metrics exposes the Prometheus counter families required by
// spec.md §4.9 on a private registry, so the server's metrics surface is
// self-contained and doesn't pollute (or depend on) the global default
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the counter families the server emits, registered
// under a configurable name prefix.
type Registry struct {
	registry *prometheus.Registry

	HTTPRequestsTotal        *prometheus.CounterVec
	ToolCallTotal            *prometheus.CounterVec
	ToolCacheTotal           *prometheus.CounterVec
	ToolGuardrailRejections  *prometheus.CounterVec
	ToolRateLimitedTotal     *prometheus.CounterVec
	ReadinessCacheTotal      *prometheus.CounterVec
}

// New builds a Registry with all counter families registered under prefix
// (e.g. "loki_mcp" yields "loki_mcp_http_requests_total").
func New(prefix string) *Registry {
	if prefix == "" {
		prefix = "loki_mcp"
	}

	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total HTTP requests served by the MCP server, labeled by path and status.",
			},
			[]string{"path", "status"},
		),
		ToolCallTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_tool_call_total",
				Help: "Total tool calls, labeled by tool and outcome.",
			},
			[]string{"tool", "outcome"},
		),
		ToolCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_tool_cache_total",
				Help: "Total fingerprint cache lookups, labeled by tool and result (hit/miss).",
			},
			[]string{"tool", "result"},
		),
		ToolGuardrailRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_tool_guardrail_rejections_total",
				Help: "Total guardrail rejections, labeled by tool.",
			},
			[]string{"tool"},
		),
		ToolRateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_tool_rate_limited_total",
				Help: "Total rate-limit rejections, labeled by tool.",
			},
			[]string{"tool"},
		),
		ReadinessCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_readiness_cache_total",
				Help: "Total readiness probes served from cache vs freshly fetched, labeled by result.",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		r.HTTPRequestsTotal,
		r.ToolCallTotal,
		r.ToolCacheTotal,
		r.ToolGuardrailRejections,
		r.ToolRateLimitedTotal,
		r.ReadinessCacheTotal,
	)

	return r
}

// Gatherer exposes the underlying registry for promhttp.HandlerFor.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
