package httpapi

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lokimcp/loki-mcp-server/internal/lokiclient"
	"github.com/lokimcp/loki-mcp-server/internal/metrics"
)

// readinessProbe caches the outcome of the last Loki readiness check for
// ttl, so concurrent /readyz callers coalesce onto a single backend call
// instead of each issuing their own, mirroring fpcache's single-flight
// coalescing for the same reason.
type readinessProbe struct {
	loki    *lokiclient.Client
	metrics *metrics.Registry
	ttl     time.Duration

	group singleflight.Group

	mu       sync.Mutex
	lastOK   bool
	lastErr  error
	lastTime time.Time
}

func newReadinessProbe(loki *lokiclient.Client, reg *metrics.Registry, ttl time.Duration) *readinessProbe {
	return &readinessProbe{loki: loki, metrics: reg, ttl: ttl}
}

// check returns the cached readiness result if it's within ttl, else
// probes Loki and refreshes the cache. Concurrent misses share one probe.
func (p *readinessProbe) check(ctx context.Context) (bool, error) {
	p.mu.Lock()
	fresh := time.Since(p.lastTime) < p.ttl && !p.lastTime.IsZero()
	ok, err := p.lastOK, p.lastErr
	p.mu.Unlock()

	if fresh {
		if p.metrics != nil {
			p.metrics.ReadinessCacheTotal.WithLabelValues("hit").Inc()
		}
		return ok, err
	}

	v, doErr, _ := p.group.Do("probe", func() (any, error) {
		ready, probeErr := p.loki.Ready(ctx)
		p.mu.Lock()
		p.lastOK, p.lastErr, p.lastTime = ready, probeErr, time.Now()
		p.mu.Unlock()
		return ready, probeErr
	})
	if p.metrics != nil {
		p.metrics.ReadinessCacheTotal.WithLabelValues("miss").Inc()
	}
	if doErr != nil {
		return false, doErr
	}
	return v.(bool), nil
}
