package fpcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrComputeMissThenHit(t *testing.T) {
	c := New(10, time.Minute)
	var calls int32

	v, err, shared := c.GetOrCompute(context.Background(), "k1", func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "value-1", nil
	})
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, "value-1", v)

	v, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "value-1", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrComputeCoalescesConcurrentMisses(t *testing.T) {
	c := New(10, time.Minute)
	var calls int32
	release := make(chan struct{})

	compute := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "computed", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err, _ := c.GetOrCompute(context.Background(), "shared-key", compute)
			require.NoError(t, err)
			results[idx] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent misses for the same key must coalesce into one compute")
	for _, r := range results {
		assert.Equal(t, "computed", r)
	}
}

func TestGetOrComputeFollowerRespectsOwnDeadline(t *testing.T) {
	c := New(10, time.Minute)
	release := make(chan struct{})

	compute := func(ctx context.Context) (any, error) {
		<-release
		return "computed", nil
	}

	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		v, err, _ := c.GetOrCompute(context.Background(), "shared-key", compute)
		require.NoError(t, err)
		assert.Equal(t, "computed", v)
	}()

	time.Sleep(10 * time.Millisecond) // let the leader become the in-flight caller

	followerCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err, _ := c.GetOrCompute(followerCtx, "shared-key", compute)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.DeadlineExceeded, "a follower must detach on its own ctx instead of waiting for the leader")
	assert.Less(t, elapsed, 200*time.Millisecond, "follower should not block for anywhere near the leader's full compute duration")

	close(release)
	<-leaderDone
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := New(10, time.Minute)
	boom := errors.New("boom")

	_, err, _ := c.GetOrCompute(context.Background(), "k1", func(ctx context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	_, ok := c.Get("k1")
	assert.False(t, ok, "a failed compute must not populate the cache")
}

func TestTTLExpiry(t *testing.T) {
	c := New(10, 10*time.Millisecond)
	c.set("k1", "v1")

	v, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k1")
	assert.False(t, ok)
}

func TestLRUEviction(t *testing.T) {
	c := New(2, time.Minute)
	c.set("a", 1)
	c.set("b", 2)
	c.set("c", 3) // evicts "a", the least recently used

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUEvictionRespectsRecentAccess(t *testing.T) {
	c := New(2, time.Minute)
	c.set("a", 1)
	c.set("b", 2)
	c.Get("a") // touch "a", making "b" the least recently used
	c.set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestStatsReportsSizeAndCounters(t *testing.T) {
	c := New(5, time.Minute)
	c.set("a", 1)
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 5, stats.Capacity)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}
