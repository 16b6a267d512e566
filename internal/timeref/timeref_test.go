package timeref

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(t *testing.T) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, "2025-01-01T12:00:00Z")
	require.NoError(t, err)
	return parsed
}

func TestResolveRFC3339(t *testing.T) {
	r := NewResolver("UTC")
	now := ref(t)
	got, err := r.Resolve("2024-06-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Year())
}

func TestResolveSignedDuration(t *testing.T) {
	r := NewResolver("UTC")
	now := ref(t)

	got, err := r.Resolve("30m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-30*time.Minute), got)

	got, err = r.Resolve("-2h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), got)

	got, err = r.Resolve("+15m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), got)
}

func TestResolveSymbolic(t *testing.T) {
	r := NewResolver("UTC")
	now := ref(t)

	got, err := r.Resolve("now", now)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	got, err = r.Resolve("today", now)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Hour())

	got, err = r.Resolve("yesterday", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -1).Day(), got.Day())
}

func TestResolveInvalid(t *testing.T) {
	r := NewResolver("UTC")
	now := ref(t)
	_, err := r.Resolve("not a time", now)
	require.Error(t, err)
	var invalid *ErrInvalidReference
	assert.ErrorAs(t, err, &invalid)
}

func TestResolveRangeDefaults(t *testing.T) {
	r := NewResolver("UTC")
	now := ref(t)

	rng, err := r.ResolveRange("", "", now, 30*time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-30*time.Minute), rng.Start)
	assert.Equal(t, now, rng.End)
}

func TestResolveRangeEndBeforeStartRejected(t *testing.T) {
	r := NewResolver("UTC")
	now := ref(t)
	_, err := r.ResolveRange("now", "-1h", now, 30*time.Minute, 0)
	require.Error(t, err)
}

func TestResolveRangeExceedsMaximum(t *testing.T) {
	r := NewResolver("UTC")
	now := ref(t)
	_, err := r.ResolveRange("-2h", "now", now, 30*time.Minute, time.Hour)
	require.Error(t, err)
}

func TestRound(t *testing.T) {
	now := ref(t)
	rounded := Round(now.Add(7*time.Second), 10*time.Second)
	assert.Equal(t, now, rounded)
}
