package lokiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestLabels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/labels", r.URL.Path)
		w.Write([]byte(`{"status":"success","data":["app","env"]}`))
	})
	names, err := c.Labels(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "env"}, names)
}

func TestLabelValues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/label/app/values", r.URL.Path)
		w.Write([]byte(`{"status":"success","data":["api","worker"]}`))
	})
	values, err := c.LabelValues(context.Background(), "app", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "worker"}, values)
}

func TestSeries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{`{app="api"}`}, r.URL.Query()["match[]"])
		w.Write([]byte(`{"status":"success","data":[{"app":"api","env":"prod"}]}`))
	})
	series, err := c.Series(context.Background(), []string{`{app="api"}`}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []map[string]string{{"app": "api", "env": "prod"}}, series)
}

func TestRangeQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/query_range", r.URL.Path)
		assert.Equal(t, `{app="api"}`, r.URL.Query().Get("query"))
		w.Write([]byte(`{"status":"success","data":{"resultType":"streams","result":[{"stream":{"app":"api"},"values":[["1","line one"]]}]}}`))
	})
	result, err := c.RangeQuery(context.Background(), `{app="api"}`, time.Now().Add(-time.Hour), time.Now(), 100, "backward")
	require.NoError(t, err)
	require.Len(t, result.Result, 1)
	assert.Equal(t, "api", result.Result[0].Stream["app"])
}

func TestInstantQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/query", r.URL.Path)
		w.Write([]byte(`{"status":"success","data":{"resultType":"streams","result":[]}}`))
	})
	result, err := c.InstantQuery(context.Background(), `{app="api"}`, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, result.Result)
}

func TestIndexStatsUnavailableOn404(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.IndexStats(context.Background(), `{app="api"}`, time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, IndexStatsUnavailable)
}

func TestIndexStatsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(Stats{Streams: 3, Chunks: 10, Entries: 1000, Bytes: 2048})
		w.Write(body)
	})
	stats, err := c.IndexStats(context.Background(), `{app="api"}`, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Streams)
	assert.Equal(t, int64(2048), stats.Bytes)
}

func TestQueryStatsFallbackUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.QueryStats(context.Background(), `{app="api"}`, time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, IndexStatsUnavailable)
}

func TestReadyBenign404(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ok, err := c.Ready(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadyOK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	ok, err := c.Ready(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthBasic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "hunter2", pass)
		w.Write([]byte(`{"status":"success","data":[]}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Auth: AuthBasic, Username: "alice", Password: "hunter2"})
	require.NoError(t, err)
	_, err = c.Labels(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
}

func TestAuthBearerAndTenant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		assert.Equal(t, "tenant-a", r.Header.Get("X-Scope-OrgID"))
		w.Write([]byte(`{"status":"success","data":[]}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Auth: AuthBearer, Token: "tok123", TenantID: "tenant-a"})
	require.NoError(t, err)
	_, err = c.Labels(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
}

func TestBackendErrorOnNonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`parse error: unexpected token`))
	})
	_, err := c.Labels(context.Background(), time.Time{}, time.Time{})
	require.Error(t, err)
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusBadRequest, be.Status)
}
