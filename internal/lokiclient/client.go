// Package lokiclient exposes typed wrappers over the subset of Loki's HTTP
// API this server needs: label discovery, series, instant/range queries,
// tailing, index/query stats, and readiness.
package lokiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a Loki response body we will read,
// mirroring the teacher's defensive limit in tools/loki.go.
const maxResponseBytes = 48 * 1024 * 1024

// AuthType selects how the client authenticates to Loki.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
)

// Config configures a Client.
type Config struct {
	BaseURL  string
	TenantID string
	Auth     AuthType
	Username string
	Password string
	Token    string
	// Transport overrides the underlying RoundTripper, e.g. for a CA-cert
	// configured TLS transport. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
	Timeout   time.Duration
}

// Client is a thin, typed HTTP client over Loki's REST surface.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tenantID   string
}

// New builds a Client from Config.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("lokiclient: base URL must not be empty")
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &authRoundTripper{
				auth:       cfg.Auth,
				username:   cfg.Username,
				password:   cfg.Password,
				token:      cfg.Token,
				tenantID:   cfg.TenantID,
				underlying: transport,
			},
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tenantID: cfg.TenantID,
	}, nil
}

type authRoundTripper struct {
	auth       AuthType
	username   string
	password   string
	token      string
	tenantID   string
	underlying http.RoundTripper
}

func (rt *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch rt.auth {
	case AuthBasic:
		req.SetBasicAuth(rt.username, rt.password)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+rt.token)
	}
	if rt.tenantID != "" {
		req.Header.Set("X-Scope-OrgID", rt.tenantID)
	}
	return rt.underlying.RoundTrip(req)
}

// BackendError represents a non-2xx or network-level failure talking to
// Loki. Status is 0 for pure network errors.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("loki backend error: %s", e.Message)
	}
	return fmt.Sprintf("loki backend error (status %d): %s", e.Status, e.Message)
}

// IsNotFound reports whether the error represents an HTTP 404.
func (e *BackendError) IsNotFound() bool {
	return e.Status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values) ([]byte, int, error) {
	fullURL := c.baseURL + path
	u, err := url.Parse(fullURL)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing URL: %w", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &BackendError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, &BackendError{Status: resp.StatusCode, Message: fmt.Sprintf("reading response body: %v", err)}
	}
	body = bytes.TrimSpace(body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return body, resp.StatusCode, &BackendError{Status: resp.StatusCode, Message: snippet}
	}

	return body, resp.StatusCode, nil
}

// statusResponse is the envelope common to Loki's label/series/query
// endpoints: {"status": "success", "data": ...}.
type statusResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decodeStatus(body []byte, out any) error {
	var env statusResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unmarshalling response (content: %s): %w", string(body), err)
	}
	if env.Status != "success" {
		return fmt.Errorf("loki API returned unexpected status %q", env.Status)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func addTimeParams(params url.Values, start, end time.Time) {
	if !start.IsZero() {
		params.Add("start", strconv.FormatInt(start.UnixNano(), 10))
	}
	if !end.IsZero() {
		params.Add("end", strconv.FormatInt(end.UnixNano(), 10))
	}
}

// Labels lists all label names visible in the given range.
func (c *Client) Labels(ctx context.Context, start, end time.Time) ([]string, error) {
	params := url.Values{}
	addTimeParams(params, start, end)
	body, _, err := c.do(ctx, http.MethodGet, "/loki/api/v1/labels", params)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := decodeStatus(body, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// LabelValues lists all values for a given label name in the given range.
func (c *Client) LabelValues(ctx context.Context, label string, start, end time.Time) ([]string, error) {
	params := url.Values{}
	addTimeParams(params, start, end)
	path := fmt.Sprintf("/loki/api/v1/label/%s/values", url.PathEscape(label))
	body, _, err := c.do(ctx, http.MethodGet, path, params)
	if err != nil {
		return nil, err
	}
	var values []string
	if err := decodeStatus(body, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Series identifies the set of streams (label sets) matching the given
// matcher expressions in the given range.
func (c *Client) Series(ctx context.Context, matchers []string, start, end time.Time) ([]map[string]string, error) {
	params := url.Values{}
	for _, m := range matchers {
		params.Add("match[]", m)
	}
	addTimeParams(params, start, end)
	body, _, err := c.do(ctx, http.MethodGet, "/loki/api/v1/series", params)
	if err != nil {
		return nil, err
	}
	var series []map[string]string
	if err := decodeStatus(body, &series); err != nil {
		return nil, err
	}
	return series, nil
}

// LogStream is a single stream of log entries as returned by query_range.
type LogStream struct {
	Stream map[string]string   `json:"stream"`
	Values [][]json.RawMessage `json:"values"`
}

// QueryResult is the decoded data.result payload for instant and range
// queries over log streams.
type QueryResult struct {
	ResultType string      `json:"resultType"`
	Result     []LogStream `json:"result"`
}

// RangeQuery executes a LogQL range query.
func (c *Client) RangeQuery(ctx context.Context, logql string, start, end time.Time, limit int, direction string) (*QueryResult, error) {
	params := url.Values{}
	params.Add("query", logql)
	addTimeParams(params, start, end)
	if limit > 0 {
		params.Add("limit", strconv.Itoa(limit))
	}
	if direction != "" {
		params.Add("direction", direction)
	}
	body, _, err := c.do(ctx, http.MethodGet, "/loki/api/v1/query_range", params)
	if err != nil {
		return nil, err
	}
	var result QueryResult
	if err := decodeStatus(body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// InstantQuery executes a LogQL instant query at a single point in time.
func (c *Client) InstantQuery(ctx context.Context, logql string, at time.Time, limit int) (*QueryResult, error) {
	params := url.Values{}
	params.Add("query", logql)
	if !at.IsZero() {
		params.Add("time", strconv.FormatInt(at.UnixNano(), 10))
	}
	if limit > 0 {
		params.Add("limit", strconv.Itoa(limit))
	}
	body, _, err := c.do(ctx, http.MethodGet, "/loki/api/v1/query", params)
	if err != nil {
		return nil, err
	}
	var result QueryResult
	if err := decodeStatus(body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Tail streams new log lines matching logql, invoking onLine for each raw
// NDJSON-framed line until ctx is cancelled or the stream ends. Loki's tail
// endpoint is a websocket in production; this server treats it as a
// streaming HTTP body read, consistent with the black-box REST treatment
// spec.md §1 assigns to the upstream API.
func (c *Client) Tail(ctx context.Context, logql string, onLine func([]byte) error) error {
	params := url.Values{}
	params.Add("query", logql)
	fullURL := c.baseURL + "/loki/api/v1/tail"
	u, err := url.Parse(fullURL)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &BackendError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &BackendError{Status: resp.StatusCode, Message: string(body)}
	}

	decoder := json.NewDecoder(resp.Body)
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decoding tail stream: %w", err)
		}
		if err := onLine(raw); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Stats is the decoded response of Loki's index/stats and query-stats
// endpoints: stream/chunk/entry/byte counts for a selector+range.
type Stats struct {
	Streams int   `json:"streams"`
	Chunks  int   `json:"chunks"`
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// IndexStatsUnavailable signals the index-stats endpoint returned a 404/5xx
// or could not be reached — the guardrail's fallback trigger.
var IndexStatsUnavailable = fmt.Errorf("index-stats unavailable")

// IndexStats calls Loki's /index/stats endpoint for a label-matcher
// selector over a range.
func (c *Client) IndexStats(ctx context.Context, selector string, start, end time.Time) (*Stats, error) {
	params := url.Values{}
	params.Add("query", selector)
	addTimeParams(params, start, end)
	body, status, err := c.do(ctx, http.MethodGet, "/loki/api/v1/index/stats", params)
	if err != nil {
		var be *BackendError
		if ok := asBackendError(err, &be); ok && (be.Status == http.StatusNotFound || be.Status >= 500 || be.Status == 0) {
			return nil, IndexStatsUnavailable
		}
		return nil, err
	}
	_ = status
	var stats Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("unmarshalling index stats: %w", err)
	}
	return &stats, nil
}

// QueryStats calls the cheaper query-stats endpoint used as the guardrail's
// fallback when index-stats is unavailable.
func (c *Client) QueryStats(ctx context.Context, logql string, start, end time.Time) (*Stats, error) {
	params := url.Values{}
	params.Add("query", logql)
	addTimeParams(params, start, end)
	body, _, err := c.do(ctx, http.MethodGet, "/loki/api/v1/query/stats", params)
	if err != nil {
		var be *BackendError
		if ok := asBackendError(err, &be); ok && (be.Status == http.StatusNotFound || be.Status >= 500 || be.Status == 0) {
			return nil, IndexStatsUnavailable
		}
		return nil, err
	}
	var stats Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("unmarshalling query stats: %w", err)
	}
	return &stats, nil
}

// Ready calls Loki's /ready endpoint. A 404 is treated as a benign "not yet
// a supported probe" result rather than a hard failure, per spec.md §4.2.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/ready", nil)
	if err != nil {
		var be *BackendError
		if ok := asBackendError(err, &be); ok && be.IsNotFound() {
			return false, nil
		}
		return false, err
	}
	_ = body
	return status == http.StatusOK, nil
}

func asBackendError(err error, target **BackendError) bool {
	be, ok := err.(*BackendError)
	if ok {
		*target = be
	}
	return ok
}
