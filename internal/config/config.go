// Package config loads the server's layered configuration: a TOML file,
// overridden by environment variables, overridden by CLI flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// ServerConfig holds the [server] TOML section.
type ServerConfig struct {
	Listen           string `toml:"listen"`
	IdentityHeader   string `toml:"identity_header"`
	Timezone         string `toml:"timezone"`
	LogLevel         string `toml:"log_level"`
	DefaultWindowStr string `toml:"default_window"`
	MaxWindowStr     string `toml:"max_window"`
	MCPEndpointPath  string `toml:"mcp_endpoint_path"`
}

// LokiConfig holds the [loki] TOML section.
type LokiConfig struct {
	URL         string `toml:"url"`
	TenantID    string `toml:"tenant_id"`
	AuthType    string `toml:"auth_type"` // "none", "basic", "bearer"
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	Token       string `toml:"token"`
	CACertFile  string `toml:"ca_cert_file"`
	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`
	SkipVerify  bool   `toml:"tls_skip_verify"`
	TimeoutStr  string `toml:"timeout"`
}

// RateLimitConfig holds the [rate_limit] TOML section.
type RateLimitConfig struct {
	RPS          float64            `toml:"rps"`
	Burst        int                `toml:"burst"`
	PerTool      map[string]float64 `toml:"per_tool"`
	IdleEvictStr string             `toml:"idle_evict"`
}

// GuardrailConfig holds the [guardrails] TOML section.
type GuardrailConfig struct {
	MaxBytesScanned      int64    `toml:"max_bytes_scanned"`
	MaxStreams           int      `toml:"max_streams"`
	SkipTools            []string `toml:"skip_tools"`
	DisablePrecheckTools []string `toml:"disable_precheck_tools"`
}

// CacheConfig holds the [cache] TOML section.
type CacheConfig struct {
	Capacity        int    `toml:"capacity"`
	TTLStr          string `toml:"ttl"`
	RoundingStr     string `toml:"rounding"`
	ReadinessTTLStr string `toml:"readiness_ttl"`
}

// RecentActionsConfig holds the [recent_actions] TOML section.
type RecentActionsConfig struct {
	Enabled  bool `toml:"enabled"`
	Capacity int  `toml:"capacity"`
}

// MetricsConfig holds the [metrics] TOML section.
type MetricsConfig struct {
	Prefix string `toml:"prefix"`
}

// Config is the fully-resolved server configuration.
type Config struct {
	Server         ServerConfig         `toml:"server"`
	Loki           LokiConfig           `toml:"loki"`
	RateLimit      RateLimitConfig      `toml:"rate_limit"`
	Guardrails     GuardrailConfig      `toml:"guardrails"`
	Cache          CacheConfig          `toml:"cache"`
	RecentActions  RecentActionsConfig  `toml:"recent_actions"`
	Metrics        MetricsConfig        `toml:"metrics"`
}

// Default returns the configuration with sane defaults applied, before any
// TOML file, environment variable, or CLI flag is layered on top.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:           ":8080",
			IdentityHeader:   "X-Identity",
			Timezone:         "UTC",
			LogLevel:         "info",
			DefaultWindowStr: "30m",
			MaxWindowStr:     "168h",
			MCPEndpointPath:  "/mcp",
		},
		Loki: LokiConfig{
			AuthType:  "none",
			TimeoutStr: "30s",
		},
		RateLimit: RateLimitConfig{
			RPS:          10,
			Burst:        10,
			IdleEvictStr: "10m",
		},
		Guardrails: GuardrailConfig{
			MaxBytesScanned: 500_000_000,
			MaxStreams:      5000,
			SkipTools:       []string{"loki_list_labels", "loki_list_label_values", "loki_list_series", "loki_health"},
		},
		Cache: CacheConfig{
			Capacity:        1000,
			TTLStr:          "30s",
			RoundingStr:     "10s",
			ReadinessTTLStr: "5s",
		},
		RecentActions: RecentActionsConfig{
			Enabled:  true,
			Capacity: 500,
		},
		Metrics: MetricsConfig{
			Prefix: "loki_mcp",
		},
	}
}

// FromTOML decodes TOML bytes onto the default configuration.
func FromTOML(data []byte) (Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing TOML config: %w", err)
	}
	return cfg, nil
}

// Load reads the TOML file at path (if non-empty and present) and layers
// environment variable overrides on top. Precedence: file < environment.
// CLI flags are expected to be layered on top of the result by the caller
// (see cmd/loki-mcp-server), since flags are parsed after Load runs.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %q: %w", path, err)
		}
		cfg, err = FromTOML(data)
		if err != nil {
			return Config{}, err
		}
	}

	cfg = applyEnv(cfg)
	return cfg, nil
}

// envPrefix is the common prefix for all environment variable overrides.
// Flattened form: LOKI_MCP_LOKI_URL. Nested form: LOKI_MCP_LOKI__URL.
// Both resolve to the same key once double underscores are normalized to
// single underscores before matching.
const envPrefix = "LOKI_MCP_"

func applyEnv(cfg Config) Config {
	lookup := func(key string) (string, bool) {
		// Accept both LOKI_MCP_LOKI_URL and LOKI_MCP_LOKI__URL. An empty
		// value counts as unset.
		if v := os.Getenv(envPrefix + key); v != "" {
			return v, true
		}
		for _, kv := range os.Environ() {
			name, v, _ := strings.Cut(kv, "=")
			if v == "" || !strings.HasPrefix(name, envPrefix) {
				continue
			}
			if strings.ReplaceAll(strings.TrimPrefix(name, envPrefix), "__", "_") == key {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := lookup("SERVER_LISTEN"); ok {
		cfg.Server.Listen = v
	}
	if v, ok := lookup("SERVER_IDENTITY_HEADER"); ok {
		cfg.Server.IdentityHeader = v
	}
	if v, ok := lookup("SERVER_TIMEZONE"); ok {
		cfg.Server.Timezone = v
	}
	if v, ok := lookup("SERVER_LOG_LEVEL"); ok {
		cfg.Server.LogLevel = v
	}

	if v, ok := lookup("LOKI_URL"); ok {
		cfg.Loki.URL = v
	}
	if v, ok := lookup("LOKI_TENANT_ID"); ok {
		cfg.Loki.TenantID = v
	}
	if v, ok := lookup("LOKI_AUTH_TYPE"); ok {
		cfg.Loki.AuthType = v
	}
	if v, ok := lookup("LOKI_USERNAME"); ok {
		cfg.Loki.Username = v
	}
	if v, ok := lookup("LOKI_PASSWORD"); ok {
		cfg.Loki.Password = v
	}
	if v, ok := lookup("LOKI_TOKEN"); ok {
		cfg.Loki.Token = v
	}
	if v, ok := lookup("LOKI_CA_CERT_FILE"); ok {
		cfg.Loki.CACertFile = v
	}
	if v, ok := lookup("LOKI_TLS_CERT_FILE"); ok {
		cfg.Loki.TLSCertFile = v
	}
	if v, ok := lookup("LOKI_TLS_KEY_FILE"); ok {
		cfg.Loki.TLSKeyFile = v
	}
	if v, ok := lookup("LOKI_TLS_SKIP_VERIFY"); ok {
		cfg.Loki.SkipVerify = v == "true" || v == "1"
	}
	if v, ok := lookup("SERVER_DEFAULT_WINDOW"); ok {
		cfg.Server.DefaultWindowStr = v
	}
	if v, ok := lookup("SERVER_MAX_WINDOW"); ok {
		cfg.Server.MaxWindowStr = v
	}

	if v, ok := lookup("RATE_LIMIT_RPS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.RPS = f
		}
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Burst = n
		}
	}

	if v, ok := lookup("GUARDRAILS_MAX_BYTES_SCANNED"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Guardrails.MaxBytesScanned = n
		}
	}
	if v, ok := lookup("GUARDRAILS_MAX_STREAMS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Guardrails.MaxStreams = n
		}
	}

	if v, ok := lookup("CACHE_CAPACITY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Capacity = n
		}
	}
	if v, ok := lookup("CACHE_TTL"); ok {
		cfg.Cache.TTLStr = v
	}

	if v, ok := lookup("RECENT_ACTIONS_ENABLED"); ok {
		cfg.RecentActions.Enabled = v == "true" || v == "1"
	}
	if v, ok := lookup("RECENT_ACTIONS_CAPACITY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RecentActions.Capacity = n
		}
	}

	if v, ok := lookup("METRICS_PREFIX"); ok {
		cfg.Metrics.Prefix = v
	}

	return cfg
}

// CacheTTL parses the configured cache TTL, defaulting to 30s if unset or
// invalid.
func (c Config) CacheTTL() time.Duration {
	return parseDurationOr(c.Cache.TTLStr, 30*time.Second)
}

// CacheRounding parses the fingerprint time-rounding granularity.
func (c Config) CacheRounding() time.Duration {
	return parseDurationOr(c.Cache.RoundingStr, 10*time.Second)
}

// ReadinessTTL parses the readiness-probe cache TTL.
func (c Config) ReadinessTTL() time.Duration {
	return parseDurationOr(c.Cache.ReadinessTTLStr, 5*time.Second)
}

// RateLimitIdleEvict parses the rate-limiter bucket idle-eviction window.
func (c Config) RateLimitIdleEvict() time.Duration {
	return parseDurationOr(c.RateLimit.IdleEvictStr, 10*time.Minute)
}

// DefaultWindow parses the time resolver's default range width, used when
// start is omitted (start = end - window).
func (c Config) DefaultWindow() time.Duration {
	return parseDurationOr(c.Server.DefaultWindowStr, 30*time.Minute)
}

// MaxWindow parses the widest range the time resolver will accept.
func (c Config) MaxWindow() time.Duration {
	return parseDurationOr(c.Server.MaxWindowStr, 168*time.Hour)
}

// LokiTimeout parses the HTTP client timeout used for every Loki request.
func (c Config) LokiTimeout() time.Duration {
	return parseDurationOr(c.Loki.TimeoutStr, 30*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
