package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Fetch     FetchConfig
	Render    RenderConfig
	Trust     TrustConfig
	LastGood  LastGoodConfig
	Selectors SelectorsConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8000
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Enabled toggles the rendering strategy entirely.
	Enabled bool // default: true

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxParallel is the number of concurrent rendering sessions.
	MaxParallel int // default: 1

	// DefaultProxy is the proxy URL for all browser traffic.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth injects the stealth evasions into every page.
	Stealth bool // default: true
}

// FetchConfig controls strategy ordering and retries.
type FetchConfig struct {
	// Order lists strategies by name ("http", "rendered") in attempt order.
	Order []string // default: ["http", "rendered"]

	HTTPAttempts   int // default: 2
	RenderAttempts int // default: 2

	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration // default: 500ms

	HTTPTimeout   time.Duration // default: 20s
	RenderTimeout time.Duration // default: 60s

	// MinLightBytes / MinRenderedBytes are the smallest documents accepted
	// from each strategy.
	MinLightBytes    int // default: 100
	MinRenderedBytes int // default: 200

	// RememberStrategy starts at rendering for domains where the light
	// strategy recently proved insufficient.
	RememberStrategy bool          // default: true
	MemoryTTL        time.Duration // default: 24h
}

// RenderConfig controls page readiness and live selector polling.
type RenderConfig struct {
	NavigationTimeout  time.Duration // default: 60s
	NetworkIdleTimeout time.Duration // default: 30s
	SettleDelay        time.Duration // default: 500ms
	PollInterval       time.Duration // default: 300ms
	SelectorWait       time.Duration // default: 20s

	// BlockedResourceTypes lists CDP resource types to abort.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockTrackers aborts requests to known analytics/ad hosts.
	BlockTrackers bool // default: true
}

// TrustConfig controls the suspicion thresholds.
type TrustConfig struct {
	// MinMagnitude is the value under which a currency-less number is
	// treated as a count or rating.
	MinMagnitude float64 // default: 20

	// RecurringThreshold is how many distinct URLs may report the same
	// suspect price before every further URL with it is suspect.
	RecurringThreshold int // default: 3
}

// LastGoodConfig controls the last-known-good cache.
type LastGoodConfig struct {
	TTL         time.Duration // default: 168h
	MaxSnapshot int           // default: 256 KiB

	// DBPath enables SQLite persistence when non-empty.
	DBPath string
}

// SelectorsConfig points at an optional per-site selector file.
type SelectorsConfig struct {
	File string // default: "site_selectors.json"
}

// AuthConfig controls optional API-key authentication on /parse.
type AuthConfig struct {
	// APIKeys is the accepted key set. Empty disables authentication.
	APIKeys []string
}

// RateLimitConfig controls per-client rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per client.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PRICE_HOST", "0.0.0.0"),
			Port: envIntOr("PRICE_PORT", 8000),
			Mode: envOr("PRICE_MODE", "release"),
		},
		Browser: BrowserConfig{
			Enabled:      envBoolOr("ENABLE_RENDERING", true),
			Headless:     envBoolOr("RENDER_HEADLESS", true),
			MaxParallel:  envIntOr("RENDER_MAX_PARALLEL", 1),
			DefaultProxy: os.Getenv("RENDER_PROXY"),
			NoSandbox:    envBoolOr("RENDER_NO_SANDBOX", true),
			BrowserBin:   os.Getenv("RENDER_BROWSER_BIN"),
			Stealth:      envBoolOr("RENDER_STEALTH", true),
		},
		Fetch: FetchConfig{
			Order:            envSliceOr("FETCH_ORDER", []string{"http", "rendered"}),
			HTTPAttempts:     envIntOr("HTTP_ATTEMPTS", 2),
			RenderAttempts:   envIntOr("RENDER_ATTEMPTS", 2),
			Backoff:          envDurationOr("FETCH_BACKOFF", 500*time.Millisecond),
			HTTPTimeout:      envDurationOr("HTTP_TIMEOUT", 20*time.Second),
			RenderTimeout:    envDurationOr("RENDER_TIMEOUT", 60*time.Second),
			MinLightBytes:    envIntOr("MIN_DOCUMENT_BYTES_LIGHT", 100),
			MinRenderedBytes: envIntOr("MIN_DOCUMENT_BYTES_RENDERED", 200),
			RememberStrategy: envBoolOr("REMEMBER_STRATEGY", true),
			MemoryTTL:        envDurationOr("STRATEGY_MEMORY_TTL", 24*time.Hour),
		},
		Render: RenderConfig{
			NavigationTimeout:  envDurationOr("NAV_TIMEOUT", 60*time.Second),
			NetworkIdleTimeout: envDurationOr("NETWORK_IDLE_TIMEOUT", 30*time.Second),
			SettleDelay:        envDurationOr("SETTLE_DELAY", 500*time.Millisecond),
			PollInterval:       envDurationOr("SELECTOR_POLL_INTERVAL", 300*time.Millisecond),
			SelectorWait:       envDurationOr("SELECTOR_WAIT", 20*time.Second),
			BlockedResourceTypes: envSliceOr("BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockTrackers: envBoolOr("RENDER_BLOCK_TRACKERS", true),
		},
		Trust: TrustConfig{
			MinMagnitude:       envFloatOr("MIN_PRICE_MAGNITUDE", 20),
			RecurringThreshold: envIntOr("RECURRING_PRICE_THRESHOLD", 3),
		},
		LastGood: LastGoodConfig{
			TTL:         envDurationOr("LAST_GOOD_TTL", 7*24*time.Hour),
			MaxSnapshot: envIntOr("LAST_GOOD_MAX_SNAPSHOT", 256*1024),
			DBPath:      os.Getenv("LAST_GOOD_DB"),
		},
		Selectors: SelectorsConfig{
			File: envOr("SITE_SELECTORS_FILE", "site_selectors.json"),
		},
		Auth: AuthConfig{
			APIKeys: envSliceOr("PARSE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("RATE_RPS", 5.0),
			Burst:             envIntOr("RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
