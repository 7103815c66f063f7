package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	ProbeInterval   time.Duration // health sweep interval
	ProbeTimeout    time.Duration // bound on a single probe
	RestartDelay    time.Duration // pause before a restart's re-evaluation
	MetricsInterval time.Duration // snapshot broadcast interval

	SeedFile string // path to a services.yaml seed file (optional, empty = disabled)

	// Ollama (assistant backend, external collaborator)
	OllamaURL           string        // ex: "http://localhost:11434"
	OllamaModel         string        // ex: "llama3.2"
	OllamaTimeout       time.Duration // per-request bound for chat calls
	OllamaCheckInterval time.Duration // connectivity watch interval

	TrustProxy       bool // true => trust X-Forwarded-For headers (e.g. cloudflared)
	RateBurst        int  // token bucket burst per client IP
	RateRefillPerMin int  // token refill rate per client IP
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("MCPMON_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("MCPMON_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("MCPMON_LOG_LEVEL", "info"),
		PrettyLog: mustBool("MCPMON_PRETTY_LOG", true),

		// Health monitoring
		ProbeInterval:   mustDuration("MCPMON_PROBE_INTERVAL", 5*time.Second),
		ProbeTimeout:    mustDuration("MCPMON_PROBE_TIMEOUT", 3*time.Second),
		RestartDelay:    mustDuration("MCPMON_RESTART_DELAY", 2*time.Second),
		MetricsInterval: mustDuration("MCPMON_METRICS_INTERVAL", 5*time.Second),

		// Seed file
		SeedFile: getenv("MCPMON_SEED_FILE", ""), // Optional, empty = no seeding

		// Ollama settings
		OllamaURL:           getenv("MCPMON_OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:         getenv("MCPMON_OLLAMA_MODEL", "llama3.2"),
		OllamaTimeout:       mustDuration("MCPMON_OLLAMA_TIMEOUT", 30*time.Second),
		OllamaCheckInterval: mustDuration("MCPMON_OLLAMA_CHECK_INTERVAL", 30*time.Second),

		// Access
		TrustProxy:       mustBool("MCPMON_TRUST_PROXY", false),
		RateBurst:        getenvInt("MCPMON_RATE_BURST", 60),
		RateRefillPerMin: getenvInt("MCPMON_RATE_REFILL_PER_MIN", 120),
	}

	// Log config only in debug mode
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", *cfg)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
