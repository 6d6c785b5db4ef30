package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Client captures everything the API client and CLI need to talk to a
// MoviesNow deployment.
type Client struct {
	BaseURL         string
	RequestTimeout  time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	CredentialsPath string
	Verbose         bool
}

// Sandbox captures the local development server configuration.
type Sandbox struct {
	Addr             string
	SigningKey       string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ReauthTokenTTL   time.Duration
	SessionTTL       time.Duration
	IdempotencyTTL   time.Duration
	RateLimitPerMin  int
	ShapeSeed        int64
	SeedDemoAccounts bool
}

// LoadDotenv loads a .env file when present so developer workflows don't
// need exported shell state. Missing files are not an error.
func LoadDotenv() {
	_ = godotenv.Load()
}

// ClientFromEnv builds the client config from environment variables so
// main stays lean. Flags may override individual fields afterwards.
func ClientFromEnv() Client {
	home, _ := os.UserHomeDir()
	return Client{
		BaseURL:         envString("MOVIESNOW_API_URL", "http://localhost:8980"),
		RequestTimeout:  envDuration("MOVIESNOW_TIMEOUT", 15*time.Second),
		MaxRetries:      envInt("MOVIESNOW_MAX_RETRIES", 3),
		RetryBaseDelay:  envDuration("MOVIESNOW_RETRY_BASE_DELAY", 250*time.Millisecond),
		RetryMaxDelay:   envDuration("MOVIESNOW_RETRY_MAX_DELAY", 5*time.Second),
		CredentialsPath: envString("MOVIESNOW_CREDENTIALS", filepath.Join(home, ".moviesnow", "credentials.json")),
		Verbose:         envBool("MOVIESNOW_VERBOSE", false),
	}
}

// SandboxFromEnv builds the sandbox config. The signing key has a
// development default; anything listening beyond localhost should override it.
func SandboxFromEnv() Sandbox {
	return Sandbox{
		Addr:             envString("MOVIESNOW_SANDBOX_ADDR", ":8980"),
		SigningKey:       envString("MOVIESNOW_SANDBOX_SIGNING_KEY", "sandbox-signing-key-not-for-production"),
		AccessTokenTTL:   envDuration("MOVIESNOW_SANDBOX_ACCESS_TTL", 15*time.Minute),
		RefreshTokenTTL:  envDuration("MOVIESNOW_SANDBOX_REFRESH_TTL", 720*time.Hour),
		ReauthTokenTTL:   envDuration("MOVIESNOW_SANDBOX_REAUTH_TTL", 5*time.Minute),
		SessionTTL:       envDuration("MOVIESNOW_SANDBOX_SESSION_TTL", 720*time.Hour),
		IdempotencyTTL:   envDuration("MOVIESNOW_SANDBOX_IDEMPOTENCY_TTL", 24*time.Hour),
		RateLimitPerMin:  envInt("MOVIESNOW_SANDBOX_RATE_LIMIT", 600),
		ShapeSeed:        int64(envInt("MOVIESNOW_SANDBOX_SHAPE_SEED", 0)),
		SeedDemoAccounts: envBool("MOVIESNOW_SANDBOX_SEED_DEMO", true),
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
