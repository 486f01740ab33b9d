package transcode

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultAPIBaseURL    = "https://api.mux.com"
	defaultStreamBaseURL = "https://stream.mux.com"
	defaultImageBaseURL  = "https://image.mux.com"
)

// Config stores connectivity and derivation settings for the provider.
type Config struct {
	APIBaseURL  string
	TokenID     string
	TokenSecret string

	// StreamBaseURL and ImageBaseURL are the hosts playback and image URLs
	// are derived against. They are templates only; deriving a URL never
	// makes a network call.
	StreamBaseURL string
	ImageBaseURL  string

	// SigningKeyID and SigningSecret enable signed playback policies.
	SigningKeyID  string
	SigningSecret string

	// WebhookSecret verifies inbound webhook signatures when the optional
	// push path is enabled.
	WebhookSecret string

	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// LoadConfigFromEnv initialises a Config from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		APIBaseURL:    strings.TrimSpace(os.Getenv("CHAPELCAST_TRANSCODE_API")),
		TokenID:       strings.TrimSpace(os.Getenv("CHAPELCAST_TRANSCODE_TOKEN_ID")),
		TokenSecret:   strings.TrimSpace(os.Getenv("CHAPELCAST_TRANSCODE_TOKEN_SECRET")),
		StreamBaseURL: strings.TrimSpace(os.Getenv("CHAPELCAST_TRANSCODE_STREAM_BASE")),
		ImageBaseURL:  strings.TrimSpace(os.Getenv("CHAPELCAST_TRANSCODE_IMAGE_BASE")),
		SigningKeyID:  strings.TrimSpace(os.Getenv("CHAPELCAST_TRANSCODE_SIGNING_KEY_ID")),
		SigningSecret: strings.TrimSpace(os.Getenv("CHAPELCAST_TRANSCODE_SIGNING_SECRET")),
		WebhookSecret: strings.TrimSpace(os.Getenv("CHAPELCAST_TRANSCODE_WEBHOOK_SECRET")),
		RequestTimeout: 30 * time.Second,
	}
	if timeout := strings.TrimSpace(os.Getenv("CHAPELCAST_TRANSCODE_TIMEOUT")); timeout != "" {
		parsed, err := time.ParseDuration(timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse CHAPELCAST_TRANSCODE_TIMEOUT: %w", err)
		}
		if parsed > 0 {
			cfg.RequestTimeout = parsed
		}
	}
	return cfg.withDefaults(), nil
}

func (cfg Config) withDefaults() Config {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.StreamBaseURL == "" {
		cfg.StreamBaseURL = defaultStreamBaseURL
	}
	if cfg.ImageBaseURL == "" {
		cfg.ImageBaseURL = defaultImageBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return cfg
}

// Enabled reports whether submission credentials are present at all. A
// disabled configuration still allows upload slots to be issued; only the
// submission step is blocked.
func (cfg Config) Enabled() bool {
	return cfg.TokenID != "" && cfg.TokenSecret != ""
}

var placeholderValues = []string{
	"changeme", "change-me", "placeholder", "your-token", "your_token",
	"todo", "xxx", "example", "dummy",
}

// CredentialWarnings inspects the configured credentials for missing or
// obviously unfilled placeholder values. These are warnings rather than
// errors: the service runs without ingestion instead of refusing to start.
func (cfg Config) CredentialWarnings() []string {
	var warnings []string
	if cfg.TokenID == "" || cfg.TokenSecret == "" {
		warnings = append(warnings, "transcoding credentials are not configured; media processing is disabled")
		return warnings
	}
	if looksLikePlaceholder(cfg.TokenID) {
		warnings = append(warnings, fmt.Sprintf("transcoding token ID %q looks like a placeholder", cfg.TokenID))
	}
	if looksLikePlaceholder(cfg.TokenSecret) {
		warnings = append(warnings, "transcoding token secret looks like a placeholder")
	}
	return warnings
}

func looksLikePlaceholder(value string) bool {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if strings.HasPrefix(normalized, "<") || strings.HasSuffix(normalized, ">") {
		return true
	}
	for _, candidate := range placeholderValues {
		if normalized == candidate || strings.Contains(normalized, candidate) {
			return true
		}
	}
	return false
}
