package transcode

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("CHAPELCAST_TRANSCODE_API", "")
	t.Setenv("CHAPELCAST_TRANSCODE_TOKEN_ID", "")
	t.Setenv("CHAPELCAST_TRANSCODE_TOKEN_SECRET", "")
	t.Setenv("CHAPELCAST_TRANSCODE_TIMEOUT", "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv returned error: %v", err)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("expected default API base, got %q", cfg.APIBaseURL)
	}
	if cfg.StreamBaseURL != defaultStreamBaseURL || cfg.ImageBaseURL != defaultImageBaseURL {
		t.Fatalf("expected default derivation hosts, got %q and %q", cfg.StreamBaseURL, cfg.ImageBaseURL)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.Enabled() {
		t.Fatal("expected config without credentials to be disabled")
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("CHAPELCAST_TRANSCODE_API", "https://provider.example.com")
	t.Setenv("CHAPELCAST_TRANSCODE_TOKEN_ID", "token-id")
	t.Setenv("CHAPELCAST_TRANSCODE_TOKEN_SECRET", "token-secret")
	t.Setenv("CHAPELCAST_TRANSCODE_TIMEOUT", "5s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv returned error: %v", err)
	}
	if cfg.APIBaseURL != "https://provider.example.com" {
		t.Fatalf("unexpected API base %q", cfg.APIBaseURL)
	}
	if !cfg.Enabled() {
		t.Fatal("expected config with credentials to be enabled")
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %s", cfg.RequestTimeout)
	}
}

func TestLoadConfigFromEnvRejectsBadTimeout(t *testing.T) {
	t.Setenv("CHAPELCAST_TRANSCODE_TIMEOUT", "not-a-duration")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected error for malformed timeout")
	}
}

func TestCredentialWarnings(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantCount   int
		wantContain string
	}{
		{
			name:        "missing credentials",
			cfg:         Config{},
			wantCount:   1,
			wantContain: "not configured",
		},
		{
			name:        "placeholder token id",
			cfg:         Config{TokenID: "changeme", TokenSecret: "real-secret-value"},
			wantCount:   1,
			wantContain: "placeholder",
		},
		{
			name:        "angle bracket template",
			cfg:         Config{TokenID: "<your token>", TokenSecret: "real-secret-value"},
			wantCount:   1,
			wantContain: "placeholder",
		},
		{
			name:      "both placeholders",
			cfg:       Config{TokenID: "your-token", TokenSecret: "xxx"},
			wantCount: 2,
		},
		{
			name:      "real credentials",
			cfg:       Config{TokenID: "a1b2c3", TokenSecret: "s3cr3t-value"},
			wantCount: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			warnings := tc.cfg.CredentialWarnings()
			if len(warnings) != tc.wantCount {
				t.Fatalf("expected %d warnings, got %d: %v", tc.wantCount, len(warnings), warnings)
			}
			if tc.wantContain != "" && !strings.Contains(warnings[0], tc.wantContain) {
				t.Fatalf("expected warning to mention %q, got %q", tc.wantContain, warnings[0])
			}
		})
	}
}
