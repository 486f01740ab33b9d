package objectstore

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:  "minio:9000",
		Bucket:    "chapelcast",
		AccessKey: "access",
		SecretKey: "secret",
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{"bare host and port", func(cfg *Config) {}, false},
		{"full URL endpoint", func(cfg *Config) { cfg.Endpoint = "https://s3.example.com" }, false},
		{"separate public endpoint", func(cfg *Config) { cfg.PublicEndpoint = "https://media.example.com" }, false},
		{"missing endpoint", func(cfg *Config) { cfg.Endpoint = "" }, true},
		{"missing bucket", func(cfg *Config) { cfg.Bucket = "" }, true},
		{"missing access key", func(cfg *Config) { cfg.AccessKey = "" }, true},
		{"missing secret key", func(cfg *Config) { cfg.SecretKey = "" }, true},
		{"endpoint without host", func(cfg *Config) { cfg.Endpoint = "http://" }, true},
		{"public endpoint without host", func(cfg *Config) { cfg.PublicEndpoint = "https://" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid.withDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestEndpointURLInheritsSchemeFromUseSSL(t *testing.T) {
	plain := Config{}
	parsed, err := plain.endpointURL("minio:9000")
	if err != nil {
		t.Fatalf("endpointURL returned error: %v", err)
	}
	if parsed.Scheme != "http" || parsed.Host != "minio:9000" {
		t.Fatalf("unexpected URL %q", parsed.String())
	}

	tls := Config{UseSSL: true}
	parsed, err = tls.endpointURL("minio:9000")
	if err != nil {
		t.Fatalf("endpointURL returned error: %v", err)
	}
	if parsed.Scheme != "https" {
		t.Fatalf("UseSSL must imply https, got %q", parsed.Scheme)
	}

	parsed, err = tls.endpointURL("http://legacy.example.com")
	if err != nil {
		t.Fatalf("endpointURL returned error: %v", err)
	}
	if parsed.Scheme != "http" {
		t.Fatalf("explicit scheme must win over UseSSL, got %q", parsed.Scheme)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Endpoint: "minio:9000"}.withDefaults()
	if cfg.PresignExpiry != time.Hour {
		t.Fatalf("expected one hour default expiry, got %s", cfg.PresignExpiry)
	}
	if cfg.PublicPrefix != "public" {
		t.Fatalf("expected public prefix default, got %q", cfg.PublicPrefix)
	}
	if cfg.Region != "us-east-1" {
		t.Fatalf("expected default region, got %q", cfg.Region)
	}
	if cfg.PublicEndpoint != cfg.Endpoint {
		t.Fatalf("public endpoint must fall back to the internal one, got %q", cfg.PublicEndpoint)
	}

	trimmed := Config{Endpoint: "minio:9000", PublicPrefix: " /assets/ "}.withDefaults()
	if trimmed.PublicPrefix != "assets" {
		t.Fatalf("prefix must be trimmed of slashes, got %q", trimmed.PublicPrefix)
	}
}
