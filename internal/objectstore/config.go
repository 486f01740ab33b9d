package objectstore

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultPresignExpiry = time.Hour
	defaultPublicPrefix  = "public"
)

// Audience selects which endpoint a presigned URL is generated against. The
// internal endpoint is reachable only from the service network; the public one
// is what browsers and mobile clients resolve. The two may differ in hostname,
// TLS termination, and port, so the split is a configuration concern and is
// never detected at request time.
type Audience int

const (
	AudienceInternal Audience = iota
	AudiencePublic
)

func (a Audience) String() string {
	if a == AudiencePublic {
		return "public"
	}
	return "internal"
}

// Config captures connectivity for one bucket on an S3-compatible store.
type Config struct {
	// Endpoint is the internal endpoint used by the service itself.
	Endpoint string
	// PublicEndpoint is handed to browsers/mobile clients; it falls back to
	// Endpoint when unset.
	PublicEndpoint string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool

	// PublicPrefix is the only key prefix granted anonymous read when the
	// bucket is created by EnsureBucket. The rest of the bucket stays private.
	PublicPrefix string

	// PresignExpiry is the default lifetime for presigned URLs.
	PresignExpiry time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = defaultPresignExpiry
	}
	if strings.TrimSpace(cfg.PublicPrefix) == "" {
		cfg.PublicPrefix = defaultPublicPrefix
	}
	cfg.PublicPrefix = strings.Trim(strings.TrimSpace(cfg.PublicPrefix), "/")
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.PublicEndpoint) == "" {
		cfg.PublicEndpoint = cfg.Endpoint
	}
	return cfg
}

// Validate reports configuration problems that make the gateway unusable.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return fmt.Errorf("object storage endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return fmt.Errorf("object storage bucket is required")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("object storage credentials are required")
	}
	if _, err := cfg.endpointURL(cfg.Endpoint); err != nil {
		return err
	}
	if _, err := cfg.endpointURL(cfg.PublicEndpoint); err != nil {
		return err
	}
	return nil
}

// endpointURL normalises an endpoint value into a full URL. Bare host:port
// values inherit the scheme implied by UseSSL.
func (cfg Config) endpointURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("endpoint is empty")
	}
	if !strings.Contains(trimmed, "://") {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		trimmed = scheme + "://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", raw)
	}
	return parsed, nil
}
