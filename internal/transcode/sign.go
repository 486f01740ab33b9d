package transcode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignedAudience selects which derived resource a playback token unlocks.
type SignedAudience string

const (
	AudienceVideo     SignedAudience = "v"
	AudienceThumbnail SignedAudience = "t"
	AudienceGIF       SignedAudience = "g"
)

// SigningEnabled reports whether a signing key pair is configured. Without
// one, signed-policy assets yield bare URLs the provider will reject, so
// callers should treat a signed policy with no key as a configuration error.
func (cfg Config) SigningEnabled() bool {
	return cfg.SigningKeyID != "" && cfg.SigningSecret != ""
}

// SignURL appends a playback token for the audience to an already-derived
// URL. The derivation helpers stay pure; this is the only place a token is
// attached.
func (cfg Config) SignURL(rawURL, playbackID string, audience SignedAudience, ttl time.Duration) (string, error) {
	token, err := cfg.SignPlayback(playbackID, audience, ttl)
	if err != nil {
		return "", err
	}
	separator := "?"
	if strings.Contains(rawURL, "?") {
		separator = "&"
	}
	return rawURL + separator + "token=" + token, nil
}

// SignPlayback mints a short-lived token that grants access to one playback
// ID under a signed playback policy. The token is appended to the derived URL
// as ?token=... by the caller.
func (cfg Config) SignPlayback(playbackID string, audience SignedAudience, ttl time.Duration) (string, error) {
	if cfg.SigningKeyID == "" || cfg.SigningSecret == "" {
		return "", errors.New("transcode: signing key is not configured")
	}
	if playbackID == "" {
		return "", errors.New("transcode: playback ID is required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": playbackID,
		"aud": string(audience),
		"kid": cfg.SigningKeyID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = cfg.SigningKeyID

	signed, err := token.SignedString([]byte(cfg.SigningSecret))
	if err != nil {
		return "", fmt.Errorf("sign playback token: %w", err)
	}
	return signed, nil
}
