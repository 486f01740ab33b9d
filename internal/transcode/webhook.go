package transcode

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WebhookEvent is a provider push notification about an asset. Events are a
// hint to refresh sooner; the polled status remains authoritative, and
// duplicate deliveries are expected.
type WebhookEvent struct {
	Type            string
	ProviderAssetID string
	UploadID        string
	Status          string
	ReceivedAt      time.Time
}

// ErrBadSignature is returned when a webhook signature fails verification.
var ErrBadSignature = errors.New("transcode: webhook signature mismatch")

const signatureTolerance = 5 * time.Minute

// VerifyWebhookSignature checks the provider's signature header against the
// raw request body. The header format is "t=<unix>,v1=<hex hmac>"; the HMAC
// covers "<unix>.<body>". Timestamps outside the tolerance window are
// rejected to blunt replay.
func (cfg Config) VerifyWebhookSignature(header string, body []byte, now time.Time) error {
	if cfg.WebhookSecret == "" {
		return errors.New("transcode: webhook secret is not configured")
	}
	timestamp, signature, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}
	issued := time.Unix(timestamp, 0)
	if issued.Before(now.Add(-signatureTolerance)) || issued.After(now.Add(signatureTolerance)) {
		return fmt.Errorf("transcode: webhook timestamp outside tolerance: %s", issued.UTC().Format(time.RFC3339))
	}

	mac := hmac.New(sha256.New, []byte(cfg.WebhookSecret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, provided) {
		return ErrBadSignature
	}
	return nil
}

func parseSignatureHeader(header string) (int64, string, error) {
	var timestampPart, signaturePart string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestampPart = value
		case "v1":
			signaturePart = value
		}
	}
	if timestampPart == "" || signaturePart == "" {
		return 0, "", errors.New("transcode: malformed webhook signature header")
	}
	timestamp, err := strconv.ParseInt(timestampPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("transcode: malformed webhook timestamp: %w", err)
	}
	return timestamp, signaturePart, nil
}

// ParseWebhookEvent decodes a verified webhook body into an event.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var payload struct {
		Type string `json:"type"`
		Data struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			UploadID string `json:"upload_id"`
			AssetID  string `json:"asset_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode webhook event: %w", err)
	}
	if payload.Type == "" {
		return WebhookEvent{}, errors.New("transcode: webhook event has no type")
	}

	event := WebhookEvent{
		Type:       payload.Type,
		Status:     payload.Data.Status,
		ReceivedAt: time.Now().UTC(),
	}
	if strings.HasPrefix(payload.Type, "video.upload.") {
		event.UploadID = payload.Data.ID
		event.ProviderAssetID = payload.Data.AssetID
	} else {
		event.ProviderAssetID = payload.Data.ID
		event.UploadID = payload.Data.UploadID
	}
	return event, nil
}
