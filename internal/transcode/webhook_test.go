package transcode

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

func signBody(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature(t *testing.T) {
	cfg := Config{WebhookSecret: "hook-secret"}
	now := time.Now()
	body := []byte(`{"type":"video.asset.ready","data":{"id":"asset-123","status":"ready"}}`)
	header := signBody("hook-secret", now.Unix(), body)

	if err := cfg.VerifyWebhookSignature(header, body, now); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifyWebhookSignatureRejectsTampering(t *testing.T) {
	cfg := Config{WebhookSecret: "hook-secret"}
	now := time.Now()
	body := []byte(`{"type":"video.asset.ready"}`)
	header := signBody("hook-secret", now.Unix(), body)

	err := cfg.VerifyWebhookSignature(header, []byte(`{"type":"video.asset.errored"}`), now)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerifyWebhookSignatureRejectsStaleTimestamp(t *testing.T) {
	cfg := Config{WebhookSecret: "hook-secret"}
	now := time.Now()
	body := []byte(`{}`)
	header := signBody("hook-secret", now.Add(-time.Hour).Unix(), body)

	if err := cfg.VerifyWebhookSignature(header, body, now); err == nil {
		t.Fatal("expected error for stale timestamp")
	}
}

func TestVerifyWebhookSignatureRejectsMalformedHeader(t *testing.T) {
	cfg := Config{WebhookSecret: "hook-secret"}
	for _, header := range []string{"", "v1=abc", "t=notanumber,v1=abc"} {
		if err := cfg.VerifyWebhookSignature(header, []byte(`{}`), time.Now()); err == nil {
			t.Fatalf("expected error for header %q", header)
		}
	}
}

func TestParseWebhookEvent(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantType  string
		wantAsset string
		wantUp    string
	}{
		{
			name:      "asset ready",
			body:      `{"type":"video.asset.ready","data":{"id":"asset-123","status":"ready"}}`,
			wantType:  "video.asset.ready",
			wantAsset: "asset-123",
		},
		{
			name:      "upload created asset",
			body:      `{"type":"video.upload.asset_created","data":{"id":"upload-789","asset_id":"asset-123"}}`,
			wantType:  "video.upload.asset_created",
			wantAsset: "asset-123",
			wantUp:    "upload-789",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			event, err := ParseWebhookEvent([]byte(tc.body))
			if err != nil {
				t.Fatalf("ParseWebhookEvent returned error: %v", err)
			}
			if event.Type != tc.wantType || event.ProviderAssetID != tc.wantAsset || event.UploadID != tc.wantUp {
				t.Fatalf("unexpected event %+v", event)
			}
		})
	}
}

func TestParseWebhookEventRejectsGarbage(t *testing.T) {
	if _, err := ParseWebhookEvent([]byte("not json")); err == nil {
		t.Fatal("expected error for non-JSON body")
	}
	if _, err := ParseWebhookEvent([]byte(`{"data":{}}`)); err == nil {
		t.Fatal("expected error for missing event type")
	}
}
