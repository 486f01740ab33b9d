package main

import (
	"testing"
	"time"

	"chapelcast/internal/transcode"
)

func TestResolveStorageDriver(t *testing.T) {
	cases := []struct {
		name        string
		flagValue   string
		envValue    string
		postgresDSN string
		want        string
	}{
		{name: "flag wins", flagValue: "Postgres", envValue: "json", want: "postgres"},
		{name: "env fallback", envValue: "JSON", want: "json"},
		{name: "dsn implies postgres", postgresDSN: "postgres://localhost/chapelcast", want: "postgres"},
		{name: "default json", want: "json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveStorageDriver(tc.flagValue, tc.envValue, tc.postgresDSN)
			if err != nil {
				t.Fatalf("resolveStorageDriver error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestResolveListenAddrDefaultsByMode(t *testing.T) {
	if got := resolveListenAddr("", "production", ""); got != ":80" {
		t.Fatalf("expected :80 in production, got %q", got)
	}
	if got := resolveListenAddr("", "development", ""); got != ":8080" {
		t.Fatalf("expected :8080 in development, got %q", got)
	}
	if got := resolveListenAddr("127.0.0.1:9999", "production", ":3000"); got != "127.0.0.1:9999" {
		t.Fatalf("flag should win, got %q", got)
	}
	if got := resolveListenAddr("", "development", ":3000"); got != ":3000" {
		t.Fatalf("env should win over the default, got %q", got)
	}
}

func TestModeValueNormalises(t *testing.T) {
	if got := modeValue(" Production ", ""); got != "production" {
		t.Fatalf("expected production, got %q", got)
	}
	if got := modeValue("", ""); got != "development" {
		t.Fatalf("expected development default, got %q", got)
	}
}

func TestParsePlaybackPolicy(t *testing.T) {
	if policy, err := parsePlaybackPolicy(" Signed "); err != nil || policy != transcode.PlaybackSigned {
		t.Fatalf("expected signed, got %q (%v)", policy, err)
	}
	if policy, err := parsePlaybackPolicy("public"); err != nil || policy != transcode.PlaybackPublic {
		t.Fatalf("expected public, got %q (%v)", policy, err)
	}
	if _, err := parsePlaybackPolicy("open"); err == nil {
		t.Fatal("expected an error for an unknown policy")
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://admin.example.com , ,https://www.example.com ")
	if len(got) != 2 || got[0] != "https://admin.example.com" || got[1] != "https://www.example.com" {
		t.Fatalf("unexpected result: %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatal("expected nil for blank input")
	}
}

func TestResolveDurationPrefersFlagThenEnvThenFallback(t *testing.T) {
	if got := resolveDuration(5*time.Second, "CHAPELCAST_TEST_DURATION", time.Minute); got != 5*time.Second {
		t.Fatalf("flag should win, got %v", got)
	}
	t.Setenv("CHAPELCAST_TEST_DURATION", "90s")
	if got := resolveDuration(0, "CHAPELCAST_TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Fatalf("env should win, got %v", got)
	}
	t.Setenv("CHAPELCAST_TEST_DURATION", "")
	if got := resolveDuration(0, "CHAPELCAST_TEST_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("fallback expected, got %v", got)
	}
}

func TestResolveDataPathDefault(t *testing.T) {
	if got := resolveDataPath("", ""); got != "data/assets.json" {
		t.Fatalf("unexpected default %q", got)
	}
	if got := resolveDataPath("/tmp/x.json", "/tmp/y.json"); got != "/tmp/x.json" {
		t.Fatalf("flag should win, got %q", got)
	}
}
