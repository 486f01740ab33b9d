package models

import "testing"

func TestParseMediaKind(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		want        MediaKind
	}{
		{name: "video", contentType: "video/mp4", want: KindVideo},
		{name: "audio", contentType: "audio/mpeg", want: KindAudio},
		{name: "image", contentType: "image/jpeg", want: KindImage},
		{name: "pdf falls back to document", contentType: "application/pdf", want: KindDocument},
		{name: "empty falls back to document", contentType: "", want: KindDocument},
		{name: "case and whitespace", contentType: "  VIDEO/QuickTime ", want: KindVideo},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseMediaKind(tc.contentType); got != tc.want {
				t.Fatalf("ParseMediaKind(%q) = %q, want %q", tc.contentType, got, tc.want)
			}
		})
	}
}

func TestIngestStatusValid(t *testing.T) {
	for _, status := range []IngestStatus{StatusPending, StatusSubmitting, StatusProcessing, StatusReady, StatusErrored} {
		if !status.Valid() {
			t.Fatalf("%q should be valid", status)
		}
	}
	if IngestStatus("uploading").Valid() {
		t.Fatal("the client-side uploading phase is not a stored status")
	}
}

func TestIngestStatusTerminal(t *testing.T) {
	if !StatusReady.Terminal() || !StatusErrored.Terminal() {
		t.Fatal("ready and errored are terminal")
	}
	if StatusPending.Terminal() || StatusSubmitting.Terminal() || StatusProcessing.Terminal() {
		t.Fatal("non-terminal statuses reported terminal")
	}
}

func TestCanTransitionIsForwardOnly(t *testing.T) {
	cases := []struct {
		name string
		from IngestStatus
		to   IngestStatus
		want bool
	}{
		{name: "pending to submitting", from: StatusPending, to: StatusSubmitting, want: true},
		{name: "submitting to processing", from: StatusSubmitting, to: StatusProcessing, want: true},
		{name: "processing to ready", from: StatusProcessing, to: StatusReady, want: true},
		{name: "processing to errored", from: StatusProcessing, to: StatusErrored, want: true},
		{name: "skip ahead", from: StatusPending, to: StatusReady, want: true},
		{name: "same status is idempotent", from: StatusProcessing, to: StatusProcessing, want: true},
		{name: "backwards is rejected", from: StatusProcessing, to: StatusPending, want: false},
		{name: "ready never regresses", from: StatusReady, to: StatusProcessing, want: false},
		{name: "ready does not become errored", from: StatusReady, to: StatusErrored, want: false},
		{name: "errored does not recover in place", from: StatusErrored, to: StatusPending, want: false},
		{name: "terminal same status allowed", from: StatusErrored, to: StatusErrored, want: true},
		{name: "unknown target rejected", from: StatusPending, to: IngestStatus("bogus"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.want {
				t.Fatalf("CanTransition(%q -> %q) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestTranscodable(t *testing.T) {
	if !(MediaAsset{Kind: KindVideo}).Transcodable() || !(MediaAsset{Kind: KindAudio}).Transcodable() {
		t.Fatal("video and audio go through the transcoder")
	}
	if (MediaAsset{Kind: KindImage}).Transcodable() || (MediaAsset{Kind: KindDocument}).Transcodable() {
		t.Fatal("images and documents are served straight from storage")
	}
}
