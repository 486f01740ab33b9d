package transcode

import "testing"

func TestStreamManifestURL(t *testing.T) {
	cfg := Config{}
	got := cfg.StreamManifestURL("pb-456")
	want := "https://stream.mux.com/pb-456.m3u8"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestStreamManifestURLCustomHost(t *testing.T) {
	cfg := Config{StreamBaseURL: "https://stream.example.com/"}
	got := cfg.StreamManifestURL("pb-456")
	if got != "https://stream.example.com/pb-456.m3u8" {
		t.Fatalf("unexpected URL %q", got)
	}
}

func TestThumbnailURL(t *testing.T) {
	cfg := Config{}
	tests := []struct {
		name string
		opts ThumbnailOptions
		want string
	}{
		{
			name: "defaults",
			opts: ThumbnailOptions{},
			want: "https://image.mux.com/pb-456/thumbnail.jpg",
		},
		{
			name: "sized with offset",
			opts: ThumbnailOptions{Width: 640, TimeOffset: 12.5},
			want: "https://image.mux.com/pb-456/thumbnail.jpg?time=12.5&width=640",
		},
		{
			name: "fit mode",
			opts: ThumbnailOptions{Width: 320, Height: 180, FitMode: "smartcrop"},
			want: "https://image.mux.com/pb-456/thumbnail.jpg?fit_mode=smartcrop&height=180&width=320",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := cfg.ThumbnailURL("pb-456", tc.opts); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPreviewClipURL(t *testing.T) {
	cfg := Config{}
	got := cfg.PreviewClipURL("pb-456", PreviewClipOptions{Width: 480, Start: 3, End: 8, FPS: 15})
	want := "https://image.mux.com/pb-456/animated.gif?end=8&fps=15&start=3&width=480"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
