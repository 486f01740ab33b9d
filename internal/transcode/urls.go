package transcode

import (
	"fmt"
	"net/url"
	"strings"
)

// ThumbnailOptions shapes a derived still image. Zero values are omitted from
// the URL so the provider applies its own defaults.
type ThumbnailOptions struct {
	Width      int
	Height     int
	TimeOffset float64
	FitMode    string
}

// PreviewClipOptions shapes an animated preview.
type PreviewClipOptions struct {
	Width int
	Start float64
	End   float64
	FPS   int
}

// StreamManifestURL derives the adaptive streaming manifest URL for a
// playback ID. Pure string work; the manifest may 404 until the asset is
// ready.
func (cfg Config) StreamManifestURL(playbackID string) string {
	return strings.TrimRight(cfg.withDefaults().StreamBaseURL, "/") + "/" + playbackID + ".m3u8"
}

// ThumbnailURL derives a still-frame image URL for a playback ID.
func (cfg Config) ThumbnailURL(playbackID string, opts ThumbnailOptions) string {
	query := url.Values{}
	if opts.Width > 0 {
		query.Set("width", fmt.Sprint(opts.Width))
	}
	if opts.Height > 0 {
		query.Set("height", fmt.Sprint(opts.Height))
	}
	if opts.TimeOffset > 0 {
		query.Set("time", trimFloat(opts.TimeOffset))
	}
	if opts.FitMode != "" {
		query.Set("fit_mode", opts.FitMode)
	}
	return cfg.imageURL(playbackID, "thumbnail.jpg", query)
}

// PreviewClipURL derives an animated GIF preview URL for a playback ID.
func (cfg Config) PreviewClipURL(playbackID string, opts PreviewClipOptions) string {
	query := url.Values{}
	if opts.Width > 0 {
		query.Set("width", fmt.Sprint(opts.Width))
	}
	if opts.Start > 0 {
		query.Set("start", trimFloat(opts.Start))
	}
	if opts.End > 0 {
		query.Set("end", trimFloat(opts.End))
	}
	if opts.FPS > 0 {
		query.Set("fps", fmt.Sprint(opts.FPS))
	}
	return cfg.imageURL(playbackID, "animated.gif", query)
}

func (cfg Config) imageURL(playbackID, suffix string, query url.Values) string {
	base := strings.TrimRight(cfg.withDefaults().ImageBaseURL, "/") + "/" + playbackID + "/" + suffix
	if encoded := query.Encode(); encoded != "" {
		return base + "?" + encoded
	}
	return base
}

func trimFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
