package transcode

import (
	"context"
	"strings"
)

// PlaybackPolicy controls who can fetch the streaming output.
type PlaybackPolicy string

const (
	PlaybackPublic PlaybackPolicy = "public"
	PlaybackSigned PlaybackPolicy = "signed"
)

// SubmitPolicy configures a submission: playback visibility and whether the
// provider should also produce a progressive-download (MP4) variant.
type SubmitPolicy struct {
	Playback            PlaybackPolicy
	ProgressiveDownload bool
}

func (p SubmitPolicy) playback() PlaybackPolicy {
	if p.Playback == PlaybackSigned {
		return PlaybackSigned
	}
	return PlaybackPublic
}

// Asset is the provider's view of a submitted source.
//
// PlaybackID may be empty even though submission succeeded: the provider
// allocates it asynchronously, so callers must treat an empty value as "not
// yet derivable", never as an error.
type Asset struct {
	ProviderAssetID string
	PlaybackID      string
	PlaybackPolicy  PlaybackPolicy
	Status          string
	DurationSeconds float64
	AspectRatio     string
	MaxResolution   string

	// ErrorType and ErrorMessages carry the provider's own explanation when
	// Status is errored, e.g. "unsupported codec".
	ErrorType     string
	ErrorMessages []string
}

// Ready reports whether the provider considers processing complete.
func (a Asset) Ready() bool {
	return a.Status == "ready"
}

// Errored reports whether the provider reached a terminal failure.
func (a Asset) Errored() bool {
	return a.Status == "errored"
}

// ErrorDetail joins the provider's failure messages into one line. Empty when
// the provider reported none.
func (a Asset) ErrorDetail() string {
	return strings.Join(a.ErrorMessages, "; ")
}

// DirectUpload is a provider-native upload slot that bypasses the
// object-storage hop entirely. Its AssetID stays empty until the provider
// has received the bytes and created the asset.
type DirectUpload struct {
	ID      string
	URL     string
	Status  string
	AssetID string
}

// Client is the surface the orchestrator depends on. All calls block on a
// single provider round trip and honour context cancellation.
type Client interface {
	SubmitFromURL(ctx context.Context, sourceURL string, policy SubmitPolicy) (Asset, error)
	GetAsset(ctx context.Context, providerAssetID string) (Asset, error)
	DeleteAsset(ctx context.Context, providerAssetID string) error
	CreateDirectUpload(ctx context.Context, policy SubmitPolicy) (DirectUpload, error)
	GetDirectUpload(ctx context.Context, uploadID string) (DirectUpload, error)
}
