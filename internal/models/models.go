package models

import (
	"strings"
	"time"
)

// MediaKind classifies an uploaded file. Only video and audio enter the
// transcoding pipeline; images and documents are served straight from object
// storage.
type MediaKind string

const (
	KindVideo    MediaKind = "video"
	KindAudio    MediaKind = "audio"
	KindImage    MediaKind = "image"
	KindDocument MediaKind = "document"
)

// ParseMediaKind maps a MIME content type onto a MediaKind. Unknown types are
// treated as documents.
func ParseMediaKind(contentType string) MediaKind {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(normalized, "video/"):
		return KindVideo
	case strings.HasPrefix(normalized, "audio/"):
		return KindAudio
	case strings.HasPrefix(normalized, "image/"):
		return KindImage
	default:
		return KindDocument
	}
}

// IngestStatus is the lifecycle state of a MediaAsset as tracked by the
// orchestrator. The client-side "uploading" phase never appears here: the
// server has no visibility into an in-flight PUT, so a record stays pending
// until the caller signals that the object exists.
type IngestStatus string

const (
	StatusPending    IngestStatus = "pending"
	StatusSubmitting IngestStatus = "submitting"
	StatusProcessing IngestStatus = "processing"
	StatusReady      IngestStatus = "ready"
	StatusErrored    IngestStatus = "errored"
)

var statusRank = map[IngestStatus]int{
	StatusPending:    0,
	StatusSubmitting: 1,
	StatusProcessing: 2,
	StatusReady:      3,
	StatusErrored:    3,
}

// Valid reports whether the status is one of the known lifecycle states.
func (s IngestStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether the status admits no further forward transition.
func (s IngestStatus) Terminal() bool {
	return s == StatusReady || s == StatusErrored
}

// CanTransition reports whether moving from s to next is a forward transition.
// Writing the same status again is allowed (idempotent refresh); moving
// backwards is not. Retry resets a record explicitly rather than transitioning
// it, so errored -> pending is intentionally rejected here.
func (s IngestStatus) CanTransition(next IngestStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return next.Valid()
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	if s.Terminal() && next != s {
		return false
	}
	return to >= from
}

// MediaAsset is the unit the ingestion pipeline produces. IDs are assigned by
// the orchestrator, not the transcoding provider, so internal references stay
// stable if the provider is ever swapped.
type MediaAsset struct {
	ID               string       `json:"id"`
	ObjectName       string       `json:"objectName,omitempty"`
	Kind             MediaKind    `json:"kind"`
	OriginalFilename string       `json:"originalFilename,omitempty"`
	ContentType      string       `json:"contentType,omitempty"`
	SizeBytes        int64        `json:"sizeBytes,omitempty"`
	Status           IngestStatus `json:"status"`

	// ProviderAssetID and PlaybackID are set once submission succeeds and are
	// immutable afterwards. A failed asset gets a fresh objectName and attempt
	// rather than reusing a dead one.
	ProviderAssetID string `json:"providerAssetId,omitempty"`
	PlaybackID      string `json:"playbackId,omitempty"`

	// ProviderStatus is the provider's raw status string, surfaced verbatim to
	// viewers while the asset is processing.
	ProviderStatus string `json:"providerStatus,omitempty"`

	// DirectUploadID is set when the asset was created through the provider's
	// native direct-upload mode instead of the object-storage hop.
	DirectUploadID string `json:"directUploadId,omitempty"`

	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	AspectRatio     string  `json:"aspectRatio,omitempty"`
	MaxResolution   string  `json:"maxResolution,omitempty"`

	PlaybackPolicy string `json:"playbackPolicy,omitempty"`
	Error          string `json:"error,omitempty"`
	Attempt        int    `json:"attempt"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ReadyAt   *time.Time `json:"readyAt,omitempty"`
}

// Transcodable reports whether the asset kind goes through the transcoding
// provider at all.
func (a MediaAsset) Transcodable() bool {
	return a.Kind == KindVideo || a.Kind == KindAudio
}

// UploadSlot is the ephemeral grant handed to a client so it can PUT raw bytes
// directly into object storage. Slots are single use and are not tracked past
// their expiry; the bucket itself is the source of truth for whether the
// object now exists.
type UploadSlot struct {
	AssetID    string    `json:"assetId"`
	ObjectName string    `json:"objectName"`
	UploadURL  string    `json:"uploadUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
