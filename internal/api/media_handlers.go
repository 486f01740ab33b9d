package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"chapelcast/internal/models"
	"chapelcast/internal/observability/logging"
	"chapelcast/internal/storage"
	"chapelcast/internal/transcode"
)

type uploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type uploadURLResponse struct {
	UploadURL  string `json:"uploadUrl"`
	ObjectName string `json:"objectName"`
	AssetID    string `json:"assetId"`
	ExpiresAt  string `json:"expiresAt"`
}

type processRequest struct {
	ObjectName string `json:"objectName"`
}

type directUploadRequest struct {
	Filename string `json:"filename"`
}

type directUploadResponse struct {
	UploadURL string `json:"uploadUrl"`
	UploadID  string `json:"uploadId"`
	AssetID   string `json:"assetId"`
}

type mediaResponse struct {
	ID               string  `json:"id"`
	Kind             string  `json:"kind"`
	Status           string  `json:"status"`
	OriginalFilename string  `json:"originalFilename,omitempty"`
	ContentType      string  `json:"contentType,omitempty"`
	SizeBytes        int64   `json:"sizeBytes,omitempty"`
	ProviderAssetID  string  `json:"providerAssetId,omitempty"`
	ProviderStatus   string  `json:"providerStatus,omitempty"`
	PlaybackID       string  `json:"playbackId,omitempty"`
	DurationSeconds  float64 `json:"durationSeconds,omitempty"`
	AspectRatio      string  `json:"aspectRatio,omitempty"`
	MaxResolution    string  `json:"maxResolution,omitempty"`
	PlaybackPolicy   string  `json:"playbackPolicy,omitempty"`
	Error            string  `json:"error,omitempty"`
	Attempt          int     `json:"attempt"`
	HLSURL           string  `json:"hlsUrl,omitempty"`
	ThumbnailURL     string  `json:"thumbnailUrl,omitempty"`
	PreviewURL       string  `json:"previewUrl,omitempty"`
	PublicURL        string  `json:"publicUrl,omitempty"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        string  `json:"updatedAt"`
	ReadyAt          string  `json:"readyAt,omitempty"`
}

type retryResponse struct {
	Asset      mediaResponse `json:"asset"`
	UploadURL  string        `json:"uploadUrl"`
	ObjectName string        `json:"objectName"`
	ExpiresAt  string        `json:"expiresAt"`
}

// mediaFromAsset shapes a stored record for the API surface. Playback URLs
// are derived on the way out rather than stored, so base-URL changes take
// effect without a migration.
func (h *Handler) mediaFromAsset(asset models.MediaAsset) mediaResponse {
	response := mediaResponse{
		ID:               asset.ID,
		Kind:             string(asset.Kind),
		Status:           string(asset.Status),
		OriginalFilename: asset.OriginalFilename,
		ContentType:      asset.ContentType,
		SizeBytes:        asset.SizeBytes,
		ProviderAssetID:  asset.ProviderAssetID,
		ProviderStatus:   asset.ProviderStatus,
		PlaybackID:       asset.PlaybackID,
		DurationSeconds:  asset.DurationSeconds,
		AspectRatio:      asset.AspectRatio,
		MaxResolution:    asset.MaxResolution,
		PlaybackPolicy:   asset.PlaybackPolicy,
		Error:            asset.Error,
		Attempt:          asset.Attempt,
		CreatedAt:        asset.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:        asset.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if asset.ReadyAt != nil {
		response.ReadyAt = asset.ReadyAt.UTC().Format(time.RFC3339Nano)
	}
	if asset.PlaybackID != "" {
		response.HLSURL = h.transcode.StreamManifestURL(asset.PlaybackID)
		response.ThumbnailURL = h.transcode.ThumbnailURL(asset.PlaybackID, transcode.ThumbnailOptions{Width: 640})
		response.PreviewURL = h.transcode.PreviewClipURL(asset.PlaybackID, transcode.PreviewClipOptions{Width: 320})
		if asset.PlaybackPolicy == string(transcode.PlaybackSigned) && h.transcode.SigningEnabled() {
			response.HLSURL = h.signURL(response.HLSURL, asset.PlaybackID, transcode.AudienceVideo)
			response.ThumbnailURL = h.signURL(response.ThumbnailURL, asset.PlaybackID, transcode.AudienceThumbnail)
			response.PreviewURL = h.signURL(response.PreviewURL, asset.PlaybackID, transcode.AudienceGIF)
		}
	}
	if asset.Status == models.StatusReady && !asset.Transcodable() && asset.ObjectName != "" {
		response.PublicURL = h.objects.PublicURL(asset.ObjectName)
	}
	return response
}

// signURL attaches a playback token. A signing failure degrades to the bare
// URL rather than failing the whole response.
func (h *Handler) signURL(rawURL, playbackID string, audience transcode.SignedAudience) string {
	signed, err := h.transcode.SignURL(rawURL, playbackID, audience, 0)
	if err != nil {
		h.logger.Warn("sign playback url", "playback_id", playbackID, "error", err)
		return rawURL
	}
	return signed
}

// MediaUploadURL issues a presigned upload slot and its pending asset record.
func (h *Handler) MediaUploadURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req uploadURLRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Filename) == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if req.SizeBytes < 0 {
		writeError(w, http.StatusBadRequest, "sizeBytes must not be negative")
		return
	}

	slot, _, err := h.service.CreateUploadSlot(r.Context(), req.Filename, req.ContentType, req.SizeBytes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.metrics.ObservePipelineEvent("slot_issued")
	writeJSON(w, http.StatusCreated, uploadURLResponse{
		UploadURL:  slot.UploadURL,
		ObjectName: slot.ObjectName,
		AssetID:    slot.AssetID,
		ExpiresAt:  slot.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}

// MediaProcess hands an uploaded object to the transcoding provider. Repeat
// calls for an already-submitted object return the current record unchanged.
func (h *Handler) MediaProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req processRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ObjectName) == "" {
		writeError(w, http.StatusBadRequest, "objectName is required")
		return
	}

	asset, err := h.service.Process(r.Context(), req.ObjectName)
	if err != nil {
		h.metrics.ObservePipelineEvent("submission_failure")
		writeServiceError(w, err)
		return
	}
	h.metrics.ObservePipelineEvent("submission")
	logger := logging.WithContext(logging.ContextWithAssetID(r.Context(), asset.ID), h.logger)
	logger.Info("media processing requested", "status", string(asset.Status))
	writeJSON(w, http.StatusAccepted, h.mediaFromAsset(asset))
}

// MediaDirectUpload provisions a provider-native upload that bypasses object
// storage.
func (h *Handler) MediaDirectUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req directUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	asset, upload, err := h.service.CreateDirectUpload(r.Context(), req.Filename)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.metrics.ObservePipelineEvent("direct_upload_issued")
	writeJSON(w, http.StatusCreated, directUploadResponse{
		UploadURL: upload.URL,
		UploadID:  upload.ID,
		AssetID:   asset.ID,
	})
}

// Media lists stored assets, optionally filtered by status and kind.
func (h *Handler) Media(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter := storage.ListFilter{}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		parsed := models.IngestStatus(status)
		if !parsed.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		filter.Status = parsed
	}
	if kind := strings.TrimSpace(r.URL.Query().Get("kind")); kind != "" {
		filter.Kind = models.MediaKind(kind)
	}
	if limit := strings.TrimSpace(r.URL.Query().Get("limit")); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = parsed
	}

	assets, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	responses := make([]mediaResponse, 0, len(assets))
	for _, asset := range assets {
		responses = append(responses, h.mediaFromAsset(asset))
	}
	writeJSON(w, http.StatusOK, responses)
}

// MediaByID serves the per-asset routes: read (with an on-demand provider
// refresh while the asset is in flight), retry, and delete.
func (h *Handler) MediaByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/media/"), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "media asset not found")
		return
	}
	segments := strings.Split(rest, "/")
	switch {
	case len(segments) == 1:
		h.mediaAsset(w, r, segments[0])
	case len(segments) == 2 && segments[1] == "retry":
		h.mediaRetry(w, r, segments[0])
	default:
		writeError(w, http.StatusNotFound, "media asset not found")
	}
}

func (h *Handler) mediaAsset(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		asset, err := h.service.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !asset.Status.Terminal() {
			refreshed, err := h.service.Refresh(r.Context(), id)
			if err != nil {
				// Serve the stored record when the provider is unreachable;
				// the state simply stays where the last poll left it.
				h.logger.Warn("on-demand refresh failed", "asset_id", id, "error", err)
			} else {
				asset = refreshed
			}
			h.metrics.ObservePipelineEvent("refresh")
		}
		writeJSON(w, http.StatusOK, h.mediaFromAsset(asset))
	case http.MethodDelete:
		if err := h.service.Delete(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) mediaRetry(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	slot, asset, err := h.service.Retry(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.metrics.ObservePipelineEvent("retry")
	writeJSON(w, http.StatusOK, retryResponse{
		Asset:      h.mediaFromAsset(asset),
		UploadURL:  slot.UploadURL,
		ObjectName: slot.ObjectName,
		ExpiresAt:  slot.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}
