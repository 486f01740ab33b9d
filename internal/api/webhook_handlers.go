package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"chapelcast/internal/storage"
	"chapelcast/internal/transcode"
)

const maxWebhookBodyBytes = 256 << 10

// TranscodeWebhook folds provider push notifications into asset records.
// Events are advisory: the polled provider status stays authoritative, so an
// unknown or replayed event is acknowledged rather than rejected and the
// provider never retries storms at us.
func (h *Handler) TranscodeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read webhook body")
		return
	}

	signature := strings.TrimSpace(r.Header.Get("Mux-Signature"))
	if err := h.transcode.VerifyWebhookSignature(signature, body, time.Now()); err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "webhook signature verification failed")
		return
	}

	event, err := transcode.ParseWebhookEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed webhook event")
		return
	}
	h.metrics.ObservePipelineEvent("webhook")

	if event.ProviderAssetID == "" {
		// Upload-created events arrive before any asset exists. Nothing to do.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	asset, err := h.service.ApplyProviderStatus(r.Context(), event.ProviderAssetID, event.Status)
	if err != nil {
		if errors.Is(err, storage.ErrAssetNotFound) {
			// Events for assets created outside this service are expected on
			// shared provider accounts.
			h.logger.Info("webhook for unknown provider asset", "provider_asset_id", event.ProviderAssetID, "type", event.Type)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		writeServiceError(w, err)
		return
	}

	h.logger.Info("webhook applied", "asset_id", asset.ID, "type", event.Type, "provider_status", event.Status)
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied", "assetId": asset.ID})
}
