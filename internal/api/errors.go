package api

import (
	"errors"
	"net/http"

	"chapelcast/internal/ingest"
	"chapelcast/internal/objectstore"
	"chapelcast/internal/storage"
	"chapelcast/internal/transcode"
)

// statusForError maps pipeline failures onto HTTP status codes. Provider
// failures surface as 502 and object-storage failures as 503 so callers can
// tell a broken upstream from a bad request.
func statusForError(err error) (int, string) {
	var providerErr *transcode.ProviderError
	var storeErr *objectstore.Error
	switch {
	case errors.Is(err, storage.ErrAssetNotFound):
		return http.StatusNotFound, "media asset not found"
	case errors.Is(err, ingest.ErrSlotExpired):
		return http.StatusConflict, err.Error()
	case errors.Is(err, ingest.ErrNotRetryable):
		return http.StatusConflict, err.Error()
	case errors.Is(err, ingest.ErrSubmissionDisabled):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, storage.ErrDuplicateObjectName):
		return http.StatusConflict, "an asset already tracks that object"
	case errors.As(err, &providerErr):
		return http.StatusBadGateway, "transcoding provider rejected the request"
	case errors.As(err, &storeErr):
		return http.StatusServiceUnavailable, "object storage is unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, message := statusForError(err)
	writeError(w, status, message)
}
