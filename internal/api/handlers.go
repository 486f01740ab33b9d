package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"chapelcast/internal/ingest"
	"chapelcast/internal/observability/metrics"
	"chapelcast/internal/storage"
	"chapelcast/internal/transcode"
)

// ObjectGateway is the slice of the storage gateway the handlers consume
// directly: health probing and public URL derivation for assets that never
// enter the transcoding pipeline.
type ObjectGateway interface {
	PublicURL(objectName string) string
	Healthy(ctx context.Context) error
}

// Handler bundles the dependencies shared by every HTTP endpoint.
type Handler struct {
	repo      storage.Repository
	service   *ingest.Service
	objects   ObjectGateway
	transcode transcode.Config
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// NewHandler wires the endpoint dependencies together. A nil recorder falls
// back to the process-wide default; a nil logger falls back to slog.Default.
func NewHandler(repo storage.Repository, service *ingest.Service, objects ObjectGateway, transcodeCfg transcode.Config, recorder *metrics.Recorder, logger *slog.Logger) *Handler {
	if recorder == nil {
		recorder = metrics.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:      repo,
		service:   service,
		objects:   objects,
		transcode: transcodeCfg,
		metrics:   recorder,
		logger:    logger,
	}
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Components    []componentStatus `json:"components"`
	OverallStatus string            `json:"overallStatus"`
	CheckedAt     string            `json:"checkedAt"`
}

const healthProbeTimeout = 5 * time.Second

// Health reports the state of each dependency. A disabled transcoder is not a
// degradation: upload slots keep working without it. Any degraded component
// turns the endpoint 503 so load balancers stop routing traffic.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	components := []componentStatus{
		h.probeDatastore(ctx),
		h.probeObjectStorage(ctx),
		h.probeTranscoder(),
	}

	overall := "ok"
	status := http.StatusOK
	for _, component := range components {
		if component.Status == "degraded" {
			overall = "degraded"
			status = http.StatusServiceUnavailable
		}
		h.metrics.SetComponentHealth(component.Component, component.Status)
	}

	writeJSON(w, status, healthResponse{
		Components:    components,
		OverallStatus: overall,
		CheckedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) probeDatastore(ctx context.Context) componentStatus {
	component := componentStatus{Component: "datastore", Status: "ok"}
	if err := h.repo.Ping(ctx); err != nil {
		component.Status = "degraded"
		component.Error = err.Error()
	}
	return component
}

func (h *Handler) probeObjectStorage(ctx context.Context) componentStatus {
	component := componentStatus{Component: "objectStorage", Status: "ok"}
	if err := h.objects.Healthy(ctx); err != nil {
		component.Status = "degraded"
		component.Error = err.Error()
	}
	return component
}

func (h *Handler) probeTranscoder() componentStatus {
	component := componentStatus{Component: "transcoder", Status: "ok"}
	if !h.service.SubmissionEnabled() {
		component.Status = "disabled"
		component.Error = "transcoding credentials are not configured"
	}
	return component
}
