package transcodestub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Options describes how the fake provider should behave.
type Options struct {
	// TokenID and TokenSecret are the expected basic-auth credentials. If
	// both are empty, the check is skipped.
	TokenID     string
	TokenSecret string

	// ReadyAfterPolls controls how many GETs an asset returns "preparing"
	// before flipping to "ready". Zero means ready on the first poll.
	ReadyAfterPolls int

	// FailSubmits causes the first N asset creations to return HTTP 503.
	// Subsequent attempts succeed.
	FailSubmits int

	// ErrorAssets makes every created asset end in "errored" with the given
	// messages instead of becoming ready.
	ErrorAssets []string
}

// Operation records one provider interaction.
type Operation struct {
	Kind      string
	AssetID   string
	UploadID  string
	SourceURL string
	Status    int
	Timestamp time.Time
}

type assetState struct {
	id         string
	playbackID string
	policy     string
	polls      int
	deleted    bool
}

type uploadState struct {
	id      string
	assetID string
}

// Provider hosts a single httptest.Server serving all provider endpoints.
type Provider struct {
	server *httptest.Server
	opts   Options

	mu         sync.Mutex
	operations []Operation
	assets     map[string]*assetState
	uploads    map[string]*uploadState
	submitErr  int
	nextID     int
}

// Start spins up a new provider stub using the provided options.
func Start(opts Options) *Provider {
	p := &Provider{
		opts:    opts,
		assets:  make(map[string]*assetState),
		uploads: make(map[string]*uploadState),
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

// Close shuts down the underlying HTTP server.
func (p *Provider) Close() {
	if p.server != nil {
		p.server.Close()
	}
}

// BaseURL returns the HTTP base URL for all provider endpoints.
func (p *Provider) BaseURL() string {
	return p.server.URL
}

// Operations returns a copy of all recorded operations in order.
func (p *Provider) Operations() []Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Operation, len(p.operations))
	copy(out, p.operations)
	return out
}

// CompleteUpload simulates the provider receiving bytes for a direct upload:
// an asset is created and attached to the upload.
func (p *Provider) CompleteUpload(uploadID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	upload, ok := p.uploads[uploadID]
	if !ok {
		return ""
	}
	p.nextID++
	assetID := fmt.Sprintf("asset-%d", p.nextID)
	p.assets[assetID] = &assetState{id: assetID, playbackID: "pb-" + assetID, policy: "public"}
	upload.assetID = assetID
	return assetID
}

func (p *Provider) handle(w http.ResponseWriter, r *http.Request) {
	if !p.expectAuth(w, r) {
		return
	}
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/video/v1/assets":
		p.handleCreateAsset(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/video/v1/assets/"):
		p.handleGetAsset(w, r)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/video/v1/assets/"):
		p.handleDeleteAsset(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/video/v1/uploads":
		p.handleCreateUpload(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/video/v1/uploads/"):
		p.handleGetUpload(w, r)
	default:
		writeProviderError(w, http.StatusNotFound, "not_found", "unexpected request")
	}
}

type wirePlayback struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

type wireAsset struct {
	ID                  string         `json:"id"`
	Status              string         `json:"status"`
	Duration            float64        `json:"duration"`
	AspectRatio         string         `json:"aspect_ratio"`
	MaxStoredResolution string         `json:"max_stored_resolution"`
	PlaybackIDs         []wirePlayback `json:"playback_ids"`
	Errors              *wireErrors    `json:"errors,omitempty"`
}

type wireErrors struct {
	Type     string   `json:"type"`
	Messages []string `json:"messages"`
}

type wireUpload struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Status  string `json:"status"`
	AssetID string `json:"asset_id,omitempty"`
}

func (p *Provider) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []struct {
			URL string `json:"url"`
		} `json:"input"`
		PlaybackPolicy []string `json:"playback_policy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Input) == 0 {
		writeProviderError(w, http.StatusBadRequest, "invalid_parameters", "input is required")
		return
	}

	p.mu.Lock()
	p.submitErr++
	attempt := p.submitErr
	if attempt <= p.opts.FailSubmits {
		p.mu.Unlock()
		p.record(Operation{Kind: "asset-create", SourceURL: req.Input[0].URL, Status: http.StatusServiceUnavailable})
		writeProviderError(w, http.StatusServiceUnavailable, "service_unavailable", "encoder capacity exhausted")
		return
	}
	p.nextID++
	assetID := fmt.Sprintf("asset-%d", p.nextID)
	policy := "public"
	if len(req.PlaybackPolicy) > 0 {
		policy = req.PlaybackPolicy[0]
	}
	p.assets[assetID] = &assetState{id: assetID, playbackID: "pb-" + assetID, policy: policy}
	p.mu.Unlock()

	p.record(Operation{Kind: "asset-create", AssetID: assetID, SourceURL: req.Input[0].URL, Status: http.StatusCreated})
	writeData(w, http.StatusCreated, wireAsset{
		ID:          assetID,
		Status:      "preparing",
		PlaybackIDs: []wirePlayback{{ID: "pb-" + assetID, Policy: policy}},
	})
}

func (p *Provider) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	assetID := strings.TrimPrefix(r.URL.Path, "/video/v1/assets/")
	p.mu.Lock()
	asset, ok := p.assets[assetID]
	if !ok || asset.deleted {
		p.mu.Unlock()
		writeProviderError(w, http.StatusNotFound, "not_found", "asset not found")
		return
	}
	asset.polls++
	payload := p.assetPayloadLocked(asset)
	p.mu.Unlock()

	p.record(Operation{Kind: "asset-get", AssetID: assetID, Status: http.StatusOK})
	writeData(w, http.StatusOK, payload)
}

func (p *Provider) assetPayloadLocked(asset *assetState) wireAsset {
	payload := wireAsset{
		ID:          asset.id,
		PlaybackIDs: []wirePlayback{{ID: asset.playbackID, Policy: asset.policy}},
	}
	switch {
	case len(p.opts.ErrorAssets) > 0:
		payload.Status = "errored"
		payload.Errors = &wireErrors{Type: "invalid_input", Messages: p.opts.ErrorAssets}
	case asset.polls > p.opts.ReadyAfterPolls:
		payload.Status = "ready"
		payload.Duration = 1882.5
		payload.AspectRatio = "16:9"
		payload.MaxStoredResolution = "1080p"
	default:
		payload.Status = "preparing"
	}
	return payload
}

func (p *Provider) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	assetID := strings.TrimPrefix(r.URL.Path, "/video/v1/assets/")
	p.mu.Lock()
	asset, ok := p.assets[assetID]
	if ok {
		asset.deleted = true
	}
	p.mu.Unlock()
	if !ok {
		writeProviderError(w, http.StatusNotFound, "not_found", "asset not found")
		return
	}
	p.record(Operation{Kind: "asset-delete", AssetID: assetID, Status: http.StatusNoContent})
	w.WriteHeader(http.StatusNoContent)
}

func (p *Provider) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewAssetSettings struct {
			PlaybackPolicy []string `json:"playback_policy"`
		} `json:"new_asset_settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProviderError(w, http.StatusBadRequest, "invalid_parameters", "bad request")
		return
	}

	p.mu.Lock()
	p.nextID++
	uploadID := fmt.Sprintf("upload-%d", p.nextID)
	p.uploads[uploadID] = &uploadState{id: uploadID}
	p.mu.Unlock()

	p.record(Operation{Kind: "upload-create", UploadID: uploadID, Status: http.StatusCreated})
	writeData(w, http.StatusCreated, wireUpload{
		ID:     uploadID,
		URL:    p.server.URL + "/fake-upload/" + uploadID,
		Status: "waiting",
	})
}

func (p *Provider) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := strings.TrimPrefix(r.URL.Path, "/video/v1/uploads/")
	p.mu.Lock()
	upload, ok := p.uploads[uploadID]
	var payload wireUpload
	if ok {
		payload = wireUpload{ID: upload.id, URL: p.server.URL + "/fake-upload/" + upload.id, Status: "waiting", AssetID: upload.assetID}
		if upload.assetID != "" {
			payload.Status = "asset_created"
		}
	}
	p.mu.Unlock()
	if !ok {
		writeProviderError(w, http.StatusNotFound, "not_found", "upload not found")
		return
	}
	p.record(Operation{Kind: "upload-get", UploadID: uploadID, Status: http.StatusOK})
	writeData(w, http.StatusOK, payload)
}

func (p *Provider) record(op Operation) {
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.operations = append(p.operations, op)
}

func (p *Provider) expectAuth(w http.ResponseWriter, r *http.Request) bool {
	if p.opts.TokenID == "" && p.opts.TokenSecret == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != p.opts.TokenID || pass != p.opts.TokenSecret {
		writeProviderError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return false
	}
	return true
}

func writeData(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": payload})
}

func writeProviderError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"type": errType, "messages": []string{message}},
	})
}
