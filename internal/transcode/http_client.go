package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPClient talks to the provider's REST API. Requests authenticate with
// HTTP basic auth using the token pair, and responses arrive wrapped in a
// {"data": ...} envelope.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewHTTPClient builds a provider client. The configuration must carry a
// token pair; use Config.Enabled to gate construction.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	cfg = cfg.withDefaults()
	if !cfg.Enabled() {
		return nil, errors.New("transcode: token ID and secret are required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &HTTPClient{cfg: cfg, httpClient: httpClient}, nil
}

type assetPayload struct {
	ID                  string            `json:"id"`
	Status              string            `json:"status"`
	Duration            float64           `json:"duration"`
	AspectRatio         string            `json:"aspect_ratio"`
	MaxStoredResolution string            `json:"max_stored_resolution"`
	PlaybackIDs         []playbackPayload `json:"playback_ids"`
	Errors              *errorsPayload    `json:"errors,omitempty"`
}

type playbackPayload struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

type errorsPayload struct {
	Type     string   `json:"type"`
	Messages []string `json:"messages"`
}

type uploadPayload struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Status  string `json:"status"`
	AssetID string `json:"asset_id"`
}

type inputPayload struct {
	URL string `json:"url"`
}

type createAssetRequest struct {
	Input          []inputPayload `json:"input"`
	PlaybackPolicy []string       `json:"playback_policy"`
	MP4Support     string         `json:"mp4_support,omitempty"`
}

type createUploadRequest struct {
	NewAssetSettings struct {
		PlaybackPolicy []string `json:"playback_policy"`
		MP4Support     string   `json:"mp4_support,omitempty"`
	} `json:"new_asset_settings"`
	CORSOrigin string `json:"cors_origin,omitempty"`
}

// SubmitFromURL asks the provider to pull and process the source at the given
// URL. The URL must be reachable from the provider's network, which is why
// sources are handed over as presigned internal-endpoint URLs.
func (c *HTTPClient) SubmitFromURL(ctx context.Context, sourceURL string, policy SubmitPolicy) (Asset, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return Asset{}, errors.New("transcode: source URL is required")
	}
	payload := createAssetRequest{
		Input:          []inputPayload{{URL: sourceURL}},
		PlaybackPolicy: []string{string(policy.playback())},
	}
	if policy.ProgressiveDownload {
		payload.MP4Support = "standard"
	}
	var body assetPayload
	if err := c.do(ctx, http.MethodPost, "/video/v1/assets", payload, &body); err != nil {
		return Asset{}, err
	}
	return assetFromPayload(body), nil
}

// GetAsset fetches the current provider state of an asset.
func (c *HTTPClient) GetAsset(ctx context.Context, providerAssetID string) (Asset, error) {
	if strings.TrimSpace(providerAssetID) == "" {
		return Asset{}, errors.New("transcode: provider asset ID is required")
	}
	var body assetPayload
	if err := c.do(ctx, http.MethodGet, "/video/v1/assets/"+providerAssetID, nil, &body); err != nil {
		return Asset{}, err
	}
	return assetFromPayload(body), nil
}

// DeleteAsset removes the asset and its derived outputs at the provider.
func (c *HTTPClient) DeleteAsset(ctx context.Context, providerAssetID string) error {
	if strings.TrimSpace(providerAssetID) == "" {
		return errors.New("transcode: provider asset ID is required")
	}
	return c.do(ctx, http.MethodDelete, "/video/v1/assets/"+providerAssetID, nil, nil)
}

// CreateDirectUpload provisions a provider-hosted upload slot.
func (c *HTTPClient) CreateDirectUpload(ctx context.Context, policy SubmitPolicy) (DirectUpload, error) {
	var payload createUploadRequest
	payload.NewAssetSettings.PlaybackPolicy = []string{string(policy.playback())}
	if policy.ProgressiveDownload {
		payload.NewAssetSettings.MP4Support = "standard"
	}
	payload.CORSOrigin = "*"
	var body uploadPayload
	if err := c.do(ctx, http.MethodPost, "/video/v1/uploads", payload, &body); err != nil {
		return DirectUpload{}, err
	}
	return directUploadFromPayload(body), nil
}

// GetDirectUpload fetches the state of a direct upload, including the asset
// the provider created from it once the bytes arrived.
func (c *HTTPClient) GetDirectUpload(ctx context.Context, uploadID string) (DirectUpload, error) {
	if strings.TrimSpace(uploadID) == "" {
		return DirectUpload{}, errors.New("transcode: upload ID is required")
	}
	var body uploadPayload
	if err := c.do(ctx, http.MethodGet, "/video/v1/uploads/"+uploadID, nil, &body); err != nil {
		return DirectUpload{}, err
	}
	return directUploadFromPayload(body), nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode transcode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	endpoint := strings.TrimRight(c.cfg.APIBaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build transcode request: %w", err)
	}
	req.SetBasicAuth(c.cfg.TokenID, c.cfg.TokenSecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call transcode provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeProviderError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode transcode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode transcode response data: %w", err)
	}
	return nil
}

func decodeProviderError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	providerErr := &ProviderError{StatusCode: resp.StatusCode}
	var envelope struct {
		Error errorsPayload `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		providerErr.Type = envelope.Error.Type
		providerErr.Messages = envelope.Error.Messages
	}
	if len(providerErr.Messages) == 0 && len(raw) > 0 {
		trimmed := strings.TrimSpace(string(raw))
		if trimmed != "" && !strings.HasPrefix(trimmed, "{") {
			providerErr.Messages = []string{trimmed}
		}
	}
	return providerErr
}

func assetFromPayload(body assetPayload) Asset {
	asset := Asset{
		ProviderAssetID: body.ID,
		Status:          body.Status,
		DurationSeconds: body.Duration,
		AspectRatio:     body.AspectRatio,
		MaxResolution:   body.MaxStoredResolution,
	}
	if len(body.PlaybackIDs) > 0 {
		asset.PlaybackID = body.PlaybackIDs[0].ID
		asset.PlaybackPolicy = PlaybackPolicy(body.PlaybackIDs[0].Policy)
	}
	if body.Errors != nil {
		asset.ErrorType = body.Errors.Type
		asset.ErrorMessages = body.Errors.Messages
	}
	return asset
}

func directUploadFromPayload(body uploadPayload) DirectUpload {
	return DirectUpload{
		ID:      body.ID,
		URL:     body.URL,
		Status:  body.Status,
		AssetID: body.AssetID,
	}
}
