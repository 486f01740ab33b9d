// Package uploader is the client-side companion to the media API: it walks a
// local file through slot issuance, the direct PUT into object storage, and
// the processing hand-off. The upload is complete once the service confirms
// the submission; transcoding continues server-side and may take arbitrarily
// long, so waiting for a playable asset is a separate opt-in.
//
// The uploader holds no durable state. An interrupted upload is restarted
// from scratch with a fresh slot; half-written objects are invisible because
// the server only looks at an object once processing is requested.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// State is the client-visible phase of an upload.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateError      State = "error"
)

// Progress milestones reported through OnProgress. The fixed percentages mark
// phase boundaries rather than byte counts: a PUT either completes or the
// whole upload restarts.
const (
	progressSlotIssued     = 10
	progressUploadStarted  = 20
	progressUploadComplete = 50
	progressConfirmed      = 100
)

// Progress is a snapshot pushed to the OnProgress callback.
type Progress struct {
	State   State
	Percent int
	AssetID string
	Message string
}

// Result describes a confirmed upload. Status is whatever the service
// reported last: "processing" right after submission, or a terminal status
// when WaitForReady was set.
type Result struct {
	AssetID         string
	ProviderAssetID string
	ObjectName      string
	Status          string
	HLSURL          string
	ThumbnailURL    string
	PublicURL       string
}

// ErrAssetErrored is returned when the server reports a terminal failure for
// the uploaded asset.
var ErrAssetErrored = errors.New("uploader: processing failed")

// Config tunes the upload client.
type Config struct {
	// BaseURL is the media API root, e.g. "https://media.example.com".
	BaseURL string
	// HTTPClient defaults to a client with a generous timeout suitable for
	// large PUTs.
	HTTPClient *http.Client
	// WaitForReady keeps Upload polling after the submission is confirmed
	// until the asset reaches a terminal status. Off by default: an asset
	// may stay processing for a long time, and the upload itself is done.
	WaitForReady bool
	// PollInterval is the delay between status polls when WaitForReady is
	// set.
	PollInterval time.Duration
	// PollTimeout caps the total time spent waiting for a terminal status.
	// Zero waits until the context expires.
	PollTimeout time.Duration
	// OnProgress receives milestone snapshots. Optional.
	OnProgress func(Progress)
}

// Client drives uploads against the media API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	waitForReady bool
	interval     time.Duration
	timeout      time.Duration
	onProgress   func(Progress)
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("uploader: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Client{
		baseURL:      base,
		httpClient:   httpClient,
		waitForReady: cfg.WaitForReady,
		interval:     interval,
		timeout:      cfg.PollTimeout,
		onProgress:   cfg.OnProgress,
	}, nil
}

type slotResponse struct {
	UploadURL  string `json:"uploadUrl"`
	ObjectName string `json:"objectName"`
	AssetID    string `json:"assetId"`
	ExpiresAt  string `json:"expiresAt"`
}

type assetResponse struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	ProviderAssetID string `json:"providerAssetId"`
	Error           string `json:"error"`
	HLSURL          string `json:"hlsUrl"`
	ThumbnailURL    string `json:"thumbnailUrl"`
	PublicURL       string `json:"publicUrl"`
}

// Upload pushes the content through the pipeline and blocks until the service
// confirms the submission (or, with WaitForReady, until the asset reaches a
// terminal status). The size must match the number of bytes the reader
// yields.
func (c *Client) Upload(ctx context.Context, filename, contentType string, content io.Reader, size int64) (Result, error) {
	slot, err := c.requestSlot(ctx, filename, contentType, size)
	if err != nil {
		return Result{}, c.fail("", fmt.Errorf("request upload slot: %w", err))
	}
	c.report(Progress{State: StateUploading, Percent: progressSlotIssued, AssetID: slot.AssetID})

	c.report(Progress{State: StateUploading, Percent: progressUploadStarted, AssetID: slot.AssetID})
	if err := c.putObject(ctx, slot.UploadURL, contentType, content, size); err != nil {
		return Result{}, c.fail(slot.AssetID, fmt.Errorf("upload object: %w", err))
	}
	c.report(Progress{State: StateProcessing, Percent: progressUploadComplete, AssetID: slot.AssetID})

	// The process response is the submission confirmation: the service has
	// verified the object and handed it to the provider.
	asset, err := c.requestProcessing(ctx, slot.ObjectName)
	if err != nil {
		return Result{}, c.fail(slot.AssetID, fmt.Errorf("request processing: %w", err))
	}

	if c.waitForReady {
		asset, err = c.awaitTerminal(ctx, asset.ID)
		if err != nil {
			return Result{}, c.fail(slot.AssetID, err)
		}
		if asset.Status == "errored" {
			detail := asset.Error
			if detail == "" {
				detail = "processing failed"
			}
			c.report(Progress{State: StateError, Percent: progressUploadComplete, AssetID: asset.ID, Message: detail})
			return Result{}, fmt.Errorf("%w: %s", ErrAssetErrored, detail)
		}
	}

	c.report(Progress{State: StateComplete, Percent: progressConfirmed, AssetID: asset.ID})
	return Result{
		AssetID:         asset.ID,
		ProviderAssetID: asset.ProviderAssetID,
		ObjectName:      slot.ObjectName,
		Status:          asset.Status,
		HLSURL:          asset.HLSURL,
		ThumbnailURL:    asset.ThumbnailURL,
		PublicURL:       asset.PublicURL,
	}, nil
}

func (c *Client) requestSlot(ctx context.Context, filename, contentType string, size int64) (slotResponse, error) {
	payload := map[string]any{
		"filename":    filename,
		"contentType": contentType,
		"sizeBytes":   size,
	}
	var slot slotResponse
	if err := c.postJSON(ctx, "/api/media/upload-url", payload, &slot); err != nil {
		return slotResponse{}, err
	}
	if slot.UploadURL == "" || slot.ObjectName == "" {
		return slotResponse{}, errors.New("server returned an incomplete upload slot")
	}
	return slot, nil
}

func (c *Client) putObject(ctx context.Context, uploadURL, contentType string, content io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, content)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = size

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("storage rejected the upload with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) requestProcessing(ctx context.Context, objectName string) (assetResponse, error) {
	var asset assetResponse
	if err := c.postJSON(ctx, "/api/media/process", map[string]any{"objectName": objectName}, &asset); err != nil {
		return assetResponse{}, err
	}
	return asset, nil
}

// awaitTerminal polls the asset until it is ready or errored. The GET path
// refreshes server-side, so each poll reflects the provider's latest state.
func (c *Client) awaitTerminal(ctx context.Context, assetID string) (assetResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		asset, err := c.getAsset(ctx, assetID)
		if err != nil {
			return assetResponse{}, fmt.Errorf("poll asset: %w", err)
		}
		if asset.Status == "ready" || asset.Status == "errored" {
			return asset, nil
		}
		select {
		case <-ctx.Done():
			return assetResponse{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) getAsset(ctx context.Context, assetID string) (assetResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/media/"+assetID, nil)
	if err != nil {
		return assetResponse{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return assetResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return assetResponse{}, apiError(resp)
	}
	var asset assetResponse
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return assetResponse{}, err
	}
	return asset, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}

func (c *Client) fail(assetID string, err error) error {
	c.report(Progress{State: StateError, AssetID: assetID, Message: err.Error()})
	return err
}

func (c *Client) report(p Progress) {
	if c.onProgress != nil {
		c.onProgress(p)
	}
}
