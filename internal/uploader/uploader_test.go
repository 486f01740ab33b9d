package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeAPI mimics the media API and the storage PUT endpoint in one server.
type fakeAPI struct {
	server *httptest.Server

	mu            sync.Mutex
	slotRequests  int
	putBodies     []string
	processObject string
	polls         int

	readyAfterPolls int
	finalStatus     string
	finalError      string
	slotStatus      int
	putStatus       int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{finalStatus: "ready"}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/media/upload-url":
		f.handleSlot(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/storage/"):
		f.handlePut(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/media/process":
		f.handleProcess(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/media/"):
		f.handleGet(w, r)
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func (f *fakeAPI) handleSlot(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.slotRequests++
	status := f.slotStatus
	f.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":"too many upload slots requested"}`)
		return
	}
	var req struct {
		Filename    string `json:"filename"`
		ContentType string `json:"contentType"`
		SizeBytes   int64  `json:"sizeBytes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		http.Error(w, `{"error":"filename is required"}`, http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"uploadUrl":  f.server.URL + "/storage/uploads/sermon.mp4",
		"objectName": "uploads/sermon.mp4",
		"assetId":    "asset-1",
		"expiresAt":  time.Now().Add(15 * time.Minute).Format(time.RFC3339),
	})
}

func (f *fakeAPI) handlePut(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.putBodies = append(f.putBodies, string(body))
	status := f.putStatus
	f.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeAPI) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ObjectName string `json:"objectName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ObjectName == "" {
		http.Error(w, `{"error":"objectName is required"}`, http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.processObject = req.ObjectName
	f.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"id":              "asset-1",
		"status":          "processing",
		"providerAssetId": "prov-1",
	})
}

func (f *fakeAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.polls++
	done := f.polls > f.readyAfterPolls
	status := f.finalStatus
	detail := f.finalError
	f.mu.Unlock()

	payload := map[string]string{
		"id":              "asset-1",
		"status":          "processing",
		"providerAssetId": "prov-1",
	}
	if done {
		payload["status"] = status
		if status == "ready" {
			payload["hlsUrl"] = "https://stream.example.com/pb-1.m3u8"
			payload["thumbnailUrl"] = "https://image.example.com/pb-1/thumbnail.jpg"
		}
		if detail != "" {
			payload["error"] = detail
		}
	}
	json.NewEncoder(w).Encode(payload)
}

func (f *fakeAPI) snapshot() (puts []string, processObject string, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	puts = append(puts, f.putBodies...)
	return puts, f.processObject, f.polls
}

func newTestClient(t *testing.T, f *fakeAPI, cfg Config, onProgress func(Progress)) *Client {
	t.Helper()
	cfg.BaseURL = f.server.URL
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	cfg.OnProgress = onProgress
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return client
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("expected an error for a missing base URL")
	}
}

func TestUploadCompletesOnSubmissionConfirmation(t *testing.T) {
	api := newFakeAPI(t)

	var progress []Progress
	client := newTestClient(t, api, Config{}, func(p Progress) { progress = append(progress, p) })

	content := "fake mp4 bytes"
	result, err := client.Upload(context.Background(), "sermon.mp4", "video/mp4", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if result.AssetID != "asset-1" || result.Status != "processing" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ProviderAssetID != "prov-1" {
		t.Fatalf("expected the provider asset ID from the confirmation, got %q", result.ProviderAssetID)
	}
	if result.ObjectName != "uploads/sermon.mp4" {
		t.Fatalf("unexpected object name %q", result.ObjectName)
	}

	puts, processObject, polls := api.snapshot()
	if len(puts) != 1 || puts[0] != content {
		t.Fatalf("expected one PUT carrying the content, got %v", puts)
	}
	if processObject != "uploads/sermon.mp4" {
		t.Fatalf("process was called with %q", processObject)
	}
	if polls != 0 {
		t.Fatalf("a confirmed upload must not poll, got %d polls", polls)
	}

	wantPercents := []int{10, 20, 50, 100}
	if len(progress) != len(wantPercents) {
		t.Fatalf("expected %d progress reports, got %d: %+v", len(wantPercents), len(progress), progress)
	}
	for i, want := range wantPercents {
		if progress[i].Percent != want {
			t.Fatalf("milestone %d: expected %d%%, got %d%%", i, want, progress[i].Percent)
		}
	}
	wantStates := []State{StateUploading, StateUploading, StateProcessing, StateComplete}
	for i, want := range wantStates {
		if progress[i].State != want {
			t.Fatalf("milestone %d: expected state %q, got %q", i, want, progress[i].State)
		}
	}
}

func TestUploadWaitForReadyPollsUntilReady(t *testing.T) {
	api := newFakeAPI(t)
	api.readyAfterPolls = 3

	var last Progress
	client := newTestClient(t, api, Config{WaitForReady: true}, func(p Progress) { last = p })

	result, err := client.Upload(context.Background(), "sermon.mp4", "video/mp4", strings.NewReader("x"), 1)
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if result.Status != "ready" {
		t.Fatalf("expected a ready result, got %q", result.Status)
	}
	if result.HLSURL != "https://stream.example.com/pb-1.m3u8" {
		t.Fatalf("unexpected HLS URL %q", result.HLSURL)
	}
	if last.State != StateComplete || last.Percent != 100 {
		t.Fatalf("expected a final complete report, got %+v", last)
	}
	if _, _, polls := api.snapshot(); polls < 4 {
		t.Fatalf("expected at least 4 polls, got %d", polls)
	}
}

func TestUploadWaitForReadySurfacesProcessingFailure(t *testing.T) {
	api := newFakeAPI(t)
	api.finalStatus = "errored"
	api.finalError = "transcode submission failed: unsupported codec"

	var last Progress
	client := newTestClient(t, api, Config{WaitForReady: true}, func(p Progress) { last = p })

	_, err := client.Upload(context.Background(), "sermon.mp4", "video/mp4", strings.NewReader("x"), 1)
	if !errors.Is(err, ErrAssetErrored) {
		t.Fatalf("expected ErrAssetErrored, got %v", err)
	}
	if !strings.Contains(err.Error(), "unsupported codec") {
		t.Fatalf("expected provider detail in the error, got %v", err)
	}
	if last.State != StateError || last.Message == "" {
		t.Fatalf("expected a final error progress report, got %+v", last)
	}
}

func TestUploadWithoutWaitIgnoresLaterProcessingOutcome(t *testing.T) {
	api := newFakeAPI(t)
	api.finalStatus = "errored"
	api.finalError = "unsupported codec"

	client := newTestClient(t, api, Config{}, nil)
	result, err := client.Upload(context.Background(), "sermon.mp4", "video/mp4", strings.NewReader("x"), 1)
	if err != nil {
		t.Fatalf("a confirmed submission is a successful upload, got %v", err)
	}
	if result.Status != "processing" || result.ProviderAssetID != "prov-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestUploadSlotRejectionCarriesServerMessage(t *testing.T) {
	api := newFakeAPI(t)
	api.slotStatus = http.StatusTooManyRequests

	var states []State
	client := newTestClient(t, api, Config{}, func(p Progress) { states = append(states, p.State) })

	_, err := client.Upload(context.Background(), "sermon.mp4", "video/mp4", strings.NewReader("x"), 1)
	if err == nil || !strings.Contains(err.Error(), "too many upload slots") {
		t.Fatalf("expected the server's message, got %v", err)
	}
	if len(states) != 1 || states[0] != StateError {
		t.Fatalf("expected a single error report, got %v", states)
	}
	if puts, _, _ := api.snapshot(); len(puts) != 0 {
		t.Fatal("no bytes should be uploaded after a rejected slot")
	}
}

func TestUploadStorageRejectionStopsBeforeProcessing(t *testing.T) {
	api := newFakeAPI(t)
	api.putStatus = http.StatusForbidden

	client := newTestClient(t, api, Config{}, nil)
	_, err := client.Upload(context.Background(), "sermon.mp4", "video/mp4", strings.NewReader("x"), 1)
	if err == nil || !strings.Contains(err.Error(), "status 403") {
		t.Fatalf("expected a storage rejection, got %v", err)
	}
	if _, processObject, _ := api.snapshot(); processObject != "" {
		t.Fatal("processing must not be requested after a failed PUT")
	}
}

func TestUploadHonorsPollTimeout(t *testing.T) {
	api := newFakeAPI(t)
	api.readyAfterPolls = 1 << 30

	client := newTestClient(t, api, Config{
		WaitForReady: true,
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
	}, nil)

	_, err := client.Upload(context.Background(), "sermon.mp4", "video/mp4", strings.NewReader("x"), 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline error, got %v", err)
	}
}

func TestUploadStopsWhenContextCancelled(t *testing.T) {
	api := newFakeAPI(t)
	api.readyAfterPolls = 1 << 30

	client := newTestClient(t, api, Config{WaitForReady: true}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := client.Upload(ctx, "sermon.mp4", "video/mp4", strings.NewReader("x"), 1)
	if err == nil {
		t.Fatal("expected cancellation to abort the upload")
	}
}
