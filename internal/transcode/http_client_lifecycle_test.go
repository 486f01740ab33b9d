package transcode_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chapelcast/internal/testsupport/transcodestub"
	"chapelcast/internal/transcode"
)

func newStubClient(t *testing.T, opts transcodestub.Options) (*transcode.HTTPClient, *transcodestub.Provider) {
	t.Helper()
	if opts.TokenID == "" {
		opts.TokenID = "token-id"
		opts.TokenSecret = "token-secret"
	}
	provider := transcodestub.Start(opts)
	t.Cleanup(provider.Close)

	client, err := transcode.NewHTTPClient(transcode.Config{
		APIBaseURL:  provider.BaseURL(),
		TokenID:     opts.TokenID,
		TokenSecret: opts.TokenSecret,
	})
	if err != nil {
		t.Fatalf("NewHTTPClient error: %v", err)
	}
	return client, provider
}

func TestLifecycleSubmitPollDelete(t *testing.T) {
	client, _ := newStubClient(t, transcodestub.Options{ReadyAfterPolls: 1})
	ctx := context.Background()

	submitted, err := client.SubmitFromURL(ctx, "https://media.example.com/uploads/sermon.mp4?sig=x", transcode.SubmitPolicy{})
	if err != nil {
		t.Fatalf("SubmitFromURL error: %v", err)
	}
	if submitted.ProviderAssetID == "" || submitted.Status != "preparing" {
		t.Fatalf("unexpected submission result: %+v", submitted)
	}

	first, err := client.GetAsset(ctx, submitted.ProviderAssetID)
	if err != nil {
		t.Fatalf("GetAsset error: %v", err)
	}
	if first.Ready() {
		t.Fatal("expected asset to still be preparing on the first poll")
	}

	second, err := client.GetAsset(ctx, submitted.ProviderAssetID)
	if err != nil {
		t.Fatalf("GetAsset error: %v", err)
	}
	if !second.Ready() {
		t.Fatalf("expected ready on the second poll, got %q", second.Status)
	}
	if second.PlaybackID == "" || second.DurationSeconds <= 0 {
		t.Fatalf("expected playback metadata on ready asset: %+v", second)
	}

	if err := client.DeleteAsset(ctx, submitted.ProviderAssetID); err != nil {
		t.Fatalf("DeleteAsset error: %v", err)
	}
	if _, err := client.GetAsset(ctx, submitted.ProviderAssetID); err == nil {
		t.Fatal("expected deleted asset to be gone")
	}
}

func TestLifecycleSubmissionFailureSurfacesProviderError(t *testing.T) {
	client, _ := newStubClient(t, transcodestub.Options{FailSubmits: 1})

	_, err := client.SubmitFromURL(context.Background(), "https://media.example.com/uploads/sermon.mp4", transcode.SubmitPolicy{})
	var providerErr *transcode.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if providerErr.StatusCode != 503 || !providerErr.Temporary() {
		t.Fatalf("unexpected provider error: %+v", providerErr)
	}
}

func TestLifecycleErroredAssetCarriesMessages(t *testing.T) {
	client, _ := newStubClient(t, transcodestub.Options{ErrorAssets: []string{"unsupported codec"}})
	ctx := context.Background()

	submitted, err := client.SubmitFromURL(ctx, "https://media.example.com/uploads/sermon.mp4", transcode.SubmitPolicy{})
	if err != nil {
		t.Fatalf("SubmitFromURL error: %v", err)
	}
	polled, err := client.GetAsset(ctx, submitted.ProviderAssetID)
	if err != nil {
		t.Fatalf("GetAsset error: %v", err)
	}
	if !polled.Errored() {
		t.Fatalf("expected errored asset, got %q", polled.Status)
	}
	if polled.ErrorType != "invalid_input" {
		t.Fatalf("expected invalid_input error type, got %q", polled.ErrorType)
	}
	if !strings.Contains(polled.ErrorDetail(), "unsupported codec") {
		t.Fatalf("provider failure message must be decoded, got %q", polled.ErrorDetail())
	}
}

func TestLifecycleDirectUploadResolvesToAsset(t *testing.T) {
	client, provider := newStubClient(t, transcodestub.Options{})
	ctx := context.Background()

	upload, err := client.CreateDirectUpload(ctx, transcode.SubmitPolicy{})
	if err != nil {
		t.Fatalf("CreateDirectUpload error: %v", err)
	}
	if upload.ID == "" || upload.URL == "" || upload.AssetID != "" {
		t.Fatalf("unexpected upload: %+v", upload)
	}

	pending, err := client.GetDirectUpload(ctx, upload.ID)
	if err != nil {
		t.Fatalf("GetDirectUpload error: %v", err)
	}
	if pending.AssetID != "" {
		t.Fatal("expected no asset before bytes arrive")
	}

	assetID := provider.CompleteUpload(upload.ID)
	resolved, err := client.GetDirectUpload(ctx, upload.ID)
	if err != nil {
		t.Fatalf("GetDirectUpload error: %v", err)
	}
	if resolved.AssetID != assetID {
		t.Fatalf("expected resolved asset %q, got %q", assetID, resolved.AssetID)
	}
}

func TestLifecycleRejectsBadCredentials(t *testing.T) {
	provider := transcodestub.Start(transcodestub.Options{TokenID: "token-id", TokenSecret: "token-secret"})
	t.Cleanup(provider.Close)

	client, err := transcode.NewHTTPClient(transcode.Config{
		APIBaseURL:  provider.BaseURL(),
		TokenID:     "token-id",
		TokenSecret: "wrong",
	})
	if err != nil {
		t.Fatalf("NewHTTPClient error: %v", err)
	}

	_, err = client.SubmitFromURL(context.Background(), "https://media.example.com/uploads/sermon.mp4", transcode.SubmitPolicy{})
	var providerErr *transcode.ProviderError
	if !errors.As(err, &providerErr) || providerErr.StatusCode != 401 {
		t.Fatalf("expected 401 provider error, got %v", err)
	}
}
