package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"chapelcast/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	return store
}

func testAsset(id, objectName string) models.MediaAsset {
	return models.MediaAsset{
		ID:               id,
		ObjectName:       objectName,
		Kind:             models.KindVideo,
		OriginalFilename: "sermon.mp4",
		ContentType:      "video/mp4",
		Status:           models.StatusPending,
		Attempt:          1,
	}
}

func statusPtr(s models.IngestStatus) *models.IngestStatus { return &s }
func strPtr(s string) *string                              { return &s }

func TestCreateAndGetAsset(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	created, err := store.CreateAsset(ctx, testAsset("asset-1", "uploads/abc-sermon.mp4"))
	if err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set on create")
	}

	got, err := store.GetAsset(ctx, "asset-1")
	if err != nil {
		t.Fatalf("GetAsset returned error: %v", err)
	}
	if got.ObjectName != "uploads/abc-sermon.mp4" || got.Status != models.StatusPending {
		t.Fatalf("unexpected asset %+v", got)
	}

	byName, err := store.GetAssetByObjectName(ctx, "uploads/abc-sermon.mp4")
	if err != nil || byName.ID != "asset-1" {
		t.Fatalf("GetAssetByObjectName: asset %+v err %v", byName, err)
	}
}

func TestCreateAssetRejectsDuplicateObjectName(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if _, err := store.CreateAsset(ctx, testAsset("asset-1", "uploads/key")); err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}
	_, err := store.CreateAsset(ctx, testAsset("asset-2", "uploads/key"))
	if !errors.Is(err, ErrDuplicateObjectName) {
		t.Fatalf("expected ErrDuplicateObjectName, got %v", err)
	}
}

func TestGetAssetNotFound(t *testing.T) {
	store := newTestStorage(t)
	if _, err := store.GetAsset(context.Background(), "missing"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestUpdateAssetForwardOnly(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	if _, err := store.CreateAsset(ctx, testAsset("asset-1", "uploads/key")); err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}

	steps := []models.IngestStatus{models.StatusSubmitting, models.StatusProcessing, models.StatusReady}
	for _, status := range steps {
		if _, err := store.UpdateAsset(ctx, "asset-1", AssetUpdate{Status: statusPtr(status)}); err != nil {
			t.Fatalf("advance to %s: %v", status, err)
		}
	}

	asset, err := store.GetAsset(ctx, "asset-1")
	if err != nil {
		t.Fatalf("GetAsset returned error: %v", err)
	}
	if asset.ReadyAt == nil {
		t.Fatal("expected ReadyAt to be stamped on ready transition")
	}

	_, err = store.UpdateAsset(ctx, "asset-1", AssetUpdate{Status: statusPtr(models.StatusProcessing)})
	if !errors.Is(err, ErrStatusRegression) {
		t.Fatalf("expected ErrStatusRegression, got %v", err)
	}
}

func TestUpdateAssetSameStatusIsAllowed(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	if _, err := store.CreateAsset(ctx, testAsset("asset-1", "uploads/key")); err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}
	if _, err := store.UpdateAsset(ctx, "asset-1", AssetUpdate{Status: statusPtr(models.StatusProcessing)}); err != nil {
		t.Fatalf("advance to processing: %v", err)
	}
	// Repeated polling writes the same status; that must not be a regression.
	if _, err := store.UpdateAsset(ctx, "asset-1", AssetUpdate{
		Status:         statusPtr(models.StatusProcessing),
		ProviderStatus: strPtr("preparing"),
	}); err != nil {
		t.Fatalf("same-status update rejected: %v", err)
	}
}

func TestUpdateAssetTerminalLocked(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	if _, err := store.CreateAsset(ctx, testAsset("asset-1", "uploads/key")); err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}
	if _, err := store.UpdateAsset(ctx, "asset-1", AssetUpdate{
		Status: statusPtr(models.StatusErrored),
		Error:  strPtr("input file is not a valid video"),
	}); err != nil {
		t.Fatalf("move to errored: %v", err)
	}
	_, err := store.UpdateAsset(ctx, "asset-1", AssetUpdate{Status: statusPtr(models.StatusReady)})
	if !errors.Is(err, ErrStatusRegression) {
		t.Fatalf("expected terminal status to be locked, got %v", err)
	}
}

func TestUpdateAssetMergesFields(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	if _, err := store.CreateAsset(ctx, testAsset("asset-1", "uploads/key")); err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}

	duration := 1830.2
	updated, err := store.UpdateAsset(ctx, "asset-1", AssetUpdate{
		Status:          statusPtr(models.StatusProcessing),
		ProviderAssetID: strPtr("prov-1"),
		PlaybackID:      strPtr("pb-1"),
		DurationSeconds: &duration,
	})
	if err != nil {
		t.Fatalf("UpdateAsset returned error: %v", err)
	}
	if updated.ProviderAssetID != "prov-1" || updated.PlaybackID != "pb-1" || updated.DurationSeconds != 1830.2 {
		t.Fatalf("fields not merged: %+v", updated)
	}
	if updated.OriginalFilename != "sermon.mp4" {
		t.Fatal("untouched fields must survive an update")
	}

	byProvider, err := store.GetAssetByProviderID(ctx, "prov-1")
	if err != nil || byProvider.ID != "asset-1" {
		t.Fatalf("GetAssetByProviderID: asset %+v err %v", byProvider, err)
	}
}

func TestListAssetsFiltersAndOrders(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	older := testAsset("asset-1", "uploads/a")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	if _, err := store.CreateAsset(ctx, older); err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}
	newer := testAsset("asset-2", "uploads/b")
	if _, err := store.CreateAsset(ctx, newer); err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}
	image := testAsset("asset-3", "uploads/c")
	image.Kind = models.KindImage
	image.Status = models.StatusReady
	if _, err := store.CreateAsset(ctx, image); err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}

	all, err := store.ListAssets(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("ListAssets returned error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 assets, got %d", len(all))
	}
	if all[len(all)-1].ID != "asset-1" {
		t.Fatalf("expected oldest asset last, got %s", all[len(all)-1].ID)
	}

	pending, err := store.ListAssets(ctx, ListFilter{Status: models.StatusPending})
	if err != nil {
		t.Fatalf("ListAssets returned error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending assets, got %d", len(pending))
	}

	images, err := store.ListAssets(ctx, ListFilter{Kind: models.KindImage})
	if err != nil {
		t.Fatalf("ListAssets returned error: %v", err)
	}
	if len(images) != 1 || images[0].ID != "asset-3" {
		t.Fatalf("unexpected image filter result %+v", images)
	}

	limited, err := store.ListAssets(ctx, ListFilter{Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected 1 limited asset, got %d err %v", len(limited), err)
	}
}

func TestDeleteAsset(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	if _, err := store.CreateAsset(ctx, testAsset("asset-1", "uploads/key")); err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}
	if err := store.DeleteAsset(ctx, "asset-1"); err != nil {
		t.Fatalf("DeleteAsset returned error: %v", err)
	}
	if err := store.DeleteAsset(ctx, "asset-1"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	if _, err := store.CreateAsset(ctx, testAsset("asset-1", "uploads/key")); err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}
	if _, err := store.UpdateAsset(ctx, "asset-1", AssetUpdate{Status: statusPtr(models.StatusProcessing)}); err != nil {
		t.Fatalf("UpdateAsset returned error: %v", err)
	}

	reopened, err := NewStorage(path)
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	asset, err := reopened.GetAsset(ctx, "asset-1")
	if err != nil {
		t.Fatalf("GetAsset after reopen: %v", err)
	}
	if asset.Status != models.StatusProcessing {
		t.Fatalf("expected persisted status processing, got %s", asset.Status)
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	if _, err := store.CreateAsset(ctx, testAsset("asset-1", "uploads/key")); err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}

	store.persistOverride = func(dataset) error { return errors.New("disk full") }
	if _, err := store.UpdateAsset(ctx, "asset-1", AssetUpdate{Status: statusPtr(models.StatusProcessing)}); err == nil {
		t.Fatal("expected persist failure to surface")
	}
	store.persistOverride = nil

	asset, err := store.GetAsset(ctx, "asset-1")
	if err != nil {
		t.Fatalf("GetAsset returned error: %v", err)
	}
	if asset.Status != models.StatusPending {
		t.Fatalf("expected in-memory rollback to pending, got %s", asset.Status)
	}
}
