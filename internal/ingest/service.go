package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"chapelcast/internal/models"
	"chapelcast/internal/objectstore"
	"chapelcast/internal/storage"
	"chapelcast/internal/transcode"
)

var (
	// ErrSubmissionDisabled is returned by Process when no transcoding
	// credentials are configured. Upload slots keep working.
	ErrSubmissionDisabled = errors.New("media processing is disabled: transcoding credentials are not configured")
	// ErrSlotExpired is returned when Process finds no object behind the
	// asset's object name, meaning the client never finished the upload or
	// the slot lapsed.
	ErrSlotExpired = errors.New("uploaded object not found: the upload slot expired or the upload never completed")
	// ErrNotRetryable is returned when Retry targets an asset that has not
	// failed.
	ErrNotRetryable = errors.New("only errored assets can be retried")
)

// ObjectStore is the slice of the gateway the orchestrator needs.
type ObjectStore interface {
	PresignUpload(ctx context.Context, objectName, contentType string, expiry time.Duration, audience objectstore.Audience) (string, error)
	PresignDownload(ctx context.Context, objectName string, expiry time.Duration, audience objectstore.Audience) (string, error)
	PublicURL(objectName string) string
	Stat(ctx context.Context, objectName string) (objectstore.ObjectInfo, error)
	Delete(ctx context.Context, objectName string) error
}

// Config tunes the orchestrator.
type Config struct {
	// MaxUploadSizeBytes caps the declared size when issuing a slot. Zero
	// applies the 2 GiB default.
	MaxUploadSizeBytes int64
	// SlotExpiry is the lifetime of presigned upload URLs.
	SlotExpiry time.Duration
	// SourceExpiry is the lifetime of the presigned download URL handed to
	// the provider. It must outlive the provider's fetch of the source.
	SourceExpiry time.Duration
	// PlaybackPolicy applies to every submission.
	PlaybackPolicy transcode.PlaybackPolicy
	// ProgressiveDownload requests an MP4 rendition alongside the stream.
	ProgressiveDownload bool
}

const defaultMaxUploadSize = 2 << 30

func (cfg Config) withDefaults() Config {
	if cfg.MaxUploadSizeBytes <= 0 {
		cfg.MaxUploadSizeBytes = defaultMaxUploadSize
	}
	if cfg.SlotExpiry <= 0 {
		cfg.SlotExpiry = time.Hour
	}
	if cfg.SourceExpiry <= 0 {
		cfg.SourceExpiry = 6 * time.Hour
	}
	if cfg.PlaybackPolicy == "" {
		cfg.PlaybackPolicy = transcode.PlaybackPublic
	}
	return cfg
}

// Service is the ingestion orchestrator. A nil transcoder puts the service in
// slots-only mode: uploads land in the bucket but Process fails with
// ErrSubmissionDisabled.
type Service struct {
	repo       storage.Repository
	store      ObjectStore
	transcoder transcode.Client
	cfg        Config
	logger     *slog.Logger

	refreshGroup singleflight.Group
}

func NewService(repo storage.Repository, store ObjectStore, transcoder transcode.Client, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		store:      store,
		transcoder: transcoder,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// SubmissionEnabled reports whether Process can reach a provider.
func (s *Service) SubmissionEnabled() bool {
	return s.transcoder != nil
}

// CreateUploadSlot issues a presigned PUT URL and a pending asset record. The
// object name is freshly generated per call, so repeated requests for the same
// filename never collide. sizeBytes is the client's declared size and may be
// zero when unknown.
func (s *Service) CreateUploadSlot(ctx context.Context, filename, contentType string, sizeBytes int64) (models.UploadSlot, models.MediaAsset, error) {
	if strings.TrimSpace(filename) == "" {
		return models.UploadSlot{}, models.MediaAsset{}, errors.New("filename is required")
	}
	if sizeBytes > s.cfg.MaxUploadSizeBytes {
		return models.UploadSlot{}, models.MediaAsset{}, fmt.Errorf("declared size %d exceeds the %d byte limit", sizeBytes, s.cfg.MaxUploadSizeBytes)
	}

	objectName := objectstore.NewObjectName(filename)
	uploadURL, err := s.store.PresignUpload(ctx, objectName, contentType, s.cfg.SlotExpiry, objectstore.AudiencePublic)
	if err != nil {
		return models.UploadSlot{}, models.MediaAsset{}, err
	}

	asset := models.MediaAsset{
		ID:               uuid.NewString(),
		ObjectName:       objectName,
		Kind:             models.ParseMediaKind(contentType),
		OriginalFilename: filename,
		ContentType:      contentType,
		SizeBytes:        sizeBytes,
		Status:           models.StatusPending,
		PlaybackPolicy:   string(s.cfg.PlaybackPolicy),
		Attempt:          1,
	}
	created, err := s.repo.CreateAsset(ctx, asset)
	if err != nil {
		return models.UploadSlot{}, models.MediaAsset{}, err
	}

	slot := models.UploadSlot{
		AssetID:    created.ID,
		ObjectName: objectName,
		UploadURL:  uploadURL,
		ExpiresAt:  time.Now().UTC().Add(s.cfg.SlotExpiry),
	}
	s.logger.Info("upload slot issued", "asset_id", created.ID, "object_name", objectName, "kind", string(created.Kind))
	return slot, created, nil
}

// Process hands a stored object to the provider. Calling it again for an
// asset that already holds a provider asset is a no-op returning the current
// record: a fresh submission would create a duplicate billable asset, and
// Retry exists for the deliberate case.
func (s *Service) Process(ctx context.Context, objectName string) (models.MediaAsset, error) {
	asset, err := s.repo.GetAssetByObjectName(ctx, objectName)
	if err != nil {
		return models.MediaAsset{}, err
	}
	if asset.ProviderAssetID != "" || asset.Status != models.StatusPending {
		return asset, nil
	}

	if _, err := s.store.Stat(ctx, objectName); err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return models.MediaAsset{}, fmt.Errorf("%w (object %s)", ErrSlotExpired, objectName)
		}
		return models.MediaAsset{}, err
	}

	if !asset.Transcodable() {
		// Images and documents skip the provider entirely.
		ready := models.StatusReady
		updated, err := s.repo.UpdateAsset(ctx, asset.ID, storage.AssetUpdate{Status: &ready})
		if err != nil {
			return models.MediaAsset{}, err
		}
		s.logger.Info("asset ready without transcoding", "asset_id", asset.ID, "kind", string(asset.Kind))
		return updated, nil
	}

	if s.transcoder == nil {
		return models.MediaAsset{}, ErrSubmissionDisabled
	}

	submitting := models.StatusSubmitting
	if _, err := s.repo.UpdateAsset(ctx, asset.ID, storage.AssetUpdate{Status: &submitting}); err != nil {
		return models.MediaAsset{}, err
	}

	sourceURL, err := s.store.PresignDownload(ctx, objectName, s.cfg.SourceExpiry, objectstore.AudienceInternal)
	if err != nil {
		return s.failAsset(ctx, asset.ID, fmt.Errorf("presign source for provider: %w", err))
	}

	submitted, err := s.transcoder.SubmitFromURL(ctx, sourceURL, transcode.SubmitPolicy{
		Playback:            s.cfg.PlaybackPolicy,
		ProgressiveDownload: s.cfg.ProgressiveDownload,
	})
	if err != nil {
		return s.failAsset(ctx, asset.ID, err)
	}

	processing := models.StatusProcessing
	updated, err := s.repo.UpdateAsset(ctx, asset.ID, storage.AssetUpdate{
		Status:          &processing,
		ProviderAssetID: &submitted.ProviderAssetID,
		PlaybackID:      &submitted.PlaybackID,
		ProviderStatus:  &submitted.Status,
	})
	if err != nil {
		return models.MediaAsset{}, err
	}
	s.logger.Info("asset submitted for transcoding", "asset_id", asset.ID, "provider_asset_id", submitted.ProviderAssetID)
	return updated, nil
}

// CreateDirectUpload provisions a provider-native upload slot and a pending
// record tracking it. Bytes bypass object storage in this mode.
func (s *Service) CreateDirectUpload(ctx context.Context, filename string) (models.MediaAsset, transcode.DirectUpload, error) {
	if s.transcoder == nil {
		return models.MediaAsset{}, transcode.DirectUpload{}, ErrSubmissionDisabled
	}
	upload, err := s.transcoder.CreateDirectUpload(ctx, transcode.SubmitPolicy{
		Playback:            s.cfg.PlaybackPolicy,
		ProgressiveDownload: s.cfg.ProgressiveDownload,
	})
	if err != nil {
		return models.MediaAsset{}, transcode.DirectUpload{}, err
	}

	asset := models.MediaAsset{
		ID:               uuid.NewString(),
		ObjectName:       "direct-uploads/" + upload.ID,
		Kind:             models.KindVideo,
		OriginalFilename: filename,
		Status:           models.StatusPending,
		DirectUploadID:   upload.ID,
		PlaybackPolicy:   string(s.cfg.PlaybackPolicy),
		Attempt:          1,
	}
	created, err := s.repo.CreateAsset(ctx, asset)
	if err != nil {
		return models.MediaAsset{}, transcode.DirectUpload{}, err
	}
	s.logger.Info("direct upload issued", "asset_id", created.ID, "upload_id", upload.ID)
	return created, upload, nil
}

// Get returns the stored record without touching the provider.
func (s *Service) Get(ctx context.Context, id string) (models.MediaAsset, error) {
	return s.repo.GetAsset(ctx, id)
}

// List returns stored records matching the filter.
func (s *Service) List(ctx context.Context, filter storage.ListFilter) ([]models.MediaAsset, error) {
	return s.repo.ListAssets(ctx, filter)
}

// Refresh polls the provider for the asset's current state and writes it
// back. Concurrent refreshes of the same asset collapse into one provider
// call. Terminal assets and assets with nothing to poll return unchanged.
func (s *Service) Refresh(ctx context.Context, id string) (models.MediaAsset, error) {
	result, err, _ := s.refreshGroup.Do(id, func() (any, error) {
		return s.refresh(ctx, id)
	})
	if err != nil {
		return models.MediaAsset{}, err
	}
	return result.(models.MediaAsset), nil
}

func (s *Service) refresh(ctx context.Context, id string) (models.MediaAsset, error) {
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return models.MediaAsset{}, err
	}
	if asset.Status.Terminal() || s.transcoder == nil {
		return asset, nil
	}

	// A direct upload has no provider asset until the bytes arrive; resolve
	// the upload first.
	if asset.ProviderAssetID == "" {
		if asset.DirectUploadID == "" {
			return asset, nil
		}
		upload, err := s.transcoder.GetDirectUpload(ctx, asset.DirectUploadID)
		if err != nil {
			return models.MediaAsset{}, err
		}
		if upload.AssetID == "" {
			return asset, nil
		}
		processing := models.StatusProcessing
		asset, err = s.repo.UpdateAsset(ctx, asset.ID, storage.AssetUpdate{
			Status:          &processing,
			ProviderAssetID: &upload.AssetID,
		})
		if err != nil {
			return models.MediaAsset{}, err
		}
	}

	remote, err := s.transcoder.GetAsset(ctx, asset.ProviderAssetID)
	if err != nil {
		return models.MediaAsset{}, err
	}

	update := storage.AssetUpdate{ProviderStatus: &remote.Status}
	switch {
	case remote.Ready():
		ready := models.StatusReady
		update.Status = &ready
		update.PlaybackID = &remote.PlaybackID
		update.DurationSeconds = &remote.DurationSeconds
		update.AspectRatio = &remote.AspectRatio
		update.MaxResolution = &remote.MaxResolution
	case remote.Errored():
		errored := models.StatusErrored
		detail := remote.ErrorDetail()
		if detail == "" {
			detail = "transcoding failed at the provider"
		}
		update.Status = &errored
		update.Error = &detail
	default:
		processing := models.StatusProcessing
		update.Status = &processing
		if remote.PlaybackID != "" {
			update.PlaybackID = &remote.PlaybackID
		}
	}

	updated, err := s.repo.UpdateAsset(ctx, asset.ID, update)
	if err != nil {
		return models.MediaAsset{}, err
	}
	return updated, nil
}

// Retry replaces a failed asset with a fresh attempt: the provider asset is
// deleted best-effort, the record is recreated under the same ID with a new
// object name and attempt counter, and a new upload slot is issued. The old
// provider IDs are never overwritten in place. If recreating fails the
// original record is restored; the abandoned stored object is deleted
// best-effort once the replacement exists.
func (s *Service) Retry(ctx context.Context, id string) (models.UploadSlot, models.MediaAsset, error) {
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return models.UploadSlot{}, models.MediaAsset{}, err
	}
	if asset.Status != models.StatusErrored {
		return models.UploadSlot{}, models.MediaAsset{}, ErrNotRetryable
	}

	if asset.ProviderAssetID != "" && s.transcoder != nil {
		if err := s.transcoder.DeleteAsset(ctx, asset.ProviderAssetID); err != nil {
			s.logger.Warn("delete provider asset before retry", "asset_id", id, "provider_asset_id", asset.ProviderAssetID, "error", err)
		}
	}

	objectName := objectstore.NewObjectName(asset.OriginalFilename)
	uploadURL, err := s.store.PresignUpload(ctx, objectName, asset.ContentType, s.cfg.SlotExpiry, objectstore.AudiencePublic)
	if err != nil {
		return models.UploadSlot{}, models.MediaAsset{}, err
	}

	if err := s.repo.DeleteAsset(ctx, id); err != nil {
		return models.UploadSlot{}, models.MediaAsset{}, err
	}
	replacement := models.MediaAsset{
		ID:               asset.ID,
		ObjectName:       objectName,
		Kind:             asset.Kind,
		OriginalFilename: asset.OriginalFilename,
		ContentType:      asset.ContentType,
		Status:           models.StatusPending,
		PlaybackPolicy:   asset.PlaybackPolicy,
		Attempt:          asset.Attempt + 1,
		CreatedAt:        asset.CreatedAt,
	}
	created, err := s.repo.CreateAsset(ctx, replacement)
	if err != nil {
		// Put the original record back so the asset is not lost between the
		// delete and the failed create.
		if _, restoreErr := s.repo.CreateAsset(ctx, asset); restoreErr != nil {
			s.logger.Error("restore asset after failed retry", "asset_id", id, "error", restoreErr)
		}
		return models.UploadSlot{}, models.MediaAsset{}, err
	}

	if asset.ObjectName != "" && asset.DirectUploadID == "" {
		if err := s.store.Delete(ctx, asset.ObjectName); err != nil {
			s.logger.Warn("delete stored object before retry", "asset_id", id, "object_name", asset.ObjectName, "error", err)
		}
	}

	slot := models.UploadSlot{
		AssetID:    created.ID,
		ObjectName: objectName,
		UploadURL:  uploadURL,
		ExpiresAt:  time.Now().UTC().Add(s.cfg.SlotExpiry),
	}
	s.logger.Info("asset retry issued", "asset_id", id, "attempt", created.Attempt, "object_name", objectName)
	return slot, created, nil
}

// Delete removes the provider asset, the stored object, and the record, in
// that order. Provider and storage deletes are best-effort so a half-deleted
// provider asset cannot orphan the record.
func (s *Service) Delete(ctx context.Context, id string) error {
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return err
	}
	if asset.ProviderAssetID != "" && s.transcoder != nil {
		if err := s.transcoder.DeleteAsset(ctx, asset.ProviderAssetID); err != nil {
			s.logger.Warn("delete provider asset", "asset_id", id, "provider_asset_id", asset.ProviderAssetID, "error", err)
		}
	}
	if asset.DirectUploadID == "" {
		if err := s.store.Delete(ctx, asset.ObjectName); err != nil {
			s.logger.Warn("delete stored object", "asset_id", id, "object_name", asset.ObjectName, "error", err)
		}
	}
	if err := s.repo.DeleteAsset(ctx, id); err != nil {
		return err
	}
	s.logger.Info("asset deleted", "asset_id", id)
	return nil
}

// ApplyProviderStatus folds a webhook notification into the record. Replays
// and out-of-order deliveries are harmless: equal-or-forward writes succeed,
// anything else is dropped, and the pull path remains authoritative.
func (s *Service) ApplyProviderStatus(ctx context.Context, providerAssetID, providerStatus string) (models.MediaAsset, error) {
	asset, err := s.repo.GetAssetByProviderID(ctx, providerAssetID)
	if err != nil {
		return models.MediaAsset{}, err
	}
	if asset.Status.Terminal() {
		return asset, nil
	}
	switch providerStatus {
	case "ready", "errored":
		// Fetch the full provider record so duration and playback metadata
		// land together with the terminal status.
		return s.Refresh(ctx, asset.ID)
	default:
		return asset, nil
	}
}

func (s *Service) failAsset(ctx context.Context, id string, cause error) (models.MediaAsset, error) {
	errored := models.StatusErrored
	detail := cause.Error()
	if _, updateErr := s.repo.UpdateAsset(ctx, id, storage.AssetUpdate{
		Status: &errored,
		Error:  &detail,
	}); updateErr != nil {
		s.logger.Error("mark asset errored", "asset_id", id, "error", updateErr, "failure", cause)
	}
	s.logger.Error("asset submission failed", "asset_id", id, "error", cause)
	return models.MediaAsset{}, cause
}
