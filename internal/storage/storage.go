package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"chapelcast/internal/models"
)

type dataset struct {
	Assets map[string]models.MediaAsset `json:"assets"`
}

func newDataset() dataset {
	return dataset{Assets: make(map[string]models.MediaAsset)}
}

// Storage is a JSON-file-backed repository. It keeps the full dataset in
// memory behind a mutex and persists atomically through a temp file rename,
// which makes it suitable for single-instance deployments and tests.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

// NewStorage opens (or creates) a JSON-file repository at path.
func NewStorage(path string) (*Storage, error) {
	store := &Storage{filePath: path}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}
	if s.data.Assets == nil {
		s.data.Assets = make(map[string]models.MediaAsset)
	}
	return nil
}

func (s *Storage) persist() error {
	if s.persistOverride != nil {
		return s.persistOverride(s.data)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	return nil
}

func (s *Storage) CreateAsset(ctx context.Context, asset models.MediaAsset) (models.MediaAsset, error) {
	if strings.TrimSpace(asset.ID) == "" {
		return models.MediaAsset{}, errors.New("asset ID is required")
	}
	if strings.TrimSpace(asset.ObjectName) == "" {
		return models.MediaAsset{}, errors.New("object name is required")
	}
	if !asset.Status.Valid() {
		return models.MediaAsset{}, fmt.Errorf("invalid asset status %q", asset.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.Assets[asset.ID]; exists {
		return models.MediaAsset{}, fmt.Errorf("asset %s already exists", asset.ID)
	}
	for _, existing := range s.data.Assets {
		if existing.ObjectName == asset.ObjectName {
			return models.MediaAsset{}, ErrDuplicateObjectName
		}
	}

	now := time.Now().UTC()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = now

	s.data.Assets[asset.ID] = asset
	if err := s.persist(); err != nil {
		delete(s.data.Assets, asset.ID)
		return models.MediaAsset{}, err
	}
	return asset, nil
}

func (s *Storage) GetAsset(ctx context.Context, id string) (models.MediaAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.data.Assets[id]
	if !ok {
		return models.MediaAsset{}, ErrAssetNotFound
	}
	return asset, nil
}

func (s *Storage) GetAssetByObjectName(ctx context.Context, objectName string) (models.MediaAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, asset := range s.data.Assets {
		if asset.ObjectName == objectName {
			return asset, nil
		}
	}
	return models.MediaAsset{}, ErrAssetNotFound
}

func (s *Storage) GetAssetByProviderID(ctx context.Context, providerAssetID string) (models.MediaAsset, error) {
	if strings.TrimSpace(providerAssetID) == "" {
		return models.MediaAsset{}, ErrAssetNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, asset := range s.data.Assets {
		if asset.ProviderAssetID == providerAssetID {
			return asset, nil
		}
	}
	return models.MediaAsset{}, ErrAssetNotFound
}

func (s *Storage) ListAssets(ctx context.Context, filter ListFilter) ([]models.MediaAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]models.MediaAsset, 0, len(s.data.Assets))
	for _, asset := range s.data.Assets {
		if filter.Status != "" && asset.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && asset.Kind != filter.Kind {
			continue
		}
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].CreatedAt.Equal(assets[j].CreatedAt) {
			return assets[i].ID < assets[j].ID
		}
		return assets[i].CreatedAt.After(assets[j].CreatedAt)
	})
	if filter.Limit > 0 && len(assets) > filter.Limit {
		assets = assets[:filter.Limit]
	}
	return assets, nil
}

func (s *Storage) UpdateAsset(ctx context.Context, id string, update AssetUpdate) (models.MediaAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.data.Assets[id]
	if !ok {
		return models.MediaAsset{}, ErrAssetNotFound
	}
	updated, err := applyAssetUpdate(asset, update)
	if err != nil {
		return models.MediaAsset{}, err
	}
	if update.ObjectName != nil && *update.ObjectName != asset.ObjectName {
		for otherID, other := range s.data.Assets {
			if otherID != id && other.ObjectName == *update.ObjectName {
				return models.MediaAsset{}, ErrDuplicateObjectName
			}
		}
	}

	previous := s.data.Assets[id]
	s.data.Assets[id] = updated
	if err := s.persist(); err != nil {
		s.data.Assets[id] = previous
		return models.MediaAsset{}, err
	}
	return updated, nil
}

func (s *Storage) DeleteAsset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.data.Assets[id]
	if !ok {
		return ErrAssetNotFound
	}
	delete(s.data.Assets, id)
	if err := s.persist(); err != nil {
		s.data.Assets[id] = asset
		return err
	}
	return nil
}

// applyAssetUpdate merges an update into an asset, enforcing the forward-only
// lifecycle. Both repository implementations share it so the state machine
// cannot drift between backends.
func applyAssetUpdate(asset models.MediaAsset, update AssetUpdate) (models.MediaAsset, error) {
	if update.Status != nil {
		next := *update.Status
		if !next.Valid() {
			return models.MediaAsset{}, fmt.Errorf("invalid asset status %q", next)
		}
		if !asset.Status.CanTransition(next) {
			return models.MediaAsset{}, fmt.Errorf("%w: %s -> %s", ErrStatusRegression, asset.Status, next)
		}
		asset.Status = next
		if next == models.StatusReady && asset.ReadyAt == nil {
			now := time.Now().UTC()
			asset.ReadyAt = &now
		}
	}
	if update.ProviderAssetID != nil {
		asset.ProviderAssetID = *update.ProviderAssetID
	}
	if update.PlaybackID != nil {
		asset.PlaybackID = *update.PlaybackID
	}
	if update.ProviderStatus != nil {
		asset.ProviderStatus = *update.ProviderStatus
	}
	if update.DirectUploadID != nil {
		asset.DirectUploadID = *update.DirectUploadID
	}
	if update.DurationSeconds != nil {
		asset.DurationSeconds = *update.DurationSeconds
	}
	if update.AspectRatio != nil {
		asset.AspectRatio = *update.AspectRatio
	}
	if update.MaxResolution != nil {
		asset.MaxResolution = *update.MaxResolution
	}
	if update.PlaybackPolicy != nil {
		asset.PlaybackPolicy = *update.PlaybackPolicy
	}
	if update.Error != nil {
		asset.Error = *update.Error
	}
	if update.Attempt != nil {
		asset.Attempt = *update.Attempt
	}
	if update.ObjectName != nil {
		trimmed := strings.TrimSpace(*update.ObjectName)
		if trimmed == "" {
			return models.MediaAsset{}, errors.New("object name is required")
		}
		asset.ObjectName = trimmed
	}
	asset.UpdatedAt = time.Now().UTC()
	return asset, nil
}
