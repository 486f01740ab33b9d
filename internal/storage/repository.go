package storage

import (
	"context"
	"errors"

	"chapelcast/internal/models"
)

var (
	// ErrAssetNotFound is returned when no asset matches the requested ID or
	// object name.
	ErrAssetNotFound = errors.New("media asset not found")
	// ErrDuplicateObjectName is returned when a create collides with an
	// existing object name.
	ErrDuplicateObjectName = errors.New("object name already in use")
	// ErrStatusRegression is returned when an update would move an asset
	// backwards through the ingestion lifecycle.
	ErrStatusRegression = errors.New("asset status may not move backwards")
)

// AssetUpdate carries the mutable fields of a media asset. Nil pointers leave
// the stored value untouched.
type AssetUpdate struct {
	Status          *models.IngestStatus
	ProviderAssetID *string
	PlaybackID      *string
	ProviderStatus  *string
	DirectUploadID  *string
	DurationSeconds *float64
	AspectRatio     *string
	MaxResolution   *string
	PlaybackPolicy  *string
	Error           *string
	Attempt         *int
	ObjectName      *string
}

// ListFilter narrows ListAssets results. Zero values match everything.
type ListFilter struct {
	Status models.IngestStatus
	Kind   models.MediaKind
	Limit  int
}

// Repository exposes the datastore operations required by the ingestion
// orchestrator and the API handlers.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateAsset(ctx context.Context, asset models.MediaAsset) (models.MediaAsset, error)
	GetAsset(ctx context.Context, id string) (models.MediaAsset, error)
	GetAssetByObjectName(ctx context.Context, objectName string) (models.MediaAsset, error)
	GetAssetByProviderID(ctx context.Context, providerAssetID string) (models.MediaAsset, error)
	ListAssets(ctx context.Context, filter ListFilter) ([]models.MediaAsset, error)
	UpdateAsset(ctx context.Context, id string, update AssetUpdate) (models.MediaAsset, error)
	DeleteAsset(ctx context.Context, id string) error
}

var (
	_ Repository = (*Storage)(nil)
	_ Repository = (*postgresRepository)(nil)
)
