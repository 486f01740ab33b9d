package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chapelcast/internal/models"
)

// PostgresConfig tunes the pgx connection pool.
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	ConnectTimeout      time.Duration
	ApplicationName     string
}

// PostgresOption mutates the pool configuration.
type PostgresOption func(*PostgresConfig)

func WithPoolLimits(maxConns, minConns int32) PostgresOption {
	return func(cfg *PostgresConfig) {
		if maxConns > 0 {
			cfg.MaxConnections = maxConns
		}
		if minConns >= 0 {
			cfg.MinConnections = minConns
		}
	}
}

func WithPoolDurations(maxLifetime, maxIdle, healthInterval time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if maxLifetime > 0 {
			cfg.MaxConnLifetime = maxLifetime
		}
		if maxIdle > 0 {
			cfg.MaxConnIdleTime = maxIdle
		}
		if healthInterval > 0 {
			cfg.HealthCheckInterval = healthInterval
		}
	}
}

func WithConnectTimeout(timeout time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.ConnectTimeout = timeout
		}
	}
}

func WithApplicationName(name string) PostgresOption {
	return func(cfg *PostgresConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.ApplicationName = trimmed
		}
	}
}

const mediaAssetsSchema = `
CREATE TABLE IF NOT EXISTS media_assets (
    id                TEXT PRIMARY KEY,
    object_name       TEXT NOT NULL UNIQUE,
    kind              TEXT NOT NULL,
    original_filename TEXT NOT NULL DEFAULT '',
    content_type      TEXT NOT NULL DEFAULT '',
    size_bytes        BIGINT NOT NULL DEFAULT 0,
    status            TEXT NOT NULL,
    provider_asset_id TEXT NOT NULL DEFAULT '',
    playback_id       TEXT NOT NULL DEFAULT '',
    provider_status   TEXT NOT NULL DEFAULT '',
    direct_upload_id  TEXT NOT NULL DEFAULT '',
    duration_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
    aspect_ratio      TEXT NOT NULL DEFAULT '',
    max_resolution    TEXT NOT NULL DEFAULT '',
    playback_policy   TEXT NOT NULL DEFAULT '',
    error_detail      TEXT NOT NULL DEFAULT '',
    attempt           INTEGER NOT NULL DEFAULT 1,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL,
    ready_at          TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS media_assets_status_idx ON media_assets (status);
CREATE INDEX IF NOT EXISTS media_assets_provider_idx ON media_assets (provider_asset_id) WHERE provider_asset_id <> '';
`

const assetColumns = `id, object_name, kind, original_filename, content_type, size_bytes,
status, provider_asset_id, playback_id, provider_status, direct_upload_id,
duration_seconds, aspect_ratio, max_resolution, playback_policy, error_detail,
attempt, created_at, updated_at, ready_at`

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository opens a Postgres-backed repository and ensures the
// schema exists.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...PostgresOption) (Repository, error) {
	cfg := PostgresConfig{DSN: dsn, ApplicationName: "chapelcast"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, mediaAssetsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure media_assets schema: %w", err)
	}
	return &postgresRepository{pool: pool}, nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) CreateAsset(ctx context.Context, asset models.MediaAsset) (models.MediaAsset, error) {
	if strings.TrimSpace(asset.ID) == "" {
		return models.MediaAsset{}, errors.New("asset ID is required")
	}
	if strings.TrimSpace(asset.ObjectName) == "" {
		return models.MediaAsset{}, errors.New("object name is required")
	}
	if !asset.Status.Valid() {
		return models.MediaAsset{}, fmt.Errorf("invalid asset status %q", asset.Status)
	}

	now := time.Now().UTC()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `INSERT INTO media_assets (`+assetColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		asset.ID, asset.ObjectName, string(asset.Kind), asset.OriginalFilename,
		asset.ContentType, asset.SizeBytes, string(asset.Status), asset.ProviderAssetID,
		asset.PlaybackID, asset.ProviderStatus, asset.DirectUploadID, asset.DurationSeconds,
		asset.AspectRatio, asset.MaxResolution, asset.PlaybackPolicy, asset.Error,
		asset.Attempt, asset.CreatedAt, asset.UpdatedAt, asset.ReadyAt)
	if err != nil {
		if strings.Contains(err.Error(), "media_assets_object_name_key") {
			return models.MediaAsset{}, ErrDuplicateObjectName
		}
		return models.MediaAsset{}, fmt.Errorf("insert media asset: %w", err)
	}
	return asset, nil
}

func (r *postgresRepository) GetAsset(ctx context.Context, id string) (models.MediaAsset, error) {
	return r.getAssetWhere(ctx, "id = $1", id)
}

func (r *postgresRepository) GetAssetByObjectName(ctx context.Context, objectName string) (models.MediaAsset, error) {
	return r.getAssetWhere(ctx, "object_name = $1", objectName)
}

func (r *postgresRepository) GetAssetByProviderID(ctx context.Context, providerAssetID string) (models.MediaAsset, error) {
	if strings.TrimSpace(providerAssetID) == "" {
		return models.MediaAsset{}, ErrAssetNotFound
	}
	return r.getAssetWhere(ctx, "provider_asset_id = $1", providerAssetID)
}

func (r *postgresRepository) getAssetWhere(ctx context.Context, clause string, arg any) (models.MediaAsset, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM media_assets WHERE `+clause, arg)
	asset, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MediaAsset{}, ErrAssetNotFound
	}
	if err != nil {
		return models.MediaAsset{}, fmt.Errorf("query media asset: %w", err)
	}
	return asset, nil
}

func (r *postgresRepository) ListAssets(ctx context.Context, filter ListFilter) ([]models.MediaAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_assets`
	var clauses []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		clauses = append(clauses, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media assets: %w", err)
	}
	defer rows.Close()

	var assets []models.MediaAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media assets: %w", err)
	}
	return assets, nil
}

// UpdateAsset reads the current row, applies the update through the shared
// state machine, and writes it back guarded by updated_at so concurrent
// writers cannot silently clobber each other.
func (r *postgresRepository) UpdateAsset(ctx context.Context, id string, update AssetUpdate) (models.MediaAsset, error) {
	for {
		current, err := r.GetAsset(ctx, id)
		if err != nil {
			return models.MediaAsset{}, err
		}
		updated, err := applyAssetUpdate(current, update)
		if err != nil {
			return models.MediaAsset{}, err
		}

		tag, err := r.pool.Exec(ctx, `UPDATE media_assets SET
object_name=$2, status=$3, provider_asset_id=$4, playback_id=$5, provider_status=$6,
direct_upload_id=$7, duration_seconds=$8, aspect_ratio=$9, max_resolution=$10,
playback_policy=$11, error_detail=$12, attempt=$13, updated_at=$14, ready_at=$15
WHERE id=$1 AND updated_at=$16`,
			id, updated.ObjectName, string(updated.Status), updated.ProviderAssetID,
			updated.PlaybackID, updated.ProviderStatus, updated.DirectUploadID,
			updated.DurationSeconds, updated.AspectRatio, updated.MaxResolution,
			updated.PlaybackPolicy, updated.Error, updated.Attempt,
			updated.UpdatedAt, updated.ReadyAt, current.UpdatedAt)
		if err != nil {
			return models.MediaAsset{}, fmt.Errorf("update media asset: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return updated, nil
		}
		// Lost the race against another writer; re-read and retry.
		select {
		case <-ctx.Done():
			return models.MediaAsset{}, ctx.Err()
		default:
		}
	}
}

func (r *postgresRepository) DeleteAsset(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM media_assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete media asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func scanAsset(row pgx.Row) (models.MediaAsset, error) {
	var asset models.MediaAsset
	var kind, status string
	err := row.Scan(&asset.ID, &asset.ObjectName, &kind, &asset.OriginalFilename,
		&asset.ContentType, &asset.SizeBytes, &status, &asset.ProviderAssetID,
		&asset.PlaybackID, &asset.ProviderStatus, &asset.DirectUploadID,
		&asset.DurationSeconds, &asset.AspectRatio, &asset.MaxResolution,
		&asset.PlaybackPolicy, &asset.Error, &asset.Attempt,
		&asset.CreatedAt, &asset.UpdatedAt, &asset.ReadyAt)
	if err != nil {
		return models.MediaAsset{}, err
	}
	asset.Kind = models.MediaKind(kind)
	asset.Status = models.IngestStatus(status)
	return asset, nil
}
