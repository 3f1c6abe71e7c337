package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/level-portal-api/internal/models"
)

// ErrVideoExists is returned by Create when another row already owns the storage key.
var ErrVideoExists = errors.New("video storage key already registered")

const uniqueViolation = "23505"

const videoColumns = "id, level, sheet_start, sheet_end, video_url, storage_key, filename, created_at"

// VideoRepository manages persistence for video metadata.
type VideoRepository struct {
	db *sqlx.DB
}

// NewVideoRepository constructs a VideoRepository.
func NewVideoRepository(db *sqlx.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// Create inserts a video row.
func (r *VideoRepository) Create(ctx context.Context, video *models.VideoAsset) error {
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	if video.CreatedAt.IsZero() {
		video.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO videos (id, level, sheet_start, sheet_end, video_url, storage_key, filename, created_at)
        VALUES (:id, :level, :sheet_start, :sheet_end, :video_url, :storage_key, :filename, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, video); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrVideoExists
		}
		return fmt.Errorf("create video: %w", err)
	}
	return nil
}

// FindByID fetches a video by ID.
func (r *VideoRepository) FindByID(ctx context.Context, id string) (*models.VideoAsset, error) {
	var video models.VideoAsset
	if err := r.db.GetContext(ctx, &video, "SELECT "+videoColumns+" FROM videos WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &video, nil
}

// ListByLevel returns the videos of a level ordered by sheet start.
func (r *VideoRepository) ListByLevel(ctx context.Context, level int) ([]models.VideoAsset, error) {
	var videos []models.VideoAsset
	query := "SELECT " + videoColumns + " FROM videos WHERE level = $1 ORDER BY sheet_start"
	if err := r.db.SelectContext(ctx, &videos, query, level); err != nil {
		return nil, fmt.Errorf("list videos by level: %w", err)
	}
	return videos, nil
}

// ListAll returns the whole catalog ordered by level then sheet start.
func (r *VideoRepository) ListAll(ctx context.Context) ([]models.VideoAsset, error) {
	var videos []models.VideoAsset
	if err := r.db.SelectContext(ctx, &videos, "SELECT "+videoColumns+" FROM videos ORDER BY level, sheet_start"); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

// FindBySheet returns the video whose range contains sheet, lowest start first.
func (r *VideoRepository) FindBySheet(ctx context.Context, level, sheet int) (*models.VideoAsset, error) {
	query := "SELECT " + videoColumns + " FROM videos WHERE level = $1 AND sheet_start <= $2 AND sheet_end >= $2 ORDER BY sheet_start LIMIT 1"
	return r.optional(ctx, query, level, sheet)
}

// FindNext returns the first video starting strictly after sheetEnd.
func (r *VideoRepository) FindNext(ctx context.Context, level, sheetEnd int) (*models.VideoAsset, error) {
	query := "SELECT " + videoColumns + " FROM videos WHERE level = $1 AND sheet_start > $2 ORDER BY sheet_start LIMIT 1"
	return r.optional(ctx, query, level, sheetEnd)
}

// FindPrevious returns the last video ending strictly before sheetStart.
func (r *VideoRepository) FindPrevious(ctx context.Context, level, sheetStart int) (*models.VideoAsset, error) {
	query := "SELECT " + videoColumns + " FROM videos WHERE level = $1 AND sheet_end < $2 ORDER BY sheet_end DESC LIMIT 1"
	return r.optional(ctx, query, level, sheetStart)
}

// FindByStorageKey returns the row referencing key, or nil.
func (r *VideoRepository) FindByStorageKey(ctx context.Context, key string) (*models.VideoAsset, error) {
	return r.optional(ctx, "SELECT "+videoColumns+" FROM videos WHERE storage_key = $1", key)
}

// FindStoredByFilename returns a stored (non-link) video with the given
// filename, or nil.
func (r *VideoRepository) FindStoredByFilename(ctx context.Context, filename string) (*models.VideoAsset, error) {
	query := "SELECT " + videoColumns + " FROM videos WHERE filename = $1 AND storage_key IS NOT NULL LIMIT 1"
	return r.optional(ctx, query, filename)
}

// optional returns nil, nil when no row matches.
func (r *VideoRepository) optional(ctx context.Context, query string, args ...interface{}) (*models.VideoAsset, error) {
	var video models.VideoAsset
	if err := r.db.GetContext(ctx, &video, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find video: %w", err)
	}
	return &video, nil
}

// StorageKeys returns the set of storage keys already registered.
func (r *VideoRepository) StorageKeys(ctx context.Context) (map[string]struct{}, error) {
	var keys []string
	if err := r.db.SelectContext(ctx, &keys, "SELECT storage_key FROM videos WHERE storage_key IS NOT NULL"); err != nil {
		return nil, fmt.Errorf("list storage keys: %w", err)
	}
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set, nil
}

// Delete removes a video row.
func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM videos WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return expectAffected(res)
}
