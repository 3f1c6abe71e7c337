package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/level-portal-api/internal/dto"
	"github.com/noah-isme/level-portal-api/internal/models"
	"github.com/noah-isme/level-portal-api/internal/repository"
	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
	"github.com/noah-isme/level-portal-api/pkg/jobs"
	"github.com/noah-isme/level-portal-api/pkg/storage"
)

type videoRepository interface {
	Create(ctx context.Context, video *models.VideoAsset) error
	FindByID(ctx context.Context, id string) (*models.VideoAsset, error)
	FindByStorageKey(ctx context.Context, key string) (*models.VideoAsset, error)
	FindStoredByFilename(ctx context.Context, filename string) (*models.VideoAsset, error)
	ListByLevel(ctx context.Context, level int) ([]models.VideoAsset, error)
	ListAll(ctx context.Context) ([]models.VideoAsset, error)
	FindBySheet(ctx context.Context, level, sheet int) (*models.VideoAsset, error)
	FindNext(ctx context.Context, level, sheetEnd int) (*models.VideoAsset, error)
	FindPrevious(ctx context.Context, level, sheetStart int) (*models.VideoAsset, error)
	StorageKeys(ctx context.Context) (map[string]struct{}, error)
	Delete(ctx context.Context, id string) error
}

// mediaStore is implemented by stores that serve their own files over signed links.
type mediaStore interface {
	ResolveToken(token string) (string, error)
	Open(key string) (*os.File, error)
}

type cleanupQueue interface {
	Enqueue(task jobs.Task) error
}

// VideoConfig bounds uploads.
type VideoConfig struct {
	MaxUploadBytes int64
}

// VideoService manages the catalog and keeps it in step with object storage.
type VideoService struct {
	repo      videoRepository
	store     storage.ObjectStore
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       VideoConfig
	cleanup   cleanupQueue
}

// NewVideoService constructs a VideoService.
func NewVideoService(repo videoRepository, store storage.ObjectStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg VideoConfig) *VideoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 500 * 1024 * 1024
	}
	return &VideoService{repo: repo, store: store, metrics: metrics, validator: validate, logger: logger, cfg: cfg}
}

// UseCleanupQueue hands orphaned objects that could not be removed inline to
// a retrying queue.
func (s *VideoService) UseCleanupQueue(q cleanupQueue) {
	s.cleanup = q
}

// MaxUploadBytes exposes the configured upload ceiling.
func (s *VideoService) MaxUploadBytes() int64 {
	return s.cfg.MaxUploadBytes
}

// Upload stores the file under its canonical name and registers it. A slot
// that already has a stored video is a conflict; the existing file is never
// overwritten. If the row cannot be written the stored object is removed again.
func (s *VideoService) Upload(ctx context.Context, in dto.UploadVideoInput) (*models.VideoAsset, error) {
	if err := s.validator.Struct(in.VideoRangeForm); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "level, sheetStart and sheetEnd are required")
	}
	if in.Body == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "video file is required")
	}
	if !strings.HasPrefix(strings.ToLower(in.ContentType), "video/") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only video files are allowed")
	}
	if in.Size > s.cfg.MaxUploadBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, "video exceeds the upload size limit")
	}

	slot := models.SheetRange{Level: in.Level, SheetStart: in.SheetStart, SheetEnd: in.SheetEnd}
	filename := slot.CanonicalFilename()

	existing, err := s.repo.FindStoredByFilename(ctx, filename)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check existing video")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a video is already stored for this range")
	}

	start := time.Now()
	obj, err := s.store.Put(ctx, storage.PutInput{Filename: filename, Body: in.Body, Size: in.Size, ContentType: in.ContentType})
	s.metrics.ObserveStorage("put", err, time.Since(start))
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to upload video")
	}

	key := obj.Key
	video := &models.VideoAsset{
		Level:      slot.Level,
		SheetStart: slot.SheetStart,
		SheetEnd:   slot.SheetEnd,
		URL:        obj.URL,
		StorageKey: &key,
		Filename:   filename,
	}
	if err := s.repo.Create(ctx, video); err != nil {
		if errors.Is(err, repository.ErrVideoExists) {
			// a concurrent upload registered the key first and owns the object
			return nil, appErrors.Clone(appErrors.ErrConflict, "a video is already stored for this range")
		}
		s.compensateUpload(key)
		return nil, appErrors.Internal(err, "failed to register video")
	}

	s.logger.Info("video uploaded", zap.String("video_id", video.ID), zap.String("key", key), zap.Int64("bytes", obj.Size))
	return s.withPlayback(video), nil
}

// RemoveOrphan deletes a stored object unless a catalog row references it.
// It is the cleanup queue's handler as well as the inline compensation.
func (s *VideoService) RemoveOrphan(ctx context.Context, key string) error {
	owner, err := s.repo.FindByStorageKey(ctx, key)
	if err != nil {
		return fmt.Errorf("check owner of %s: %w", key, err)
	}
	if owner != nil {
		s.logger.Warn("keeping stored object referenced by a video", zap.String("key", key), zap.String("video_id", owner.ID))
		return nil
	}

	start := time.Now()
	err = s.store.Delete(ctx, key)
	s.metrics.ObserveStorage("delete", err, time.Since(start))
	return err
}

func (s *VideoService) compensateUpload(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.RemoveOrphan(ctx, key); err != nil {
		if s.cleanup != nil {
			if qErr := s.cleanup.Enqueue(jobs.Task{Key: key, Reason: "video registration failed"}); qErr == nil {
				s.logger.Warn("orphaned upload scheduled for cleanup", zap.String("key", key), zap.Error(err))
				return
			}
		}
		s.logger.Error("orphaned upload could not be removed", zap.String("key", key), zap.Error(err))
		return
	}
	s.logger.Warn("removed upload after failed registration", zap.String("key", key))
}

// RegisterExternalLink records an externally hosted video. It has no storage key.
func (s *VideoService) RegisterExternalLink(ctx context.Context, req dto.ExternalLinkRequest) (*models.VideoAsset, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "level, sheetStart, sheetEnd and driveUrl are required")
	}
	slot := models.SheetRange{Level: req.Level, SheetStart: req.SheetStart, SheetEnd: req.SheetEnd}
	video := &models.VideoAsset{
		Level:      slot.Level,
		SheetStart: slot.SheetStart,
		SheetEnd:   slot.SheetEnd,
		URL:        strings.TrimSpace(req.DriveURL),
		Filename:   slot.ExternalFilename(),
	}
	if err := s.repo.Create(ctx, video); err != nil {
		return nil, appErrors.Internal(err, "failed to register video link")
	}
	return video, nil
}

// ListByLevel returns a level's videos ordered by sheet start.
func (s *VideoService) ListByLevel(ctx context.Context, level int) ([]models.VideoAsset, error) {
	videos, err := s.repo.ListByLevel(ctx, level)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list videos")
	}
	return s.withPlaybackAll(videos), nil
}

// ListAll returns the whole catalog.
func (s *VideoService) ListAll(ctx context.Context) ([]models.VideoAsset, error) {
	videos, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list videos")
	}
	return s.withPlaybackAll(videos), nil
}

// LookupBySheet finds the video covering sheet and its neighbours.
func (s *VideoService) LookupBySheet(ctx context.Context, level, sheet int) (*models.VideoNeighbourhood, error) {
	current, err := s.repo.FindBySheet(ctx, level, sheet)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to look up video")
	}
	if current == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "video not found for this sheet")
	}

	next, err := s.repo.FindNext(ctx, level, current.SheetEnd)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to look up next video")
	}
	previous, err := s.repo.FindPrevious(ctx, level, current.SheetStart)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to look up previous video")
	}

	return &models.VideoNeighbourhood{
		Current:  s.withPlayback(current),
		Next:     s.withPlayback(next),
		Previous: s.withPlayback(previous),
	}, nil
}

// Sync registers every stored object that is not yet in the catalog and whose
// name parses as a canonical filename. Unparseable names are reported back in
// Skipped, objects whose row could not be written in Failed; neither stops
// the run.
func (s *VideoService) Sync(ctx context.Context) (*dto.SyncResult, error) {
	start := time.Now()
	objects, err := s.store.List(ctx)
	s.metrics.ObserveStorage("list", err, time.Since(start))
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to list stored videos")
	}

	known, err := s.repo.StorageKeys(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load registered videos")
	}

	result := &dto.SyncResult{Skipped: []string{}, Failed: []string{}}
	for _, obj := range objects {
		if _, ok := known[obj.Key]; ok {
			continue
		}
		slot, ok := models.ParseVideoFilename(obj.Filename)
		if !ok {
			s.logger.Info("skipping unrecognised storage object", zap.String("key", obj.Key))
			result.Skipped = append(result.Skipped, obj.Key)
			continue
		}
		key := obj.Key
		video := &models.VideoAsset{
			Level:      slot.Level,
			SheetStart: slot.SheetStart,
			SheetEnd:   slot.SheetEnd,
			URL:        obj.URL,
			StorageKey: &key,
			Filename:   obj.Filename,
		}
		known[key] = struct{}{}
		if err := s.repo.Create(ctx, video); err != nil {
			if errors.Is(err, repository.ErrVideoExists) {
				continue
			}
			s.logger.Warn("failed to register synced video", zap.String("key", key), zap.Error(err))
			result.Failed = append(result.Failed, key)
			continue
		}
		result.Added++
	}

	s.metrics.RecordSync(result.Added, len(result.Skipped)+len(result.Failed))
	result.Message = "Sync completed"
	s.logger.Info("storage sync finished",
		zap.Int("added", result.Added),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

// Delete removes the backing object first, then the row. A storage failure
// leaves both in place.
func (s *VideoService) Delete(ctx context.Context, id string) error {
	id, ok := canonicalID(id)
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "video not found")
	}
	video, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "video not found")
		}
		return appErrors.Internal(err, "failed to load video")
	}

	if video.StorageKey != nil && *video.StorageKey != "" {
		start := time.Now()
		err := s.store.Delete(ctx, *video.StorageKey)
		s.metrics.ObserveStorage("delete", err, time.Since(start))
		if err != nil {
			return appErrors.Upstream(err, "failed to delete stored video")
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "video not found")
		}
		return appErrors.Internal(err, "failed to delete video")
	}
	s.logger.Info("video deleted", zap.String("video_id", id))
	return nil
}

// OpenMedia resolves a signed playback token to a locally stored file.
func (s *VideoService) OpenMedia(token string) (*os.File, error) {
	media, ok := s.store.(mediaStore)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "media streaming is not available")
	}
	key, err := media.ResolveToken(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired media link")
	}
	file, err := media.Open(key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "video file not found")
		}
		return nil, appErrors.Internal(err, "failed to open video file")
	}
	return file, nil
}

func (s *VideoService) withPlayback(video *models.VideoAsset) *models.VideoAsset {
	if video == nil || video.StorageKey == nil {
		return video
	}
	presigner, ok := s.store.(storage.Presigner)
	if !ok {
		return video
	}
	link, err := presigner.PresignedURL(*video.StorageKey)
	if err != nil {
		s.logger.Warn("failed to sign playback url", zap.String("video_id", video.ID), zap.Error(err))
		return video
	}
	video.PlaybackURL = link
	return video
}

func (s *VideoService) withPlaybackAll(videos []models.VideoAsset) []models.VideoAsset {
	for i := range videos {
		s.withPlayback(&videos[i])
	}
	return videos
}
