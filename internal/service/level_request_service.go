package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/level-portal-api/internal/dto"
	"github.com/noah-isme/level-portal-api/internal/models"
	"github.com/noah-isme/level-portal-api/internal/repository"
	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
)

type levelRequestRepository interface {
	Create(ctx context.Context, req *models.LevelRequest) error
	HasPending(ctx context.Context, studentID string, level int) (bool, error)
	List(ctx context.Context, status models.LevelRequestStatus) ([]models.LevelRequestDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.LevelRequest, error)
	CountPending(ctx context.Context) (int, error)
	Approve(ctx context.Context, id string, adminResponse *string) (*models.LevelRequest, error)
	Reject(ctx context.Context, id string, adminResponse *string) (*models.LevelRequest, error)
}

type levelRequestStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// LevelRequestService runs the pending -> approved|rejected workflow.
type LevelRequestService struct {
	requests  levelRequestRepository
	students  levelRequestStudentReader
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLevelRequestService constructs the service.
func NewLevelRequestService(requests levelRequestRepository, students levelRequestStudentReader, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *LevelRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &LevelRequestService{requests: requests, students: students, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// Create files a pending request for a level above the student's current one.
func (s *LevelRequestService) Create(ctx context.Context, studentID string, req dto.CreateLevelRequest) (*models.LevelRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "requested level is required")
	}
	requested := *req.RequestedLevel

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	if requested <= student.Level {
		return nil, appErrors.Clone(appErrors.ErrInvalidLevel, "")
	}

	pending, err := s.requests.HasPending(ctx, student.ID, requested)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrDuplicatePending, "")
	}

	lr := &models.LevelRequest{
		StudentID:      student.ID,
		CurrentLevel:   student.Level,
		RequestedLevel: requested,
		Message:        optionalString(req.Message),
		Status:         models.LevelRequestPending,
	}
	if err := s.requests.Create(ctx, lr); err != nil {
		return nil, appErrors.Internal(err, "failed to create level request")
	}
	s.cache.Invalidate(ctx, cacheKeyPendingCount)

	s.logger.Info("level request created",
		zap.String("request_id", lr.ID),
		zap.String("student_id", student.ID),
		zap.Int("requested_level", requested))
	return lr, nil
}

// Approve decides a pending request and sets the owner's level to the requested one.
func (s *LevelRequestService) Approve(ctx context.Context, id string, req dto.DecisionRequest) (*models.LevelRequest, error) {
	return s.decide(ctx, id, req, models.LevelRequestApproved, s.requests.Approve)
}

// Reject decides a pending request without touching the owner's level.
func (s *LevelRequestService) Reject(ctx context.Context, id string, req dto.DecisionRequest) (*models.LevelRequest, error) {
	return s.decide(ctx, id, req, models.LevelRequestRejected, s.requests.Reject)
}

type decisionFunc func(ctx context.Context, id string, adminResponse *string) (*models.LevelRequest, error)

func (s *LevelRequestService) decide(ctx context.Context, id string, req dto.DecisionRequest, status models.LevelRequestStatus, apply decisionFunc) (*models.LevelRequest, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "request id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	id, ok := canonicalID(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "level request not found")
	}

	lr, err := apply(ctx, id, optionalString(req.AdminResponse))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "level request not found")
		case errors.Is(err, repository.ErrRequestNotPending):
			return nil, appErrors.Clone(appErrors.ErrConflict, "level request has already been decided")
		default:
			return nil, appErrors.Internal(err, "failed to update level request")
		}
	}

	s.cache.Invalidate(ctx, cacheKeyPendingCount, cacheKeyStudentStats)
	s.metrics.RecordLevelDecision(string(status))
	s.logger.Info("level request decided",
		zap.String("request_id", lr.ID),
		zap.String("student_id", lr.StudentID),
		zap.String("status", string(status)))
	return lr, nil
}

// ListAll returns every request, newest first.
func (s *LevelRequestService) ListAll(ctx context.Context) ([]models.LevelRequestDetail, error) {
	items, err := s.requests.List(ctx, "")
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list level requests")
	}
	return items, nil
}

// ListPending returns the review queue, newest first.
func (s *LevelRequestService) ListPending(ctx context.Context) ([]models.LevelRequestDetail, error) {
	items, err := s.requests.List(ctx, models.LevelRequestPending)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list pending level requests")
	}
	return items, nil
}

// ListMine returns the student's own requests.
func (s *LevelRequestService) ListMine(ctx context.Context, studentID string) ([]models.LevelRequest, error) {
	items, err := s.requests.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list level requests")
	}
	return items, nil
}

// PendingCount returns the badge count, served from cache when possible.
func (s *LevelRequestService) PendingCount(ctx context.Context) (int, bool, error) {
	var cached int
	if hit, _ := s.cache.Get(ctx, cacheKeyPendingCount, &cached); hit {
		return cached, true, nil
	}
	count, err := s.requests.CountPending(ctx)
	if err != nil {
		return 0, false, appErrors.Internal(err, "failed to count pending level requests")
	}
	_ = s.cache.Set(ctx, cacheKeyPendingCount, count, 0)
	return count, false, nil
}
