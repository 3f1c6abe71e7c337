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
	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
)

const recentActivityLimit = 10

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	CountByLevel(ctx context.Context) ([]models.LevelCount, error)
}

type activityRepository interface {
	Create(ctx context.Context, entry *models.ActivityLogEntry) error
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.ActivityLogEntry, error)
	Recent(ctx context.Context, limit int) ([]models.ActivityDetail, error)
}

// StudentService implements admin CRUD over students plus the self-service
// profile and activity log.
type StudentService struct {
	students   studentRepository
	activity   activityRepository
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
	bcryptCost int
}

// NewStudentService constructs a StudentService.
func NewStudentService(students studentRepository, activity activityRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger, bcryptCost int) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{students: students, activity: activity, cache: cache, validator: validate, logger: logger, bcryptCost: bcryptCost}
}

// List returns a page of students.
func (s *StudentService) List(ctx context.Context, query dto.StudentListQuery) ([]models.Student, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid filter")
	}
	filter := models.StudentFilter{Search: strings.TrimSpace(query.Search), Level: query.Level, Page: query.Page, PageSize: query.PageSize}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list students")
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	id, ok := canonicalID(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	return student, nil
}

// Profile returns the calling student's own record.
func (s *StudentService) Profile(ctx context.Context, studentID string) (*models.Student, error) {
	return s.Get(ctx, studentID)
}

// Create registers a local student on behalf of an admin.
func (s *StudentService) Create(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	exists, err := s.students.ExistsByEmail(ctx, normalizeEmail(req.Email), "")
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}

	level := 1
	if req.Level != nil {
		level = *req.Level
	}
	student, err := newLocalStudent(req.SignupRequest, level, s.bcryptCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Internal(err, "failed to create student")
	}
	s.cache.Invalidate(ctx, cacheKeyStudentStats)
	return student, nil
}

// Update applies a partial update.
func (s *StudentService) Update(ctx context.Context, id string, req dto.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	id = student.ID

	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if email != student.Email {
			exists, err := s.students.ExistsByEmail(ctx, email, id)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to check email")
			}
			if exists {
				return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
			}
			student.Email = email
		}
	}
	if req.Name != nil {
		student.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		student.Phone = optionalString(*req.Phone)
	}
	if req.Address != nil {
		student.Address = optionalString(*req.Address)
	}
	if req.Level != nil {
		student.Level = *req.Level
	}
	if req.AccessibleLevels != nil {
		student.AccessibleLevels = models.NewLevelSet(req.AccessibleLevels...)
	}

	if err := s.students.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to update student")
	}
	s.cache.Invalidate(ctx, cacheKeyStudentStats)
	return student, nil
}

// Delete removes a student.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	id, ok := canonicalID(id)
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if err := s.students.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Internal(err, "failed to delete student")
	}
	s.cache.Invalidate(ctx, cacheKeyStudentStats, cacheKeyPendingCount)
	s.logger.Info("student deleted", zap.String("student_id", id))
	return nil
}

// Stats aggregates the admin dashboard figures. The bool reports a cache hit.
func (s *StudentService) Stats(ctx context.Context) (*models.StudentStats, bool, error) {
	var cached models.StudentStats
	if hit, _ := s.cache.Get(ctx, cacheKeyStudentStats, &cached); hit {
		return &cached, true, nil
	}

	total, err := s.students.Count(ctx)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to count students")
	}
	byLevel, err := s.students.CountByLevel(ctx)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to group students by level")
	}
	recent, err := s.activity.Recent(ctx, recentActivityLimit)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to load recent activity")
	}

	stats := &models.StudentStats{
		TotalStudents:   total,
		StudentsByLevel: nonNilCounts(byLevel),
		RecentActivity:  nonNilActivity(recent),
	}
	_ = s.cache.Set(ctx, cacheKeyStudentStats, stats, 0)
	return stats, false, nil
}

// RecordActivity appends an activity entry for the calling student.
func (s *StudentService) RecordActivity(ctx context.Context, studentID string, req dto.ActivityRequest) (*models.ActivityLogEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "sheet, slide and level are required")
	}
	entry := &models.ActivityLogEntry{StudentID: studentID, Sheet: req.Sheet, Slide: req.Slide, Level: req.Level}
	if err := s.activity.Create(ctx, entry); err != nil {
		return nil, appErrors.Internal(err, "failed to record activity")
	}
	s.cache.Invalidate(ctx, cacheKeyStudentStats)
	return entry, nil
}

// Activity lists the calling student's entries, newest first.
func (s *StudentService) Activity(ctx context.Context, studentID string) ([]models.ActivityLogEntry, error) {
	entries, err := s.activity.ListByStudent(ctx, studentID, 100)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load activity")
	}
	if entries == nil {
		entries = []models.ActivityLogEntry{}
	}
	return entries, nil
}

func nonNilCounts(in []models.LevelCount) []models.LevelCount {
	if in == nil {
		return []models.LevelCount{}
	}
	return in
}

func nonNilActivity(in []models.ActivityDetail) []models.ActivityDetail {
	if in == nil {
		return []models.ActivityDetail{}
	}
	return in
}
