package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/level-portal-api/internal/models"
)

// ActivityRepository appends and reads the student activity log.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create appends an entry. AccessedAt is always assigned by the server.
func (r *ActivityRepository) Create(ctx context.Context, entry *models.ActivityLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.AccessedAt = time.Now().UTC()
	const query = `INSERT INTO activity_logs (id, student_id, sheet, slide, level, accessed_at)
        VALUES (:id, :student_id, :sheet, :slide, :level, :accessed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create activity entry: %w", err)
	}
	return nil
}

// ListByStudent returns the student's latest entries, newest first.
func (r *ActivityRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.ActivityLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT id, student_id, sheet, slide, level, accessed_at FROM activity_logs
        WHERE student_id = $1 ORDER BY accessed_at DESC LIMIT %d`, limit)
	var entries []models.ActivityLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("list student activity: %w", err)
	}
	return entries, nil
}

// Recent returns the latest entries across students joined with their identity.
func (r *ActivityRepository) Recent(ctx context.Context, limit int) ([]models.ActivityDetail, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.sheet, a.slide, a.level, a.accessed_at, s.name AS student_name, s.email AS student_email
        FROM activity_logs a JOIN students s ON s.id = a.student_id ORDER BY a.accessed_at DESC LIMIT %d`, limit)
	var entries []models.ActivityDetail
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}
	return entries, nil
}
