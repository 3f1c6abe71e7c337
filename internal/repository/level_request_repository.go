package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/level-portal-api/internal/models"
)

// ErrRequestNotPending is returned when a decision targets a request that was already decided.
var ErrRequestNotPending = errors.New("level request is not pending")

const levelRequestColumns = "id, student_id, current_level, requested_level, message, status, admin_response, created_at, decided_at"

const levelRequestDetailSelect = `SELECT lr.id, lr.student_id, lr.current_level, lr.requested_level, lr.message, lr.status, lr.admin_response,
        lr.created_at, lr.decided_at, s.name AS student_name, s.email AS student_email
        FROM level_requests lr JOIN students s ON s.id = lr.student_id`

// LevelRequestRepository manages persistence for level requests.
type LevelRequestRepository struct {
	db *sqlx.DB
}

// NewLevelRequestRepository constructs a LevelRequestRepository.
func NewLevelRequestRepository(db *sqlx.DB) *LevelRequestRepository {
	return &LevelRequestRepository{db: db}
}

// Create inserts a pending request.
func (r *LevelRequestRepository) Create(ctx context.Context, req *models.LevelRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = models.LevelRequestPending
	}
	const query = `INSERT INTO level_requests (id, student_id, current_level, requested_level, message, status, created_at)
        VALUES (:id, :student_id, :current_level, :requested_level, :message, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create level request: %w", err)
	}
	return nil
}

// HasPending reports whether the student already has a pending request for level.
func (r *LevelRequestRepository) HasPending(ctx context.Context, studentID string, level int) (bool, error) {
	const query = "SELECT 1 FROM level_requests WHERE student_id = $1 AND requested_level = $2 AND status = $3 LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, level, models.LevelRequestPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check pending level request: %w", err)
	}
	return true, nil
}

// List returns requests joined with their requester, newest first. An empty status lists all.
func (r *LevelRequestRepository) List(ctx context.Context, status models.LevelRequestStatus) ([]models.LevelRequestDetail, error) {
	query := levelRequestDetailSelect
	args := []interface{}{}
	if status != "" {
		query += " WHERE lr.status = $1"
		args = append(args, status)
	}
	query += " ORDER BY lr.created_at DESC"

	var items []models.LevelRequestDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list level requests: %w", err)
	}
	return items, nil
}

// ListByStudent returns a student's own requests, newest first.
func (r *LevelRequestRepository) ListByStudent(ctx context.Context, studentID string) ([]models.LevelRequest, error) {
	query := "SELECT " + levelRequestColumns + " FROM level_requests WHERE student_id = $1 ORDER BY created_at DESC"
	var items []models.LevelRequest
	if err := r.db.SelectContext(ctx, &items, query, studentID); err != nil {
		return nil, fmt.Errorf("list student level requests: %w", err)
	}
	return items, nil
}

// CountPending returns the number of pending requests.
func (r *LevelRequestRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM level_requests WHERE status = $1", models.LevelRequestPending); err != nil {
		return 0, fmt.Errorf("count pending level requests: %w", err)
	}
	return count, nil
}

// Approve marks a pending request approved and raises the owner's level in one transaction.
func (r *LevelRequestRepository) Approve(ctx context.Context, id string, adminResponse *string) (*models.LevelRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approve tx: %w", err)
	}

	now := time.Now().UTC()
	req, err := r.decide(ctx, tx, id, models.LevelRequestApproved, adminResponse, now)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	const levelQuery = "UPDATE students SET level = $2, updated_at = $3 WHERE id = $1"
	if _, err := tx.ExecContext(ctx, levelQuery, req.StudentID, req.RequestedLevel, now); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("update student level: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approve tx: %w", err)
	}
	return req, nil
}

// Reject marks a pending request rejected. The owner's level is untouched.
func (r *LevelRequestRepository) Reject(ctx context.Context, id string, adminResponse *string) (*models.LevelRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reject tx: %w", err)
	}
	req, err := r.decide(ctx, tx, id, models.LevelRequestRejected, adminResponse, time.Now().UTC())
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reject tx: %w", err)
	}
	return req, nil
}

// decide transitions a pending request. It returns sql.ErrNoRows when the
// request does not exist and ErrRequestNotPending when it was already decided.
func (r *LevelRequestRepository) decide(ctx context.Context, tx *sqlx.Tx, id string, status models.LevelRequestStatus, adminResponse *string, at time.Time) (*models.LevelRequest, error) {
	query := `UPDATE level_requests SET status = $2, admin_response = $3, decided_at = $4
        WHERE id = $1 AND status = $5 RETURNING ` + levelRequestColumns
	var req models.LevelRequest
	err := tx.GetContext(ctx, &req, query, id, status, adminResponse, at, models.LevelRequestPending)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decide level request: %w", err)
	}

	var current models.LevelRequestStatus
	if err := tx.GetContext(ctx, &current, "SELECT status FROM level_requests WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("load level request status: %w", err)
	}
	if !current.Terminal() {
		return nil, fmt.Errorf("level request %s still %s after decision", id, current)
	}
	return nil, ErrRequestNotPending
}
