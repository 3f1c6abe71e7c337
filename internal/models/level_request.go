package models

import "time"

// LevelRequestStatus is pending until an admin decides; both decisions are terminal.
type LevelRequestStatus string

const (
	LevelRequestPending  LevelRequestStatus = "pending"
	LevelRequestApproved LevelRequestStatus = "approved"
	LevelRequestRejected LevelRequestStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s LevelRequestStatus) Terminal() bool {
	return s == LevelRequestApproved || s == LevelRequestRejected
}

// LevelRequest is a student's proposal to raise their level.
type LevelRequest struct {
	ID             string             `db:"id" json:"id"`
	StudentID      string             `db:"student_id" json:"student_id"`
	CurrentLevel   int                `db:"current_level" json:"current_level"`
	RequestedLevel int                `db:"requested_level" json:"requested_level"`
	Message        *string            `db:"message" json:"message,omitempty"`
	Status         LevelRequestStatus `db:"status" json:"status"`
	AdminResponse  *string            `db:"admin_response" json:"admin_response,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	DecidedAt      *time.Time         `db:"decided_at" json:"decided_at,omitempty"`
}

// LevelRequestDetail joins a request with its requester for the admin queue.
type LevelRequestDetail struct {
	LevelRequest
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}
