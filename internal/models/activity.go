package models

import "time"

// ActivityLogEntry records a student opening a sheet/slide. Append-only.
type ActivityLogEntry struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	Sheet      int       `db:"sheet" json:"sheet"`
	Slide      int       `db:"slide" json:"slide"`
	Level      int       `db:"level" json:"level"`
	AccessedAt time.Time `db:"accessed_at" json:"accessed_at"`
}

// ActivityDetail joins an entry with its student for the admin dashboard.
type ActivityDetail struct {
	ActivityLogEntry
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// LevelCount is one bucket of the students-by-level histogram.
type LevelCount struct {
	Level int `db:"level" json:"level"`
	Count int `db:"count" json:"count"`
}

// StudentStats aggregates the admin dashboard figures.
type StudentStats struct {
	TotalStudents   int              `json:"total_students"`
	StudentsByLevel []LevelCount     `json:"students_by_level"`
	RecentActivity  []ActivityDetail `json:"recent_activity"`
}
