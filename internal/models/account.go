package models

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
)

// Role distinguishes the two account kinds sharing the login/session shape.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStudent
}

// AuthProvider records how an account authenticates.
type AuthProvider string

const (
	AuthProviderLocal    AuthProvider = "local"
	AuthProviderExternal AuthProvider = "external"
)

// Account is the tagged variant over Admin and Student. Consumers switch on
// the concrete type:
//
//	switch acc := account.(type) {
//	case *models.Admin:
//	case *models.Student:
//	}
type Account interface {
	AccountID() string
	AccountEmail() string
	AccountName() string
	Role() Role
	isAccount()
}

// Admin manages students, videos and level requests. Admins have no level.
type Admin struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func (a *Admin) AccountID() string    { return a.ID }
func (a *Admin) AccountEmail() string { return a.Email }
func (a *Admin) AccountName() string  { return a.Name }
func (a *Admin) Role() Role           { return RoleAdmin }
func (a *Admin) isAccount()           {}

// Student watches videos up to their level plus any extra accessible levels.
type Student struct {
	ID                      string       `db:"id" json:"id"`
	Email                   string       `db:"email" json:"email"`
	Name                    string       `db:"name" json:"name"`
	PasswordHash            *string      `db:"password_hash" json:"-"`
	IdentityProviderSubject *string      `db:"identity_subject" json:"-"`
	AuthProvider            AuthProvider `db:"auth_provider" json:"auth_provider"`
	Phone                   *string      `db:"phone" json:"phone,omitempty"`
	Address                 *string      `db:"address" json:"address,omitempty"`
	Level                   int          `db:"level" json:"level"`
	AccessibleLevels        LevelSet     `db:"accessible_levels" json:"accessible_levels"`
	CreatedAt               time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time    `db:"updated_at" json:"updated_at"`
}

func (s *Student) AccountID() string    { return s.ID }
func (s *Student) AccountEmail() string { return s.Email }
func (s *Student) AccountName() string  { return s.Name }
func (s *Student) Role() Role           { return RoleStudent }
func (s *Student) isAccount()           {}

// HasPassword reports whether the student can use local login.
func (s *Student) HasPassword() bool {
	return s.PasswordHash != nil && *s.PasswordHash != ""
}

// LevelSet is a set of extra unlocked levels stored as a Postgres INTEGER[].
type LevelSet []int

// NewLevelSet deduplicates and sorts levels, dropping non-positive values.
func NewLevelSet(levels ...int) LevelSet {
	seen := make(map[int]struct{}, len(levels))
	out := make(LevelSet, 0, len(levels))
	for _, l := range levels {
		if l < 1 {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Contains reports whether level is in the set.
func (s LevelSet) Contains(level int) bool {
	for _, l := range s {
		if l == level {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer.
func (s LevelSet) Value() (driver.Value, error) {
	arr := make(pq.Int64Array, len(s))
	for i, l := range s {
		arr[i] = int64(l)
	}
	return arr.Value()
}

// Scan implements sql.Scanner.
func (s *LevelSet) Scan(src interface{}) error {
	var arr pq.Int64Array
	if err := arr.Scan(src); err != nil {
		return fmt.Errorf("scan accessible levels: %w", err)
	}
	out := make(LevelSet, len(arr))
	for i, v := range arr {
		out[i] = int(v)
	}
	*s = out
	return nil
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	Search   string
	Level    *int
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
