package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the session payload. It is a snapshot of the account as of the
// last login: role and level changes take effect once a new token is issued.
type JWTClaims struct {
	UserID           string `json:"id"`
	Email            string `json:"email"`
	Role             Role   `json:"role"`
	Level            int    `json:"level,omitempty"`
	AccessibleLevels []int  `json:"accessible_levels,omitempty"`
	jwt.RegisteredClaims
}

// CanAccessLevel applies the level gate to the snapshot.
func (c *JWTClaims) CanAccessLevel(level int) bool {
	return c.Level == level || LevelSet(c.AccessibleLevels).Contains(level)
}

// UserInfo describes the authenticated account in responses.
type UserInfo struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Role             Role   `json:"role"`
	Level            *int   `json:"level,omitempty"`
	AccessibleLevels []int  `json:"accessible_levels,omitempty"`
}

// NewUserInfo projects an account into its public shape.
func NewUserInfo(account Account) UserInfo {
	info := UserInfo{
		ID:    account.AccountID(),
		Email: account.AccountEmail(),
		Name:  account.AccountName(),
		Role:  account.Role(),
	}
	if s, ok := account.(*Student); ok {
		level := s.Level
		info.Level = &level
		info.AccessibleLevels = append([]int{}, s.AccessibleLevels...)
	}
	return info
}

// Session is returned by every successful login or signup.
type Session struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}
