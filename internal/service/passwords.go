package service

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/level-portal-api/internal/dto"
	"github.com/noah-isme/level-portal-api/internal/models"
)

func hashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// passwordMatches reports whether password matches hash. A missing hash never matches.
func passwordMatches(hash *string, password string) bool {
	if hash == nil || *hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*hash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// newLocalStudent builds a password-authenticated student at the given level.
func newLocalStudent(req dto.SignupRequest, level, cost int) (*models.Student, error) {
	hash, err := hashPassword(req.Password, cost)
	if err != nil {
		return nil, err
	}
	return &models.Student{
		Email:            normalizeEmail(req.Email),
		Name:             strings.TrimSpace(req.Name),
		PasswordHash:     &hash,
		AuthProvider:     models.AuthProviderLocal,
		Phone:            optionalString(req.Phone),
		Address:          optionalString(req.Address),
		Level:            level,
		AccessibleLevels: models.LevelSet{},
	}, nil
}
