package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/level-portal-api/internal/dto"
	"github.com/noah-isme/level-portal-api/internal/models"
	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
	"github.com/noah-isme/level-portal-api/pkg/identity"
)

type authAdminRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Admin, error)
}

type authStudentRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	FindByIdentitySubject(ctx context.Context, subject string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	LinkIdentity(ctx context.Context, id, subject string) error
}

// AuthConfig defines configuration for session issuance and password hashing.
type AuthConfig struct {
	Secret     string
	Expiry     time.Duration
	Issuer     string
	BcryptCost int
}

// AuthService authenticates admins and students and issues session tokens.
type AuthService struct {
	admins    authAdminRepository
	students  authStudentRepository
	verifier  identity.Verifier
	domains   identity.DomainAllowList
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance. verifier may be nil, in
// which case external logins fail with an invalid token error.
func NewAuthService(admins authAdminRepository, students authStudentRepository, verifier identity.Verifier, domains identity.DomainAllowList, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.Expiry <= 0 {
		config.Expiry = 7 * 24 * time.Hour
	}
	return &AuthService{
		admins:    admins,
		students:  students,
		verifier:  verifier,
		domains:   domains,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// AdminLogin authenticates an admin by email and password.
func (s *AuthService) AdminLogin(ctx context.Context, req dto.LoginRequest) (*models.Session, error) {
	session, err := s.adminLogin(ctx, req)
	s.metrics.RecordLogin("admin_password", err)
	return session, err
}

func (s *AuthService) adminLogin(ctx context.Context, req dto.LoginRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	admin, err := s.admins.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Internal(err, "failed to fetch admin")
	}
	if !passwordMatches(admin.PasswordHash, req.Password) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	return s.newSession(admin)
}

// StudentLogin authenticates a student by email and password.
func (s *AuthService) StudentLogin(ctx context.Context, req dto.LoginRequest) (*models.Session, error) {
	session, err := s.studentLogin(ctx, req)
	s.metrics.RecordLogin("student_password", err)
	return session, err
}

func (s *AuthService) studentLogin(ctx context.Context, req dto.LoginRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	student, err := s.students.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Internal(err, "failed to fetch student")
	}
	if !student.HasPassword() {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "use Google login for this account")
	}
	if !passwordMatches(student.PasswordHash, req.Password) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	return s.newSession(student)
}

// Signup registers a local student and logs them in.
func (s *AuthService) Signup(ctx context.Context, req dto.SignupRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signup payload")
	}

	exists, err := s.students.ExistsByEmail(ctx, normalizeEmail(req.Email), "")
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}

	student, err := newLocalStudent(req, 1, s.config.BcryptCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Internal(err, "failed to create student")
	}
	s.cache.Invalidate(ctx, cacheKeyStudentStats)

	s.logger.Info("student signed up", zap.String("student_id", student.ID))
	return s.newSession(student)
}

// ExternalLogin verifies an identity-provider token and resolves it to an account.
func (s *AuthService) ExternalLogin(ctx context.Context, req dto.GoogleLoginRequest) (*models.Session, error) {
	session, err := s.externalLogin(ctx, req)
	s.metrics.RecordLogin("external", err)
	return session, err
}

func (s *AuthService) externalLogin(ctx context.Context, req dto.GoogleLoginRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	ext, err := s.verifyExternal(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}
	if !s.domains.Allows(ext.Email) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "email domain is not allowed")
	}

	if models.Role(req.Role) == models.RoleAdmin {
		admin, err := s.admins.FindByEmail(ctx, ext.Email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "admin account not found")
			}
			return nil, appErrors.Internal(err, "failed to fetch admin")
		}
		return s.newSession(admin)
	}

	student, err := s.resolveExternalStudent(ctx, ext)
	if err != nil {
		return nil, err
	}
	return s.newSession(student)
}

func (s *AuthService) verifyExternal(ctx context.Context, idToken string) (*identity.ExternalIdentity, error) {
	if s.verifier == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "identity provider not configured")
	}
	ext, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		if errors.Is(err, identity.ErrNotInitialized) {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "identity provider not configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "invalid identity token")
	}
	if ext.Subject == "" || ext.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "identity token is missing subject or email")
	}
	ext.Email = normalizeEmail(ext.Email)
	return ext, nil
}

// resolveExternalStudent finds the student by subject, then by email (linking
// the subject), and otherwise creates one at level 1.
func (s *AuthService) resolveExternalStudent(ctx context.Context, ext *identity.ExternalIdentity) (*models.Student, error) {
	student, err := s.students.FindByIdentitySubject(ctx, ext.Subject)
	if err == nil {
		return student, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to fetch student")
	}

	student, err = s.students.FindByEmail(ctx, ext.Email)
	switch {
	case err == nil:
		if err := s.students.LinkIdentity(ctx, student.ID, ext.Subject); err != nil {
			return nil, appErrors.Internal(err, "failed to link identity")
		}
		subject := ext.Subject
		student.IdentityProviderSubject = &subject
		student.AuthProvider = models.AuthProviderExternal
		s.logger.Info("linked external identity", zap.String("student_id", student.ID))
		return student, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Internal(err, "failed to fetch student")
	}

	subject := ext.Subject
	student = &models.Student{
		Email:                   ext.Email,
		Name:                    displayName(ext),
		IdentityProviderSubject: &subject,
		AuthProvider:            models.AuthProviderExternal,
		Level:                   1,
		AccessibleLevels:        models.LevelSet{},
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Internal(err, "failed to create student")
	}
	s.cache.Invalidate(ctx, cacheKeyStudentStats)
	s.logger.Info("created student from external identity", zap.String("student_id", student.ID))
	return student, nil
}

func displayName(ext *identity.ExternalIdentity) string {
	if name := strings.TrimSpace(ext.DisplayName); name != "" {
		return name
	}
	if at := strings.Index(ext.Email, "@"); at > 0 {
		return ext.Email[:at]
	}
	return ext.Email
}

// IssueSession signs a token embedding a snapshot of the account.
func (s *AuthService) IssueSession(account models.Account) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.Expiry)
	claims := &models.JWTClaims{
		UserID: account.AccountID(),
		Email:  account.AccountEmail(),
		Role:   account.Role(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   account.AccountID(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	switch acc := account.(type) {
	case *models.Admin:
	case *models.Student:
		claims.Level = acc.Level
		claims.AccessibleLevels = append([]int{}, acc.AccessibleLevels...)
	default:
		return "", time.Time{}, fmt.Errorf("unsupported account type %T", account)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *AuthService) newSession(account models.Account) (*models.Session, error) {
	token, _, err := s.IssueSession(account)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create session token")
	}
	return &models.Session{Token: token, User: models.NewUserInfo(account)}, nil
}

// ValidateToken parses and validates a session token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
