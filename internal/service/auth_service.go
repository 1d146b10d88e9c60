package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/universityofengineers/sms-api/internal/models"
	appErrors "github.com/universityofengineers/sms-api/pkg/errors"
)

type authAccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id int64) (*models.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
}

type authStudentRepository interface {
	FindByAccountID(ctx context.Context, accountID int64) (*models.Student, error)
	ExistsByStudentNo(ctx context.Context, studentNo string) (bool, error)
	CreateWithAccount(ctx context.Context, account *models.Account, student *models.Student) error
}

type authTeacherReader interface {
	FindByAccountID(ctx context.Context, accountID int64) (*models.Teacher, error)
}

type authDepartmentReader interface {
	FindByID(ctx context.Context, id int64) (*models.Department, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// AuthService provides registration, login and token use cases.
type AuthService struct {
	accounts    authAccountRepository
	students    authStudentRepository
	teachers    authTeacherReader
	departments authDepartmentReader
	validator   *validator.Validate
	logger      *zap.Logger
	config      AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(accounts authAccountRepository, students authStudentRepository, teachers authTeacherReader, departments authDepartmentReader, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{accounts: accounts, students: students, teachers: teachers, departments: departments, validator: validate, logger: logger, config: config}
}

// RegisterStudent creates a STUDENT account plus profile and issues a
// credential. Public sign-up never creates teachers: there is no role field
// to abuse, and teacher accounts come from an authenticated teacher.
func (s *AuthService) RegisterStudent(ctx context.Context, req models.RegisterStudentRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	exists, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "Email already registered.")
	}

	if _, err := s.departments.FindByID(ctx, req.DepartmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Department not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	studentNo, err := generateUniqueCode(ctx, newStudentNo, s.students.ExistsByStudentNo)
	if err != nil {
		if errors.Is(err, errCodeExhausted) {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Could not generate unique student number. Try again.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate student number")
	}

	account := &models.Account{Email: email, PasswordHash: string(hash), Role: models.RoleStudent, Enabled: true}
	student := &models.Student{
		StudentNo:    studentNo,
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        trimmed(req.Phone),
		Address:      trimmed(req.Address),
		Status:       models.StudentStatusActive,
		DepartmentID: req.DepartmentID,
	}
	if err := s.students.CreateWithAccount(ctx, account, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register student")
	}

	res, err := s.issueCredential(ctx, account)
	if err != nil {
		return nil, err
	}
	res.StudentID = &student.ID
	return res, nil
}

// Login verifies credentials and issues a token pair. The enabled flag is
// checked only after the password verified, so probing a disabled account
// with a wrong password still reads as bad credentials.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	account, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "Invalid credentials.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch account")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "Invalid credentials.")
	}

	if !account.Enabled {
		return nil, appErrors.Clone(appErrors.ErrAccountDisabled, "Account is disabled.")
	}

	res, err := s.issueCredential(ctx, account)
	if err != nil {
		return nil, err
	}

	// Response enrichment only; the profile id is never trusted from a token.
	if student, err := s.students.FindByAccountID(ctx, account.ID); err == nil {
		res.StudentID = &student.ID
	}
	if teacher, err := s.teachers.FindByAccountID(ctx, account.ID); err == nil {
		res.TeacherID = &teacher.ID
	}

	return res, nil
}

// Refresh exchanges a refresh token for a new pair, rotating the old one.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	stored, err := s.accounts.FindRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	if stored.Revoked || time.Now().UTC().After(stored.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	account, err := s.accounts.FindByID(ctx, stored.AccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}

	if !account.Enabled {
		return nil, appErrors.Clone(appErrors.ErrAccountDisabled, "Account is disabled.")
	}

	if err := s.accounts.RevokeRefreshToken(ctx, stored.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to revoke used refresh token", zap.Error(err))
	}

	return s.issueCredential(ctx, account)
}

// Logout revokes the provided refresh token for the acting account.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, accountID int64) error {
	stored, err := s.accounts.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}

	if stored.AccountID != accountID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to account")
	}

	if err := s.accounts.RevokeRefreshToken(ctx, stored.ID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	return nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) issueCredential(ctx context.Context, account *models.Account) (*models.AuthResponse, error) {
	accessToken, issuedAt, err := s.generateAccessToken(account)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshValue, err := s.generateRefreshTokenString()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	refresh := &models.RefreshToken{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Token:     refreshValue,
		ExpiresAt: time.Now().UTC().Add(s.config.RefreshTokenExpiry),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.accounts.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.AuthResponse{
		Token:        accessToken,
		TokenType:    "Bearer",
		RefreshToken: refresh.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     issuedAt,
		AccountID:    account.ID,
		Email:        account.Email,
		Role:         account.Role,
	}, nil
}

func (s *AuthService) generateAccessToken(account *models.Account) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	claims := &models.JWTClaims{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   fmt.Sprintf("%d", account.ID),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, issuedAt, nil
}

func (s *AuthService) generateRefreshTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
