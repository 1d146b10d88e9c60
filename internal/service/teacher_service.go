package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/universityofengineers/sms-api/internal/models"
	appErrors "github.com/universityofengineers/sms-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context) ([]models.TeacherDetail, error)
	FindByID(ctx context.Context, id int64) (*models.Teacher, error)
	FindDetailByID(ctx context.Context, id int64) (*models.TeacherDetail, error)
	FindByAccountID(ctx context.Context, accountID int64) (*models.Teacher, error)
	ExistsByEmployeeNo(ctx context.Context, employeeNo string) (bool, error)
	CreateWithAccount(ctx context.Context, account *models.Account, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
}

type teacherAccountRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error
	SetEnabled(ctx context.Context, id int64, enabled bool, updatedAt time.Time) error
	RevokeAccountRefreshTokens(ctx context.Context, accountID int64) error
}

// TeacherCreateRequest is the payload for teacher-initiated teacher creation.
type TeacherCreateRequest struct {
	Email        string              `json:"email" validate:"required,email,max=120"`
	Password     string              `json:"password" validate:"required,min=8,max=72"`
	FullName     string              `json:"fullName" validate:"required,max=120"`
	Title        models.TeacherTitle `json:"title" validate:"required,oneof=LECTURER ASSOCIATE_PROFESSOR PROFESSOR"`
	HireDate     *time.Time          `json:"hireDate"`
	DepartmentID int64               `json:"departmentId" validate:"required,gt=0"`
}

// TeacherUpdateRequest is the payload for updating another teacher's profile.
type TeacherUpdateRequest struct {
	FullName     string              `json:"fullName" validate:"required,max=120"`
	Title        models.TeacherTitle `json:"title" validate:"required,oneof=LECTURER ASSOCIATE_PROFESSOR PROFESSOR"`
	HireDate     *time.Time          `json:"hireDate"`
	DepartmentID int64               `json:"departmentId" validate:"required,gt=0"`
}

// TeacherUpdateMeRequest is the self-service subset.
type TeacherUpdateMeRequest struct {
	FullName string              `json:"fullName" validate:"required,max=120"`
	Title    models.TeacherTitle `json:"title" validate:"required,oneof=LECTURER ASSOCIATE_PROFESSOR PROFESSOR"`
}

// TeacherService manages the teacher directory.
type TeacherService struct {
	teachers    teacherRepository
	accounts    teacherAccountRepository
	departments authDepartmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewTeacherService constructs TeacherService.
func NewTeacherService(teachers teacherRepository, accounts teacherAccountRepository, departments authDepartmentReader, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{teachers: teachers, accounts: accounts, departments: departments, validator: validate, logger: logger}
}

// List returns all teachers with account and department context.
func (s *TeacherService) List(ctx context.Context) ([]models.TeacherDetail, error) {
	teachers, err := s.teachers.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, nil
}

// Get returns one teacher by id with full context.
func (s *TeacherService) Get(ctx context.Context, id int64) (*models.TeacherDetail, error) {
	detail, err := s.teachers.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Teacher not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return detail, nil
}

// Create registers a teacher account plus profile in one transaction.
// Only reachable by an already authenticated teacher; public sign-up stays
// students-only.
func (s *TeacherService) Create(ctx context.Context, req TeacherCreateRequest) (*models.TeacherDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
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

	employeeNo, err := generateUniqueCode(ctx, newEmployeeNo, s.teachers.ExistsByEmployeeNo)
	if err != nil {
		if errors.Is(err, errCodeExhausted) {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Could not generate unique employee number. Try again.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate employee number")
	}

	account := &models.Account{Email: email, PasswordHash: string(hash), Role: models.RoleTeacher, Enabled: true}
	teacher := &models.Teacher{
		EmployeeNo:   employeeNo,
		FullName:     strings.TrimSpace(req.FullName),
		Title:        req.Title,
		HireDate:     req.HireDate,
		DepartmentID: req.DepartmentID,
	}
	if err := s.teachers.CreateWithAccount(ctx, account, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}

	return s.Get(ctx, teacher.ID)
}

// Update overwrites the mutable teacher fields, re-resolving the department.
func (s *TeacherService) Update(ctx context.Context, id int64, req TeacherUpdateRequest) (*models.TeacherDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.findTeacher(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.departments.FindByID(ctx, req.DepartmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Department not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	teacher.FullName = strings.TrimSpace(req.FullName)
	teacher.Title = req.Title
	teacher.HireDate = req.HireDate
	teacher.DepartmentID = req.DepartmentID
	if err := s.teachers.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}

	return s.Get(ctx, teacher.ID)
}

// SetEnabled toggles the linked account. A teacher can never disable their
// own account; that is a business rule, not an authorization gate.
func (s *TeacherService) SetEnabled(ctx context.Context, id int64, enabled bool, actingAccountID int64) error {
	teacher, err := s.findTeacher(ctx, id)
	if err != nil {
		return err
	}

	if !enabled && teacher.AccountID == actingAccountID {
		return appErrors.Clone(appErrors.ErrBadRequest, "You cannot disable your own teacher account.")
	}

	if err := s.accounts.SetEnabled(ctx, teacher.AccountID, enabled, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle teacher account")
	}

	if !enabled {
		if err := s.accounts.RevokeAccountRefreshTokens(ctx, teacher.AccountID); err != nil {
			s.logger.Warn("failed to revoke refresh tokens for disabled teacher", zap.Int64("account_id", teacher.AccountID), zap.Error(err))
		}
	}
	return nil
}

// Disable is the idempotent soft-delete.
func (s *TeacherService) Disable(ctx context.Context, id int64, actingAccountID int64) error {
	return s.SetEnabled(ctx, id, false, actingAccountID)
}

// ResetPassword overwrites the target teacher's password hash. Administrative
// override: no old-password check. Disabled accounts are rejected.
func (s *TeacherService) ResetPassword(ctx context.Context, id int64, req models.PasswordResetRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}

	teacher, err := s.findTeacher(ctx, id)
	if err != nil {
		return err
	}
	return s.resetAccountPassword(ctx, teacher.AccountID, req.NewPassword)
}

// Me returns the teacher profile of the acting account.
func (s *TeacherService) Me(ctx context.Context, accountID int64) (*models.TeacherDetail, error) {
	teacher, err := s.teachers.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Teacher profile not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}
	return s.Get(ctx, teacher.ID)
}

// UpdateMe lets a teacher edit their own name and title only.
func (s *TeacherService) UpdateMe(ctx context.Context, accountID int64, req TeacherUpdateMeRequest) (*models.TeacherDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	teacher, err := s.teachers.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Teacher profile not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}

	teacher.FullName = strings.TrimSpace(req.FullName)
	teacher.Title = req.Title
	if err := s.teachers.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher profile")
	}

	return s.Get(ctx, teacher.ID)
}

// ProfileID resolves the teacher id linked to an account. Handlers use it to
// tie the authenticated principal to a teacher row; the id never rides in
// the token.
func (s *TeacherService) ProfileID(ctx context.Context, accountID int64) (int64, error) {
	teacher, err := s.teachers.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "Teacher profile not found.")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher profile")
	}
	return teacher.ID, nil
}

func (s *TeacherService) findTeacher(ctx context.Context, id int64) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Teacher not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

func (s *TeacherService) resetAccountPassword(ctx context.Context, accountID int64, newPassword string) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Account not found.")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if !account.Enabled {
		return appErrors.Clone(appErrors.ErrAccountDisabled, "Account is disabled.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, string(hash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset password")
	}

	// A reset invalidates all open sessions.
	if err := s.accounts.RevokeAccountRefreshTokens(ctx, account.ID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password reset", zap.Int64("account_id", account.ID), zap.Error(err))
	}
	return nil
}
