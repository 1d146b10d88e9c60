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

type studentRepository interface {
	List(ctx context.Context) ([]models.StudentDetail, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	FindDetailByID(ctx context.Context, id int64) (*models.StudentDetail, error)
	FindByAccountID(ctx context.Context, accountID int64) (*models.Student, error)
	ExistsByStudentNo(ctx context.Context, studentNo string) (bool, error)
	CreateWithAccount(ctx context.Context, account *models.Account, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	UpdateStatus(ctx context.Context, id int64, status models.StudentStatus) error
	UpdateContact(ctx context.Context, id int64, phone, address *string) error
}

// StudentCreateRequest is the payload for teacher-initiated student creation.
type StudentCreateRequest struct {
	Email        string     `json:"email" validate:"required,email,max=120"`
	Password     string     `json:"password" validate:"required,min=8,max=72"`
	FullName     string     `json:"fullName" validate:"required,max=120"`
	Phone        *string    `json:"phone" validate:"omitempty,max=30"`
	Address      *string    `json:"address" validate:"omitempty,max=255"`
	DateOfBirth  *time.Time `json:"dateOfBirth"`
	DepartmentID int64      `json:"departmentId" validate:"required,gt=0"`
}

// StudentUpdateRequest is the payload for the teacher-side full update.
type StudentUpdateRequest struct {
	FullName     string     `json:"fullName" validate:"required,max=120"`
	Phone        *string    `json:"phone" validate:"omitempty,max=30"`
	Address      *string    `json:"address" validate:"omitempty,max=255"`
	DateOfBirth  *time.Time `json:"dateOfBirth"`
	DepartmentID int64      `json:"departmentId" validate:"required,gt=0"`
}

// StudentStatusUpdateRequest changes the academic status only.
type StudentStatusUpdateRequest struct {
	Status models.StudentStatus `json:"status" validate:"required,oneof=ACTIVE SUSPENDED DROPPED"`
}

// StudentUpdateMeRequest is the self-service contact subset.
type StudentUpdateMeRequest struct {
	Phone   *string `json:"phone" validate:"omitempty,max=30"`
	Address *string `json:"address" validate:"omitempty,max=255"`
}

// StudentService manages the student directory.
type StudentService struct {
	students    studentRepository
	accounts    teacherAccountRepository
	departments authDepartmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(students studentRepository, accounts teacherAccountRepository, departments authDepartmentReader, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{students: students, accounts: accounts, departments: departments, validator: validate, logger: logger}
}

// List returns all students with account and department context.
func (s *StudentService) List(ctx context.Context) ([]models.StudentDetail, error) {
	students, err := s.students.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// Get returns one student by id with full context.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.StudentDetail, error) {
	detail, err := s.students.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return detail, nil
}

// Create registers a student on behalf of a teacher. Same atomic
// account+profile creation as self-registration.
func (s *StudentService) Create(ctx context.Context, req StudentCreateRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
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
		DateOfBirth:  req.DateOfBirth,
		Status:       models.StudentStatusActive,
		DepartmentID: req.DepartmentID,
	}
	if err := s.students.CreateWithAccount(ctx, account, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	return s.Get(ctx, student.ID)
}

// Update overwrites the teacher-managed fields, re-resolving the department.
func (s *StudentService) Update(ctx context.Context, id int64, req StudentUpdateRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.findStudent(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.departments.FindByID(ctx, req.DepartmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Department not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	student.FullName = strings.TrimSpace(req.FullName)
	student.Phone = trimmed(req.Phone)
	student.Address = trimmed(req.Address)
	student.DateOfBirth = req.DateOfBirth
	student.DepartmentID = req.DepartmentID
	if err := s.students.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	return s.Get(ctx, student.ID)
}

// UpdateStatus changes the academic status only.
func (s *StudentService) UpdateStatus(ctx context.Context, id int64, req StudentStatusUpdateRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	student, err := s.findStudent(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.students.UpdateStatus(ctx, student.ID, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student status")
	}
	return s.Get(ctx, student.ID)
}

// Disable soft-deletes a student: the account is disabled and an ACTIVE
// status is forced to DROPPED. Idempotent.
func (s *StudentService) Disable(ctx context.Context, id int64) error {
	student, err := s.findStudent(ctx, id)
	if err != nil {
		return err
	}

	if err := s.accounts.SetEnabled(ctx, student.AccountID, false, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to disable student account")
	}

	if student.Status == models.StudentStatusActive {
		if err := s.students.UpdateStatus(ctx, student.ID, models.StudentStatusDropped); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student status")
		}
	}

	if err := s.accounts.RevokeAccountRefreshTokens(ctx, student.AccountID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens for disabled student", zap.Int64("account_id", student.AccountID), zap.Error(err))
	}
	return nil
}

// ResetPassword overwrites the target student's password hash. Administrative
// override: no old-password check. Disabled accounts are rejected.
func (s *StudentService) ResetPassword(ctx context.Context, id int64, req models.PasswordResetRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}

	student, err := s.findStudent(ctx, id)
	if err != nil {
		return err
	}
	return s.resetAccountPassword(ctx, student.AccountID, req.NewPassword)
}

// Me returns the student profile of the acting account.
func (s *StudentService) Me(ctx context.Context, accountID int64) (*models.StudentDetail, error) {
	student, err := s.students.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student profile not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return s.Get(ctx, student.ID)
}

// UpdateMe lets a student edit their own contact fields only.
func (s *StudentService) UpdateMe(ctx context.Context, accountID int64, req StudentUpdateMeRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	student, err := s.students.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student profile not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	if err := s.students.UpdateContact(ctx, student.ID, trimmed(req.Phone), trimmed(req.Address)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student profile")
	}
	return s.Get(ctx, student.ID)
}

// ProfileID resolves the student id linked to an account.
func (s *StudentService) ProfileID(ctx context.Context, accountID int64) (int64, error) {
	student, err := s.students.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "Student profile not found.")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student profile")
	}
	return student.ID, nil
}

func (s *StudentService) findStudent(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) resetAccountPassword(ctx context.Context, accountID int64, newPassword string) error {
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

	if err := s.accounts.RevokeAccountRefreshTokens(ctx, account.ID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password reset", zap.Int64("account_id", account.ID), zap.Error(err))
	}
	return nil
}
