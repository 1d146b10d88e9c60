package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/universityofengineers/sms-api/internal/models"
	appErrors "github.com/universityofengineers/sms-api/pkg/errors"
)

type departmentRepository interface {
	List(ctx context.Context) ([]models.Department, error)
	FindByID(ctx context.Context, id int64) (*models.Department, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, department *models.Department) error
	Update(ctx context.Context, department *models.Department) error
	Delete(ctx context.Context, id int64) error
	CountReferences(ctx context.Context, id int64) (int, error)
}

// DepartmentUpsertRequest is the create/update payload.
type DepartmentUpsertRequest struct {
	Code string `json:"code" validate:"required,max=20"`
	Name string `json:"name" validate:"required,max=120"`
}

// DepartmentService manages the department directory.
type DepartmentService struct {
	repo      departmentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDepartmentService constructs DepartmentService.
func NewDepartmentService(repo departmentRepository, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{repo: repo, validator: validate, logger: logger}
}

// List returns all departments.
func (s *DepartmentService) List(ctx context.Context) ([]models.Department, error) {
	departments, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, nil
}

// Get returns one department by id.
func (s *DepartmentService) Get(ctx context.Context, id int64) (*models.Department, error) {
	department, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Department not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return department, nil
}

// Create registers a new department with a unique uppercased code.
func (s *DepartmentService) Create(ctx context.Context, req DepartmentUpsertRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.ExistsByCode(ctx, code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "Department code already exists.")
	}

	department := &models.Department{Code: code, Name: strings.TrimSpace(req.Name)}
	if err := s.repo.Create(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}
	return department, nil
}

// Update overwrites code and name. The code conflict check only fires when
// the code actually changes.
func (s *DepartmentService) Update(ctx context.Context, id int64, req DepartmentUpsertRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	department, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if department.Code != code {
		exists, err := s.repo.ExistsByCode(ctx, code)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department code")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "Department code already exists.")
		}
	}

	department.Code = code
	department.Name = strings.TrimSpace(req.Name)
	if err := s.repo.Update(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update department")
	}
	return department, nil
}

// Delete removes a department. Deletion is blocked while teachers, students
// or courses still reference it.
func (s *DepartmentService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	refs, err := s.repo.CountReferences(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department references")
	}
	if refs > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "Department is still referenced by teachers, students or courses.")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete department")
	}
	return nil
}
