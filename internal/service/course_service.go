package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/universityofengineers/sms-api/internal/models"
	appErrors "github.com/universityofengineers/sms-api/pkg/errors"
)

const (
	defaultCourseCapacity = 60

	courseListCacheKey    = "courses:list"
	courseCacheKeyPattern = "courses:*"
	courseCacheKeyFmt     = "courses:id:%d"
)

type courseRepository interface {
	List(ctx context.Context) ([]models.CourseDetail, error)
	FindByID(ctx context.Context, id int64) (*models.Course, error)
	FindDetailByID(ctx context.Context, id int64) (*models.CourseDetail, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	CountEnrolled(ctx context.Context, courseID int64) (int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id int64) error
}

type courseTeacherReader interface {
	FindByID(ctx context.Context, id int64) (*models.Teacher, error)
	FindByAccountID(ctx context.Context, accountID int64) (*models.Teacher, error)
}

// CourseUpsertRequest is the create/update payload.
type CourseUpsertRequest struct {
	Code         string  `json:"code" validate:"required,max=30"`
	Title        string  `json:"title" validate:"required,max=160"`
	Credit       float64 `json:"credit" validate:"required,gt=0"`
	Capacity     *int    `json:"capacity" validate:"omitempty,gt=0"`
	DepartmentID int64   `json:"departmentId" validate:"required,gt=0"`
	TeacherID    *int64  `json:"teacherId" validate:"omitempty,gt=0"`
}

// CourseService manages the course catalog. Writes are department-scoped to
// the acting teacher; reads are global and served cache-aside when Redis is
// available.
type CourseService struct {
	courses     courseRepository
	teachers    courseTeacherReader
	departments authDepartmentReader
	cache       *CacheService
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(courses courseRepository, teachers courseTeacherReader, departments authDepartmentReader, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{courses: courses, teachers: teachers, departments: departments, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns the whole catalog. Listing is global: any authenticated user
// sees every course regardless of department.
func (s *CourseService) List(ctx context.Context) ([]models.CourseDetail, error) {
	var cached []models.CourseDetail
	if hit, err := s.cache.Get(ctx, courseListCacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	courses, err := s.courses.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	if err := s.cache.Set(ctx, courseListCacheKey, courses, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache course list", zap.Error(err))
	}
	return courses, nil
}

// Get returns one course with enrolled count.
func (s *CourseService) Get(ctx context.Context, id int64) (*models.CourseDetail, error) {
	key := fmt.Sprintf(courseCacheKeyFmt, id)
	var cached models.CourseDetail
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	detail, err := s.courses.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Course not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if err := s.cache.Set(ctx, key, detail, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache course", zap.Int64("course_id", id), zap.Error(err))
	}
	return detail, nil
}

// Create adds a course. The acting teacher must belong to the target
// department; an explicitly assigned teacher must belong to it too, but that
// failure is a data consistency error, not an authorization one.
func (s *CourseService) Create(ctx context.Context, actingAccountID int64, req CourseUpsertRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	acting, err := s.actingTeacher(ctx, actingAccountID)
	if err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.courses.ExistsByCode(ctx, code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "Course code already exists.")
	}

	if _, err := s.departments.FindByID(ctx, req.DepartmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Department not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	if acting.DepartmentID != req.DepartmentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You can only create courses within your own department.")
	}

	teacherID, err := s.resolveAssignedTeacher(ctx, acting, req.TeacherID, req.DepartmentID)
	if err != nil {
		return nil, err
	}

	capacity := defaultCourseCapacity
	if req.Capacity != nil {
		capacity = *req.Capacity
	}

	course := &models.Course{
		Code:         code,
		Title:        strings.TrimSpace(req.Title),
		Credit:       req.Credit,
		Capacity:     capacity,
		DepartmentID: req.DepartmentID,
		TeacherID:    teacherID,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCache(ctx)
	return s.Get(ctx, course.ID)
}

// Update rewrites a course. The acting teacher must belong to the course's
// current department to touch it at all, and to the new department when
// moving it. Capacity can never drop below the current enrolled count.
func (s *CourseService) Update(ctx context.Context, actingAccountID int64, id int64, req CourseUpsertRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	acting, err := s.actingTeacher(ctx, actingAccountID)
	if err != nil {
		return nil, err
	}

	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	if acting.DepartmentID != course.DepartmentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You can only update courses in your own department.")
	}
	if req.DepartmentID != course.DepartmentID && acting.DepartmentID != req.DepartmentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You can only move/update courses within your own department.")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code != course.Code {
		exists, err := s.courses.ExistsByCode(ctx, code)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "Course code already exists.")
		}
	}

	if _, err := s.departments.FindByID(ctx, req.DepartmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Department not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	teacherID, err := s.resolveAssignedTeacher(ctx, acting, req.TeacherID, req.DepartmentID)
	if err != nil {
		return nil, err
	}

	capacity := course.Capacity
	if req.Capacity != nil {
		capacity = *req.Capacity
	}
	enrolled, err := s.courses.CountEnrolled(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if capacity < enrolled {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("Capacity cannot be less than current enrolled count (%d).", enrolled))
	}

	course.Code = code
	course.Title = strings.TrimSpace(req.Title)
	course.Credit = req.Credit
	course.Capacity = capacity
	course.DepartmentID = req.DepartmentID
	course.TeacherID = teacherID
	if err := s.courses.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCache(ctx)
	return s.Get(ctx, course.ID)
}

// Delete removes a course and all of its enrollments.
func (s *CourseService) Delete(ctx context.Context, actingAccountID int64, id int64) error {
	acting, err := s.actingTeacher(ctx, actingAccountID)
	if err != nil {
		return err
	}

	course, err := s.findCourse(ctx, id)
	if err != nil {
		return err
	}

	if acting.DepartmentID != course.DepartmentID {
		return appErrors.Clone(appErrors.ErrForbidden, "You can only delete courses in your own department.")
	}

	if err := s.courses.Delete(ctx, course.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	s.invalidateCache(ctx)
	return nil
}

func (s *CourseService) actingTeacher(ctx context.Context, accountID int64) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Teacher profile not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher profile")
	}
	return teacher, nil
}

func (s *CourseService) findCourse(ctx context.Context, id int64) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Course not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// resolveAssignedTeacher returns the instructor of record. Omitted means the
// acting teacher assigns themselves.
func (s *CourseService) resolveAssignedTeacher(ctx context.Context, acting *models.Teacher, teacherID *int64, departmentID int64) (int64, error) {
	if teacherID == nil {
		return acting.ID, nil
	}

	assigned := acting
	if *teacherID != acting.ID {
		var err error
		assigned, err = s.teachers.FindByID(ctx, *teacherID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, appErrors.Clone(appErrors.ErrNotFound, "Teacher not found.")
			}
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
		}
	}
	if assigned.DepartmentID != departmentID {
		return 0, appErrors.Clone(appErrors.ErrBadRequest, "Assigned teacher must belong to the same department as the course.")
	}
	return assigned.ID, nil
}

func (s *CourseService) invalidateCache(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, courseCacheKeyPattern); err != nil {
		s.logger.Warn("failed to invalidate course cache", zap.Error(err))
	}
}
