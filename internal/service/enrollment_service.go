package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/universityofengineers/sms-api/internal/models"
	"github.com/universityofengineers/sms-api/internal/repository"
	appErrors "github.com/universityofengineers/sms-api/pkg/errors"
)

type enrollmentRepository interface {
	ListAll(ctx context.Context) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error)
	FindByID(ctx context.Context, id int64) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id int64) (*models.EnrollmentDetail, error)
	Enroll(ctx context.Context, studentID, courseID int64) (*models.Enrollment, error)
	Drop(ctx context.Context, id int64) error
	SetGrade(ctx context.Context, id int64, grade string) error
}

type enrollmentStudentReader interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	FindByAccountID(ctx context.Context, accountID int64) (*models.Student, error)
}

type enrollmentCourseReader interface {
	FindByID(ctx context.Context, id int64) (*models.Course, error)
}

// EnrollMeRequest is the student self-enrollment payload.
type EnrollMeRequest struct {
	CourseID int64 `json:"courseId" validate:"required,gt=0"`
}

// TeacherEnrollRequest is the teacher-initiated enrollment payload.
type TeacherEnrollRequest struct {
	StudentID int64 `json:"studentId" validate:"required,gt=0"`
	CourseID  int64 `json:"courseId" validate:"required,gt=0"`
}

// GradeUpdateRequest assigns a grade to an enrollment.
type GradeUpdateRequest struct {
	Grade string `json:"grade" validate:"required,max=5"`
}

// EnrollmentService runs the enrollment state machine. Per (student, course)
// pair: ENROLLED moves to COMPLETED or DROPPED, DROPPED moves back to
// ENROLLED, COMPLETED is terminal. The capacity check and the row write are
// atomic inside the repository transaction.
type EnrollmentService struct {
	enrollments enrollmentRepository
	students    enrollmentStudentReader
	courses     enrollmentCourseReader
	teachers    authTeacherReader
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(enrollments enrollmentRepository, students enrollmentStudentReader, courses enrollmentCourseReader, teachers authTeacherReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{enrollments: enrollments, students: students, courses: courses, teachers: teachers, metrics: metrics, validator: validate, logger: logger}
}

// ListAll returns every enrollment. Teacher view, unscoped.
func (s *EnrollmentService) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.enrollments.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// MyEnrollments returns the acting student's enrollments.
func (s *EnrollmentService) MyEnrollments(ctx context.Context, accountID int64) ([]models.EnrollmentDetail, error) {
	student, err := s.actingStudent(ctx, accountID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// EnrollMe enrolls the acting student into a course. Self-enrollment
// requires ACTIVE status.
func (s *EnrollmentService) EnrollMe(ctx context.Context, accountID int64, req EnrollMeRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.actingStudent(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.enroll(ctx, student.ID, req.CourseID, true)
}

// TeacherEnroll enrolls a student on behalf of the instructor of record. The
// ACTIVE guard is skipped: a teacher may enroll a suspended student
// administratively.
func (s *EnrollmentService) TeacherEnroll(ctx context.Context, actingAccountID int64, req TeacherEnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	acting, err := s.actingTeacher(ctx, actingAccountID)
	if err != nil {
		return nil, err
	}

	course, err := s.findCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != acting.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You can only enroll students into your own courses.")
	}

	return s.enroll(ctx, req.StudentID, req.CourseID, false)
}

// DropMine drops the acting student's own ENROLLED enrollment. Dropping a
// COMPLETED or already-DROPPED one is rejected, not idempotent.
func (s *EnrollmentService) DropMine(ctx context.Context, accountID int64, enrollmentID int64) (*models.EnrollmentDetail, error) {
	student, err := s.actingStudent(ctx, accountID)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.findEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.StudentID != student.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You can only drop your own enrollments.")
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Enrollment is not active.")
	}

	if err := s.enrollments.Drop(ctx, enrollment.ID); err != nil {
		if errors.Is(err, repository.ErrNotActive) {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Enrollment is not active.")
		}
		s.metrics.RecordEnrollment("drop", "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}

	s.metrics.RecordEnrollment("drop", "ok")
	return s.detail(ctx, enrollment.ID)
}

// SetGrade assigns a grade. Grading an ENROLLED enrollment completes it;
// grading a COMPLETED one overwrites the grade; DROPPED is rejected.
func (s *EnrollmentService) SetGrade(ctx context.Context, actingAccountID int64, enrollmentID int64, req GradeUpdateRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	acting, err := s.actingTeacher(ctx, actingAccountID)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.findEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	course, err := s.findCourse(ctx, enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != acting.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You can only grade enrollments for your own courses.")
	}

	if enrollment.Status == models.EnrollmentStatusDropped {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Cannot grade a dropped enrollment.")
	}

	grade := strings.ToUpper(strings.TrimSpace(req.Grade))
	if err := s.enrollments.SetGrade(ctx, enrollment.ID, grade); err != nil {
		if errors.Is(err, repository.ErrDropped) {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Cannot grade a dropped enrollment.")
		}
		s.metrics.RecordEnrollment("grade", "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set grade")
	}

	s.metrics.RecordEnrollment("grade", "ok")
	return s.detail(ctx, enrollment.ID)
}

// enroll is the shared state machine entry for self- and teacher-initiated
// enrollment. The repository decides insert vs row reactivation under a
// course row lock and reports terminal outcomes as sentinel errors.
func (s *EnrollmentService) enroll(ctx context.Context, studentID, courseID int64, initiatedByStudent bool) (*models.EnrollmentDetail, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if initiatedByStudent && student.Status != models.StudentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only ACTIVE students can enroll.")
	}

	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}

	enrollment, err := s.enrollments.Enroll(ctx, student.ID, courseID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyEnrolled):
			s.metrics.RecordEnrollment("enroll", "already_enrolled")
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Already enrolled in this course.")
		case errors.Is(err, repository.ErrCourseCompleted):
			s.metrics.RecordEnrollment("enroll", "completed")
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Course already completed; re-enrollment is not allowed.")
		case errors.Is(err, repository.ErrCapacityReached):
			s.metrics.RecordEnrollment("enroll", "capacity")
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Course capacity reached.")
		default:
			s.metrics.RecordEnrollment("enroll", "error")
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
		}
	}

	s.metrics.RecordEnrollment("enroll", "ok")
	return s.detail(ctx, enrollment.ID)
}

func (s *EnrollmentService) detail(ctx context.Context, id int64) (*models.EnrollmentDetail, error) {
	detail, err := s.enrollments.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

func (s *EnrollmentService) findEnrollment(ctx context.Context, id int64) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Enrollment not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) findCourse(ctx context.Context, id int64) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Course not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *EnrollmentService) actingStudent(ctx context.Context, accountID int64) (*models.Student, error) {
	student, err := s.students.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student profile not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student profile")
	}
	return student, nil
}

func (s *EnrollmentService) actingTeacher(ctx context.Context, accountID int64) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Teacher profile not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher profile")
	}
	return teacher, nil
}
