package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universityofengineers/sms-api/internal/models"
	"github.com/universityofengineers/sms-api/internal/repository"
	appErrors "github.com/universityofengineers/sms-api/pkg/errors"
)

type fakeEnrollmentStore struct {
	enrollments map[int64]*models.Enrollment
	nextID      int64
	enrollErr   error
}

func newFakeEnrollmentStore() *fakeEnrollmentStore {
	return &fakeEnrollmentStore{enrollments: make(map[int64]*models.Enrollment), nextID: 1}
}

func (f *fakeEnrollmentStore) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	out := make([]models.EnrollmentDetail, 0, len(f.enrollments))
	for _, e := range f.enrollments {
		out = append(out, models.EnrollmentDetail{Enrollment: *e})
	}
	return out, nil
}

func (f *fakeEnrollmentStore) ListByStudent(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, e := range f.enrollments {
		if e.StudentID == studentID {
			out = append(out, models.EnrollmentDetail{Enrollment: *e})
		}
	}
	return out, nil
}

func (f *fakeEnrollmentStore) FindByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	e, ok := f.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (f *fakeEnrollmentStore) FindDetailByID(ctx context.Context, id int64) (*models.EnrollmentDetail, error) {
	e, ok := f.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.EnrollmentDetail{Enrollment: *e}, nil
}

func (f *fakeEnrollmentStore) Enroll(ctx context.Context, studentID, courseID int64) (*models.Enrollment, error) {
	if f.enrollErr != nil {
		return nil, f.enrollErr
	}
	for _, e := range f.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			switch e.Status {
			case models.EnrollmentStatusEnrolled:
				return nil, repository.ErrAlreadyEnrolled
			case models.EnrollmentStatusCompleted:
				return nil, repository.ErrCourseCompleted
			default:
				e.Status = models.EnrollmentStatusEnrolled
				e.Grade = nil
				copied := *e
				return &copied, nil
			}
		}
	}
	e := &models.Enrollment{ID: f.nextID, StudentID: studentID, CourseID: courseID, Status: models.EnrollmentStatusEnrolled, EnrolledAt: time.Now()}
	f.enrollments[e.ID] = e
	f.nextID++
	copied := *e
	return &copied, nil
}

func (f *fakeEnrollmentStore) Drop(ctx context.Context, id int64) error {
	e, ok := f.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusEnrolled {
		return repository.ErrNotActive
	}
	e.Status = models.EnrollmentStatusDropped
	return nil
}

func (f *fakeEnrollmentStore) SetGrade(ctx context.Context, id int64, grade string) error {
	e, ok := f.enrollments[id]
	if !ok || e.Status == models.EnrollmentStatusDropped {
		return repository.ErrDropped
	}
	e.Grade = &grade
	e.Status = models.EnrollmentStatusCompleted
	return nil
}

// staleEnrollmentStore answers FindByID from a fixed snapshot while writes
// hit the live rows, imitating a concurrent mutation landing between the
// service's read and its write.
type staleEnrollmentStore struct {
	*fakeEnrollmentStore
	snapshot models.Enrollment
}

func (s *staleEnrollmentStore) FindByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	copied := s.snapshot
	return &copied, nil
}

type fakeStudentReader struct {
	students map[int64]*models.Student
}

func (f *fakeStudentReader) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	s, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (f *fakeStudentReader) FindByAccountID(ctx context.Context, accountID int64) (*models.Student, error) {
	for _, s := range f.students {
		if s.AccountID == accountID {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

type fakeCourseReader struct {
	courses map[int64]*models.Course
}

func (f *fakeCourseReader) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

type fakeTeacherReader struct {
	teachers map[int64]*models.Teacher
}

func (f *fakeTeacherReader) FindByAccountID(ctx context.Context, accountID int64) (*models.Teacher, error) {
	for _, t := range f.teachers {
		if t.AccountID == accountID {
			return t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func newEnrollmentFixture() (*EnrollmentService, *fakeEnrollmentStore, *fakeStudentReader, *fakeCourseReader, *fakeTeacherReader) {
	store := newFakeEnrollmentStore()
	students := &fakeStudentReader{students: map[int64]*models.Student{
		1: {ID: 1, AccountID: 100, StudentNo: "UE-2026-000001", FullName: "Ada Amaro", Status: models.StudentStatusActive, DepartmentID: 1},
		2: {ID: 2, AccountID: 101, StudentNo: "UE-2026-000002", FullName: "Bora Kemal", Status: models.StudentStatusSuspended, DepartmentID: 1},
	}}
	courses := &fakeCourseReader{courses: map[int64]*models.Course{
		10: {ID: 10, Code: "CS-101", Title: "Intro to Programming", Credit: 6, Capacity: 2, DepartmentID: 1, TeacherID: 7},
	}}
	teachers := &fakeTeacherReader{teachers: map[int64]*models.Teacher{
		7: {ID: 7, AccountID: 200, EmployeeNo: "UE-T-000007", FullName: "Dr. Chen", Title: models.TitleProfessor, DepartmentID: 1},
	}}
	svc := NewEnrollmentService(store, students, courses, teachers, nil, nil, nil)
	return svc, store, students, courses, teachers
}

func assertAppError(t *testing.T, err error, status int, message string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, status, appErr.Status)
	assert.Equal(t, message, appErr.Message)
}

func TestEnrollMeCreatesEnrollment(t *testing.T) {
	svc, _, _, _, _ := newEnrollmentFixture()

	detail, err := svc.EnrollMe(context.Background(), 100, EnrollMeRequest{CourseID: 10})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, detail.Status)
	assert.Equal(t, int64(1), detail.StudentID)
	assert.Equal(t, int64(10), detail.CourseID)
}

func TestEnrollMeRequiresActiveStudent(t *testing.T) {
	svc, _, _, _, _ := newEnrollmentFixture()

	_, err := svc.EnrollMe(context.Background(), 101, EnrollMeRequest{CourseID: 10})
	assertAppError(t, err, 403, "Only ACTIVE students can enroll.")
}

func TestEnrollMeUnknownCourse(t *testing.T) {
	svc, _, _, _, _ := newEnrollmentFixture()

	_, err := svc.EnrollMe(context.Background(), 100, EnrollMeRequest{CourseID: 999})
	assertAppError(t, err, 404, "Course not found.")
}

func TestEnrollMeMissingProfile(t *testing.T) {
	svc, _, _, _, _ := newEnrollmentFixture()

	_, err := svc.EnrollMe(context.Background(), 999, EnrollMeRequest{CourseID: 10})
	assertAppError(t, err, 404, "Student profile not found.")
}

func TestEnrollMeRejectsDuplicate(t *testing.T) {
	svc, _, _, _, _ := newEnrollmentFixture()

	_, err := svc.EnrollMe(context.Background(), 100, EnrollMeRequest{CourseID: 10})
	require.NoError(t, err)

	_, err = svc.EnrollMe(context.Background(), 100, EnrollMeRequest{CourseID: 10})
	assertAppError(t, err, 400, "Already enrolled in this course.")
}

func TestEnrollMeRejectsCompletedCourse(t *testing.T) {
	svc, store, _, _, _ := newEnrollmentFixture()
	grade := "A"
	store.enrollments[1] = &models.Enrollment{ID: 1, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusCompleted, Grade: &grade}

	_, err := svc.EnrollMe(context.Background(), 100, EnrollMeRequest{CourseID: 10})
	assertAppError(t, err, 400, "Course already completed; re-enrollment is not allowed.")
}

func TestEnrollMeReportsFullCourse(t *testing.T) {
	svc, store, _, _, _ := newEnrollmentFixture()
	store.enrollErr = repository.ErrCapacityReached

	_, err := svc.EnrollMe(context.Background(), 100, EnrollMeRequest{CourseID: 10})
	assertAppError(t, err, 400, "Course capacity reached.")
}

func TestEnrollMeReactivatesDroppedRowAndClearsGrade(t *testing.T) {
	svc, store, _, _, _ := newEnrollmentFixture()
	grade := "C"
	store.enrollments[5] = &models.Enrollment{ID: 5, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusDropped, Grade: &grade}
	store.nextID = 6

	detail, err := svc.EnrollMe(context.Background(), 100, EnrollMeRequest{CourseID: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(5), detail.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, detail.Status)
	assert.Nil(t, detail.Grade)
	assert.Len(t, store.enrollments, 1)
}

func TestTeacherEnrollOwnCourseOnly(t *testing.T) {
	svc, _, _, courses, teachers := newEnrollmentFixture()
	teachers.teachers[8] = &models.Teacher{ID: 8, AccountID: 201, EmployeeNo: "UE-T-000008", FullName: "Dr. Ucar", Title: models.TitleLecturer, DepartmentID: 2}
	_ = courses

	_, err := svc.TeacherEnroll(context.Background(), 201, TeacherEnrollRequest{StudentID: 1, CourseID: 10})
	assertAppError(t, err, 403, "You can only enroll students into your own courses.")
}

func TestTeacherEnrollSkipsActiveGuard(t *testing.T) {
	svc, _, _, _, _ := newEnrollmentFixture()

	detail, err := svc.TeacherEnroll(context.Background(), 200, TeacherEnrollRequest{StudentID: 2, CourseID: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), detail.StudentID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, detail.Status)
}

func TestTeacherEnrollUnknownStudent(t *testing.T) {
	svc, _, _, _, _ := newEnrollmentFixture()

	_, err := svc.TeacherEnroll(context.Background(), 200, TeacherEnrollRequest{StudentID: 999, CourseID: 10})
	assertAppError(t, err, 404, "Student not found.")
}

func TestDropMineMarksDropped(t *testing.T) {
	svc, store, _, _, _ := newEnrollmentFixture()
	store.enrollments[3] = &models.Enrollment{ID: 3, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusEnrolled}

	detail, err := svc.DropMine(context.Background(), 100, 3)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, detail.Status)
}

func TestDropMineRejectsForeignEnrollment(t *testing.T) {
	svc, store, _, _, _ := newEnrollmentFixture()
	store.enrollments[3] = &models.Enrollment{ID: 3, StudentID: 2, CourseID: 10, Status: models.EnrollmentStatusEnrolled}

	_, err := svc.DropMine(context.Background(), 100, 3)
	assertAppError(t, err, 403, "You can only drop your own enrollments.")
}

func TestDropMineRejectsInactiveEnrollment(t *testing.T) {
	svc, store, _, _, _ := newEnrollmentFixture()
	store.enrollments[3] = &models.Enrollment{ID: 3, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusDropped}

	_, err := svc.DropMine(context.Background(), 100, 3)
	assertAppError(t, err, 400, "Enrollment is not active.")
}

func TestDropMineRejectsRowDroppedAfterRead(t *testing.T) {
	svc, store, students, courses, teachers := newEnrollmentFixture()
	store.enrollments[3] = &models.Enrollment{ID: 3, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusDropped}
	racy := &staleEnrollmentStore{
		fakeEnrollmentStore: store,
		snapshot:            models.Enrollment{ID: 3, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusEnrolled},
	}
	svc = NewEnrollmentService(racy, students, courses, teachers, nil, nil, nil)

	_, err := svc.DropMine(context.Background(), 100, 3)
	assertAppError(t, err, 400, "Enrollment is not active.")
	assert.Equal(t, models.EnrollmentStatusDropped, store.enrollments[3].Status)
}

func TestSetGradeNormalizesAndCompletes(t *testing.T) {
	svc, store, _, _, _ := newEnrollmentFixture()
	store.enrollments[3] = &models.Enrollment{ID: 3, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusEnrolled}

	detail, err := svc.SetGrade(context.Background(), 200, 3, GradeUpdateRequest{Grade: " a- "})
	require.NoError(t, err)
	require.NotNil(t, detail.Grade)
	assert.Equal(t, "A-", *detail.Grade)
	assert.Equal(t, models.EnrollmentStatusCompleted, detail.Status)
}

func TestSetGradeOverwritesCompleted(t *testing.T) {
	svc, store, _, _, _ := newEnrollmentFixture()
	grade := "B"
	store.enrollments[3] = &models.Enrollment{ID: 3, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusCompleted, Grade: &grade}

	detail, err := svc.SetGrade(context.Background(), 200, 3, GradeUpdateRequest{Grade: "A"})
	require.NoError(t, err)
	assert.Equal(t, "A", *detail.Grade)
	assert.Equal(t, models.EnrollmentStatusCompleted, detail.Status)
}

func TestSetGradeRejectsDropped(t *testing.T) {
	svc, store, _, _, _ := newEnrollmentFixture()
	store.enrollments[3] = &models.Enrollment{ID: 3, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusDropped}

	_, err := svc.SetGrade(context.Background(), 200, 3, GradeUpdateRequest{Grade: "A"})
	assertAppError(t, err, 400, "Cannot grade a dropped enrollment.")
}

func TestSetGradeRejectsRowDroppedAfterRead(t *testing.T) {
	svc, store, students, courses, teachers := newEnrollmentFixture()
	store.enrollments[3] = &models.Enrollment{ID: 3, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusDropped}
	racy := &staleEnrollmentStore{
		fakeEnrollmentStore: store,
		snapshot:            models.Enrollment{ID: 3, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusEnrolled},
	}
	svc = NewEnrollmentService(racy, students, courses, teachers, nil, nil, nil)

	_, err := svc.SetGrade(context.Background(), 200, 3, GradeUpdateRequest{Grade: "A"})
	assertAppError(t, err, 400, "Cannot grade a dropped enrollment.")
	assert.Nil(t, store.enrollments[3].Grade)
	assert.Equal(t, models.EnrollmentStatusDropped, store.enrollments[3].Status)
}

func TestSetGradeForeignCourse(t *testing.T) {
	svc, store, _, _, teachers := newEnrollmentFixture()
	teachers.teachers[8] = &models.Teacher{ID: 8, AccountID: 201, EmployeeNo: "UE-T-000008", FullName: "Dr. Ucar", Title: models.TitleLecturer, DepartmentID: 2}
	store.enrollments[3] = &models.Enrollment{ID: 3, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusEnrolled}

	_, err := svc.SetGrade(context.Background(), 201, 3, GradeUpdateRequest{Grade: "A"})
	assertAppError(t, err, 403, "You can only grade enrollments for your own courses.")
}

func TestMyEnrollmentsScopedToStudent(t *testing.T) {
	svc, store, _, _, _ := newEnrollmentFixture()
	store.enrollments[1] = &models.Enrollment{ID: 1, StudentID: 1, CourseID: 10, Status: models.EnrollmentStatusEnrolled}
	store.enrollments[2] = &models.Enrollment{ID: 2, StudentID: 2, CourseID: 10, Status: models.EnrollmentStatusEnrolled}

	mine, err := svc.MyEnrollments(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, int64(1), mine[0].StudentID)
}
