package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universityofengineers/sms-api/internal/models"
)

type fakeCourseStore struct {
	courses  map[int64]*models.Course
	enrolled map[int64]int
	nextID   int64
	deleted  []int64
}

func newFakeCourseStore() *fakeCourseStore {
	return &fakeCourseStore{courses: make(map[int64]*models.Course), enrolled: make(map[int64]int), nextID: 1}
}

func (f *fakeCourseStore) List(ctx context.Context) ([]models.CourseDetail, error) {
	out := make([]models.CourseDetail, 0, len(f.courses))
	for _, c := range f.courses {
		out = append(out, models.CourseDetail{Course: *c, EnrolledCount: f.enrolled[c.ID]})
	}
	return out, nil
}

func (f *fakeCourseStore) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCourseStore) FindDetailByID(ctx context.Context, id int64) (*models.CourseDetail, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.CourseDetail{Course: *c, EnrolledCount: f.enrolled[id]}, nil
}

func (f *fakeCourseStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	for _, c := range f.courses {
		if c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCourseStore) CountEnrolled(ctx context.Context, courseID int64) (int, error) {
	return f.enrolled[courseID], nil
}

func (f *fakeCourseStore) Create(ctx context.Context, course *models.Course) error {
	course.ID = f.nextID
	f.nextID++
	copied := *course
	f.courses[course.ID] = &copied
	return nil
}

func (f *fakeCourseStore) Update(ctx context.Context, course *models.Course) error {
	if _, ok := f.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *course
	f.courses[course.ID] = &copied
	return nil
}

func (f *fakeCourseStore) Delete(ctx context.Context, id int64) error {
	if _, ok := f.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.courses, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCourseTeachers struct {
	teachers map[int64]*models.Teacher
}

func (f *fakeCourseTeachers) FindByID(ctx context.Context, id int64) (*models.Teacher, error) {
	t, ok := f.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeCourseTeachers) FindByAccountID(ctx context.Context, accountID int64) (*models.Teacher, error) {
	for _, t := range f.teachers {
		if t.AccountID == accountID {
			return t, nil
		}
	}
	return nil, sql.ErrNoRows
}

type fakeDepartmentReader struct {
	departments map[int64]*models.Department
}

func (f *fakeDepartmentReader) FindByID(ctx context.Context, id int64) (*models.Department, error) {
	d, ok := f.departments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return d, nil
}

func newCourseFixture() (*CourseService, *fakeCourseStore, *fakeCourseTeachers) {
	store := newFakeCourseStore()
	teachers := &fakeCourseTeachers{teachers: map[int64]*models.Teacher{
		7: {ID: 7, AccountID: 200, EmployeeNo: "UE-T-000007", FullName: "Dr. Chen", Title: models.TitleProfessor, DepartmentID: 1},
		8: {ID: 8, AccountID: 201, EmployeeNo: "UE-T-000008", FullName: "Dr. Ucar", Title: models.TitleLecturer, DepartmentID: 2},
	}}
	departments := &fakeDepartmentReader{departments: map[int64]*models.Department{
		1: {ID: 1, Code: "CENG", Name: "Computer Engineering"},
		2: {ID: 2, Code: "EE", Name: "Electrical Engineering"},
	}}
	svc := NewCourseService(store, teachers, departments, nil, 0, nil, nil)
	return svc, store, teachers
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestCourseCreateDefaultsCapacityAndSelfAssigns(t *testing.T) {
	svc, store, _ := newCourseFixture()

	detail, err := svc.Create(context.Background(), 200, CourseUpsertRequest{
		Code: "cs-101", Title: "  Intro to Programming ", Credit: 6, DepartmentID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "CS-101", detail.Code)
	assert.Equal(t, "Intro to Programming", detail.Title)
	assert.Equal(t, 60, detail.Capacity)
	assert.Equal(t, int64(7), detail.TeacherID)
	assert.Len(t, store.courses, 1)
}

func TestCourseCreateRejectsForeignDepartment(t *testing.T) {
	svc, _, _ := newCourseFixture()

	_, err := svc.Create(context.Background(), 200, CourseUpsertRequest{
		Code: "EE-201", Title: "Circuits", Credit: 5, DepartmentID: 2,
	})
	assertAppError(t, err, 403, "You can only create courses within your own department.")
}

func TestCourseCreateRejectsDuplicateCode(t *testing.T) {
	svc, store, _ := newCourseFixture()
	store.courses[1] = &models.Course{ID: 1, Code: "CS-101", DepartmentID: 1, TeacherID: 7}
	store.nextID = 2

	_, err := svc.Create(context.Background(), 200, CourseUpsertRequest{
		Code: "CS-101", Title: "Intro", Credit: 6, DepartmentID: 1,
	})
	assertAppError(t, err, 409, "Course code already exists.")
}

func TestCourseCreateRejectsCrossDepartmentTeacher(t *testing.T) {
	svc, _, _ := newCourseFixture()

	_, err := svc.Create(context.Background(), 200, CourseUpsertRequest{
		Code: "CS-102", Title: "Data Structures", Credit: 6, DepartmentID: 1, TeacherID: int64Ptr(8),
	})
	assertAppError(t, err, 400, "Assigned teacher must belong to the same department as the course.")
}

func TestCourseCreateUnknownDepartment(t *testing.T) {
	svc, _, _ := newCourseFixture()

	_, err := svc.Create(context.Background(), 200, CourseUpsertRequest{
		Code: "CS-102", Title: "Data Structures", Credit: 6, DepartmentID: 99,
	})
	assertAppError(t, err, 404, "Department not found.")
}

func TestCourseUpdateEnforcesCapacityFloor(t *testing.T) {
	svc, store, _ := newCourseFixture()
	store.courses[1] = &models.Course{ID: 1, Code: "CS-101", Title: "Intro", Credit: 6, Capacity: 60, DepartmentID: 1, TeacherID: 7}
	store.enrolled[1] = 12
	store.nextID = 2

	_, err := svc.Update(context.Background(), 200, 1, CourseUpsertRequest{
		Code: "CS-101", Title: "Intro", Credit: 6, Capacity: intPtr(10), DepartmentID: 1,
	})
	assertAppError(t, err, 400, "Capacity cannot be less than current enrolled count (12).")
}

func TestCourseUpdateKeepsCapacityWhenOmitted(t *testing.T) {
	svc, store, _ := newCourseFixture()
	store.courses[1] = &models.Course{ID: 1, Code: "CS-101", Title: "Intro", Credit: 6, Capacity: 45, DepartmentID: 1, TeacherID: 7}
	store.nextID = 2

	detail, err := svc.Update(context.Background(), 200, 1, CourseUpsertRequest{
		Code: "CS-101", Title: "Intro to Programming", Credit: 6, DepartmentID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 45, detail.Capacity)
	assert.Equal(t, "Intro to Programming", detail.Title)
}

func TestCourseUpdateForeignDepartment(t *testing.T) {
	svc, store, _ := newCourseFixture()
	store.courses[1] = &models.Course{ID: 1, Code: "EE-201", Title: "Circuits", Credit: 5, Capacity: 60, DepartmentID: 2, TeacherID: 8}
	store.nextID = 2

	_, err := svc.Update(context.Background(), 200, 1, CourseUpsertRequest{
		Code: "EE-201", Title: "Circuits", Credit: 5, DepartmentID: 2,
	})
	assertAppError(t, err, 403, "You can only update courses in your own department.")
}

func TestCourseUpdateRejectsMoveOutOfDepartment(t *testing.T) {
	svc, store, _ := newCourseFixture()
	store.courses[1] = &models.Course{ID: 1, Code: "CS-101", Title: "Intro", Credit: 6, Capacity: 60, DepartmentID: 1, TeacherID: 7}
	store.nextID = 2

	_, err := svc.Update(context.Background(), 200, 1, CourseUpsertRequest{
		Code: "CS-101", Title: "Intro", Credit: 6, DepartmentID: 2,
	})
	assertAppError(t, err, 403, "You can only move/update courses within your own department.")
}

func TestCourseUpdateAllowsUnchangedCode(t *testing.T) {
	svc, store, _ := newCourseFixture()
	store.courses[1] = &models.Course{ID: 1, Code: "CS-101", Title: "Intro", Credit: 6, Capacity: 60, DepartmentID: 1, TeacherID: 7}
	store.nextID = 2

	detail, err := svc.Update(context.Background(), 200, 1, CourseUpsertRequest{
		Code: "cs-101", Title: "Intro", Credit: 7, DepartmentID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "CS-101", detail.Code)
	assert.Equal(t, float64(7), detail.Credit)
}

func TestCourseDeleteScopedToDepartment(t *testing.T) {
	svc, store, _ := newCourseFixture()
	store.courses[1] = &models.Course{ID: 1, Code: "EE-201", DepartmentID: 2, TeacherID: 8}
	store.nextID = 2

	err := svc.Delete(context.Background(), 200, 1)
	assertAppError(t, err, 403, "You can only delete courses in your own department.")

	require.NoError(t, svc.Delete(context.Background(), 201, 1))
	assert.Equal(t, []int64{1}, store.deleted)
}

func TestCourseGetUnknown(t *testing.T) {
	svc, _, _ := newCourseFixture()

	_, err := svc.Get(context.Background(), 42)
	assertAppError(t, err, 404, "Course not found.")
}
