package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/universityofengineers/sms-api/internal/models"
)

const courseDetailColumns = `c.id, c.code, c.title, c.credit, c.capacity, c.department_id, c.teacher_id, c.created_at, c.updated_at,
        d.code AS department_code, d.name AS department_name,
        t.full_name AS teacher_name, t.employee_no AS teacher_no,
        (SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id AND e.status = 'ENROLLED') AS enrolled_count`

// CourseRepository handles persistence of the course catalog.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns all courses with department, teacher and enrolled count.
func (r *CourseRepository) List(ctx context.Context) ([]models.CourseDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses c
        JOIN departments d ON d.id = c.department_id
        JOIN teachers t ON t.id = c.teacher_id
        ORDER BY c.code`, courseDetailColumns)
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindByID returns a course row by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	const query = `SELECT id, code, title, credit, capacity, department_id, teacher_id, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// FindDetailByID returns a course with contextual info.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id int64) (*models.CourseDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses c
        JOIN departments d ON d.id = c.department_id
        JOIN teachers t ON t.id = c.teacher_id
        WHERE c.id = $1`, courseDetailColumns)
	var detail models.CourseDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course detail: %w", err)
	}
	return &detail, nil
}

// ExistsByCode reports whether a course with the code exists.
func (r *CourseRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	const query = `SELECT 1 FROM courses WHERE code = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// CountEnrolled counts the currently ENROLLED rows for a course.
func (r *CourseRepository) CountEnrolled(ctx context.Context, courseID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("count enrolled: %w", err)
	}
	return count, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	const query = `INSERT INTO courses (code, title, credit, capacity, department_id, teacher_id)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`
	if err := r.db.QueryRowxContext(ctx, query, course.Code, course.Title, course.Credit, course.Capacity, course.DepartmentID, course.TeacherID).
		Scan(&course.ID, &course.CreatedAt, &course.UpdatedAt); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update overwrites all mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	const query = `UPDATE courses SET code = $2, title = $3, credit = $4, capacity = $5, department_id = $6, teacher_id = $7, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, course.ID, course.Code, course.Title, course.Credit, course.Capacity, course.DepartmentID, course.TeacherID); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course and all of its enrollments in one transaction.
func (r *CourseRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete course: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE course_id = $1`, id); err != nil {
		return fmt.Errorf("delete course enrollments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete course: %w", err)
	}
	return nil
}
