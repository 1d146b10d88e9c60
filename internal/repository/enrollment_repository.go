package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/universityofengineers/sms-api/internal/models"
)

// Sentinel outcomes of the enrollment state machine. The service layer maps
// them onto user-facing errors.
var (
	ErrAlreadyEnrolled = errors.New("enrollment already active")
	ErrCourseCompleted = errors.New("enrollment already completed")
	ErrCapacityReached = errors.New("course capacity reached")
	ErrNotActive       = errors.New("enrollment not active")
	ErrDropped         = errors.New("enrollment dropped")
)

const enrollmentDetailColumns = `e.id, e.student_id, e.course_id, e.status, e.grade, e.enrolled_at,
        s.student_no, s.full_name AS student_name, c.code AS course_code, c.title AS course_title`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListAll returns every enrollment with student and course context.
func (r *EnrollmentRepository) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN courses c ON c.id = e.course_id
        ORDER BY e.enrolled_at DESC`, enrollmentDetailColumns)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByStudent returns the enrollments belonging to one student.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1
        ORDER BY e.enrolled_at DESC`, enrollmentDetailColumns)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, status, grade, enrolled_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id int64) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN courses c ON c.id = e.course_id
        WHERE e.id = $1`, enrollmentDetailColumns)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment detail: %w", err)
	}
	return &detail, nil
}

// Enroll runs the whole enrollment state machine for (studentID, courseID)
// in a single transaction. The course row is locked first, so the capacity
// check and the row write cannot interleave with a concurrent enrollment
// into the same course: two attempts at the last seat serialize, and the
// loser sees ErrCapacityReached.
//
// Outcomes: a fresh row (no prior pairing), the prior row reactivated with
// its grade cleared (prior DROPPED), ErrAlreadyEnrolled (prior ENROLLED),
// ErrCourseCompleted (prior COMPLETED), ErrCapacityReached (course full),
// or sql.ErrNoRows when the course vanished underneath us.
func (r *EnrollmentRepository) Enroll(ctx context.Context, studentID, courseID int64) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enroll: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var capacity int
	if err := tx.GetContext(ctx, &capacity, `SELECT capacity FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock course: %w", err)
	}

	var existing models.Enrollment
	err = tx.GetContext(ctx, &existing,
		`SELECT id, student_id, course_id, status, grade, enrolled_at FROM enrollments WHERE student_id = $1 AND course_id = $2`,
		studentID, courseID)
	switch {
	case err == nil:
		switch existing.Status {
		case models.EnrollmentStatusEnrolled:
			return nil, ErrAlreadyEnrolled
		case models.EnrollmentStatusCompleted:
			return nil, ErrCourseCompleted
		}
		// DROPPED: reactivate the same row, keeping the unique pair intact.
		full, err := courseFull(ctx, tx, courseID, capacity)
		if err != nil {
			return nil, err
		}
		if full {
			return nil, ErrCapacityReached
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE enrollments SET status = $2, grade = NULL WHERE id = $1`,
			existing.ID, models.EnrollmentStatusEnrolled); err != nil {
			return nil, fmt.Errorf("reactivate enrollment: %w", err)
		}
		existing.Status = models.EnrollmentStatusEnrolled
		existing.Grade = nil
	case err == sql.ErrNoRows:
		full, err := courseFull(ctx, tx, courseID, capacity)
		if err != nil {
			return nil, err
		}
		if full {
			return nil, ErrCapacityReached
		}
		existing.StudentID = studentID
		existing.CourseID = courseID
		existing.Status = models.EnrollmentStatusEnrolled
		if err := tx.QueryRowxContext(ctx,
			`INSERT INTO enrollments (student_id, course_id, status) VALUES ($1, $2, $3) RETURNING id, enrolled_at`,
			studentID, courseID, models.EnrollmentStatusEnrolled).
			Scan(&existing.ID, &existing.EnrolledAt); err != nil {
			return nil, fmt.Errorf("create enrollment: %w", err)
		}
	default:
		return nil, fmt.Errorf("find existing enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enroll: %w", err)
	}
	return &existing, nil
}

func courseFull(ctx context.Context, tx *sqlx.Tx, courseID int64, capacity int) (bool, error) {
	var enrolled int
	if err := tx.GetContext(ctx, &enrolled,
		`SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2`,
		courseID, models.EnrollmentStatusEnrolled); err != nil {
		return false, fmt.Errorf("count enrolled: %w", err)
	}
	return enrolled >= capacity, nil
}

// Drop marks an active enrollment as dropped. The status guard lives in the
// statement itself so a concurrent grade or drop cannot slip in between a
// read and the write. Returns ErrNotActive when the row is no longer ENROLLED.
func (r *EnrollmentRepository) Drop(ctx context.Context, id int64) error {
	const query = `UPDATE enrollments SET status = $2 WHERE id = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusDropped, models.EnrollmentStatusEnrolled)
	if err != nil {
		return fmt.Errorf("drop enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("drop enrollment: %w", err)
	}
	if affected == 0 {
		return ErrNotActive
	}
	return nil
}

// SetGrade stores the grade and completes the enrollment. Dropped rows are
// excluded in the statement, so grading loses to a concurrent drop. Returns
// ErrDropped when the row was dropped before the write landed.
func (r *EnrollmentRepository) SetGrade(ctx context.Context, id int64, grade string) error {
	const query = `UPDATE enrollments SET grade = $2, status = $3 WHERE id = $1 AND status <> $4`
	res, err := r.db.ExecContext(ctx, query, id, grade, models.EnrollmentStatusCompleted, models.EnrollmentStatusDropped)
	if err != nil {
		return fmt.Errorf("set enrollment grade: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set enrollment grade: %w", err)
	}
	if affected == 0 {
		return ErrDropped
	}
	return nil
}
