package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/universityofengineers/sms-api/internal/models"
)

const studentDetailColumns = `s.id, s.account_id, s.student_no, s.full_name, s.phone, s.address, s.date_of_birth, s.status, s.department_id, s.created_at, s.updated_at,
        a.email, a.enabled, d.code AS department_code, d.name AS department_name`

// StudentRepository handles persistence of student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns all students joined with account and department info.
func (r *StudentRepository) List(ctx context.Context) ([]models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s
        JOIN accounts a ON a.id = s.account_id
        JOIN departments d ON d.id = s.department_id
        ORDER BY s.full_name`, studentDetailColumns)
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// FindByID returns a student row by its ID.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	const query = `SELECT id, account_id, student_no, full_name, phone, address, date_of_birth, status, department_id, created_at, updated_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindDetailByID returns a student with account and department context.
func (r *StudentRepository) FindDetailByID(ctx context.Context, id int64) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s
        JOIN accounts a ON a.id = s.account_id
        JOIN departments d ON d.id = s.department_id
        WHERE s.id = $1`, studentDetailColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student detail: %w", err)
	}
	return &detail, nil
}

// FindByAccountID resolves the student profile linked to an account.
func (r *StudentRepository) FindByAccountID(ctx context.Context, accountID int64) (*models.Student, error) {
	const query = `SELECT id, account_id, student_no, full_name, phone, address, date_of_birth, status, department_id, created_at, updated_at FROM students WHERE account_id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, accountID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by account: %w", err)
	}
	return &student, nil
}

// ExistsByStudentNo reports whether the generated number is already taken.
func (r *StudentRepository) ExistsByStudentNo(ctx context.Context, studentNo string) (bool, error) {
	const query = `SELECT 1 FROM students WHERE student_no = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentNo); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student number: %w", err)
	}
	return true, nil
}

// CreateWithAccount inserts the account and the student profile in one
// transaction. Registration is all-or-nothing.
func (r *StudentRepository) CreateWithAccount(ctx context.Context, account *models.Account, student *models.Student) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create student: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const accountQuery = `INSERT INTO accounts (email, password_hash, role, enabled) VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`
	if err := tx.QueryRowxContext(ctx, accountQuery, account.Email, account.PasswordHash, account.Role, account.Enabled).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return fmt.Errorf("create student account: %w", err)
	}

	student.AccountID = account.ID
	const studentQuery = `INSERT INTO students (account_id, student_no, full_name, phone, address, date_of_birth, status, department_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`
	if err := tx.QueryRowxContext(ctx, studentQuery, student.AccountID, student.StudentNo, student.FullName, student.Phone, student.Address, student.DateOfBirth, student.Status, student.DepartmentID).
		Scan(&student.ID, &student.CreatedAt, &student.UpdatedAt); err != nil {
		return fmt.Errorf("create student profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create student: %w", err)
	}
	return nil
}

// Update overwrites the teacher-managed student fields.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	const query = `UPDATE students SET full_name = $2, phone = $3, address = $4, date_of_birth = $5, department_id = $6, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, student.ID, student.FullName, student.Phone, student.Address, student.DateOfBirth, student.DepartmentID); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// UpdateStatus overwrites only the academic status.
func (r *StudentRepository) UpdateStatus(ctx context.Context, id int64, status models.StudentStatus) error {
	const query = `UPDATE students SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update student status: %w", err)
	}
	return nil
}

// UpdateContact overwrites the student self-service fields.
func (r *StudentRepository) UpdateContact(ctx context.Context, id int64, phone, address *string) error {
	const query = `UPDATE students SET phone = $2, address = $3, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, phone, address); err != nil {
		return fmt.Errorf("update student contact: %w", err)
	}
	return nil
}
