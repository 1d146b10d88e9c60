package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/universityofengineers/sms-api/internal/models"
)

const teacherDetailColumns = `t.id, t.account_id, t.employee_no, t.full_name, t.title, t.hire_date, t.department_id, t.created_at, t.updated_at,
        a.email, a.enabled, d.code AS department_code, d.name AS department_name`

// TeacherRepository handles persistence of teacher profiles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns all teachers joined with account and department info.
func (r *TeacherRepository) List(ctx context.Context) ([]models.TeacherDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers t
        JOIN accounts a ON a.id = t.account_id
        JOIN departments d ON d.id = t.department_id
        ORDER BY t.full_name`, teacherDetailColumns)
	var teachers []models.TeacherDetail
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// FindByID returns a teacher row by its ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id int64) (*models.Teacher, error) {
	const query = `SELECT id, account_id, employee_no, full_name, title, hire_date, department_id, created_at, updated_at FROM teachers WHERE id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher: %w", err)
	}
	return &teacher, nil
}

// FindDetailByID returns a teacher with account and department context.
func (r *TeacherRepository) FindDetailByID(ctx context.Context, id int64) (*models.TeacherDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers t
        JOIN accounts a ON a.id = t.account_id
        JOIN departments d ON d.id = t.department_id
        WHERE t.id = $1`, teacherDetailColumns)
	var detail models.TeacherDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher detail: %w", err)
	}
	return &detail, nil
}

// FindByAccountID resolves the teacher profile linked to an account.
func (r *TeacherRepository) FindByAccountID(ctx context.Context, accountID int64) (*models.Teacher, error) {
	const query = `SELECT id, account_id, employee_no, full_name, title, hire_date, department_id, created_at, updated_at FROM teachers WHERE account_id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, accountID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher by account: %w", err)
	}
	return &teacher, nil
}

// ExistsByEmployeeNo reports whether the generated number is already taken.
func (r *TeacherRepository) ExistsByEmployeeNo(ctx context.Context, employeeNo string) (bool, error) {
	const query = `SELECT 1 FROM teachers WHERE employee_no = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, employeeNo); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check employee number: %w", err)
	}
	return true, nil
}

// CreateWithAccount inserts the account and the teacher profile in one
// transaction. Teacher creation is all-or-nothing.
func (r *TeacherRepository) CreateWithAccount(ctx context.Context, account *models.Account, teacher *models.Teacher) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create teacher: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const accountQuery = `INSERT INTO accounts (email, password_hash, role, enabled) VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`
	if err := tx.QueryRowxContext(ctx, accountQuery, account.Email, account.PasswordHash, account.Role, account.Enabled).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return fmt.Errorf("create teacher account: %w", err)
	}

	teacher.AccountID = account.ID
	const teacherQuery = `INSERT INTO teachers (account_id, employee_no, full_name, title, hire_date, department_id)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`
	if err := tx.QueryRowxContext(ctx, teacherQuery, teacher.AccountID, teacher.EmployeeNo, teacher.FullName, teacher.Title, teacher.HireDate, teacher.DepartmentID).
		Scan(&teacher.ID, &teacher.CreatedAt, &teacher.UpdatedAt); err != nil {
		return fmt.Errorf("create teacher profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create teacher: %w", err)
	}
	return nil
}

// Update overwrites the mutable teacher fields.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	const query = `UPDATE teachers SET full_name = $2, title = $3, hire_date = $4, department_id = $5, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, teacher.ID, teacher.FullName, teacher.Title, teacher.HireDate, teacher.DepartmentID); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}
