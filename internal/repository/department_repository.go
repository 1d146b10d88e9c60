package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/universityofengineers/sms-api/internal/models"
)

// DepartmentRepository handles persistence of departments.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository constructs the repository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// List returns all departments ordered by code.
func (r *DepartmentRepository) List(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT id, code, name FROM departments ORDER BY code`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// FindByID returns a department by its ID.
func (r *DepartmentRepository) FindByID(ctx context.Context, id int64) (*models.Department, error) {
	const query = `SELECT id, code, name FROM departments WHERE id = $1`
	var department models.Department
	if err := r.db.GetContext(ctx, &department, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find department: %w", err)
	}
	return &department, nil
}

// ExistsByCode reports whether a department with the code exists.
// Codes are stored uppercased so the lookup is effectively case-insensitive.
func (r *DepartmentRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	const query = `SELECT 1 FROM departments WHERE code = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check department code: %w", err)
	}
	return true, nil
}

// Create persists a new department.
func (r *DepartmentRepository) Create(ctx context.Context, department *models.Department) error {
	const query = `INSERT INTO departments (code, name) VALUES ($1, $2) RETURNING id`
	if err := r.db.GetContext(ctx, &department.ID, query, department.Code, department.Name); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// Update overwrites code and name.
func (r *DepartmentRepository) Update(ctx context.Context, department *models.Department) error {
	const query = `UPDATE departments SET code = $2, name = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, department.ID, department.Code, department.Name); err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return nil
}

// Delete removes a department row.
func (r *DepartmentRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM departments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	return nil
}

// CountReferences returns how many teachers, students and courses still
// point at the department. Deletion is blocked while the count is non-zero.
func (r *DepartmentRepository) CountReferences(ctx context.Context, id int64) (int, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM teachers WHERE department_id = $1) +
        (SELECT COUNT(*) FROM students WHERE department_id = $1) +
        (SELECT COUNT(*) FROM courses WHERE department_id = $1)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count department references: %w", err)
	}
	return count, nil
}
