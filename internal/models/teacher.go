package models

import "time"

// TeacherTitle is the academic rank of an instructor.
type TeacherTitle string

const (
	TitleLecturer           TeacherTitle = "LECTURER"
	TitleAssociateProfessor TeacherTitle = "ASSOCIATE_PROFESSOR"
	TitleProfessor          TeacherTitle = "PROFESSOR"
)

// Teacher is an instructor profile attached 1:1 to a TEACHER account.
type Teacher struct {
	ID           int64        `db:"id" json:"id"`
	AccountID    int64        `db:"account_id" json:"account_id"`
	EmployeeNo   string       `db:"employee_no" json:"employee_no"`
	FullName     string       `db:"full_name" json:"full_name"`
	Title        TeacherTitle `db:"title" json:"title"`
	HireDate     *time.Time   `db:"hire_date" json:"hire_date,omitempty"`
	DepartmentID int64        `db:"department_id" json:"department_id"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// TeacherDetail is a Teacher joined with its account and department.
type TeacherDetail struct {
	Teacher
	Email          string `db:"email" json:"email"`
	Enabled        bool   `db:"enabled" json:"enabled"`
	DepartmentCode string `db:"department_code" json:"department_code"`
	DepartmentName string `db:"department_name" json:"department_name"`
}
