package models

import "time"

// StudentStatus tracks the academic standing of a student.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusSuspended StudentStatus = "SUSPENDED"
	StudentStatusDropped   StudentStatus = "DROPPED"
)

// Student is a learner profile attached 1:1 to a STUDENT account.
// Students are never hard-deleted; "deletion" disables the account and
// forces ACTIVE status to DROPPED.
type Student struct {
	ID           int64         `db:"id" json:"id"`
	AccountID    int64         `db:"account_id" json:"account_id"`
	StudentNo    string        `db:"student_no" json:"student_no"`
	FullName     string        `db:"full_name" json:"full_name"`
	Phone        *string       `db:"phone" json:"phone,omitempty"`
	Address      *string       `db:"address" json:"address,omitempty"`
	DateOfBirth  *time.Time    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Status       StudentStatus `db:"status" json:"status"`
	DepartmentID int64         `db:"department_id" json:"department_id"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentDetail is a Student joined with its account and department.
type StudentDetail struct {
	Student
	Email          string `db:"email" json:"email"`
	Enabled        bool   `db:"enabled" json:"enabled"`
	DepartmentCode string `db:"department_code" json:"department_code"`
	DepartmentName string `db:"department_name" json:"department_name"`
}
