package models

import "time"

// Course is a catalog entry owned by a department and taught by an
// instructor of record. Invariant enforced at write time: the teacher's
// department always equals the course's department.
type Course struct {
	ID           int64     `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Title        string    `db:"title" json:"title"`
	Credit       float64   `db:"credit" json:"credit"`
	Capacity     int       `db:"capacity" json:"capacity"`
	DepartmentID int64     `db:"department_id" json:"department_id"`
	TeacherID    int64     `db:"teacher_id" json:"teacher_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail joins a Course with department, teacher and the derived
// count of currently ENROLLED students.
type CourseDetail struct {
	Course
	DepartmentCode string `db:"department_code" json:"department_code"`
	DepartmentName string `db:"department_name" json:"department_name"`
	TeacherName    string `db:"teacher_name" json:"teacher_name"`
	TeacherNo      string `db:"teacher_no" json:"teacher_no"`
	EnrolledCount  int    `db:"enrolled_count" json:"enrolled_count"`
}
