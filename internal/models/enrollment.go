package models

import "time"

// EnrollmentStatus is the lifecycle state of a (student, course) pair.
// Transitions: ENROLLED -> COMPLETED, ENROLLED -> DROPPED,
// DROPPED -> ENROLLED. COMPLETED is terminal.
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
)

// Enrollment bridges exactly one student and one course. At most one row
// ever exists per (student_id, course_id); re-enrollment after a drop
// reactivates the same row.
type Enrollment struct {
	ID         int64            `db:"id" json:"id"`
	StudentID  int64            `db:"student_id" json:"student_id"`
	CourseID   int64            `db:"course_id" json:"course_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Grade      *string          `db:"grade" json:"grade,omitempty"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollmentDetail enriches an Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentNo   string `db:"student_no" json:"student_no"`
	StudentName string `db:"student_name" json:"student_name"`
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
}
