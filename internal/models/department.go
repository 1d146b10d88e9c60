package models

// Department is reference data for Teacher, Student and Course.
// Codes are stored trimmed and uppercased, unique case-insensitively.
type Department struct {
	ID   int64  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}
