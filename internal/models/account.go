package models

import "time"

// Role represents the two principal kinds the RBAC layer understands.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
)

// Account is an authentication identity stored in the accounts table.
// Exactly one Student or Teacher profile attaches to an account, determined
// by its role at creation. The role never changes afterwards.
type Account struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	Enabled      bool      `db:"enabled" json:"enabled"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
