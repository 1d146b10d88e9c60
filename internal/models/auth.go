package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating an account.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterStudentRequest is the public student sign-up payload. There is no
// role field on purpose: public registration only ever creates students.
type RegisterStudentRequest struct {
	Email        string  `json:"email" validate:"required,email"`
	Password     string  `json:"password" validate:"required,min=6"`
	FullName     string  `json:"full_name" validate:"required,max=150"`
	DepartmentID int64   `json:"department_id" validate:"required"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Address      *string `json:"address,omitempty" validate:"omitempty,max=255"`
}

// RefreshTokenRequest exchanges a refresh token for a new token pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// PasswordResetRequest carries the replacement password for an
// administrative reset. No old-password check: resets are teacher-initiated.
type PasswordResetRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// AuthResponse is the credential issued on registration, login and refresh.
type AuthResponse struct {
	Token        string    `json:"token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
	AccountID    int64     `json:"account_id"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	StudentID    *int64    `json:"student_id,omitempty"`
	TeacherID    *int64    `json:"teacher_id,omitempty"`
}

// RefreshToken is a persisted refresh session.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	AccountID int64      `db:"account_id" json:"account_id"`
	Token     string     `db:"token" json:"token"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// JWTClaims is the access-token payload. Profile ids are resolved per
// request from the account id, never embedded, so they cannot go stale.
type JWTClaims struct {
	AccountID int64  `json:"account_id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	jwt.RegisteredClaims
}
