package domain

import (
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
)

// UserRole represents the role of a user within a tenant.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleAttendant UserRole = "ATTENDANT"
)

// User is an authenticated operator of the queue system: an attendant who
// calls tickets or a tenant administrator.
type User struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
	Role         UserRole
	IsActive     bool
	CreatedAt    time.Time
}

const minPasswordLength = 8

// NewUser creates a validated user with a hashed password.
func NewUser(email, fullName, password string, role UserRole, tenantID uuid.UUID) (*User, error) {
	if email == "" {
		return nil, apperrors.ErrEmailRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.ErrEmailRequired
	}
	if fullName == "" {
		return nil, apperrors.ErrFullNameRequired
	}
	if password == "" {
		return nil, apperrors.ErrPasswordRequired
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.ErrPasswordTooWeak
	}
	if tenantID == uuid.Nil {
		return nil, apperrors.ErrTenantRequired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	return &User{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// CheckPassword compares a plaintext password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
