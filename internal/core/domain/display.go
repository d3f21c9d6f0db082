package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
)

// Display is a public-facing device (TV screen or kiosk) paired to a tenant.
// It authenticates with a long-lived device token instead of a user login.
type Display struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenantId"`
	Name     string    `json:"name"`
	PairedAt time.Time `json:"pairedAt"`
}

// NewDisplay creates a paired display for a tenant.
func NewDisplay(tenantID uuid.UUID, name string) (*Display, error) {
	if tenantID == uuid.Nil {
		return nil, apperrors.ErrTenantRequired
	}
	if name == "" {
		name = "display"
	}
	return &Display{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     name,
		PairedAt: time.Now().UTC(),
	}, nil
}

// PairingCode is a short-lived one-time code a display exchanges for its
// device credential.
type PairingCode struct {
	Code      string
	TenantID  uuid.UUID
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// IsUsable reports whether the code can still be redeemed at the given time.
func (p *PairingCode) IsUsable(now time.Time) error {
	if p.UsedAt != nil {
		return apperrors.ErrPairingCodeInvalid
	}
	if now.After(p.ExpiresAt) {
		return apperrors.ErrPairingCodeExpired
	}
	return nil
}
