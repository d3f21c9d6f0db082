package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

// pairingCodeTTL is how long a generated code stays redeemable.
const pairingCodeTTL = 5 * time.Minute

// PairingService implements the one-time code flow a display uses to obtain
// its long-lived device credential.
type PairingService struct {
	displays ports.DisplayRepository
	issuer   ports.DisplayTokenIssuer
	logger   *slog.Logger
}

var _ ports.PairingService = (*PairingService)(nil)

// NewPairingService creates a new pairing service.
func NewPairingService(
	displays ports.DisplayRepository,
	issuer ports.DisplayTokenIssuer,
	logger *slog.Logger,
) *PairingService {
	return &PairingService{
		displays: displays,
		issuer:   issuer,
		logger:   logger.With("component", "pairing_service"),
	}
}

// GeneratePairingCode creates a short-lived one-time code for a tenant.
func (s *PairingService) GeneratePairingCode(ctx context.Context, tenantID uuid.UUID) (*domain.PairingCode, error) {
	code, err := randomCode()
	if err != nil {
		return nil, err
	}

	pairingCode := &domain.PairingCode{
		Code:      code,
		TenantID:  tenantID,
		ExpiresAt: time.Now().UTC().Add(pairingCodeTTL),
	}
	if err := s.displays.CreatePairingCode(ctx, pairingCode); err != nil {
		return nil, err
	}

	return pairingCode, nil
}

// Pair redeems a code, registers the display and mints its device token.
func (s *PairingService) Pair(ctx context.Context, code, displayName string) (*domain.Display, string, error) {
	pairingCode, err := s.displays.GetPairingCode(ctx, code)
	if err != nil {
		return nil, "", err
	}
	if err := pairingCode.IsUsable(time.Now().UTC()); err != nil {
		return nil, "", err
	}

	display, err := domain.NewDisplay(pairingCode.TenantID, displayName)
	if err != nil {
		return nil, "", err
	}

	created, err := s.displays.CreateDisplay(ctx, display)
	if err != nil {
		return nil, "", err
	}
	if err := s.displays.MarkPairingCodeUsed(ctx, code); err != nil {
		return nil, "", err
	}

	token, err := s.issuer.IssueDisplayToken(created.ID, created.TenantID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("display paired",
		"display_id", created.ID,
		"tenant_id", created.TenantID,
	)

	return created, token, nil
}

// randomCode generates a 6-digit numeric pairing code.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
