package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

// DisplayRepository is the pgx-backed implementation of the display port.
type DisplayRepository struct {
	pool *pgxpool.Pool
}

var _ ports.DisplayRepository = (*DisplayRepository)(nil)

// NewDisplayRepository creates a new display repository
func NewDisplayRepository(pool *pgxpool.Pool) *DisplayRepository {
	return &DisplayRepository{pool: pool}
}

// CreatePairingCode stores a one-time pairing code.
func (r *DisplayRepository) CreatePairingCode(ctx context.Context, code *domain.PairingCode) error {
	q := GetDBTX(ctx, r.pool)

	_, err := q.Exec(ctx, `
		INSERT INTO display_pairing_codes (code, tenant_id, expires_at)
		VALUES ($1, $2, $3)`,
		code.Code, code.TenantID, code.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create pairing code: %w", err)
	}
	return nil
}

// GetPairingCode fetches a pairing code. Unknown codes map to
// ErrPairingCodeInvalid so the caller cannot distinguish guessed from used.
func (r *DisplayRepository) GetPairingCode(ctx context.Context, code string) (*domain.PairingCode, error) {
	q := GetDBTX(ctx, r.pool)

	var p domain.PairingCode
	err := q.QueryRow(ctx, `
		SELECT code, tenant_id, expires_at, used_at
		FROM display_pairing_codes WHERE code = $1`,
		code,
	).Scan(&p.Code, &p.TenantID, &p.ExpiresAt, &p.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrPairingCodeInvalid
		}
		return nil, err
	}
	return &p, nil
}

// MarkPairingCodeUsed burns a code after redemption.
func (r *DisplayRepository) MarkPairingCodeUsed(ctx context.Context, code string) error {
	q := GetDBTX(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE display_pairing_codes SET used_at = now()
		WHERE code = $1 AND used_at IS NULL`,
		code,
	)
	if err != nil {
		return fmt.Errorf("mark pairing code used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrPairingCodeInvalid
	}
	return nil
}

// CreateDisplay persists a paired display.
func (r *DisplayRepository) CreateDisplay(ctx context.Context, display *domain.Display) (*domain.Display, error) {
	q := GetDBTX(ctx, r.pool)

	_, err := q.Exec(ctx, `
		INSERT INTO displays (id, tenant_id, name, paired_at)
		VALUES ($1, $2, $3, $4)`,
		display.ID, display.TenantID, display.Name, display.PairedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create display: %w", err)
	}
	return display, nil
}

// GetDisplay fetches a display by ID.
func (r *DisplayRepository) GetDisplay(ctx context.Context, id uuid.UUID) (*domain.Display, error) {
	q := GetDBTX(ctx, r.pool)

	var d domain.Display
	err := q.QueryRow(ctx, `
		SELECT id, tenant_id, name, paired_at FROM displays WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.TenantID, &d.Name, &d.PairedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrDisplayNotFound
		}
		return nil, err
	}
	return &d, nil
}
