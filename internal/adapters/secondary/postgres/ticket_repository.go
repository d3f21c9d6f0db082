package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

// ticketColumns is the select list shared by all ticket queries. The module
// name is joined in so callers never need a second lookup to announce a call.
const ticketColumns = `
	t.id, t.tenant_id, t.module_id, m.name, t.attendant_id, t.ticket_number,
	t.status, t.customer_id, t.customer_name, t.customer_document, t.customer_phone,
	t.call_count, t.notes, t.created_at, t.started_at, t.last_called_at, t.finished_at`

// attendantCurrentIdx is the partial unique index enforcing one in-progress
// ticket per attendant. A violation means the attendant already serves someone.
const attendantCurrentIdx = "idx_tickets_attendant_current"

const ticketFrom = ` FROM tickets t LEFT JOIN modules m ON m.id = t.module_id `

// TicketRepository is the pgx-backed implementation of the ticket port.
type TicketRepository struct {
	pool *pgxpool.Pool
	tm   *TransactionManager
}

var _ ports.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{
		pool: pool,
		tm:   NewTransactionManager(pool),
	}
}

// Create persists a new pending ticket. The ticket number is drawn from the
// tenant's counter inside the same transaction, so numbers never collide even
// under concurrent kiosks.
func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	err := r.tm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		number, err := nextTicketNumber(ctx, tx, ticket.TenantID)
		if err != nil {
			return err
		}
		ticket.TicketNumber = number

		_, err = tx.Exec(ctx, `
			INSERT INTO tickets (
				id, tenant_id, module_id, ticket_number, status,
				customer_id, customer_name, customer_document, customer_phone,
				call_count, notes, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			ticket.ID, ticket.TenantID, ticket.ModuleID, ticket.TicketNumber, ticket.Status,
			nilIfZeroUUID(ticket.Customer.ID), ticket.Customer.Name, ticket.Customer.Document, ticket.Customer.Phone,
			ticket.CallCount, ticket.Notes, ticket.CreatedAt,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	return r.GetByID(ctx, ticket.ID)
}

// GetByID fetches a ticket by its ID.
func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	q := GetDBTX(ctx, r.pool)

	row := q.QueryRow(ctx, `SELECT`+ticketColumns+ticketFrom+`WHERE t.id = $1`, id)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}
	return ticket, nil
}

// Update writes the mutable fields of a ticket back to the database. Moving a
// ticket into service while the attendant already has one trips the partial
// unique index and surfaces as ErrAttendantBusy; the pre-check in the service
// layer cannot close that race on its own.
func (r *TicketRepository) Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	q := GetDBTX(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE tickets SET
			status = $2, module_id = $3, attendant_id = $4, call_count = $5,
			notes = $6, started_at = $7, last_called_at = $8, finished_at = $9
		WHERE id = $1`,
		ticket.ID, ticket.Status, ticket.ModuleID, ticket.AttendantID, ticket.CallCount,
		ticket.Notes, ticket.StartedAt, ticket.LastCalledAt, ticket.FinishedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == attendantCurrentIdx {
			return nil, apperrors.ErrAttendantBusy
		}
		return nil, fmt.Errorf("update ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperrors.ErrTicketNotFound
	}

	return r.GetByID(ctx, ticket.ID)
}

// ListPending returns the oldest pending tickets first, bounded by limit.
func (r *TicketRepository) ListPending(ctx context.Context, tenantID uuid.UUID, moduleID *uuid.UUID, limit int32) ([]*domain.Ticket, error) {
	q := GetDBTX(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT`+ticketColumns+ticketFrom+`
		WHERE t.tenant_id = $1
		  AND t.status = 'PENDING'
		  AND ($2::uuid IS NULL OR t.module_id IS NULL OR t.module_id = $2)
		ORDER BY t.created_at
		LIMIT $3`,
		tenantID, moduleID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending tickets: %w", err)
	}
	defer rows.Close()

	return scanTickets(rows)
}

// NextPending peeks at the ticket ClaimNextPending would take.
func (r *TicketRepository) NextPending(ctx context.Context, tenantID uuid.UUID, moduleID *uuid.UUID) (*domain.Ticket, error) {
	tickets, err := r.ListPending(ctx, tenantID, moduleID, 1)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, apperrors.ErrQueueEmpty
	}
	return tickets[0], nil
}

// CurrentForAttendant returns the attendant's in-progress ticket, or nil when
// the attendant is free.
func (r *TicketRepository) CurrentForAttendant(ctx context.Context, tenantID, attendantID uuid.UUID) (*domain.Ticket, error) {
	q := GetDBTX(ctx, r.pool)

	row := q.QueryRow(ctx, `
		SELECT`+ticketColumns+ticketFrom+`
		WHERE t.tenant_id = $1
		  AND t.attendant_id = $2
		  AND t.status = 'IN_PROGRESS'
		ORDER BY t.started_at DESC
		LIMIT 1`,
		tenantID, attendantID,
	)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ticket, nil
}

// ListCalled returns recently called tickets, most recent first. Ordering by
// last_called_at rather than started_at keeps a recalled ticket at the head
// of the board.
func (r *TicketRepository) ListCalled(ctx context.Context, tenantID uuid.UUID, limit int32) ([]*domain.Ticket, error) {
	q := GetDBTX(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT`+ticketColumns+ticketFrom+`
		WHERE t.tenant_id = $1
		  AND t.call_count > 0
		ORDER BY t.last_called_at DESC
		LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list called tickets: %w", err)
	}
	defer rows.Close()

	return scanTickets(rows)
}

// ClaimNextPending atomically takes the oldest pending ticket into service.
// FOR UPDATE SKIP LOCKED lets two attendants pressing the button at the same
// moment claim two different tickets instead of fighting over one row.
func (r *TicketRepository) ClaimNextPending(ctx context.Context, params ports.ClaimNextParams) (*domain.Ticket, error) {
	var claimed *domain.Ticket

	err := r.tm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		txCtx := ContextWithTx(ctx, tx)

		row := tx.QueryRow(ctx, `
			SELECT`+ticketColumns+ticketFrom+`
			WHERE t.tenant_id = $1
			  AND t.status = 'PENDING'
			  AND ($2::uuid IS NULL OR t.module_id IS NULL OR t.module_id = $2)
			ORDER BY t.created_at
			LIMIT 1
			FOR UPDATE OF t SKIP LOCKED`,
			params.TenantID, params.ModuleID,
		)
		ticket, err := scanTicket(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrQueueEmpty
			}
			return err
		}

		moduleID := params.ModuleID
		if moduleID == nil {
			moduleID = ticket.ModuleID
		}
		moduleName, err := moduleNameFor(ctx, tx, moduleID)
		if err != nil {
			return err
		}

		if err := ticket.Call(moduleID, moduleName, params.AttendantID); err != nil {
			return err
		}

		claimed, err = r.Update(txCtx, ticket)
		return err
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// nextTicketNumber increments the tenant's counter and formats the number as
// "<prefix>-NNN". The upsert locks the counter row for the transaction.
func nextTicketNumber(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) (string, error) {
	var counter int
	err := tx.QueryRow(ctx, `
		INSERT INTO ticket_counters (tenant_id, counter)
		VALUES ($1, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET counter = ticket_counters.counter + 1
		RETURNING counter`,
		tenantID,
	).Scan(&counter)
	if err != nil {
		return "", fmt.Errorf("next ticket number: %w", err)
	}

	var prefix string
	if err := tx.QueryRow(ctx, `SELECT prefix FROM tenants WHERE id = $1`, tenantID).Scan(&prefix); err != nil {
		return "", fmt.Errorf("tenant prefix: %w", err)
	}

	return fmt.Sprintf("%s-%03d", prefix, counter), nil
}

func moduleNameFor(ctx context.Context, tx pgx.Tx, moduleID *uuid.UUID) (string, error) {
	if moduleID == nil {
		return "", nil
	}
	var name string
	err := tx.QueryRow(ctx, `SELECT name FROM modules WHERE id = $1`, *moduleID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// scanTicket reads one ticket row in ticketColumns order.
func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t          domain.Ticket
		moduleName *string
		customerID *uuid.UUID
	)

	err := row.Scan(
		&t.ID, &t.TenantID, &t.ModuleID, &moduleName, &t.AttendantID, &t.TicketNumber,
		&t.Status, &customerID, &t.Customer.Name, &t.Customer.Document, &t.Customer.Phone,
		&t.CallCount, &t.Notes, &t.CreatedAt, &t.StartedAt, &t.LastCalledAt, &t.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if moduleName != nil {
		t.ModuleName = *moduleName
	}
	if customerID != nil {
		t.Customer.ID = *customerID
	}

	return &t, nil
}

func scanTickets(rows pgx.Rows) ([]*domain.Ticket, error) {
	var tickets []*domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

func nilIfZeroUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
