package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/navbat/queue-backend/internal/core/domain"
	apperrors "github.com/navbat/queue-backend/internal/core/errors"
	"github.com/navbat/queue-backend/internal/core/ports"
	"github.com/navbat/queue-backend/internal/core/utils"
)

const uniqueViolation = "23505"

const ticketColumns = `id, organization_id, service_id, user_id, user_phone, number, position, status,
	entry_time, queued_at, estimated_start_time, appointment_time, called_at, closed_at, evaluated, logs`

// TicketRepository is the secondary adapter for ticket persistence.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// Ensure TicketRepository implements the ports.TicketRepository interface.
var _ ports.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

// scanTicket converts a database row into a core domain model.
func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t                                             domain.Ticket
		serviceID, userID, userPhone                  pgtype.Text
		status                                        string
		entryTime, queuedAt, eta, appointment, called pgtype.Timestamptz
		closed                                        pgtype.Timestamptz
		position                                      int32
		logs                                          []byte
	)

	err := row.Scan(
		&t.ID, &t.OrganizationID, &serviceID, &userID, &userPhone, &t.Number, &position, &status,
		&entryTime, &queuedAt, &eta, &appointment, &called, &closed, &t.Evaluated, &logs,
	)
	if err != nil {
		return nil, err
	}

	t.ServiceID = utils.FromString(serviceID)
	t.UserID = utils.FromString(userID)
	t.UserPhone = utils.FromString(userPhone)
	t.Position = int(position)
	t.Status = domain.TicketStatus(status)
	t.EntryTime = utils.FromTimestamptz(entryTime)
	t.QueuedAt = utils.FromTimestamptz(queuedAt)
	t.EstimatedStartTime = utils.FromTimestamptz(eta)
	t.AppointmentTime = utils.FromNullTimestamptz(appointment)
	t.CalledAt = utils.FromNullTimestamptz(called)
	t.ClosedAt = utils.FromNullTimestamptz(closed)

	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &t.Logs); err != nil {
			return nil, fmt.Errorf("decode logs of ticket %s: %w", t.ID, err)
		}
	}

	return &t, nil
}

func scanTickets(rows pgx.Rows) ([]*domain.Ticket, error) {
	defer rows.Close()

	tickets := make([]*domain.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func encodeLogs(logs []domain.QueueLog) ([]byte, error) {
	if logs == nil {
		logs = []domain.QueueLog{}
	}
	data, err := json.Marshal(logs)
	if err != nil {
		return nil, fmt.Errorf("encode ticket logs: %w", err)
	}
	return data, nil
}

// Create persists a new ticket entity.
func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	logs, err := encodeLogs(ticket.Logs)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING ` + ticketColumns

	row := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		ticket.ID,
		ticket.OrganizationID,
		utils.ToString(ticket.ServiceID),
		utils.ToString(ticket.UserID),
		utils.ToString(ticket.UserPhone),
		ticket.Number,
		int32(ticket.Position),
		string(ticket.Status),
		utils.ToTimestamptz(ticket.EntryTime),
		utils.ToTimestamptz(ticket.QueuedAt),
		utils.ToTimestamptz(ticket.EstimatedStartTime),
		utils.ToNullTimestamptz(ticket.AppointmentTime),
		utils.ToNullTimestamptz(ticket.CalledAt),
		utils.ToNullTimestamptz(ticket.ClosedAt),
		ticket.Evaluated,
		logs,
	)

	created, err := scanTicket(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("ticket %s: %w", ticket.ID, apperrors.ErrConflict)
		}
		return nil, err
	}
	return created, nil
}

// GetByID retrieves a single ticket by its ID.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`

	ticket, err := scanTicket(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}
	return ticket, nil
}

// Update persists the mutable fields of an existing ticket. Identity,
// number and entry time are never rewritten.
func (r *TicketRepository) Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	logs, err := encodeLogs(ticket.Logs)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE tickets SET
			position = $2,
			status = $3,
			queued_at = $4,
			estimated_start_time = $5,
			called_at = $6,
			closed_at = $7,
			evaluated = $8,
			logs = $9
		WHERE id = $1
		RETURNING ` + ticketColumns

	row := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		ticket.ID,
		int32(ticket.Position),
		string(ticket.Status),
		utils.ToTimestamptz(ticket.QueuedAt),
		utils.ToTimestamptz(ticket.EstimatedStartTime),
		utils.ToNullTimestamptz(ticket.CalledAt),
		utils.ToNullTimestamptz(ticket.ClosedAt),
		ticket.Evaluated,
		logs,
	)

	updated, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}
	return updated, nil
}

// ListByOrganization returns the organization's tickets in queue order.
func (r *TicketRepository) ListByOrganization(ctx context.Context, orgID string, filter domain.TicketFilter) ([]*domain.Ticket, error) {
	conditions := []string{"organization_id = $1"}
	args := []any{orgID}

	switch filter.View {
	case domain.ViewLive:
		conditions = append(conditions, "appointment_time IS NULL")
	case domain.ViewAppointments:
		conditions = append(conditions, "appointment_time IS NOT NULL")
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY queued_at, id`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanTickets(rows)
}

// ListByHolder returns every ticket whose phone or user id matches holderID.
func (r *TicketRepository) ListByHolder(ctx context.Context, holderID string, activeOnly bool) ([]*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE (user_phone = $1 OR user_id = $1)`
	if activeOnly {
		query += ` AND status IN ('WAITING', 'CALLED')`
	}
	query += ` ORDER BY queued_at, id`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, holderID)
	if err != nil {
		return nil, err
	}
	return scanTickets(rows)
}

// NextNumber increments the organization's counter for prefix.
func (r *TicketRepository) NextNumber(ctx context.Context, orgID, prefix string) (int, error) {
	query := `
		INSERT INTO ticket_counters (organization_id, prefix, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (organization_id, prefix)
		DO UPDATE SET value = ticket_counters.value + 1
		RETURNING value`

	var value int32
	if err := GetDBTX(ctx, r.pool).QueryRow(ctx, query, orgID, prefix).Scan(&value); err != nil {
		return 0, err
	}
	return int(value), nil
}
