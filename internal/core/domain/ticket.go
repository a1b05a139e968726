package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/navbat/queue-backend/internal/core/errors"
)

// TicketStatus represents the possible states of a ticket.
type TicketStatus string

const (
	StatusWaiting   TicketStatus = "WAITING"
	StatusCalled    TicketStatus = "CALLED"
	StatusServed    TicketStatus = "SERVED"
	StatusSkipped   TicketStatus = "SKIPPED"
	StatusCancelled TicketStatus = "CANCELLED"
)

// IsValid reports whether s is one of the known statuses.
func (s TicketStatus) IsValid() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusServed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s TicketStatus) IsTerminal() bool {
	return s == StatusServed || s == StatusSkipped || s == StatusCancelled
}

// IsActive reports whether the ticket still holds a place in the organization.
func (s TicketStatus) IsActive() bool {
	return s == StatusWaiting || s == StatusCalled
}

// TicketAction names an entry in a ticket's audit log.
type TicketAction string

const (
	ActionJoined    TicketAction = "JOINED"
	ActionCalled    TicketAction = "CALLED"
	ActionRecalled  TicketAction = "RECALLED"
	ActionServed    TicketAction = "SERVED"
	ActionSkipped   TicketAction = "SKIPPED"
	ActionCancelled TicketAction = "CANCELLED"
	ActionRequeued  TicketAction = "REQUEUED"
	ActionSwapped   TicketAction = "SWAPPED"
	ActionComing    TicketAction = "COMING"
	ActionEvaluated TicketAction = "EVALUATED"
)

// Ticket number prefixes.
const (
	LiveNumberPrefix        = "A"
	AppointmentNumberPrefix = "B"
)

const (
	MaxIdentifierLength = 128
	MaxReasonLength     = 500
)

// QueueLog is a single audit trail entry. Entries are only ever appended.
type QueueLog struct {
	Timestamp time.Time    `json:"timestamp"`
	Action    TicketAction `json:"action"`
	ActorID   string       `json:"actorId"`
	Reason    string       `json:"reason,omitempty"`
}

// Ticket is a single customer's place in an organization's live queue or
// appointment book.
type Ticket struct {
	ID                 string
	OrganizationID     string
	ServiceID          string
	UserID             string
	UserPhone          string
	Number             string
	Position           int
	Status             TicketStatus
	EntryTime          time.Time
	QueuedAt           time.Time
	EstimatedStartTime time.Time
	AppointmentTime    *time.Time
	CalledAt           *time.Time
	ClosedAt           *time.Time
	Logs               []QueueLog
	Evaluated          bool
}

// TicketParams holds the caller-supplied part of a new ticket.
type TicketParams struct {
	OrganizationID  string
	ServiceID       *string
	UserID          string
	UserPhone       string
	AppointmentTime *time.Time
}

// Validate checks the draft before anything is written.
func (p *TicketParams) Validate() error {
	errs := apperrors.NewValidationErrors()

	p.OrganizationID = strings.TrimSpace(p.OrganizationID)
	p.UserID = strings.TrimSpace(p.UserID)
	p.UserPhone = strings.TrimSpace(p.UserPhone)

	if p.OrganizationID == "" {
		errs.Add("organizationId", "Organization ID is required")
	} else if len(p.OrganizationID) > MaxIdentifierLength {
		errs.Add("organizationId", "Organization ID is too long")
	}

	if p.ServiceID != nil {
		trimmed := strings.TrimSpace(*p.ServiceID)
		if trimmed == "" {
			errs.Add("serviceId", "Service ID must not be empty when provided")
		} else if len(trimmed) > MaxIdentifierLength {
			errs.Add("serviceId", "Service ID is too long")
		}
		p.ServiceID = &trimmed
	}

	if p.UserID == "" && p.UserPhone == "" {
		errs.Add("userPhone", "Either user phone or user ID is required")
	}

	if p.AppointmentTime != nil && p.AppointmentTime.IsZero() {
		errs.Add("appointmentTime", "Appointment time must be a valid timestamp")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// IsAppointment reports whether the draft books a scheduled slot.
func (p *TicketParams) IsAppointment() bool {
	return p.AppointmentTime != nil
}

// NumberPrefix returns the label prefix for tickets created from p.
func (p *TicketParams) NumberPrefix() string {
	if p.IsAppointment() {
		return AppointmentNumberPrefix
	}
	return LiveNumberPrefix
}

// NewTicket is a factory function to create a valid new ticket in WAITING
// status. The JOINED entry is the first log line.
func NewTicket(params TicketParams, number string, now time.Time) (*Ticket, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	actor := params.UserPhone
	if actor == "" {
		actor = params.UserID
	}

	ticket := &Ticket{
		ID:              id.String(),
		OrganizationID:  params.OrganizationID,
		UserID:          params.UserID,
		UserPhone:       params.UserPhone,
		Number:          number,
		Status:          StatusWaiting,
		EntryTime:       now,
		QueuedAt:        now,
		AppointmentTime: params.AppointmentTime,
	}
	if params.ServiceID != nil {
		ticket.ServiceID = *params.ServiceID
	}
	ticket.appendLog(ActionJoined, actor, "", now)

	return ticket, nil
}

// transition is one row of the lifecycle table.
type transition struct {
	from TicketStatus
	to   TicketStatus
}

var transitions = map[TicketAction]transition{
	ActionCalled:    {from: StatusWaiting, to: StatusCalled},
	ActionCancelled: {from: StatusWaiting, to: StatusCancelled},
	ActionServed:    {from: StatusCalled, to: StatusServed},
	ActionSkipped:   {from: StatusCalled, to: StatusSkipped},
	ActionRecalled:  {from: StatusCalled, to: StatusCalled},
	ActionRequeued:  {from: StatusCalled, to: StatusWaiting},
	ActionSwapped:   {from: StatusWaiting, to: StatusWaiting},
	ActionComing:    {from: StatusWaiting, to: StatusWaiting},
}

// CanApply reports whether action is legal for a ticket in status.
func CanApply(action TicketAction, status TicketStatus) bool {
	tr, ok := transitions[action]
	return ok && tr.from == status
}

// Apply runs one lifecycle transition. On error the ticket is left untouched.
func (t *Ticket) Apply(action TicketAction, actorID, reason string, now time.Time) error {
	if !CanApply(action, t.Status) {
		return &apperrors.TransitionError{
			TicketID: t.ID,
			Action:   string(action),
			Status:   string(t.Status),
		}
	}

	// Position and EstimatedStartTime belong to the calculator and keep
	// their last values once a ticket leaves the live queue.
	t.Status = transitions[action].to

	switch action {
	case ActionCalled:
		t.CalledAt = &now
	case ActionRequeued:
		t.QueuedAt = now
		t.CalledAt = nil
	case ActionSwapped:
		t.QueuedAt = now
	case ActionServed, ActionSkipped, ActionCancelled:
		t.ClosedAt = &now
	}

	t.appendLog(action, actorID, reason, now)
	return nil
}

// Evaluate records the post-service rating. It can happen once, on a
// SERVED ticket.
func (t *Ticket) Evaluate(actorID string, now time.Time) error {
	if t.Status != StatusServed {
		return &apperrors.TransitionError{
			TicketID: t.ID,
			Action:   string(ActionEvaluated),
			Status:   string(t.Status),
		}
	}
	if t.Evaluated {
		return apperrors.ErrAlreadyEvaluated
	}
	t.Evaluated = true
	t.appendLog(ActionEvaluated, actorID, "", now)
	return nil
}

// ReordersQueue reports whether action can change the set or order of
// WAITING tickets, so positions must be recomputed.
func ReordersQueue(action TicketAction) bool {
	switch action {
	case ActionRecalled, ActionComing, ActionEvaluated:
		return false
	}
	return true
}

func (t *Ticket) appendLog(action TicketAction, actorID, reason string, now time.Time) {
	t.Logs = append(t.Logs, QueueLog{
		Timestamp: now,
		Action:    action,
		ActorID:   actorID,
		Reason:    reason,
	})
}

// IsLive reports whether the ticket belongs to the live queue rather than
// the appointment book.
func (t *Ticket) IsLive() bool {
	return t.AppointmentTime == nil
}

// InLiveQueue reports whether the ticket takes part in position numbering.
func (t *Ticket) InLiveQueue() bool {
	return t.Status == StatusWaiting && t.IsLive()
}

// IsHeldBy checks the ticket holder against an opaque actor identifier.
func (t *Ticket) IsHeldBy(actorID string) bool {
	if actorID == "" {
		return false
	}
	return t.UserPhone == actorID || t.UserID == actorID
}

// IsComing reports whether the holder announced they are on the way.
func (t *Ticket) IsComing() bool {
	for _, entry := range t.Logs {
		if entry.Action == ActionComing {
			return true
		}
	}
	return false
}

// DisplayPosition is the position shown to consumers: a called ticket is
// always at the front.
func (t *Ticket) DisplayPosition() int {
	if t.Status == StatusCalled {
		return 0
	}
	return t.Position
}

// Clone returns a deep copy so callers never share log or pointer storage.
func (t *Ticket) Clone() *Ticket {
	c := *t
	c.AppointmentTime = cloneTime(t.AppointmentTime)
	c.CalledAt = cloneTime(t.CalledAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	if t.Logs != nil {
		c.Logs = make([]QueueLog, len(t.Logs))
		copy(c.Logs, t.Logs)
	}
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
