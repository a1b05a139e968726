package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	mw "github.com/navbat/queue-backend/internal/adapters/primary/http/middleware"
	"github.com/navbat/queue-backend/internal/adapters/primary/validation"
	"github.com/navbat/queue-backend/internal/auth"
	"github.com/navbat/queue-backend/internal/core/domain"
	apperrors "github.com/navbat/queue-backend/internal/core/errors"
	"github.com/navbat/queue-backend/internal/core/ports"
	"github.com/navbat/queue-backend/internal/infrastructure/logging"
)

// QueueHandler handles HTTP requests for organization queues and tickets.
type QueueHandler struct {
	queue        ports.QueueService
	errorHandler *ErrorHandler
	pollInterval time.Duration
	joinLimiter  func(http.Handler) http.Handler
	logger       *slog.Logger
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(
	queue ports.QueueService,
	errorHandler *ErrorHandler,
	pollInterval time.Duration,
	logger *slog.Logger,
) *QueueHandler {
	return &QueueHandler{
		queue:        queue,
		errorHandler: errorHandler,
		pollInterval: pollInterval,
		logger:       logger.With("handler", "queue"),
	}
}

// WithJoinLimiter rate limits join requests with the given middleware.
func (h *QueueHandler) WithJoinLimiter(limiter func(http.Handler) http.Handler) *QueueHandler {
	h.joinLimiter = limiter
	return h
}

// RegisterOrganizationRoutes sets up routes under /organizations.
func (h *QueueHandler) RegisterOrganizationRoutes(r chi.Router) {
	r.Route("/{orgID}", func(r chi.Router) {
		r.Get("/", h.HandleGetOrganization)
		r.Get("/tickets", h.HandleGetQueue)

		if h.joinLimiter != nil {
			r.With(h.joinLimiter).Post("/tickets", h.HandleJoin)
		} else {
			r.Post("/tickets", h.HandleJoin)
		}

		// Staff routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(auth.RoleEmployee, auth.RoleBusiness, auth.RoleAdmin))
			r.Get("/stats", h.HandleGetStats)
			r.Put("/settings", h.HandleUpdateSettings)
			r.Post("/call-next", h.HandleCallNext)
		})
	})
}

// RegisterTicketRoutes sets up routes under /tickets.
func (h *QueueHandler) RegisterTicketRoutes(r chi.Router) {
	r.Get("/mine", h.HandleListMine)

	r.Route("/{ticketID}", func(r chi.Router) {
		r.Get("/", h.HandleGetTicket)

		// Staff lifecycle
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(auth.RoleEmployee, auth.RoleBusiness, auth.RoleAdmin))
			r.Post("/call", h.staffAction(domain.ActionCalled, h.queue.Call))
			r.Post("/recall", h.staffAction(domain.ActionRecalled, h.queue.Recall))
			r.Post("/finish", h.staffAction(domain.ActionServed, h.queue.Finish))
			r.Post("/skip", h.staffAction(domain.ActionSkipped, h.queue.Skip))
			r.Post("/requeue", h.staffAction(domain.ActionRequeued, h.queue.Requeue))
		})

		// Holder lifecycle
		r.Post("/cancel", h.holderAction(domain.ActionCancelled, h.queue.Cancel, true))
		r.Post("/swap", h.holderAction(domain.ActionSwapped, h.queue.SwapToNext, false))
		r.Post("/coming", h.holderAction(domain.ActionComing, h.queue.MarkComing, false))
		r.Post("/evaluate", h.holderAction(domain.ActionEvaluated, h.queue.Evaluate, false))
	})
}

// --- Request/Response DTOs ---

// JoinQueueRequest defines the expected JSON body for joining a queue.
// UserPhone and UserID are honoured only for staff registering a walk-in
// customer; customers always join as themselves.
type JoinQueueRequest struct {
	ServiceID       *string    `json:"serviceId"`
	AppointmentTime *time.Time `json:"appointmentTime"`
	UserPhone       string     `json:"userPhone"`
	UserID          string     `json:"userId"`
}

// Validate validates the join request
func (r *JoinQueueRequest) Validate() error {
	v := validation.NewValidator()
	v.Phone("userPhone", r.UserPhone).
		MaxLength("userId", r.UserID, domain.MaxIdentifierLength)
	if r.ServiceID != nil {
		v.MaxLength("serviceId", *r.ServiceID, domain.MaxIdentifierLength)
	}
	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

// TicketActionRequest defines the optional JSON body of lifecycle actions.
type TicketActionRequest struct {
	Reason string `json:"reason"`
}

// Validate validates the action request
func (r *TicketActionRequest) Validate() error {
	v := validation.NewValidator()
	v.MaxLength("reason", r.Reason, domain.MaxReasonLength)
	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

// UpdateSettingsRequest defines the expected JSON body for queue settings.
type UpdateSettingsRequest struct {
	Status               *string `json:"status"`
	EstimatedServiceTime *int    `json:"estimatedServiceTime"`
}

// Validate validates the settings request
func (r *UpdateSettingsRequest) Validate() error {
	v := validation.NewValidator()
	v.Custom("settings", r.Status != nil || r.EstimatedServiceTime != nil, "At least one of status or estimatedServiceTime is required")
	if r.Status != nil {
		v.Required("status", *r.Status).
			OneOf("status", strings.ToUpper(*r.Status), []string{
				string(domain.OrganizationOpen),
				string(domain.OrganizationClosed),
				string(domain.OrganizationBusy),
			})
	}
	if r.EstimatedServiceTime != nil {
		v.Range("estimatedServiceTime", *r.EstimatedServiceTime, 1, domain.MaxServiceMinutes)
	}
	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

// StatsDTO defines the JSON response for queue statistics.
type StatsDTO struct {
	OrganizationID        string           `json:"organizationId"`
	StatusCounts          map[string]int64 `json:"statusCounts"`
	LiveWaiting           int              `json:"liveWaiting"`
	AppointmentsWaiting   int              `json:"appointmentsWaiting"`
	AverageWaitMinutes    float64          `json:"averageWaitMinutes"`
	AverageServiceMinutes float64          `json:"averageServiceMinutes"`
	EstimatedServiceTime  int              `json:"estimatedServiceTime"`
}

func toStatsDTO(stats *domain.QueueStats) StatsDTO {
	counts := make(map[string]int64, len(stats.StatusCounts))
	for _, c := range stats.StatusCounts {
		counts[string(c.Status)] = c.Count
	}
	return StatsDTO{
		OrganizationID:        stats.OrganizationID,
		StatusCounts:          counts,
		LiveWaiting:           stats.LiveWaiting,
		AppointmentsWaiting:   stats.AppointmentsWaiting,
		AverageWaitMinutes:    stats.AverageWaitMinutes,
		AverageServiceMinutes: stats.AverageServiceMinutes,
		EstimatedServiceTime:  stats.ServiceMinutes,
	}
}

// --- Organization handlers ---

// HandleGetOrganization handles GET /organizations/{orgID}
func (h *QueueHandler) HandleGetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.queue.GetOrganization(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toOrganizationDTO(org))
}

// HandleGetQueue handles GET /organizations/{orgID}/tickets
func (h *QueueHandler) HandleGetQueue(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	filter, err := parseTicketFilter(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	org, err := h.queue.GetOrganization(r.Context(), orgID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	tickets, err := h.queue.GetByOrganization(r.Context(), orgID, filter)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	snapshots := toSnapshots(tickets)
	WriteJSON(w, http.StatusOK, QueueResponse{
		Organization:   toOrganizationDTO(org),
		Data:           snapshots,
		Count:          len(snapshots),
		PollIntervalMs: h.pollInterval.Milliseconds(),
	})
}

// HandleJoin handles POST /organizations/{orgID}/tickets
func (h *QueueHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaims(w, r)
	if !ok {
		return
	}
	orgID := chi.URLParam(r, "orgID")

	req, err := validation.DecodeOptional[JoinQueueRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	params := ports.JoinQueueParams{
		OrganizationID:  orgID,
		ServiceID:       req.ServiceID,
		UserID:          claims.ActorID,
		UserPhone:       claims.Phone,
		AppointmentTime: req.AppointmentTime,
	}
	if claims.CanManage(orgID) && (req.UserPhone != "" || req.UserID != "") {
		params.UserID = req.UserID
		params.UserPhone = req.UserPhone
	}

	ticket, err := h.queue.Join(r.Context(), params)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "ticket joined",
		"ticket_id", ticket.ID,
		"number", ticket.Number,
		"org_id", orgID,
	)

	WriteCreated(w, domain.NewTicketSnapshot(ticket))
}

// HandleGetStats handles GET /organizations/{orgID}/stats
func (h *QueueHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.managedOrganization(w, r)
	if !ok {
		return
	}

	stats, err := h.queue.GetStats(r.Context(), orgID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toStatsDTO(stats))
}

// HandleUpdateSettings handles PUT /organizations/{orgID}/settings
func (h *QueueHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.managedOrganization(w, r)
	if !ok {
		return
	}
	claims, _ := mw.GetClaims(r.Context())

	req, err := validation.DecodeAndValidate[UpdateSettingsRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	settings := domain.OrganizationSettingsParams{EstimatedServiceTime: req.EstimatedServiceTime}
	if req.Status != nil {
		status := domain.OrganizationStatus(strings.ToUpper(*req.Status))
		settings.Status = &status
	}

	org, err := h.queue.UpdateSettings(r.Context(), ports.UpdateSettingsParams{
		OrganizationID: orgID,
		ActorID:        claims.ActorID,
		Settings:       settings,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toOrganizationDTO(org))
}

// HandleCallNext handles POST /organizations/{orgID}/call-next
func (h *QueueHandler) HandleCallNext(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.managedOrganization(w, r)
	if !ok {
		return
	}
	claims, _ := mw.GetClaims(r.Context())

	ticket, err := h.queue.CallNext(r.Context(), ports.CallNextParams{
		OrganizationID: orgID,
		ActorID:        claims.ActorID,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "ticket called",
		"ticket_id", ticket.ID,
		"number", ticket.Number,
	)

	WriteJSON(w, http.StatusOK, domain.NewTicketSnapshot(ticket))
}

// --- Ticket handlers ---

// HandleListMine handles GET /tickets/mine
func (h *QueueHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaims(w, r)
	if !ok {
		return
	}

	tickets, err := h.queue.ListMine(r.Context(), ports.ListMineParams{
		HolderID:   claims.HolderID(),
		ActiveOnly: validation.ParseBoolQueryParam(r, "active", false),
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteList(w, toSnapshots(tickets))
}

// HandleGetTicket handles GET /tickets/{ticketID}
func (h *QueueHandler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaims(w, r)
	if !ok {
		return
	}

	ticket, err := h.queue.GetTicket(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	if !isHolder(claims, ticket) && !claims.CanManage(ticket.OrganizationID) {
		h.errorHandler.Handle(w, r, apperrors.ErrForbidden)
		return
	}

	WriteJSON(w, http.StatusOK, domain.NewTicketSnapshot(ticket))
}

type ticketOperation func(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error)

// staffAction builds a handler for a lifecycle action reserved to the
// ticket organization's staff.
func (h *QueueHandler) staffAction(action domain.TicketAction, op ticketOperation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.runAction(w, r, action, op, func(claims *auth.Claims, ticket *domain.Ticket) bool {
			return claims.CanManage(ticket.OrganizationID)
		})
	}
}

// holderAction builds a handler for a lifecycle action on the caller's own
// ticket. When staffMayAct is set, the organization's staff may perform it
// on the holder's behalf.
func (h *QueueHandler) holderAction(action domain.TicketAction, op ticketOperation, staffMayAct bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.runAction(w, r, action, op, func(claims *auth.Claims, ticket *domain.Ticket) bool {
			if isHolder(claims, ticket) {
				return true
			}
			return staffMayAct && claims.CanManage(ticket.OrganizationID)
		})
	}
}

func (h *QueueHandler) runAction(
	w http.ResponseWriter,
	r *http.Request,
	action domain.TicketAction,
	op ticketOperation,
	allowed func(*auth.Claims, *domain.Ticket) bool,
) {
	claims, ok := getClaims(w, r)
	if !ok {
		return
	}
	ticketID := chi.URLParam(r, "ticketID")
	r = r.WithContext(logging.WithTicketID(r.Context(), ticketID))

	req, err := validation.DecodeOptional[TicketActionRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ticket, err := h.queue.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if !allowed(claims, ticket) {
		h.errorHandler.Handle(w, r, apperrors.ErrForbidden)
		return
	}

	updated, err := op(r.Context(), ports.TicketActionParams{
		TicketID: ticketID,
		ActorID:  claims.ActorID,
		Reason:   req.Reason,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "ticket action applied",
		"action", action,
		"status", updated.Status,
	)

	WriteJSON(w, http.StatusOK, domain.NewTicketSnapshot(updated))
}

// --- Helper methods ---

// managedOrganization returns the route's organization when the caller is
// its staff.
func (h *QueueHandler) managedOrganization(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := getClaims(w, r)
	if !ok {
		return "", false
	}
	orgID := chi.URLParam(r, "orgID")
	if !claims.CanManage(orgID) {
		h.errorHandler.Handle(w, r, apperrors.ErrForbidden)
		return "", false
	}
	return orgID, true
}

func isHolder(claims *auth.Claims, ticket *domain.Ticket) bool {
	return ticket.IsHeldBy(claims.ActorID) || ticket.IsHeldBy(claims.Phone)
}

// parseTicketFilter reads ?view= and ?status= (comma separated or repeated).
func parseTicketFilter(r *http.Request) (domain.TicketFilter, error) {
	query := r.URL.Query()
	filter := domain.TicketFilter{View: domain.QueueView(strings.ToLower(query.Get("view")))}

	v := validation.NewValidator()
	v.OneOf("view", string(filter.View), []string{string(domain.ViewLive), string(domain.ViewAppointments)})

	statuses, invalid := domain.ParseStatuses(strings.Join(query["status"], ","))
	v.Custom("status", len(invalid) == 0, "Unknown status: "+strings.Join(invalid, ", "))
	filter.Statuses = statuses

	if v.HasErrors() {
		return domain.TicketFilter{}, v.Errors()
	}
	return filter, nil
}
