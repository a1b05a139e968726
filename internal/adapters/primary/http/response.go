package http

import (
	"encoding/json"
	"net/http"

	"github.com/navbat/queue-backend/internal/core/domain"
)

// ListResponse wraps a list of items (non-paginated)
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

// QueueResponse is the organization snapshot consumers re-fetch after a
// change notification.
type QueueResponse struct {
	Organization   OrganizationDTO         `json:"organization"`
	Data           []domain.TicketSnapshot `json:"data"`
	Count          int                     `json:"count"`
	PollIntervalMs int64                   `json:"pollIntervalMs"`
}

// OrganizationDTO defines the JSON response for queue settings.
type OrganizationDTO struct {
	ID                   string `json:"id"`
	Status               string `json:"status"`
	EstimatedServiceTime int    `json:"estimatedServiceTime"`
}

func toOrganizationDTO(org *domain.Organization) OrganizationDTO {
	return OrganizationDTO{
		ID:                   org.ID,
		Status:               string(org.Status),
		EstimatedServiceTime: org.ServiceMinutes(),
	}
}

func toSnapshots(tickets []*domain.Ticket) []domain.TicketSnapshot {
	response := make([]domain.TicketSnapshot, 0, len(tickets))
	for _, ticket := range tickets {
		response = append(response, domain.NewTicketSnapshot(ticket))
	}
	return response
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The header has already been sent, so encoding errors are not reported.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteCreated writes a created response
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, data)
}

// WriteList writes a simple list response
func WriteList[T any](w http.ResponseWriter, data []T) {
	WriteJSON(w, http.StatusOK, ListResponse[T]{
		Data:  data,
		Count: len(data),
	})
}
