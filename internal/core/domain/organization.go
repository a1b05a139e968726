package domain

import (
	"time"

	apperrors "github.com/navbat/queue-backend/internal/core/errors"
)

// OrganizationStatus is the open/closed state shown to customers.
type OrganizationStatus string

const (
	OrganizationOpen   OrganizationStatus = "OPEN"
	OrganizationClosed OrganizationStatus = "CLOSED"
	OrganizationBusy   OrganizationStatus = "BUSY"
)

func (s OrganizationStatus) IsValid() bool {
	switch s {
	case OrganizationOpen, OrganizationClosed, OrganizationBusy:
		return true
	}
	return false
}

// DefaultServiceMinutes is used when an organization never set its own
// average service time.
const DefaultServiceMinutes = 15

const MaxServiceMinutes = 24 * 60

// Organization holds the queue settings this service keeps for an
// externally managed organization.
type Organization struct {
	ID                   string
	Status               OrganizationStatus
	EstimatedServiceTime int
	UpdatedAt            time.Time
}

// DefaultOrganization returns the settings used for an organization that
// has none stored.
func DefaultOrganization(id string, serviceMinutes int) *Organization {
	if serviceMinutes <= 0 {
		serviceMinutes = DefaultServiceMinutes
	}
	return &Organization{
		ID:                   id,
		Status:               OrganizationOpen,
		EstimatedServiceTime: serviceMinutes,
	}
}

// ServiceMinutes returns the per-ticket service time used by the ETA
// calculator.
func (o *Organization) ServiceMinutes() int {
	if o == nil || o.EstimatedServiceTime <= 0 {
		return DefaultServiceMinutes
	}
	return o.EstimatedServiceTime
}

// AcceptsTickets reports whether customers may join.
func (o *Organization) AcceptsTickets() bool {
	return o == nil || o.Status != OrganizationClosed
}

// OrganizationSettingsParams is a partial settings update.
type OrganizationSettingsParams struct {
	Status               *OrganizationStatus
	EstimatedServiceTime *int
}

func (p OrganizationSettingsParams) Validate() error {
	errs := apperrors.NewValidationErrors()

	if p.Status == nil && p.EstimatedServiceTime == nil {
		errs.Add("settings", "At least one setting must be provided")
	}
	if p.Status != nil && !p.Status.IsValid() {
		errs.Add("status", "Status must be one of: OPEN, CLOSED, BUSY")
	}
	if p.EstimatedServiceTime != nil {
		if *p.EstimatedServiceTime <= 0 {
			errs.Add("estimatedServiceTime", "Estimated service time must be positive")
		} else if *p.EstimatedServiceTime > MaxServiceMinutes {
			errs.Add("estimatedServiceTime", "Estimated service time must not exceed one day")
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ApplySettings merges p into o.
func (o *Organization) ApplySettings(p OrganizationSettingsParams, now time.Time) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.EstimatedServiceTime != nil {
		o.EstimatedServiceTime = *p.EstimatedServiceTime
	}
	o.UpdatedAt = now
	return nil
}
