// Package transport defines request/response DTOs for the appointments module.
package transport

import (
	"time"

	"driveassist_backend/internal/appointments/repository"

	"github.com/google/uuid"
)

type BookRequest struct {
	ProviderID      uuid.UUID         `json:"providerId" binding:"required"`
	VehicleID       *uuid.UUID        `json:"vehicleId"`
	LeadID          *uuid.UUID        `json:"leadId"`
	ScheduledDate   string            `json:"scheduledDate" binding:"required"`
	ScheduledTime   string            `json:"scheduledTime" binding:"required"`
	DurationMinutes int               `json:"durationMinutes" binding:"omitempty,min=15,max=480"`
	Description     string            `json:"description" binding:"max=2000"`
	Offerings       []OfferingRequest `json:"offerings" binding:"omitempty,max=20,dive"`
}

type OfferingRequest struct {
	Name            string `json:"name" binding:"required,max=200"`
	CostCents       int64  `json:"costCents" binding:"min=0"`
	DurationMinutes int    `json:"durationMinutes" binding:"min=0,max=480"`
}

type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

type CompleteRequest struct {
	FinalCostCents *int64 `json:"finalCostCents" binding:"omitempty,min=0"`
}

type RescheduleRequest struct {
	ScheduledDate string `json:"scheduledDate" binding:"required"`
	ScheduledTime string `json:"scheduledTime" binding:"required"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Reference          string     `json:"reference"`
	RequesterID        uuid.UUID  `json:"requesterId"`
	ProviderID         uuid.UUID  `json:"providerId"`
	VehicleID          *uuid.UUID `json:"vehicleId,omitempty"`
	LeadID             *uuid.UUID `json:"leadId,omitempty"`
	Status             string     `json:"status"`
	ScheduledDate      string     `json:"scheduledDate"`
	ScheduledTime      string     `json:"scheduledTime"`
	DurationMinutes    int        `json:"durationMinutes"`
	EstimatedCostCents int64      `json:"estimatedCostCents"`
	FinalCostCents     *int64     `json:"finalCostCents,omitempty"`
	Description        string     `json:"description,omitempty"`
	CancelledBy        string     `json:"cancelledBy,omitempty"`
	StatusReason       string     `json:"statusReason,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmedAt,omitempty"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

type OfferingResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	CostCents       int64     `json:"costCents"`
	DurationMinutes int       `json:"durationMinutes"`
}

// AppointmentDetailResponse is the single-appointment view with line items.
type AppointmentDetailResponse struct {
	AppointmentResponse
	Offerings []OfferingResponse `json:"offerings"`
}

func ToAppointmentResponse(a *repository.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		Reference:          a.Reference,
		RequesterID:        a.RequesterID,
		ProviderID:         a.ProviderID,
		VehicleID:          a.VehicleID,
		LeadID:             a.LeadID,
		Status:             string(a.Status),
		ScheduledDate:      a.ScheduledDate,
		ScheduledTime:      a.ScheduledTime,
		DurationMinutes:    a.DurationMinutes,
		EstimatedCostCents: a.EstimatedCostCents,
		FinalCostCents:     a.FinalCostCents,
		Description:        a.Description,
		CancelledBy:        a.CancelledBy,
		StatusReason:       a.StatusReason,
		ConfirmedAt:        a.ConfirmedAt,
		StartedAt:          a.StartedAt,
		CompletedAt:        a.CompletedAt,
		CreatedAt:          a.CreatedAt,
	}
}

func ToAppointmentDetailResponse(a *repository.Appointment, offerings []repository.Offering) AppointmentDetailResponse {
	items := make([]OfferingResponse, 0, len(offerings))
	for _, o := range offerings {
		items = append(items, OfferingResponse{
			ID:              o.ID,
			Name:            o.Name,
			CostCents:       o.CostCents,
			DurationMinutes: o.DurationMinutes,
		})
	}
	return AppointmentDetailResponse{
		AppointmentResponse: ToAppointmentResponse(a),
		Offerings:           items,
	}
}
