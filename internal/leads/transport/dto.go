// Package transport defines request/response DTOs for the leads module.
package transport

import (
	"time"

	"driveassist_backend/internal/leads/repository"
	"driveassist_backend/internal/leads/service"

	"github.com/google/uuid"
)

type AdvanceRequest struct {
	Status string `json:"status" binding:"required,oneof=viewed contacted converted closed"`
	Note   string `json:"note" binding:"max=1000"`
}

type LeadResponse struct {
	ID          uuid.UUID  `json:"id"`
	DiagnosisID uuid.UUID  `json:"diagnosisId"`
	ProviderID  uuid.UUID  `json:"providerId"`
	Status      string     `json:"status"`
	IsPreview   bool       `json:"isPreview"`
	ViewedAt    *time.Time `json:"viewedAt,omitempty"`
	ContactedAt *time.Time `json:"contactedAt,omitempty"`
	ConvertedAt *time.Time `json:"convertedAt,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	CloseReason string     `json:"closeReason,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func ToLeadResponse(l *repository.Lead) LeadResponse {
	return LeadResponse{
		ID:          l.ID,
		DiagnosisID: l.DiagnosisID,
		ProviderID:  l.ProviderID,
		Status:      string(l.Status),
		IsPreview:   l.IsPreview,
		ViewedAt:    l.ViewedAt,
		ContactedAt: l.ContactedAt,
		ConvertedAt: l.ConvertedAt,
		ClosedAt:    l.ClosedAt,
		CloseReason: l.CloseReason,
		CreatedAt:   l.CreatedAt,
	}
}

type ActivityResponse struct {
	ID        uuid.UUID `json:"id"`
	ActorID   uuid.UUID `json:"actorId"`
	Action    string    `json:"action"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func ToActivityResponse(a *repository.Activity) ActivityResponse {
	return ActivityResponse{
		ID:        a.ID,
		ActorID:   a.ActorID,
		Action:    a.Action,
		Note:      a.Note,
		CreatedAt: a.CreatedAt,
	}
}

type CandidateResponse struct {
	ProviderID      uuid.UUID `json:"providerId"`
	BusinessName    string    `json:"businessName"`
	PriorityListing bool      `json:"priorityListing"`
	Rating          float64   `json:"rating"`
	CompletedJobs   int       `json:"completedJobs"`
}

func ToCandidateResponse(c *service.Candidate) CandidateResponse {
	return CandidateResponse{
		ProviderID:      c.ProviderID,
		BusinessName:    c.BusinessName,
		PriorityListing: c.PriorityListing,
		Rating:          c.Rating,
		CompletedJobs:   c.CompletedJobs,
	}
}
