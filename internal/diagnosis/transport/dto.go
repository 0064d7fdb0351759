// Package transport defines request/response DTOs for the diagnosis module.
package transport

import (
	"time"

	"driveassist_backend/internal/diagnosis/repository"
	leadsrepo "driveassist_backend/internal/leads/repository"

	"github.com/google/uuid"
)

type SubmitRequest struct {
	VehicleID    *uuid.UUID `json:"vehicleId"`
	Complaint    string     `json:"complaint" binding:"required,min=10,max=4000"`
	Region       string     `json:"region" binding:"required,max=64"`
	Latitude     *float64   `json:"latitude" binding:"omitempty,latitude"`
	Longitude    *float64   `json:"longitude" binding:"omitempty,longitude"`
	VehicleMake  string     `json:"vehicleMake" binding:"max=64"`
	VehicleModel string     `json:"vehicleModel" binding:"max=64"`
	VehicleYear  int        `json:"vehicleYear" binding:"omitempty,min=1950,max=2100"`
}

type DiagnosisResponse struct {
	ID                 uuid.UUID  `json:"id"`
	VehicleID          *uuid.UUID `json:"vehicleId,omitempty"`
	Status             string     `json:"status"`
	Complaint          string     `json:"complaint"`
	Region             string     `json:"region"`
	Summary            string     `json:"summary"`
	ProbableCauses     []string   `json:"probableCauses"`
	RecommendedActions []string   `json:"recommendedActions"`
	Urgency            string     `json:"urgency"`
	Specialty          string     `json:"specialty"`
	Confidence         float64    `json:"confidence"`
	LeadCount          int        `json:"leadCount"`
	CreatedAt          time.Time  `json:"createdAt"`
}

func ToDiagnosisResponse(d *repository.Diagnosis) DiagnosisResponse {
	return DiagnosisResponse{
		ID:                 d.ID,
		VehicleID:          d.VehicleID,
		Status:             string(d.Status),
		Complaint:          d.Complaint,
		Region:             d.Region,
		Summary:            d.Summary,
		ProbableCauses:     d.ProbableCauses,
		RecommendedActions: d.RecommendedActions,
		Urgency:            d.Urgency,
		Specialty:          d.Specialty,
		Confidence:         d.Confidence,
		LeadCount:          d.LeadCount,
		CreatedAt:          d.CreatedAt,
	}
}

// DiagnosisLeadResponse is the requester's read-only view of one lead their
// diagnosis produced. Pipeline detail beyond the stage stays with the
// provider.
type DiagnosisLeadResponse struct {
	LeadID     uuid.UUID `json:"leadId"`
	ProviderID uuid.UUID `json:"providerId"`
	Status     string    `json:"status"`
	IsPreview  bool      `json:"isPreview"`
	CreatedAt  time.Time `json:"createdAt"`
}

func ToDiagnosisLeadResponses(leads []leadsrepo.Lead) []DiagnosisLeadResponse {
	out := make([]DiagnosisLeadResponse, 0, len(leads))
	for i := range leads {
		out = append(out, DiagnosisLeadResponse{
			LeadID:     leads[i].ID,
			ProviderID: leads[i].ProviderID,
			Status:     string(leads[i].Status),
			IsPreview:  leads[i].IsPreview,
			CreatedAt:  leads[i].CreatedAt,
		})
	}
	return out
}

type DispatchedLead struct {
	LeadID     uuid.UUID `json:"leadId"`
	ProviderID uuid.UUID `json:"providerId"`
	IsPreview  bool      `json:"isPreview"`
}

type SubmitResponse struct {
	Diagnosis DiagnosisResponse `json:"diagnosis"`
	Leads     []DispatchedLead  `json:"leads"`
}

func ToSubmitResponse(d *repository.Diagnosis, leads []leadsrepo.Lead) SubmitResponse {
	resp := SubmitResponse{
		Diagnosis: ToDiagnosisResponse(d),
		Leads:     make([]DispatchedLead, 0, len(leads)),
	}
	for i := range leads {
		resp.Leads = append(resp.Leads, DispatchedLead{
			LeadID:     leads[i].ID,
			ProviderID: leads[i].ProviderID,
			IsPreview:  leads[i].IsPreview,
		})
	}
	return resp
}
