// Package handler exposes the diagnosis HTTP endpoints.
package handler

import (
	"net/http"

	"driveassist_backend/internal/diagnosis/service"
	"driveassist_backend/internal/diagnosis/transport"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidRequest = "invalid request payload"

type Handler struct {
	service *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// Submit runs the full engagement: consume a diagnosis credit, assess the
// complaint and dispatch leads to matching providers.
func (h *Handler) Submit(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	var req transport.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	diag, leads, err := h.service.Submit(c.Request.Context(), service.SubmitInput{
		RequesterID:  identity.AccountID(),
		VehicleID:    req.VehicleID,
		Complaint:    req.Complaint,
		Region:       req.Region,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		VehicleMake:  req.VehicleMake,
		VehicleModel: req.VehicleModel,
		VehicleYear:  req.VehicleYear,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToSubmitResponse(diag, leads))
}

func (h *Handler) Get(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	diagnosisID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid diagnosis id"))
		return
	}

	diag, err := h.service.Get(c.Request.Context(), diagnosisID, identity.AccountID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.ToDiagnosisResponse(diag))
}

// ListLeads shows a requester which providers received their diagnosis and
// how far each lead has moved.
func (h *Handler) ListLeads(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	diagnosisID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid diagnosis id"))
		return
	}

	leads, err := h.service.ListLeads(c.Request.Context(), diagnosisID, identity.AccountID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.ToDiagnosisLeadResponses(leads))
}

func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	diagnoses, err := h.service.List(c.Request.Context(), identity.AccountID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	out := make([]transport.DiagnosisResponse, 0, len(diagnoses))
	for i := range diagnoses {
		out = append(out, transport.ToDiagnosisResponse(&diagnoses[i]))
	}
	httpkit.OK(c, out)
}
