// Package handler exposes the provider lead pipeline over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"driveassist_backend/internal/leads/domain"
	"driveassist_backend/internal/leads/service"
	"driveassist_backend/internal/leads/transport"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	service *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// Match previews which providers would receive leads for the given filters.
// A pure read; nothing is consumed or created.
func (h *Handler) Match(c *gin.Context) {
	q := service.MatchQuery{
		Region:    c.Query("region"),
		Specialty: c.Query("specialty"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpkit.HandleError(c, apperr.Validation("limit must be an integer"))
			return
		}
		q.Limit = limit
	}

	candidates, err := h.service.MatchProviders(c.Request.Context(), q)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	resp := make([]transport.CandidateResponse, 0, len(candidates))
	for i := range candidates {
		resp = append(resp, transport.ToCandidateResponse(&candidates[i]))
	}
	httpkit.OK(c, resp)
}

func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	leads, err := h.service.ListForProvider(c.Request.Context(), identity.AccountID(), domain.Status(c.Query("status")))
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	resp := make([]transport.LeadResponse, 0, len(leads))
	for i := range leads {
		resp = append(resp, transport.ToLeadResponse(&leads[i]))
	}
	httpkit.OK(c, resp)
}

func (h *Handler) Get(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid lead id"))
		return
	}

	lead, err := h.service.GetLead(c.Request.Context(), leadID, identity.AccountID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) Advance(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid lead id"))
		return
	}

	var req transport.AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	lead, err := h.service.Advance(c.Request.Context(), leadID, identity.AccountID(), domain.Status(req.Status), req.Note)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) Unlock(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid lead id"))
		return
	}

	lead, err := h.service.Unlock(c.Request.Context(), leadID, identity.AccountID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) Activities(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid lead id"))
		return
	}

	entries, err := h.service.ListActivities(c.Request.Context(), leadID, identity.AccountID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	resp := make([]transport.ActivityResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, transport.ToActivityResponse(&entries[i]))
	}
	httpkit.OK(c, resp)
}
