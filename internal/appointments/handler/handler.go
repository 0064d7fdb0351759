// Package handler exposes the appointment lifecycle over HTTP.
package handler

import (
	"net/http"

	"driveassist_backend/internal/appointments/domain"
	"driveassist_backend/internal/appointments/service"
	"driveassist_backend/internal/appointments/transport"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidRequest = "invalid request body"

type Handler struct {
	service *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

func (h *Handler) Book(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	var req transport.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	offerings := make([]service.OfferingInput, 0, len(req.Offerings))
	for _, o := range req.Offerings {
		offerings = append(offerings, service.OfferingInput{
			Name:            o.Name,
			CostCents:       o.CostCents,
			DurationMinutes: o.DurationMinutes,
		})
	}

	appointment, err := h.service.Book(c.Request.Context(), service.BookInput{
		RequesterID:     identity.AccountID(),
		ProviderID:      req.ProviderID,
		VehicleID:       req.VehicleID,
		LeadID:          req.LeadID,
		ScheduledDate:   req.ScheduledDate,
		ScheduledTime:   req.ScheduledTime,
		DurationMinutes: req.DurationMinutes,
		Description:     req.Description,
		Offerings:       offerings,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToAppointmentResponse(appointment))
}

func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	appointments, err := h.service.List(c.Request.Context(), identity.AccountID(), domain.Status(c.Query("status")))
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	resp := make([]transport.AppointmentResponse, 0, len(appointments))
	for i := range appointments {
		resp = append(resp, transport.ToAppointmentResponse(&appointments[i]))
	}
	httpkit.OK(c, resp)
}

func (h *Handler) Get(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	id, ok := h.pathID(c)
	if !ok {
		return
	}

	appointment, offerings, err := h.service.Get(c.Request.Context(), id, identity.AccountID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.ToAppointmentDetailResponse(appointment, offerings))
}

func (h *Handler) Confirm(c *gin.Context) {
	h.providerAction(c, func(ctx *gin.Context, id, providerID uuid.UUID) (interface{}, error) {
		a, err := h.service.Confirm(ctx.Request.Context(), id, providerID)
		if err != nil {
			return nil, err
		}
		return transport.ToAppointmentResponse(a), nil
	})
}

func (h *Handler) Reject(c *gin.Context) {
	var req transport.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	h.providerAction(c, func(ctx *gin.Context, id, providerID uuid.UUID) (interface{}, error) {
		a, err := h.service.Reject(ctx.Request.Context(), id, providerID, req.Reason)
		if err != nil {
			return nil, err
		}
		return transport.ToAppointmentResponse(a), nil
	})
}

func (h *Handler) Start(c *gin.Context) {
	h.providerAction(c, func(ctx *gin.Context, id, providerID uuid.UUID) (interface{}, error) {
		a, err := h.service.Start(ctx.Request.Context(), id, providerID)
		if err != nil {
			return nil, err
		}
		return transport.ToAppointmentResponse(a), nil
	})
}

func (h *Handler) Complete(c *gin.Context) {
	// The final-cost body is optional; completing without one settles at
	// the estimate.
	var req transport.CompleteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
			return
		}
	}

	h.providerAction(c, func(ctx *gin.Context, id, providerID uuid.UUID) (interface{}, error) {
		a, err := h.service.Complete(ctx.Request.Context(), id, providerID, req.FinalCostCents)
		if err != nil {
			return nil, err
		}
		return transport.ToAppointmentResponse(a), nil
	})
}

// NoShow is mounted under the admin group; support staff settle disputed
// attendance after the fact.
func (h *Handler) NoShow(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req transport.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	a, err := h.service.MarkNoShow(c.Request.Context(), id, req.Reason)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToAppointmentResponse(a))
}

func (h *Handler) Cancel(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req transport.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	appointment, err := h.service.Cancel(c.Request.Context(), id, identity.AccountID(), req.Reason)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.ToAppointmentResponse(appointment))
}

func (h *Handler) Reschedule(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req transport.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	appointment, err := h.service.Reschedule(c.Request.Context(), id, identity.AccountID(), req.ScheduledDate, req.ScheduledTime)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.ToAppointmentResponse(appointment))
}

func (h *Handler) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid appointment id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) providerAction(c *gin.Context, fn func(c *gin.Context, id, providerID uuid.UUID) (interface{}, error)) {
	identity := httpkit.MustGetIdentity(c)

	id, ok := h.pathID(c)
	if !ok {
		return
	}

	resp, err := fn(c, id, identity.AccountID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, resp)
}
