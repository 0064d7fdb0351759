// Package handler exposes account registration, authentication, provider
// profiles and vehicles over HTTP.
package handler

import (
	"net/http"

	"driveassist_backend/internal/accounts/repository"
	"driveassist_backend/internal/accounts/service"
	"driveassist_backend/internal/accounts/transport"
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

func (h *Handler) Register(c *gin.Context) {
	var req transport.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	account, err := h.service.Register(c.Request.Context(), service.RegisterInput{
		Role:     repository.Role(req.Role),
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToAccountResponse(account))
}

func (h *Handler) Login(c *gin.Context) {
	var req transport.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	pair, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, tokenResponse(pair))
}

func (h *Handler) Refresh(c *gin.Context) {
	var req transport.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, tokenResponse(pair))
}

func (h *Handler) Logout(c *gin.Context) {
	var req transport.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	if err := h.service.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) GetMe(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	account, err := h.service.GetMe(c.Request.Context(), identity.AccountID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.ToAccountResponse(account))
}

func (h *Handler) GetProfile(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	profile, err := h.service.GetProfile(c.Request.Context(), identity.AccountID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.ToProfileResponse(profile))
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	var req transport.ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	profile, err := h.service.UpdateProfile(c.Request.Context(), identity.AccountID(), service.ProfileInput{
		BusinessName: req.BusinessName,
		Bio:          req.Bio,
		Regions:      req.Regions,
		Specialties:  req.Specialties,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Available:    req.Available,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.ToProfileResponse(profile))
}

func (h *Handler) SetAvailability(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	var req transport.AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	if err := h.service.SetAvailability(c.Request.Context(), identity.AccountID(), req.Available); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) VerifyProvider(c *gin.Context) {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid provider id"))
		return
	}

	var req transport.VerifyProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	if err := h.service.VerifyProvider(c.Request.Context(), providerID, req.Verified, req.PriorityListing); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) AddVehicle(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	var req transport.VehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	vehicle, err := h.service.AddVehicle(c.Request.Context(), identity.AccountID(), service.VehicleInput{
		Make:  req.Make,
		Model: req.Model,
		Year:  req.Year,
		Plate: req.Plate,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToVehicleResponse(vehicle))
}

func (h *Handler) ListVehicles(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	vehicles, err := h.service.ListVehicles(c.Request.Context(), identity.AccountID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	resp := make([]transport.VehicleResponse, 0, len(vehicles))
	for i := range vehicles {
		resp = append(resp, transport.ToVehicleResponse(&vehicles[i]))
	}
	httpkit.OK(c, resp)
}

func (h *Handler) SetPrimaryVehicle(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	vehicleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid vehicle id"))
		return
	}

	if err := h.service.SetPrimaryVehicle(c.Request.Context(), identity.AccountID(), vehicleID); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) RemoveVehicle(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	vehicleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid vehicle id"))
		return
	}

	if err := h.service.RemoveVehicle(c.Request.Context(), identity.AccountID(), vehicleID); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func tokenResponse(pair *service.TokenPair) transport.TokenResponse {
	return transport.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		AccountID:    pair.AccountID,
		Role:         string(pair.Role),
	}
}
