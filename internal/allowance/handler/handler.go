// Package handler exposes the allowance ledger over HTTP.
package handler

import (
	"net/http"

	"driveassist_backend/internal/allowance/repository"
	"driveassist_backend/internal/allowance/service"
	"driveassist_backend/internal/allowance/transport"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// GetBalance returns the authenticated account's meter for the :kind path param.
func (h *Handler) GetBalance(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	kind, err := parseKind(c.Param("kind"))
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	balance, err := h.service.GetBalance(c.Request.Context(), identity.AccountID(), kind)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	resp := transport.BalanceResponse{
		Kind:                   string(balance.Kind),
		ComplimentaryRemaining: balance.ComplimentaryRemaining,
		PurchasedRemaining:     balance.PurchasedRemaining,
		SubscriptionActive:     balance.SubscriptionActive,
		TotalConsumed:          balance.TotalConsumed,
		Purchases:              make([]transport.PurchaseResponse, 0, len(balance.Purchases)),
	}
	for i := range balance.Purchases {
		resp.Purchases = append(resp.Purchases, transport.ToPurchaseResponse(&balance.Purchases[i]))
	}

	httpkit.OK(c, resp)
}

// Grant credits a settled payment. Mounted under the admin group; the payment
// provider's webhook relay authenticates as an admin service account.
func (h *Handler) Grant(c *gin.Context) {
	var req transport.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	kind, err := parseKind(req.Kind)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	purchase, err := h.service.Grant(c.Request.Context(), service.GrantInput{
		AccountID: req.AccountID,
		Kind:      kind,
		Type:      repository.PurchaseType(req.Type),
		Reference: req.Reference,
		Units:     req.Units,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToPurchaseResponse(purchase))
}

func parseKind(raw string) (repository.Kind, error) {
	switch repository.Kind(raw) {
	case repository.KindDiagnosis:
		return repository.KindDiagnosis, nil
	case repository.KindLead:
		return repository.KindLead, nil
	default:
		return "", apperr.Validation("kind must be diagnosis or lead")
	}
}
