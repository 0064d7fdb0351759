// Package allowance implements the consumable credit ledger. Requesters
// spend diagnosis credits to run diagnostics, providers spend lead credits
// to receive qualified leads. Credits arrive as complimentary seed units,
// purchased packages or subscriptions.
package allowance

import (
	"driveassist_backend/internal/allowance/handler"
	"driveassist_backend/internal/allowance/repository"
	"driveassist_backend/internal/allowance/service"
	apphttp "driveassist_backend/internal/http"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/settings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	service *service.Service
	handler *handler.Handler
}

func NewModule(pool *pgxpool.Pool, st *settings.Store, bus service.EventBus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, st, bus, log)

	return &Module{
		service: svc,
		handler: handler.New(svc),
	}
}

// Service exposes the ledger to sibling modules (diagnosis consume, lead
// consume, account provisioning).
func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) Name() string {
	return "allowance"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	allowances := ctx.Protected.Group("/allowances")
	{
		allowances.GET("/:kind", m.handler.GetBalance)
	}

	admin := ctx.Admin.Group("/allowances")
	{
		admin.POST("/grant", m.handler.Grant)
	}
}

var _ apphttp.Module = (*Module)(nil)
