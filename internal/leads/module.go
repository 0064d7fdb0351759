// Package leads implements the provider lead pipeline: matching, credit
// gated delivery and the linear status progression.
package leads

import (
	accountsrepo "driveassist_backend/internal/accounts/repository"
	"driveassist_backend/internal/leads/handler"
	"driveassist_backend/internal/leads/repository"
	"driveassist_backend/internal/leads/service"
	apphttp "driveassist_backend/internal/http"
	"driveassist_backend/platform/httpkit"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/settings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	service *service.Service
	handler *handler.Handler
}

func NewModule(pool *pgxpool.Pool, credits service.LeadCredits, directory service.ProviderDirectory, st *settings.Store, bus service.EventBus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, credits, directory, st, bus, log)

	return &Module{
		service: svc,
		handler: handler.New(svc),
	}
}

// Service exposes lead dispatch to the diagnosis orchestrator.
func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) Name() string {
	return "leads"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leads := ctx.Protected.Group("/leads")
	leads.Use(httpkit.RequireRole(string(accountsrepo.RoleProvider)))
	{
		leads.GET("", m.handler.List)
		leads.GET("/:id", m.handler.Get)
		leads.GET("/:id/activities", m.handler.Activities)
		leads.PUT("/:id/status", m.handler.Advance)
		leads.POST("/:id/unlock", m.handler.Unlock)
	}

	admin := ctx.Admin.Group("/leads")
	{
		admin.GET("/match", m.handler.Match)
	}
}

var _ apphttp.Module = (*Module)(nil)
