// Package diagnosis runs the engagement flow: a requester spends a diagnosis
// credit, the complaint is assessed and leads go out to matching providers.
package diagnosis

import (
	accountsrepo "driveassist_backend/internal/accounts/repository"
	"driveassist_backend/internal/diagnosis/engine"
	"driveassist_backend/internal/diagnosis/handler"
	"driveassist_backend/internal/diagnosis/repository"
	"driveassist_backend/internal/diagnosis/service"
	apphttp "driveassist_backend/internal/http"
	"driveassist_backend/platform/httpkit"
	"driveassist_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	repo    *repository.Repository
	service *service.Service
	handler *handler.Handler
}

func NewModule(pool *pgxpool.Pool, ledger service.CreditLedger, leads service.LeadDispatcher, eng engine.Engine, bus service.EventBus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, ledger, leads, eng, bus, log)

	return &Module{
		repo:    repo,
		service: svc,
		handler: handler.New(svc),
	}
}

// Repository exposes read access for the notification module.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

func (m *Module) Name() string {
	return "diagnosis"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	diagnoses := ctx.Protected.Group("/diagnoses")
	diagnoses.Use(httpkit.RequireRole(string(accountsrepo.RoleRequester)))
	{
		diagnoses.POST("", m.handler.Submit)
		diagnoses.GET("", m.handler.List)
		diagnoses.GET("/:id", m.handler.Get)
		diagnoses.GET("/:id/leads", m.handler.ListLeads)
	}
}

var _ apphttp.Module = (*Module)(nil)
