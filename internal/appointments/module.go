// Package appointments implements slot booking and the appointment
// lifecycle between requesters and providers.
package appointments

import (
	accountsrepo "driveassist_backend/internal/accounts/repository"
	"driveassist_backend/internal/appointments/handler"
	"driveassist_backend/internal/appointments/repository"
	"driveassist_backend/internal/appointments/service"
	apphttp "driveassist_backend/internal/http"
	"driveassist_backend/platform/httpkit"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/redislock"
	"driveassist_backend/platform/settings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	repo    *repository.Repository
	service *service.Service
	handler *handler.Handler
}

func NewModule(pool *pgxpool.Pool, directory service.ProviderDirectory, locker redislock.Locker, st *settings.Store, bus service.EventBus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, directory, locker, st, bus, log)

	return &Module{
		repo:    repo,
		service: svc,
		handler: handler.New(svc),
	}
}

// Repository exposes reminder reads to the worker.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

func (m *Module) Name() string {
	return "appointments"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	appointments := ctx.Protected.Group("/appointments")
	{
		appointments.GET("", m.handler.List)
		appointments.GET("/:id", m.handler.Get)
		appointments.PUT("/:id/cancel", m.handler.Cancel)
	}

	requester := appointments.Group("")
	requester.Use(httpkit.RequireRole(string(accountsrepo.RoleRequester)))
	{
		requester.POST("", m.handler.Book)
		requester.PUT("/:id/reschedule", m.handler.Reschedule)
	}

	provider := appointments.Group("")
	provider.Use(httpkit.RequireRole(string(accountsrepo.RoleProvider)))
	{
		provider.PUT("/:id/confirm", m.handler.Confirm)
		provider.PUT("/:id/reject", m.handler.Reject)
		provider.PUT("/:id/start", m.handler.Start)
		provider.PUT("/:id/complete", m.handler.Complete)
	}

	admin := ctx.Admin.Group("/appointments")
	{
		admin.PUT("/:id/no-show", m.handler.NoShow)
	}
}

var _ apphttp.Module = (*Module)(nil)
