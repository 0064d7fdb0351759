// Package accounts implements registration, authentication, provider
// profiles and requester vehicles.
package accounts

import (
	"driveassist_backend/internal/accounts/handler"
	"driveassist_backend/internal/accounts/repository"
	"driveassist_backend/internal/accounts/service"
	apphttp "driveassist_backend/internal/http"
	"driveassist_backend/platform/config"
	"driveassist_backend/platform/httpkit"
	"driveassist_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	repo    *repository.Repository
	service *service.Service
	handler *handler.Handler
}

func NewModule(pool *pgxpool.Pool, cfg config.AuthServiceConfig, provisioner service.AllowanceProvisioner, bus service.EventBus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, cfg, provisioner, bus, log)

	return &Module{
		repo:    repo,
		service: svc,
		handler: handler.New(svc),
	}
}

// Repository exposes provider directory reads and counters to sibling modules.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

func (m *Module) Name() string {
	return "accounts"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	auth := ctx.V1.Group("/auth")
	auth.Use(ctx.AuthRateLimiter.RateLimit())
	{
		auth.POST("/register", m.handler.Register)
		auth.POST("/login", m.handler.Login)
		auth.POST("/refresh", m.handler.Refresh)
		auth.POST("/logout", m.handler.Logout)
	}

	me := ctx.Protected.Group("/me")
	{
		me.GET("", m.handler.GetMe)
	}

	provider := ctx.Protected.Group("/provider")
	provider.Use(httpkit.RequireRole(string(repository.RoleProvider)))
	{
		provider.GET("/profile", m.handler.GetProfile)
		provider.PUT("/profile", m.handler.UpdateProfile)
		provider.PUT("/availability", m.handler.SetAvailability)
	}

	vehicles := ctx.Protected.Group("/vehicles")
	vehicles.Use(httpkit.RequireRole(string(repository.RoleRequester)))
	{
		vehicles.POST("", m.handler.AddVehicle)
		vehicles.GET("", m.handler.ListVehicles)
		vehicles.PUT("/:id/primary", m.handler.SetPrimaryVehicle)
		vehicles.DELETE("/:id", m.handler.RemoveVehicle)
	}

	admin := ctx.Admin.Group("/providers")
	{
		admin.PUT("/:id/verification", m.handler.VerifyProvider)
	}
}

var _ apphttp.Module = (*Module)(nil)
