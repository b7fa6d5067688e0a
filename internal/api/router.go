package api

import (
	"net/http"

	"github.com/ayo6706/retail-banking/internal/api/handler"
	"github.com/ayo6706/retail-banking/internal/api/middleware"
	"github.com/ayo6706/retail-banking/internal/api/spec"
	"github.com/ayo6706/retail-banking/internal/auth"
	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/idempotency"
	"github.com/ayo6706/retail-banking/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Dependencies are the collaborators the HTTP layer needs.
type Dependencies struct {
	Logger         *zap.Logger
	Store          handler.Pinger
	Redis          redis.Cmdable
	Authenticator  auth.Authenticator
	Idempotency    *idempotency.Store
	Auth           *service.AuthService
	Accounts       *service.AccountService
	Transfers      *service.TransferService
	Ledger         *service.LedgerService
	Reconciliation *service.ReconciliationService
	Audit          *service.AuditService

	PublicRateLimitRPS  int
	AuthRateLimitRPS    int
	SessionCookieSecure bool
}

type Router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Router{deps: deps}
}

func (api *Router) Routes() chi.Router {
	d := api.deps
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(d.Logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(d.Logger))

	healthHandler := handler.NewHealthHandler(d.Store, d.Redis)
	authHandler := handler.NewAuthHandler(d.Auth, d.SessionCookieSecure)
	userHandler := handler.NewUserHandler(d.Accounts)
	transferHandler := handler.NewTransferHandler(d.Transfers, d.Ledger)
	accountHandler := handler.NewAccountHandler(d.Accounts)
	adminHandler := handler.NewAdminHandler(d.Transfers, d.Ledger, d.Reconciliation, d.Audit)

	// Public Routes
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.Group(func(r chi.Router) {
		if d.PublicRateLimitRPS > 0 {
			r.Use(middleware.PublicRateLimiter(d.PublicRateLimitRPS))
		}
		r.Post("/v1/auth/register", authHandler.Register)
		r.Post("/v1/auth/login", authHandler.Login)
	})

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.Authenticator, d.Logger))
		if d.AuthRateLimitRPS > 0 {
			r.Use(middleware.AuthRateLimiter(d.AuthRateLimitRPS))
		}
		r.Use(middleware.IdempotencyMiddleware(d.Idempotency, d.Logger))

		r.Post("/v1/auth/logout", authHandler.Logout)

		r.Get("/v1/me", userHandler.Me)
		r.Patch("/v1/me/theme", userHandler.UpdateTheme)
		r.Patch("/v1/me/avatar", userHandler.UpdateAvatar)

		r.Post("/v1/transfers", transferHandler.CreateTransfer)
		r.Get("/v1/transactions", transferHandler.ListOwn)

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))

			r.Get("/accounts", accountHandler.ListAccounts)
			r.Post("/accounts", accountHandler.CreateAccount)
			r.Patch("/accounts/{id}/status", accountHandler.UpdateStatus)

			r.Post("/transactions", adminHandler.CreateTransaction)
			r.Get("/transactions", adminHandler.ListTransactions)
			r.Delete("/transactions/{id}", adminHandler.DeleteTransaction)
			r.Post("/transactions/{id}/reverse", adminHandler.ReverseTransaction)

			r.Get("/reconciliation", adminHandler.Reconcile)
			r.Get("/audit/{entityID}", adminHandler.AuditTrail)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "route/not-found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusMethodNotAllowed, "route/method-not-allowed", "method not allowed")
	})

	return r
}
