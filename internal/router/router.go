package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/storefront/api/handler"
	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/internal/middleware"
)

type Handlers struct {
	Auth       *apiHandler.AuthHandler
	Purchase   *apiHandler.PurchaseHandler
	Lock       *apiHandler.LockHandler
	User       *apiHandler.UserHandler
	Product    *apiHandler.ProductHandler
	Message    *apiHandler.MessageHandler
	DeadLetter *apiHandler.DeadLetterHandler
	Health     *apiHandler.HealthHandler

	// Metrics is mounted at /metrics when set.
	Metrics fasthttp.RequestHandler
	// Pprof is mounted under /debug/pprof when set.
	Pprof fasthttp.RequestHandler
}

func New(handlers Handlers, auth middleware.Middleware) *router.Router {
	r := router.New()

	authed := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return middleware.Chain(h, auth)
	}
	admin := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return middleware.Chain(h, auth, middleware.RequireRole(domain.RoleAdmin))
	}
	approvers := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return middleware.Chain(h, auth, middleware.RequireRole(domain.RoleAdmin, domain.RoleUser))
	}

	r.GET("/health", handlers.Health.Check)
	if handlers.Metrics != nil {
		r.GET("/metrics", handlers.Metrics)
	}
	if handlers.Pprof != nil {
		r.GET("/debug/pprof/{profile:*}", handlers.Pprof)
	}

	// Auth routes
	r.POST("/api/v1/auth/login", handlers.Auth.Login)
	r.POST("/api/v1/auth/refresh", authed(handlers.Auth.Refresh))
	r.POST("/api/v1/auth/logout", authed(handlers.Auth.Logout))

	// Purchases
	r.POST("/api/v1/purchases", authed(handlers.Purchase.Create))
	r.GET("/api/v1/purchases", authed(handlers.Purchase.List))
	r.GET("/api/v1/purchases/decided", authed(handlers.Purchase.RecentlyDecided))
	r.GET("/api/v1/purchases/stats/products", approvers(handlers.Purchase.ProductStats))
	r.GET("/api/v1/purchases/stats/monthly", approvers(handlers.Purchase.MonthlyStats))
	r.GET("/api/v1/purchases/{id}", authed(handlers.Purchase.Get))
	r.POST("/api/v1/purchases/{id}/approve", approvers(handlers.Purchase.Approve))
	r.POST("/api/v1/purchases/{id}/reject", approvers(handlers.Purchase.Reject))

	// Edit locks
	r.GET("/api/v1/locks", authed(handlers.Lock.List))
	r.POST("/api/v1/locks/{type}/{id}", authed(handlers.Lock.Lock))
	r.DELETE("/api/v1/locks/{type}/{id}", authed(handlers.Lock.Unlock))

	// Users and catalog
	r.GET("/api/v1/users", approvers(handlers.User.List))
	r.PUT("/api/v1/users/{id}", admin(handlers.User.Update))
	r.GET("/api/v1/products", authed(handlers.Product.List))
	r.PUT("/api/v1/products/{id}", admin(handlers.Product.Save))
	r.DELETE("/api/v1/products/{id}", admin(handlers.Product.Delete))

	// Admin
	r.POST("/api/v1/messages", admin(handlers.Message.Broadcast))
	r.GET("/api/v1/admin/deadletters", admin(handlers.DeadLetter.List))
	r.DELETE("/api/v1/admin/deadletters/{id}", admin(handlers.DeadLetter.Remove))

	return r
}
