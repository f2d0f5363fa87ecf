package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kleanup/dashboard/internal/api/handlers"
	"github.com/kleanup/dashboard/internal/api/middleware"
)

type Router struct {
	engine              *gin.Engine
	authMiddleware      *middleware.AuthMiddleware
	authHandler         *handlers.AuthHandler
	resourceHandler     *handlers.ResourceHandler
	notificationHandler *handlers.NotificationHandler
	adminHandler        *handlers.AdminHandler
}

func NewRouter(
	authMiddleware *middleware.AuthMiddleware,
	authHandler *handlers.AuthHandler,
	resourceHandler *handlers.ResourceHandler,
	notificationHandler *handlers.NotificationHandler,
	adminHandler *handlers.AdminHandler,
) *Router {
	return &Router{
		authMiddleware:      authMiddleware,
		authHandler:         authHandler,
		resourceHandler:     resourceHandler,
		notificationHandler: notificationHandler,
		adminHandler:        adminHandler,
	}
}

func (r *Router) Setup(mode string) *gin.Engine {
	gin.SetMode(mode)
	r.engine = gin.New()
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.AuditMiddleware())
	r.engine.Use(middleware.RequestLogger())

	r.setupRoutes()
	return r.engine
}

func (r *Router) setupRoutes() {
	api := r.engine.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Auth routes (public)
	api.POST("/auth/login", r.authHandler.Login)

	// Protected routes
	protected := api.Group("")
	protected.Use(r.authMiddleware.Authenticate())
	{
		protected.POST("/auth/logout", r.authHandler.Logout)
		protected.GET("/auth/me", r.authHandler.Me)

		protected.GET("/resources", r.resourceHandler.Catalog)

		res := protected.Group("/resources/:resource")
		{
			res.GET("", r.resourceHandler.Page)
			res.POST("/refresh", r.resourceHandler.Refresh)
			res.PUT("/query", r.resourceHandler.SetQuery)
			res.POST("/sort/:field", r.resourceHandler.Sort)

			// Pagination
			res.POST("/page/next", r.resourceHandler.NextPage)
			res.POST("/page/prev", r.resourceHandler.PrevPage)
			res.PUT("/page-size", r.resourceHandler.SetPageSize)

			// Drafts
			res.POST("/drafts", r.resourceHandler.OpenCreate)
			res.GET("/drafts/:key", r.resourceHandler.GetDraft)
			res.PATCH("/drafts/:key", r.resourceHandler.UpdateDraft)
			res.PUT("/drafts/:key/files/:field", r.resourceHandler.UploadFile)
			res.POST("/drafts/:key/submit", r.resourceHandler.SubmitDraft)
			res.DELETE("/drafts/:key", r.resourceHandler.CancelDraft)

			// Records
			res.GET("/records/:id", r.resourceHandler.GetRecord)
			res.POST("/records/:id/edit", r.resourceHandler.OpenEdit)
			res.POST("/records/:id/delete", r.resourceHandler.RequestDelete)
			res.POST("/records/:id/delete/confirm", r.resourceHandler.ConfirmDelete)
			res.DELETE("/records/:id/delete", r.resourceHandler.AbortDelete)
			res.POST("/records/:id/actions/:action", r.resourceHandler.RunAction)
		}

		protected.GET("/notifications", r.notificationHandler.List)
		protected.GET("/notifications/ws", r.notificationHandler.Stream)

		protected.GET("/dashboard/stats", r.adminHandler.Stats)
		protected.GET("/audit-logs", r.adminHandler.QueryAuditLogs)
	}
}
