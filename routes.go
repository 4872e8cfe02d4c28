package devquote

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4/middleware"
)

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/uploads", a.Config.UploadDir)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: a.metrics}))

	e.GET("/", a.handleRoot)
	e.GET("/api/health", a.handleHealth)
	e.POST("/api/estimate", a.handleEstimate)
	e.POST("/api/subscribe", a.handleSubscribe)

	// Public blog. Static segments win over :slug.
	e.GET("/api/blog", a.handleBlogList, a.OptionalAdmin)
	e.GET("/api/blog/feed.xml", a.handleFeed)
	e.GET("/api/blog/sitemap.xml", a.handleSitemap)
	e.GET("/api/blog/:slug", a.handleBlogPost, a.OptionalAdmin)

	admin := e.Group("/api/blog/admin")
	admin.POST("/logout", a.handleAdminLogout)
	admin.GET("/session", a.handleAdminSession, a.RequireAdmin)
	admin.GET("/posts", a.handleAdminPosts, a.RequireAdmin)
	admin.GET("/emails", a.handleAdminEmails, a.RequireAdmin)
	admin.POST("/create", a.handleCreatePost, a.RequireAdmin)
	admin.POST("/images", a.handleImageUpload, a.RequireAdmin, middleware.BodyLimit("10M"))
	admin.GET("/:id", a.handleAdminPost, a.RequireAdmin)
	admin.PUT("/:id", a.handleUpdatePost, a.RequireAdmin)
	admin.DELETE("/:id", a.handleDeletePost, a.RequireAdmin)

	ai := e.Group("/api/blog/ai", a.RequireAdmin)
	ai.POST("/generate", a.handleAIGenerate())
	ai.POST("/improve", a.handleAIImprove())
	ai.POST("/title", a.handleAITitle())
	ai.POST("/excerpt", a.handleAIExcerpt())
	ai.POST("/tags", a.handleAITags())
	ai.POST("/translate", a.handleAITranslate())
}
