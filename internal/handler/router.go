package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Onyemech/teemplot-sub006/pkg/middleware"
)

// RouterConfig bundles the handlers and middleware inputs for the HTTP
// surface
type RouterConfig struct {
	Invitations *InvitationHandler
	Capacity    *CapacityHandler
	Health      *HealthHandler
	JWTSecret   string
	GinMode     string
}

// SetupRouter builds the gin engine with all routes. The acceptance surface
// under /api/v1/invitations is public: invitees hold a token, not an
// account.
func SetupRouter(config *RouterConfig) *gin.Engine {
	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())

	router.GET("/health/live", config.Health.Live)
	router.GET("/health/ready", config.Health.Ready)

	v1 := router.Group("/api/v1")

	public := v1.Group("/invitations")
	{
		public.GET("/:token", config.Invitations.Preview)
		public.POST("/:token/accept", config.Invitations.Accept)
	}

	companies := v1.Group("/companies/:company_id")
	companies.Use(middleware.JWTMiddleware(&middleware.JWTConfig{Secret: config.JWTSecret}))
	companies.Use(middleware.RequireCompany())
	{
		companies.POST("/invitations", config.Invitations.Invite)
		companies.GET("/invitations", config.Invitations.List)
		companies.POST("/invitations/:invitation_id/resend", config.Invitations.Resend)
		companies.DELETE("/invitations/:invitation_id", config.Invitations.Cancel)

		companies.GET("/capacity", config.Capacity.Get)
		companies.GET("/capacity/stream", config.Capacity.Stream)
	}

	return router
}
