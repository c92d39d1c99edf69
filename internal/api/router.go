package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/warden/warden/internal/config"
	"github.com/warden/warden/internal/firewall"
	"github.com/warden/warden/internal/storage"
	"github.com/warden/warden/internal/supervisor"
	"github.com/warden/warden/internal/updater"
	"github.com/warden/warden/internal/websocket"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Router holds all route handlers and dependencies
type Router struct {
	engine          *gin.Engine
	config          *config.Manager
	serviceHandler  *ServiceHandler
	firewallHandler *FirewallHandler
	systemHandler   *SystemHandler
	hub             *websocket.Hub
}

// NewRouter creates a new router with all dependencies
func NewRouter(
	cfg *config.Manager,
	store *storage.Storage,
	sup *supervisor.Supervisor,
	fw firewall.Manager,
	upd *updater.Updater,
	hub *websocket.Hub,
) *Router {
	if cfg.Get().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(gin.Logger())

	r := &Router{
		engine:          engine,
		config:          cfg,
		hub:             hub,
		serviceHandler:  NewServiceHandler(cfg, sup, store),
		firewallHandler: NewFirewallHandler(cfg, fw, store),
		systemHandler:   NewSystemHandler(cfg, upd),
	}

	r.setupRoutes()
	return r
}

// setupRoutes configures all routes
func (r *Router) setupRoutes() {
	v1 := r.engine.Group("/api/v1")
	if r.config.Get().Auth.Enabled {
		v1.Use(r.authMiddleware())
	}

	// Service routes
	serviceGroup := v1.Group("/service")
	{
		serviceGroup.GET("", r.serviceHandler.Get)
		serviceGroup.GET("/status", r.serviceHandler.Status)
		serviceGroup.POST("/provision", r.serviceHandler.Provision)
		serviceGroup.POST("/start", r.serviceHandler.Start)
		serviceGroup.POST("/stop", r.serviceHandler.Stop)
		serviceGroup.POST("/restart", r.serviceHandler.Restart)
		serviceGroup.POST("/kill", r.serviceHandler.Kill)
		serviceGroup.DELETE("", r.serviceHandler.Deprovision)
	}

	// Firewall routes
	firewallGroup := v1.Group("/firewall")
	{
		firewallGroup.GET("/rule", r.firewallHandler.Get)
		firewallGroup.POST("/rule", r.firewallHandler.Ensure)
		firewallGroup.DELETE("/rule", r.firewallHandler.Remove)
	}

	// Journal and system routes
	v1.GET("/journal", r.serviceHandler.Journal)
	v1.GET("/system/info", r.systemHandler.GetSystemInfo)
	v1.GET("/config", r.systemHandler.GetConfig)
	v1.POST("/config/reload", r.systemHandler.ReloadConfig)
	v1.PUT("/config/override", r.systemHandler.SetConfigOverride)
	v1.GET("/update/check", r.systemHandler.CheckUpdate)
	v1.POST("/update/apply", r.systemHandler.ApplyUpdate)
	v1.GET("/version", r.systemHandler.GetVersion)

	// WebSocket event stream
	r.engine.GET("/ws/events", r.handleEventsWebSocket)

	// Swagger
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": r.hub.ClientCount()})
	})
}

// handleEventsWebSocket handles supervision event WebSocket connections
func (r *Router) handleEventsWebSocket(c *gin.Context) {
	clientID := c.Query("client")
	if clientID == "" {
		clientID = "anonymous"
	}
	r.hub.HandleWebSocket(c.Writer, c.Request, clientID)
}

// authMiddleware returns the authentication middleware
func (r *Router) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := r.config.Get()
		if !cfg.Auth.Enabled {
			c.Next()
			return
		}

		username, password, ok := c.Request.BasicAuth()
		if !ok || username != cfg.Auth.Username || password != cfg.Auth.Password {
			c.Header("WWW-Authenticate", `Basic realm="Warden"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}

// corsMiddleware returns CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Engine returns the Gin engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
