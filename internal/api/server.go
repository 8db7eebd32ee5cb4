package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carechat/config"
	"carechat/internal/realtime"
	"carechat/pkg/jwt"
)

// Routes is implemented by handlers mounted under /api/v1.
type Routes interface {
	RegisterRoutes(r gin.IRoutes)
}

type Server struct {
	router   *gin.Engine
	registry *realtime.Registry
	tokens   *jwt.JWT
	logger   *zap.Logger
}

func NewServer(
	cfg *config.Config,
	registry *realtime.Registry,
	tokens *jwt.JWT,
	socket gin.HandlerFunc,
	routes Routes,
	logger *zap.Logger,
) *Server {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(Logger(logger.Named("http")))

	server := &Server{
		router:   router,
		registry: registry,
		tokens:   tokens,
		logger:   logger,
	}
	server.setupRoutes(cfg.HTTPRateLimit, socket, routes)
	return server
}

func (s *Server) setupRoutes(rps int, socket gin.HandlerFunc, routes Routes) {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ws", socket)

	// Group for authenticated routes
	v1 := s.router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(rps))
	v1.Use(AuthMiddleware(s.tokens))
	routes.RegisterRoutes(v1)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthCheck(c *gin.Context) {
	stats := s.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": stats.Sessions,
		"users":    stats.Users,
		"rooms":    stats.Rooms,
	})
}
