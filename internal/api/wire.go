package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"go.uber.org/zap"

	"carechat/config"
	"carechat/internal/realtime"
	"carechat/pkg/jwt"
)

// ProvideTokens is a Wire provider function that creates the token validator.
// It returns nil when JWT_SECRET is unset and identities come from the
// upstream session layer.
func ProvideTokens(cfg *config.Config) *jwt.JWT {
	if !cfg.JWTEnabled() {
		return nil
	}
	return jwt.NewJWT(cfg.JWTSecret, cfg.JWTExpireSeconds)
}

// ProvideServer is a Wire provider function that creates the HTTP server
func ProvideServer(
	cfg *config.Config,
	registry *realtime.Registry,
	tokens *jwt.JWT,
	socket gin.HandlerFunc,
	routes Routes,
	logger *zap.Logger,
) *Server {
	return NewServer(cfg, registry, tokens, socket, routes, logger)
}

var Set = wire.NewSet(ProvideTokens, ProvideServer)
