package infrastructure

import (
	"go.uber.org/zap"
)

// NewLogger returns a production logger for env "production" and a
// development logger otherwise.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
