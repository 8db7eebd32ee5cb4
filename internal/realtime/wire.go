package realtime

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"carechat/config"
)

// ProvideOptions is a Wire provider function that derives session options from the config
func ProvideOptions(cfg *config.Config) Options {
	return Options{
		PongWait:   cfg.WS.PongWait,
		WriteWait:  cfg.WS.WriteWait,
		ReadLimit:  cfg.WS.ReadLimit,
		SendBuffer: cfg.WS.SendBuffer,
	}
}

// ProvideRegistry is a Wire provider function that creates a Registry
func ProvideRegistry(logger *zap.Logger) *Registry {
	return NewRegistry(logger)
}

var Set = wire.NewSet(ProvideOptions, ProvideRegistry)
