//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"carechat/config"
	"carechat/internal/api"
	"carechat/internal/chat"
	"carechat/internal/chat/storage"
	"carechat/internal/realtime"
)

var AppSet = wire.NewSet(
	storage.Set,
	realtime.Set,
	chat.Set,
	api.Set,
	wire.Bind(new(chat.Broadcaster), new(*realtime.Registry)),
	wire.Struct(new(App), "*"),
)

func InitializeApp(cfg *config.Config, logger *zap.Logger, store storage.Store, cache chat.Cache) *App {
	wire.Build(AppSet)

	return &App{}
}
