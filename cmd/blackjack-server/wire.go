//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/yola1107/blackjack/internal/conf"
	"github.com/yola1107/blackjack/internal/server"
	"github.com/yola1107/blackjack/internal/service"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Work, *conf.Room, *conf.Game, *conf.Watcher, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(server.ProviderSet, service.ProviderSet, newApp))
}
