//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"go-shortener-pipeline/internal/biz"
	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/data"
	"go-shortener-pipeline/internal/infra/eventbus"
	"go-shortener-pipeline/internal/server"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Broker, *conf.Consumers, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		server.ConsumerProviderSet,
		data.ProviderSet,
		biz.ProviderSet,
		eventbus.ProviderSet,
		newApp,
	))
}
