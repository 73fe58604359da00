package main

import (
	"flag"
	"os"

	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/infra/logging"
	"go-shortener-pipeline/internal/server"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "shortener-consumer"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs", "config path, eg: -conf config.yaml")
}

func newApp(
	logger log.Logger,
	hs *http.Server,
	urls *server.Consumer[*domain.URL],
	clicks *server.Consumer[domain.ClickEvent],
) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			hs,
			urls,
			clicks,
		),
	)
}

func main() {
	flag.Parse()

	bc, closeConf, err := conf.Load(flagconf)
	if err != nil {
		panic(err)
	}
	defer closeConf()

	zl, syncLog, err := logging.New(bc.Log)
	if err != nil {
		panic(err)
	}
	defer syncLog()
	logger := logging.WithService(zl, id, Name, Version)
	log.SetLogger(logger)

	app, cleanup, err := wireApp(bc.Server, bc.Data, bc.Broker, bc.Consumers, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
