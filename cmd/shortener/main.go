package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"go-shortener-pipeline/internal/conf"
	"go-shortener-pipeline/internal/domain"
	"go-shortener-pipeline/internal/infra/eventbus"
	"go-shortener-pipeline/internal/infra/logging"
	"go-shortener-pipeline/internal/server"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "shortener"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

const drainTimeout = 15 * time.Second

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs", "config path, eg: -conf config.yaml")
}

func newApp(
	logger log.Logger,
	broker *conf.Broker,
	hs *http.Server,
	gs *server.GRPCServer,
	queue *server.URLQueue,
	emitter *eventbus.Emitter,
	urls *server.Consumer[*domain.URL],
	clicks *server.Consumer[domain.ClickEvent],
) *kratos.App {
	servers := []transport.Server{hs}
	if gs != nil {
		servers = append(servers, gs)
	}

	// An in-process bus has no other subscribers, so the consumers run here.
	// They start first and stop last so that the drained backlog is applied.
	var consumers []transport.Server
	if broker.Driver == "gochannel" {
		consumers = []transport.Server{urls, clicks}
	}

	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(servers...),
		kratos.BeforeStart(func(ctx context.Context) error {
			for _, c := range consumers {
				if err := c.Start(ctx); err != nil {
					return err
				}
			}
			if err := queue.Start(ctx); err != nil {
				return err
			}
			return emitter.Start(ctx)
		}),
		// Servers are stopped by now, so nothing enqueues while draining.
		// ctx is the app context, already canceled by Stop.
		kratos.AfterStop(func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			defer cancel()
			errs := []error{queue.Stop(ctx), emitter.Stop(ctx)}
			for _, c := range consumers {
				errs = append(errs, c.Stop(ctx))
			}
			return errors.Join(errs...)
		}),
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

	app, cleanup, err := wireApp(bc.Server, bc.Data, bc.Broker, bc.PublishQueue, bc.Consumers, bc.Emitter, bc.URL, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
