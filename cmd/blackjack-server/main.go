package main

import (
	"flag"
	"os"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel"

	"github.com/yola1107/blackjack/internal/conf"
	"github.com/yola1107/blackjack/internal/service"
	"github.com/yola1107/blackjack/library/log/zap"
	"github.com/yola1107/blackjack/transport/websocket"
)

var (
	Name     = conf.Name
	Version  = conf.Version
	flagconf string // -conf path
	id, _    = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, e.g. -conf config.yaml")
}

func newApp(logger log.Logger, ws *websocket.Server, metrics *service.Metrics) *kratos.App {
	otel.SetMeterProvider(metrics.Provider())
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			ws,
		),
	)
}

func main() {
	flag.Parse()

	c, bc, err := conf.LoadConfig(flagconf)
	if err != nil {
		panic(err)
	}
	defer c.Close()

	logger, err := zap.NewLogger(bc.Log.Logger)
	if err != nil {
		panic(err)
	}
	log.SetLogger(logger)
	defer logger.Close()

	watcher, err := conf.Watch(c, bc, logger)
	if err != nil {
		panic(err)
	}

	app, cleanup, err := wireApp(bc.Server, bc.Server.Work, bc.Room, bc.Game, watcher, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
