package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/peerline/peerline/bridge"
	"github.com/peerline/peerline/calllog"
	"github.com/peerline/peerline/config"
	"github.com/peerline/peerline/presence"
	"github.com/peerline/peerline/room"
	httpServer "github.com/peerline/peerline/server/http"
	websocketServer "github.com/peerline/peerline/server/websocket"
	"github.com/peerline/peerline/service"
	sw "github.com/peerline/peerline/switch"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		configPath    = fs.StringP("config", "c", "", "path to config file")
		apiListenAddr = fs.StringP("api-listen-addr", "a", "", "api listen address (overrides config)")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", "", "websocket signaling listen address (overrides config)")
		logLevel      = fs.StringP("log-level", "l", "", "log level (overrides config)")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if *apiListenAddr != "" {
		cfg.APIListenAddr = *apiListenAddr
	}
	if *wsListenAddr != "" {
		cfg.WSListenAddr = *wsListenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	var (
		users = presence.NewRegistry()
		rooms = room.NewRegistry()
		swtch = sw.NewSwitch(&logger)
	)
	calls := bridge.NewBridge(bridge.Config{
		Presence: users,
		Rooms:    rooms,
		Sender:   swtch,
		// deployments plug the chat service's membership check here
		Membership: bridge.AllowAllMembership(),
		Sink:       calllog.NewZerologSink(&logger),
		Logger:     &logger,
		PendingTTL: cfg.CallTimeout,
	})
	svc := service.NewService(service.Config{
		Presence: users,
		Rooms:    rooms,
		Sender:   swtch,
		Calls:    calls,
		Logger:   &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:        &logger,
		StatusService: svc,
		ListenAddr:    cfg.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:        &logger,
		RelayService:  svc,
		Authenticator: websocketServer.QueryAuthenticator{},
		ListenAddr:    cfg.WSListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
