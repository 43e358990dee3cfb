package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/noahxzhu/broadcast-scheduler/internal/audio"
	"github.com/noahxzhu/broadcast-scheduler/internal/broadcast"
	"github.com/noahxzhu/broadcast-scheduler/internal/config"
	"github.com/noahxzhu/broadcast-scheduler/internal/coordinator"
	"github.com/noahxzhu/broadcast-scheduler/internal/logging"
	"github.com/noahxzhu/broadcast-scheduler/internal/notify"
	"github.com/noahxzhu/broadcast-scheduler/internal/player"
	"github.com/noahxzhu/broadcast-scheduler/internal/scheduler"
	"github.com/noahxzhu/broadcast-scheduler/internal/storage"
	"github.com/noahxzhu/broadcast-scheduler/internal/web"
)

func serve(c *cli.Context) error {
	// Load Config
	cfg, err := config.LoadConfig(configPath(c))
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty, os.Stdout)
	zlog.Logger = logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := afero.NewOsFs()
	prober := audio.NewFFprobe(cfg.Player.ProbeCommand)

	// Init Storage
	store := storage.NewStore(fs, cfg.Storage.FilePath, prober, logger)

	// Init playback
	backend := audio.NewProcessBackend(cfg.Player.Command, cfg.Player.Args, logger)
	pl := player.New(backend, fs, logger,
		player.WithProber(prober),
		player.WithPollInterval(cfg.Player.PollInterval),
		player.WithIdleTimeout(cfg.Player.IdleTimeout),
	)
	coord := coordinator.New(pl, fs, logger)
	sched := scheduler.New(scheduler.SystemClock, cfg.Scheduler.TickInterval, logger)

	// Init notifications
	sinkList, closeSinks := sinks(cfg, logger)
	defer closeSinks()
	dispatcher := notify.NewDispatcher(logger, notify.DefaultBuffer, sinkList...)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	svc := broadcast.New(store, sched, coord, pl, fs, dispatcher, logger)
	svc.Start(ctx)
	defer svc.Close()

	if cfg.Storage.Watch {
		go func() {
			if err := svc.Watch(ctx); err != nil {
				logger.Error().Err(err).Msg("schedule file watcher stopped")
			}
		}()
	}

	// Init Web Server
	httpServer := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: web.NewServer(svc, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Server.Port).Str("url", "http://localhost"+cfg.Server.Port).Msg("starting server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("HTTP server error")
		return err
	}

	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return err
	}
	logger.Info().Msg("server exited")
	return nil
}

func sinks(cfg *config.Config, logger zerolog.Logger) ([]notify.Sink, func()) {
	var out []notify.Sink
	closeFn := func() {}
	if cfg.Pushover.Enabled() {
		out = append(out, notify.NewPushoverSink(cfg.Pushover.Token, cfg.Pushover.User))
	}
	if cfg.MQTT.Broker != "" {
		sink, client, err := notify.ConnectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix, logger)
		if err != nil {
			logger.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT notifications disabled")
		} else {
			out = append(out, sink)
			closeFn = func() { client.Disconnect(250) }
		}
	}
	return out, closeFn
}
