package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartalarm/internal/api"
	"smartalarm/internal/audio"
	"smartalarm/internal/challenge"
	"smartalarm/internal/config"
	"smartalarm/internal/history"
	"smartalarm/internal/lifecycle"
	"smartalarm/internal/logging"
	"smartalarm/internal/notify"
	"smartalarm/internal/persist"
	"smartalarm/internal/sched"
	"smartalarm/internal/sensor"
	"smartalarm/internal/store"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml or json)")
	flag.Parse()

	var cfgm *config.Manager
	if *configPath != "" {
		m, err := config.NewManager(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfgm = m
	} else {
		cfgm = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := cfgm.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("smartalarm starting", "version", version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := persist.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("open storage", "err", err)
		os.Exit(1)
	}
	defer p.Close()
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := p.Init(initCtx); err != nil {
		cancel()
		logger.Error("init storage", "err", err)
		os.Exit(1)
	}
	cancel()

	events := history.NewStore(cfg.History.StoreLimit)
	publisher := notify.NewPublisher(cfg.Events.Kafka, events, logging.Component(logger, "notify"))
	defer publisher.Close()

	timer := sched.NewTimer(logging.Component(logger, "sched"))
	alarms := store.NewStore(p, timer, publisher, cfgm, logging.Component(logger, "store"))

	player := audio.NewPlayer(logging.Component(logger, "audio"))
	feed := sensor.NewFeed(cfg.Sensor.SampleInterval)
	engine := challenge.NewEngine(nil)
	ctrl := lifecycle.NewController(alarms, engine, player, feed, cfgm, publisher, logging.Component(logger, "lifecycle"))
	timer.SetHandler(func(alarmID string) {
		ctrl.HandleNotification(ctx, alarmID)
	})

	if err := alarms.Load(ctx); err != nil {
		// Start with an empty collection; persistence keeps being retried
		// on every mutation.
		logger.Warn("load alarms", "err", err)
	}
	logger.Info("alarms loaded", "count", len(alarms.List()), "active", alarms.ActiveCount())

	go timer.Run(ctx)
	go ctrl.Run(ctx)
	api.Start(ctx, cfgm, alarms, ctrl, events, feed, logging.Component(logger, "api"), version)

	if cfgm.Path() != "" {
		go cfgm.Watch(3*time.Second,
			func(next *config.Config) {
				logger.Info("config reloaded", "path", cfgm.Path())
			},
			func(err error) {
				logger.Warn("config reload failed", "err", err)
			},
			ctx.Done())
	}

	<-ctx.Done()
	logger.Info("smartalarm shutting down")
}
