package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/eventcal/internal/command"
	"github.com/nhle/eventcal/internal/config"
	"github.com/nhle/eventcal/internal/logger"
	"github.com/nhle/eventcal/internal/relocate"
	"github.com/nhle/eventcal/internal/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "eventcal: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("eventcal", pflag.ContinueOnError)
	configPath := flags.String("config", config.DefaultConfigPath(), "path to the configuration file")
	logLevel := flags.String("log-level", "", "log level, overrides the configuration file")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	configs := config.NewStore(*configPath)
	cfg, err := configs.Read()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Log.Level
	if *logLevel != "" {
		level = *logLevel
	}
	log, err := logger.New(level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	loc, err := store.ParseOffset(cfg.RangeOffset)
	if err != nil {
		return fmt.Errorf("range_offset: %w", err)
	}

	session, err := store.Open(filepath.Join(cfg.StoragePath, store.FileName), store.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Error("closing storage", zap.Error(err))
		}
	}()

	tags := store.NewTagRepository(session)
	events := store.NewEventRepository(session, tags, loc)
	svc := command.New(events, tags, configs, relocate.New(session, configs, log), log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("eventcal ready",
		zap.String("config", configs.Path()),
		zap.String("storage", session.Path()),
		zap.String("range_offset", loc.String()),
	)
	return svc.Serve(ctx, os.Stdin, os.Stdout)
}
