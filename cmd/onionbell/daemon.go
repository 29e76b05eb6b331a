package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/onion108/onionbell/internal/config"
	"github.com/onion108/onionbell/internal/control"
	"github.com/onion108/onionbell/internal/engine"
	"github.com/onion108/onionbell/internal/ipc"
	"github.com/onion108/onionbell/internal/metrics"
	"github.com/onion108/onionbell/internal/rules"
	"github.com/onion108/onionbell/internal/sound"
	"github.com/onion108/onionbell/internal/util"
)

func runDaemon(cmd *cobra.Command, _ []string) error {
	logger := util.NewLogger(util.ParseLogLevel(logLevel))
	defer logger.Sync()

	cfg, err := loadConfig(logger, configPath)
	if err != nil {
		return err
	}
	if queryStrategy != "" {
		cfg.Query = config.QueryStrategy(queryStrategy)
		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "--query")
		}
	}
	for _, lint := range cfg.Lint() {
		logger.Warnf("config: %v", lint)
	}
	set, err := rules.Build(cfg)
	if err != nil {
		return errors.Wrap(err, "compile rules")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	player, err := sound.NewPlayer(logger, cfg.Player, sound.WithErrorHook(func(error) {
		collector.RecordPlaybackError()
	}))
	if err != nil {
		return err
	}
	logger.Infof("using %s for playback", player.Name())
	warnUnplayable(ctx, logger, cfg.Sounds())

	inst, err := ipc.Locate()
	if err != nil {
		return err
	}
	if waitSockets {
		logger.Infof("waiting for hyprland sockets in %s", inst.Dir)
		if err := ipc.WaitForSockets(ctx, inst, waitTimeout); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	querier, strategy, err := ipc.NewQuerier(logger, inst, cfg.Query)
	if err != nil {
		return err
	}
	logger.Infof("using %s window queries", strategy)

	listener, err := ipc.Listen(ctx, inst, logger)
	if err != nil {
		return err
	}
	defer listener.Close()
	logger.Infof("listening for bells on %s (%d rules)", inst.EventSocket(), len(set.Rules))

	eng := engine.New(listener, ipc.NewResolver(querier, logger), player, logger, set, collector, cfg.Debounce)
	srv := control.NewServer(eng, logger, controlSocket)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			logger.Warnf("control server unavailable: %v", err)
		}
	}()

	err = eng.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		logger.Infof("shutting down")
		return nil
	}
	logger.Errorf("engine exited: %v", err)
	return err
}

// loadConfig loads path, or the default location when empty. A missing file
// falls back to defaults plus environment overrides.
func loadConfig(logger *util.Logger, path string) (*config.Config, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err == nil {
		logger.Debugf("loaded config from %s", path)
		return cfg, nil
	}
	if !errors.Is(err, config.ErrConfigNotFound) {
		return nil, errors.Wrap(err, "load config")
	}
	logger.Warnf("%v, using defaults", err)
	return config.NewLoader().Load("")
}

func warnUnplayable(ctx context.Context, logger *util.Logger, paths []string) {
	checks, err := sound.Verify(ctx, paths)
	if err != nil {
		logger.Debugf("sound check interrupted: %v", err)
		return
	}
	for _, c := range checks {
		if c.OK() {
			logger.Debugf("sound %s: %s, %s", c.Path, c.Format, c.HumanSize())
			continue
		}
		logger.Warnf("sound %s cannot be played: %v", c.Path, c.Err)
	}
}
