package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/keshon/basicbot/internal/bot"
	"github.com/keshon/basicbot/internal/config"
	"github.com/keshon/basicbot/internal/core"
	"github.com/keshon/basicbot/internal/discord"
	"github.com/keshon/basicbot/internal/logging"
	"github.com/keshon/basicbot/internal/storage"
	"github.com/keshon/basicbot/internal/version"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const cooldownSweep = time.Minute

type runOptions struct {
	configPath string
	envFile    string
	console    io.Writer
}

// run starts the bot and blocks until ctx is cancelled or the gateway
// fails. A config without a token is not an error: the bot says so and
// exits.
func run(ctx context.Context, opts runOptions) error {
	envLoaded, err := config.LoadEnv(opts.envFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	control, err := logging.New(logging.ChannelControl, logging.Options{Dir: cfg.LogDir, Suffix: ".log", Console: opts.console})
	if err != nil {
		return err
	}
	defer control.Close()
	dms, err := logging.New(logging.ChannelDirectMessage, logging.Options{Dir: cfg.LogDir, Suffix: ".dms.log", Console: opts.console})
	if err != nil {
		return err
	}
	defer dms.Close()

	log := control.Logger
	log.Info().Str("config", cfg.Path()).Bool("env_file", envLoaded).Msgf("Starting %s", version.AppName)

	if cfg.Token == "" {
		log.Error().Msg("Please add the token to the config file!")
		return nil
	}

	store, err := storage.New(cfg.PrefixesPath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := discord.New(cfg.Token, log)
	if err != nil {
		return err
	}

	b, err := bot.New(bot.Options{
		Config:   cfg,
		Gateway:  session,
		Prefixes: store,
		Log:      log,
		DMs:      dms.Logger,
	})
	if err != nil {
		return err
	}
	log.Info().Strs("available", bot.Extensions()).Msg("Extensions registered")
	b.LoadAutoExtensions(ctx)

	return supervise(ctx, log,
		func(ctx context.Context) error {
			if err := session.Run(ctx, b); err != nil {
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		},
		func(ctx context.Context) error {
			core.RunCooldownCleaner(ctx, b.Cooldowns(), cooldownSweep, log)
			return nil
		},
	)
}

// supervise runs tasks until all return or one fails, and records how the
// bot stopped in the control log.
func supervise(ctx context.Context, log zerolog.Logger, tasks ...func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error { return task(ctx) })
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Bot stopped with an error")
		return err
	}
	log.Info().Msg("Bot exited")
	return nil
}
