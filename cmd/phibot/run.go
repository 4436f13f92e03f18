package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"phibot/internal/audit"
	"phibot/internal/bot"
	"phibot/internal/bus"
	"phibot/internal/channel"
	"phibot/internal/config"
	"phibot/internal/dispatch"
	"phibot/internal/domain"
	"phibot/internal/metrics"

	"github.com/spf13/cobra"
)

const (
	connectTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "run",
		Short:        "Connect to the enabled chat platforms and start watching",
		Long:         "Connects every enabled channel, then polls for messages until interrupted. Press Ctrl+C to stop.",
		SilenceUsage: true,
		RunE:         runBot,
	}
}

// buildChannels creates an adapter for each enabled platform, in a fixed order.
func buildChannels(cfg *config.Config, log *slog.Logger) []domain.Channel {
	var chans []domain.Channel
	if c := cfg.Channels.Slack; c.Enabled {
		chans = append(chans, channel.NewSlack(channel.SlackConfig{
			BotToken: c.BotToken,
			AppToken: c.AppToken,
			BotID:    c.BotID,
			Logger:   log.With("channel", "slack"),
		}))
	}
	if c := cfg.Channels.Discord; c.Enabled {
		chans = append(chans, channel.NewDiscord(channel.DiscordConfig{
			Token:   c.Token,
			GuildID: c.GuildID,
			Logger:  log.With("channel", "discord"),
		}))
	}
	if c := cfg.Channels.Telegram; c.Enabled {
		chans = append(chans, channel.NewTelegram(channel.TelegramConfig{
			Token:  c.Token,
			Logger: log.With("channel", "telegram"),
		}))
	}
	if c := cfg.Channels.Console; c.Enabled {
		chans = append(chans, channel.NewConsole(channel.ConsoleConfig{
			BotName: c.BotName,
			Logger:  log.With("channel", "console"),
		}))
	}
	return chans
}

// connectAll connects every channel and returns the identities keyed by
// channel name. The first failure aborts startup.
func connectAll(ctx context.Context, chans []domain.Channel) (map[string]domain.Identity, error) {
	ids := make(map[string]domain.Identity, len(chans))
	for _, ch := range chans {
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		id, err := ch.Connect(cctx)
		cancel()
		if err != nil {
			return nil, &domain.ConnectError{Platform: ch.Name(), Err: err}
		}
		ids[ch.Name()] = id
	}
	return ids, nil
}

// newDispatcher builds the dispatcher from the bot and alerts sections.
func newDispatcher(cfg *config.Config, poster domain.Poster, log *slog.Logger) (*dispatch.Dispatcher, error) {
	mode, err := dispatch.ParseRedactMode(cfg.Alerts.RedactMode)
	if err != nil {
		return nil, err
	}
	dcfg := dispatch.Config{
		Poster:         poster,
		ExampleCommand: cfg.Bot.ExampleCommand,
		RedactMode:     mode,
		Logger:         log,
	}
	if cfg.Bot.ResponsesFile != "" {
		cat, err := dispatch.LoadCatalog(cfg.Bot.ResponsesFile)
		if err != nil {
			return nil, err
		}
		dcfg.Catalog = &cat
	}
	return dispatch.New(dcfg), nil
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	chans := buildChannels(cfg, logger)
	if len(chans) == 0 {
		return errors.New("no channels enabled: set SLACK_BOT_TOKEN or enable a channel in the config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identities, err := connectAll(ctx, chans)
	if err != nil {
		return err
	}

	messageBus := bus.New(cfg.General.BusSize, logger)
	events := bus.NewEventBus(logger)

	dispatcher, err := newDispatcher(cfg, messageBus, logger)
	if err != nil {
		return err
	}

	if cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit.DBPath, logger)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		defer store.Close()
		recorder := audit.NewRecorder(store, events, logger)
		defer recorder.Stop()
		logger.Info("audit trail enabled", "db", cfg.Audit.DBPath)
	}

	if cfg.Metrics.Enabled {
		addr := net.JoinHostPort(cfg.Metrics.Host, strconv.Itoa(cfg.Metrics.Port))
		go func() {
			if err := metrics.Serve(ctx, addr, cfg.Metrics.Endpoint, logger); err != nil {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	loop := bot.NewLoop(bot.LoopConfig{
		Bus:           messageBus,
		Dispatcher:    dispatcher,
		Identities:    identities,
		PollInterval:  time.Duration(cfg.General.PollIntervalMs) * time.Millisecond,
		BatchSize:     cfg.General.BatchSize,
		DisableAlerts: !cfg.Alerts.Enabled,
		Events:        events,
		Logger:        logger,
	})

	errCh := make(chan error, len(chans))
	for _, ch := range chans {
		go func(ch domain.Channel) {
			err := ch.Start(ctx, messageBus)
			if err != nil {
				err = fmt.Errorf("%s channel: %w", ch.Name(), err)
			}
			errCh <- err
		}(ch)
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	logger.Info("phibot started. Press Ctrl+C to stop.", "channels", cfg.EnabledChannels(), "alerts", cfg.Alerts.Enabled)

	var runErr error
	remaining := len(chans)
	for remaining > 0 && ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case err := <-errCh:
			remaining--
			if err != nil {
				logger.Error("event stream stopped", "err", err)
				runErr = err
				stop()
			}
		}
	}
	// Input that ended on its own (console EOF) is still answered.
	inputEnded := remaining == 0 && runErr == nil
	if inputEnded {
		logger.Info("all event streams ended")
	}
	stop()
	logger.Info("shutting down phibot...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range chans {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop failed", "channel", ch.Name(), "err", err)
			}
		}
		<-loopDone
		if inputEnded {
			for loop.Tick(shutdownCtx) > 0 {
			}
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		if runErr == nil {
			runErr = errors.New("shutdown timed out")
		}
	}
	return runErr
}
