package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wallwatch/internal/config"
	"wallwatch/internal/logging"
	"wallwatch/internal/manager"
	"wallwatch/internal/notify"
	"wallwatch/internal/runtimestate"
	"wallwatch/internal/streamclient"
	"wallwatch/internal/telegrambot"
	"wallwatch/internal/wall"
)

// newTelegramCmd runs only the inbound command bot, against a detector
// fed by the in-memory stub — useful for verifying bot wiring and
// authorization without a live market-data connection.
func newTelegramCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Run only the inbound Telegram command bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer logger.Sync()

			env := config.LoadEnvSettings()
			detCfg := config.ToDetectorConfig(cfg.Detector)
			detector := wall.NewDetector(detCfg, logger)
			runtime := runtimestate.NewRuntime()
			defer runtime.Stop()

			notifier := notify.New(notify.Config{
				Token:           env.Token,
				ChatIDs:         cfg.Telegram.ChatIDs,
				ParseMode:       cfg.Notify.ParseMode,
				SendEvents:      cfg.Notify.SendEvents,
				CooldownSeconds: cfg.Notify.CooldownSeconds,
				QueueMaxSize:    cfg.Notify.QueueMaxSize,
			}, logger)

			mgr := manager.New(streamclient.NewStub(), detector, runtime, notifierSink{notifier}, logger,
				time.Duration(env.RetryBackoffInitialSeconds*float64(time.Second)),
				time.Duration(env.RetryBackoffMaxSeconds*float64(time.Second)))
			mgr.UpdateSymbols(cfg.Symbols)

			handler := telegrambot.NewHandler(cfg.Telegram.AllowedUserIDs, mgr, runtime, detCfg.MaxSymbols, notifier, func() string {
				s := mgr.GetSymbols()
				if len(s) == 0 {
					return ""
				}
				return s[0]
			})
			poller := telegrambot.NewPoller(env.Token, handler, logger, cfg.Telegram.PollTimeoutSeconds)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			go func() { _ = mgr.Run(ctx) }()
			return poller.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	return cmd
}
