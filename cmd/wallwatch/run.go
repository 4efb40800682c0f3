package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wallwatch/internal/config"
	"wallwatch/internal/logging"
	"wallwatch/internal/manager"
	"wallwatch/internal/metrics"
	"wallwatch/internal/model"
	"wallwatch/internal/notify"
	"wallwatch/internal/resolver"
	"wallwatch/internal/runtimestate"
	"wallwatch/internal/streamclient"
	"wallwatch/internal/telegrambot"
	"wallwatch/internal/wall"
)

func newRunCmd() *cobra.Command {
	var symbolsCSV string
	var depth int
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream market data and detect walls",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			logger, err := logging.New(cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer logger.Sync()

			env := config.LoadEnvSettings()
			if missing := config.MissingRequiredEnv(env); len(missing) > 0 {
				logger.Warn("missing_required_env", zap.Strings("vars", missing))
			}

			detCfg := config.ToDetectorConfig(cfg.Detector)
			if depth > 0 {
				detCfg.Depth = depth
			}

			symbols := cfg.Symbols
			if symbolsCSV != "" {
				symbols = splitSymbols(symbolsCSV)
			}

			detector := wall.NewDetector(detCfg, logger)
			runtime := runtimestate.NewRuntime()
			defer runtime.Stop()

			m := metrics.New()
			if cfg.Metrics.Enabled {
				go func() {
					_ = m.Serve(cmd.Context(), cfg.Metrics.Addr)
				}()
			}

			notifier := notify.New(notify.Config{
				Token:                 env.Token,
				ChatIDs:               cfg.Telegram.ChatIDs,
				ParseMode:             cfg.Notify.ParseMode,
				DisableWebPagePreview: cfg.Notify.DisableWebPagePreview,
				SendEvents:            cfg.Notify.SendEvents,
				CooldownSeconds:       cfg.Notify.CooldownSeconds,
				QueueMaxSize:          cfg.Notify.QueueMaxSize,
				OnDeliver: func(outcome string) {
					m.NotifyDeliveries.WithLabelValues(outcome).Inc()
				},
			}, logger)

			rc := resolver.NewClient("https://invest-public-api.example.com/rest", env.Token)
			_ = rc // constructed but not used: run always streams from the in-memory stub
			client := streamclient.NewStub()

			mgr := manager.New(client, detector, runtime, notifierSink{notifier}, logger,
				time.Duration(env.RetryBackoffInitialSeconds*float64(time.Second)),
				time.Duration(env.RetryBackoffMaxSeconds*float64(time.Second)))
			mgr.UpdateSymbols(symbols)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if cfg.Telegram.PollTimeoutSeconds > 0 && env.Token != "" {
				handler := telegrambot.NewHandler(cfg.Telegram.AllowedUserIDs, mgr, runtime, detCfg.MaxSymbols, notifier, func() string {
					s := mgr.GetSymbols()
					if len(s) == 0 {
						return ""
					}
					return s[0]
				})
				poller := telegrambot.NewPoller(env.Token, handler, logger, cfg.Telegram.PollTimeoutSeconds)
				go func() {
					_ = poller.Run(ctx)
				}()
			}

			err = mgr.Run(ctx)
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			_ = notifier.Close(closeCtx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&symbolsCSV, "symbols", "", "comma-separated symbol list (overrides config)")
	cmd.Flags().IntVar(&depth, "depth", 0, "order book depth override")
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level override (debug/info/warn/error)")
	return cmd
}

func splitSymbols(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

type notifierSink struct {
	n *notify.Notifier
}

func (s notifierSink) Notify(ev model.WallEvent) {
	s.n.Notify(ev)
}
