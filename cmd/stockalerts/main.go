package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/mjessen/stockalerts/internal/company"
	"github.com/mjessen/stockalerts/internal/config"
	"github.com/mjessen/stockalerts/internal/delta"
	"github.com/mjessen/stockalerts/internal/history"
	"github.com/mjessen/stockalerts/internal/logger"
	"github.com/mjessen/stockalerts/internal/market"
	"github.com/mjessen/stockalerts/internal/markethours"
	"github.com/mjessen/stockalerts/internal/news"
	"github.com/mjessen/stockalerts/internal/ntfy"
	"github.com/mjessen/stockalerts/internal/runner"
	"github.com/mjessen/stockalerts/internal/state"
	"github.com/mjessen/stockalerts/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	lg.Info().
		Str("config", *configPath).
		Strs("tickers", cfg.Tickers).
		Float64("threshold_pct", cfg.ThresholdPct).
		Str("ntfy_topic", mask(cfg.Ntfy.Topic)).
		Msg("configuration loaded")

	gate, err := markethours.New(markethours.Config{
		Enabled:          cfg.MarketHours.Enabled,
		Timezone:         cfg.MarketHours.Timezone,
		StartHour:        cfg.MarketHours.StartHour,
		EndHour:          cfg.MarketHours.EndHour,
		DaysMonToFriOnly: cfg.MarketHours.DaysMonToFriOnly,
	}, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to initialize market-hours gate")
	}

	var override delta.Override
	if cfg.Test.Enabled {
		override = delta.Override{Enabled: true, ForcePct: cfg.Test.ForceDeltaPct}
		lg.Warn().Msg("test mode enabled")
	}

	deps := runner.Deps{
		Gate:  gate,
		State: state.New(cfg.StateFile, lg),
		Prices: market.New(market.Config{
			Endpoint:       cfg.Market.Endpoint,
			Timeout:        cfg.Market.Timeout,
			MaxRetries:     cfg.Market.MaxRetries,
			RetryDelayBase: cfg.Market.RetryDelayBase,
		}, lg),
		Evaluator: delta.New(cfg.ThresholdPct, override, lg),
		Resolver: company.New(company.Config{
			CacheFile:  cfg.Company.CacheFile,
			Endpoint:   cfg.Company.Endpoint,
			Timeout:    cfg.Company.Timeout,
			MaxRetries: cfg.Company.MaxRetries,
		}, lg),
		Pusher: ntfy.New(ntfy.Config{
			Server:         cfg.Ntfy.Server,
			Topic:          cfg.Ntfy.Topic,
			Priority:       cfg.Ntfy.Priority,
			DryRun:         cfg.Ntfy.DryRun,
			Timeout:        cfg.Ntfy.Timeout,
			MaxRetries:     cfg.Ntfy.MaxRetries,
			RetryDelayBase: cfg.Ntfy.RetryDelayBase,
		}, lg),
	}

	if cfg.News.Enabled {
		deps.Headlines = news.New(news.Config{
			Limit:         cfg.News.Limit,
			LookbackHours: cfg.News.LookbackHours,
			Lang:          cfg.News.Lang,
			Country:       cfg.News.Country,
			Endpoint:      cfg.News.Endpoint,
			Timeout:       cfg.News.Timeout,
		}, lg)
	}

	if cfg.Telegram.Enabled {
		mirror, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase, lg)
		if err != nil {
			lg.Fatal().Err(err).Msg("failed to initialize Telegram client")
		}
		deps.Mirror = mirror
		lg.Info().Str("bot_token", mask(cfg.Telegram.BotToken)).Msg("telegram mirror initialized")
	}

	if cfg.History.Enabled {
		store, err := history.New(cfg.History.DBPath, cfg.History.MaxAlerts)
		if err != nil {
			lg.Fatal().Err(err).Msg("failed to initialize alert history")
		}
		defer func() {
			if err := store.Close(); err != nil {
				lg.Error().Err(err).Msg("failed to close alert history")
			}
		}()
		deps.Recorder = store
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := runner.New(runner.Config{
		Tickers:           cfg.Tickers,
		NewsEnabled:       cfg.News.Enabled,
		BypassMarketHours: cfg.Test.Enabled && cfg.Test.BypassMarketHours,
	}, deps, lg)

	report := r.Run(ctx)

	lg.Info().
		Bool("skipped", report.Skipped).
		Int("processed", len(report.Snapshots)).
		Int("alerted", report.Alerted).
		Int("failures", len(report.Failures)).
		Msg("cycle completed")

	for _, f := range report.Failures {
		lg.Error().Err(f.Err).Str("ticker", f.Ticker).Str("stage", f.Stage).Msg("ticker failed")
	}
}

// mask hides the middle of a secret, leaving one rune at each end.
func mask(s string) string {
	r := []rune(s)
	if len(r) < 3 {
		return "..."
	}
	return string(r[0]) + "..." + string(r[len(r)-1])
}
