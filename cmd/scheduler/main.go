// Команда scheduler запускает полный прогон каждый день в настроенное время.
// Квоту переживших рестарт прогонов сторожит реестр, поэтому повторный запуск
// в тот же день безопасен.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"influencer-prospector/internal/adapters/dataapi"
	"influencer-prospector/internal/adapters/instagram"
	"influencer-prospector/internal/adapters/notifier"
	"influencer-prospector/internal/adapters/screener"
	"influencer-prospector/internal/domain"
	"influencer-prospector/internal/infra/cache"
	"influencer-prospector/internal/infra/config"
	applog "influencer-prospector/internal/infra/log"
	"influencer-prospector/internal/infra/metrics"
	"influencer-prospector/internal/infra/openai"
	"influencer-prospector/internal/ledger"
	"influencer-prospector/internal/usecase/collect"
	"influencer-prospector/internal/usecase/prospection"
	"influencer-prospector/internal/usecase/qualify"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogFile)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("scheduler: неверный часовой пояс")
	}

	svc, err := buildPipeline(cfg, loc, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось собрать конвейер")
	}

	logger.Info().Str("daily_at", cfg.Schedule.DailyAt).Str("tz", cfg.TZ).Msg("scheduler: запущен")

	var lastFired string
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановлен")
			return
		case now := <-ticker.C:
			local := now.In(loc)
			if local.Format("15:04") != cfg.Schedule.DailyAt {
				continue
			}
			// один запуск на календарную минуту
			stamp := local.Format("2006-01-02 15:04")
			if stamp == lastFired {
				continue
			}
			lastFired = stamp

			run, _, err := svc.Run(ctx, 0)
			if err != nil {
				logger.Error().Err(err).Msg("scheduler: прогон не выполнен")
				continue
			}
			logger.Info().
				Str("run_id", run.ID).
				Str("status", string(run.Status)).
				Int("approved", run.Approved).
				Msg("scheduler: дневной прогон завершён")
		}
	}
}

func buildPipeline(cfg config.AppConfig, loc *time.Location, logger zerolog.Logger) (*prospection.Service, error) {
	store, err := ledger.New(cfg.DataDir, loc, logger)
	if err != nil {
		return nil, fmt.Errorf("открытие реестра: %w", err)
	}
	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("загрузка источников: %w", err)
	}

	var profileCache domain.Cache
	if cfg.RedisAddr != "" {
		profileCache = cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}

	discovery := instagram.New(cfg.Instagram.Token, cfg.Instagram.UserID, cfg.Instagram.BaseURL, 30*time.Second, logger)
	search := dataapi.New(cfg.DataAPI.BaseURL, cfg.DataAPI.Key, 30*time.Second, logger)
	collector := collect.NewService(discovery, search, profileCache, collect.Options{
		Thresholds: qualify.Thresholds{
			MinFollowers:       cfg.Prospection.MinFollowers,
			MinEngagement:      cfg.Prospection.MinEngagement,
			PotentialFollowers: cfg.Prospection.PotentialFollowers,
		},
		RateDelay: cfg.Prospection.RateDelay,
	}, logger)

	llmClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	llmScreener := screener.NewLLM(llmClient, cfg.OpenAI.Model, cfg.OpenAI.Timeout, cfg.OpenAI.Delay, screener.Criteria{
		MinAge:      cfg.Screening.MinAge,
		Nationality: cfg.Screening.Nationality,
	}, logger)

	var runNotifier domain.Notifier
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return nil, fmt.Errorf("создание бота: %w", err)
		}
		runNotifier = notifier.NewTelegram(botAPI, cfg.Telegram.ChatID, logger)
	}

	return prospection.NewService(store, collector, llmScreener, sources, runNotifier, nil, prospection.Options{
		DailyTarget:  cfg.Prospection.DailyTarget,
		Oversample:   cfg.Prospection.Oversample,
		MaxPerSource: cfg.Prospection.MaxPerSource,
	}, logger), nil
}
