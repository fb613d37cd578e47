// Команда prospector запускает конвейер из консоли или CI: полный прогон,
// только сбор или только триаж. В конце печатает машиночитаемую строку
// `approved=<n> total_today=<n>` для планировщика.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
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
	"influencer-prospector/internal/usecase/report"
)

func main() {
	var (
		collectOnly = flag.Bool("collect", false, "только собрать кандидатов, без триажа")
		screenOnly  = flag.Bool("screen", false, "только триаж уже собранной очереди")
		count       = flag.Int("count", 0, "переопределить дневную цель одобрений")
		format      = flag.String("format", "", "выгрузить одобренных в файл: md, csv, json или xlsx")
		outDir      = flag.String("out", "reports", "каталог для выгрузки отчётов")
	)
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogFile)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildPipeline(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("prospector: не удалось собрать конвейер")
	}

	var (
		run      domain.RunSummary
		approved []domain.ApprovedProfile
	)
	switch {
	case *collectOnly && *screenOnly:
		logger.Fatal().Msg("prospector: флаги -collect и -screen взаимоисключающие")
	case *collectOnly:
		run, err = svc.RunCollect(ctx)
	case *screenOnly:
		run, approved, err = svc.RunScreening(ctx, *count)
	default:
		run, approved, err = svc.Run(ctx, *count)
	}
	if err != nil {
		logger.Error().Err(err).Msg("prospector: прогон не выполнен")
		fmt.Println("approved=0 total_today=0")
		os.Exit(1)
	}

	if *format != "" && len(approved) > 0 {
		f, err := report.ParseFormat(*format)
		if err != nil {
			logger.Fatal().Err(err).Msg("prospector: неверный формат отчёта")
		}
		path, err := report.Save(approved, f, *outDir, time.Now())
		if err != nil {
			logger.Error().Err(err).Msg("prospector: не удалось сохранить отчёт")
		} else {
			logger.Info().Str("path", path).Msg("отчёт сохранён")
		}
	}

	logger.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Int("approved", run.Approved).
		Int("today", run.TodayTotal).
		Msg("прогон завершён")
	fmt.Printf("approved=%d total_today=%d\n", run.Approved, run.TodayTotal)
}

// buildPipeline собирает конвейер из конфигурации окружения. Необязательные
// зависимости (Redis, Telegram) подключаются только при заданных адресах.
func buildPipeline(cfg config.AppConfig, logger zerolog.Logger) (*prospection.Service, error) {
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("часовой пояс %q: %w", cfg.TZ, err)
	}

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
