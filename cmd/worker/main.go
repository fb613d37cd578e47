// Команда worker обрабатывает внеплановые прогоны из очереди: задачи ставит
// HTTP API, воркер снимает их по одной и прогоняет конвейер. Итоги уходят в
// Postgres-архив, когда он настроен.
package main

import (
	"context"
	"errors"
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
	"influencer-prospector/internal/adapters/repo"
	"influencer-prospector/internal/adapters/screener"
	"influencer-prospector/internal/domain"
	"influencer-prospector/internal/infra/cache"
	"influencer-prospector/internal/infra/config"
	"influencer-prospector/internal/infra/db"
	applog "influencer-prospector/internal/infra/log"
	"influencer-prospector/internal/infra/metrics"
	"influencer-prospector/internal/infra/openai"
	"influencer-prospector/internal/infra/queue"
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

	runQueue, err := buildQueue(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: очередь недоступна")
	}

	var archive domain.RunArchive
	if cfg.PGDSN != "" {
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
		}
		defer pool.Close()
		pg := repo.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("worker: не удалось подготовить схему архива")
		}
		archive = pg
	}

	svc, err := buildPipeline(cfg, archive, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось собрать конвейер")
	}

	logger.Info().Str("queue", cfg.Queues.Runs).Msg("worker: запущен")
	for {
		job, ack, err := runQueue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("worker: остановлен")
				return
			}
			logger.Error().Err(err).Msg("worker: ошибка чтения очереди")
			continue
		}

		log := logger.With().Str("job_id", job.ID).Str("mode", string(job.Mode)).Logger()
		log.Info().Str("requested_by", job.RequestedBy).Msg("worker: задача получена")

		run, runErr := executeJob(ctx, svc, job)
		if runErr != nil {
			log.Error().Err(runErr).Msg("worker: прогон не выполнен")
			// Без источников повтор бессмыслен: задача снимается, иначе
			// она будет возвращаться в очередь до правки конфигурации.
			requeue := !errors.Is(runErr, prospection.ErrNoSources)
			if err := ack(!requeue); err != nil {
				log.Error().Err(err).Bool("requeue", requeue).Msg("worker: не удалось подтвердить задачу")
			}
			continue
		}
		if err := ack(true); err != nil {
			log.Error().Err(err).Msg("worker: не удалось подтвердить задачу")
		}
		log.Info().
			Str("run_id", run.ID).
			Str("status", string(run.Status)).
			Int("approved", run.Approved).
			Msg("worker: прогон завершён")
	}
}

func executeJob(ctx context.Context, svc *prospection.Service, job domain.RunJob) (domain.RunSummary, error) {
	switch job.Mode {
	case domain.RunModeCollect:
		return svc.RunCollect(ctx)
	case domain.RunModeScreen:
		run, _, err := svc.RunScreening(ctx, job.Target)
		return run, err
	default:
		run, _, err := svc.Run(ctx, job.Target)
		return run, err
	}
}

// buildQueue предпочитает RabbitMQ; при его отсутствии используется Redis.
func buildQueue(cfg config.AppConfig) (domain.RunQueue, error) {
	if cfg.RabbitURL != "" {
		return queue.NewRabbitRunQueue(cfg.RabbitURL, cfg.Queues.Runs)
	}
	if cfg.RedisAddr != "" {
		return queue.NewRedisRunQueue(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.Queues.Runs), nil
	}
	return nil, errors.New("не задан ни RABBIT_URL, ни REDIS_ADDR")
}

func buildPipeline(cfg config.AppConfig, archive domain.RunArchive, logger zerolog.Logger) (*prospection.Service, error) {
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

	return prospection.NewService(store, collector, llmScreener, sources, runNotifier, archive, prospection.Options{
		DailyTarget:  cfg.Prospection.DailyTarget,
		Oversample:   cfg.Prospection.Oversample,
		MaxPerSource: cfg.Prospection.MaxPerSource,
	}, logger), nil
}
