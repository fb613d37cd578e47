// Команда api поднимает HTTP сервис: статистика реестра, история прогонов и
// постановка внеплановых прогонов в очередь воркера.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"influencer-prospector/internal/adapters/repo"
	"influencer-prospector/internal/domain"
	"influencer-prospector/internal/infra/config"
	"influencer-prospector/internal/infra/db"
	apphttp "influencer-prospector/internal/infra/http"
	applog "influencer-prospector/internal/infra/log"
	"influencer-prospector/internal/infra/metrics"
	"influencer-prospector/internal/infra/queue"
	"influencer-prospector/internal/ledger"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogFile)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("api: неверный часовой пояс")
	}
	store, err := ledger.New(cfg.DataDir, loc, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось открыть реестр")
	}

	var runQueue domain.RunQueue
	if cfg.RabbitURL != "" {
		runQueue, err = queue.NewRabbitRunQueue(cfg.RabbitURL, cfg.Queues.Runs)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: очередь недоступна")
		}
	} else if cfg.RedisAddr != "" {
		runQueue = queue.NewRedisRunQueue(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.Queues.Runs)
	}

	var archive domain.RunArchive
	if cfg.PGDSN != "" {
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к БД")
		}
		defer pool.Close()
		pg := repo.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("api: не удалось подготовить схему архива")
		}
		archive = pg
	}

	srv := apphttp.NewServer(logger)
	registerRoutes(srv, store, runQueue, archive)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: graceful shutdown failed")
		}
	}()

	addr := ":" + strconv.Itoa(cfg.Port)
	if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("api: сервер остановлен")
	}
}

func registerRoutes(srv *apphttp.Server, store *ledger.Store, runQueue domain.RunQueue, archive domain.RunArchive) {
	srv.Router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		apphttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv.Router.Get("/api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		apphttp.WriteJSON(w, http.StatusOK, store.Statistics())
	})

	srv.Router.Get("/api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		// при наличии архива история берётся из него, иначе из журнала реестра
		if archive != nil {
			runs, err := archive.ListRuns(r.Context(), 100)
			if err != nil {
				apphttp.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			apphttp.WriteJSON(w, http.StatusOK, runs)
			return
		}
		runs, err := store.RecentRuns(0)
		if err != nil {
			apphttp.WriteError(w, http.StatusInternalServerError, err)
			return
		}
		apphttp.WriteJSON(w, http.StatusOK, runs)
	})

	srv.Router.Post("/api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		if runQueue == nil {
			apphttp.WriteError(w, http.StatusServiceUnavailable, errors.New("очередь прогонов не настроена"))
			return
		}
		var req struct {
			Mode   string `json:"mode"`
			Target int    `json:"target"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		mode := domain.RunMode(req.Mode)
		switch mode {
		case domain.RunModeFull, domain.RunModeCollect, domain.RunModeScreen:
		case "":
			mode = domain.RunModeFull
		default:
			apphttp.WriteError(w, http.StatusBadRequest, errors.New("неизвестный режим прогона"))
			return
		}

		job := domain.RunJob{
			ID:          uuid.NewString(),
			Mode:        mode,
			Target:      req.Target,
			RequestedBy: apphttp.RequestID(r),
			RequestedAt: time.Now(),
		}
		if err := runQueue.Enqueue(r.Context(), job); err != nil {
			apphttp.WriteError(w, http.StatusInternalServerError, err)
			return
		}
		apphttp.WriteJSON(w, http.StatusAccepted, job)
	})
}
