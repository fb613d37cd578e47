// Package repo хранит архив сводок прогонов в Postgres. Файловый журнал
// реестра держит только последние прогоны; архив отдаёт полную историю для
// HTTP API.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"influencer-prospector/internal/domain"
	"influencer-prospector/internal/infra/metrics"
)

// Postgres реализует domain.RunArchive на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.RunArchive = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицу архива, если её нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS prospection_runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			collected INT NOT NULL DEFAULT 0,
			new_candidates INT NOT NULL DEFAULT 0,
			screened INT NOT NULL DEFAULT 0,
			approved INT NOT NULL DEFAULT 0,
			rejected INT NOT NULL DEFAULT 0,
			today_total INT NOT NULL DEFAULT 0,
			errors JSONB NOT NULL DEFAULT '[]'
		)`)
	if err != nil {
		return fmt.Errorf("создание схемы архива: %w", err)
	}
	return nil
}

// SaveRun записывает сводку прогона.
func (p *Postgres) SaveRun(ctx context.Context, run domain.RunSummary) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	errsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("сериализация ошибок прогона: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
		INSERT INTO prospection_runs
			(id, mode, status, started_at, finished_at, collected, new_candidates, screened, approved, rejected, today_total, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		run.ID, string(run.Mode), string(run.Status), run.StartedAt, run.FinishedAt,
		run.Collected, run.NewCandidates, run.Screened, run.Approved, run.Rejected,
		run.TodayTotal, errsJSON,
	)
	metrics.ObserveNetworkRequest("postgres", "save_run", "prospection_runs", start, err)
	if err != nil {
		return fmt.Errorf("сохранение сводки прогона: %w", err)
	}
	return nil
}

// ListRuns возвращает последние прогоны, новые первыми.
func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
		SELECT id, mode, status, started_at, finished_at, collected, new_candidates, screened, approved, rejected, today_total, errors
		FROM prospection_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	metrics.ObserveNetworkRequest("postgres", "list_runs", "prospection_runs", start, err)
	if err != nil {
		return nil, fmt.Errorf("чтение архива прогонов: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		var run domain.RunSummary
		var mode, status string
		var errsJSON []byte
		if err := rows.Scan(&run.ID, &mode, &status, &run.StartedAt, &run.FinishedAt,
			&run.Collected, &run.NewCandidates, &run.Screened, &run.Approved,
			&run.Rejected, &run.TodayTotal, &errsJSON); err != nil {
			return nil, fmt.Errorf("чтение строки архива: %w", err)
		}
		run.Mode = domain.RunMode(mode)
		run.Status = domain.RunStatus(status)
		if len(errsJSON) > 0 {
			_ = json.Unmarshal(errsJSON, &run.Errors)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
