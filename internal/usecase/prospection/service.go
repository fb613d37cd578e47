// Package prospection оркестрирует дневной прогон: сбор кандидатов,
// постановку в очередь триажа, LLM-отбор в пределах дневной квоты и
// фиксацию решений в реестре.
package prospection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"influencer-prospector/internal/domain"
	"influencer-prospector/internal/infra/metrics"
)

// ErrNoSources возвращается, когда конвейеру нечего собирать: файл
// источников пуст или не задан.
var ErrNoSources = errors.New("список источников пуст")

// defaultOversample — во сколько раз больше кандидатов берётся из очереди,
// чем осталось квоты: часть будет отклонена LLM.
const defaultOversample = 3

// Options настраивают конвейер.
type Options struct {
	DailyTarget  int
	Oversample   int
	MaxPerSource int
}

// Service — единственная точка входа конвейера прослушивания.
type Service struct {
	ledger    domain.Ledger
	collector domain.Collector
	screener  domain.Screener
	sources   []domain.Source
	notifier  domain.Notifier
	archive   domain.RunArchive
	opts      Options
	log       zerolog.Logger
}

// NewService создаёт конвейер. notifier и archive могут быть nil.
func NewService(ledger domain.Ledger, collector domain.Collector, screener domain.Screener, sources []domain.Source, notifier domain.Notifier, archive domain.RunArchive, opts Options, logger zerolog.Logger) *Service {
	if opts.DailyTarget <= 0 {
		opts.DailyTarget = 20
	}
	if opts.Oversample <= 0 {
		opts.Oversample = defaultOversample
	}
	if opts.MaxPerSource <= 0 {
		opts.MaxPerSource = 20
	}
	return &Service{
		ledger:    ledger,
		collector: collector,
		screener:  screener,
		sources:   sources,
		notifier:  notifier,
		archive:   archive,
		opts:      opts,
		log:       logger.With().Str("component", "prospection").Logger(),
	}
}

// Run выполняет полный прогон: сбор и триаж. targetOverride > 0 заменяет
// дневную цель на этот прогон.
func (s *Service) Run(ctx context.Context, targetOverride int) (domain.RunSummary, []domain.ApprovedProfile, error) {
	run := s.newRun(domain.RunModeFull)
	if len(s.sources) == 0 {
		run.Status = domain.RunStatusNoSources
		return s.finish(ctx, run), nil, ErrNoSources
	}

	collected, newCandidates, errs := s.collectPhase(ctx)
	run.Collected = collected
	run.NewCandidates = newCandidates
	run.Errors = errs

	approved, err := s.screenPhase(ctx, &run, targetOverride)
	if err != nil {
		return s.finish(ctx, run), nil, err
	}
	return s.finish(ctx, run), approved, nil
}

// RunCollect выполняет только сбор: кандидаты складываются в очередь триажа.
func (s *Service) RunCollect(ctx context.Context) (domain.RunSummary, error) {
	run := s.newRun(domain.RunModeCollect)
	if len(s.sources) == 0 {
		run.Status = domain.RunStatusNoSources
		return s.finish(ctx, run), ErrNoSources
	}

	collected, newCandidates, errs := s.collectPhase(ctx)
	run.Collected = collected
	run.NewCandidates = newCandidates
	run.Errors = errs
	if collected == 0 && len(errs) > 0 {
		run.Status = domain.RunStatusNoSources
	}
	return s.finish(ctx, run), nil
}

// RunScreening выполняет только триаж уже собранной очереди.
func (s *Service) RunScreening(ctx context.Context, targetOverride int) (domain.RunSummary, []domain.ApprovedProfile, error) {
	run := s.newRun(domain.RunModeScreen)
	approved, err := s.screenPhase(ctx, &run, targetOverride)
	if err != nil {
		return s.finish(ctx, run), nil, err
	}
	return s.finish(ctx, run), approved, nil
}

func (s *Service) newRun(mode domain.RunMode) domain.RunSummary {
	return domain.RunSummary{
		ID:        uuid.NewString(),
		Mode:      mode,
		Status:    domain.RunStatusCompleted,
		StartedAt: time.Now(),
	}
}

// collectPhase собирает кандидатов, отфильтровывает уже обработанных и
// ставит новых в очередь триажа.
func (s *Service) collectPhase(ctx context.Context) (collected, newCandidates int, errs []string) {
	profiles, errs := s.collector.Collect(ctx, s.sources, s.opts.MaxPerSource)
	collected = len(profiles)

	fresh := s.ledger.FilterUnprocessed(profiles)
	added, err := s.ledger.SavePending(fresh)
	if err != nil {
		errs = append(errs, fmt.Sprintf("постановка в очередь: %v", err))
		return collected, 0, errs
	}
	s.log.Info().Int("collected", collected).Int("new", added).Msg("этап сбора завершён")
	return collected, added, errs
}

// screenPhase проверяет остаток дневной квоты и отдаёт кандидатов LLM.
// Квота считается по реестру, а не по памяти процесса: параллельные и
// повторные прогоны согласуются через файловую блокировку реестра.
func (s *Service) screenPhase(ctx context.Context, run *domain.RunSummary, targetOverride int) ([]domain.ApprovedProfile, error) {
	target := s.opts.DailyTarget
	if targetOverride > 0 {
		target = targetOverride
	}

	todayCount, err := s.ledger.TodayApprovedCount()
	if err != nil {
		return nil, fmt.Errorf("чтение дневного счётчика: %w", err)
	}
	run.TodayTotal = todayCount

	remaining := target - todayCount
	if remaining <= 0 {
		run.Status = domain.RunStatusQuotaMet
		s.log.Info().Int("today", todayCount).Int("target", target).Msg("дневная квота уже выполнена")
		return nil, nil
	}

	pending, err := s.ledger.GetPending(remaining * s.opts.Oversample)
	if err != nil {
		return nil, fmt.Errorf("чтение очереди триажа: %w", err)
	}
	if len(pending) == 0 {
		run.Status = domain.RunStatusNoPending
		s.log.Info().Msg("очередь триажа пуста")
		return nil, nil
	}

	byKey := make(map[string]domain.Profile, len(pending))
	for _, p := range pending {
		byKey[p.Key()] = p
	}

	approvedVerdicts, rejectedVerdicts := s.screener.Screen(ctx, pending, remaining)
	run.Screened = len(approvedVerdicts) + len(rejectedVerdicts)
	run.Rejected = len(rejectedVerdicts)

	var approved []domain.ApprovedProfile
	screenedKeys := make([]string, 0, run.Screened)

	record := func(verdict domain.ScreeningVerdict, isApproved bool) {
		key := domain.ProfileKey(verdict.Platform, verdict.Username)
		profile, ok := byKey[key]
		if !ok {
			s.log.Warn().Str("key", key).Msg("вердикт для неизвестного профиля, пропущен")
			return
		}
		screenedKeys = append(screenedKeys, key)

		created, err := s.ledger.MarkProcessed(profile, isApproved, verdict)
		if err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("запись в реестр %s: %v", key, err))
			return
		}
		metrics.ProfilesScreened.WithLabelValues(string(profile.Platform), verdictLabel(isApproved)).Inc()
		// Дубликат одобрения не попадает в CSV: выгрузку делает только
		// прогон, создавший запись в реестре.
		if isApproved && created {
			if err := s.ledger.AppendApproved(profile, verdict); err != nil {
				run.Errors = append(run.Errors, fmt.Sprintf("выгрузка одобрения %s: %v", key, err))
				return
			}
			approved = append(approved, domain.ApprovedProfile{Profile: profile, Verdict: verdict})
		}
	}

	for _, v := range approvedVerdicts {
		record(v, true)
	}
	for _, v := range rejectedVerdicts {
		record(v, false)
	}
	run.Approved = len(approved)

	if err := s.ledger.RemoveFromPending(screenedKeys); err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("очистка очереди: %v", err))
	}

	todayCount, err = s.ledger.TodayApprovedCount()
	if err == nil {
		run.TodayTotal = todayCount
	}
	s.log.Info().
		Int("screened", run.Screened).
		Int("approved", run.Approved).
		Int("today_total", run.TodayTotal).
		Msg("этап триажа завершён")
	return approved, nil
}

// finish закрывает сводку и рассылает её. Телеметрия best-effort: её сбой
// не меняет результат прогона.
func (s *Service) finish(ctx context.Context, run domain.RunSummary) domain.RunSummary {
	run.FinishedAt = time.Now()
	if run.Status == domain.RunStatusCompleted && len(run.Errors) > 0 {
		run.Status = domain.RunStatusPartial
	}
	metrics.ObserveRun(string(run.Mode), string(run.Status), run.Elapsed(), s.opts.DailyTarget-run.TodayTotal)

	if err := s.ledger.SaveRunSummary(run); err != nil {
		s.log.Error().Err(err).Str("run_id", run.ID).Msg("не удалось сохранить сводку в журнал")
	}
	if s.archive != nil {
		if err := s.archive.SaveRun(ctx, run); err != nil {
			s.log.Error().Err(err).Str("run_id", run.ID).Msg("не удалось записать прогон в архив")
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyRun(ctx, run); err != nil {
			s.log.Error().Err(err).Str("run_id", run.ID).Msg("не удалось отправить отчёт")
		}
	}
	return run
}

func verdictLabel(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}
