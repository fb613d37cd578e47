// Package ledger хранит на диске состояние конвейера: реестр обработанных
// профилей, очередь ожидающих триажа, итоговый CSV одобренных и журнал
// прогонов. Все файлы принадлежат только этому пакету; каждая мутация
// выполняет чтение-изменение-запись под эксклюзивной файловой блокировкой,
// поэтому параллельные прогоны не портят хранилища.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"influencer-prospector/internal/domain"
)

const (
	historyFile  = "processed_profiles.json"
	pendingFile  = "pending_profiles.json"
	approvedFile = "approved_influencers.csv"
	runsFile     = "runs.json"

	// maxStoredRuns ограничивает скользящий журнал прогонов.
	maxStoredRuns = 30
)

// Store реализует domain.Ledger поверх каталога с JSON/CSV файлами.
type Store struct {
	dir string
	loc *time.Location
	log zerolog.Logger

	mu        sync.RWMutex
	processed map[string]domain.HistoryEntry
}

var _ domain.Ledger = (*Store)(nil)

// New открывает реестр в каталоге dir, создавая его при необходимости.
// Повреждённый файл истории не фатален: реестр стартует пустым с записью
// об ошибке в лог — доступность дневного прогона важнее, цена в худшем
// случае — повторный триаж, который гасится идемпотентным MarkProcessed.
func New(dir string, loc *time.Location, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("создание каталога данных: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Store{
		dir:       dir,
		loc:       loc,
		log:       logger,
		processed: make(map[string]domain.HistoryEntry),
	}
	env := s.readHistory()
	s.processed = env.Profiles
	s.log.Info().Int("processed", len(s.processed)).Msg("ledger: история загружена")
	return s, nil
}

type historyEnvelope struct {
	LastUpdated    time.Time                      `json:"last_updated"`
	TotalProcessed int                            `json:"total_processed"`
	TotalApproved  int                            `json:"total_approved"`
	TotalRejected  int                            `json:"total_rejected"`
	Profiles       map[string]domain.HistoryEntry `json:"profiles"`
}

type pendingEnvelope struct {
	LastUpdated time.Time        `json:"last_updated"`
	Total       int              `json:"total"`
	Profiles    []domain.Profile `json:"profiles"`
}

// IsProcessed отвечает по кэшу в памяти: O(1), без чтения диска. Кэш может
// отставать от параллельного процесса, но никогда не бывает порван — мутации
// обновляют его из данных, прочитанных под блокировкой.
func (s *Store) IsProcessed(platform domain.Platform, username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[domain.ProfileKey(platform, username)]
	return ok
}

// MarkProcessed создаёт запись реестра для профиля. Повторный вызов по тому
// же ключу — no-op с предупреждением: ретраи конвейера не должны ронять
// прогон и не должны удваивать счётчики.
func (s *Store) MarkProcessed(profile domain.Profile, approved bool, verdict domain.ScreeningVerdict) (bool, error) {
	key := profile.Key()
	created := false
	err := s.withLock(historyFile, func() error {
		env := s.readHistory()
		if _, ok := env.Profiles[key]; ok {
			s.log.Warn().Str("key", key).Msg("ledger: профиль уже обработан, запись пропущена")
			s.replaceCache(env.Profiles)
			return nil
		}
		env.Profiles[key] = domain.HistoryEntry{
			Username:    profile.Username,
			Platform:    profile.Platform,
			Name:        profile.Name,
			ProcessedAt: time.Now().In(s.loc),
			Approved:    approved,
			Verdict:     verdict,
			Snapshot:    profile,
		}
		if err := s.writeHistory(env); err != nil {
			return err
		}
		s.replaceCache(env.Profiles)
		created = true
		return nil
	})
	return created, err
}

// FilterUnprocessed возвращает кандидатов, которых нет в реестре, сохраняя
// порядок входа.
func (s *Store) FilterUnprocessed(profiles []domain.Profile) []domain.Profile {
	out := make([]domain.Profile, 0, len(profiles))
	for _, p := range profiles {
		if !s.IsProcessed(p.Platform, p.Username) {
			out = append(out, p)
		}
	}
	s.log.Info().Int("total", len(profiles)).Int("new", len(out)).Msg("ledger: фильтр истории")
	return out
}

// SavePending дописывает кандидатов в очередь триажа. Дубликаты по ключу
// идентичности — против очереди и против реестра — молча отбрасываются.
func (s *Store) SavePending(profiles []domain.Profile) (int, error) {
	added := 0
	err := s.withLock(pendingFile, func() error {
		env := s.readPending()
		seen := make(map[string]struct{}, len(env.Profiles))
		for _, p := range env.Profiles {
			seen[p.Key()] = struct{}{}
		}
		for _, p := range profiles {
			key := p.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			if s.IsProcessed(p.Platform, p.Username) {
				continue
			}
			env.Profiles = append(env.Profiles, p)
			seen[key] = struct{}{}
			added++
		}
		if added == 0 {
			return nil
		}
		return s.writePending(env)
	})
	if err == nil {
		s.log.Info().Int("added", added).Msg("ledger: кандидаты поставлены в очередь")
	}
	return added, err
}

// GetPending возвращает до limit ожидающих профилей. Очередь перефильтровывается
// против реестра на момент чтения: профиль мог быть обработан другим путём
// после постановки в очередь.
func (s *Store) GetPending(limit int) ([]domain.Profile, error) {
	env := s.readPending()
	out := make([]domain.Profile, 0, len(env.Profiles))
	for _, p := range env.Profiles {
		if s.IsProcessed(p.Platform, p.Username) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// PendingCount возвращает размер очереди триажа.
func (s *Store) PendingCount() int {
	return len(s.readPending().Profiles)
}

// RemoveFromPending убирает ключи из очереди. Отсутствующие ключи — не
// ошибка: запись могла быть удалена параллельным прогоном.
func (s *Store) RemoveFromPending(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	return s.withLock(pendingFile, func() error {
		env := s.readPending()
		remaining := env.Profiles[:0]
		for _, p := range env.Profiles {
			if _, ok := drop[p.Key()]; ok {
				continue
			}
			remaining = append(remaining, p)
		}
		removed := len(env.Profiles) - len(remaining)
		env.Profiles = remaining
		if removed == 0 {
			return nil
		}
		s.log.Info().Int("removed", removed).Msg("ledger: очередь триажа сокращена")
		return s.writePending(env)
	})
}

// Statistics считает агрегаты по кэшу реестра.
func (s *Store) Statistics() domain.LedgerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.LedgerStats{
		ByPlatform: make(map[domain.Platform]domain.PlatformStats),
	}
	for _, entry := range s.processed {
		stats.TotalProcessed++
		ps := stats.ByPlatform[entry.Platform]
		ps.Total++
		if entry.Approved {
			stats.TotalApproved++
			ps.Approved++
		}
		stats.ByPlatform[entry.Platform] = ps
	}
	stats.TotalRejected = stats.TotalProcessed - stats.TotalApproved
	if stats.TotalProcessed > 0 {
		stats.ApprovalRate = 100 * float64(stats.TotalApproved) / float64(stats.TotalProcessed)
	}
	return stats
}

func (s *Store) replaceCache(profiles map[string]domain.HistoryEntry) {
	s.mu.Lock()
	s.processed = profiles
	s.mu.Unlock()
}

// withLock выполняет fn под эксклюзивной файловой блокировкой хранилища name.
// Блокировка снимается на любом пути выхода.
func (s *Store) withLock(name string, fn func() error) error {
	lock := flock.New(filepath.Join(s.dir, name+".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("захват блокировки %s: %w", name, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.log.Error().Err(err).Str("store", name).Msg("ledger: не удалось снять блокировку")
		}
	}()
	return fn()
}

func (s *Store) readHistory() historyEnvelope {
	env := historyEnvelope{Profiles: make(map[string]domain.HistoryEntry)}
	data, err := os.ReadFile(filepath.Join(s.dir, historyFile))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error().Err(err).Msg("ledger: ошибка чтения истории, старт с пустой")
		}
		return env
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Error().Err(err).Msg("ledger: история повреждена, старт с пустой")
		return historyEnvelope{Profiles: make(map[string]domain.HistoryEntry)}
	}
	if env.Profiles == nil {
		env.Profiles = make(map[string]domain.HistoryEntry)
	}
	return env
}

func (s *Store) writeHistory(env historyEnvelope) error {
	env.LastUpdated = time.Now().In(s.loc)
	env.TotalProcessed = len(env.Profiles)
	env.TotalApproved = 0
	for _, e := range env.Profiles {
		if e.Approved {
			env.TotalApproved++
		}
	}
	env.TotalRejected = env.TotalProcessed - env.TotalApproved
	return s.writeJSON(historyFile, env)
}

func (s *Store) readPending() pendingEnvelope {
	var env pendingEnvelope
	data, err := os.ReadFile(filepath.Join(s.dir, pendingFile))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error().Err(err).Msg("ledger: ошибка чтения очереди триажа")
		}
		return env
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Error().Err(err).Msg("ledger: очередь триажа повреждена, старт с пустой")
		return pendingEnvelope{}
	}
	return env
}

func (s *Store) writePending(env pendingEnvelope) error {
	env.LastUpdated = time.Now().In(s.loc)
	env.Total = len(env.Profiles)
	return s.writeJSON(pendingFile, env)
}

// writeJSON пишет документ атомарно: временный файл + rename, чтобы читатели
// без блокировки никогда не видели частично записанный файл.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("временный файл для %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("запись %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("закрытие %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("переименование %s: %w", name, err)
	}
	return nil
}
