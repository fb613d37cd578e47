package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"influencer-prospector/internal/domain"
)

type runsEnvelope struct {
	LastUpdated time.Time           `json:"last_updated"`
	Runs        []domain.RunSummary `json:"runs"`
}

// SaveRunSummary кладёт сводку в начало скользящего журнала, обрезая его до
// maxStoredRuns последних прогонов.
func (s *Store) SaveRunSummary(run domain.RunSummary) error {
	return s.withLock(runsFile, func() error {
		env := s.readRuns()
		env.Runs = append([]domain.RunSummary{run}, env.Runs...)
		if len(env.Runs) > maxStoredRuns {
			env.Runs = env.Runs[:maxStoredRuns]
		}
		env.LastUpdated = time.Now().In(s.loc)
		return s.writeJSON(runsFile, env)
	})
}

// RecentRuns возвращает до limit последних сводок, новые первыми.
func (s *Store) RecentRuns(limit int) ([]domain.RunSummary, error) {
	env := s.readRuns()
	if limit > 0 && len(env.Runs) > limit {
		env.Runs = env.Runs[:limit]
	}
	return env.Runs, nil
}

func (s *Store) readRuns() runsEnvelope {
	var env runsEnvelope
	data, err := os.ReadFile(filepath.Join(s.dir, runsFile))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error().Err(err).Msg("ledger: ошибка чтения журнала прогонов")
		}
		return env
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Error().Err(err).Msg("ledger: журнал прогонов повреждён, старт с пустого")
		return runsEnvelope{}
	}
	return env
}
