package ledger

import (
	"fmt"
	"testing"
	"time"

	"influencer-prospector/internal/domain"
)

func TestSaveRunSummaryNewestFirst(t *testing.T) {
	s := newTestStore(t)
	for i := 1; i <= 3; i++ {
		run := domain.RunSummary{
			ID:         fmt.Sprintf("run-%d", i),
			Mode:       domain.RunModeFull,
			Status:     domain.RunStatusCompleted,
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
			Approved:   i,
		}
		if err := s.SaveRunSummary(run); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}

	runs, err := s.RecentRuns(2)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ожидали 2 прогона, получили %d", len(runs))
	}
	if runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Fatalf("свежие прогоны должны идти первыми: %v, %v", runs[0].ID, runs[1].ID)
	}
}

func TestRunsJournalIsCapped(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < maxStoredRuns+5; i++ {
		run := domain.RunSummary{ID: fmt.Sprintf("run-%d", i), Status: domain.RunStatusCompleted}
		if err := s.SaveRunSummary(run); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}

	runs, err := s.RecentRuns(0)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(runs) != maxStoredRuns {
		t.Fatalf("журнал должен хранить %d прогонов, получили %d", maxStoredRuns, len(runs))
	}
	if runs[0].ID != fmt.Sprintf("run-%d", maxStoredRuns+4) {
		t.Fatalf("последний прогон должен быть первым: %v", runs[0].ID)
	}
}
