package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"influencer-prospector/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), time.Local, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return s
}

func profile(platform domain.Platform, username string) domain.Profile {
	return domain.Profile{
		Username:       username,
		Platform:       platform,
		Name:           username,
		Followers:      15000,
		EngagementRate: 3.2,
		SourceTag:      "seed_list",
		CollectedAt:    time.Now(),
	}
}

func approvedVerdict(username string) domain.ScreeningVerdict {
	return domain.ScreeningVerdict{
		Username: username, Platform: domain.PlatformInstagram,
		AgeOK: true, TargetBodyType: true, TargetClass: true,
		TargetNationality: true, IsRealPerson: true,
		Approved: true, Confidence: 90,
	}
}

func TestMarkProcessedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	p := profile(domain.PlatformInstagram, "ana")

	created, err := s.MarkProcessed(p, true, approvedVerdict("ana"))
	if err != nil || !created {
		t.Fatalf("первая запись должна создаться: created=%v err=%v", created, err)
	}
	created, err = s.MarkProcessed(p, true, approvedVerdict("ana"))
	if err != nil {
		t.Fatalf("повтор не должен быть ошибкой: %v", err)
	}
	if created {
		t.Fatal("повторная запись должна быть no-op")
	}

	stats := s.Statistics()
	if stats.TotalProcessed != 1 || stats.TotalApproved != 1 {
		t.Fatalf("счётчики после повтора: %+v", stats)
	}
}

func TestMarkProcessedCaseInsensitiveKey(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.MarkProcessed(profile(domain.PlatformTikTok, "Maria"), false, domain.ScreeningVerdict{}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !s.IsProcessed(domain.PlatformTikTok, "MARIA") {
		t.Fatal("ключ идентичности должен игнорировать регистр")
	}
}

func TestFilterUnprocessedPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.MarkProcessed(profile(domain.PlatformInstagram, "b"), false, domain.ScreeningVerdict{}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	in := []domain.Profile{
		profile(domain.PlatformInstagram, "a"),
		profile(domain.PlatformInstagram, "b"),
		profile(domain.PlatformInstagram, "c"),
	}
	out := s.FilterUnprocessed(in)
	if len(out) != 2 || out[0].Username != "a" || out[1].Username != "c" {
		t.Fatalf("ожидали [a c], получили %v", out)
	}
}

func TestSavePendingDeduplicates(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.MarkProcessed(profile(domain.PlatformInstagram, "done"), false, domain.ScreeningVerdict{}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	added, err := s.SavePending([]domain.Profile{
		profile(domain.PlatformInstagram, "new"),
		profile(domain.PlatformInstagram, "New"),  // дубликат по регистру
		profile(domain.PlatformInstagram, "done"), // уже в реестре
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if added != 1 {
		t.Fatalf("ожидали 1 добавление, получили %d", added)
	}

	added, err = s.SavePending([]domain.Profile{profile(domain.PlatformInstagram, "new")})
	if err != nil || added != 0 {
		t.Fatalf("повторная постановка должна отбрасываться: added=%d err=%v", added, err)
	}
}

func TestGetPendingRefiltersAgainstHistory(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SavePending([]domain.Profile{
		profile(domain.PlatformInstagram, "x"),
		profile(domain.PlatformInstagram, "y"),
	}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// x обработан другим путём после постановки в очередь
	if _, err := s.MarkProcessed(profile(domain.PlatformInstagram, "x"), false, domain.ScreeningVerdict{}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	pending, err := s.GetPending(10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(pending) != 1 || pending[0].Username != "y" {
		t.Fatalf("ожидали только y, получили %v", pending)
	}
}

func TestGetPendingRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SavePending([]domain.Profile{
		profile(domain.PlatformInstagram, "a"),
		profile(domain.PlatformInstagram, "b"),
		profile(domain.PlatformInstagram, "c"),
	}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	pending, err := s.GetPending(2)
	if err != nil || len(pending) != 2 {
		t.Fatalf("ожидали 2 профиля, получили %d (err=%v)", len(pending), err)
	}
}

func TestRemoveFromPendingToleratesAbsent(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SavePending([]domain.Profile{profile(domain.PlatformInstagram, "keep")}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := s.RemoveFromPending([]string{"instagram:absent", "tiktok:ghost"}); err != nil {
		t.Fatalf("отсутствующие ключи не должны быть ошибкой: %v", err)
	}
	if s.PendingCount() != 1 {
		t.Fatalf("очередь не должна была измениться: %d", s.PendingCount())
	}
}

func TestPendingAndHistoryDisjointAfterProcessing(t *testing.T) {
	s := newTestStore(t)
	profiles := []domain.Profile{
		profile(domain.PlatformInstagram, "a"),
		profile(domain.PlatformInstagram, "b"),
		profile(domain.PlatformInstagram, "c"),
	}
	if _, err := s.SavePending(profiles); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	keys := make([]string, 0, len(profiles))
	for _, p := range profiles {
		approved := p.Username != "b"
		if _, err := s.MarkProcessed(p, approved, domain.ScreeningVerdict{Approved: approved}); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		keys = append(keys, p.Key())
	}
	if err := s.RemoveFromPending(keys); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	pending, _ := s.GetPending(0)
	if len(pending) != 0 {
		t.Fatalf("очередь должна быть пустой, получили %v", pending)
	}
	stats := s.Statistics()
	if stats.TotalProcessed != 3 || stats.TotalApproved != 2 || stats.TotalRejected != 1 {
		t.Fatalf("неверные агрегаты: %+v", stats)
	}
}

func TestCorruptHistoryDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, historyFile), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("подготовка файла: %v", err)
	}
	s, err := New(dir, time.Local, zerolog.Nop())
	if err != nil {
		t.Fatalf("повреждённая история не должна быть фатальной: %v", err)
	}
	if s.Statistics().TotalProcessed != 0 {
		t.Fatal("ожидали пустой реестр")
	}
	// реестр остаётся рабочим
	if _, err := s.MarkProcessed(profile(domain.PlatformInstagram, "a"), true, approvedVerdict("a")); err != nil {
		t.Fatalf("запись после восстановления: %v", err)
	}
}

func TestHistorySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, time.Local, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := s.MarkProcessed(profile(domain.PlatformYouTube, "chan"), true, approvedVerdict("chan")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	reopened, err := New(dir, time.Local, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !reopened.IsProcessed(domain.PlatformYouTube, "chan") {
		t.Fatal("история должна переживать перезапуск процесса")
	}
}

func TestStatisticsByPlatform(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.MarkProcessed(profile(domain.PlatformInstagram, "i1"), true, approvedVerdict("i1")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := s.MarkProcessed(profile(domain.PlatformTikTok, "t1"), false, domain.ScreeningVerdict{}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	stats := s.Statistics()
	if stats.ByPlatform[domain.PlatformInstagram].Approved != 1 {
		t.Fatalf("instagram: %+v", stats.ByPlatform)
	}
	if stats.ByPlatform[domain.PlatformTikTok].Total != 1 || stats.ByPlatform[domain.PlatformTikTok].Approved != 0 {
		t.Fatalf("tiktok: %+v", stats.ByPlatform)
	}
	if stats.ApprovalRate != 50 {
		t.Fatalf("ожидали 50%%, получили %v", stats.ApprovalRate)
	}
}
