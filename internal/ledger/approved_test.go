package ledger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"influencer-prospector/internal/domain"
)

func TestAppendApprovedWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, time.Local, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	for _, name := range []string{"ana", "bia"} {
		if err := s.AppendApproved(profile(domain.PlatformInstagram, name), approvedVerdict(name)); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}

	f, err := os.Open(filepath.Join(dir, approvedFile))
	if err != nil {
		t.Fatalf("файл не создан: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("ожидали заголовок и две строки, получили %d", len(rows))
	}
	if rows[0][0] != "approval_date" {
		t.Fatalf("неверный заголовок: %v", rows[0])
	}
	if rows[1][2] != "ana" || rows[2][2] != "bia" {
		t.Fatalf("неверный порядок строк: %v", rows)
	}
}

func TestApprovedCounts(t *testing.T) {
	s := newTestStore(t)
	if err := s.AppendApproved(profile(domain.PlatformTikTok, "hoje"), approvedVerdict("hoje")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	total, err := s.ApprovedCount()
	if err != nil || total != 1 {
		t.Fatalf("ApprovedCount: total=%d err=%v", total, err)
	}
	today, err := s.TodayApprovedCount()
	if err != nil || today != 1 {
		t.Fatalf("TodayApprovedCount: today=%d err=%v", today, err)
	}
}

func TestTodayApprovedCountIgnoresOtherDays(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, time.Local, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// строка за вчера, записанная предыдущим прогоном
	yesterday := time.Now().AddDate(0, 0, -1).Format(approvedDateLayout)
	row := yesterday + ",Old,old,instagram,15000,3.20,https://instagram.com/old,,true,true,true,true,true,90,,seed_list\n"
	if err := os.WriteFile(filepath.Join(dir, approvedFile), []byte(strings.Join(approvedHeader, ",")+"\n"+row), 0o644); err != nil {
		t.Fatalf("подготовка файла: %v", err)
	}

	if err := s.AppendApproved(profile(domain.PlatformInstagram, "fresh"), approvedVerdict("fresh")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	total, err := s.ApprovedCount()
	if err != nil || total != 2 {
		t.Fatalf("ожидали 2 всего, получили %d (err=%v)", total, err)
	}
	today, err := s.TodayApprovedCount()
	if err != nil || today != 1 {
		t.Fatalf("ожидали 1 за сегодня, получили %d (err=%v)", today, err)
	}
}

func TestAppendApprovedClipsBio(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, time.Local, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	p := profile(domain.PlatformInstagram, "longa")
	p.Bio = strings.Repeat("я", 500)
	if err := s.AppendApproved(p, approvedVerdict("longa")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, approvedFile))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	bio := rows[1][7]
	if got := len([]rune(bio)); got > 200 {
		t.Fatalf("биография не обрезана: %d рун", got)
	}
}

func TestScanApprovedSkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, time.Local, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	content := strings.Join(approvedHeader, ",") + "\n" +
		"not-a-date\n" +
		time.Now().Format(approvedDateLayout) + ",Ok,ok,instagram,15000,3.20,https://instagram.com/ok,,true,true,true,true,true,90,,seed_list\n"
	if err := os.WriteFile(filepath.Join(dir, approvedFile), []byte(content), 0o644); err != nil {
		t.Fatalf("подготовка файла: %v", err)
	}

	today, err := s.TodayApprovedCount()
	if err != nil {
		t.Fatalf("кривая строка не должна быть фатальной: %v", err)
	}
	if today != 1 {
		t.Fatalf("ожидали 1, получили %d", today)
	}
}
