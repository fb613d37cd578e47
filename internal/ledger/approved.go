package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"influencer-prospector/internal/domain"
	"influencer-prospector/internal/usecase/qualify"
)

// approvedHeader — фиксированный порядок колонок итогового CSV. Файл только
// дописывается; потребители «одобрено сегодня» фильтруют по первой колонке.
var approvedHeader = []string{
	"approval_date",
	"name",
	"username",
	"platform",
	"followers",
	"engagement_rate",
	"profile_url",
	"bio",
	"age_ok",
	"target_body_type",
	"target_class",
	"target_nationality",
	"is_real_person",
	"confidence",
	"reason",
	"source_tag",
}

const approvedDateLayout = "2006-01-02 15:04"

// AppendApproved дописывает строку одобренного профиля в итоговый CSV.
func (s *Store) AppendApproved(profile domain.Profile, verdict domain.ScreeningVerdict) error {
	return s.withLock(approvedFile, func() error {
		path := filepath.Join(s.dir, approvedFile)
		_, statErr := os.Stat(path)
		writeHeader := os.IsNotExist(statErr)

		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("открытие CSV одобренных: %w", err)
		}
		defer f.Close()

		w := csv.NewWriter(f)
		if writeHeader {
			if err := w.Write(approvedHeader); err != nil {
				return fmt.Errorf("заголовок CSV: %w", err)
			}
		}
		row := []string{
			time.Now().In(s.loc).Format(approvedDateLayout),
			profile.Name,
			profile.Username,
			string(profile.Platform),
			strconv.Itoa(profile.Followers),
			strconv.FormatFloat(qualify.Round2(profile.EngagementRate), 'f', 2, 64),
			profile.URL,
			clipRunes(profile.Bio, 200),
			strconv.FormatBool(verdict.AgeOK),
			strconv.FormatBool(verdict.TargetBodyType),
			strconv.FormatBool(verdict.TargetClass),
			strconv.FormatBool(verdict.TargetNationality),
			strconv.FormatBool(verdict.IsRealPerson),
			strconv.Itoa(verdict.Confidence),
			verdict.Reason,
			profile.SourceTag,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("строка CSV: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("сброс CSV: %w", err)
		}
		return f.Sync()
	})
}

// ApprovedCount возвращает количество одобрений за всё время.
func (s *Store) ApprovedCount() (int, error) {
	count := 0
	err := s.scanApproved(func([]string) {
		count++
	})
	return count, err
}

// TodayApprovedCount считает одобрения текущего календарного дня по часовому
// поясу реестра. Именно этот счётчик обеспечивает дневную квоту между
// несколькими вызовами конвейера.
func (s *Store) TodayApprovedCount() (int, error) {
	today := time.Now().In(s.loc).Format("2006-01-02")
	count := 0
	err := s.scanApproved(func(row []string) {
		if len(row) > 0 && strings.HasPrefix(row[0], today) {
			count++
		}
	})
	return count, err
}

func (s *Store) scanApproved(fn func(row []string)) error {
	f, err := os.Open(filepath.Join(s.dir, approvedFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("открытие CSV одобренных: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			s.log.Error().Err(err).Msg("ledger: битая строка в CSV одобренных, пропущена")
			continue
		}
		if first {
			first = false
			continue
		}
		fn(row)
	}
}

func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
