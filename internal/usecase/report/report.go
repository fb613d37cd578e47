// Package report выгружает одобренных кандидатов прогона в файлы для команды
// маркетинга: Markdown для чтения, CSV/JSON для импорта, XLSX для таблиц.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"influencer-prospector/internal/domain"
)

// Format задаёт формат выгрузки.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatXLSX     Format = "xlsx"
)

var columns = []string{"Name", "Username", "Platform", "Followers", "Engagement %", "Profile URL", "Source", "Confidence", "Reason"}

// Render сериализует список одобренных в указанном формате.
func Render(profiles []domain.ApprovedProfile, format Format, date time.Time) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return renderMarkdown(profiles, date), nil
	case FormatCSV:
		return renderCSV(profiles)
	case FormatJSON:
		return renderJSON(profiles, date)
	case FormatXLSX:
		return renderXLSX(profiles)
	default:
		return nil, fmt.Errorf("неизвестный формат отчёта %q", format)
	}
}

// Save записывает отчёт в dir под именем prospects_<дата>.<расширение>
// и возвращает путь к файлу.
func Save(profiles []domain.ApprovedProfile, format Format, dir string, date time.Time) (string, error) {
	data, err := Render(profiles, format, date)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("создание каталога отчётов: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("prospects_%s.%s", date.Format("2006-01-02"), format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("запись отчёта: %w", err)
	}
	return path, nil
}

func renderMarkdown(profiles []domain.ApprovedProfile, date time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Одобренные кандидаты — %s\n\n", date.Format("2006-01-02"))
	if len(profiles) == 0 {
		b.WriteString("Ни один кандидат не одобрен.\n")
		return []byte(b.String())
	}
	fmt.Fprintf(&b, "Всего: %d\n\n", len(profiles))
	for i, ap := range profiles {
		p := ap.Profile
		fmt.Fprintf(&b, "## %d. %s (@%s)\n\n", i+1, p.Name, p.Username)
		fmt.Fprintf(&b, "- Площадка: %s\n", p.Platform)
		fmt.Fprintf(&b, "- Подписчики: %d\n", p.Followers)
		fmt.Fprintf(&b, "- Вовлечённость: %.2f%%\n", p.EngagementRate)
		if p.URL != "" {
			fmt.Fprintf(&b, "- Профиль: %s\n", p.URL)
		}
		fmt.Fprintf(&b, "- Источник: %s\n", p.SourceTag)
		fmt.Fprintf(&b, "- Уверенность LLM: %d\n", ap.Verdict.Confidence)
		if ap.Verdict.Reason != "" {
			fmt.Fprintf(&b, "- Обоснование: %s\n", ap.Verdict.Reason)
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func renderCSV(profiles []domain.ApprovedProfile) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	for _, ap := range profiles {
		if err := w.Write(row(ap)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func renderJSON(profiles []domain.ApprovedProfile, date time.Time) ([]byte, error) {
	payload := struct {
		Date     string                   `json:"date"`
		Total    int                      `json:"total"`
		Profiles []domain.ApprovedProfile `json:"profiles"`
	}{
		Date:     date.Format("2006-01-02"),
		Total:    len(profiles),
		Profiles: profiles,
	}
	return json.MarshalIndent(payload, "", "  ")
}

func renderXLSX(profiles []domain.ApprovedProfile) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Prospects"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, ap := range profiles {
		cells := row(ap)
		values := make([]any, len(cells))
		p := ap.Profile
		for j, c := range cells {
			values[j] = c
		}
		// числовые колонки пишутся числами, чтобы сортировка в таблице работала
		values[3] = p.Followers
		values[4] = p.EngagementRate
		values[7] = ap.Verdict.Confidence
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func row(ap domain.ApprovedProfile) []string {
	p := ap.Profile
	return []string{
		p.Name,
		p.Username,
		string(p.Platform),
		fmt.Sprint(p.Followers),
		fmt.Sprintf("%.2f", p.EngagementRate),
		p.URL,
		p.SourceTag,
		fmt.Sprint(ap.Verdict.Confidence),
		ap.Verdict.Reason,
	}
}

// ParseFormat проверяет строку формата из CLI.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatMarkdown:
		return FormatMarkdown, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("неизвестный формат %q (ожидается md, csv, json или xlsx)", s)
	}
}
