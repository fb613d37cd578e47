// Package notifier отправляет сводку прогона в Telegram-чат команды.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"influencer-prospector/internal/domain"
	"influencer-prospector/internal/infra/metrics"
)

// Telegram реализует domain.Notifier через Bot API.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

var _ domain.Notifier = (*Telegram)(nil)

// NewTelegram создаёт нотификатор. chatID — чат или канал команды прокураторов.
func NewTelegram(bot *tgbotapi.BotAPI, chatID int64, logger zerolog.Logger) *Telegram {
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		log:    logger.With().Str("component", "notifier").Logger(),
	}
}

// NotifyRun отправляет отчёт о прогоне.
func (t *Telegram) NotifyRun(ctx context.Context, run domain.RunSummary) error {
	msg := tgbotapi.NewMessage(t.chatID, formatRun(run))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	start := time.Now()
	_, err := t.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram", "notify_run", "bot_api", start, err)
	if err != nil {
		return fmt.Errorf("отправка отчёта о прогоне: %w", err)
	}
	t.log.Info().Str("run_id", run.ID).Msg("отчёт о прогоне отправлен")
	return nil
}

func formatRun(run domain.RunSummary) string {
	var b strings.Builder
	switch run.Status {
	case domain.RunStatusCompleted:
		b.WriteString("✅ <b>Прогон завершён</b>\n")
	case domain.RunStatusQuotaMet:
		b.WriteString("⏸ <b>Дневная квота уже выполнена</b>\n")
	case domain.RunStatusPartial:
		b.WriteString("⚠️ <b>Прогон завершён с ошибками</b>\n")
	default:
		fmt.Fprintf(&b, "ℹ️ <b>Прогон: %s</b>\n", run.Status)
	}
	fmt.Fprintf(&b, "Режим: %s, длительность: %s\n\n", run.Mode, run.Elapsed().Round(time.Second))
	fmt.Fprintf(&b, "Собрано: %d (новых: %d)\n", run.Collected, run.NewCandidates)
	fmt.Fprintf(&b, "Проверено: %d, одобрено: %d, отклонено: %d\n", run.Screened, run.Approved, run.Rejected)
	fmt.Fprintf(&b, "Всего одобрений за день: %d\n", run.TodayTotal)
	if len(run.Errors) > 0 {
		fmt.Fprintf(&b, "\nОшибки (%d):\n", len(run.Errors))
		shown := run.Errors
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, e := range shown {
			fmt.Fprintf(&b, "• %s\n", e)
		}
	}
	return b.String()
}
