// Package screener отбирает кандидатов через LLM: один профиль, один запрос,
// один строгий JSON-вердикт.
package screener

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"influencer-prospector/internal/domain"
	openai "influencer-prospector/internal/infra/openai"
)

type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Criteria — параметры отбора, подставляемые в промпт.
type Criteria struct {
	MinAge      int
	Nationality string
}

// LLMScreener реализует domain.Screener поверх OpenAI Chat Completions.
type LLMScreener struct {
	client   chatCompletionClient
	model    string
	timeout  time.Duration
	delay    time.Duration
	criteria Criteria
	log      zerolog.Logger
}

var _ domain.Screener = (*LLMScreener)(nil)

// NewLLM создаёт скринер.
func NewLLM(client chatCompletionClient, model string, timeout, delay time.Duration, criteria Criteria, logger zerolog.Logger) *LLMScreener {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if criteria.MinAge <= 0 {
		criteria.MinAge = 25
	}
	if criteria.Nationality == "" {
		criteria.Nationality = "Brazilian"
	}
	return &LLMScreener{
		client:   client,
		model:    model,
		timeout:  timeout,
		delay:    delay,
		criteria: criteria,
		log:      logger.With().Str("component", "screener").Logger(),
	}
}

// llmVerdict — контракт ответа модели. Отсутствующие поля трактуются как
// false/0, а не как ошибка.
type llmVerdict struct {
	AgeOK             bool   `json:"age_ok"`
	TargetBodyType    bool   `json:"target_body_type"`
	TargetClass       bool   `json:"target_class"`
	TargetNationality bool   `json:"target_nationality"`
	IsRealPerson      bool   `json:"is_real_person"`
	Approved          bool   `json:"approved"`
	Reason            string `json:"reason"`
	Confidence        int    `json:"confidence"`
}

// Screen прогоняет профили через LLM в порядке очереди и останавливается,
// как только набрано maxApproved одобрений. Ошибки вызова или разбора не
// прерывают прогон: профиль получает отказной вердикт с нулевой уверенностью.
func (s *LLMScreener) Screen(ctx context.Context, pending []domain.Profile, maxApproved int) ([]domain.ScreeningVerdict, []domain.ScreeningVerdict) {
	var approved, rejected []domain.ScreeningVerdict
	for i, profile := range pending {
		if maxApproved > 0 && len(approved) >= maxApproved {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if i > 0 && s.delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.delay):
			}
			if ctx.Err() != nil {
				break
			}
		}

		verdict := s.screenOne(ctx, profile)
		if verdict.Approved {
			approved = append(approved, verdict)
			s.log.Info().Str("key", profile.Key()).Int("confidence", verdict.Confidence).Msg("профиль одобрен")
		} else {
			rejected = append(rejected, verdict)
			s.log.Debug().Str("key", profile.Key()).Str("reason", verdict.Reason).Msg("профиль отклонён")
		}
	}
	return approved, rejected
}

func (s *LLMScreener) screenOne(ctx context.Context, profile domain.Profile) domain.ScreeningVerdict {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.1,
		Messages: []openai.ChatMessage{
			{
				Role:    openai.RoleSystem,
				Content: "You are a strict marketing analyst screening social-media profiles for an influencer program. Answer only with the requested JSON object, no prose.",
			},
			{
				Role:    openai.RoleUser,
				Content: s.prompt(profile),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ResponseFormatTypeJSONObject,
		},
	}

	resp, err := s.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		s.log.Error().Err(err).Str("key", profile.Key()).Msg("вызов LLM не удался")
		return s.failureVerdict(profile, fmt.Sprintf("llm call failed: %v", err))
	}
	if len(resp.Choices) == 0 {
		return s.failureVerdict(profile, "llm returned no choices")
	}

	raw, ok := extractJSON(resp.Choices[0].Message.Content)
	if !ok {
		return s.failureVerdict(profile, "no JSON object in llm response")
	}
	var parsed llmVerdict
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		s.log.Error().Err(err).Str("key", profile.Key()).Msg("нечитаемый вердикт LLM")
		return s.failureVerdict(profile, fmt.Sprintf("malformed verdict: %v", err))
	}

	verdict := domain.ScreeningVerdict{
		Username:          profile.Username,
		Platform:          profile.Platform,
		AgeOK:             parsed.AgeOK,
		TargetBodyType:    parsed.TargetBodyType,
		TargetClass:       parsed.TargetClass,
		TargetNationality: parsed.TargetNationality,
		IsRealPerson:      parsed.IsRealPerson,
		Approved:          parsed.Approved,
		Reason:            strings.TrimSpace(parsed.Reason),
		Confidence:        clampConfidence(parsed.Confidence),
	}
	// Модель может одобрить вопреки собственным критериям; жёсткий AND важнее.
	return verdict.Enforce()
}

func (s *LLMScreener) prompt(p domain.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Screen this %s profile for an influencer marketing program.\n\n", p.Platform)
	fmt.Fprintf(&b, "Name: %s\nUsername: @%s\nFollowers: %d\nEngagement rate: %.2f%%\n", p.Name, p.Username, p.Followers, p.EngagementRate)
	if p.Bio != "" {
		fmt.Fprintf(&b, "Bio: %s\n", truncate(p.Bio, 500))
	}
	if p.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", p.Location)
	}
	if p.Verified {
		b.WriteString("Verified account.\n")
	}
	fmt.Fprintf(&b, `
Answer these five questions with true or false (never null; use false when uncertain):
1. age_ok: does the person appear to be %d years old or older?
2. target_body_type: does the person match the plus-size body segment the program targets?
3. target_class: does the profile suggest a middle-class or higher income level?
4. target_nationality: does the person appear to be %s?
5. is_real_person: is this an individual person, not a brand, fan page or aggregator?

Reply with exactly one JSON object:
{"age_ok": bool, "target_body_type": bool, "target_class": bool, "target_nationality": bool, "is_real_person": bool, "approved": bool, "reason": "short explanation", "confidence": 0-100}

Set "approved" to true only when all five answers are true.`, s.criteria.MinAge, s.criteria.Nationality)
	return b.String()
}

func (s *LLMScreener) failureVerdict(p domain.Profile, reason string) domain.ScreeningVerdict {
	return domain.ScreeningVerdict{
		Username:   p.Username,
		Platform:   p.Platform,
		Approved:   false,
		Reason:     reason,
		Confidence: 0,
	}
}

// extractJSON достаёт первый JSON-объект из текста, снимая обёртку
// ```json ... ``` при её наличии.
func extractJSON(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
