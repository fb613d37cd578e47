package screener

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"influencer-prospector/internal/domain"
	openai "influencer-prospector/internal/infra/openai"
)

type stubChatClient struct {
	responses []string
	errs      []error
	calls     int
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return openai.ChatCompletionResponse{}, s.errs[idx]
	}
	content := ""
	if idx < len(s.responses) {
		content = s.responses[idx]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: content}}},
	}, nil
}

func testProfile(username string) domain.Profile {
	return domain.Profile{
		Username:       username,
		Platform:       domain.PlatformInstagram,
		Name:           username,
		Followers:      20000,
		EngagementRate: 3.5,
	}
}

const approvedJSON = `{"age_ok": true, "target_body_type": true, "target_class": true, "target_nationality": true, "is_real_person": true, "approved": true, "reason": "fits", "confidence": 88}`

func newTestScreener(client chatCompletionClient) *LLMScreener {
	return NewLLM(client, "test-model", 0, 0, Criteria{MinAge: 25, Nationality: "Brazilian"}, zerolog.Nop())
}

func TestScreenApprovesOnFullCriteria(t *testing.T) {
	client := &stubChatClient{responses: []string{approvedJSON}}
	s := newTestScreener(client)

	approved, rejected := s.Screen(context.Background(), []domain.Profile{testProfile("ana")}, 5)
	if len(approved) != 1 || len(rejected) != 0 {
		t.Fatalf("ожидали одно одобрение: approved=%d rejected=%d", len(approved), len(rejected))
	}
	if approved[0].Confidence != 88 || approved[0].Reason != "fits" {
		t.Fatalf("вердикт искажён: %+v", approved[0])
	}
}

func TestScreenEnforcesCriteriaOverModelApproval(t *testing.T) {
	// Модель одобрила, но один критерий false.
	content := `{"age_ok": true, "target_body_type": false, "target_class": true, "target_nationality": true, "is_real_person": true, "approved": true, "reason": "looks fine", "confidence": 95}`
	client := &stubChatClient{responses: []string{content}}
	s := newTestScreener(client)

	approved, rejected := s.Screen(context.Background(), []domain.Profile{testProfile("bia")}, 5)
	if len(approved) != 0 || len(rejected) != 1 {
		t.Fatalf("ложный критерий должен отклонять: approved=%d rejected=%d", len(approved), len(rejected))
	}
}

func TestScreenExtractsFencedJSON(t *testing.T) {
	content := "```json\n" + approvedJSON + "\n```"
	client := &stubChatClient{responses: []string{content}}
	s := newTestScreener(client)

	approved, _ := s.Screen(context.Background(), []domain.Profile{testProfile("clara")}, 5)
	if len(approved) != 1 {
		t.Fatal("ответ в код-блоке должен разбираться")
	}
}

func TestScreenMissingFieldsDefaultToRejection(t *testing.T) {
	client := &stubChatClient{responses: []string{`{"approved": true, "confidence": 70}`}}
	s := newTestScreener(client)

	approved, rejected := s.Screen(context.Background(), []domain.Profile{testProfile("dani")}, 5)
	if len(approved) != 0 || len(rejected) != 1 {
		t.Fatal("отсутствующие критерии трактуются как false")
	}
}

func TestScreenCallFailureBecomesRejection(t *testing.T) {
	client := &stubChatClient{errs: []error{errors.New("rate limited")}}
	s := newTestScreener(client)

	approved, rejected := s.Screen(context.Background(), []domain.Profile{testProfile("eva")}, 5)
	if len(approved) != 0 || len(rejected) != 1 {
		t.Fatal("ошибка вызова не должна прерывать прогон")
	}
	if rejected[0].Confidence != 0 {
		t.Fatalf("уверенность при сбое должна быть 0, получили %d", rejected[0].Confidence)
	}
}

func TestScreenStopsAtMaxApproved(t *testing.T) {
	client := &stubChatClient{responses: []string{approvedJSON, approvedJSON, approvedJSON}}
	s := newTestScreener(client)

	profiles := []domain.Profile{testProfile("a"), testProfile("b"), testProfile("c")}
	approved, _ := s.Screen(context.Background(), profiles, 2)
	if len(approved) != 2 {
		t.Fatalf("ожидали ровно 2 одобрения, получили %d", len(approved))
	}
	if client.calls != 2 {
		t.Fatalf("после достижения квоты вызовов быть не должно: %d", client.calls)
	}
}

func TestExtractJSONRejectsPlainText(t *testing.T) {
	if _, ok := extractJSON("no structured data here"); ok {
		t.Fatal("текст без объекта не должен разбираться")
	}
}
