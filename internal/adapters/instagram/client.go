// Package instagram получает профили через Business Discovery Graph API.
// API отдаёт только Business/Creator аккаунты: личный или приватный профиль
// приходит как ошибка-отсутствие, и коллектор его молча пропускает.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"influencer-prospector/internal/domain"
	"influencer-prospector/internal/infra/metrics"
	"influencer-prospector/internal/usecase/qualify"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v19.0"
	// mediaSample — сколько последних публикаций идёт в расчёт вовлечённости.
	mediaSample = 12
)

var mentionRe = regexp.MustCompile(`@([a-zA-Z0-9_.]+)`)

// Client реализует domain.ProfileDiscovery.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userID     string
	log        zerolog.Logger
}

var _ domain.ProfileDiscovery = (*Client)(nil)

// New создаёт клиента Graph API. userID — ID подключённого Business аккаунта,
// от имени которого выполняется Business Discovery.
func New(token, userID, baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		userID:     userID,
		log:        logger.With().Str("component", "instagram").Logger(),
	}
}

type businessDiscoveryResponse struct {
	BusinessDiscovery *businessDiscovery `json:"business_discovery"`
	Error             *graphError        `json:"error"`
}

type businessDiscovery struct {
	Username       string `json:"username"`
	Name           string `json:"name"`
	Biography      string `json:"biography"`
	FollowersCount int    `json:"followers_count"`
	MediaCount     int    `json:"media_count"`
	Media          struct {
		Data []struct {
			LikeCount     int `json:"like_count"`
			CommentsCount int `json:"comments_count"`
		} `json:"data"`
	} `json:"media"`
}

type graphError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// FetchProfile запрашивает профиль через Business Discovery и считает
// вовлечённость по последним публикациям. Отсутствующий, приватный или
// не-Business профиль — (zero, false, nil).
func (c *Client) FetchProfile(ctx context.Context, username, sourceTag string) (domain.Profile, bool, error) {
	username = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(username, "@")))
	if username == "" {
		return domain.Profile{}, false, nil
	}

	fields := fmt.Sprintf(
		"business_discovery.username(%s){username,name,biography,followers_count,media_count,media.limit(%d){like_count,comments_count}}",
		username, mediaSample,
	)
	var resp businessDiscoveryResponse
	if err := c.get(ctx, "fetch_profile", c.userID, url.Values{"fields": {fields}}, &resp); err != nil {
		return domain.Profile{}, false, err
	}
	if resp.BusinessDiscovery == nil {
		c.log.Debug().Str("username", username).Msg("профиль недоступен через Business Discovery")
		return domain.Profile{}, false, nil
	}

	bd := resp.BusinessDiscovery
	totalLikes, totalComments := 0, 0
	for _, m := range bd.Media.Data {
		totalLikes += m.LikeCount
		totalComments += m.CommentsCount
	}
	avgLikes, avgComments := 0, 0
	rate := 0.0
	if n := len(bd.Media.Data); n > 0 {
		avgLikes = totalLikes / n
		avgComments = totalComments / n
		rate = qualify.EngagementRate(bd.FollowersCount, avgLikes, avgComments)
	}

	name := bd.Name
	if name == "" {
		name = bd.Username
	}
	return domain.Profile{
		Username:       bd.Username,
		Platform:       domain.PlatformInstagram,
		Name:           name,
		Followers:      bd.FollowersCount,
		EngagementRate: rate,
		AvgLikes:       avgLikes,
		AvgComments:    avgComments,
		Bio:            bd.Biography,
		URL:            "https://www.instagram.com/" + bd.Username + "/",
		SourceTag:      sourceTag,
		CollectedAt:    time.Now(),
	}, true, nil
}

type hashtagSearchResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
	Error *graphError `json:"error"`
}

type recentMediaResponse struct {
	Data []struct {
		Caption string `json:"caption"`
	} `json:"data"`
	Error *graphError `json:"error"`
}

// ExpandHashtag ищет ID хэштега, читает его свежие публикации и извлекает
// упомянутые username из подписей. Сами авторы публикаций API не отдаёт,
// поэтому источником служат только @-упоминания.
func (c *Client) ExpandHashtag(ctx context.Context, hashtag string, limit int) ([]string, error) {
	hashtag = strings.TrimPrefix(strings.TrimSpace(hashtag), "#")
	if hashtag == "" {
		return nil, nil
	}

	var search hashtagSearchResponse
	params := url.Values{"user_id": {c.userID}, "q": {hashtag}}
	if err := c.get(ctx, "hashtag_search", "ig_hashtag_search", params, &search); err != nil {
		return nil, err
	}
	if len(search.Data) == 0 {
		return nil, nil
	}

	mediaLimit := limit * 2
	if mediaLimit > 50 {
		mediaLimit = 50
	}
	var media recentMediaResponse
	params = url.Values{
		"user_id": {c.userID},
		"fields":  {"id,caption,permalink"},
		"limit":   {fmt.Sprint(mediaLimit)},
	}
	if err := c.get(ctx, "recent_media", search.Data[0].ID+"/recent_media", params, &media); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var usernames []string
	for _, m := range media.Data {
		for _, match := range mentionRe.FindAllStringSubmatch(m.Caption, -1) {
			u := strings.ToLower(match[1])
			if len(u) < 3 {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			usernames = append(usernames, u)
			if len(usernames) >= limit {
				return usernames, nil
			}
		}
	}
	return usernames, nil
}

func (c *Client) get(ctx context.Context, operation, endpoint string, params url.Values, out any) error {
	params.Set("access_token", c.token)
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("instagram: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("instagram", operation, "graph_api", start, err)
		return fmt.Errorf("instagram: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("instagram", operation, "graph_api", start, err)
		return fmt.Errorf("instagram: read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.ObserveNetworkRequest("instagram", operation, "graph_api", start, err)
		return fmt.Errorf("instagram: decode response: %w", err)
	}
	// Graph API сообщает об отсутствии профиля кодом 100 в теле с 400-м
	// статусом; это штатный промах, а не ошибка запроса.
	if ge := extractGraphError(out); ge != nil && resp.StatusCode >= 400 && ge.Code != 100 {
		err = fmt.Errorf("instagram: graph api: %s (code %d)", ge.Message, ge.Code)
		metrics.ObserveNetworkRequest("instagram", operation, "graph_api", start, err)
		return err
	}
	metrics.ObserveNetworkRequest("instagram", operation, "graph_api", start, nil)
	return nil
}

func extractGraphError(out any) *graphError {
	switch v := out.(type) {
	case *businessDiscoveryResponse:
		return v.Error
	case *hashtagSearchResponse:
		return v.Error
	case *recentMediaResponse:
		return v.Error
	}
	return nil
}
