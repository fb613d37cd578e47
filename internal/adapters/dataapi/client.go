// Package dataapi ищет авторов TikTok и YouTube через HTTP-прокси данных
// видеоплощадок. Прокси отдаёт сырые ленты поиска; профиль автора собирается
// из статистики, приложенной к видео или каналу.
package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"influencer-prospector/internal/domain"
	"influencer-prospector/internal/infra/metrics"
	"influencer-prospector/internal/usecase/qualify"
)

// Client реализует domain.VideoSearch.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        zerolog.Logger
}

var _ domain.VideoSearch = (*Client)(nil)

// New создаёт клиента прокси.
func New(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		log:        logger.With().Str("component", "dataapi").Logger(),
	}
}

type tiktokSearchResponse struct {
	Data []struct {
		Item struct {
			Author struct {
				UniqueID  string `json:"uniqueId"`
				Nickname  string `json:"nickname"`
				Signature string `json:"signature"`
				Verified  bool   `json:"verified"`
			} `json:"author"`
			AuthorStats struct {
				FollowerCount int `json:"followerCount"`
				HeartCount    int `json:"heartCount"`
				VideoCount    int `json:"videoCount"`
			} `json:"authorStats"`
			Stats struct {
				DiggCount    int `json:"diggCount"`
				CommentCount int `json:"commentCount"`
				PlayCount    int `json:"playCount"`
			} `json:"stats"`
		} `json:"item"`
	} `json:"data"`
}

// SearchTikTok ищет видео по ключевому слову и собирает профили их авторов.
// Вовлечённость считается по суммарным лайкам автора на видео; когда статистики
// автора нет, берётся метрика текущего видео.
func (c *Client) SearchTikTok(ctx context.Context, keyword string, limit int) ([]domain.Profile, error) {
	var resp tiktokSearchResponse
	params := url.Values{"keyword": {keyword}}
	if err := c.get(ctx, "tiktok_search", "Tiktok/search_tiktok_video_general", params, &resp); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var profiles []domain.Profile
	for _, entry := range resp.Data {
		item := entry.Item
		username := strings.ToLower(item.Author.UniqueID)
		if username == "" {
			continue
		}
		if _, ok := seen[username]; ok {
			continue
		}
		seen[username] = struct{}{}

		followers := item.AuthorStats.FollowerCount
		avgLikes := 0
		var rate float64
		switch {
		case followers > 0 && item.AuthorStats.VideoCount > 0:
			avgLikes = item.AuthorStats.HeartCount / item.AuthorStats.VideoCount
			rate = qualify.EngagementRate(followers, avgLikes, 0)
		case followers > 0:
			avgLikes = item.Stats.DiggCount
			rate = qualify.EngagementRate(followers, item.Stats.DiggCount, item.Stats.CommentCount)
		}

		name := item.Author.Nickname
		if name == "" {
			name = item.Author.UniqueID
		}
		profiles = append(profiles, domain.Profile{
			Username:       item.Author.UniqueID,
			Platform:       domain.PlatformTikTok,
			Name:           name,
			Followers:      followers,
			EngagementRate: rate,
			AvgLikes:       avgLikes,
			AvgComments:    item.Stats.CommentCount,
			AvgViews:       item.Stats.PlayCount,
			Verified:       item.Author.Verified,
			Bio:            item.Author.Signature,
			URL:            "https://www.tiktok.com/@" + item.Author.UniqueID,
			SourceTag:      keyword,
			CollectedAt:    time.Now(),
		})
		if limit > 0 && len(profiles) >= limit {
			break
		}
	}
	return profiles, nil
}

type youtubeSearchResponse struct {
	Contents []struct {
		Type  string `json:"type"`
		Video struct {
			ChannelID     string `json:"channelId"`
			ChannelTitle  string `json:"channelTitle"`
			ViewCountText string `json:"viewCountText"`
		} `json:"video"`
	} `json:"contents"`
}

type youtubeChannelResponse struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Badges      []string `json:"badges"`
	Stats       struct {
		Subscribers int `json:"subscribers"`
		Views       int `json:"views"`
		Videos      int `json:"videos"`
	} `json:"stats"`
}

// SearchYouTube ищет каналы по ключевому слову. В ленте поиска нет статистики
// канала, поэтому каждый найденный канал дозапрашивается отдельно; сбой
// обогащения оставляет канал с нулями и пометкой NeedsVerification.
func (c *Client) SearchYouTube(ctx context.Context, keyword string, limit int) ([]domain.Profile, error) {
	var resp youtubeSearchResponse
	params := url.Values{"q": {keyword}, "hl": {"pt"}, "gl": {"BR"}}
	if err := c.get(ctx, "youtube_search", "Youtube/search", params, &resp); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var profiles []domain.Profile
	for _, content := range resp.Contents {
		if content.Type != "video" || content.Video.ChannelID == "" {
			continue
		}
		channelID := content.Video.ChannelID
		key := strings.ToLower(channelID)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		profile := domain.Profile{
			Username:          channelID,
			Platform:          domain.PlatformYouTube,
			Name:              content.Video.ChannelTitle,
			AvgViews:          ParseCount(content.Video.ViewCountText),
			URL:               "https://www.youtube.com/channel/" + channelID,
			SourceTag:         keyword,
			NeedsVerification: true,
			CollectedAt:       time.Now(),
		}
		if enriched, err := c.channelDetails(ctx, channelID); err == nil {
			profile.Followers = enriched.Stats.Subscribers
			profile.Bio = clip(enriched.Description, 500)
			profile.Verified = hasBadge(enriched.Badges, "verified")
			if enriched.Title != "" {
				profile.Name = enriched.Title
			}
			if enriched.Stats.Videos > 0 {
				profile.AvgViews = enriched.Stats.Views / enriched.Stats.Videos
				profile.EngagementRate = qualify.ViewsEngagementRate(enriched.Stats.Subscribers, profile.AvgViews)
				profile.NeedsVerification = false
			}
		} else {
			c.log.Debug().Err(err).Str("channel", channelID).Msg("канал без деталей, оставлен на проверку")
		}

		profiles = append(profiles, profile)
		if limit > 0 && len(profiles) >= limit {
			break
		}
	}
	return profiles, nil
}

func (c *Client) channelDetails(ctx context.Context, channelID string) (youtubeChannelResponse, error) {
	var resp youtubeChannelResponse
	params := url.Values{"id": {channelID}, "hl": {"pt"}}
	err := c.get(ctx, "youtube_channel", "Youtube/get_channel_details", params, &resp)
	return resp, err
}

func (c *Client) get(ctx context.Context, operation, endpoint string, params url.Values, out any) error {
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("dataapi: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("dataapi", operation, endpoint, start, err)
		return fmt.Errorf("dataapi: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("dataapi", operation, endpoint, start, err)
		return fmt.Errorf("dataapi: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("dataapi: unexpected status %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("dataapi", operation, endpoint, start, err)
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.ObserveNetworkRequest("dataapi", operation, endpoint, start, err)
		return fmt.Errorf("dataapi: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("dataapi", operation, endpoint, start, nil)
	return nil
}

// ParseCount переводит текстовые счётчики вида "1.5M", "500K" или
// "1,2 mi de visualizações" в число.
func ParseCount(text string) int {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0
	}
	for _, noise := range []string{" views", " visualizações", " de", " subscribers", " inscritos"} {
		text = strings.ReplaceAll(text, noise, "")
	}
	text = strings.ReplaceAll(text, ",", ".")
	text = strings.TrimSpace(text)

	multipliers := []struct {
		suffix string
		factor float64
	}{
		{"mil", 1e3},
		{"mi", 1e6},
		{"b", 1e9},
		{"m", 1e6},
		{"k", 1e3},
	}
	for _, m := range multipliers {
		if strings.HasSuffix(text, m.suffix) {
			num, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(text, m.suffix)), 64)
			if err != nil {
				return 0
			}
			return int(num * m.factor)
		}
	}

	plain := strings.ReplaceAll(text, ".", "")
	if n, err := strconv.Atoi(plain); err == nil {
		return n
	}
	return 0
}

func hasBadge(badges []string, want string) bool {
	for _, b := range badges {
		if strings.EqualFold(b, want) {
			return true
		}
	}
	return false
}

func clip(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
