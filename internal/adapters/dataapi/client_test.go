package dataapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"influencer-prospector/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "key", time.Second, zerolog.Nop())
}

func TestSearchTikTokBuildsAuthorProfiles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "search_tiktok_video_general") {
			t.Errorf("неожиданный путь: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Error("нет авторизации")
		}
		w.Write([]byte(`{"data": [
			{"item": {
				"author": {"uniqueId": "fitgirl", "nickname": "Fit Girl", "signature": "treinos", "verified": true},
				"authorStats": {"followerCount": 50000, "heartCount": 1000000, "videoCount": 100},
				"stats": {"diggCount": 5000, "commentCount": 120, "playCount": 90000}
			}},
			{"item": {
				"author": {"uniqueId": "fitgirl"},
				"authorStats": {"followerCount": 50000, "heartCount": 1000000, "videoCount": 100},
				"stats": {}
			}},
			{"item": {"author": {}, "stats": {}}}
		]}`))
	})

	profiles, err := c.SearchTikTok(context.Background(), "emagrecimento", 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("дубликаты и пустые авторы должны отбрасываться: %d", len(profiles))
	}
	p := profiles[0]
	if p.Platform != domain.PlatformTikTok || p.Username != "fitgirl" {
		t.Fatalf("профиль искажён: %+v", p)
	}
	// hearts/videoCount = 10000 средних лайков, 10000/50000*100 = 20
	if p.EngagementRate != 20 {
		t.Fatalf("ожидали вовлечённость 20, получили %v", p.EngagementRate)
	}
	if p.SourceTag != "emagrecimento" {
		t.Fatalf("метка источника потеряна: %q", p.SourceTag)
	}
}

func TestSearchTikTokRespectsLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [
			{"item": {"author": {"uniqueId": "a"}, "authorStats": {"followerCount": 1000, "heartCount": 100, "videoCount": 10}, "stats": {}}},
			{"item": {"author": {"uniqueId": "b"}, "authorStats": {"followerCount": 1000, "heartCount": 100, "videoCount": 10}, "stats": {}}}
		]}`))
	})

	profiles, err := c.SearchTikTok(context.Background(), "fit", 1)
	if err != nil || len(profiles) != 1 {
		t.Fatalf("лимит не соблюдён: %d (err=%v)", len(profiles), err)
	}
}

func TestSearchYouTubeEnrichesChannels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "Youtube/search"):
			w.Write([]byte(`{"contents": [
				{"type": "video", "video": {"channelId": "UC123", "channelTitle": "Canal Fit", "viewCountText": "1.5M views"}},
				{"type": "playlist"},
				{"type": "video", "video": {"channelId": "UC123"}}
			]}`))
		case strings.Contains(r.URL.Path, "get_channel_details"):
			w.Write([]byte(`{"title": "Canal Fit Oficial", "description": "treinos e dietas",
				"badges": ["verified"],
				"stats": {"subscribers": 200000, "views": 50000000, "videos": 500}}`))
		default:
			t.Errorf("неожиданный путь: %s", r.URL.Path)
		}
	})

	profiles, err := c.SearchYouTube(context.Background(), "dieta", 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("канал должен дедуплицироваться: %d", len(profiles))
	}
	p := profiles[0]
	if p.Followers != 200000 || !p.Verified || p.Name != "Canal Fit Oficial" {
		t.Fatalf("обогащение не применилось: %+v", p)
	}
	// avgViews = 100000, 100000/200000*100 = 50
	if p.EngagementRate != 50 || p.NeedsVerification {
		t.Fatalf("вовлечённость по просмотрам: %+v", p)
	}
}

func TestSearchYouTubeKeepsChannelOnEnrichmentFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "Youtube/search"):
			w.Write([]byte(`{"contents": [{"type": "video", "video": {"channelId": "UC9", "channelTitle": "Canal", "viewCountText": "10K"}}]}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	profiles, err := c.SearchYouTube(context.Background(), "dieta", 10)
	if err != nil {
		t.Fatalf("сбой обогащения не должен ронять поиск: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("канал должен остаться: %d", len(profiles))
	}
	if !profiles[0].NeedsVerification || profiles[0].Followers != 0 {
		t.Fatalf("канал без статистики должен идти на проверку: %+v", profiles[0])
	}
}

func TestParseCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"1.5M", 1500000},
		{"500K", 500000},
		{"1,2 mi de visualizações", 1200000},
		{"2 mil", 2000},
		{"1234", 1234},
		{"1.234.567", 1234567},
		{"", 0},
		{"n/a", 0},
	}
	for _, tc := range cases {
		if got := ParseCount(tc.in); got != tc.want {
			t.Errorf("ParseCount(%q) = %d, ожидали %d", tc.in, got, tc.want)
		}
	}
}
