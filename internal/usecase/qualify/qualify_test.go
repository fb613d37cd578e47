package qualify

import (
	"testing"

	"influencer-prospector/internal/domain"
)

func TestQualifiesInclusiveBoundary(t *testing.T) {
	p := domain.Profile{Followers: 10000, EngagementRate: 2.5}
	if !Qualifies(p, 10000, 2.5) {
		t.Fatal("граничные значения должны квалифицироваться")
	}
}

func TestQualifiesRejectsByFollowers(t *testing.T) {
	p := domain.Profile{Followers: 9999, EngagementRate: 5.0}
	if Qualifies(p, 10000, 2.5) {
		t.Fatal("9999 подписчиков не должны проходить порог 10000")
	}
}

func TestQualifiesRejectsZeroEngagement(t *testing.T) {
	p := domain.Profile{Followers: 50000, EngagementRate: 0}
	if Qualifies(p, 1000, 2.5) {
		t.Fatal("нулевая вовлечённость не проходит порог")
	}
}

func TestClassifyTiers(t *testing.T) {
	th := Thresholds{MinFollowers: 1000, MinEngagement: 2.5, PotentialFollowers: 10000}

	cases := []struct {
		name string
		p    domain.Profile
		want Tier
	}{
		{"квалифицирован", domain.Profile{Followers: 1000, EngagementRate: 2.5}, TierQualified},
		{"потенциальный без метрики", domain.Profile{Followers: 20000, EngagementRate: 0}, TierPotential},
		{"мало подписчиков без метрики", domain.Profile{Followers: 5000, EngagementRate: 0}, TierDiscarded},
		{"низкая вовлечённость", domain.Profile{Followers: 20000, EngagementRate: 1.1}, TierDiscarded},
	}
	for _, tc := range cases {
		if got := Classify(tc.p, th); got != tc.want {
			t.Fatalf("%s: ожидали ярус %d, получили %d", tc.name, tc.want, got)
		}
	}
}

func TestEngagementRate(t *testing.T) {
	// 100*(450+50)/20000 = 2.5
	if got := EngagementRate(20000, 450, 50); got != 2.5 {
		t.Fatalf("ожидали 2.5, получили %v", got)
	}
}

func TestEngagementRateZeroFollowers(t *testing.T) {
	if got := EngagementRate(0, 100, 0); got != 100 {
		t.Fatalf("при нулевых подписчиках знаменатель равен 1, срез до 100: %v", got)
	}
}

func TestEngagementRateClampsOutliers(t *testing.T) {
	if got := EngagementRate(10, 5000, 0); got != 100 {
		t.Fatalf("выброс API должен срезаться до 100, получили %v", got)
	}
}

func TestViewsEngagementRate(t *testing.T) {
	if got := ViewsEngagementRate(100000, 5000); got != 5.0 {
		t.Fatalf("ожидали 5.0, получили %v", got)
	}
	if got := ViewsEngagementRate(0, 5000); got != 0 {
		t.Fatalf("без подписчиков метрика не определена: %v", got)
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(2.4567); got != 2.46 {
		t.Fatalf("ожидали 2.46, получили %v", got)
	}
}
