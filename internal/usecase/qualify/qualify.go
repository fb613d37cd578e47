// Package qualify решает, стоит ли тратить бюджет триажа на собранный профиль.
// Все функции чистые: ни ввода-вывода, ни состояния.
package qualify

import (
	"math"

	"influencer-prospector/internal/domain"
)

// Thresholds — пороги квалификации одного прогона.
type Thresholds struct {
	// MinFollowers — минимум подписчиков (включительно).
	MinFollowers int
	// MinEngagement — минимальная вовлечённость в процентах (включительно).
	MinEngagement float64
	// PotentialFollowers — нижняя граница подписчиков, при которой профиль
	// без измеренной вовлечённости попадает в очередь как «на проверку».
	PotentialFollowers int
}

// Tier — итог квалификации.
type Tier int

const (
	// TierDiscarded — профиль не проходит ни один порог.
	TierDiscarded Tier = iota
	// TierQualified — оба порога пройдены, профиль идёт в триаж первым.
	TierQualified
	// TierPotential — вовлечённость не измерена, но подписчиков достаточно;
	// профиль ставится в очередь после квалифицированных и помечается
	// NeedsVerification. Автоматического одобрения этот ярус не даёт.
	TierPotential
)

// Qualifies сообщает, проходит ли профиль оба порога. Пороги включительные;
// сравнение идёт по полной точности, без округления. Нулевая вовлечённость
// порог не проходит — ярус «на проверку» применяется отдельным правилом.
func Qualifies(p domain.Profile, minFollowers int, minEngagement float64) bool {
	return p.Followers >= minFollowers && p.EngagementRate >= minEngagement
}

// Classify относит профиль к ярусу по единой политике отбора.
func Classify(p domain.Profile, th Thresholds) Tier {
	if Qualifies(p, th.MinFollowers, th.MinEngagement) {
		return TierQualified
	}
	if p.EngagementRate == 0 && p.Followers >= th.PotentialFollowers {
		return TierPotential
	}
	return TierDiscarded
}

// EngagementRate считает вовлечённость в процентах по средним лайкам и
// комментариям: 100*(likes+comments)/followers, с защитой от нулевого
// знаменателя и срезом выбросов API в [0, 100].
func EngagementRate(followers, avgLikes, avgComments int) float64 {
	rate := 100 * float64(avgLikes+avgComments) / float64(max(followers, 1))
	return clamp(rate)
}

// ViewsEngagementRate — прокси-метрика для площадок без лайков/комментариев:
// средние просмотры ролика на одного подписчика, в процентах.
func ViewsEngagementRate(subscribers, avgViews int) float64 {
	if subscribers <= 0 {
		return 0
	}
	return clamp(100 * float64(avgViews) / float64(subscribers))
}

// Round2 округляет до двух знаков — только для отображения и хранения,
// никогда для сравнения с порогом.
func Round2(rate float64) float64 {
	return math.Round(rate*100) / 100
}

func clamp(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}
