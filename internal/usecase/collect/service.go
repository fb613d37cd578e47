// Package collect собирает кандидатов со всех источников и квалифицирует их
// по порогам подписчиков и вовлечённости.
package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"influencer-prospector/internal/domain"
	"influencer-prospector/internal/infra/metrics"
	"influencer-prospector/internal/usecase/qualify"
)

// Options настраивают прогон сбора.
type Options struct {
	Thresholds qualify.Thresholds
	// RateDelay — пауза между обращениями к API площадок.
	RateDelay time.Duration
	// CacheTTL — срок, в течение которого профиль не запрашивается повторно.
	CacheTTL time.Duration
}

// Service реализует domain.Collector поверх discovery- и search-адаптеров.
type Service struct {
	discovery domain.ProfileDiscovery
	search    domain.VideoSearch
	cache     domain.Cache
	opts      Options
	log       zerolog.Logger
}

var _ domain.Collector = (*Service)(nil)

// NewService создаёт коллектор. cache может быть nil: тогда профили
// запрашиваются без кэширования.
func NewService(discovery domain.ProfileDiscovery, search domain.VideoSearch, cache domain.Cache, opts Options, logger zerolog.Logger) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &Service{
		discovery: discovery,
		search:    search,
		cache:     cache,
		opts:      opts,
		log:       logger.With().Str("component", "collector").Logger(),
	}
}

// Collect обходит источники по порядку и возвращает квалифицированных
// кандидатов: сначала прошедшие оба порога, затем ярус «на проверку».
// Сбой одного источника не прерывает остальные; ошибки накапливаются
// для сводки прогона.
func (s *Service) Collect(ctx context.Context, sources []domain.Source, maxPerSource int) ([]domain.Profile, []string) {
	var qualified, potential []domain.Profile
	var errs []string
	seen := make(map[string]struct{})

	for i, src := range sources {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Sprintf("сбор прерван: %v", ctx.Err()))
			break
		}
		if i > 0 && s.opts.RateDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.opts.RateDelay):
			}
		}

		profiles, err := s.collectSource(ctx, src, maxPerSource)
		if err != nil {
			metrics.CollectorErrors.WithLabelValues(string(src.Platform)).Inc()
			msg := fmt.Sprintf("%s %s %q: %v", src.Platform, src.Kind, src.Value, err)
			s.log.Warn().Str("source", src.Tag()).Err(err).Msg("источник недоступен, пропущен")
			errs = append(errs, msg)
			continue
		}

		for _, p := range profiles {
			key := p.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			switch qualify.Classify(p, s.opts.Thresholds) {
			case qualify.TierQualified:
				p.EngagementRate = qualify.Round2(p.EngagementRate)
				qualified = append(qualified, p)
				metrics.ProfilesCollected.WithLabelValues(string(p.Platform), "qualified").Inc()
			case qualify.TierPotential:
				p.NeedsVerification = true
				potential = append(potential, p)
				metrics.ProfilesCollected.WithLabelValues(string(p.Platform), "potential").Inc()
			default:
				metrics.ProfilesCollected.WithLabelValues(string(p.Platform), "discarded").Inc()
			}
		}
	}

	s.log.Info().
		Int("qualified", len(qualified)).
		Int("potential", len(potential)).
		Int("sources", len(sources)).
		Int("errors", len(errs)).
		Msg("сбор завершён")
	return append(qualified, potential...), errs
}

func (s *Service) collectSource(ctx context.Context, src domain.Source, limit int) ([]domain.Profile, error) {
	switch src.Kind {
	case domain.SourceSeed:
		return s.collectSeed(ctx, src)
	case domain.SourceHashtag:
		return s.collectHashtag(ctx, src, limit)
	case domain.SourceKeyword:
		return s.collectKeyword(ctx, src, limit)
	default:
		return nil, fmt.Errorf("неизвестный тип источника %q", src.Kind)
	}
}

func (s *Service) collectSeed(ctx context.Context, src domain.Source) ([]domain.Profile, error) {
	if s.discovery == nil {
		return nil, fmt.Errorf("instagram discovery не настроен")
	}
	profile, found, err := s.fetchCached(ctx, src.Value, src.Tag())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return []domain.Profile{profile}, nil
}

func (s *Service) collectHashtag(ctx context.Context, src domain.Source, limit int) ([]domain.Profile, error) {
	if s.discovery == nil {
		return nil, fmt.Errorf("instagram discovery не настроен")
	}
	usernames, err := s.discovery.ExpandHashtag(ctx, src.Value, limit)
	if err != nil {
		return nil, err
	}
	var profiles []domain.Profile
	for _, username := range usernames {
		if ctx.Err() != nil {
			break
		}
		profile, found, err := s.fetchCached(ctx, username, src.Tag())
		if err != nil {
			s.log.Debug().Err(err).Str("username", username).Msg("профиль из хэштега недоступен")
			continue
		}
		if !found {
			continue
		}
		profiles = append(profiles, profile)
		if s.opts.RateDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.opts.RateDelay):
			}
		}
	}
	return profiles, nil
}

func (s *Service) collectKeyword(ctx context.Context, src domain.Source, limit int) ([]domain.Profile, error) {
	if s.search == nil {
		return nil, fmt.Errorf("video search не настроен")
	}
	switch src.Platform {
	case domain.PlatformTikTok:
		return s.search.SearchTikTok(ctx, src.Value, limit)
	case domain.PlatformYouTube:
		return s.search.SearchYouTube(ctx, src.Value, limit)
	default:
		return nil, fmt.Errorf("поиск по ключевому слову не поддерживается для %q", src.Platform)
	}
}

// fetchCached оборачивает FetchProfile кэшем: пока ключ жив, профиль берётся
// из кэша без похода в Graph API. Промахи тоже кэшируются (пустым значением),
// повторные запросы к приватным профилям не тратят лимит API.
func (s *Service) fetchCached(ctx context.Context, username, sourceTag string) (domain.Profile, bool, error) {
	if s.cache == nil {
		return s.discovery.FetchProfile(ctx, username, sourceTag)
	}

	cacheKey := "profile:" + string(domain.PlatformInstagram) + ":" + username
	if data, err := s.cache.Get(cacheKey); err == nil {
		if len(data) == 0 {
			return domain.Profile{}, false, nil
		}
		var p domain.Profile
		if err := json.Unmarshal(data, &p); err == nil {
			p.SourceTag = sourceTag
			return p, true, nil
		}
	}

	profile, found, err := s.discovery.FetchProfile(ctx, username, sourceTag)
	if err != nil {
		return domain.Profile{}, false, err
	}
	if !found {
		_ = s.cache.Set(cacheKey, nil, s.opts.CacheTTL)
		return domain.Profile{}, false, nil
	}
	if data, err := json.Marshal(profile); err == nil {
		_ = s.cache.Set(cacheKey, data, s.opts.CacheTTL)
	}
	return profile, true, nil
}
