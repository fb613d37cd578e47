package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"influencer-prospector/internal/domain"
)

// sourcesFile — структура YAML-файла с источниками кандидатов.
type sourcesFile struct {
	InstagramSeeds []string `yaml:"instagram_seeds"`
	Hashtags       []string `yaml:"hashtags"`
	KeywordsPT     []string `yaml:"keywords_pt"`
	KeywordsEN     []string `yaml:"keywords_en"`
}

// LoadSources читает список источников из YAML. Порядок фиксированный:
// сначала сиды, потом хэштеги, потом ключевые слова. От него зависит,
// какие кандидаты первыми займут дневной бюджет триажа.
func LoadSources(path string) ([]domain.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение файла источников: %w", err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("разбор файла источников: %w", err)
	}

	sources := make([]domain.Source, 0, len(f.InstagramSeeds)+len(f.Hashtags)+len(f.KeywordsPT)+len(f.KeywordsEN))
	for _, u := range f.InstagramSeeds {
		sources = append(sources, domain.Source{Kind: domain.SourceSeed, Platform: domain.PlatformInstagram, Value: u})
	}
	for _, h := range f.Hashtags {
		sources = append(sources, domain.Source{Kind: domain.SourceHashtag, Platform: domain.PlatformInstagram, Value: h})
	}
	for _, k := range f.KeywordsPT {
		sources = append(sources, domain.Source{Kind: domain.SourceKeyword, Platform: domain.PlatformTikTok, Value: k})
	}
	for _, k := range f.KeywordsEN {
		sources = append(sources, domain.Source{Kind: domain.SourceKeyword, Platform: domain.PlatformYouTube, Value: k})
	}
	return sources, nil
}
