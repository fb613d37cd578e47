package config

import (
	"os"
	"path/filepath"
	"testing"

	"influencer-prospector/internal/domain"
)

func TestLoadSourcesOrderAndKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	body := `instagram_seeds:
  - ana
hashtags:
  - fitness
keywords_pt:
  - como emagrecer
keywords_en:
  - weight loss brazil
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(sources) != 4 {
		t.Fatalf("источников: %d", len(sources))
	}
	want := []domain.Source{
		{Kind: domain.SourceSeed, Platform: domain.PlatformInstagram, Value: "ana"},
		{Kind: domain.SourceHashtag, Platform: domain.PlatformInstagram, Value: "fitness"},
		{Kind: domain.SourceKeyword, Platform: domain.PlatformTikTok, Value: "como emagrecer"},
		{Kind: domain.SourceKeyword, Platform: domain.PlatformYouTube, Value: "weight loss brazil"},
	}
	for i, w := range want {
		if sources[i] != w {
			t.Fatalf("источник %d: получили %+v, ожидали %+v", i, sources[i], w)
		}
	}
}

func TestLoadSourcesMissingFile(t *testing.T) {
	if _, err := LoadSources(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("ожидали ошибку на отсутствующем файле")
	}
}

func TestLoadSourcesBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte("instagram_seeds: {broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSources(path); err == nil {
		t.Fatal("ожидали ошибку разбора")
	}
}
