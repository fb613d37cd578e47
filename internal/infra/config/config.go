package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"America/Sao_Paulo"`
	Port   int    `envconfig:"PORT" default:"8080"`

	DataDir     string `envconfig:"DATA_DIR" default:"data"`
	LogFile     string `envconfig:"LOG_FILE"`
	SourcesFile string `envconfig:"SOURCES_FILE" default:"sources.yaml"`

	Prospection struct {
		DailyTarget        int           `envconfig:"DAILY_TARGET" default:"20"`
		Oversample         int           `envconfig:"SCREEN_OVERSAMPLE" default:"3"`
		MinFollowers       int           `envconfig:"MIN_FOLLOWERS" default:"10000"`
		MinEngagement      float64       `envconfig:"MIN_ENGAGEMENT" default:"2.5"`
		PotentialFollowers int           `envconfig:"POTENTIAL_FOLLOWERS" default:"50000"`
		MaxPerSource       int           `envconfig:"MAX_PER_SOURCE" default:"20"`
		RateDelay          time.Duration `envconfig:"RATE_DELAY" default:"1s"`
	} `envconfig:""`

	Screening struct {
		MinAge      int    `envconfig:"SCREEN_MIN_AGE" default:"25"`
		Nationality string `envconfig:"SCREEN_NATIONALITY" default:"Brazilian"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
		Delay   time.Duration `envconfig:"OPENAI_CALL_DELAY" default:"2s"`
	} `envconfig:""`

	Instagram struct {
		Token   string `envconfig:"IG_ACCESS_TOKEN"`
		UserID  string `envconfig:"IG_BUSINESS_USER_ID"`
		BaseURL string `envconfig:"IG_GRAPH_BASE_URL" default:"https://graph.facebook.com/v19.0"`
	} `envconfig:""`

	DataAPI struct {
		BaseURL string `envconfig:"DATA_API_BASE_URL"`
		Key     string `envconfig:"DATA_API_KEY"`
	} `envconfig:""`

	Telegram struct {
		Token  string `envconfig:"TG_BOT_TOKEN"`
		ChatID int64  `envconfig:"TG_REPORT_CHAT_ID"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBIT_URL"`

	Queues struct {
		Runs string `envconfig:"RUNS_QUEUE_KEY" default:"prospection_runs"`
	} `envconfig:""`

	Schedule struct {
		DailyAt string `envconfig:"DAILY_RUN_AT" default:"09:00"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
