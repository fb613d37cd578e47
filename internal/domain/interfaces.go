package domain

import (
	"context"
	"time"
)

// Ledger — единственный источник истины о том, какие профили уже потратили
// бюджет триажа, и очередь работы между фазами сбора и триажа.
type Ledger interface {
	// IsProcessed отвечает по кэшу в памяти; никаких сетевых вызовов.
	IsProcessed(platform Platform, username string) bool
	// MarkProcessed создаёт запись реестра. Повторный вызов по тому же ключу —
	// no-op с предупреждением; created=false.
	MarkProcessed(profile Profile, approved bool, verdict ScreeningVerdict) (created bool, err error)
	// FilterUnprocessed возвращает кандидатов без записи в реестре, сохраняя порядок.
	FilterUnprocessed(profiles []Profile) []Profile
	// SavePending добавляет кандидатов в очередь триажа, отбрасывая дубликаты
	// по ключу идентичности против очереди и реестра.
	SavePending(profiles []Profile) (added int, err error)
	// GetPending возвращает до limit ожидающих профилей, перефильтрованных
	// против реестра на момент чтения.
	GetPending(limit int) ([]Profile, error)
	// RemoveFromPending убирает ключи из очереди; отсутствующие ключи не ошибка.
	RemoveFromPending(keys []string) error
	// AppendApproved дописывает строку в итоговый CSV одобренных.
	AppendApproved(profile Profile, verdict ScreeningVerdict) error
	// TodayApprovedCount — количество одобрений за текущий календарный день.
	TodayApprovedCount() (int, error)
	// ApprovedCount — количество одобрений за всё время.
	ApprovedCount() (int, error)
	// Statistics — агрегаты реестра.
	Statistics() LedgerStats
	// SaveRunSummary сохраняет сводку прогона в скользящий журнал.
	SaveRunSummary(run RunSummary) error
	// RecentRuns возвращает последние сводки, новые первыми.
	RecentRuns(limit int) ([]RunSummary, error)
}

// ProfileDiscovery получает профили Instagram через Business Discovery.
type ProfileDiscovery interface {
	// FetchProfile возвращает (profile, true, nil) для найденного профиля;
	// отсутствующий или приватный профиль — (zero, false, nil), не ошибка.
	FetchProfile(ctx context.Context, username, sourceTag string) (Profile, bool, error)
	// ExpandHashtag возвращает username, упомянутые в свежих публикациях хэштега.
	ExpandHashtag(ctx context.Context, hashtag string, limit int) ([]string, error)
}

// VideoSearch ищет авторов по ключевому слову через прокси видеоплощадок.
type VideoSearch interface {
	SearchTikTok(ctx context.Context, keyword string, limit int) ([]Profile, error)
	SearchYouTube(ctx context.Context, keyword string, limit int) ([]Profile, error)
}

// Collector собирает дедуплицированный, квалифицированный список кандидатов.
type Collector interface {
	// Collect не прерывается на сбое одного источника: ошибки накапливаются
	// и возвращаются вместе с собранными профилями.
	Collect(ctx context.Context, sources []Source, maxPerSource int) ([]Profile, []string)
}

// Screener превращает ожидающие профили в вердикты, останавливаясь при
// достижении maxApproved одобрений.
type Screener interface {
	Screen(ctx context.Context, pending []Profile, maxApproved int) (approved, rejected []ScreeningVerdict)
}

// RunQueue — очередь задач на внеплановые прогоны.
type RunQueue interface {
	Enqueue(ctx context.Context, job RunJob) error
	// Receive блокируется до появления задачи. ack(true) подтверждает
	// обработку, ack(false) возвращает задачу в очередь.
	Receive(ctx context.Context) (RunJob, func(ok bool) error, error)
}

// Notifier доставляет сводку прогона во внешний канал.
type Notifier interface {
	NotifyRun(ctx context.Context, run RunSummary) error
}

// RunArchive — долговременный архив сводок прогонов для API истории.
type RunArchive interface {
	SaveRun(ctx context.Context, run RunSummary) error
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
