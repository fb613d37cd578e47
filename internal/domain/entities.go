package domain

import (
	"strings"
	"time"
)

// Platform обозначает поддерживаемую социальную сеть.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
)

// ProfileKey строит единый ключ идентичности `platform:username` в нижнем регистре.
// Этот ключ — единственная единица дедупликации во всей системе.
func ProfileKey(platform Platform, username string) string {
	return string(platform) + ":" + strings.ToLower(strings.TrimSpace(username))
}

// Profile описывает кандидата, собранного на этапе прослушивания площадок.
// EngagementRate равный нулю означает «не измерено», а не «ноль» — это
// различие сохраняется до этапа квалификации.
type Profile struct {
	Username          string    `json:"username"`
	Platform          Platform  `json:"platform"`
	Name              string    `json:"name"`
	Followers         int       `json:"followers"`
	EngagementRate    float64   `json:"engagement_rate"`
	AvgLikes          int       `json:"avg_likes"`
	AvgComments       int       `json:"avg_comments"`
	AvgViews          int       `json:"avg_views"`
	Verified          bool      `json:"verified"`
	Bio               string    `json:"bio"`
	URL               string    `json:"url"`
	Location          string    `json:"location,omitempty"`
	SourceTag         string    `json:"source_tag"`
	NeedsVerification bool      `json:"needs_verification,omitempty"`
	CollectedAt       time.Time `json:"collected_at"`
}

// Key возвращает ключ идентичности профиля.
func (p Profile) Key() string {
	return ProfileKey(p.Platform, p.Username)
}

// ScreeningVerdict — результат LLM-триажа одного профиля.
type ScreeningVerdict struct {
	Username          string   `json:"username"`
	Platform          Platform `json:"platform"`
	AgeOK             bool     `json:"age_ok"`
	TargetBodyType    bool     `json:"target_body_type"`
	TargetClass       bool     `json:"target_class"`
	TargetNationality bool     `json:"target_nationality"`
	IsRealPerson      bool     `json:"is_real_person"`
	Approved          bool     `json:"approved"`
	Reason            string   `json:"reason"`
	Confidence        int      `json:"confidence"`
}

// CriteriaMet сообщает, выполнены ли все пять критериев отбора.
func (v ScreeningVerdict) CriteriaMet() bool {
	return v.AgeOK && v.TargetBodyType && v.TargetClass && v.TargetNationality && v.IsRealPerson
}

/// Enforce приводит флаг Approved к жёсткому AND по критериям: один ложный
// критерий отклоняет профиль независимо от уверенности модели.
func (v ScreeningVerdict) Enforce() ScreeningVerdict {
	if !v.CriteriaMet() {
		v.Approved = false
	}
	return v
}

// HistoryEntry — запись реестра о завершённом решении по ключу идентичности.
// Создаётся ровно один раз; повторная запись по тому же ключу игнорируется.
type HistoryEntry struct {
	Username    string           `json:"username"`
	Platform    Platform         `json:"platform"`
	Name        string           `json:"name"`
	ProcessedAt time.Time        `json:"processed_at"`
	Approved    bool             `json:"approved"`
	Verdict     ScreeningVerdict `json:"screening_result"`
	Snapshot    Profile          `json:"profile_data"`
}

// ApprovedProfile связывает профиль с одобрившим его вердиктом.
type ApprovedProfile struct {
	Profile Profile          `json:"profile"`
	Verdict ScreeningVerdict `json:"verdict"`
}

// PlatformStats — срез статистики реестра по одной площадке.
type PlatformStats struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
}

// LedgerStats — агрегированная статистика реестра обработанных профилей.
type LedgerStats struct {
	TotalProcessed int                        `json:"total_processed"`
	TotalApproved  int                        `json:"total_approved"`
	TotalRejected  int                        `json:"total_rejected"`
	ApprovalRate   float64                    `json:"approval_rate"`
	ByPlatform     map[Platform]PlatformStats `json:"by_platform"`
}

// SourceKind задаёт способ обнаружения профилей для источника.
type SourceKind string

const (
	// SourceSeed — фиксированный список username площадки.
	SourceSeed SourceKind = "seed"
	// SourceHashtag — разворачивание хэштега через API площадки.
	SourceHashtag SourceKind = "hashtag"
	// SourceKeyword — поиск по ключевому слову.
	SourceKeyword SourceKind = "keyword"
)

// Source описывает один источник кандидатов для прогона сбора.
type Source struct {
	Kind     SourceKind `json:"kind" yaml:"kind"`
	Platform Platform   `json:"platform" yaml:"platform"`
	Value    string     `json:"value" yaml:"value"`
}

// Tag возвращает метку источника для SourceTag и логов.
func (s Source) Tag() string {
	if s.Kind == SourceSeed {
		return "seed_list"
	}
	return s.Value
}

// RunMode — режим запуска конвейера.
type RunMode string

const (
	RunModeFull    RunMode = "full"
	RunModeCollect RunMode = "collect"
	RunModeScreen  RunMode = "screen"
)

// RunStatus — итоговый статус прогона.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "completed_with_errors"
	RunStatusQuotaMet  RunStatus = "quota_already_met"
	RunStatusNoPending RunStatus = "no_pending_profiles"
	RunStatusNoSources RunStatus = "no_sources_reachable"
)

// RunSummary — сводка одного прогона конвейера. Мутации реестра — источник
// истины; сводка — телеметрия, её потеря не откатывает прогон.
type RunSummary struct {
	ID            string    `json:"id"`
	Mode          RunMode   `json:"mode"`
	Status        RunStatus `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Collected     int       `json:"collected"`
	NewCandidates int       `json:"new_candidates"`
	Screened      int       `json:"screened"`
	Approved      int       `json:"approved"`
	Rejected      int       `json:"rejected"`
	TodayTotal    int       `json:"today_total"`
	Errors        []string  `json:"errors,omitempty"`
}

// Elapsed возвращает длительность прогона.
func (r RunSummary) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunJob — задача на внеплановый прогон, публикуемая в очередь.
type RunJob struct {
	ID          string    `json:"id"`
	Mode        RunMode   `json:"mode"`
	Target      int       `json:"target,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
