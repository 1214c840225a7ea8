package questionnaire

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Theme is the evaluation dimension a question measures.
type Theme string

const (
	ThemeOdor       Theme = "odor"
	ThemeDust       Theme = "dust"
	ThemeClumping   Theme = "clumping"
	ThemeCleanup    Theme = "cleanup"
	ThemeComfort    Theme = "comfort"
	ThemeTracking   Theme = "tracking"
	ThemeAbsorption Theme = "absorption"
	ThemeAppearance Theme = "appearance"
)

// CoreThemes are the five scored dimensions, in generation order.
var CoreThemes = []Theme{ThemeOdor, ThemeDust, ThemeClumping, ThemeCleanup, ThemeComfort}

// AllThemes lists every recognised theme.
var AllThemes = []Theme{
	ThemeOdor, ThemeDust, ThemeClumping, ThemeTracking,
	ThemeCleanup, ThemeAbsorption, ThemeAppearance, ThemeComfort,
}

var legacyThemes = map[string]Theme{
	"odor_control": ThemeOdor,
	"dust_level":   ThemeDust,
	"urine_absorb": ThemeAbsorption,
}

var themeLabels = map[Theme]string{
	ThemeOdor:       "除臭",
	ThemeDust:       "扬尘",
	ThemeClumping:   "结团",
	ThemeCleanup:    "清理",
	ThemeComfort:    "猫咪接受度",
	ThemeTracking:   "带砂",
	ThemeAbsorption: "吸尿",
	ThemeAppearance: "外观",
}

// ParseTheme resolves a theme name, accepting the legacy aliases.
func ParseTheme(s string) (Theme, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if t, ok := legacyThemes[s]; ok {
		return t, true
	}
	for _, t := range AllThemes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Label is the display name used in prompts and follow-up rules.
func (t Theme) Label() string {
	if l, ok := themeLabels[t]; ok {
		return l
	}
	return string(t)
}

type MaterialState string

const (
	StateNewBag     MaterialState = "new_bag"
	StateNormal     MaterialState = "normal"
	StateNearingEnd MaterialState = "nearing_end"
	StateEnded      MaterialState = "ended"
)

func (s MaterialState) rank() int {
	switch s {
	case StateNewBag, "":
		return 0
	case StateNormal:
		return 1
	case StateNearingEnd:
		return 2
	case StateEnded:
		return 3
	}
	return -1
}

// Valid reports whether s is a known material state.
func (s MaterialState) Valid() bool { return s != "" && s.rank() >= 0 }

// Before reports whether s precedes other in the one-way progression.
func (s MaterialState) Before(other MaterialState) bool { return s.rank() < other.rank() }

type LogicBranch string

const (
	BranchNormal        LogicBranch = "normal"
	BranchEndgame       LogicBranch = "endgame"
	BranchRetrospective LogicBranch = "retrospective"
)

type LifecyclePhase string

const (
	PhaseEarly LifecyclePhase = "early"
	PhaseMid   LifecyclePhase = "mid"
	PhaseLate  LifecyclePhase = "late"
)

// Source records whether question text came from the model or the template bank.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
	SourceMixed    Source = "mixed"
)

// DefaultOptions is the fixed five-point answer scale.
var DefaultOptions = []string{"很差", "差", "可以接受", "好", "很好"}

const (
	MinScore = 1
	MaxScore = 5
)

// ErrInvalidScores is wrapped by every score range failure.
var ErrInvalidScores = errors.New("invalid scores")

// ScoreError names the field that is out of range.
type ScoreError struct {
	Field string
	Value int
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("%s must be between %d and %d, got %d", e.Field, MinScore, MaxScore, e.Value)
}

func (e *ScoreError) Unwrap() error { return ErrInvalidScores }

// StructuredScores is the per-dimension score vector of one day.
type StructuredScores struct {
	Odor     int `json:"odor"`
	Dust     int `json:"dust"`
	Clumping int `json:"clumping"`
	Comfort  int `json:"comfort"`
	Cleanup  int `json:"cleanup"`
}

// NeutralScores returns the vector used when a dimension has no signal.
func NeutralScores() StructuredScores {
	return StructuredScores{Odor: 3, Dust: 3, Clumping: 3, Comfort: 3, Cleanup: 3}
}

// Validate checks every field is within the scale.
func (s StructuredScores) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"odor", s.Odor},
		{"dust", s.Dust},
		{"clumping", s.Clumping},
		{"comfort", s.Comfort},
		{"cleanup", s.Cleanup},
	}
	for _, f := range fields {
		if f.value < MinScore || f.value > MaxScore {
			return &ScoreError{Field: f.name, Value: f.value}
		}
	}
	return nil
}

// Get returns the score for one of the core themes.
func (s StructuredScores) Get(t Theme) (int, bool) {
	switch t {
	case ThemeOdor:
		return s.Odor, true
	case ThemeDust:
		return s.Dust, true
	case ThemeClumping:
		return s.Clumping, true
	case ThemeComfort:
		return s.Comfort, true
	case ThemeCleanup:
		return s.Cleanup, true
	}
	return 0, false
}

// Set stores v for a core theme; other themes are ignored.
func (s *StructuredScores) Set(t Theme, v int) bool {
	switch t {
	case ThemeOdor:
		s.Odor = v
	case ThemeDust:
		s.Dust = v
	case ThemeClumping:
		s.Clumping = v
	case ThemeComfort:
		s.Comfort = v
	case ThemeCleanup:
		s.Cleanup = v
	default:
		return false
	}
	return true
}

// Values returns the scores in CoreThemes order.
func (s StructuredScores) Values() []int {
	out := make([]int, 0, len(CoreThemes))
	for _, t := range CoreThemes {
		v, _ := s.Get(t)
		out = append(out, v)
	}
	return out
}

// Question is the canonical question shape stored in snapshots and sent to clients.
type Question struct {
	ID           string   `json:"id"`
	Theme        Theme    `json:"theme"`
	Title        string   `json:"title"`
	Options      []string `json:"options"`
	FollowupRule string   `json:"followupRule,omitempty"`
	Source       Source   `json:"source,omitempty"`
}

// RawQuestion accepts the historical wire shapes of a question.
type RawQuestion struct {
	ID           string   `json:"id"`
	Theme        string   `json:"theme"`
	Title        string   `json:"title"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	FollowupRule string   `json:"followupRule"`
	Source       string   `json:"source"`
}

// NormalizeQuestion converts a legacy or partial question into the canonical form.
func NormalizeQuestion(raw RawQuestion) Question {
	q := Question{
		ID:           raw.ID,
		Title:        strings.TrimSpace(raw.Title),
		FollowupRule: raw.FollowupRule,
		Source:       Source(raw.Source),
	}
	if q.Title == "" {
		q.Title = strings.TrimSpace(raw.Text)
	}
	if t, ok := ParseTheme(raw.Theme); ok {
		q.Theme = t
	} else {
		q.Theme = InferTheme(q.Title)
	}
	if len(raw.Options) == len(DefaultOptions) {
		q.Options = append([]string(nil), raw.Options...)
	} else {
		q.Options = append([]string(nil), DefaultOptions...)
	}
	return q
}

// Answer is one scored response in a daily log.
type Answer struct {
	QuestionID string `json:"questionId"`
	Score      int    `json:"score"`
	Question   string `json:"question"`
	Theme      Theme  `json:"theme,omitempty"`
}

// Progress is the per user and protocol ledger record.
type Progress struct {
	UserID           string         `json:"userId"`
	ProtocolID       string         `json:"protocolId"`
	LastSubmittedDay int            `json:"lastSubmittedDay"`
	CompletedDays    int            `json:"completedDays"`
	MaterialState    MaterialState  `json:"materialState"`
	LogicBranch      LogicBranch    `json:"logicBranch"`
	LifecyclePhase   LifecyclePhase `json:"lifecyclePhase"`
	EndReason        string         `json:"endReason,omitempty"`
	StartedAt        time.Time      `json:"startedAt"`
	LastSubmittedAt  *time.Time     `json:"lastSubmittedAt,omitempty"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// CurrentDay is the day the participant should answer next.
func (p *Progress) CurrentDay() int { return p.LastSubmittedDay + 1 }

// Ended reports whether the ledger is closed.
func (p *Progress) Ended() bool { return p.MaterialState == StateEnded }

// GenerationContext is recorded with each snapshot for audit.
type GenerationContext struct {
	MaterialState   MaterialState     `json:"materialState"`
	LogicBranch     LogicBranch       `json:"logicBranch"`
	LifecyclePhase  LifecyclePhase    `json:"lifecyclePhase"`
	CycleIndex      int               `json:"cycleIndex"`
	DayInCycle      int               `json:"dayInCycle"`
	PreviousScores  *StructuredScores `json:"previousScores,omitempty"`
	PreviousAnswers []Answer          `json:"previousAnswers,omitempty"`
	HistoryTitles   []string          `json:"historyTitles,omitempty"`
	RewriteAttempts int               `json:"rewriteAttempts"`
	RewriteError    string            `json:"rewriteError,omitempty"`
}

// Snapshot is the immutable question set of one user on one day.
type Snapshot struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	ProtocolID  string            `json:"protocolId"`
	TestDay     int               `json:"testDay"`
	Questions   []Question        `json:"questions"`
	Context     GenerationContext `json:"generationContext"`
	Validation  BatchResult       `json:"validation"`
	Source      Source            `json:"source"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// DailyLog is one immutable daily submission.
type DailyLog struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	ProtocolID     string           `json:"protocolId"`
	TestDay        int              `json:"testDay"`
	Answers        []Answer         `json:"answers"`
	Scores         StructuredScores `json:"structuredScores"`
	Remark         string           `json:"remark,omitempty"`
	MaterialState  MaterialState    `json:"materialState"`
	LogicBranch    LogicBranch      `json:"logicBranch"`
	LifecyclePhase LifecyclePhase   `json:"lifecyclePhase"`
	SubmittedAt    time.Time        `json:"submittedAt"`
}
