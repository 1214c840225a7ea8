package questionnaire

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultCatalog []byte

// ErrBankMisconfigured marks a template catalogue that cannot produce a valid day.
var ErrBankMisconfigured = errors.New("template bank misconfigured")

// Band buckets a previous-day score.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

var bands = []Band{BandLow, BandMedium, BandHigh}

func BandFor(score int) Band {
	switch {
	case score <= 2:
		return BandLow
	case score >= 4:
		return BandHigh
	default:
		return BandMedium
	}
}

// Template is one hand-authored question in the catalogue.
type Template struct {
	ID    string `yaml:"id" json:"id"`
	Theme Theme  `yaml:"theme" json:"theme"`
	Title string `yaml:"title" json:"title"`
}

type catalog struct {
	Version   int                            `yaml:"version"`
	Options   []string                       `yaml:"options"`
	Baseline  []Template                     `yaml:"baseline"`
	Followups map[string]map[Band][]Template `yaml:"followups"`
}

// TemplateBank serves baseline and follow-up questions from a validated catalogue.
type TemplateBank struct {
	version   int
	options   []string
	baseline  []Template
	followups map[Theme]map[Band][]Template
}

// DefaultBank loads the embedded catalogue.
func DefaultBank(v *Validator) (*TemplateBank, error) {
	return ParseBank(defaultCatalog, v)
}

// LoadBank reads a catalogue from path, or the embedded one when path is empty.
func LoadBank(path string, v *Validator) (*TemplateBank, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultBank(v)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template catalogue: %w", err)
	}
	return ParseBank(data, v)
}

// ParseBank decodes and checks a catalogue. Every template must pass v.
func ParseBank(data []byte, v *Validator) (*TemplateBank, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrBankMisconfigured, err)
	}
	if v == nil {
		v = NewValidator()
	}
	b := &TemplateBank{
		version:   c.Version,
		options:   c.Options,
		followups: map[Theme]map[Band][]Template{},
	}
	if len(b.options) != len(DefaultOptions) {
		b.options = append([]string(nil), DefaultOptions...)
	}

	seen := map[Theme]bool{}
	for _, t := range c.Baseline {
		theme, ok := ParseTheme(string(t.Theme))
		if !ok {
			return nil, fmt.Errorf("%w: baseline %s has unknown theme %q", ErrBankMisconfigured, t.ID, t.Theme)
		}
		if seen[theme] {
			return nil, fmt.Errorf("%w: baseline theme %s repeated", ErrBankMisconfigured, theme)
		}
		seen[theme] = true
		t.Theme = theme
		if err := checkTemplate(v, t); err != nil {
			return nil, err
		}
		b.baseline = append(b.baseline, t)
	}
	for _, theme := range CoreThemes {
		if !seen[theme] {
			return nil, fmt.Errorf("%w: baseline missing theme %s", ErrBankMisconfigured, theme)
		}
	}
	if len(b.baseline) != len(CoreThemes) {
		return nil, fmt.Errorf("%w: baseline has %d templates, want %d", ErrBankMisconfigured, len(b.baseline), len(CoreThemes))
	}

	for name, pools := range c.Followups {
		theme, ok := ParseTheme(name)
		if !ok {
			return nil, fmt.Errorf("%w: follow-up theme %q unknown", ErrBankMisconfigured, name)
		}
		byBand := map[Band][]Template{}
		for band, pool := range pools {
			for _, t := range pool {
				t.Theme = theme
				if err := checkTemplate(v, t); err != nil {
					return nil, err
				}
				byBand[band] = append(byBand[band], t)
			}
		}
		b.followups[theme] = byBand
	}
	for _, theme := range CoreThemes {
		for _, band := range bands {
			if len(b.followups[theme][band]) == 0 {
				return nil, fmt.Errorf("%w: no %s follow-up templates for %s", ErrBankMisconfigured, band, theme)
			}
		}
	}
	return b, nil
}

func checkTemplate(v *Validator, t Template) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: template %q has no id", ErrBankMisconfigured, t.Title)
	}
	if r := v.ValidateSingle(t.Title); !r.Valid {
		return fmt.Errorf("%w: template %s fails validation: %s", ErrBankMisconfigured, t.ID, strings.Join(r.Errors, "; "))
	}
	return nil
}

func (b *TemplateBank) Version() int { return b.version }

// Baseline returns the day-1 questions, one per core theme.
func (b *TemplateBank) Baseline() []Question {
	out := make([]Question, 0, len(b.baseline))
	for _, t := range b.baseline {
		out = append(out, b.question(t, t.ID, "建立"+t.Theme.Label()+"基线"))
	}
	return out
}

// FollowUp picks one template per core theme from the band of its previous
// score, rotating through the pool by day.
func (b *TemplateBank) FollowUp(scores StructuredScores, day int) ([]Question, error) {
	if day < 2 {
		return nil, fmt.Errorf("follow-up questions start on day 2, got %d", day)
	}
	out := make([]Question, 0, len(CoreThemes))
	for _, theme := range CoreThemes {
		score, _ := scores.Get(theme)
		band := BandFor(score)
		pool := b.followups[theme][band]
		if len(pool) == 0 {
			return nil, fmt.Errorf("%w: no %s follow-up templates for %s", ErrBankMisconfigured, band, theme)
		}
		t := pool[(day-2)%len(pool)]
		out = append(out, b.question(t, fmt.Sprintf("%s-D%d", t.ID, day), followupRule(theme, band)))
	}
	return out, nil
}

// All lists the catalogue keyed by "day1" and "<theme>-<band>".
func (b *TemplateBank) All() map[string][]Question {
	out := map[string][]Question{"day1": b.Baseline()}
	for theme, pools := range b.followups {
		for band, pool := range pools {
			qs := make([]Question, 0, len(pool))
			for _, t := range pool {
				qs = append(qs, b.question(t, t.ID, followupRule(theme, band)))
			}
			out[fmt.Sprintf("%s-%s", theme, band)] = qs
		}
	}
	return out
}

func (b *TemplateBank) question(t Template, id, rule string) Question {
	return Question{
		ID:           id,
		Theme:        t.Theme,
		Title:        t.Title,
		Options:      append([]string(nil), b.options...),
		FollowupRule: rule,
		Source:       SourceFallback,
	}
}

func followupRule(theme Theme, band Band) string {
	switch band {
	case BandLow:
		return "前一天" + theme.Label() + "评分偏低，定位问题场景"
	case BandHigh:
		return "前一天" + theme.Label() + "评分较高，确认持续表现"
	default:
		return "前一天" + theme.Label() + "评分中等，追踪稳定性"
	}
}
