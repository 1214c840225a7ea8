package questionnaire

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBank(t *testing.T) *TemplateBank {
	t.Helper()
	b, err := DefaultBank(NewValidator())
	require.NoError(t, err)
	return b
}

func themesOf(qs []Question) []Theme {
	out := make([]Theme, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Theme)
	}
	return out
}

func TestBaselineCoversCoreThemes(t *testing.T) {
	b := mustBank(t)
	qs := b.Baseline()
	require.Len(t, qs, 5)
	assert.ElementsMatch(t, CoreThemes, themesOf(qs))
	for _, q := range qs {
		assert.True(t, strings.HasPrefix(q.ID, "D1-"), q.ID)
		assert.Equal(t, DefaultOptions, q.Options)
		assert.Equal(t, SourceFallback, q.Source)
		assert.Contains(t, q.FollowupRule, "基线")
	}
	assert.Equal(t, 1, b.Version())
}

func TestFollowUpBandsByScore(t *testing.T) {
	b := mustBank(t)
	scores := StructuredScores{Odor: 1, Dust: 4, Clumping: 3, Comfort: 5, Cleanup: 2}

	qs, err := b.FollowUp(scores, 5)
	require.NoError(t, err)
	require.Len(t, qs, 5)

	byTheme := map[Theme]Question{}
	for _, q := range qs {
		byTheme[q.Theme] = q
	}
	want := map[Theme]string{
		ThemeOdor:     "follow-odor-low-",
		ThemeCleanup:  "follow-cleanup-low-",
		ThemeDust:     "follow-dust-high-",
		ThemeComfort:  "follow-comfort-high-",
		ThemeClumping: "follow-clumping-medium-",
	}
	for theme, prefix := range want {
		q, ok := byTheme[theme]
		require.True(t, ok, "missing %s", theme)
		assert.True(t, strings.HasPrefix(q.ID, prefix), "%s id %s", theme, q.ID)
		assert.True(t, strings.HasSuffix(q.ID, "-D5"), q.ID)
	}
}

func TestFollowUpRotatesByDay(t *testing.T) {
	b := mustBank(t)
	scores := NeutralScores()

	day2, err := b.FollowUp(scores, 2)
	require.NoError(t, err)
	day3, err := b.FollowUp(scores, 3)
	require.NoError(t, err)
	day4, err := b.FollowUp(scores, 4)
	require.NoError(t, err)

	for i := range day2 {
		assert.NotEqual(t, day2[i].Title, day3[i].Title, "consecutive days repeat %s", day2[i].Theme)
		assert.Equal(t, day2[i].Title, day4[i].Title)
	}
	assert.Equal(t, "follow-odor-medium-1-D2", day2[0].ID)
	assert.Equal(t, "follow-odor-medium-2-D3", day3[0].ID)
}

func TestFollowUpRejectsDayOne(t *testing.T) {
	b := mustBank(t)
	_, err := b.FollowUp(NeutralScores(), 1)
	assert.Error(t, err)
}

func TestEveryTemplatePassesValidation(t *testing.T) {
	b := mustBank(t)
	v := NewValidator()
	all := b.All()
	assert.Len(t, all, 16)
	for key, qs := range all {
		for _, q := range qs {
			n := utf8.RuneCountInString(q.Title)
			assert.True(t, n >= 12 && n <= 28, "%s %s length %d", key, q.ID, n)
			res := v.ValidateSingle(q.Title)
			assert.True(t, res.Valid, "%s %s: %v", key, q.ID, res.Errors)
		}
	}
}

func TestParseBankRejectsMisconfiguredCatalogue(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "baseline: ["},
		{"missing baseline theme", `
baseline:
  - {id: D1-odor, theme: odor, title: 排泄后异味快速压下的明显程度}
`},
		{"invalid template text", strings.Replace(string(defaultCatalog), "排泄后异味快速压下的明显程度", "你觉得这个怎么样", 1)},
		{"empty pool", strings.Replace(string(defaultCatalog), `    high:
      - id: follow-odor-high-1
        title: 连续使用后除臭表现维持高水平的程度
      - id: follow-odor-high-2
        title: 满负荷使用时异味控制稳定的程度
`, "", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBank([]byte(tt.yaml), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBankMisconfigured), err.Error())
		})
	}
}

func TestLoadBankFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	data := strings.Replace(string(defaultCatalog), "version: 1", "version: 2", 1)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	b, err := LoadBank(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Version())

	_, err = LoadBank(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
