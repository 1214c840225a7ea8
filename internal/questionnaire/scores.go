package questionnaire

import "strings"

var themeKeywords = []struct {
	theme    Theme
	keywords []string
}{
	{ThemeOdor, []string{"除臭", "味道", "异味"}},
	{ThemeDust, []string{"扬尘", "粉尘", "灰尘"}},
	{ThemeClumping, []string{"结团", "团"}},
	{ThemeComfort, []string{"猫咪", "喜欢"}},
	{ThemeCleanup, []string{"清理", "铲", "粘底"}},
}

// InferTheme guesses the core theme of a free-form question title.
// Titles without a recognised keyword count as comfort.
func InferTheme(title string) Theme {
	for _, tk := range themeKeywords {
		for _, kw := range tk.keywords {
			if strings.Contains(title, kw) {
				return tk.theme
			}
		}
	}
	return ThemeComfort
}

// answerTheme resolves the theme of an answer, falling back to keyword inference.
func answerTheme(a Answer) Theme {
	if t, ok := ParseTheme(string(a.Theme)); ok {
		return t
	}
	return InferTheme(a.Question)
}

// PreviousScores returns the scores that drive follow-up selection. Explicit
// structured scores win; otherwise each answer is mapped to its theme and
// dimensions without an answer stay neutral.
func PreviousScores(explicit *StructuredScores, answers []Answer) StructuredScores {
	if explicit != nil && explicit.Validate() == nil {
		return *explicit
	}
	out := NeutralScores()
	for _, a := range answers {
		if a.Score < MinScore || a.Score > MaxScore {
			continue
		}
		out.Set(answerTheme(a), a.Score)
	}
	return out
}

// ScoresFromAnswers derives the stored score vector of a submission whose
// client omitted one. Answers with a core theme fill that dimension; the rest
// fill dimensions by position. Untouched dimensions read as 5.
func ScoresFromAnswers(answers []Answer) StructuredScores {
	positional := []Theme{ThemeOdor, ThemeDust, ThemeClumping, ThemeComfort, ThemeCleanup}
	out := StructuredScores{Odor: MaxScore, Dust: MaxScore, Clumping: MaxScore, Comfort: MaxScore, Cleanup: MaxScore}
	for i, a := range answers {
		if t, ok := ParseTheme(string(a.Theme)); ok && out.Set(t, a.Score) {
			continue
		}
		if i < len(positional) {
			out.Set(positional[i], a.Score)
		}
	}
	return out
}
