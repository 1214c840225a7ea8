package questionnaire

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Rules is the word lists and limits the validator applies.
type Rules struct {
	MinLength       int
	MaxLength       int
	Forbidden       []string
	Connectors      []string
	MaxConnectors   int
	Anchors         []string
	Objects         []string
	Criteria        []string
	OpenEnded       []*regexp.Regexp
	SimilarityLimit float64
}

func DefaultRules() Rules {
	return Rules{
		MinLength: 12,
		MaxLength: 28,
		Forbidden: []string{
			"体验", "感觉", "感受", "整体", "如何", "怎么样", "到底", "啊", "呢",
			"是不是很", "是不是真的", "你觉得", "您觉得", "您觉得呢",
		},
		Connectors:    []string{"且", "并且", "同时", "或者", "以及", "加之"},
		MaxConnectors: 1,
		Anchors: []string{
			"是否", "频率", "一致性", "程度", "明显", "持续", "易于",
			"不易", "更少", "更快", "更稳", "易用", "稳定", "波动",
		},
		Objects:  []string{"异味", "扬尘", "灰尘", "结团", "清理", "使用", "猫咪", "除臭"},
		Criteria: []string{"快速", "紧实", "易", "明显", "持续", "稳定", "一致", "自然"},
		OpenEnded: []*regexp.Regexp{
			regexp.MustCompile(`怎么样$`),
			regexp.MustCompile(`如何$`),
			regexp.MustCompile(`觉得.*怎么样`),
			regexp.MustCompile(`感觉如何`),
			regexp.MustCompile(`体验`),
			regexp.MustCompile(`感受`),
		},
		SimilarityLimit: 0.6,
	}
}

const (
	penaltyLength     = 30
	penaltyForbidden  = 20
	penaltyAnchor     = 40
	penaltyConnectors = 20
	penaltyStructure  = 10
	penaltyOpenEnded  = 30
)

// Result is the outcome of checking one title. Score is advisory; only Errors decide validity.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Score    int      `json:"score"`
}

// BatchResult is the outcome of checking one day's question set.
type BatchResult struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
	Questions []Result `json:"questions,omitempty"`
}

type Validator struct {
	rules Rules
	sim   SimilarityChecker
}

type ValidatorOption func(*Validator)

// WithSimilarity replaces the pairwise similarity measure used in batch checks.
func WithSimilarity(s SimilarityChecker) ValidatorOption {
	return func(v *Validator) {
		if s != nil {
			v.sim = s
		}
	}
}

func WithRules(r Rules) ValidatorOption {
	return func(v *Validator) { v.rules = r }
}

func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{rules: DefaultRules(), sim: JaccardSimilarity{}}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) ValidateSingle(title string) Result {
	res := Result{Errors: []string{}, Warnings: []string{}}
	score := 100

	n := utf8.RuneCountInString(title)
	switch {
	case n < v.rules.MinLength:
		res.Errors = append(res.Errors, fmt.Sprintf("问题过短（%d字），要求 %d-%d 字", n, v.rules.MinLength, v.rules.MaxLength))
		score -= penaltyLength
	case n > v.rules.MaxLength:
		res.Errors = append(res.Errors, fmt.Sprintf("问题过长（%d字），要求 %d-%d 字", n, v.rules.MinLength, v.rules.MaxLength))
		score -= penaltyLength
	}

	if found := containsAny(title, v.rules.Forbidden); len(found) > 0 {
		res.Errors = append(res.Errors, "包含禁用词："+strings.Join(found, ", "))
		score -= penaltyForbidden * len(found)
	}

	anchored := len(containsAny(title, v.rules.Anchors)) > 0
	if !anchored {
		res.Errors = append(res.Errors, "缺少可评分锚点词（是否/程度/频率/一致性/易用/明显/持续等）")
		score -= penaltyAnchor
	}

	if c := countOccurrences(title, v.rules.Connectors); c > v.rules.MaxConnectors {
		res.Errors = append(res.Errors, fmt.Sprintf("包含过多的逻辑连接词（%d个），禁止一句问两个以上点", c))
		score -= penaltyConnectors
	}

	if !anchored || (len(containsAny(title, v.rules.Objects)) == 0 && len(containsAny(title, v.rules.Criteria)) == 0) {
		res.Warnings = append(res.Warnings, "可能缺少明确的评价对象或评价标准")
		score -= penaltyStructure
	}

	for _, re := range v.rules.OpenEnded {
		if re.MatchString(title) {
			res.Errors = append(res.Errors, "问题过于开放，不适用于 1-5 评分")
			score -= penaltyOpenEnded
			break
		}
	}

	if score < 0 {
		score = 0
	}
	res.Score = score
	res.Valid = len(res.Errors) == 0
	return res
}

func (v *Validator) ValidateBatch(questions []Question) BatchResult {
	out := BatchResult{Errors: []string{}, Warnings: []string{}}
	for _, q := range questions {
		r := v.ValidateSingle(q.Title)
		out.Questions = append(out.Questions, r)
		if !r.Valid {
			out.Errors = append(out.Errors, fmt.Sprintf("问题 %s: %s", q.ID, strings.Join(r.Errors, ", ")))
		}
		if len(r.Warnings) > 0 {
			out.Warnings = append(out.Warnings, fmt.Sprintf("问题 %s: %s", q.ID, strings.Join(r.Warnings, ", ")))
		}
	}

	for i := 0; i < len(questions); i++ {
		for j := i + 1; j < len(questions); j++ {
			s := v.sim.Similarity(questions[i].Title, questions[j].Title)
			if s > v.rules.SimilarityLimit {
				out.Errors = append(out.Errors, fmt.Sprintf("问题 %s 与 %s 相似度过高（%.1f%%）", questions[i].ID, questions[j].ID, s*100))
			}
		}
	}

	counts := map[Theme]int{}
	var order []Theme
	for _, q := range questions {
		if counts[q.Theme] == 0 {
			order = append(order, q.Theme)
		}
		counts[q.Theme]++
	}
	for _, t := range order {
		if counts[t] > 1 {
			out.Errors = append(out.Errors, fmt.Sprintf("主题 %s 重复 %d 次", t, counts[t]))
		}
	}

	out.Valid = len(out.Errors) == 0
	return out
}

func containsAny(s string, words []string) []string {
	var found []string
	for _, w := range words {
		if strings.Contains(s, w) {
			found = append(found, w)
		}
	}
	return found
}

// countOccurrences sums the occurrences of every word independently, so an
// overlapping pair such as 并且/且 counts twice.
func countOccurrences(s string, words []string) int {
	n := 0
	for _, w := range words {
		n += strings.Count(s, w)
	}
	return n
}
