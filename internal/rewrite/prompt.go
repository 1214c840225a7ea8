package rewrite

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

// ErrInvalidResponse marks model output that could not be read as a question set.
var ErrInvalidResponse = errors.New("invalid rewrite response")

func systemPrompt() string {
	return `你是一个量表适配型问题改写引擎。
对输入的模板问题进行改写，改写后必须：
1. 保持语义不变（评价对象和评价标准不变）
2. 适配 1-5 评分量表（很差/差/可以接受/好/很好）
3. 是可评分的陈述，不含语气词、闲聊词或泛问
4. 不出现：体验/感觉/感受/整体/如何/怎么样/到底/啊/呢/你觉得/是不是很
5. 一题只问一个点，且/并且/同时/或者 最多出现 1 次
6. 字数 12-28（中文和数字计入）
7. 含可评分锚点词之一：是否/频率/一致性/程度/明显/持续/易于/不易/更少/更快/更稳
只输出 JSON：{"questions":[{"id":"原ID","theme":"原theme","title":"改写后的标题"}]}`
}

func userPrompt(req questionnaire.RewriteRequest) string {
	var b strings.Builder
	if req.ProductName != "" {
		fmt.Fprintf(&b, "产品：%s\n", req.ProductName)
	}
	fmt.Fprintf(&b, "测试第 %d 天", req.Day)
	if req.PeriodDays > 0 {
		fmt.Fprintf(&b, "（共 %d 天）", req.PeriodDays)
	}
	fmt.Fprintf(&b, "，阶段 %s，物料状态 %s\n", req.State.LifecyclePhase, req.State.MaterialState)
	if len(req.HistoryTitles) > 0 {
		b.WriteString("避免与以下历史题目重复：\n")
		for _, t := range req.HistoryTitles {
			b.WriteString("- " + t + "\n")
		}
	}
	b.WriteString("请改写以下模板问题（保持语义，适配 1-5 量表）：\n")
	for _, q := range req.Questions {
		fmt.Fprintf(&b, "ID: %s, Theme: %s, Original: %q\n", q.ID, q.Theme, q.Title)
	}
	b.WriteString("仅改写 title 字段，id/theme 保持不变。")
	return b.String()
}

// cleanJSON strips markdown fences and anything outside the outermost object.
func cleanJSON(text string) string {
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	first := strings.Index(cleaned, "{")
	last := strings.LastIndex(cleaned, "}")
	if first >= 0 && last > first {
		cleaned = cleaned[first : last+1]
	}
	return strings.TrimSpace(cleaned)
}

// parseQuestions merges rewritten titles into the templates. Items are matched
// by id when every id is known, otherwise by position.
func parseQuestions(content string, templates []questionnaire.Question) ([]questionnaire.Question, error) {
	var payload struct {
		Questions []struct {
			ID    string `json:"id"`
			Theme string `json:"theme"`
			Title string `json:"title"`
			Text  string `json:"text"`
		} `json:"questions"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(content)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(payload.Questions) != len(templates) {
		return nil, fmt.Errorf("%w: got %d, want %d", questionnaire.ErrRewriteShape, len(payload.Questions), len(templates))
	}

	index := make(map[string]int, len(templates))
	for i, t := range templates {
		index[t.ID] = i
	}
	byID := true
	seen := make(map[string]bool, len(payload.Questions))
	for _, q := range payload.Questions {
		if _, ok := index[q.ID]; !ok || seen[q.ID] {
			byID = false
			break
		}
		seen[q.ID] = true
	}

	out := make([]questionnaire.Question, len(templates))
	copy(out, templates)
	for i, q := range payload.Questions {
		title := strings.TrimSpace(q.Title)
		if title == "" {
			title = strings.TrimSpace(q.Text)
		}
		pos := i
		if byID {
			pos = index[q.ID]
		}
		if title != "" {
			out[pos].Title = title
		}
	}
	return out, nil
}
