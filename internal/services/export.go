package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"time"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

type LongRow struct {
	UserID      string
	TestDay     int
	QuestionID  string
	Theme       string
	Question    string
	Score       int
	SubmittedAt string // RFC3339
}

// ExportLongCSV renders one row per answered question.
func ExportLongCSV(rows []LongRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"user_id", "test_day", "question_id", "theme", "question", "score", "submitted_at"})
	for _, r := range rows {
		rec := []string{
			r.UserID,
			strconv.Itoa(r.TestDay),
			r.QuestionID,
			r.Theme,
			r.Question,
			strconv.Itoa(r.Score),
			r.SubmittedAt,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportWideCSV renders one row per submitted day with a column per dimension.
// Rows are ordered by user then day.
func ExportWideCSV(logs []*questionnaire.DailyLog) ([]byte, error) {
	sorted := make([]*questionnaire.DailyLog, len(logs))
	copy(sorted, logs)
	sortLogs(sorted)

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{"user_id", "test_day"}
	for _, t := range questionnaire.CoreThemes {
		header = append(header, string(t))
	}
	header = append(header, "average", "material_state", "logic_branch", "lifecycle_phase", "remark", "submitted_at")
	_ = w.Write(header)
	for _, l := range sorted {
		row := make([]string, 0, len(header))
		row = append(row, l.UserID, strconv.Itoa(l.TestDay))
		for _, t := range questionnaire.CoreThemes {
			v, _ := l.Scores.Get(t)
			row = append(row, strconv.Itoa(v))
		}
		row = append(row,
			strconv.FormatFloat(mean(l.Scores.Values()), 'f', 2, 64),
			string(l.MaterialState),
			string(l.LogicBranch),
			string(l.LifecyclePhase),
			l.Remark,
			l.SubmittedAt.UTC().Format(time.RFC3339),
		)
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func sortLogs(logs []*questionnaire.DailyLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].UserID == logs[j].UserID {
			return logs[i].TestDay < logs[j].TestDay
		}
		return logs[i].UserID < logs[j].UserID
	})
}
