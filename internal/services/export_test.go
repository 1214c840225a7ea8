package services

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

func readCSV(b []byte) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(string(b)))
	return r.ReadAll()
}

func TestExportLongCSV(t *testing.T) {
	rows := []LongRow{
		{UserID: "U1", TestDay: 1, QuestionID: "D1-odor", Theme: "odor", Question: "除臭效果持续稳定的程度", Score: 4, SubmittedAt: "2024-01-01T00:00:00Z"},
		{UserID: "U1", TestDay: 1, QuestionID: "D1-dust", Theme: "dust", Question: "倒砂时粉尘明显的程度", Score: 2, SubmittedAt: "2024-01-01T00:00:00Z"},
	}
	b, err := ExportLongCSV(rows)
	if err != nil {
		t.Fatalf("export long: %v", err)
	}
	recs, err := readCSV(b)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(recs) != 1+len(rows) {
		t.Fatalf("want %d rows, got %d", 1+len(rows), len(recs))
	}
	if got := strings.Join(recs[0], ","); got != "user_id,test_day,question_id,theme,question,score,submitted_at" {
		t.Fatalf("bad header: %s", got)
	}
	if recs[2][5] != "2" || recs[2][4] != "倒砂时粉尘明显的程度" {
		t.Fatalf("unexpected row: %v", recs[2])
	}
}

func TestExportWideCSVOrdersByUserAndDay(t *testing.T) {
	at := time.Date(2025, 9, 18, 8, 0, 0, 0, time.UTC)
	logs := []*questionnaire.DailyLog{
		{UserID: "U2", TestDay: 1, Scores: questionnaire.StructuredScores{Odor: 1, Dust: 1, Clumping: 1, Comfort: 1, Cleanup: 1}, SubmittedAt: at},
		{UserID: "U1", TestDay: 2, Scores: questionnaire.StructuredScores{Odor: 5, Dust: 5, Clumping: 5, Comfort: 5, Cleanup: 5}, SubmittedAt: at},
		{UserID: "U1", TestDay: 1, Scores: questionnaire.StructuredScores{Odor: 4, Dust: 2, Clumping: 3, Comfort: 5, Cleanup: 1}, Remark: "ok, fine", SubmittedAt: at,
			MaterialState: questionnaire.StateNewBag, LogicBranch: questionnaire.BranchNormal, LifecyclePhase: questionnaire.PhaseEarly},
	}
	b, err := ExportWideCSV(logs)
	if err != nil {
		t.Fatalf("export wide: %v", err)
	}
	recs, err := readCSV(b)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("rows mismatch: %d", len(recs))
	}
	want := "user_id,test_day,odor,dust,clumping,cleanup,comfort,average,material_state,logic_branch,lifecycle_phase,remark,submitted_at"
	if strings.Join(recs[0], ",") != want {
		t.Fatalf("header mismatch: %v", recs[0])
	}
	first := recs[1]
	if first[0] != "U1" || first[1] != "1" || first[2] != "4" || first[5] != "1" || first[6] != "5" || first[7] != "3.00" {
		t.Fatalf("unexpected first row: %v", first)
	}
	if first[8] != "new_bag" || first[11] != "ok, fine" || first[12] != "2025-09-18T08:00:00Z" {
		t.Fatalf("unexpected first row tail: %v", first)
	}
	if recs[2][0] != "U1" || recs[2][1] != "2" || recs[3][0] != "U2" {
		t.Fatalf("unexpected order: %v", recs[1:])
	}
	if logs[0].UserID != "U2" {
		t.Fatalf("input slice was reordered")
	}
}
