package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

type ExportStore interface {
	GetProtocol(ctx context.Context, id string) (*Protocol, error)
	ListLogsByProtocol(ctx context.Context, protocolID string) ([]*questionnaire.DailyLog, error)
}

type ExportParams struct {
	AdminID    string
	ProtocolID string
	Format     string
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	store ExportStore
}

func NewExportService(store ExportStore) *ExportService {
	return &ExportService{store: store}
}

func (s *ExportService) ExportCSV(ctx context.Context, params ExportParams) (*ExportResult, error) {
	if params.ProtocolID == "" {
		return nil, NewInvalidError("protocol id required")
	}
	format := params.Format
	if format == "" {
		format = "long"
	}
	if format != "long" && format != "wide" {
		return nil, NewInvalidError("unsupported format")
	}
	p, err := s.store.GetProtocol(ctx, params.ProtocolID)
	if errors.Is(err, questionnaire.ErrNotFound) {
		return nil, NewNotFoundError("protocol not found")
	}
	if err != nil {
		return nil, err
	}
	if p.CreatedBy != params.AdminID {
		return nil, NewForbiddenError("forbidden")
	}
	logs, err := s.store.ListLogsByProtocol(ctx, params.ProtocolID)
	if err != nil {
		return nil, err
	}

	var b []byte
	if format == "long" {
		b, err = ExportLongCSV(buildLongRows(logs))
	} else {
		b, err = ExportWideCSV(logs)
	}
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("%s-%s.csv", p.ShareLink, format),
		ContentType: "text/csv; charset=utf-8",
		Data:        b,
	}, nil
}

func buildLongRows(logs []*questionnaire.DailyLog) []LongRow {
	sorted := make([]*questionnaire.DailyLog, len(logs))
	copy(sorted, logs)
	sortLogs(sorted)
	out := make([]LongRow, 0, len(sorted)*len(questionnaire.CoreThemes))
	for _, l := range sorted {
		submitted := l.SubmittedAt.UTC().Format(time.RFC3339)
		for _, a := range l.Answers {
			theme := a.Theme
			if theme == "" {
				theme = questionnaire.InferTheme(a.Question)
			}
			out = append(out, LongRow{
				UserID:      l.UserID,
				TestDay:     l.TestDay,
				QuestionID:  a.QuestionID,
				Theme:       string(theme),
				Question:    a.Question,
				Score:       a.Score,
				SubmittedAt: submitted,
			})
		}
	}
	return out
}
