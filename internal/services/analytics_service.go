package services

import (
	"context"
	"errors"
	"sort"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

type AnalyticsStore interface {
	GetProtocol(ctx context.Context, id string) (*Protocol, error)
	ListLogsByProtocol(ctx context.Context, protocolID string) ([]*questionnaire.DailyLog, error)
}

type AnalyticsService struct {
	store AnalyticsStore
}

type AnalyticsDimension struct {
	Theme     questionnaire.Theme `json:"theme"`
	Label     string              `json:"label"`
	Mean      float64             `json:"mean"`
	Histogram []int               `json:"histogram"`
	Total     int                 `json:"total"`
}

type AnalyticsDay struct {
	TestDay int                             `json:"testDay"`
	Count   int                             `json:"count"`
	Means   map[questionnaire.Theme]float64 `json:"means"`
}

type AnalyticsTimeseries struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type AnalyticsSummary struct {
	ProtocolID   string                `json:"protocolId"`
	Participants int                   `json:"participants"`
	TotalLogs    int                   `json:"totalLogs"`
	Dimensions   []AnalyticsDimension  `json:"dimensions"`
	Days         []AnalyticsDay        `json:"days"`
	Timeseries   []AnalyticsTimeseries `json:"timeseries"`
	Alpha        float64               `json:"alpha"`
	N            int                   `json:"n"`
}

func NewAnalyticsService(store AnalyticsStore) *AnalyticsService {
	return &AnalyticsService{store: store}
}

func (s *AnalyticsService) Summary(ctx context.Context, adminID, protocolID string) (*AnalyticsSummary, error) {
	p, err := s.store.GetProtocol(ctx, protocolID)
	if errors.Is(err, questionnaire.ErrNotFound) {
		return nil, NewNotFoundError("protocol not found")
	}
	if err != nil {
		return nil, err
	}
	if p.CreatedBy != adminID {
		return nil, NewForbiddenError("forbidden")
	}
	logs, err := s.store.ListLogsByProtocol(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	users := map[string]struct{}{}
	for _, l := range logs {
		users[l.UserID] = struct{}{}
	}
	matrix := buildAlphaMatrix(logs)
	return &AnalyticsSummary{
		ProtocolID:   protocolID,
		Participants: len(users),
		TotalLogs:    len(logs),
		Dimensions:   buildDimensions(logs),
		Days:         buildDays(logs),
		Timeseries:   buildTimeseries(logs),
		Alpha:        CronbachAlpha(matrix),
		N:            len(matrix),
	}, nil
}

func buildDimensions(logs []*questionnaire.DailyLog) []AnalyticsDimension {
	dims := make([]AnalyticsDimension, 0, len(questionnaire.CoreThemes))
	for _, theme := range questionnaire.CoreThemes {
		d := AnalyticsDimension{
			Theme:     theme,
			Label:     theme.Label(),
			Histogram: make([]int, questionnaire.MaxScore),
		}
		sum := 0
		for _, l := range logs {
			v, _ := l.Scores.Get(theme)
			if v < questionnaire.MinScore || v > questionnaire.MaxScore {
				continue
			}
			d.Histogram[v-1]++
			d.Total++
			sum += v
		}
		if d.Total > 0 {
			d.Mean = float64(sum) / float64(d.Total)
		}
		dims = append(dims, d)
	}
	return dims
}

func buildDays(logs []*questionnaire.DailyLog) []AnalyticsDay {
	byDay := map[int][]*questionnaire.DailyLog{}
	for _, l := range logs {
		byDay[l.TestDay] = append(byDay[l.TestDay], l)
	}
	days := make([]int, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Ints(days)
	out := make([]AnalyticsDay, 0, len(days))
	for _, d := range days {
		group := byDay[d]
		means := make(map[questionnaire.Theme]float64, len(questionnaire.CoreThemes))
		for _, theme := range questionnaire.CoreThemes {
			vals := make([]int, 0, len(group))
			for _, l := range group {
				v, _ := l.Scores.Get(theme)
				vals = append(vals, v)
			}
			means[theme] = mean(vals)
		}
		out = append(out, AnalyticsDay{TestDay: d, Count: len(group), Means: means})
	}
	return out
}

// buildAlphaMatrix uses each submission as one observation of the five dimensions.
func buildAlphaMatrix(logs []*questionnaire.DailyLog) [][]float64 {
	matrix := make([][]float64, 0, len(logs))
	for _, l := range logs {
		if l.Scores.Validate() != nil {
			continue
		}
		vals := l.Scores.Values()
		row := make([]float64, len(vals))
		for i, v := range vals {
			row[i] = float64(v)
		}
		matrix = append(matrix, row)
	}
	return matrix
}

func buildTimeseries(logs []*questionnaire.DailyLog) []AnalyticsTimeseries {
	counts := map[string]int{}
	for _, l := range logs {
		counts[l.SubmittedAt.UTC().Format("2006-01-02")]++
	}
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]AnalyticsTimeseries, 0, len(days))
	for _, d := range days {
		out = append(out, AnalyticsTimeseries{Date: d, Count: counts[d]})
	}
	return out
}
