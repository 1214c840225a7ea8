package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

const (
	todayStateNormal = "normal"
	todayStateEnded  = "ended"

	endReasonPeriodComplete = "period_complete"
)

type QuestionnaireStore interface {
	questionnaire.ProgressStore
	questionnaire.SnapshotStore
	questionnaire.DailyLogStore
}

// SplitStore assembles a QuestionnaireStore from separately decorated parts.
type SplitStore struct {
	questionnaire.ProgressStore
	questionnaire.SnapshotStore
	questionnaire.DailyLogStore
}

type ProtocolLookup interface {
	GetProtocol(ctx context.Context, id string) (*Protocol, error)
	GetProtocolByShareLink(ctx context.Context, shareLink string) (*Protocol, error)
}

// ProtocolRef identifies a protocol by share link or id. ShareLink wins.
type ProtocolRef struct {
	ShareLink  string
	ProtocolID string
}

type QuestionnaireService struct {
	store     QuestionnaireStore
	protocols ProtocolLookup
	generator *questionnaire.Generator
	ledger    *questionnaire.Ledger
	logger    *zap.Logger
	now       func() time.Time
	idGen     func() string
	flight    singleflight.Group
}

func NewQuestionnaireService(store QuestionnaireStore, protocols ProtocolLookup, generator *questionnaire.Generator, logger *zap.Logger) *QuestionnaireService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionnaireService{
		store:     store,
		protocols: protocols,
		generator: generator,
		ledger:    questionnaire.NewLedger(store),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func() string { return shortID(16) },
	}
}

type TodayResult struct {
	State          string                       `json:"state"`
	Questions      []questionnaire.Question     `json:"questions,omitempty"`
	TestDay        int                          `json:"testDay,omitempty"`
	IsGenerated    bool                         `json:"isGenerated"`
	Source         questionnaire.Source         `json:"source,omitempty"`
	MaterialState  questionnaire.MaterialState  `json:"materialState"`
	LifecyclePhase questionnaire.LifecyclePhase `json:"lifecyclePhase,omitempty"`
	LogicBranch    questionnaire.LogicBranch    `json:"logicBranch,omitempty"`
	CompletedDays  int                          `json:"completedDays"`
	TestPeriodDays int                          `json:"testPeriodDays"`
}

// Today returns the participant's questions for their current day, creating
// the day's snapshot on first request. Later calls return the stored snapshot.
func (s *QuestionnaireService) Today(ctx context.Context, ref ProtocolRef, userID string) (*TodayResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, NewFieldError("userId", "required")
	}
	proto, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	progress, err := s.ledger.GetOrCreate(ctx, userID, proto.ID)
	if err != nil {
		return nil, err
	}
	if progress.Ended() {
		return endedResult(progress, proto), nil
	}
	day := progress.CurrentDay()
	if day > proto.TestPeriodDays {
		progress, err = s.ledger.EndTest(ctx, userID, proto.ID, endReasonPeriodComplete)
		if err != nil {
			return nil, err
		}
		return endedResult(progress, proto), nil
	}

	snap, err := s.store.GetSnapshot(ctx, userID, proto.ID, day)
	created := false
	if errors.Is(err, questionnaire.ErrNotFound) {
		snap, created, err = s.createSnapshot(ctx, proto, progress, day)
	}
	if err != nil {
		return nil, err
	}

	return &TodayResult{
		State:          todayStateNormal,
		Questions:      snap.Questions,
		TestDay:        snap.TestDay,
		IsGenerated:    created,
		Source:         snap.Source,
		MaterialState:  snap.Context.MaterialState,
		LifecyclePhase: snap.Context.LifecyclePhase,
		LogicBranch:    snap.Context.LogicBranch,
		CompletedDays:  progress.CompletedDays,
		TestPeriodDays: proto.TestPeriodDays,
	}, nil
}

const generationTimeout = 2 * time.Minute

type snapshotOutcome struct {
	snap    *questionnaire.Snapshot
	created bool
}

// createSnapshot generates and stores the day's questions. Concurrent callers
// in this process share one generation; across processes the store's insert
// returns the winner's row.
func (s *QuestionnaireService) createSnapshot(ctx context.Context, proto *Protocol, progress *questionnaire.Progress, day int) (*questionnaire.Snapshot, bool, error) {
	key := fmt.Sprintf("%s/%s/%d", progress.UserID, proto.ID, day)
	v, err, _ := s.flight.Do(key, func() (any, error) {
		// shared by every waiter, so the first caller's cancellation must not end it
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), generationTimeout)
		defer cancel()
		req := questionnaire.Request{
			ProductName:  proto.ProductName,
			Day:          day,
			PeriodDays:   proto.TestPeriodDays,
			CurrentState: progress.MaterialState,
		}
		if day > 1 {
			prev, err := s.store.GetLog(ctx, progress.UserID, proto.ID, day-1)
			switch {
			case err == nil:
				scores := prev.Scores
				req.PreviousScores = &scores
				req.PreviousAnswers = prev.Answers
			case !errors.Is(err, questionnaire.ErrNotFound):
				return nil, fmt.Errorf("load previous log: %w", err)
			}
			history, err := s.historyTitles(ctx, progress.UserID, proto.ID, day)
			if err != nil {
				return nil, err
			}
			req.HistoryTitles = history
		}

		gen, err := s.generator.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		snap := &questionnaire.Snapshot{
			ID:          s.idGen(),
			UserID:      progress.UserID,
			ProtocolID:  proto.ID,
			TestDay:     day,
			Questions:   gen.Questions,
			Context:     gen.Context,
			Validation:  gen.Validation,
			Source:      gen.Outcome,
			GeneratedAt: s.now(),
		}
		stored, created, err := s.store.CreateSnapshotIfAbsent(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("store snapshot: %w", err)
		}
		if created {
			s.logger.Info("questions generated",
				zap.String("user_id", progress.UserID),
				zap.String("protocol_id", proto.ID),
				zap.Int("day", day),
				zap.String("source", string(gen.Outcome)),
				zap.String("branch", string(gen.State.LogicBranch)))
		}
		return snapshotOutcome{snap: stored, created: created}, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(snapshotOutcome)
	return out.snap, out.created, nil
}

func (s *QuestionnaireService) historyTitles(ctx context.Context, userID, protocolID string, before int) ([]string, error) {
	snaps, err := s.store.ListSnapshots(ctx, userID, protocolID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var titles []string
	for _, sn := range snaps {
		if sn.TestDay >= before {
			continue
		}
		for _, q := range sn.Questions {
			titles = append(titles, q.Title)
		}
	}
	return titles, nil
}

type SubmitRequest struct {
	ShareLink        string                          `json:"shareLink"`
	ProtocolID       string                          `json:"protocolId"`
	UserID           string                          `json:"userId"`
	TestDay          int                             `json:"testDay"`
	Answers          []questionnaire.Answer          `json:"answers"`
	StructuredScores *questionnaire.StructuredScores `json:"structuredScores,omitempty"`
	Remark           string                          `json:"remark,omitempty"`
}

type SubmitResult struct {
	TestDay        int                          `json:"testDay"`
	CompletedDays  int                          `json:"completedDays"`
	MaterialState  questionnaire.MaterialState  `json:"materialState"`
	LifecyclePhase questionnaire.LifecyclePhase `json:"lifecyclePhase"`
	LogicBranch    questionnaire.LogicBranch    `json:"logicBranch"`
	SubmittedAt    time.Time                    `json:"submittedAt"`
}

// Submit records one day's answers and advances the participant's progress.
func (s *QuestionnaireService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := validateSubmission(&req); err != nil {
		return nil, err
	}
	proto, err := s.resolve(ctx, ProtocolRef{ShareLink: req.ShareLink, ProtocolID: req.ProtocolID})
	if err != nil {
		return nil, err
	}
	progress, err := s.ledger.GetOrCreate(ctx, req.UserID, proto.ID)
	if err != nil {
		return nil, err
	}
	if err := questionnaire.CheckAdvance(progress, req.TestDay); err != nil {
		return nil, s.explainRejected(ctx, req, proto.ID, err)
	}

	answers := s.attachThemes(ctx, req, proto.ID)
	var scores questionnaire.StructuredScores
	if req.StructuredScores != nil {
		scores = *req.StructuredScores
	} else {
		scores = questionnaire.ScoresFromAnswers(answers)
	}

	state := s.generator.Calculator().Evaluate(progress.MaterialState, req.TestDay, proto.TestPeriodDays, &scores)
	next, err := s.ledger.Advance(progress, req.TestDay, state)
	if err != nil {
		return nil, translateLedgerError(err)
	}
	if req.TestDay >= proto.TestPeriodDays {
		// the final submission exhausts the period
		next.MaterialState = questionnaire.StateEnded
		next.EndReason = endReasonPeriodComplete
	}
	now := s.now()
	log := &questionnaire.DailyLog{
		ID:             s.idGen(),
		UserID:         req.UserID,
		ProtocolID:     proto.ID,
		TestDay:        req.TestDay,
		Answers:        answers,
		Scores:         scores,
		Remark:         strings.TrimSpace(req.Remark),
		MaterialState:  state.MaterialState,
		LogicBranch:    state.LogicBranch,
		LifecyclePhase: state.LifecyclePhase,
		SubmittedAt:    now,
	}
	if err := s.store.SubmitDay(ctx, log, next); err != nil {
		switch {
		case errors.Is(err, questionnaire.ErrDuplicate):
			return nil, newAlreadySubmittedError(req.TestDay, req.TestDay+1)
		case errors.Is(err, questionnaire.ErrStaleProgress):
			return nil, s.explainStale(ctx, req, proto.ID)
		}
		return nil, fmt.Errorf("submit day: %w", err)
	}

	s.logger.Info("daily log submitted",
		zap.String("user_id", req.UserID),
		zap.String("protocol_id", proto.ID),
		zap.Int("day", req.TestDay),
		zap.String("material_state", string(next.MaterialState)))
	if next.Ended() {
		s.logger.Info("test completed", zap.String("user_id", req.UserID), zap.String("protocol_id", proto.ID))
	}

	return &SubmitResult{
		TestDay:        req.TestDay,
		CompletedDays:  next.CompletedDays,
		MaterialState:  next.MaterialState,
		LifecyclePhase: next.LifecyclePhase,
		LogicBranch:    next.LogicBranch,
		SubmittedAt:    now,
	}, nil
}

func validateSubmission(req *SubmitRequest) error {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return NewFieldError("userId", "required")
	}
	if req.TestDay < 1 {
		return NewFieldError("testDay", "must be at least 1")
	}
	if len(req.Answers) != len(questionnaire.CoreThemes) {
		return NewFieldError("answers", fmt.Sprintf("expected %d answers, got %d", len(questionnaire.CoreThemes), len(req.Answers)))
	}
	for i, a := range req.Answers {
		if strings.TrimSpace(a.QuestionID) == "" {
			return NewFieldError(fmt.Sprintf("answers[%d].questionId", i), "required")
		}
		if strings.TrimSpace(a.Question) == "" {
			return NewFieldError(fmt.Sprintf("answers[%d].question", i), "required")
		}
		if a.Score < questionnaire.MinScore || a.Score > questionnaire.MaxScore {
			return NewFieldError(fmt.Sprintf("answers[%d].score", i), "must be between 1 and 5")
		}
	}
	if req.StructuredScores != nil {
		var se *questionnaire.ScoreError
		if err := req.StructuredScores.Validate(); errors.As(err, &se) {
			return NewFieldError("structuredScores."+se.Field, "must be between 1 and 5")
		}
	}
	return nil
}

// attachThemes copies each answered question's theme from the day's snapshot.
func (s *QuestionnaireService) attachThemes(ctx context.Context, req SubmitRequest, protocolID string) []questionnaire.Answer {
	answers := make([]questionnaire.Answer, len(req.Answers))
	copy(answers, req.Answers)
	snap, err := s.store.GetSnapshot(ctx, req.UserID, protocolID, req.TestDay)
	if err != nil {
		if !errors.Is(err, questionnaire.ErrNotFound) {
			s.logger.Warn("snapshot lookup failed", zap.Error(err))
		}
		return answers
	}
	themes := make(map[string]questionnaire.Theme, len(snap.Questions))
	for _, q := range snap.Questions {
		themes[q.ID] = q.Theme
	}
	for i := range answers {
		if t, ok := themes[answers[i].QuestionID]; ok {
			answers[i].Theme = t
		}
	}
	return answers
}

// explainRejected turns a failed advance check into the error the participant
// should see. A resubmission of the last day reads as already submitted.
func (s *QuestionnaireService) explainRejected(ctx context.Context, req SubmitRequest, protocolID string, err error) error {
	var wrong *questionnaire.WrongDayError
	if errors.As(err, &wrong) && req.TestDay < wrong.Expected {
		if _, lerr := s.store.GetLog(ctx, req.UserID, protocolID, req.TestDay); lerr == nil {
			return newAlreadySubmittedError(req.TestDay, wrong.Expected)
		}
	}
	return translateLedgerError(err)
}

func (s *QuestionnaireService) explainStale(ctx context.Context, req SubmitRequest, protocolID string) error {
	p, err := s.store.GetProgress(ctx, req.UserID, protocolID)
	if err != nil {
		return fmt.Errorf("reload progress: %w", err)
	}
	if err := questionnaire.CheckAdvance(p, req.TestDay); err != nil {
		return s.explainRejected(ctx, req, protocolID, err)
	}
	return NewConflictError("progress changed, retry")
}

type ProgressView struct {
	TestDay        int                          `json:"currentDay"`
	CompletedDays  int                          `json:"completedDays"`
	TestPeriodDays int                          `json:"testPeriodDays"`
	MaterialState  questionnaire.MaterialState  `json:"materialState"`
	LifecyclePhase questionnaire.LifecyclePhase `json:"lifecyclePhase"`
	LogicBranch    questionnaire.LogicBranch    `json:"logicBranch"`
	Ended          bool                         `json:"ended"`
	EndReason      string                       `json:"endReason,omitempty"`
}

func progressView(p *questionnaire.Progress, proto *Protocol) ProgressView {
	return ProgressView{
		TestDay:        p.CurrentDay(),
		CompletedDays:  p.CompletedDays,
		TestPeriodDays: proto.TestPeriodDays,
		MaterialState:  p.MaterialState,
		LifecyclePhase: p.LifecyclePhase,
		LogicBranch:    p.LogicBranch,
		Ended:          p.Ended(),
		EndReason:      p.EndReason,
	}
}

// EndTest terminates a participant's test early.
func (s *QuestionnaireService) EndTest(ctx context.Context, ref ProtocolRef, userID, reason string) (*ProgressView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, NewFieldError("userId", "required")
	}
	proto, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "ended_by_participant"
	}
	p, err := s.ledger.EndTest(ctx, userID, proto.ID, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Info("test ended", zap.String("user_id", userID), zap.String("protocol_id", proto.ID), zap.String("reason", p.EndReason))
	v := progressView(p, proto)
	return &v, nil
}

type TrendPoint struct {
	TestDay int                            `json:"testDay"`
	Scores  questionnaire.StructuredScores `json:"scores"`
	Average float64                        `json:"average"`
}

type HistoryResult struct {
	Progress ProgressView              `json:"progress"`
	Logs     []*questionnaire.DailyLog `json:"logs"`
	Trend    []TrendPoint              `json:"trend"`
}

// History lists a participant's submissions with their score trend.
func (s *QuestionnaireService) History(ctx context.Context, ref ProtocolRef, userID string) (*HistoryResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, NewFieldError("userId", "required")
	}
	proto, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	p, err := s.ledger.GetOrCreate(ctx, userID, proto.ID)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.ListLogs(ctx, userID, proto.ID)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].TestDay < logs[j].TestDay })
	trend := make([]TrendPoint, 0, len(logs))
	for _, l := range logs {
		trend = append(trend, TrendPoint{TestDay: l.TestDay, Scores: l.Scores, Average: mean(l.Scores.Values())})
	}
	if logs == nil {
		logs = []*questionnaire.DailyLog{}
	}
	return &HistoryResult{Progress: progressView(p, proto), Logs: logs, Trend: trend}, nil
}

type PreviewRequest struct {
	Day            int                             `json:"day"`
	TestPeriodDays int                             `json:"testPeriodDays"`
	ProductName    string                          `json:"productName"`
	MaterialState  questionnaire.MaterialState     `json:"materialState"`
	Scores         *questionnaire.StructuredScores `json:"scores"`
	HistoryTitles  []string                        `json:"historyTitles"`
}

// Preview runs the generator without persisting anything.
func (s *QuestionnaireService) Preview(ctx context.Context, req PreviewRequest) (*questionnaire.Generated, error) {
	if req.TestPeriodDays == 0 {
		req.TestPeriodDays = DefaultTestPeriodDays
	}
	if req.Day < 1 || req.Day > req.TestPeriodDays {
		return nil, NewFieldError("day", "must be within the test period")
	}
	if req.Scores != nil {
		if err := req.Scores.Validate(); err != nil {
			return nil, NewFieldError("scores", err.Error())
		}
	}
	return s.generator.Generate(ctx, questionnaire.Request{
		ProductName:    req.ProductName,
		Day:            req.Day,
		PeriodDays:     req.TestPeriodDays,
		CurrentState:   req.MaterialState,
		PreviousScores: req.Scores,
		HistoryTitles:  req.HistoryTitles,
	})
}

// Templates lists the template catalogue.
func (s *QuestionnaireService) Templates() map[string][]questionnaire.Question {
	return s.generator.Bank().All()
}

func (s *QuestionnaireService) resolve(ctx context.Context, ref ProtocolRef) (*Protocol, error) {
	var (
		p   *Protocol
		err error
	)
	switch {
	case strings.TrimSpace(ref.ShareLink) != "":
		p, err = s.protocols.GetProtocolByShareLink(ctx, strings.TrimSpace(ref.ShareLink))
	case strings.TrimSpace(ref.ProtocolID) != "":
		p, err = s.protocols.GetProtocol(ctx, strings.TrimSpace(ref.ProtocolID))
	default:
		return nil, NewFieldError("shareLink", "required")
	}
	if errors.Is(err, questionnaire.ErrNotFound) {
		return nil, NewNotFoundError("protocol not found")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func endedResult(p *questionnaire.Progress, proto *Protocol) *TodayResult {
	return &TodayResult{
		State:          todayStateEnded,
		MaterialState:  questionnaire.StateEnded,
		CompletedDays:  p.CompletedDays,
		TestPeriodDays: proto.TestPeriodDays,
	}
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
