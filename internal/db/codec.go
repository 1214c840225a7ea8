package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
	"github.com/soaringjerry/Sigmo/internal/services"
)

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

const (
	protocolColumns = `id, title, description, share_link, product_name, test_period_days, material_state, created_by, created_at, updated_at`
	progressColumns = `user_id, protocol_id, last_submitted_day, completed_days, material_state, logic_branch, lifecycle_phase, end_reason, started_at, last_submitted_at, updated_at`
	snapshotColumns = `id, user_id, protocol_id, test_day, questions, generation_context, validation, source, generated_at`
	logColumns      = `id, user_id, protocol_id, test_day, answers, structured_scores, remark, material_state, logic_branch, lifecycle_phase, submitted_at`
	adminColumns    = `id, email, pass_hash, created_at`
)

func scanProtocol(r rowScanner) (*services.Protocol, error) {
	var p services.Protocol
	if err := r.Scan(&p.ID, &p.Title, &p.Description, &p.ShareLink, &p.ProductName,
		&p.TestPeriodDays, &p.MaterialState, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanAdmin(r rowScanner) (*services.Admin, error) {
	var a services.Admin
	if err := r.Scan(&a.ID, &a.Email, &a.PassHash, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanProgress(r rowScanner) (*questionnaire.Progress, error) {
	var (
		p                    questionnaire.Progress
		state, branch, phase string
		lastSubmitted        *time.Time
	)
	if err := r.Scan(&p.UserID, &p.ProtocolID, &p.LastSubmittedDay, &p.CompletedDays,
		&state, &branch, &phase, &p.EndReason, &p.StartedAt, &lastSubmitted, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.MaterialState = questionnaire.MaterialState(state)
	p.LogicBranch = questionnaire.LogicBranch(branch)
	p.LifecyclePhase = questionnaire.LifecyclePhase(phase)
	p.LastSubmittedAt = lastSubmitted
	return &p, nil
}

func scanSnapshot(r rowScanner) (*questionnaire.Snapshot, error) {
	var (
		s                      questionnaire.Snapshot
		questions, gctx, valid []byte
		source                 string
	)
	if err := r.Scan(&s.ID, &s.UserID, &s.ProtocolID, &s.TestDay, &questions, &gctx, &valid, &source, &s.GeneratedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questions, &s.Questions); err != nil {
		return nil, fmt.Errorf("decode snapshot questions: %w", err)
	}
	if err := json.Unmarshal(gctx, &s.Context); err != nil {
		return nil, fmt.Errorf("decode generation context: %w", err)
	}
	if err := json.Unmarshal(valid, &s.Validation); err != nil {
		return nil, fmt.Errorf("decode validation: %w", err)
	}
	s.Source = questionnaire.Source(source)
	return &s, nil
}

func scanLog(r rowScanner) (*questionnaire.DailyLog, error) {
	var (
		l                    questionnaire.DailyLog
		answers, scores      []byte
		state, branch, phase string
	)
	if err := r.Scan(&l.ID, &l.UserID, &l.ProtocolID, &l.TestDay, &answers, &scores, &l.Remark,
		&state, &branch, &phase, &l.SubmittedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &l.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(scores, &l.Scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	l.MaterialState = questionnaire.MaterialState(state)
	l.LogicBranch = questionnaire.LogicBranch(branch)
	l.LifecyclePhase = questionnaire.LifecyclePhase(phase)
	return &l, nil
}

type snapshotPayload struct {
	questions, context, validation []byte
}

func encodeSnapshot(s *questionnaire.Snapshot) (snapshotPayload, error) {
	var (
		out snapshotPayload
		err error
	)
	if out.questions, err = json.Marshal(s.Questions); err != nil {
		return out, fmt.Errorf("encode questions: %w", err)
	}
	if out.context, err = json.Marshal(s.Context); err != nil {
		return out, fmt.Errorf("encode generation context: %w", err)
	}
	if out.validation, err = json.Marshal(s.Validation); err != nil {
		return out, fmt.Errorf("encode validation: %w", err)
	}
	return out, nil
}

func encodeLog(l *questionnaire.DailyLog) (answers, scores []byte, err error) {
	if answers, err = json.Marshal(l.Answers); err != nil {
		return nil, nil, fmt.Errorf("encode answers: %w", err)
	}
	if scores, err = json.Marshal(l.Scores); err != nil {
		return nil, nil, fmt.Errorf("encode scores: %w", err)
	}
	return answers, scores, nil
}
