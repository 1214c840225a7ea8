package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrTestEnded = errors.New("test has ended")

// WrongDayError is returned when a submission targets a day other than the current one.
type WrongDayError struct {
	Expected int
	Got      int
}

func (e *WrongDayError) Error() string {
	return fmt.Sprintf("wrong test day %d, expected day %d", e.Got, e.Expected)
}

// Ledger tracks how far each participant has progressed through a protocol.
type Ledger struct {
	store ProgressStore
	now   func() time.Time
}

func NewLedger(store ProgressStore) *Ledger {
	return &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the participant's record, creating one at day 0.
func (l *Ledger) GetOrCreate(ctx context.Context, userID, protocolID string) (*Progress, error) {
	p, err := l.store.GetProgress(ctx, userID, protocolID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	now := l.now()
	p, err = l.store.CreateProgressIfAbsent(ctx, &Progress{
		UserID:         userID,
		ProtocolID:     protocolID,
		MaterialState:  StateNewBag,
		LogicBranch:    BranchNormal,
		LifecyclePhase: PhaseEarly,
		StartedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("create progress: %w", err)
	}
	return p, nil
}

// CheckAdvance reports whether day may be submitted next.
func CheckAdvance(p *Progress, day int) error {
	if p.Ended() {
		return ErrTestEnded
	}
	if day != p.CurrentDay() {
		return &WrongDayError{Expected: p.CurrentDay(), Got: day}
	}
	return nil
}

// Advance returns the record after submitting day with state st. p is not modified.
func (l *Ledger) Advance(p *Progress, day int, st State) (*Progress, error) {
	if err := CheckAdvance(p, day); err != nil {
		return nil, err
	}
	now := l.now()
	next := *p
	next.LastSubmittedDay = day
	next.CompletedDays = p.CompletedDays + 1
	if p.MaterialState.Before(st.MaterialState) {
		next.MaterialState = st.MaterialState
	}
	next.LogicBranch = st.LogicBranch
	next.LifecyclePhase = st.LifecyclePhase
	next.LastSubmittedAt = &now
	next.UpdatedAt = now
	return &next, nil
}

// EndTest closes the ledger. Ending an already ended record is a no-op.
func (l *Ledger) EndTest(ctx context.Context, userID, protocolID, reason string) (*Progress, error) {
	p, err := l.GetOrCreate(ctx, userID, protocolID)
	if err != nil {
		return nil, err
	}
	if p.Ended() {
		return p, nil
	}
	ended, err := l.store.EndProgress(ctx, userID, protocolID, reason, l.now())
	if err != nil {
		return nil, fmt.Errorf("end test: %w", err)
	}
	return ended, nil
}
