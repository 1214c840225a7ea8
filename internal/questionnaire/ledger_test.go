package questionnaire

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProgressStore struct {
	records map[string]*Progress
	creates int
	updates int
}

func newStubProgressStore() *stubProgressStore {
	return &stubProgressStore{records: map[string]*Progress{}}
}

func (s *stubProgressStore) GetProgress(ctx context.Context, userID, protocolID string) (*Progress, error) {
	if p, ok := s.records[userID+"/"+protocolID]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, ErrNotFound
}

func (s *stubProgressStore) CreateProgressIfAbsent(ctx context.Context, p *Progress) (*Progress, error) {
	key := p.UserID + "/" + p.ProtocolID
	if existing, ok := s.records[key]; ok {
		copy := *existing
		return &copy, nil
	}
	s.creates++
	copy := *p
	s.records[key] = &copy
	return p, nil
}

func (s *stubProgressStore) EndProgress(ctx context.Context, userID, protocolID, reason string, at time.Time) (*Progress, error) {
	p, ok := s.records[userID+"/"+protocolID]
	if !ok {
		return nil, ErrNotFound
	}
	if !p.Ended() {
		s.updates++
		p.MaterialState = StateEnded
		p.EndReason = reason
		p.UpdatedAt = at
	}
	copy := *p
	return &copy, nil
}

func TestLedgerGetOrCreate(t *testing.T) {
	store := newStubProgressStore()
	l := NewLedger(store)
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return start }

	p, err := l.GetOrCreate(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	if p.LastSubmittedDay != 0 || p.CompletedDays != 0 {
		t.Fatalf("new progress = %+v, want day 0", p)
	}
	if p.CurrentDay() != 1 {
		t.Fatalf("CurrentDay = %d, want 1", p.CurrentDay())
	}
	if p.MaterialState != StateNewBag {
		t.Fatalf("MaterialState = %s, want new_bag", p.MaterialState)
	}
	if !p.StartedAt.Equal(start) {
		t.Fatalf("StartedAt = %v, want %v", p.StartedAt, start)
	}

	if _, err := l.GetOrCreate(context.Background(), "u1", "p1"); err != nil {
		t.Fatalf("second GetOrCreate returned error: %v", err)
	}
	if store.creates != 1 {
		t.Fatalf("creates = %d, want 1", store.creates)
	}
}

func TestLedgerAdvance(t *testing.T) {
	l := NewLedger(newStubProgressStore())
	p := &Progress{UserID: "u1", ProtocolID: "p1", LastSubmittedDay: 2, CompletedDays: 2, MaterialState: StateNormal}

	next, err := l.Advance(p, 3, State{Day: 3, MaterialState: StateNormal, LogicBranch: BranchNormal, LifecyclePhase: PhaseEarly})
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if next.LastSubmittedDay != 3 || next.CompletedDays != 3 {
		t.Fatalf("advanced = %+v, want day 3 completed 3", next)
	}
	if next.LastSubmittedAt == nil {
		t.Fatalf("expected LastSubmittedAt to be set")
	}
	if p.LastSubmittedDay != 2 {
		t.Fatalf("input progress mutated: %+v", p)
	}
}

func TestLedgerAdvanceRejectsWrongDay(t *testing.T) {
	l := NewLedger(newStubProgressStore())
	p := &Progress{LastSubmittedDay: 4, CompletedDays: 4, MaterialState: StateNormal}

	for _, day := range []int{4, 6} {
		_, err := l.Advance(p, day, State{})
		var wrong *WrongDayError
		if !errors.As(err, &wrong) {
			t.Fatalf("day %d: err = %v, want WrongDayError", day, err)
		}
		if wrong.Expected != 5 || wrong.Got != day {
			t.Fatalf("day %d: wrong day = %+v, want expected 5", day, wrong)
		}
	}
}

func TestLedgerAdvanceNeverRegressesState(t *testing.T) {
	l := NewLedger(newStubProgressStore())
	p := &Progress{LastSubmittedDay: 19, CompletedDays: 19, MaterialState: StateNearingEnd}

	next, err := l.Advance(p, 20, State{MaterialState: StateNormal, LogicBranch: BranchEndgame})
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if next.MaterialState != StateNearingEnd {
		t.Fatalf("MaterialState = %s, want nearing_end", next.MaterialState)
	}
}

func TestLedgerEndTest(t *testing.T) {
	store := newStubProgressStore()
	l := NewLedger(store)
	ctx := context.Background()

	p, err := l.EndTest(ctx, "u1", "p1", "product ran out")
	if err != nil {
		t.Fatalf("EndTest returned error: %v", err)
	}
	if !p.Ended() || p.EndReason != "product ran out" {
		t.Fatalf("ended progress = %+v", p)
	}
	if _, err := l.EndTest(ctx, "u1", "p1", "again"); err != nil {
		t.Fatalf("second EndTest returned error: %v", err)
	}
	if store.updates != 1 {
		t.Fatalf("updates = %d, want 1", store.updates)
	}

	_, err = l.Advance(p, p.CurrentDay(), State{})
	if !errors.Is(err, ErrTestEnded) {
		t.Fatalf("Advance after end err = %v, want ErrTestEnded", err)
	}
}
