package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

// stubStore keeps protocols and questionnaire records in maps.
type stubStore struct {
	mu        sync.Mutex
	protocols map[string]*Protocol
	progress  map[string]*questionnaire.Progress
	snapshots map[string]*questionnaire.Snapshot
	logs      map[string]*questionnaire.DailyLog

	snapshotInserts int
	submitErr       error
}

func newStubStore() *stubStore {
	return &stubStore{
		protocols: map[string]*Protocol{},
		progress:  map[string]*questionnaire.Progress{},
		snapshots: map[string]*questionnaire.Snapshot{},
		logs:      map[string]*questionnaire.DailyLog{},
	}
}

func pkey(user, protocol string) string { return user + "/" + protocol }

func dkey(user, protocol string, day int) string {
	return fmt.Sprintf("%s/%s/%d", user, protocol, day)
}

func (s *stubStore) InsertProtocol(_ context.Context, p *Protocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.protocols {
		if existing.ShareLink == p.ShareLink {
			return questionnaire.ErrDuplicate
		}
	}
	copy := *p
	s.protocols[p.ID] = &copy
	return nil
}

func (s *stubStore) GetProtocol(_ context.Context, id string) (*Protocol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.protocols[id]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, questionnaire.ErrNotFound
}

func (s *stubStore) GetProtocolByShareLink(_ context.Context, link string) (*Protocol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.protocols {
		if p.ShareLink == link {
			copy := *p
			return &copy, nil
		}
	}
	return nil, questionnaire.ErrNotFound
}

func (s *stubStore) UpdateProtocol(_ context.Context, p *Protocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.protocols[p.ID]; !ok {
		return questionnaire.ErrNotFound
	}
	for id, existing := range s.protocols {
		if id != p.ID && existing.ShareLink == p.ShareLink {
			return questionnaire.ErrDuplicate
		}
	}
	copy := *p
	s.protocols[p.ID] = &copy
	return nil
}

func (s *stubStore) DeleteProtocol(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.protocols[id]; !ok {
		return questionnaire.ErrNotFound
	}
	delete(s.protocols, id)
	return nil
}

func (s *stubStore) ListProtocols(_ context.Context, createdBy string) ([]*Protocol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*Protocol{}
	for _, p := range s.protocols {
		if p.CreatedBy == createdBy {
			copy := *p
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubStore) CountParticipants(_ context.Context, protocolID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.progress {
		if p.ProtocolID == protocolID {
			n++
		}
	}
	return n, nil
}

func (s *stubStore) GetProgress(_ context.Context, user, protocol string) (*questionnaire.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.progress[pkey(user, protocol)]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, questionnaire.ErrNotFound
}

func (s *stubStore) CreateProgressIfAbsent(_ context.Context, p *questionnaire.Progress) (*questionnaire.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pkey(p.UserID, p.ProtocolID)
	if existing, ok := s.progress[k]; ok {
		copy := *existing
		return &copy, nil
	}
	copy := *p
	s.progress[k] = &copy
	out := copy
	return &out, nil
}

func (s *stubStore) EndProgress(_ context.Context, user, protocol, reason string, at time.Time) (*questionnaire.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[pkey(user, protocol)]
	if !ok {
		return nil, questionnaire.ErrNotFound
	}
	if !p.Ended() {
		p.MaterialState = questionnaire.StateEnded
		p.EndReason = reason
		p.UpdatedAt = at
	}
	copy := *p
	return &copy, nil
}

func (s *stubStore) GetSnapshot(_ context.Context, user, protocol string, day int) (*questionnaire.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sn, ok := s.snapshots[dkey(user, protocol, day)]; ok {
		copy := *sn
		return &copy, nil
	}
	return nil, questionnaire.ErrNotFound
}

func (s *stubStore) CreateSnapshotIfAbsent(_ context.Context, sn *questionnaire.Snapshot) (*questionnaire.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := dkey(sn.UserID, sn.ProtocolID, sn.TestDay)
	if existing, ok := s.snapshots[k]; ok {
		copy := *existing
		return &copy, false, nil
	}
	s.snapshotInserts++
	copy := *sn
	s.snapshots[k] = &copy
	out := copy
	return &out, true, nil
}

func (s *stubStore) ListSnapshots(_ context.Context, user, protocol string) ([]*questionnaire.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*questionnaire.Snapshot{}
	for _, sn := range s.snapshots {
		if sn.UserID == user && sn.ProtocolID == protocol {
			copy := *sn
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestDay < out[j].TestDay })
	return out, nil
}

func (s *stubStore) GetLog(_ context.Context, user, protocol string, day int) (*questionnaire.DailyLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[dkey(user, protocol, day)]; ok {
		copy := *l
		return &copy, nil
	}
	return nil, questionnaire.ErrNotFound
}

func (s *stubStore) SubmitDay(_ context.Context, l *questionnaire.DailyLog, next *questionnaire.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return s.submitErr
	}
	k := dkey(l.UserID, l.ProtocolID, l.TestDay)
	if _, ok := s.logs[k]; ok {
		return questionnaire.ErrDuplicate
	}
	pk := pkey(next.UserID, next.ProtocolID)
	cur, ok := s.progress[pk]
	if !ok || cur.LastSubmittedDay != l.TestDay-1 || cur.Ended() {
		return questionnaire.ErrStaleProgress
	}
	logCopy := *l
	s.logs[k] = &logCopy
	progressCopy := *next
	s.progress[pk] = &progressCopy
	return nil
}

func (s *stubStore) ListLogs(_ context.Context, user, protocol string) ([]*questionnaire.DailyLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*questionnaire.DailyLog{}
	for _, l := range s.logs {
		if l.UserID == user && l.ProtocolID == protocol {
			copy := *l
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *stubStore) ListLogsByProtocol(_ context.Context, protocol string) ([]*questionnaire.DailyLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*questionnaire.DailyLog{}
	for _, l := range s.logs {
		if l.ProtocolID == protocol {
			copy := *l
			out = append(out, &copy)
		}
	}
	return out, nil
}
