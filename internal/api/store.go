package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
	"github.com/soaringjerry/Sigmo/internal/services"
)

// MemoryStore keeps everything in maps. It backs the "memory" storage driver
// and the HTTP tests; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	protocols map[string]*services.Protocol
	admins    map[string]*services.Admin
	progress  map[string]*questionnaire.Progress
	snapshots map[string]*questionnaire.Snapshot
	logs      map[string]*questionnaire.DailyLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		protocols: map[string]*services.Protocol{},
		admins:    map[string]*services.Admin{},
		progress:  map[string]*questionnaire.Progress{},
		snapshots: map[string]*questionnaire.Snapshot{},
		logs:      map[string]*questionnaire.DailyLog{},
	}
}

func (s *MemoryStore) Close() error { return nil }

func progressKey(userID, protocolID string) string { return userID + "\x00" + protocolID }

func dayKey(userID, protocolID string, day int) string {
	return fmt.Sprintf("%s\x00%s\x00%d", userID, protocolID, day)
}

func (s *MemoryStore) InsertProtocol(_ context.Context, p *services.Protocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.protocols[p.ID]; ok {
		return questionnaire.ErrDuplicate
	}
	for _, existing := range s.protocols {
		if existing.ShareLink == p.ShareLink {
			return questionnaire.ErrDuplicate
		}
	}
	copy := *p
	s.protocols[p.ID] = &copy
	return nil
}

func (s *MemoryStore) GetProtocol(_ context.Context, id string) (*services.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.protocols[id]
	if !ok {
		return nil, questionnaire.ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) GetProtocolByShareLink(_ context.Context, shareLink string) (*services.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.protocols {
		if p.ShareLink == shareLink {
			copy := *p
			return &copy, nil
		}
	}
	return nil, questionnaire.ErrNotFound
}

func (s *MemoryStore) UpdateProtocol(_ context.Context, p *services.Protocol) error {
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

// DeleteProtocol removes the protocol together with its participants' records.
func (s *MemoryStore) DeleteProtocol(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.protocols[id]; !ok {
		return questionnaire.ErrNotFound
	}
	delete(s.protocols, id)
	for k, p := range s.progress {
		if p.ProtocolID == id {
			delete(s.progress, k)
		}
	}
	for k, sn := range s.snapshots {
		if sn.ProtocolID == id {
			delete(s.snapshots, k)
		}
	}
	for k, l := range s.logs {
		if l.ProtocolID == id {
			delete(s.logs, k)
		}
	}
	return nil
}

func (s *MemoryStore) ListProtocols(_ context.Context, createdBy string) ([]*services.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Protocol{}
	for _, p := range s.protocols {
		if p.CreatedBy == createdBy {
			copy := *p
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CountParticipants(_ context.Context, protocolID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.progress {
		if p.ProtocolID == protocolID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) FindAdminByEmail(_ context.Context, email string) (*services.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.admins[email]
	if !ok {
		return nil, nil
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) InsertAdmin(_ context.Context, a *services.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[a.Email]; ok {
		return questionnaire.ErrDuplicate
	}
	copy := *a
	s.admins[a.Email] = &copy
	return nil
}

func (s *MemoryStore) CountAdmins(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.admins), nil
}

func (s *MemoryStore) GetProgress(_ context.Context, userID, protocolID string) (*questionnaire.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[progressKey(userID, protocolID)]
	if !ok {
		return nil, questionnaire.ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) CreateProgressIfAbsent(_ context.Context, p *questionnaire.Progress) (*questionnaire.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := progressKey(p.UserID, p.ProtocolID)
	if existing, ok := s.progress[k]; ok {
		copy := *existing
		return &copy, nil
	}
	stored := *p
	s.progress[k] = &stored
	out := stored
	return &out, nil
}

func (s *MemoryStore) EndProgress(_ context.Context, userID, protocolID, reason string, at time.Time) (*questionnaire.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[progressKey(userID, protocolID)]
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

func (s *MemoryStore) GetSnapshot(_ context.Context, userID, protocolID string, day int) (*questionnaire.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.snapshots[dayKey(userID, protocolID, day)]
	if !ok {
		return nil, questionnaire.ErrNotFound
	}
	copy := *sn
	return &copy, nil
}

func (s *MemoryStore) CreateSnapshotIfAbsent(_ context.Context, sn *questionnaire.Snapshot) (*questionnaire.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := dayKey(sn.UserID, sn.ProtocolID, sn.TestDay)
	if existing, ok := s.snapshots[k]; ok {
		copy := *existing
		return &copy, false, nil
	}
	stored := *sn
	s.snapshots[k] = &stored
	out := stored
	return &out, true, nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context, userID, protocolID string) ([]*questionnaire.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*questionnaire.Snapshot{}
	for _, sn := range s.snapshots {
		if sn.UserID == userID && sn.ProtocolID == protocolID {
			copy := *sn
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestDay < out[j].TestDay })
	return out, nil
}

func (s *MemoryStore) GetLog(_ context.Context, userID, protocolID string, day int) (*questionnaire.DailyLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[dayKey(userID, protocolID, day)]
	if !ok {
		return nil, questionnaire.ErrNotFound
	}
	copy := *l
	return &copy, nil
}

// SubmitDay checks and writes under one lock, so the log and progress change together.
func (s *MemoryStore) SubmitDay(_ context.Context, l *questionnaire.DailyLog, next *questionnaire.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := dayKey(l.UserID, l.ProtocolID, l.TestDay)
	if _, ok := s.logs[k]; ok {
		return questionnaire.ErrDuplicate
	}
	pk := progressKey(next.UserID, next.ProtocolID)
	cur, ok := s.progress[pk]
	if !ok || cur.LastSubmittedDay != l.TestDay-1 || cur.Ended() {
		return questionnaire.ErrStaleProgress
	}
	storedLog := *l
	s.logs[k] = &storedLog
	storedProgress := *next
	s.progress[pk] = &storedProgress
	return nil
}

func (s *MemoryStore) ListLogs(_ context.Context, userID, protocolID string) ([]*questionnaire.DailyLog, error) {
	return s.filterLogs(func(l *questionnaire.DailyLog) bool {
		return l.UserID == userID && l.ProtocolID == protocolID
	}), nil
}

func (s *MemoryStore) ListLogsByProtocol(_ context.Context, protocolID string) ([]*questionnaire.DailyLog, error) {
	return s.filterLogs(func(l *questionnaire.DailyLog) bool { return l.ProtocolID == protocolID }), nil
}

func (s *MemoryStore) filterLogs(keep func(*questionnaire.DailyLog) bool) []*questionnaire.DailyLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*questionnaire.DailyLog{}
	for _, l := range s.logs {
		if keep(l) {
			copy := *l
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID == out[j].UserID {
			return out[i].TestDay < out[j].TestDay
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
