package questionnaire

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicate is returned when a (user, protocol, day) record already exists.
	ErrDuplicate = errors.New("record already exists")
	ErrNotFound  = errors.New("record not found")
	// ErrStaleProgress is returned when the progress row moved on before a
	// submission could advance it.
	ErrStaleProgress = errors.New("progress changed concurrently")
)

type ProgressStore interface {
	GetProgress(ctx context.Context, userID, protocolID string) (*Progress, error)
	// CreateProgressIfAbsent inserts p unless a record exists, returning the stored record.
	CreateProgressIfAbsent(ctx context.Context, p *Progress) (*Progress, error)
	// EndProgress marks the record ended with reason unless it already is, and
	// returns the stored record. Only the end columns are written, so a
	// submission committed in between is kept.
	EndProgress(ctx context.Context, userID, protocolID, reason string, at time.Time) (*Progress, error)
}

type SnapshotStore interface {
	GetSnapshot(ctx context.Context, userID, protocolID string, day int) (*Snapshot, error)
	// CreateSnapshotIfAbsent stores s unless one exists for the same key. The
	// stored snapshot is returned either way; created reports which happened.
	CreateSnapshotIfAbsent(ctx context.Context, s *Snapshot) (stored *Snapshot, created bool, err error)
	ListSnapshots(ctx context.Context, userID, protocolID string) ([]*Snapshot, error)
}

type DailyLogStore interface {
	GetLog(ctx context.Context, userID, protocolID string, day int) (*DailyLog, error)
	// SubmitDay inserts log and replaces the progress row in one unit. It fails
	// with ErrDuplicate if the log exists and ErrStaleProgress if the stored
	// progress is no longer at log.TestDay-1.
	SubmitDay(ctx context.Context, log *DailyLog, next *Progress) error
	ListLogs(ctx context.Context, userID, protocolID string) ([]*DailyLog, error)
	ListLogsByProtocol(ctx context.Context, protocolID string) ([]*DailyLog, error)
}
