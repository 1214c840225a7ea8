package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/Sigmo/internal/api"
	"github.com/soaringjerry/Sigmo/internal/questionnaire"
	"github.com/soaringjerry/Sigmo/internal/services"
)

type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func isSQLiteUnique(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return questionnaire.ErrNotFound
	}
	return err
}

// protocols

func (s *SQLiteStore) InsertProtocol(ctx context.Context, p *services.Protocol) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO protocols (`+protocolColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.ShareLink, p.ProductName, p.TestPeriodDays, p.MaterialState, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if isSQLiteUnique(err) {
		return questionnaire.ErrDuplicate
	}
	return err
}

func (s *SQLiteStore) GetProtocol(ctx context.Context, id string) (*services.Protocol, error) {
	p, err := scanProtocol(s.db.QueryRowContext(ctx, `SELECT `+protocolColumns+` FROM protocols WHERE id = ?`, id))
	return p, notFound(err)
}

func (s *SQLiteStore) GetProtocolByShareLink(ctx context.Context, shareLink string) (*services.Protocol, error) {
	p, err := scanProtocol(s.db.QueryRowContext(ctx, `SELECT `+protocolColumns+` FROM protocols WHERE share_link = ?`, shareLink))
	return p, notFound(err)
}

func (s *SQLiteStore) UpdateProtocol(ctx context.Context, p *services.Protocol) error {
	res, err := s.db.ExecContext(ctx, `UPDATE protocols SET title = ?, description = ?, share_link = ?, product_name = ?,
		test_period_days = ?, material_state = ?, updated_at = ? WHERE id = ?`,
		p.Title, p.Description, p.ShareLink, p.ProductName, p.TestPeriodDays, p.MaterialState, p.UpdatedAt, p.ID)
	if isSQLiteUnique(err) {
		return questionnaire.ErrDuplicate
	}
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *SQLiteStore) DeleteProtocol(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM protocols WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *SQLiteStore) ListProtocols(ctx context.Context, createdBy string) ([]*services.Protocol, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+protocolColumns+` FROM protocols WHERE created_by = ? ORDER BY created_at DESC, id`, createdBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.Protocol{}
	for rows.Next() {
		p, err := scanProtocol(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountParticipants(ctx context.Context, protocolID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_progress WHERE protocol_id = ?`, protocolID).Scan(&n)
	return n, err
}

// admins

func (s *SQLiteStore) FindAdminByEmail(ctx context.Context, email string) (*services.Admin, error) {
	a, err := scanAdmin(s.db.QueryRowContext(ctx, `SELECT `+adminColumns+` FROM admins WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) InsertAdmin(ctx context.Context, a *services.Admin) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO admins (`+adminColumns+`) VALUES (?, ?, ?, ?)`, a.ID, a.Email, a.PassHash, a.CreatedAt)
	if isSQLiteUnique(err) {
		return questionnaire.ErrDuplicate
	}
	return err
}

func (s *SQLiteStore) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n)
	return n, err
}

// progress

func (s *SQLiteStore) GetProgress(ctx context.Context, userID, protocolID string) (*questionnaire.Progress, error) {
	p, err := scanProgress(s.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM user_progress WHERE user_id = ? AND protocol_id = ?`, userID, protocolID))
	return p, notFound(err)
}

func (s *SQLiteStore) CreateProgressIfAbsent(ctx context.Context, p *questionnaire.Progress) (*questionnaire.Progress, error) {
	_, err := s.db.ExecContext(ctx, `INSERT INTO user_progress (`+progressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (user_id, protocol_id) DO NOTHING`,
		p.UserID, p.ProtocolID, p.LastSubmittedDay, p.CompletedDays, string(p.MaterialState), string(p.LogicBranch),
		string(p.LifecyclePhase), p.EndReason, p.StartedAt, p.LastSubmittedAt, p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s.GetProgress(ctx, p.UserID, p.ProtocolID)
}

func (s *SQLiteStore) EndProgress(ctx context.Context, userID, protocolID, reason string, at time.Time) (*questionnaire.Progress, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE user_progress SET material_state = ?, end_reason = ?, updated_at = ?
		WHERE user_id = ? AND protocol_id = ? AND material_state <> ?`,
		string(questionnaire.StateEnded), reason, at, userID, protocolID, string(questionnaire.StateEnded))
	if err != nil {
		return nil, err
	}
	return s.GetProgress(ctx, userID, protocolID)
}

// snapshots

func (s *SQLiteStore) GetSnapshot(ctx context.Context, userID, protocolID string, day int) (*questionnaire.Snapshot, error) {
	sn, err := scanSnapshot(s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM question_snapshots WHERE user_id = ? AND protocol_id = ? AND test_day = ?`,
		userID, protocolID, day))
	return sn, notFound(err)
}

func (s *SQLiteStore) CreateSnapshotIfAbsent(ctx context.Context, sn *questionnaire.Snapshot) (*questionnaire.Snapshot, bool, error) {
	payload, err := encodeSnapshot(sn)
	if err != nil {
		return nil, false, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO question_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (user_id, protocol_id, test_day) DO NOTHING`,
		sn.ID, sn.UserID, sn.ProtocolID, sn.TestDay, string(payload.questions), string(payload.context),
		string(payload.validation), string(sn.Source), sn.GeneratedAt)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	stored, err := s.GetSnapshot(ctx, sn.UserID, sn.ProtocolID, sn.TestDay)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, userID, protocolID string) ([]*questionnaire.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM question_snapshots WHERE user_id = ? AND protocol_id = ? ORDER BY test_day`,
		userID, protocolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*questionnaire.Snapshot{}
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// daily logs

func (s *SQLiteStore) GetLog(ctx context.Context, userID, protocolID string, day int) (*questionnaire.DailyLog, error) {
	l, err := scanLog(s.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM daily_logs WHERE user_id = ? AND protocol_id = ? AND test_day = ?`,
		userID, protocolID, day))
	return l, notFound(err)
}

func (s *SQLiteStore) SubmitDay(ctx context.Context, l *questionnaire.DailyLog, next *questionnaire.Progress) (err error) {
	answers, scores, err := encodeLog(l)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO daily_logs (`+logColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.ProtocolID, l.TestDay, string(answers), string(scores), l.Remark,
		string(l.MaterialState), string(l.LogicBranch), string(l.LifecyclePhase), l.SubmittedAt)
	if isSQLiteUnique(err) {
		return questionnaire.ErrDuplicate
	}
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `UPDATE user_progress SET last_submitted_day = ?, completed_days = ?, material_state = ?,
		logic_branch = ?, lifecycle_phase = ?, end_reason = ?, last_submitted_at = ?, updated_at = ?
		WHERE user_id = ? AND protocol_id = ? AND last_submitted_day = ? AND material_state <> ?`,
		next.LastSubmittedDay, next.CompletedDays, string(next.MaterialState), string(next.LogicBranch),
		string(next.LifecyclePhase), next.EndReason, next.LastSubmittedAt, next.UpdatedAt,
		next.UserID, next.ProtocolID, l.TestDay-1, string(questionnaire.StateEnded))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return questionnaire.ErrStaleProgress
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListLogs(ctx context.Context, userID, protocolID string) ([]*questionnaire.DailyLog, error) {
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM daily_logs WHERE user_id = ? AND protocol_id = ? ORDER BY test_day`, userID, protocolID)
}

func (s *SQLiteStore) ListLogsByProtocol(ctx context.Context, protocolID string) ([]*questionnaire.DailyLog, error) {
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM daily_logs WHERE protocol_id = ? ORDER BY user_id, test_day`, protocolID)
}

func (s *SQLiteStore) queryLogs(ctx context.Context, query string, args ...any) ([]*questionnaire.DailyLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*questionnaire.DailyLog{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return questionnaire.ErrNotFound
	}
	return nil
}
