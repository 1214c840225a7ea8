package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
	"github.com/soaringjerry/Sigmo/internal/services"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect creates a connection pool to PostgreSQL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func pgNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return questionnaire.ErrNotFound
	}
	return err
}

func expectTag(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return questionnaire.ErrNotFound
	}
	return nil
}

// protocols

func (s *PostgresStore) InsertProtocol(ctx context.Context, p *services.Protocol) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO protocols (`+protocolColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Title, p.Description, p.ShareLink, p.ProductName, p.TestPeriodDays, p.MaterialState, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if isPgUnique(err) {
		return questionnaire.ErrDuplicate
	}
	return err
}

func (s *PostgresStore) GetProtocol(ctx context.Context, id string) (*services.Protocol, error) {
	p, err := scanProtocol(s.pool.QueryRow(ctx, `SELECT `+protocolColumns+` FROM protocols WHERE id = $1`, id))
	return p, pgNotFound(err)
}

func (s *PostgresStore) GetProtocolByShareLink(ctx context.Context, shareLink string) (*services.Protocol, error) {
	p, err := scanProtocol(s.pool.QueryRow(ctx, `SELECT `+protocolColumns+` FROM protocols WHERE share_link = $1`, shareLink))
	return p, pgNotFound(err)
}

func (s *PostgresStore) UpdateProtocol(ctx context.Context, p *services.Protocol) error {
	tag, err := s.pool.Exec(ctx, `UPDATE protocols SET title = $1, description = $2, share_link = $3, product_name = $4,
		test_period_days = $5, material_state = $6, updated_at = $7 WHERE id = $8`,
		p.Title, p.Description, p.ShareLink, p.ProductName, p.TestPeriodDays, p.MaterialState, p.UpdatedAt, p.ID)
	if isPgUnique(err) {
		return questionnaire.ErrDuplicate
	}
	if err != nil {
		return err
	}
	return expectTag(tag)
}

func (s *PostgresStore) DeleteProtocol(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM protocols WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectTag(tag)
}

func (s *PostgresStore) ListProtocols(ctx context.Context, createdBy string) ([]*services.Protocol, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+protocolColumns+` FROM protocols WHERE created_by = $1 ORDER BY created_at DESC, id`, createdBy)
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

func (s *PostgresStore) CountParticipants(ctx context.Context, protocolID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_progress WHERE protocol_id = $1`, protocolID).Scan(&n)
	return n, err
}

// admins

func (s *PostgresStore) FindAdminByEmail(ctx context.Context, email string) (*services.Admin, error) {
	a, err := scanAdmin(s.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *PostgresStore) InsertAdmin(ctx context.Context, a *services.Admin) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO admins (`+adminColumns+`) VALUES ($1, $2, $3, $4)`, a.ID, a.Email, a.PassHash, a.CreatedAt)
	if isPgUnique(err) {
		return questionnaire.ErrDuplicate
	}
	return err
}

func (s *PostgresStore) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n)
	return n, err
}

// progress

func (s *PostgresStore) GetProgress(ctx context.Context, userID, protocolID string) (*questionnaire.Progress, error) {
	p, err := scanProgress(s.pool.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM user_progress WHERE user_id = $1 AND protocol_id = $2`, userID, protocolID))
	return p, pgNotFound(err)
}

func (s *PostgresStore) CreateProgressIfAbsent(ctx context.Context, p *questionnaire.Progress) (*questionnaire.Progress, error) {
	_, err := s.pool.Exec(ctx, `INSERT INTO user_progress (`+progressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) ON CONFLICT (user_id, protocol_id) DO NOTHING`,
		p.UserID, p.ProtocolID, p.LastSubmittedDay, p.CompletedDays, string(p.MaterialState), string(p.LogicBranch),
		string(p.LifecyclePhase), p.EndReason, p.StartedAt, p.LastSubmittedAt, p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s.GetProgress(ctx, p.UserID, p.ProtocolID)
}

func (s *PostgresStore) EndProgress(ctx context.Context, userID, protocolID, reason string, at time.Time) (*questionnaire.Progress, error) {
	_, err := s.pool.Exec(ctx, `UPDATE user_progress SET material_state = $1, end_reason = $2, updated_at = $3
		WHERE user_id = $4 AND protocol_id = $5 AND material_state <> $1`,
		string(questionnaire.StateEnded), reason, at, userID, protocolID)
	if err != nil {
		return nil, err
	}
	return s.GetProgress(ctx, userID, protocolID)
}

// snapshots

func (s *PostgresStore) GetSnapshot(ctx context.Context, userID, protocolID string, day int) (*questionnaire.Snapshot, error) {
	sn, err := scanSnapshot(s.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM question_snapshots WHERE user_id = $1 AND protocol_id = $2 AND test_day = $3`,
		userID, protocolID, day))
	return sn, pgNotFound(err)
}

func (s *PostgresStore) CreateSnapshotIfAbsent(ctx context.Context, sn *questionnaire.Snapshot) (*questionnaire.Snapshot, bool, error) {
	payload, err := encodeSnapshot(sn)
	if err != nil {
		return nil, false, err
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO question_snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (user_id, protocol_id, test_day) DO NOTHING`,
		sn.ID, sn.UserID, sn.ProtocolID, sn.TestDay, payload.questions, payload.context, payload.validation,
		string(sn.Source), sn.GeneratedAt)
	if err != nil {
		return nil, false, err
	}
	stored, err := s.GetSnapshot(ctx, sn.UserID, sn.ProtocolID, sn.TestDay)
	if err != nil {
		return nil, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, userID, protocolID string) ([]*questionnaire.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM question_snapshots WHERE user_id = $1 AND protocol_id = $2 ORDER BY test_day`,
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

func (s *PostgresStore) GetLog(ctx context.Context, userID, protocolID string, day int) (*questionnaire.DailyLog, error) {
	l, err := scanLog(s.pool.QueryRow(ctx,
		`SELECT `+logColumns+` FROM daily_logs WHERE user_id = $1 AND protocol_id = $2 AND test_day = $3`,
		userID, protocolID, day))
	return l, pgNotFound(err)
}

func (s *PostgresStore) SubmitDay(ctx context.Context, l *questionnaire.DailyLog, next *questionnaire.Progress) error {
	answers, scores, err := encodeLog(l)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO daily_logs (`+logColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.UserID, l.ProtocolID, l.TestDay, answers, scores, l.Remark,
		string(l.MaterialState), string(l.LogicBranch), string(l.LifecyclePhase), l.SubmittedAt)
	if isPgUnique(err) {
		return questionnaire.ErrDuplicate
	}
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `UPDATE user_progress SET last_submitted_day = $1, completed_days = $2, material_state = $3,
		logic_branch = $4, lifecycle_phase = $5, end_reason = $6, last_submitted_at = $7, updated_at = $8
		WHERE user_id = $9 AND protocol_id = $10 AND last_submitted_day = $11 AND material_state <> $12`,
		next.LastSubmittedDay, next.CompletedDays, string(next.MaterialState), string(next.LogicBranch),
		string(next.LifecyclePhase), next.EndReason, next.LastSubmittedAt, next.UpdatedAt,
		next.UserID, next.ProtocolID, l.TestDay-1, string(questionnaire.StateEnded))
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return questionnaire.ErrStaleProgress
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListLogs(ctx context.Context, userID, protocolID string) ([]*questionnaire.DailyLog, error) {
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM daily_logs WHERE user_id = $1 AND protocol_id = $2 ORDER BY test_day`, userID, protocolID)
}

func (s *PostgresStore) ListLogsByProtocol(ctx context.Context, protocolID string) ([]*questionnaire.DailyLog, error) {
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM daily_logs WHERE protocol_id = $1 ORDER BY user_id, test_day`, protocolID)
}

func (s *PostgresStore) queryLogs(ctx context.Context, query string, args ...any) ([]*questionnaire.DailyLog, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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
