package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"studioregister/internal/model"
)

// Remote mirrors the local collections into Postgres, one table per
// collection, keyed by record id. It is best-effort: callers treat every
// method as advisory and fall back to local data on error.
type Remote struct {
	db *sql.DB
}

// OpenRemote connects to Postgres and bootstraps the mirror schema.
func OpenRemote(connString string) (*Remote, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &Remote{db: db}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate remote: %w", err)
	}
	return r, nil
}

// Close closes the underlying connection pool.
func (r *Remote) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Healthy verifies remote connectivity.
func (r *Remote) Healthy(ctx context.Context) bool {
	return r != nil && r.db != nil && r.db.PingContext(ctx) == nil
}

func (r *Remote) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS classes (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		color      TEXT NOT NULL DEFAULT '',
		state      TEXT NOT NULL DEFAULT 'active',
		synced     BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS students (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		class_id   TEXT NOT NULL,
		joined_at  TIMESTAMPTZ NOT NULL,
		archived   BOOLEAN NOT NULL DEFAULT FALSE,
		state      TEXT NOT NULL DEFAULT 'active',
		synced     BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		class_id   TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		closed_at  TIMESTAMPTZ,
		marks      JSONB NOT NULL DEFAULT '{}',
		state      TEXT NOT NULL DEFAULT 'active',
		synced     BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS points (
		id         TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		class_id   TEXT NOT NULL,
		reason     TEXT NOT NULL,
		points     INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		state      TEXT NOT NULL DEFAULT 'active',
		synced     BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS awards (
		id          TEXT PRIMARY KEY,
		award_id    TEXT NOT NULL,
		student_id  TEXT NOT NULL,
		class_id    TEXT NOT NULL,
		period_type TEXT NOT NULL,
		period_key  TEXT NOT NULL,
		unlocked_at TIMESTAMPTZ NOT NULL,
		decided_by  TEXT NOT NULL,
		state       TEXT NOT NULL DEFAULT 'active',
		synced      BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_students_class ON students(class_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_class ON sessions(class_id);
	CREATE INDEX IF NOT EXISTS idx_points_student ON points(student_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_awards_unique ON awards(award_id, student_id, period_key);
	`
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// UpsertClasses writes classes keyed by id, insert-or-replace.
func (r *Remote) UpsertClasses(ctx context.Context, records []model.DanceClass) error {
	for _, c := range records {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO classes (id, name, color, state, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				color = EXCLUDED.color,
				state = EXCLUDED.state,
				updated_at = EXCLUDED.updated_at
		`, c.ID, c.Name, c.Color, lifecycle(c.State), c.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// SelectClasses returns all mirrored classes, soft-deleted ones included so
// deletions propagate through the merge.
func (r *Remote) SelectClasses(ctx context.Context) ([]model.DanceClass, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, color, state, updated_at FROM classes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DanceClass
	for rows.Next() {
		var c model.DanceClass
		var state string
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &state, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.State = model.Lifecycle(state)
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertStudents writes students keyed by id.
func (r *Remote) UpsertStudents(ctx context.Context, records []model.Student) error {
	for _, s := range records {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO students (id, name, class_id, joined_at, archived, state, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				class_id = EXCLUDED.class_id,
				joined_at = EXCLUDED.joined_at,
				archived = EXCLUDED.archived,
				state = EXCLUDED.state,
				updated_at = EXCLUDED.updated_at
		`, s.ID, s.Name, s.ClassID, s.JoinedAt, s.Archived, lifecycle(s.State), s.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// SelectStudents returns all mirrored students.
func (r *Remote) SelectStudents(ctx context.Context) ([]model.Student, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, class_id, joined_at, archived, state, updated_at FROM students`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Student
	for rows.Next() {
		var s model.Student
		var state string
		if err := rows.Scan(&s.ID, &s.Name, &s.ClassID, &s.JoinedAt, &s.Archived, &state, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.State = model.Lifecycle(state)
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertSessions writes register sessions keyed by id; marks travel as JSON.
func (r *Remote) UpsertSessions(ctx context.Context, records []model.RegisterSession) error {
	for _, s := range records {
		marks, err := json.Marshal(s.Marks)
		if err != nil {
			return fmt.Errorf("encode marks for %s: %w", s.ID, err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO sessions (id, class_id, started_at, closed_at, marks, state, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				class_id = EXCLUDED.class_id,
				started_at = EXCLUDED.started_at,
				closed_at = EXCLUDED.closed_at,
				marks = EXCLUDED.marks,
				state = EXCLUDED.state,
				updated_at = EXCLUDED.updated_at
		`, s.ID, s.ClassID, s.StartedAt, s.ClosedAt, string(marks), lifecycle(s.State), s.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// SelectSessions returns all mirrored register sessions.
func (r *Remote) SelectSessions(ctx context.Context) ([]model.RegisterSession, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, class_id, started_at, closed_at, marks, state, updated_at FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RegisterSession
	for rows.Next() {
		var s model.RegisterSession
		var state, marks string
		if err := rows.Scan(&s.ID, &s.ClassID, &s.StartedAt, &s.ClosedAt, &marks, &state, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(marks), &s.Marks); err != nil {
			return nil, fmt.Errorf("decode marks for %s: %w", s.ID, err)
		}
		s.State = model.Lifecycle(state)
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertPoints writes point events keyed by id.
func (r *Remote) UpsertPoints(ctx context.Context, records []model.PointEvent) error {
	for _, p := range records {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO points (id, student_id, class_id, reason, points, created_at, session_id, state, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				student_id = EXCLUDED.student_id,
				class_id = EXCLUDED.class_id,
				reason = EXCLUDED.reason,
				points = EXCLUDED.points,
				created_at = EXCLUDED.created_at,
				session_id = EXCLUDED.session_id,
				state = EXCLUDED.state,
				updated_at = EXCLUDED.updated_at
		`, p.ID, p.StudentID, p.ClassID, p.Reason, p.Points, p.CreatedAt, p.SessionID, lifecycle(p.State), p.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// SelectPoints returns all mirrored point events.
func (r *Remote) SelectPoints(ctx context.Context) ([]model.PointEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, student_id, class_id, reason, points, created_at, session_id, state, updated_at FROM points`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PointEvent
	for rows.Next() {
		var p model.PointEvent
		var state string
		if err := rows.Scan(&p.ID, &p.StudentID, &p.ClassID, &p.Reason, &p.Points, &p.CreatedAt, &p.SessionID, &state, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.State = model.Lifecycle(state)
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertAwards writes award unlocks keyed by id.
func (r *Remote) UpsertAwards(ctx context.Context, records []model.AwardUnlock) error {
	for _, a := range records {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO awards (id, award_id, student_id, class_id, period_type, period_key, unlocked_at, decided_by, state, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				state = EXCLUDED.state,
				updated_at = EXCLUDED.updated_at
		`, a.ID, string(a.AwardID), a.StudentID, a.ClassID, string(a.Period.Type), a.Period.Key, a.UnlockedAt, string(a.DecidedBy), lifecycle(a.State), a.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// SelectAwards returns all mirrored award unlocks.
func (r *Remote) SelectAwards(ctx context.Context) ([]model.AwardUnlock, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, award_id, student_id, class_id, period_type, period_key, unlocked_at, decided_by, state, updated_at FROM awards`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AwardUnlock
	for rows.Next() {
		var a model.AwardUnlock
		var awardID, periodType, decidedBy, state string
		if err := rows.Scan(&a.ID, &awardID, &a.StudentID, &a.ClassID, &periodType, &a.Period.Key, &a.UnlockedAt, &decidedBy, &state, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.AwardID = model.AwardID(awardID)
		a.Period.Type = model.PeriodType(periodType)
		a.DecidedBy = model.Decider(decidedBy)
		a.State = model.Lifecycle(state)
		out = append(out, a)
	}
	return out, rows.Err()
}

// lifecycle normalizes the zero value so older local records round-trip.
func lifecycle(s model.Lifecycle) string {
	if s == "" {
		return string(model.LifecycleActive)
	}
	return string(s)
}
