// Package store implements durable storage for the stage server on SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/botjam/stage/internal/domain"
)

const dateStamp = "2006-01-02"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS daily_challenges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL UNIQUE,
			song_title TEXT NOT NULL,
			song_artist TEXT NOT NULL,
			song_url TEXT NOT NULL,
			song_duration_ms INTEGER,
			prompt TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			daily_challenge_id INTEGER NOT NULL,
			agent_name TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			final_summary TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			run_start_at_ms INTEGER NOT NULL,
			live_slot TEXT,
			FOREIGN KEY (daily_challenge_id) REFERENCES daily_challenges(id)
		)`,
		// The single-live-run invariant: at most one row may hold the slot.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_live_slot ON runs(live_slot) WHERE live_slot IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status, id)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			ts DATETIME NOT NULL,
			at_ms INTEGER NOT NULL,
			type TEXT NOT NULL,
			text TEXT,
			patch TEXT,
			cmd TEXT,
			stdout TEXT,
			stderr TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, at_ms, id)`,
		`CREATE TABLE IF NOT EXISTS comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			ts DATETIME NOT NULL,
			name TEXT NOT NULL,
			text TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_run ON comments(run_id, id)`,
		`CREATE TABLE IF NOT EXISTS run_likes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			ts DATETIME NOT NULL,
			UNIQUE (run_id, source, name),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE TABLE IF NOT EXISTS agent_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_name TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_used_at DATETIME
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// UpsertDailyChallenge inserts or refreshes the challenge for its date and
// returns the stored row.
func (s *SQLiteStore) UpsertDailyChallenge(ctx context.Context, ch *domain.DailyChallenge) (*domain.DailyChallenge, error) {
	return upsertDailyChallenge(ctx, s.db, ch)
}

func upsertDailyChallenge(ctx context.Context, q dbtx, ch *domain.DailyChallenge) (*domain.DailyChallenge, error) {
	stamp := ch.Date.UTC().Format(dateStamp)
	_, err := q.ExecContext(ctx,
		`INSERT INTO daily_challenges (date, song_title, song_artist, song_url, song_duration_ms, prompt)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (date) DO UPDATE SET
			song_title = excluded.song_title,
			song_artist = excluded.song_artist,
			song_url = excluded.song_url,
			song_duration_ms = excluded.song_duration_ms,
			prompt = excluded.prompt`,
		stamp, ch.SongTitle, ch.SongArtist, ch.SongURL, nullInt64(ch.SongDurationMs), ch.Prompt)
	if err != nil {
		return nil, err
	}
	return scanChallenge(q.QueryRowContext(ctx,
		`SELECT id, date, song_title, song_artist, song_url, song_duration_ms, prompt, created_at
		 FROM daily_challenges WHERE date = ?`, stamp))
}

// GetDailyChallenge retrieves a challenge by id.
func (s *SQLiteStore) GetDailyChallenge(ctx context.Context, id int64) (*domain.DailyChallenge, error) {
	ch, err := scanChallenge(s.db.QueryRowContext(ctx,
		`SELECT id, date, song_title, song_artist, song_url, song_duration_ms, prompt, created_at
		 FROM daily_challenges WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ch, err
}

// CreateLiveRun atomically resolves the challenge and inserts a LIVE run
// holding the global live slot. A concurrent live run trips the partial
// unique index and surfaces as ErrConflict.
func (s *SQLiteStore) CreateLiveRun(ctx context.Context, ch *domain.DailyChallenge, agentName string, startedAt time.Time, runStartAtMs int64) (*domain.Run, *domain.DailyChallenge, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	stored, err := upsertDailyChallenge(ctx, tx, ch)
	if err != nil {
		return nil, nil, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (daily_challenge_id, agent_name, status, started_at, run_start_at_ms, live_slot)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		stored.ID, agentName, domain.RunStatusLive, startedAt, runStartAtMs, domain.LiveSlotGlobal)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, ErrConflict
		}
		return nil, nil, err
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, err
	}
	run, err := scanRun(tx.QueryRowContext(ctx, selectRun+` WHERE id = ?`, runID))
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return run, stored, nil
}

const selectRun = `SELECT id, daily_challenge_id, agent_name, status, started_at, ended_at, final_summary, created_at, run_start_at_ms, live_slot FROM runs`

// GetRun retrieves a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, runID int64) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetCurrentLiveRun returns the run currently holding the live slot, if any.
func (s *SQLiteStore) GetCurrentLiveRun(ctx context.Context) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		selectRun+` WHERE status = ? ORDER BY started_at DESC LIMIT 1`, domain.RunStatusLive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// TransitionRun conditionally moves a run from one status to another,
// clearing the live slot. The returned count is zero when the run was not in
// the expected status; the caller treats that as a conflict, never a retry.
func (s *SQLiteStore) TransitionRun(ctx context.Context, runID int64, from, to domain.RunStatus, endedAt time.Time, finalSummary *string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ?, final_summary = ?, live_slot = NULL
		 WHERE id = ? AND status = ?`,
		to, endedAt, nullString(finalSummary), runID, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FailLiveRun marks a live run FAILED and appends the terminal error event in
// the same transaction, so the failure is always visible on the timeline.
func (s *SQLiteStore) FailLiveRun(ctx context.Context, runID int64, reason string, atMs int64, endedAt time.Time) (*domain.Run, *domain.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ?, final_summary = ?, live_slot = NULL
		 WHERE id = ? AND status = ?`,
		domain.RunStatusFailed, endedAt, reason, runID, domain.RunStatusLive)
	if err != nil {
		return nil, nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, nil, err
	}
	if affected == 0 {
		return nil, nil, ErrConflict
	}

	evRes, err := tx.ExecContext(ctx,
		`INSERT INTO events (run_id, ts, at_ms, type, text, stderr) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, endedAt, atMs, domain.EventTypeError, reason, reason)
	if err != nil {
		return nil, nil, err
	}
	eventID, err := evRes.LastInsertId()
	if err != nil {
		return nil, nil, err
	}

	run, err := scanRun(tx.QueryRowContext(ctx, selectRun+` WHERE id = ?`, runID))
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	event := &domain.Event{
		ID:     eventID,
		RunID:  runID,
		Ts:     endedAt,
		AtMs:   atMs,
		Type:   domain.EventTypeError,
		Text:   &reason,
		Stderr: &reason,
	}
	return run, event, nil
}

// ListRuns returns non-live runs newest-first with challenge and counts,
// paged by id cursor.
func (s *SQLiteStore) ListRuns(ctx context.Context, cursor int64, limit int) ([]domain.RunWithChallenge, error) {
	query := `SELECT r.id, r.daily_challenge_id, r.agent_name, r.status, r.started_at, r.ended_at,
			r.final_summary, r.created_at, r.run_start_at_ms, r.live_slot,
			c.id, c.date, c.song_title, c.song_artist, c.song_url, c.song_duration_ms, c.prompt, c.created_at,
			(SELECT COUNT(*) FROM events e WHERE e.run_id = r.id),
			(SELECT COUNT(*) FROM comments m WHERE m.run_id = r.id),
			(SELECT COUNT(*) FROM run_likes l WHERE l.run_id = r.id)
		 FROM runs r
		 JOIN daily_challenges c ON c.id = r.daily_challenge_id
		 WHERE r.status != ?`
	args := []interface{}{domain.RunStatusLive}
	if cursor > 0 {
		query += ` AND r.id < ?`
		args = append(args, cursor)
	}
	query += ` ORDER BY r.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunWithChallenge
	for rows.Next() {
		var (
			run      domain.Run
			ch       domain.DailyChallenge
			counts   domain.RunCounts
			dateStr  string
			endedAt  sql.NullTime
			summary  sql.NullString
			liveSlot sql.NullString
			duration sql.NullInt64
		)
		if err := rows.Scan(
			&run.ID, &run.DailyChallengeID, &run.AgentName, &run.Status, &run.StartedAt, &endedAt,
			&summary, &run.CreatedAt, &run.RunStartAtMs, &liveSlot,
			&ch.ID, &dateStr, &ch.SongTitle, &ch.SongArtist, &ch.SongURL, &duration, &ch.Prompt, &ch.CreatedAt,
			&counts.Events, &counts.Comments, &counts.Likes,
		); err != nil {
			return nil, err
		}
		applyRunNullables(&run, endedAt, summary, liveSlot)
		if err := applyChallengeDate(&ch, dateStr, duration); err != nil {
			return nil, err
		}
		out = append(out, domain.RunWithChallenge{Run: run, DailyChallenge: &ch, Counts: &counts})
	}
	return out, rows.Err()
}

// RunCounts returns event/comment/like counts for one run.
func (s *SQLiteStore) RunCounts(ctx context.Context, runID int64) (*domain.RunCounts, error) {
	var counts domain.RunCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM events WHERE run_id = ?),
			(SELECT COUNT(*) FROM comments WHERE run_id = ?),
			(SELECT COUNT(*) FROM run_likes WHERE run_id = ?)`,
		runID, runID, runID).Scan(&counts.Events, &counts.Comments, &counts.Likes)
	if err != nil {
		return nil, err
	}
	return &counts, nil
}

// AppendEvent persists a new timeline event and returns it with its assigned
// id. Events are append-only; there is no update or delete path.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	if event.Ts.IsZero() {
		event.Ts = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, ts, at_ms, type, text, patch, cmd, stdout, stderr)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.RunID, event.Ts, event.AtMs, event.Type,
		nullString(event.Text), nullString(event.Patch), nullString(event.Cmd),
		nullString(event.Stdout), nullString(event.Stderr))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	event.ID = id
	return event, nil
}

// ListEvents returns events for a run in id order, paged by id cursor.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID int64, sinceID int64, limit int) ([]domain.Event, error) {
	query := `SELECT id, run_id, ts, at_ms, type, text, patch, cmd, stdout, stderr FROM events WHERE run_id = ?`
	args := []interface{}{runID}
	if sinceID > 0 {
		query += ` AND id > ?`
		args = append(args, sinceID)
	}
	query += ` ORDER BY id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var text, patch, cmd, stdout, stderr sql.NullString
		if err := rows.Scan(&event.ID, &event.RunID, &event.Ts, &event.AtMs, &event.Type,
			&text, &patch, &cmd, &stdout, &stderr); err != nil {
			return nil, err
		}
		event.Text = stringPtr(text)
		event.Patch = stringPtr(patch)
		event.Cmd = stringPtr(cmd)
		event.Stdout = stringPtr(stdout)
		event.Stderr = stringPtr(stderr)
		events = append(events, event)
	}
	return events, rows.Err()
}

// CreateComment persists a spectator comment.
func (s *SQLiteStore) CreateComment(ctx context.Context, runID int64, name, text string) (*domain.Comment, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (run_id, ts, name, text) VALUES (?, ?, ?, ?)`,
		runID, now, name, text)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.Comment{ID: id, RunID: runID, Ts: now, Name: name, Text: text}, nil
}

// ListComments returns a run's comments in id order.
func (s *SQLiteStore) ListComments(ctx context.Context, runID int64) ([]domain.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, ts, name, text FROM comments WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.RunID, &c.Ts, &c.Name, &c.Text); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// UpsertLike inserts a like if absent, otherwise returns the existing one
// with duplicate=true. Concurrent duplicates resolve through the uniqueness
// constraint, never through a pre-check.
func (s *SQLiteStore) UpsertLike(ctx context.Context, runID int64, name string, source domain.LikeSource) (*domain.Like, bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO run_likes (run_id, name, source, ts) VALUES (?, ?, ?, ?)`,
		runID, name, source, now)
	if err != nil {
		return nil, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	var like domain.Like
	err = s.db.QueryRowContext(ctx,
		`SELECT id, run_id, name, source, ts FROM run_likes WHERE run_id = ? AND source = ? AND name = ?`,
		runID, source, name).Scan(&like.ID, &like.RunID, &like.Name, &like.Source, &like.Ts)
	if err != nil {
		return nil, false, err
	}
	return &like, affected == 0, nil
}

// ListLikes returns a run's likes newest-first.
func (s *SQLiteStore) ListLikes(ctx context.Context, runID int64) ([]domain.Like, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, name, source, ts FROM run_likes WHERE run_id = ? ORDER BY id DESC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var likes []domain.Like
	for rows.Next() {
		var like domain.Like
		if err := rows.Scan(&like.ID, &like.RunID, &like.Name, &like.Source, &like.Ts); err != nil {
			return nil, err
		}
		likes = append(likes, like)
	}
	return likes, rows.Err()
}

// CreateAgentToken stores a hashed agent token. A hash collision surfaces as
// ErrConflict so the caller can mint a fresh token.
func (s *SQLiteStore) CreateAgentToken(ctx context.Context, agentName, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_tokens (agent_name, token_hash) VALUES (?, ?)`,
		agentName, tokenHash)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// GetAgentTokenByHash looks up a token by its hash.
func (s *SQLiteStore) GetAgentTokenByHash(ctx context.Context, tokenHash string) (*domain.AgentToken, error) {
	var token domain.AgentToken
	var lastUsedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_name, token_hash, created_at, last_used_at FROM agent_tokens WHERE token_hash = ?`,
		tokenHash).Scan(&token.ID, &token.AgentName, &token.TokenHash, &token.CreatedAt, &lastUsedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastUsedAt.Valid {
		token.LastUsedAt = &lastUsedAt.Time
	}
	return &token, nil
}

// TouchAgentToken records when a token was last presented.
func (s *SQLiteStore) TouchAgentToken(ctx context.Context, tokenHash string, usedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agent_tokens SET last_used_at = ? WHERE token_hash = ?`, usedAt, tokenHash)
	return err
}

func scanChallenge(row *sql.Row) (*domain.DailyChallenge, error) {
	var ch domain.DailyChallenge
	var dateStr string
	var duration sql.NullInt64
	if err := row.Scan(&ch.ID, &dateStr, &ch.SongTitle, &ch.SongArtist, &ch.SongURL, &duration, &ch.Prompt, &ch.CreatedAt); err != nil {
		return nil, err
	}
	if err := applyChallengeDate(&ch, dateStr, duration); err != nil {
		return nil, err
	}
	return &ch, nil
}

func applyChallengeDate(ch *domain.DailyChallenge, dateStr string, duration sql.NullInt64) error {
	date, err := time.ParseInLocation(dateStamp, dateStr, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid challenge date %q: %w", dateStr, err)
	}
	ch.Date = date
	if duration.Valid {
		ch.SongDurationMs = &duration.Int64
	}
	return nil
}

func scanRun(row *sql.Row) (*domain.Run, error) {
	var run domain.Run
	var endedAt sql.NullTime
	var summary, liveSlot sql.NullString
	if err := row.Scan(&run.ID, &run.DailyChallengeID, &run.AgentName, &run.Status, &run.StartedAt,
		&endedAt, &summary, &run.CreatedAt, &run.RunStartAtMs, &liveSlot); err != nil {
		return nil, err
	}
	applyRunNullables(&run, endedAt, summary, liveSlot)
	return &run, nil
}

func applyRunNullables(run *domain.Run, endedAt sql.NullTime, summary, liveSlot sql.NullString) {
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	run.FinalSummary = stringPtr(summary)
	run.LiveSlot = stringPtr(liveSlot)
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
