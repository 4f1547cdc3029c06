package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"beetbot/internal/beets"
	"beetbot/internal/logging"
)

// Store persists sessions in SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open initializes or connects to the session database and applies
// migrations. A database that fails the migration or integrity step is moved
// aside and recreated empty rather than failing startup.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithComponent(logger, "session-store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}

	store, err := open(path, logger)
	if err == nil {
		return store, nil
	}

	backup := path + ".corrupt." + time.Now().UTC().Format("20060102T150405")
	logger.Warn("session database unusable, recreating",
		slog.String("path", path),
		slog.String("backup", backup),
		slog.String("error", err.Error()))
	if renameErr := os.Rename(path, backup); renameErr != nil && !errors.Is(renameErr, os.ErrNotExist) {
		return nil, fmt.Errorf("move corrupt database aside: %w", renameErr)
	}
	return open(path, logger)
}

func open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

const sessionColumns = "target_id, name, step, candidates_json, selected_index, pending_input, revision, created_at, updated_at"

// Save upserts the whole session row in one statement.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	candidatesJSON, err := marshalCandidates(sess.Candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(target_id) DO UPDATE SET
            name = excluded.name,
            step = excluded.step,
            candidates_json = excluded.candidates_json,
            selected_index = excluded.selected_index,
            pending_input = excluded.pending_input,
            revision = excluded.revision,
            updated_at = excluded.updated_at`,
		sess.TargetID,
		sess.Name,
		string(sess.Step),
		candidatesJSON,
		sess.SelectedIndex,
		string(sess.Pending),
		sess.Revision,
		sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		sess.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get loads one session by target. Returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, targetID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE target_id = ?", targetID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, targetID)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns all sessions ordered by most recent activity. Rows that fail
// to decode are skipped and logged so one bad row never hides the rest.
func (s *Store) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			s.logger.Warn("skipping undecodable session row", slog.String("error", err.Error()))
			continue
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Active returns the non-terminal sessions.
func (s *Store) Active(ctx context.Context) ([]*Session, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, sess := range all {
		if !sess.Step.Terminal() {
			active = append(active, sess)
		}
	}
	return active, nil
}

// Delete removes a session row. It reports whether a row existed.
func (s *Store) Delete(ctx context.Context, targetID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE target_id = ?`, targetID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearTerminal removes completed, failed, cancelled, and skipped sessions.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE step IN (?, ?, ?, ?)`,
		string(StepCompleted), string(StepFailed), string(StepCancelled), string(StepSkipped))
	if err != nil {
		return 0, fmt.Errorf("clear terminal sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// Stats counts sessions per step.
func (s *Store) Stats(ctx context.Context) (map[Step]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT step, COUNT(*) FROM sessions GROUP BY step`)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Step]int)
	for rows.Next() {
		var (
			step  string
			count int
		)
		if err := rows.Scan(&step, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Step(step)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

func marshalCandidates(candidates []beets.Candidate) (any, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		sess           Session
		step           string
		candidatesJSON sql.NullString
		pending        string
		createdAt      string
		updatedAt      string
	)
	if err := scanner.Scan(
		&sess.TargetID,
		&sess.Name,
		&step,
		&candidatesJSON,
		&sess.SelectedIndex,
		&pending,
		&sess.Revision,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	sess.Step = Step(step)
	if !ValidStep(sess.Step) {
		return nil, fmt.Errorf("unknown step %q for target %s", step, sess.TargetID)
	}
	sess.Pending = PendingInput(pending)

	if candidatesJSON.Valid && candidatesJSON.String != "" {
		if err := json.Unmarshal([]byte(candidatesJSON.String), &sess.Candidates); err != nil {
			return nil, fmt.Errorf("decode candidates for target %s: %w", sess.TargetID, err)
		}
	}

	var err error
	if sess.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for target %s: %w", sess.TargetID, err)
	}
	if sess.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for target %s: %w", sess.TargetID, err)
	}
	return &sess, nil
}

func parseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
