package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StateInterrupted marks captures that never finished because the process
// stopped.
const StateInterrupted = "interrupted"

// Capture is one ledger row.
type Capture struct {
	ID            string
	State         string
	Tray          string
	Imaged        bool
	CoverPath     string
	ErrorMessage  string
	CloseFailures int
	StartedAt     time.Time
	UpdatedAt     time.Time
	FinishedAt    time.Time
}

// Finished reports whether the capture reached a terminal state.
func (c Capture) Finished() bool {
	return !c.FinishedAt.IsZero()
}

// Outcome is what a finished capture records.
type Outcome struct {
	State         string
	Tray          string
	Imaged        bool
	CoverPath     string
	Errors        []string
	CloseFailures int
}

// Stats summarises the ledger.
type Stats struct {
	Total      int
	Done       int
	Error      int
	InFlight   int
	LastFinish time.Time
}

const captureColumns = `id, state, tray, imaged, cover_path, error_message, close_failures, started_at, updated_at, finished_at`

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Begin inserts a new capture row. Beginning an existing id is a no-op so a
// worker can record a capture the supervisor already opened.
func (s *Store) Begin(ctx context.Context, id, state string, startedAt time.Time) error {
	ts := formatTime(startedAt)
	if _, err := s.exec(ctx,
		`INSERT INTO captures (id, state, started_at, updated_at) VALUES (?, ?, ?, ?)
            ON CONFLICT(id) DO NOTHING`,
		id, state, ts, ts,
	); err != nil {
		return fmt.Errorf("insert capture %s: %w", id, err)
	}
	return nil
}

// UpdateState records the latest machine state reached by a capture.
func (s *Store) UpdateState(ctx context.Context, id, state string) error {
	res, err := s.exec(ctx,
		`UPDATE captures SET state = ?, updated_at = ? WHERE id = ?`,
		state, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update capture %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Finish records the outcome of a capture.
func (s *Store) Finish(ctx context.Context, id string, out Outcome) error {
	now := formatTime(time.Now())
	res, err := s.exec(ctx,
		`UPDATE captures
            SET state = ?, tray = ?, imaged = ?, cover_path = ?, error_message = ?,
                close_failures = ?, updated_at = ?, finished_at = ?
          WHERE id = ?`,
		out.State, out.Tray, boolToInt(out.Imaged), out.CoverPath, strings.Join(out.Errors, "; "),
		out.CloseFailures, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("finish capture %s: %w", id, err)
	}
	return requireRow(res, id)
}

// MarkInterrupted closes every unfinished row, returning how many changed.
func (s *Store) MarkInterrupted(ctx context.Context, reason string) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.exec(ctx,
		`UPDATE captures
            SET state = ?, error_message = CASE WHEN error_message = '' THEN ? ELSE error_message || '; ' || ? END,
                updated_at = ?, finished_at = ?
          WHERE finished_at IS NULL`,
		StateInterrupted, reason, reason, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted captures: %w", err)
	}
	return res.RowsAffected()
}

// Get returns one capture or nil when unknown.
func (s *Store) Get(ctx context.Context, id string) (*Capture, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+captureColumns+` FROM captures WHERE id = ?`, id)
	c, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get capture %s: %w", id, err)
	}
	return c, nil
}

// Recent returns up to limit captures, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Capture, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+captureColumns+` FROM captures ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Stats summarises every capture in the ledger.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		st         Stats
		lastFinish sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT
            COUNT(1),
            COALESCE(SUM(CASE WHEN tray = 'done' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN tray = 'error' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN finished_at IS NULL THEN 1 ELSE 0 END), 0),
            MAX(finished_at)
        FROM captures`).Scan(&st.Total, &st.Done, &st.Error, &st.InFlight, &lastFinish)
	if err != nil {
		return Stats{}, fmt.Errorf("capture stats: %w", err)
	}
	if lastFinish.Valid {
		st.LastFinish, _ = time.Parse(timeLayout, lastFinish.String)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(row rowScanner) (*Capture, error) {
	var (
		c                Capture
		imaged           int
		started, updated string
		finished         sql.NullString
	)
	if err := row.Scan(&c.ID, &c.State, &c.Tray, &imaged, &c.CoverPath, &c.ErrorMessage,
		&c.CloseFailures, &started, &updated, &finished); err != nil {
		return nil, err
	}
	c.Imaged = imaged != 0
	c.StartedAt, _ = time.Parse(timeLayout, started)
	c.UpdatedAt, _ = time.Parse(timeLayout, updated)
	if finished.Valid {
		c.FinishedAt, _ = time.Parse(timeLayout, finished.String)
	}
	return &c, nil
}

func requireRow(res interface{ RowsAffected() (int64, error) }, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("capture %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
