package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite reads an archive database produced by the ingestion scripts
// (messagehub.db). The file is opened read-only; WAL reads still work
// cross-process, so ingestion and generation can overlap.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at path in read-only mode.
func NewSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

// NewSQLiteWithDB wraps an existing connection (used by tests).
func NewSQLiteWithDB(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) GetThread(ctx context.Context, id string) (*Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, platform, COALESCE(title, ''), COALESCE(participants_json, ''),
		       COALESCE(is_group, 0), COALESCE(last_activity_ms, 0), COALESCE(snippet, '')
		FROM threads WHERE id = ?`, id)
	return scanThread(row)
}

func (s *SQLite) ListThreads(ctx context.Context, platform string) ([]Thread, error) {
	q := `SELECT id, platform, COALESCE(title, ''), COALESCE(participants_json, ''),
	             COALESCE(is_group, 0), COALESCE(last_activity_ms, 0), COALESCE(snippet, '')
	      FROM threads`
	var args []any
	if platform != "" {
		q += ` WHERE platform = ?`
		args = append(args, platform)
	}
	q += ` ORDER BY last_activity_ms DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *SQLite) ThreadIDsByLabel(ctx context.Context, labels []string) ([]string, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(labels))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(labels))
	for i, l := range labels {
		args[i] = l
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tl.thread_id FROM thread_labels tl
		JOIN threads t ON t.id = tl.thread_id
		WHERE tl.label IN (`+placeholders+`)
		GROUP BY tl.thread_id
		ORDER BY MAX(COALESCE(t.last_activity_ms, 0)) ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("threads by label: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) ForEachRecord(ctx context.Context, threadID string, sinceMs, untilMs int64, fn func(Record) error) error {
	q := `SELECT thread_id, COALESCE(sender_name, ''), COALESCE(timestamp_ms, 0),
	             COALESCE(content, ''), COALESCE(media_json, ''), COALESCE(reactions_json, '')
	      FROM content WHERE thread_id = ?`
	args := []any{threadID}
	if sinceMs > 0 {
		q += ` AND timestamp_ms >= ?`
		args = append(args, sinceMs)
	}
	if untilMs > 0 {
		q += ` AND timestamp_ms < ?`
		args = append(args, untilMs)
	}
	q += ` ORDER BY timestamp_ms ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		var mediaJSON, reactionsJSON string
		if err := rows.Scan(&rec.ThreadID, &rec.SenderName, &rec.TimestampMs, &rec.Content, &mediaJSON, &reactionsJSON); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		rec.Media = decodeMedia(mediaJSON)
		rec.Reactions = decodeReactions(reactionsJSON)
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLite) OwnerNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT id_value FROM identities
		WHERE is_me = 1 AND id_type IN ('name', 'email')`)
	if err != nil {
		return nil, fmt.Errorf("owner names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*Thread, error) {
	var t Thread
	var participantsJSON string
	err := row.Scan(&t.ID, &t.Platform, &t.Title, &participantsJSON, &t.IsGroup, &t.LastActivityMs, &t.Snippet)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	t.Participants = decodeParticipants(participantsJSON)
	return &t, nil
}
