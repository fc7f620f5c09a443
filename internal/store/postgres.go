package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres serves archives that were ingested into a Postgres database
// instead of a local SQLite file. Same schema, $n placeholders.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) GetThread(ctx context.Context, id string) (*Thread, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, platform, COALESCE(title, ''), COALESCE(participants_json, ''),
		       COALESCE(is_group, false), COALESCE(last_activity_ms, 0), COALESCE(snippet, '')
		FROM threads WHERE id = $1`, id)

	var t Thread
	var participantsJSON string
	err := row.Scan(&t.ID, &t.Platform, &t.Title, &participantsJSON, &t.IsGroup, &t.LastActivityMs, &t.Snippet)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	t.Participants = decodeParticipants(participantsJSON)
	return &t, nil
}

func (s *Postgres) ListThreads(ctx context.Context, platform string) ([]Thread, error) {
	q := `SELECT id, platform, COALESCE(title, ''), COALESCE(participants_json, ''),
	             COALESCE(is_group, false), COALESCE(last_activity_ms, 0), COALESCE(snippet, '')
	      FROM threads`
	var args []any
	if platform != "" {
		q += ` WHERE platform = $1`
		args = append(args, platform)
	}
	q += ` ORDER BY last_activity_ms DESC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		var t Thread
		var participantsJSON string
		if err := rows.Scan(&t.ID, &t.Platform, &t.Title, &participantsJSON, &t.IsGroup, &t.LastActivityMs, &t.Snippet); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		t.Participants = decodeParticipants(participantsJSON)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Postgres) ThreadIDsByLabel(ctx context.Context, labels []string) ([]string, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT tl.thread_id FROM thread_labels tl
		JOIN threads t ON t.id = tl.thread_id
		WHERE tl.label = ANY($1)
		GROUP BY tl.thread_id
		ORDER BY MAX(COALESCE(t.last_activity_ms, 0)) ASC`, labels)
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

func (s *Postgres) ForEachRecord(ctx context.Context, threadID string, sinceMs, untilMs int64, fn func(Record) error) error {
	q := `SELECT thread_id, COALESCE(sender_name, ''), COALESCE(timestamp_ms, 0),
	             COALESCE(content, ''), COALESCE(media_json, ''), COALESCE(reactions_json, '')
	      FROM content WHERE thread_id = $1`
	args := []any{threadID}
	n := 2
	if sinceMs > 0 {
		q += fmt.Sprintf(` AND timestamp_ms >= $%d`, n)
		args = append(args, sinceMs)
		n++
	}
	if untilMs > 0 {
		q += fmt.Sprintf(` AND timestamp_ms < $%d`, n)
		args = append(args, untilMs)
	}
	q += ` ORDER BY timestamp_ms ASC`

	rows, err := s.pool.Query(ctx, q, args...)
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

func (s *Postgres) OwnerNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT id_value FROM identities
		WHERE is_me AND id_type IN ('name', 'email')`)
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
