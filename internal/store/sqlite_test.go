package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE threads (
	id TEXT PRIMARY KEY,
	platform TEXT NOT NULL,
	title TEXT,
	participants_json TEXT,
	is_group INTEGER,
	last_activity_ms INTEGER,
	snippet TEXT
);
CREATE TABLE thread_labels (
	thread_id TEXT NOT NULL,
	label TEXT NOT NULL
);
CREATE TABLE content (
	thread_id TEXT NOT NULL,
	sender_name TEXT,
	timestamp_ms INTEGER,
	content TEXT,
	media_json TEXT,
	reactions_json TEXT,
	share_json TEXT,
	annotations_json TEXT
);
CREATE TABLE identities (
	platform TEXT,
	id_type TEXT,
	id_value TEXT,
	is_me INTEGER
);
`

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewSQLiteWithDB(db)
}

func seed(t *testing.T, s *SQLite, query string, args ...any) {
	t.Helper()
	if _, err := s.db.Exec(query, args...); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSQLite_GetThread(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, `INSERT INTO threads VALUES ('t1', 'facebook', 'Sam Lee', '["Alex Morgan","Sam Lee"]', 0, 1700000000000, 'see you there')`)

	th, err := s.GetThread(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if th.Platform != "facebook" || th.Title != "Sam Lee" {
		t.Errorf("thread = %+v", th)
	}
	if len(th.Participants) != 2 || th.Participants[0] != "Alex Morgan" {
		t.Errorf("participants = %v", th.Participants)
	}

	if _, err := s.GetThread(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing thread error = %v, want ErrNotFound", err)
	}
}

func TestSQLite_GetThread_NullColumns(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, `INSERT INTO threads (id, platform) VALUES ('t1', 'instagram')`)

	th, err := s.GetThread(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if th.Title != "" || th.Participants != nil || th.IsGroup || th.Snippet != "" {
		t.Errorf("null columns should scan to zero values: %+v", th)
	}
}

func TestSQLite_ListThreads(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, `INSERT INTO threads (id, platform, last_activity_ms) VALUES
		('old', 'facebook', 100),
		('new', 'facebook', 200),
		('ig', 'instagram', 300)`)

	all, err := s.ListThreads(context.Background(), "")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d threads, want 3", len(all))
	}
	if all[0].ID != "ig" || all[1].ID != "new" {
		t.Errorf("not ordered by last activity desc: %v, %v", all[0].ID, all[1].ID)
	}

	fb, err := s.ListThreads(context.Background(), "facebook")
	if err != nil {
		t.Fatalf("ListThreads(facebook): %v", err)
	}
	if len(fb) != 2 {
		t.Errorf("platform filter returned %d threads, want 2", len(fb))
	}
}

func TestSQLite_ThreadIDsByLabel(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, `INSERT INTO threads (id, platform, last_activity_ms) VALUES
		('a', 'facebook', 300), ('b', 'facebook', 100), ('c', 'facebook', 200)`)
	seed(t, s, `INSERT INTO thread_labels VALUES
		('a', 'post'), ('b', 'post'), ('b', 'checkin'), ('c', 'event')`)

	ids, err := s.ThreadIDsByLabel(context.Background(), []string{"post", "checkin"})
	if err != nil {
		t.Fatalf("ThreadIDsByLabel: %v", err)
	}
	// b carries both labels but appears once; ascending activity order.
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "a" {
		t.Errorf("ids = %v, want [b a]", ids)
	}

	none, err := s.ThreadIDsByLabel(context.Background(), nil)
	if err != nil || none != nil {
		t.Errorf("empty label list: ids=%v err=%v", none, err)
	}
}

func TestSQLite_ForEachRecord(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, `INSERT INTO content (thread_id, sender_name, timestamp_ms, content, reactions_json) VALUES
		('t1', 'Sam Lee', 200, 'second', NULL),
		('t1', 'Sam Lee', 100, 'first', '[{"reaction":"❤️","actor":"Alex Morgan"}]'),
		('t1', 'Sam Lee', 300, 'third', NULL),
		('t2', 'Riley', 150, 'other thread', NULL)`)

	var got []Record
	err := s.ForEachRecord(context.Background(), "t1", 0, 0, func(r Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachRecord: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	if got[0].Content != "first" || got[2].Content != "third" {
		t.Errorf("not in timestamp order: %v", got)
	}
	if len(got[0].Reactions) != 1 || got[0].Reactions[0].Reaction != "❤️" {
		t.Errorf("reactions = %v", got[0].Reactions)
	}
}

func TestSQLite_ForEachRecord_TimeBounds(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, `INSERT INTO content (thread_id, sender_name, timestamp_ms, content) VALUES
		('t1', 'Sam', 100, 'early'), ('t1', 'Sam', 200, 'mid'), ('t1', 'Sam', 300, 'late')`)

	var got []string
	err := s.ForEachRecord(context.Background(), "t1", 200, 300, func(r Record) error {
		got = append(got, r.Content)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachRecord: %v", err)
	}
	// since is inclusive, until exclusive.
	if len(got) != 1 || got[0] != "mid" {
		t.Errorf("bounded records = %v, want [mid]", got)
	}
}

func TestSQLite_ForEachRecord_CorruptSidecarJSON(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, `INSERT INTO content (thread_id, sender_name, timestamp_ms, content, media_json, reactions_json) VALUES
		('t1', 'Sam', 100, 'hello', '{not json', 'also not json')`)

	var got []Record
	err := s.ForEachRecord(context.Background(), "t1", 0, 0, func(r Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("corrupt sidecar JSON must not fail the row: %v", err)
	}
	if len(got) != 1 || got[0].Media != nil || got[0].Reactions != nil {
		t.Errorf("records = %+v", got)
	}
}

func TestSQLite_ForEachRecord_CallbackErrorStops(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, `INSERT INTO content (thread_id, sender_name, timestamp_ms, content) VALUES
		('t1', 'Sam', 100, 'one'), ('t1', 'Sam', 200, 'two')`)

	wantErr := errors.New("stop")
	calls := 0
	err := s.ForEachRecord(context.Background(), "t1", 0, 0, func(Record) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want propagated callback error", err)
	}
	if calls != 1 {
		t.Errorf("callback ran %d times after error, want 1", calls)
	}
}

func TestSQLite_OwnerNames(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, `INSERT INTO identities VALUES
		('facebook', 'name', 'Alex Morgan', 1),
		('google_mail', 'email', 'alex@example.com', 1),
		('google_mail', 'email', 'alex@example.com', 1),
		('facebook', 'name', 'Sam Lee', 0)`)

	names, err := s.OwnerNames(context.Background())
	if err != nil {
		t.Fatalf("OwnerNames: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v, want 2 distinct owner identities", names)
	}
	for _, n := range names {
		if n == "Sam Lee" {
			t.Error("non-owner identity leaked into OwnerNames")
		}
	}
}
