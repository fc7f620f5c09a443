package dataset

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dataforge-ai/dataforge/internal/store"
)

// fakeStore serves canned threads and records so generation runs without a
// database.
type fakeStore struct {
	threads map[string]*store.Thread
	records map[string][]store.Record
	labeled map[string][]string
	owners  []string
}

func (f *fakeStore) GetThread(_ context.Context, id string) (*store.Thread, error) {
	t, ok := f.threads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) ListThreads(_ context.Context, platform string) ([]store.Thread, error) {
	var out []store.Thread
	for _, t := range f.threads {
		if platform == "" || t.Platform == platform {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) ThreadIDsByLabel(_ context.Context, labels []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, l := range labels {
		for _, id := range f.labeled[l] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ForEachRecord(_ context.Context, threadID string, sinceMs, untilMs int64, fn func(store.Record) error) error {
	for _, r := range f.records[threadID] {
		if sinceMs != 0 && r.TimestampMs < sinceMs {
			continue
		}
		if untilMs != 0 && r.TimestampMs >= untilMs {
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) OwnerNames(_ context.Context) ([]string, error) { return f.owners, nil }

func (f *fakeStore) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chatRecord(sender, content string, ts int64) store.Record {
	return store.Record{SenderName: sender, Content: content, TimestampMs: ts}
}

func collectShards(t *testing.T, g *Generator, req Request) []Shard {
	t.Helper()
	var shards []Shard
	err := g.Generate(context.Background(), req, func(s Shard) error {
		shards = append(shards, s)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return shards
}

func TestGenerate_GapSplitsSessions(t *testing.T) {
	const twoHoursMs = 2 * 60 * 60 * 1000
	fs := &fakeStore{
		threads: map[string]*store.Thread{
			"t1": {ID: "t1", Platform: "facebook", Participants: []string{"Alex Morgan", "Sam Lee"}},
		},
		records: map[string][]store.Record{
			"t1": {
				chatRecord("Sam Lee", "hey, you around?", 1_000),
				chatRecord("Alex Morgan", "yeah what's up", 2_000),
				// Past the session gap: a fresh exchange.
				chatRecord("Sam Lee", "forgot to ask about tomorrow", 2_000+twoHoursMs+1),
				chatRecord("Alex Morgan", "noon works for me", 3_000+twoHoursMs+1),
			},
		},
	}
	g := NewGenerator(fs, lenCounter{}, testLogger())

	shards := collectShards(t, g, Request{
		ThreadIDs:     []string{"t1"},
		IdentityNames: []string{"Alex Morgan"},
		Options:       DefaultOptions(),
	})

	if len(shards) != 1 {
		t.Fatalf("expected 1 shard, got %d", len(shards))
	}
	lines := strings.Split(strings.TrimSuffix(shards[0].Content, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 sessions across the gap, got %d: %q", len(lines), shards[0].Content)
	}
	if shards[0].FileName != "dataset.jsonl" {
		t.Errorf("shard name = %q", shards[0].FileName)
	}
}

func TestGenerate_OwnerNamesFallback(t *testing.T) {
	fs := &fakeStore{
		threads: map[string]*store.Thread{
			"t1": {ID: "t1", Platform: "instagram", Participants: []string{"Alex Morgan", "Sam Lee"}},
		},
		records: map[string][]store.Record{
			"t1": {
				chatRecord("Sam Lee", "did you see this?", 1_000),
				chatRecord("Alex Morgan", "just did, wild", 2_000),
			},
		},
		owners: []string{"Alex Morgan"},
	}
	g := NewGenerator(fs, lenCounter{}, testLogger())

	shards := collectShards(t, g, Request{
		ThreadIDs: []string{"t1"},
		Options:   DefaultOptions(),
	})

	if len(shards) != 1 {
		t.Fatalf("expected 1 shard, got %d", len(shards))
	}
	if !strings.Contains(shards[0].Content, `"role":"assistant","content":"just did, wild"`) {
		t.Errorf("discovered owner not mapped to assistant:\n%s", shards[0].Content)
	}
}

func TestGenerate_SkipsUnknownThread(t *testing.T) {
	fs := &fakeStore{
		threads: map[string]*store.Thread{},
		records: map[string][]store.Record{},
	}
	g := NewGenerator(fs, lenCounter{}, testLogger())

	shards := collectShards(t, g, Request{
		ThreadIDs:     []string{"no-such-thread"},
		IdentityNames: []string{"Alex Morgan"},
		Options:       DefaultOptions(),
	})
	if len(shards) != 0 {
		t.Errorf("unknown thread should produce nothing, got %d shards", len(shards))
	}
}

func TestGenerate_MailThreadPairs(t *testing.T) {
	fs := &fakeStore{
		threads: map[string]*store.Thread{
			"m1": {ID: "m1", Platform: "google_mail", Title: "Invoice #42", Participants: []string{"Alex Morgan", "billing@acme.example"}},
		},
		records: map[string][]store.Record{
			"m1": {
				chatRecord("Acme Billing", "Your invoice is attached, please confirm receipt.", 1_000),
				chatRecord("Alex Morgan", "Received, thanks.", 90_000_000),
			},
		},
	}
	g := NewGenerator(fs, lenCounter{}, testLogger())

	shards := collectShards(t, g, Request{
		ThreadIDs:     []string{"m1"},
		IdentityNames: []string{"Alex Morgan"},
		Options:       DefaultOptions(),
	})

	if len(shards) != 1 {
		t.Fatalf("expected 1 shard, got %d", len(shards))
	}
	content := shards[0].Content
	if !strings.Contains(content, "Subject: Invoice #42") {
		t.Errorf("mail session missing subject line:\n%s", content)
	}
	if !strings.Contains(content, "replying to email") {
		t.Errorf("mail session should use the mail system prompt:\n%s", content)
	}
}

func TestGenerate_PostsPseudoThreadHistory(t *testing.T) {
	fs := &fakeStore{
		threads: map[string]*store.Thread{
			"p1": {ID: "p1", Platform: "facebook", Title: "Post"},
		},
		records: map[string][]store.Record{
			"p1": {chatRecord("Alex Morgan", "Great day out on the lake today", 1_700_000_000_000)},
		},
		labeled: map[string][]string{"post": {"p1"}},
	}
	g := NewGenerator(fs, lenCounter{}, testLogger())

	opts := DefaultOptions()
	opts.SkipSystemMessage = true
	shards := collectShards(t, g, Request{
		ThreadIDs:     []string{PseudoPosts},
		IdentityNames: []string{"Alex Morgan"},
		Options:       opts,
	})

	if len(shards) != 1 {
		t.Fatalf("expected only the history artifact, got %d shards", len(shards))
	}
	if shards[0].FileName != "dataset_history.md" {
		t.Errorf("history artifact name = %q", shards[0].FileName)
	}
	if !strings.Contains(shards[0].Content, "Great day out on the lake today") {
		t.Errorf("history missing post content:\n%s", shards[0].Content)
	}
	if !strings.Contains(shards[0].Content, "facebook") {
		t.Errorf("history lines carry the platform:\n%s", shards[0].Content)
	}
}

func TestGenerate_EventCategoryFilter(t *testing.T) {
	fs := &fakeStore{
		threads: map[string]*store.Thread{
			"e1": {ID: "e1", Platform: "facebook", Title: "Summer BBQ", Snippet: "You joined this event."},
			"e2": {ID: "e2", Platform: "facebook", Title: "Webinar", Snippet: "You declined this event."},
		},
		records: map[string][]store.Record{
			"e1": {chatRecord("Alex Morgan", "Bringing the grill on Saturday", 1_700_000_000_000)},
			"e2": {chatRecord("Alex Morgan", "Not going to make this one", 1_700_000_000_000)},
		},
		labeled: map[string][]string{"event": {"e1", "e2"}},
	}
	g := NewGenerator(fs, lenCounter{}, testLogger())

	opts := DefaultOptions()
	opts.SkipSystemMessage = true
	shards := collectShards(t, g, Request{
		ThreadIDs:     []string{PseudoEventsPrefix + "joined"},
		IdentityNames: []string{"Alex Morgan"},
		Options:       opts,
	})

	if len(shards) != 1 {
		t.Fatalf("expected 1 history shard, got %d", len(shards))
	}
	if !strings.Contains(shards[0].Content, "Bringing the grill") {
		t.Error("joined event missing from history")
	}
	if strings.Contains(shards[0].Content, "Not going to make") {
		t.Error("declined event leaked past the joined filter")
	}
}

func TestGenerate_PostsAsFineTuneSessions(t *testing.T) {
	fs := &fakeStore{
		threads: map[string]*store.Thread{
			"p1": {ID: "p1", Platform: "facebook", Title: "Post"},
		},
		records: map[string][]store.Record{
			"p1": {chatRecord("Alex Morgan", "Great day out on the lake today", 1_700_000_000_000)},
		},
		labeled: map[string][]string{"post": {"p1"}},
	}
	g := NewGenerator(fs, lenCounter{}, testLogger())

	shards := collectShards(t, g, Request{
		ThreadIDs:     []string{PseudoPosts},
		IdentityNames: []string{"Alex Morgan"},
		Options:       DefaultOptions(),
	})

	if len(shards) != 1 {
		t.Fatalf("expected 1 shard, got %d", len(shards))
	}
	content := shards[0].Content
	if !strings.Contains(content, "Write a social media post") {
		t.Errorf("fine-tune post missing synthetic prompt:\n%s", content)
	}
	if !strings.Contains(content, `"role":"assistant","content":"Great day out on the lake today"`) {
		t.Errorf("post body should be the assistant turn:\n%s", content)
	}
}

func TestGenerate_EmitErrorStopsRun(t *testing.T) {
	fs := &fakeStore{
		threads: map[string]*store.Thread{
			"t1": {ID: "t1", Platform: "facebook", Participants: []string{"Alex Morgan", "Sam Lee"}},
		},
		records: map[string][]store.Record{
			"t1": {
				chatRecord("Sam Lee", "hey there", 1_000),
				chatRecord("Alex Morgan", "hello", 2_000),
			},
		},
	}
	g := NewGenerator(fs, lenCounter{}, testLogger())

	wantErr := errors.New("sink full")
	err := g.Generate(context.Background(), Request{
		ThreadIDs:     []string{"t1"},
		IdentityNames: []string{"Alex Morgan"},
		Options:       DefaultOptions(),
	}, func(Shard) error { return wantErr }, nil)

	if !errors.Is(err, wantErr) {
		t.Errorf("Generate error = %v, want %v", err, wantErr)
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	fs := &fakeStore{
		threads: map[string]*store.Thread{},
		records: map[string][]store.Record{},
	}
	g := NewGenerator(fs, lenCounter{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Generate(ctx, Request{
		ThreadIDs:     []string{"t1"},
		IdentityNames: []string{"Alex Morgan"},
		Options:       DefaultOptions(),
	}, func(Shard) error { return nil }, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Generate error = %v, want context.Canceled", err)
	}
}

func TestGenerate_SurvivesPanickingProgressCallback(t *testing.T) {
	fs := &fakeStore{
		threads: map[string]*store.Thread{
			"t1": {ID: "t1", Platform: "facebook", Participants: []string{"Alex Morgan", "Sam Lee"}},
		},
		records: map[string][]store.Record{
			"t1": {
				chatRecord("Sam Lee", "hey there", 1_000),
				chatRecord("Alex Morgan", "hello", 2_000),
			},
		},
	}
	g := NewGenerator(fs, lenCounter{}, testLogger())

	var shards []Shard
	err := g.Generate(context.Background(), Request{
		ThreadIDs:     []string{"t1"},
		IdentityNames: []string{"Alex Morgan"},
		Options:       DefaultOptions(),
	}, func(s Shard) error {
		shards = append(shards, s)
		return nil
	}, func(Progress) { panic("observer bug") })

	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(shards) != 1 {
		t.Errorf("expected generation to finish despite the panic, got %d shards", len(shards))
	}
}
