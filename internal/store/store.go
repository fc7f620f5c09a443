package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested thread has no metadata row.
var ErrNotFound = errors.New("store: not found")

// Thread is one conversation, mailbox thread, or timeline entry.
type Thread struct {
	ID             string
	Platform       string
	Title          string
	Participants   []string
	IsGroup        bool
	LastActivityMs int64
	Snippet        string
}

// MediaRef points at an exported media file attached to a record.
type MediaRef struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

// Reaction is a single emoji reaction left on a record.
type Reaction struct {
	Reaction string `json:"reaction"`
	Actor    string `json:"actor"`
}

// Record is one atomic unit of history: a chat message, an email,
// a wall post, or an event entry.
type Record struct {
	ThreadID    string
	SenderName  string
	TimestampMs int64
	Content     string
	Media       []MediaRef
	Reactions   []Reaction
}

// Store is the read path into an ingested archive database.
// Implementations must be safe for concurrent readers.
type Store interface {
	// GetThread returns thread metadata, or ErrNotFound.
	GetThread(ctx context.Context, id string) (*Thread, error)

	// ListThreads returns thread metadata, optionally filtered by platform
	// (empty string means all), ordered by last activity descending.
	ListThreads(ctx context.Context, platform string) ([]Thread, error)

	// ThreadIDsByLabel returns the ids of threads carrying any of the given
	// labels, ordered by last activity ascending.
	ThreadIDsByLabel(ctx context.Context, labels []string) ([]string, error)

	// ForEachRecord streams a thread's records in timestamp order. A non-zero
	// sinceMs/untilMs bounds the range (inclusive since, exclusive until).
	// Iteration stops when fn returns an error, which is propagated.
	ForEachRecord(ctx context.Context, threadID string, sinceMs, untilMs int64, fn func(Record) error) error

	// OwnerNames returns the sender names the ingester identified as the
	// archive owner (identities.is_me), deduplicated.
	OwnerNames(ctx context.Context) ([]string, error)

	Close() error
}

// Open selects a backend from the DSN: postgres:// URLs get the pgx adapter,
// anything else is treated as a SQLite file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgres(ctx, dsn)
	}
	return NewSQLite(dsn)
}

// decodeMedia parses a media_json column. Corrupt sidecar JSON is treated
// as absent rather than failing the row.
func decodeMedia(s string) []MediaRef {
	if s == "" {
		return nil
	}
	var out []MediaRef
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// decodeReactions parses a reactions_json column, same policy as decodeMedia.
func decodeReactions(s string) []Reaction {
	if s == "" {
		return nil
	}
	var out []Reaction
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func decodeParticipants(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
