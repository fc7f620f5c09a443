// Package events publishes generation lifecycle events over NATS so a
// desktop shell (or anything else) can track long runs without polling.
// The publisher is optional: a nil *Publisher is safe to use and does
// nothing.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectProgress  = "dataforge.generate.progress"
	SubjectShard     = "dataforge.generate.shard"
	SubjectCompleted = "dataforge.generate.completed"
)

// ProgressEvent mirrors the generator's per-thread progress callback.
type ProgressEvent struct {
	JobID    string `json:"job_id"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	ThreadID string `json:"thread_id"`
}

// ShardEvent announces one written output file.
type ShardEvent struct {
	JobID      string `json:"job_id"`
	FileName   string `json:"file_name"`
	TokenCount int    `json:"token_count"`
}

// CompletedEvent closes out a job, successfully or not.
type CompletedEvent struct {
	JobID       string `json:"job_id"`
	Shards      int    `json:"shards"`
	TotalTokens int    `json:"total_tokens"`
	Error       string `json:"error,omitempty"`
}

type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect dials NATS with retry. Returns an error only if the initial
// connection setup fails outright.
func Connect(url, token string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, logger: logger}, nil
}

// Publish sends a JSON payload on a subject. Failures are logged and
// swallowed: eventing is best-effort and must never affect generation.
func (p *Publisher) Publish(subject string, data any) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		p.logger.Warn("failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
