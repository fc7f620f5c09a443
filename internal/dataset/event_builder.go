package dataset

import (
	"fmt"
	"strings"
	"time"
)

// EventRecordBuilder accumulates timeline records (wall posts, check-ins,
// event RSVPs) into a flat markdown history instead of chat turns. One
// instance is shared across all post/event pseudo-threads in a run; the
// orchestrator yields the full text once as an auxiliary artifact.
type EventRecordBuilder struct {
	platform string
	context  string
	buf      strings.Builder
}

func NewEventRecordBuilder() *EventRecordBuilder {
	return &EventRecordBuilder{}
}

// SetContext names the platform and thread context for subsequent lines.
func (b *EventRecordBuilder) SetContext(platform, context string) {
	b.platform = platform
	b.context = context
}

func (b *EventRecordBuilder) Add(in TurnInput) *Session {
	date := time.UnixMilli(in.TimestampMs).UTC().Format("2006-01-02")
	ctx := b.context
	if ctx == "" {
		ctx = "Timeline"
	}
	fmt.Fprintf(&b.buf, "%s · %s · %s: %s\n", date, b.platform, ctx, in.Content)
	return nil
}

// Finalize is part of the Builder contract but event history is not
// session-shaped; the markdown is collected via Text at end of run.
func (b *EventRecordBuilder) Finalize() *Session {
	return nil
}

// Text returns the accumulated markdown history, or "" if nothing was
// recorded.
func (b *EventRecordBuilder) Text() string {
	return b.buf.String()
}
