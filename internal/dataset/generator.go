package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/dataforge-ai/dataforge/internal/store"
)

// Pseudo-thread ids resolved via label-filtered queries instead of a
// direct thread lookup.
const (
	// PseudoPosts addresses every wall post and check-in as one stream.
	PseudoPosts = "__posts__"
	// PseudoEventsPrefix addresses event threads filtered by RSVP
	// category: __events__:joined, __events__:interested,
	// __events__:declined, __events__:created, or __events__:all.
	PseudoEventsPrefix = "__events__:"
)

const (
	// chatSessionGapMs splits a chat thread into independent sessions when
	// consecutive records are further apart than this.
	chatSessionGapMs = 2 * 60 * 60 * 1000
	// mailSessionGapMs is the mailbox equivalent; email exchanges tolerate
	// days of latency.
	mailSessionGapMs = 7 * 24 * 60 * 60 * 1000

	// yieldEvery is the record quantum between cooperative yields inside a
	// single large thread.
	yieldEvery = 500
)

// eventCategoryStatus maps an events pseudo-thread category to the status
// snippet the ingester writes for that RSVP kind.
var eventCategoryStatus = map[string]string{
	"joined":     "You joined this event.",
	"interested": "You expressed interest in this event.",
	"declined":   "You declined this event.",
	"created":    "Created Event",
}

// Request selects the threads and identity for one generation run.
type Request struct {
	ThreadIDs []string
	// IdentityNames are the sender names treated as the archive owner.
	// Empty means use the names the ingester discovered (identities.is_me).
	IdentityNames []string
	Options       Options
}

// Progress reports per-thread advancement to an optional callback.
type Progress struct {
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	ThreadID string `json:"threadId"`
}

// Generator streams dataset shards out of an archive store. It is
// stateless across calls; one Generate run owns its builders and packer.
type Generator struct {
	store   store.Store
	counter TokenCounter
	logger  *slog.Logger
}

func NewGenerator(s store.Store, counter TokenCounter, logger *slog.Logger) *Generator {
	return &Generator{store: s, counter: counter, logger: logger}
}

// Generate walks the requested threads and emits shards through the emit
// callback as they fill. An error from emit stops the run and is returned
// as-is, so a consumer can abandon the stream cleanly. Store query
// failures are terminal; unresolvable thread ids and empty threads are
// skipped silently.
func (g *Generator) Generate(ctx context.Context, req Request, emit func(Shard) error, onProgress func(Progress)) error {
	opts := req.Options.withDefaults()

	names := req.IdentityNames
	if len(names) == 0 {
		discovered, err := g.store.OwnerNames(ctx)
		if err != nil {
			return fmt.Errorf("load owner identities: %w", err)
		}
		names = discovered
	}
	identity := NewIdentitySet(names)

	run := &runState{
		opts:     opts,
		identity: identity,
		packer:   NewPacker(g.counter, opts.MaxTokensPerFile, opts.BaseName),
		events:   NewEventRecordBuilder(),
		emit:     emit,
	}

	total := len(req.ThreadIDs)
	for i, id := range req.ThreadIDs {
		g.reportProgress(onProgress, Progress{Index: i, Total: total, ThreadID: id})
		if err := cooperativeYield(ctx); err != nil {
			return err
		}

		var err error
		switch {
		case id == PseudoPosts:
			err = g.processLabeled(ctx, []string{"post", "checkin"}, "", KindPost, run)
		case strings.HasPrefix(id, PseudoEventsPrefix):
			category := strings.TrimPrefix(id, PseudoEventsPrefix)
			err = g.processLabeled(ctx, []string{"event"}, category, KindEvent, run)
		default:
			err = g.processThread(ctx, id, KindChat, run)
		}
		if err != nil {
			return err
		}
	}

	if shard := run.packer.Flush(); shard != nil {
		if err := emit(*shard); err != nil {
			return err
		}
	}
	if text := run.events.Text(); text != "" {
		return emit(Shard{
			FileName:   opts.BaseName + "_history.md",
			Content:    text,
			TokenCount: g.counter.CountText(text),
		})
	}
	return nil
}

// runState is the per-run working set shared across threads.
type runState struct {
	opts     Options
	identity *IdentitySet
	packer   *Packer
	events   *EventRecordBuilder
	emit     func(Shard) error
}

// processLabeled expands a pseudo-thread into its label-filtered member
// threads and processes each.
func (g *Generator) processLabeled(ctx context.Context, labels []string, category string, kind ThreadKind, run *runState) error {
	ids, err := g.store.ThreadIDsByLabel(ctx, labels)
	if err != nil {
		return fmt.Errorf("resolve pseudo-thread: %w", err)
	}

	status := eventCategoryStatus[category]
	for _, id := range ids {
		if status != "" {
			meta, err := g.store.GetThread(ctx, id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			if !strings.Contains(meta.Snippet, status) {
				continue
			}
		}
		if err := g.processThread(ctx, id, kind, run); err != nil {
			return err
		}
		if err := cooperativeYield(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) processThread(ctx context.Context, threadID string, kind ThreadKind, run *runState) error {
	meta, err := g.store.GetThread(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		g.logger.Debug("thread not found, skipping", "thread_id", threadID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve thread %s: %w", threadID, err)
	}

	if kind == KindChat && meta.Platform == platformGoogleMail {
		kind = KindMail
	}

	title := meta.Title
	if title == "" {
		title = inferTitle(meta.Participants, run.identity)
	}

	opts := run.opts
	systemPrompt := ""
	if !opts.SkipSystemMessage {
		systemPrompt = buildSystemPrompt(meta, title, opts)
	}

	// Builder dispatch, once per thread. The record loop below stays
	// uniform regardless of which builder is active.
	var builder Builder
	timeline := false
	switch {
	case kind == KindMail:
		builder = NewEmailPairBuilder(opts, run.identity, systemPrompt)
	case kind == KindPost || kind == KindEvent:
		if opts.SkipSystemMessage {
			run.events.SetContext(meta.Platform, title)
			builder = run.events
			timeline = true
		} else {
			builder = NewMessageBuilder(opts, g.counter, run.identity, false, systemPrompt)
		}
	default:
		builder = NewMessageBuilder(opts, g.counter, run.identity, meta.IsGroup, systemPrompt)
	}

	gapMs := int64(chatSessionGapMs)
	if kind == KindMail {
		gapMs = mailSessionGapMs
	}

	subject := ""
	if kind == KindMail {
		subject = meta.Title
	}

	var prevTs int64
	records := 0
	err = g.store.ForEachRecord(ctx, threadID, opts.SinceMs, opts.UntilMs, func(rec store.Record) error {
		records++
		if records%yieldEvery == 0 {
			if err := cooperativeYield(ctx); err != nil {
				return err
			}
		}

		// Long silences end the session; the next record starts a new one.
		if prevTs != 0 && rec.TimestampMs-prevTs > gapMs {
			if err := run.pack(builder.Finalize()); err != nil {
				return err
			}
		}
		prevTs = rec.TimestampMs

		content, ok := CleanContent(rec, meta.Platform, kind, opts)
		if !ok {
			return nil
		}
		role := run.identity.Role(rec.SenderName)

		// Timeline posts in fine-tune mode become single exchanges: a
		// synthetic prompt followed by the owner's post.
		if !timeline && (kind == KindPost || kind == KindEvent) {
			if err := run.pack(builder.Add(TurnInput{
				Role:        RoleUser,
				Content:     syntheticPostPrompt(meta.Title),
				TimestampMs: rec.TimestampMs,
			})); err != nil {
				return err
			}
			role = RoleAssistant
		}

		return run.pack(builder.Add(TurnInput{
			Role:        role,
			Content:     content,
			SenderName:  rec.SenderName,
			TimestampMs: rec.TimestampMs,
			Subject:     subject,
			Reactions:   rec.Reactions,
		}))
	})
	if err != nil {
		return err
	}

	return run.pack(builder.Finalize())
}

// pack routes a finalized session into the packer and emits any shard the
// packer flushes. Nil sessions (discarded or not yet complete) and sessions
// in which the owner never speaks are dropped.
func (r *runState) pack(sess *Session) error {
	if sess == nil || !sess.HasAssistant() {
		return nil
	}
	shard, err := r.packer.Add(sess)
	if err != nil {
		return err
	}
	if shard != nil {
		return r.emit(*shard)
	}
	return nil
}

// cooperativeYield hands control back to the scheduler and honors
// cancellation. A generation run can touch hundreds of thousands of
// records; the host must stay responsive throughout.
func cooperativeYield(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	runtime.Gosched()
	return nil
}

// reportProgress calls the progress callback if any; callbacks are
// best-effort and must not break generation.
func (g *Generator) reportProgress(onProgress func(Progress), p Progress) {
	if onProgress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("progress callback panicked", "panic", r)
		}
	}()
	onProgress(p)
}

// inferTitle composes a human title from the participant list, excluding
// the archive owner's own names.
func inferTitle(participants []string, identity *IdentitySet) string {
	var others []string
	for _, p := range participants {
		if !identity.Owns(p) {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		return "Conversation"
	}
	return strings.Join(others, ", ")
}

var platformLabels = map[string]string{
	"facebook":     "Facebook",
	"instagram":    "Instagram",
	"google_chat":  "Google Chat",
	"google_voice": "Google Voice",
	"google_mail":  "Gmail",
}

func platformLabel(p string) string {
	if l, ok := platformLabels[p]; ok {
		return l
	}
	return p
}

func buildSystemPrompt(t *store.Thread, title string, opts Options) string {
	var b strings.Builder
	label := platformLabel(t.Platform)
	switch {
	case t.Platform == platformGoogleMail:
		fmt.Fprintf(&b, "You are replying to email in the thread %q. Write the reply in your own voice.", title)
	case t.IsGroup:
		fmt.Fprintf(&b, "You are chatting in the %s group %q. Reply as yourself.", label, title)
	default:
		fmt.Fprintf(&b, "You are chatting with %s on %s. Reply as yourself.", title, label)
	}
	if opts.Persona != "" {
		b.WriteString("\n\n")
		b.WriteString(opts.Persona)
	}
	if opts.CustomInstructions != "" {
		b.WriteString("\n\n")
		b.WriteString(opts.CustomInstructions)
	}
	return b.String()
}

func syntheticPostPrompt(title string) string {
	if title == "" || title == "Post" {
		return "Write a social media post in your own voice."
	}
	return fmt.Sprintf("Write a social media post: %s", title)
}
