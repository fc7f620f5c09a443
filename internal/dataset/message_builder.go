package dataset

import "fmt"

// MessageBuilder turns one chat thread's ordered records into sessions of
// alternating user/assistant turns. State resets after every finalized
// session so a single thread can produce many sessions.
type MessageBuilder struct {
	opts         Options
	counter      TokenCounter
	identity     *IdentitySet
	isGroup      bool
	systemPrompt string

	turns  []Turn
	tokens int
}

func NewMessageBuilder(opts Options, counter TokenCounter, identity *IdentitySet, isGroup bool, systemPrompt string) *MessageBuilder {
	return &MessageBuilder{
		opts:         opts,
		counter:      counter,
		identity:     identity,
		isGroup:      isGroup,
		systemPrompt: systemPrompt,
	}
}

// Add appends one turn, applying speaker prefixing, sequential merging,
// reaction imputation, and the per-session token cap. When the cap forces
// the in-progress session closed, the finalized session is returned and
// the new turn starts the next one.
func (b *MessageBuilder) Add(in TurnInput) *Session {
	content := in.Content
	if b.isGroup && b.opts.IncludeSpeakerNames && in.Role == RoleUser && in.SenderName != "" {
		content = fmt.Sprintf("[%s]: %s", in.SenderName, content)
	}

	var finished *Session
	cost := b.turnCost(in.Role, content)
	if len(b.turns) > 0 && b.tokens+cost > b.opts.MaxTokensPerSession {
		finished = b.Finalize()
	}

	if b.opts.MergeSequential && len(b.turns) > 0 && b.turns[len(b.turns)-1].Role == in.Role {
		last := &b.turns[len(b.turns)-1]
		last.Content += "\n" + content
		b.tokens += b.counter.CountText("\n" + content)
	} else {
		b.turns = append(b.turns, Turn{Role: in.Role, Content: content})
		b.tokens += cost
	}

	// A reaction from the owner on someone else's message becomes a
	// synthetic assistant turn: a one-tap acknowledgment is still a reply.
	if b.opts.ImputeReactions && in.Role != RoleAssistant {
		if emoji, ok := ownerReaction(in.Reactions, b.identity); ok {
			reacted := fmt.Sprintf("[Reacted %q]", emoji)
			b.turns = append(b.turns, Turn{Role: RoleAssistant, Content: reacted})
			b.tokens += b.turnCost(RoleAssistant, reacted)
		}
	}

	return finished
}

// Finalize trims trailing non-assistant turns, prepends the system turn,
// and resets the builder for the next session in the same thread. A
// session in which the owner never speaks is discarded entirely: it
// carries no training signal.
func (b *MessageBuilder) Finalize() *Session {
	turns := b.turns
	b.turns = nil
	b.tokens = 0

	for len(turns) > 0 && turns[len(turns)-1].Role != RoleAssistant {
		turns = turns[:len(turns)-1]
	}
	if len(turns) == 0 {
		return nil
	}

	if !b.opts.SkipSystemMessage && b.systemPrompt != "" {
		turns = append([]Turn{{Role: RoleSystem, Content: b.systemPrompt}}, turns...)
	}
	return &Session{Turns: turns}
}

func (b *MessageBuilder) turnCost(role, content string) int {
	return 4 + b.counter.CountText(role) + b.counter.CountText(content)
}
