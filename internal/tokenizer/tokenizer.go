// Package tokenizer wraps a BPE encoder for token accounting. Counts drive
// session and shard budgets, so they only need to be stable, not an exact
// match for any particular provider's billing.
package tokenizer

import (
	"fmt"

	"github.com/wbrown/gpt_bpe"
)

const (
	// perMessageOverhead covers the chat-format framing tokens around each
	// message (im_start, role separator, im_end, trailing newline).
	perMessageOverhead = 4
	// replyOverhead is the fixed priming cost of the assistant reply.
	replyOverhead = 3
)

// Message mirrors one role-tagged chat turn for counting purposes.
type Message struct {
	Role    string
	Content string
}

// Counter counts tokens with an embedded GPT-2 vocabulary. The underlying
// encoder is not documented as safe for concurrent use; allocate one Counter
// per generation run.
type Counter struct {
	enc *gpt_bpe.GPTEncoder
}

// New initializes a Counter from the embedded gpt2 vocabulary.
func New() (*Counter, error) {
	enc, err := gpt_bpe.NewEncoder("gpt2-tokenizer")
	if err != nil {
		return nil, fmt.Errorf("init encoder: %w", err)
	}
	return &Counter{enc: enc}, nil
}

// CountText returns the encoded length of raw text.
func (c *Counter) CountText(s string) int {
	if s == "" {
		return 0
	}
	return len(*c.enc.Encode(&s))
}

// CountMessages returns the token cost of a chat message list, including
// per-message framing overhead and the reply priming constant.
func (c *Counter) CountMessages(msgs []Message) int {
	total := replyOverhead
	for _, m := range msgs {
		total += perMessageOverhead
		total += c.CountText(m.Role)
		total += c.CountText(m.Content)
	}
	return total
}
