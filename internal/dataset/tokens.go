package dataset

import "github.com/dataforge-ai/dataforge/internal/tokenizer"

// TokenCounter is the measuring seam between the builders/packer and the
// BPE encoder, so tests can substitute a cheap counter.
type TokenCounter interface {
	CountText(s string) int
	CountTurns(turns []Turn) int
}

type bpeCounter struct {
	c *tokenizer.Counter
}

// NewBPECounter adapts the gpt_bpe-backed tokenizer to the TokenCounter
// interface.
func NewBPECounter(c *tokenizer.Counter) TokenCounter {
	return &bpeCounter{c: c}
}

func (b *bpeCounter) CountText(s string) int {
	return b.c.CountText(s)
}

func (b *bpeCounter) CountTurns(turns []Turn) int {
	msgs := make([]tokenizer.Message, len(turns))
	for i, t := range turns {
		msgs[i] = tokenizer.Message{Role: t.Role, Content: t.Content}
	}
	return b.c.CountMessages(msgs)
}
