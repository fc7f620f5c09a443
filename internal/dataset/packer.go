package dataset

import (
	"fmt"
	"strings"
)

// Shard is one output file's worth of newline-delimited sessions.
type Shard struct {
	FileName   string `json:"fileName"`
	Content    string `json:"content"`
	TokenCount int    `json:"tokenCount"`
}

// Packer groups finalized sessions into shards no larger than a token
// ceiling. When adding a session would cross the ceiling, the buffered
// shard is emitted first and the session starts the next shard, so every
// shard respects the ceiling unless a single session alone exceeds it
// (accepted, not split further).
type Packer struct {
	counter   TokenCounter
	maxTokens int
	baseName  string

	lines     []string
	tokens    int
	fileIndex int
}

func NewPacker(counter TokenCounter, maxTokens int, baseName string) *Packer {
	return &Packer{
		counter:   counter,
		maxTokens: maxTokens,
		baseName:  baseName,
		fileIndex: 1,
	}
}

// Add measures the session and buffers it, returning a full shard if the
// ceiling forced a flush.
func (p *Packer) Add(sess *Session) (*Shard, error) {
	line, err := sess.MarshalLine()
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	cost := p.counter.CountTurns(sess.Turns)

	var flushed *Shard
	if len(p.lines) > 0 && p.tokens+cost > p.maxTokens {
		flushed = p.Flush()
	}
	p.lines = append(p.lines, line)
	p.tokens += cost
	return flushed, nil
}

// Flush emits the buffered shard, or nil if the buffer is empty.
func (p *Packer) Flush() *Shard {
	if len(p.lines) == 0 {
		return nil
	}
	shard := &Shard{
		FileName:   p.fileName(),
		Content:    strings.Join(p.lines, "\n") + "\n",
		TokenCount: p.tokens,
	}
	p.lines = nil
	p.tokens = 0
	p.fileIndex++
	return shard
}

// fileName follows the <base>.jsonl / <base>.part<N>.jsonl convention: the
// part marker appears only from the second shard on.
func (p *Packer) fileName() string {
	if p.fileIndex == 1 {
		return p.baseName + ".jsonl"
	}
	return fmt.Sprintf("%s.part%d.jsonl", p.baseName, p.fileIndex)
}
