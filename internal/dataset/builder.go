package dataset

import (
	"strings"

	"github.com/dataforge-ai/dataforge/internal/store"
)

// TurnInput is one cleaned, role-classified record handed to a builder.
type TurnInput struct {
	Role        string
	Content     string
	SenderName  string
	TimestampMs int64
	Subject     string // mail only: thread subject, injected once
	Reactions   []store.Reaction
}

// Builder accumulates a thread's records into finalized sessions. The
// orchestrator selects one builder per thread and drives it uniformly:
// Add may return a finished session (token cap hit, pair completed),
// Finalize flushes whatever remains or returns nil if the remainder is
// not worth keeping.
type Builder interface {
	Add(in TurnInput) *Session
	Finalize() *Session
}

// IdentitySet classifies sender names as the archive owner. Matching is
// case-insensitive, exact or substring in either direction, because
// platforms render the same person as "Jane", "Jane Doe", or
// "Jane Doe (Mobile)" across exports.
type IdentitySet struct {
	names []string // lowercased
}

func NewIdentitySet(names []string) *IdentitySet {
	s := &IdentitySet{}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			s.names = append(s.names, n)
		}
	}
	return s
}

// Owns reports whether the sender is the archive owner.
func (s *IdentitySet) Owns(sender string) bool {
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		return false
	}
	for _, n := range s.names {
		if sender == n || strings.Contains(sender, n) || strings.Contains(n, sender) {
			return true
		}
	}
	return false
}

// Role returns the training role for a sender: the owner speaks as
// "assistant", everyone else as "user".
func (s *IdentitySet) Role(sender string) string {
	if s.Owns(sender) {
		return RoleAssistant
	}
	return RoleUser
}

// ownerReaction returns the first reaction left by the archive owner.
func ownerReaction(reactions []store.Reaction, identity *IdentitySet) (string, bool) {
	for _, r := range reactions {
		if identity.Owns(r.Actor) {
			return r.Reaction, true
		}
	}
	return "", false
}
