package dataset

import "fmt"

// EmailPairBuilder turns a mailbox thread into inbound/outbound pairs:
// inbound bodies accumulate until the owner replies, then the whole
// exchange is emitted as one session. Inbound-only remainders are
// discarded at finalize.
type EmailPairBuilder struct {
	opts         Options
	identity     *IdentitySet
	systemPrompt string

	inbound         []Turn
	subjectInjected bool
}

func NewEmailPairBuilder(opts Options, identity *IdentitySet, systemPrompt string) *EmailPairBuilder {
	return &EmailPairBuilder{
		opts:         opts,
		identity:     identity,
		systemPrompt: systemPrompt,
	}
}

func (b *EmailPairBuilder) Add(in TurnInput) *Session {
	content := in.Content

	if in.Role == RoleAssistant {
		if len(b.inbound) == 0 {
			// An outbound mail with nothing to reply to (owner-initiated
			// thread); skip rather than emit a userless pair.
			return nil
		}
		turns := b.inbound
		b.inbound = nil
		turns = append(turns, Turn{Role: RoleAssistant, Content: content})
		if !b.opts.SkipSystemMessage && b.systemPrompt != "" {
			turns = append([]Turn{{Role: RoleSystem, Content: b.systemPrompt}}, turns...)
		}
		return &Session{Turns: turns}
	}

	if !b.subjectInjected && in.Subject != "" {
		content = fmt.Sprintf("Subject: %s\n\n%s", in.Subject, content)
		b.subjectInjected = true
	}
	if b.opts.IncludeSpeakerNames && in.SenderName != "" {
		content = fmt.Sprintf("[%s]: %s", in.SenderName, content)
	}
	b.inbound = append(b.inbound, Turn{Role: RoleUser, Content: content})
	return nil
}

// Finalize drops any trailing inbound-only accumulation: a mail the owner
// never answered is not a pair.
func (b *EmailPairBuilder) Finalize() *Session {
	b.inbound = nil
	b.subjectInjected = false
	return nil
}
