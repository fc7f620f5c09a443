package dataset

import "encoding/json"

// Role names are intentionally inverted relative to conversational intuition:
// the archive owner's messages become "assistant" turns because the owner's
// voice is what the model is being trained to produce. Everyone else is
// "user". Do not "fix" this.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged message in a session.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is one bounded, training-ready conversational unit.
type Session struct {
	Turns []Turn
}

// HasAssistant reports whether any turn is an assistant turn.
func (s *Session) HasAssistant() bool {
	for _, t := range s.Turns {
		if t.Role == RoleAssistant {
			return true
		}
	}
	return false
}

// MarshalLine serializes the session as one JSONL line of the form
// {"messages":[{"role":…,"content":…},…]} without a trailing newline.
func (s *Session) MarshalLine() (string, error) {
	b, err := json.Marshal(struct {
		Messages []Turn `json:"messages"`
	}{Messages: s.Turns})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
