package dataset

const (
	defaultMaxTokensPerSession = 8000
	defaultMaxTokensPerFile    = 1000000
	defaultBaseName            = "dataset"
)

// Options are the caller-supplied knobs for one generation run.
type Options struct {
	// IncludeSpeakerNames prefixes group-chat turns from other participants
	// with "[Name]: " so the model can track who said what.
	IncludeSpeakerNames bool `json:"includeSpeakerNames"`

	// MergeSequential joins consecutive same-role turns with a newline
	// instead of emitting separate turns.
	MergeSequential bool `json:"mergeSequential"`

	// RemoveSystemMessages drops automated platform notices (group renames,
	// call logs, RSVP notices) from the output.
	RemoveSystemMessages bool `json:"removeSystemMessages"`

	// ImputeReactions converts an emoji reaction left by the archive owner
	// into a synthetic assistant turn.
	ImputeReactions bool `json:"imputeReactions"`

	// RedactPII replaces email-address and phone-number shaped substrings
	// with redaction markers.
	RedactPII bool `json:"redactPII"`

	// RedactTracking additionally recognizes carrier tracking numbers and
	// long digit runs.
	RedactTracking bool `json:"redactTracking"`

	// KeepEventLabels keeps bare "Post" / event-status labels that would
	// otherwise be dropped as low-signal.
	KeepEventLabels bool `json:"keepEventLabels"`

	// SkipSystemMessage selects knowledge-base mode: sessions carry no
	// system turn, and posts/events flow into the markdown history instead
	// of synthetic chat sessions.
	SkipSystemMessage bool `json:"skipSystemMessage"`

	// Persona is free text appended to the system message.
	Persona string `json:"persona"`

	// CustomInstructions is free text appended to the system message after
	// the persona.
	CustomInstructions string `json:"customInstructions"`

	MaxTokensPerSession int `json:"maxTokensPerSession"`
	MaxTokensPerFile    int `json:"maxTokensPerFile"`

	// BaseName names the output files: <BaseName>.jsonl, <BaseName>.part2.jsonl, …
	BaseName string `json:"baseName"`

	// SinceMs/UntilMs bound the record timestamp range when non-zero.
	SinceMs int64 `json:"sinceMs"`
	UntilMs int64 `json:"untilMs"`
}

// DefaultOptions returns the option set used when the caller leaves
// everything unset.
func DefaultOptions() Options {
	return Options{
		IncludeSpeakerNames:  true,
		MergeSequential:      true,
		RemoveSystemMessages: true,
		ImputeReactions:      true,
		MaxTokensPerSession:  defaultMaxTokensPerSession,
		MaxTokensPerFile:     defaultMaxTokensPerFile,
		BaseName:             defaultBaseName,
	}
}

// withDefaults fills zero-valued budget fields so partially-populated
// option structs behave.
func (o Options) withDefaults() Options {
	if o.MaxTokensPerSession <= 0 {
		o.MaxTokensPerSession = defaultMaxTokensPerSession
	}
	if o.MaxTokensPerFile <= 0 {
		o.MaxTokensPerFile = defaultMaxTokensPerFile
	}
	if o.BaseName == "" {
		o.BaseName = defaultBaseName
	}
	return o
}
