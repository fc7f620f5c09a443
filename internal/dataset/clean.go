package dataset

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dataforge-ai/dataforge/internal/store"
)

// ThreadKind selects the cleaning context for a thread's records.
type ThreadKind int

const (
	KindChat ThreadKind = iota
	KindMail
	KindPost
	KindEvent
)

const (
	attachmentSuffix   = "sent an attachment."
	attachmentMarker   = "[Sent an attachment]"
	mediaMarker        = "[Sent a photo/video]"
	platformGoogleMail = "google_mail"
)

// Literal export artifacts with no conversational value.
var artifactLiterals = map[string]struct{}{
	"MMS Sent":      {},
	"MMS Received":  {},
	"Media omitted": {},
}

// Automated platform notices: group management, call logs, theme changes,
// RSVP traffic. Matched by substring against the raw content.
var systemEventPhrases = []string{
	"named the group",
	"changed the group photo",
	"changed the theme",
	"to the group.",
	"left the group.",
	"added you to the group",
	"removed you from the group",
	"started a call",
	"started a video chat",
	"joined the call",
	"missed a call",
	"missed your call",
	"The call ended",
	"set the nickname",
	"set the emoji to",
	"turned on disappearing messages",
	"turned off disappearing messages",
	"changed their status",
	"responded Going to",
	"responded Interested in",
	"This poll is no longer available",
	"created a poll",
	"pinned a message",
}

// Low-signal bare labels emitted by the post/event ingesters.
var bareLabels = map[string]struct{}{
	"Post":                                  {},
	"Check-in":                              {},
	"Created Event":                         {},
	"You joined this event.":                {},
	"You expressed interest in this event.": {},
	"You declined this event.":              {},
}

var (
	markupRe  = regexp.MustCompile(`<[^>]+>`)
	bareURLRe = regexp.MustCompile(`^(?:https?://|www\.)\S+$`)
)

// CleanContent normalizes one record into usable text, or reports that the
// record should be dropped. Pure function of its inputs; rules apply in
// order and the first terminal rule wins.
func CleanContent(rec store.Record, platform string, kind ThreadKind, opts Options) (string, bool) {
	content := strings.TrimSpace(rec.Content)
	isMail := platform == platformGoogleMail || kind == KindMail
	dropMarkers := opts.SkipSystemMessage || kind == KindPost

	// 1. Literal export artifacts.
	if _, ok := artifactLiterals[content]; ok {
		return "", false
	}

	// 2. Attachment-only placeholder text.
	if content == attachmentSuffix || strings.HasSuffix(content, " "+attachmentSuffix) {
		if dropMarkers {
			return "", false
		}
		return attachmentMarker, true
	}

	// 3. Decode entities and strip tags.
	if strings.ContainsAny(content, "<&") {
		content = html.UnescapeString(content)
		content = markupRe.ReplaceAllString(content, "")
		content = strings.TrimSpace(content)
	}

	// 4. Empty content: substitute a media marker when the record carries
	// media references, otherwise drop.
	if content == "" {
		if len(rec.Media) == 0 {
			return "", false
		}
		if dropMarkers {
			return "", false
		}
		return mediaMarker, true
	}

	// 5. Bare links carry no voice, except in mail where they are the point.
	if !isMail && bareURLRe.MatchString(content) {
		return "", false
	}

	// 6. Automated platform notices.
	if opts.RemoveSystemMessages && isSystemEventPhrase(content) {
		return "", false
	}

	// 7. Bare post/event labels with no attached media.
	if _, ok := bareLabels[content]; ok && len(rec.Media) == 0 && !opts.KeepEventLabels {
		return "", false
	}

	// 8. Too short to train on (chat platforms only).
	if !isMail && utf8.RuneCountInString(content) < 2 {
		return "", false
	}

	// 9. Wall-post birthday boilerplate.
	if kind == KindPost && isBirthdayBoilerplate(content) {
		return "", false
	}

	// 10. Redaction. Tracking first so long digit runs are not half-eaten
	// by the phone pattern.
	if opts.RedactTracking {
		content = RedactTracking(content)
	}
	if opts.RedactPII {
		content = RedactPII(content)
	}

	return content, true
}

func isSystemEventPhrase(content string) bool {
	for _, p := range systemEventPhrases {
		if strings.Contains(content, p) {
			return true
		}
	}
	return false
}

// isBirthdayBoilerplate flags short birthday greetings, the dominant noise
// on Facebook walls.
func isBirthdayBoilerplate(content string) bool {
	if utf8.RuneCountInString(content) > 60 {
		return false
	}
	lower := strings.ToLower(content)
	return strings.Contains(lower, "happy birthday") ||
		strings.Contains(lower, "happy bday") ||
		strings.Contains(lower, "hbd")
}
