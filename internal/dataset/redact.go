package dataset

import "regexp"

const (
	redactedEmail    = "[REDACTED_EMAIL]"
	redactedPhone    = "[REDACTED_PHONE]"
	redactedTracking = "[REDACTED_TRACKING]"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// North-American phone shapes: optional country code, separators
	// optional. Anchored on word boundaries to avoid eating timestamps.
	phoneRe = regexp.MustCompile(`\+?1?[-.\s(]{0,2}\d{3}[-.\s)]{0,2}\d{3}[-.\s]?\d{4}\b`)

	// Carrier tracking formats plus any ≥15 digit run: UPS 1Z…, USPS 9x…,
	// FedEx door-tag DT…, and bare long digit sequences.
	trackingRes = []*regexp.Regexp{
		regexp.MustCompile(`\b1Z[0-9A-Za-z]{16}\b`),
		regexp.MustCompile(`\bDT\d{12,}\b`),
		regexp.MustCompile(`\b9[2-5]\d{19,24}\b`),
		regexp.MustCompile(`\b\d{15,}\b`),
	}
)

// RedactPII replaces email-address and phone-number shaped substrings with
// redaction markers.
func RedactPII(s string) string {
	s = emailRe.ReplaceAllString(s, redactedEmail)
	s = phoneRe.ReplaceAllString(s, redactedPhone)
	return s
}

// RedactTracking replaces shipping tracking numbers and long digit runs.
// Must run before RedactPII so the phone pattern cannot claim the tail of
// a long digit sequence first.
func RedactTracking(s string) string {
	for _, re := range trackingRes {
		s = re.ReplaceAllString(s, redactedTracking)
	}
	return s
}
