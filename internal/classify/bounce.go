// Package classify derives structured signals from a decoded message and
// its connection metadata: bounce detection, spam-signal extraction, and
// attachment extraction. All classifiers are pure and defensive; missing
// input yields safe defaults, never an error.
package classify

import "strings"

// senderPatterns are substrings of a sender address that identify a
// bounce daemon.
var senderPatterns = []string{
	"mailer-daemon",
	"postmaster",
	"mail-daemon",
	"mailerdaemon",
}

// subjectKeywords are delivery-failure phrases commonly found in bounce
// subjects.
var subjectKeywords = []string{
	"undelivered mail",
	"undeliverable",
	"returned to sender",
	"delivery status notification",
	"delivery failure",
	"failure notice",
	"mail delivery failed",
	"returned mail",
	"delivery has failed",
}

// bodyMarkers are DSN (RFC 3464) field lines found in machine-generated
// bounce bodies.
var bodyMarkers = []string{
	"final-recipient:",
	"original-recipient:",
	"reporting-mta:",
	"action: failed",
	"diagnostic-code:",
}

// BounceOptions tunes bounce detection.
type BounceOptions struct {
	// EnvelopeFrom is the SMTP MAIL FROM address when known. Nil means
	// only the header sender is considered for the null-sender signal.
	EnvelopeFrom *string

	// Strict raises the bar for classifying on body markers alone.
	Strict bool
}

// IsBounce reports whether a message is a delivery-failure notification.
//
// No single weak signal is sufficient on its own; signals must correlate.
// In particular a null sender with no corroborating signal is not a
// bounce, which avoids false-positiving ordinary notification mail.
func IsBounce(from, subject, textBody string, opts BounceOptions) bool {
	nullSender := isNullAddr(from)
	if opts.EnvelopeFrom != nil {
		nullSender = nullSender || isNullAddr(*opts.EnvelopeFrom)
	}

	sender := strings.ToLower(from)
	senderPattern := false
	for _, p := range senderPatterns {
		if strings.Contains(sender, p) {
			senderPattern = true
			break
		}
	}

	subj := strings.ToLower(subject)
	subjectPattern := false
	for _, k := range subjectKeywords {
		if strings.Contains(subj, k) {
			subjectPattern = true
			break
		}
	}

	markers := countBodyMarkers(textBody)

	markerBar := 2
	if opts.Strict {
		markerBar = 3
	}

	switch {
	case nullSender && (senderPattern || subjectPattern || markers >= 1):
		return true
	case markers >= markerBar:
		return true
	case senderPattern && (subjectPattern || markers >= 1):
		return true
	case subjectPattern && markers >= 1:
		return true
	}
	return false
}

// countBodyMarkers counts distinct DSN field lines present in the body.
func countBodyMarkers(body string) int {
	lowered := strings.ToLower(body)
	n := 0
	for _, m := range bodyMarkers {
		if strings.Contains(lowered, m) {
			n++
		}
	}
	return n
}

// isNullAddr reports whether an address is the SMTP null sender.
func isNullAddr(addr string) bool {
	trimmed := strings.TrimSpace(addr)
	return trimmed == "" || trimmed == "<>"
}
