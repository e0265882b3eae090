package classify

import "testing"

func TestIsBounceDaemonWithSubjectAndMarkers(t *testing.T) {
	t.Parallel()

	got := IsBounce(
		"mailer-daemon@x.com",
		"Undelivered Mail Returned to Sender",
		"Final-Recipient: rfc822; x@y.com\r\nAction: failed",
		BounceOptions{},
	)
	if !got {
		t.Error("expected bounce")
	}
}

func TestIsBounceOrdinaryMail(t *testing.T) {
	t.Parallel()

	if IsBounce("alice@example.com", "Hello", "Just saying hi", BounceOptions{}) {
		t.Error("ordinary mail classified as bounce")
	}
}

func TestIsBounceLoneNullSender(t *testing.T) {
	t.Parallel()

	// A null sender with no corroborating signal is not sufficient
	// under the correlation rule.
	if IsBounce("", "Meeting notes", "", BounceOptions{}) {
		t.Error("lone null sender classified as bounce")
	}
}

func TestIsBounceNullSenderWithSubjectSignal(t *testing.T) {
	t.Parallel()

	envelope := "<>"
	got := IsBounce("", "Delivery Status Notification (Failure)", "", BounceOptions{
		EnvelopeFrom: &envelope,
	})
	if !got {
		t.Error("null sender plus subject signal should be a bounce")
	}
}

func TestIsBounceBodyMarkersAlone(t *testing.T) {
	t.Parallel()

	body := "Reporting-MTA: dns; mx.example.com\r\nFinal-Recipient: rfc822; gone@example.com"

	if !IsBounce("noreply@example.com", "FYI", body, BounceOptions{}) {
		t.Error("two body markers should classify as bounce in default mode")
	}
	if IsBounce("noreply@example.com", "FYI", body, BounceOptions{Strict: true}) {
		t.Error("strict mode should require more than two body markers")
	}

	threeMarkers := body + "\r\nAction: failed"
	if !IsBounce("noreply@example.com", "FYI", threeMarkers, BounceOptions{Strict: true}) {
		t.Error("three body markers should classify as bounce even in strict mode")
	}
}

func TestIsBounceSingleWeakSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    string
		subject string
		body    string
	}{
		{"subject keyword alone", "newsletter@example.com", "Your delivery failure refund", ""},
		{"sender pattern alone", "postmaster@example.com", "Weekly digest", "See attached."},
		{"one body marker alone", "alice@example.com", "Logs", "Reporting-MTA: dns; mx1"},
	}
	for _, tt := range tests {
		if IsBounce(tt.from, tt.subject, tt.body, BounceOptions{}) {
			t.Errorf("%s: single weak signal classified as bounce", tt.name)
		}
	}
}

func TestIsBounceSenderPatternWithMarker(t *testing.T) {
	t.Parallel()

	got := IsBounce(
		"MAILER-DAEMON@mx.example.net",
		"(no subject)",
		"Diagnostic-Code: smtp; 550 5.1.1 user unknown",
		BounceOptions{},
	)
	if !got {
		t.Error("sender pattern plus body marker should be a bounce")
	}
}
