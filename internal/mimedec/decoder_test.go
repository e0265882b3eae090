package mimedec

import (
	"errors"
	"strings"
	"testing"

	"github.com/atomine-elektrine/elektrine-haraka/internal/charset"
	"github.com/atomine-elektrine/elektrine-haraka/internal/email"
)

func TestDecodePlainTextMessage(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: Alice <alice@example.com>",
		"To: bob@example.com",
		"Subject: Quarterly numbers",
		"X-Custom: some value",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"The numbers look fine.",
	}, "\r\n"))

	msg, err := New().Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(msg.From, "alice@example.com") {
		t.Errorf("From: got %q", msg.From)
	}
	if msg.Subject != "Quarterly numbers" {
		t.Errorf("Subject: got %q", msg.Subject)
	}
	if !strings.Contains(msg.TextBody, "The numbers look fine.") {
		t.Errorf("TextBody: got %q", msg.TextBody)
	}
	if msg.Headers["X-Custom"] != "some value" {
		t.Errorf("Headers[X-Custom]: got %q", msg.Headers["X-Custom"])
	}
	if len(msg.Attachments) != 0 {
		t.Errorf("Attachments: got %d, want 0", len(msg.Attachments))
	}
}

func TestDecodeMultipartWithAttachment(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Subject: With attachment",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=b1",
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"See attached.",
		"--b1",
		"Content-Type: application/pdf",
		"Content-Disposition: attachment; filename=report.pdf",
		"Content-Transfer-Encoding: base64",
		"",
		"cGRmLWJ5dGVz",
		"--b1--",
	}, "\r\n"))

	msg, err := New().Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(msg.TextBody, "See attached.") {
		t.Errorf("TextBody: got %q", msg.TextBody)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Filename != "report.pdf" {
		t.Errorf("Filename: got %q", att.Filename)
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("ContentType: got %q", att.ContentType)
	}
	if string(att.Content) != "pdf-bytes" {
		t.Errorf("Content: got %q", att.Content)
	}
}

func TestDecodeEncodedWordSubject(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Subject: =?utf-8?B?aMOpbGxv?=",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"body",
	}, "\r\n"))

	msg, err := New().Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "héllo" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "héllo")
	}
}

func TestDecodeRepairsMislabeledCharset(t *testing.T) {
	t.Parallel()

	// The encoded-word payload is UTF-8 bytes, but the word claims
	// ISO 8859-1. The decode produces mojibake; after the normalizer
	// pass the subject must be clean.
	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Subject: =?iso-8859-1?B?aMOpbGxv?=",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"body",
	}, "\r\n"))

	msg, err := New().Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "héllo" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "héllo")
	}
	if score := charset.Score(msg.Subject); score != 0 {
		t.Errorf("repaired subject still scores %d", score)
	}
}

func TestDecodeStructurallyInvalid(t *testing.T) {
	t.Parallel()

	_, err := New().Decode([]byte("this is not a mail message"))
	if !errors.Is(err, ErrParse) {
		t.Fatalf("got %v, want ErrParse", err)
	}
}

func TestFallbackStrategyLatin1Body(t *testing.T) {
	t.Parallel()

	raw := append([]byte(strings.Join([]string{
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Subject: hi",
		"Content-Type: text/plain; charset=iso-8859-1",
		"",
		"",
	}, "\r\n")), []byte{'c', 'a', 'f', 0xE9}...)

	msg, err := (&fallbackStrategy{}).Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.TextBody != "café" {
		t.Errorf("TextBody: got %q, want %q", msg.TextBody, "café")
	}
}

// stubStrategy returns a fixed message or error, for exercising the
// selection logic without real parsing.
type stubStrategy struct {
	name string
	msg  *email.Message
	err  error
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Decode([]byte) (*email.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	// Copy so the decoder's normalizer pass cannot leak between calls.
	cp := *s.msg
	return &cp, nil
}

func TestDecoderPrefersLowerScore(t *testing.T) {
	t.Parallel()

	garbled := &stubStrategy{name: "a", msg: &email.Message{Subject: "CafÃ© menu Ã©"}}
	clean := &stubStrategy{name: "b", msg: &email.Message{Subject: "Café menu é"}}

	msg, err := NewWithStrategies(garbled, clean).Decode([]byte("x: y\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Café menu é" {
		t.Errorf("Subject: got %q, want fallback output", msg.Subject)
	}
}

func TestDecoderFallsBackOnPrimaryError(t *testing.T) {
	t.Parallel()

	failing := &stubStrategy{name: "a", err: errors.New("boom")}
	ok := &stubStrategy{name: "b", msg: &email.Message{Subject: "fine"}}

	msg, err := NewWithStrategies(failing, ok).Decode([]byte("x: y\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "fine" {
		t.Errorf("Subject: got %q", msg.Subject)
	}
}

func TestDecoderBothStrategiesFail(t *testing.T) {
	t.Parallel()

	a := &stubStrategy{name: "a", err: errors.New("boom a")}
	b := &stubStrategy{name: "b", err: errors.New("boom b")}

	_, err := NewWithStrategies(a, b).Decode([]byte("x: y\r\n\r\n"))
	if !errors.Is(err, ErrParse) {
		t.Fatalf("got %v, want ErrParse", err)
	}
}

func TestDecoderTieFavorsPrimary(t *testing.T) {
	t.Parallel()

	// Both outputs carry one mojibake pair; the primary must win. The
	// pair here is deliberately unrepairable noise (reinterpretation
	// fails the validity check) so the normalizer leaves it alone.
	a := &stubStrategy{name: "a", msg: &email.Message{Subject: "primary Ã©Ø"}}
	b := &stubStrategy{name: "b", msg: &email.Message{Subject: "fallbck Ã©Ø"}}

	msg, err := NewWithStrategies(a, b).Decode([]byte("x: y\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(msg.Subject, "primary") {
		t.Errorf("Subject: got %q, want primary output", msg.Subject)
	}
}
