// Package mimedec turns raw message octets into a structured message.
// Two decode strategies are tried that differ only in how 8-bit text is
// mapped to Unicode; the decoder scores both outputs for visible mojibake
// and keeps the cleaner one. The decoder does not fix bad encoding itself
// beyond the final charset-normalizer pass.
package mimedec

import (
	"errors"
	"fmt"

	"github.com/atomine-elektrine/elektrine-haraka/internal/charset"
	"github.com/atomine-elektrine/elektrine-haraka/internal/email"
)

// ErrParse indicates structurally invalid input: the octets are not a
// valid message framing under either strategy.
var ErrParse = errors.New("invalid message structure")

// Strategy is one way of decoding raw octets into a message. Strategies
// must be safe for concurrent use.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// Decode parses the raw octets. A returned error is decode-class:
	// the decoder falls back to the next strategy unconditionally.
	Decode(raw []byte) (*email.Message, error)
}

// Decoder selects between an explicitly configured pair of strategies.
type Decoder struct {
	primary  Strategy
	fallback Strategy
}

// New returns a Decoder with the default strategy pair: the go-message
// library conversion path first, the Latin-1 fallback path second.
func New() *Decoder {
	return NewWithStrategies(&libStrategy{}, &fallbackStrategy{})
}

// NewWithStrategies returns a Decoder using the given strategy pair.
func NewWithStrategies(primary, fallback Strategy) *Decoder {
	return &Decoder{primary: primary, fallback: fallback}
}

// Decode parses raw message octets into a structured message. The
// primary strategy's output is kept unless it fails or the fallback
// scores strictly better; ties favor the primary. The subject gets a
// second, header-line-level RFC 2047 pass, and every final text field
// runs through the charset normalizer.
func (d *Decoder) Decode(raw []byte) (*email.Message, error) {
	msg, perr := d.primary.Decode(raw)
	if perr != nil {
		alt, ferr := d.fallback.Decode(raw)
		if ferr != nil {
			return nil, fmt.Errorf("%w: %s: %v; %s: %v",
				ErrParse, d.primary.Name(), perr, d.fallback.Name(), ferr)
		}
		msg = alt
	} else if scoreMessage(msg) > 0 {
		// The primary produced visibly garbled text; see whether the
		// fallback mapping does better.
		if alt, ferr := d.fallback.Decode(raw); ferr == nil {
			if scoreMessage(alt) < scoreMessage(msg) {
				msg = alt
			}
		}
	}

	// The general decoder may already have degraded an encoded-word
	// subject, so re-decode it straight off the raw header line and
	// keep whichever scores strictly lower.
	if rawSubject, ok := rawHeaderLine(raw, "Subject"); ok {
		if decoded, err := decodeEncodedWords(rawSubject); err == nil {
			if charset.Score(decoded) < charset.Score(msg.Subject) {
				msg.Subject = decoded
			}
		}
	}

	msg.Subject = charset.NormalizeHeader(msg.Subject)
	msg.From = charset.NormalizeHeader(msg.From)
	msg.To = charset.NormalizeHeader(msg.To)
	msg.TextBody = charset.NormalizeHeader(msg.TextBody)
	msg.HtmlBody = charset.NormalizeHeader(msg.HtmlBody)

	return msg, nil
}

// scoreMessage sums the mojibake score across subject, bodies, and
// address display text. Each field is already prefix-capped by the
// scorer, which bounds the cost on oversized bodies.
func scoreMessage(m *email.Message) int {
	return charset.Score(m.Subject) +
		charset.Score(m.TextBody) +
		charset.Score(m.HtmlBody) +
		charset.Score(m.From) +
		charset.Score(m.To)
}
