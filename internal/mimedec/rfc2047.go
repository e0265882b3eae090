package mimedec

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// wordDecoder decodes RFC 2047 encoded-words with charset names resolved
// through the x/text index, independently of go-message's registry.
var wordDecoder = &mime.WordDecoder{CharsetReader: fallbackCharsetReader}

// rawHeaderLine returns the unfolded, undecoded value of a header from
// the raw octets, bypassing both decode strategies.
func rawHeaderLine(raw []byte, key string) (string, bool) {
	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return "", false
	}
	v := parsed.Header.Get(key)
	return v, v != ""
}

// decodeEncodedWords decodes a header value's RFC 2047 encoded-words.
// Stray 8-bit bytes left after decoding are mapped byte-for-byte.
func decodeEncodedWords(s string) (string, error) {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(decoded) {
		decoded = latin1String([]byte(decoded))
	}
	return decoded, nil
}

// decodeHeaderText is decodeEncodedWords with a pass-through on failure,
// for use on headers where best-effort text is always wanted.
func decodeHeaderText(s string) string {
	if decoded, err := decodeEncodedWords(s); err == nil {
		return decoded
	}
	if !utf8.ValidString(s) {
		return latin1String([]byte(s))
	}
	return s
}

// fallbackCharsetReader resolves a charset by name via the x/text HTML
// index, which covers the single-byte and CJK charsets seen in mail.
func fallbackCharsetReader(cs string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return nil, fmt.Errorf("unhandled charset %q: %w", cs, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
