// Package charset repairs a specific, detectable mis-decoding pattern in
// header text: multi-byte UTF-8 sequences that were decoded one byte at a
// time as a Latin-family single-byte charset (mojibake).
package charset

import (
	"strings"
	"unicode/utf8"
)

// scorePrefixLimit bounds how many runes of a field are inspected when
// scoring, so pathological inputs cannot make scoring expensive.
const scorePrefixLimit = 4096

// maxRepairRounds bounds repeated repair of nested mis-decodings. Each
// round must strictly improve the score, so the loop always terminates;
// the cap just keeps the worst case cheap.
const maxRepairRounds = 4

// Score returns a cheap quality score for s: the number of C1 control
// code points, UTF-8 lead/continuation byte pairs visible as code
// points, and literal replacement characters within a bounded prefix.
// Lower is better; clean text scores zero.
func Score(s string) int {
	c1, pairs, repl := inspect(s)
	return c1 + pairs + repl
}

// NormalizeHeader repairs mojibake in header text and returns the result.
// Input without the mojibake signature, or input that cannot be safely
// reinterpreted, is returned unchanged. The function is idempotent:
// repaired text no longer carries the signature that triggers repair.
func NormalizeHeader(s string) string {
	out := s
	for i := 0; i < maxRepairRounds; i++ {
		repaired, changed := repairOnce(out)
		if !changed {
			return out
		}
		out = repaired
	}
	return out
}

// repairOnce performs a single reinterpretation pass. It reports whether
// the output differs from the input.
func repairOnce(s string) (string, bool) {
	if s == "" {
		return s, false
	}

	c1Before, pairsBefore, _ := inspect(s)
	if c1Before == 0 && pairsBefore == 0 {
		return s, false
	}

	// Reinterpretation is only meaningful when every code point fits in
	// a single byte; anything above 0xFF means the text was not produced
	// by a byte-at-a-time mis-decode.
	raw := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return s, false
		}
		raw = append(raw, byte(r))
	}

	if !utf8.Valid(raw) {
		return s, false
	}

	repaired := string(raw)
	if strings.ContainsRune(repaired, utf8.RuneError) {
		return s, false
	}

	// Accept only on strict improvement: control codes eliminated, or
	// fewer mojibake pairs than before. Ambiguous extended-Latin text is
	// deliberately left untouched.
	c1After, pairsAfter, _ := inspect(repaired)
	if c1After > 0 {
		return s, false
	}
	if c1Before > 0 || pairsAfter < pairsBefore {
		return repaired, repaired != s
	}
	return s, false
}

// inspect counts the three damage signals over a bounded prefix of s.
func inspect(s string) (c1, pairs, repl int) {
	var prev rune = -1
	n := 0
	for _, r := range s {
		if n >= scorePrefixLimit {
			break
		}
		n++

		switch {
		case r >= 0x80 && r <= 0x9F:
			c1++
		case r == utf8.RuneError:
			repl++
		}

		// A UTF-8 lead byte (0xC2..0xF4) followed by a continuation
		// byte (0x80..0xBF), both visible as individual code points,
		// is the mojibake pair signature.
		if prev >= 0xC2 && prev <= 0xF4 && r >= 0x80 && r <= 0xBF {
			pairs++
		}
		prev = r
	}
	return c1, pairs, repl
}
