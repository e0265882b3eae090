package charset

import "testing"

func TestNormalizeHeaderRepairsPairMojibake(t *testing.T) {
	t.Parallel()

	// "é" (UTF-8 0xC3 0xA9) decoded byte-at-a-time as Latin-1.
	got := NormalizeHeader("CafÃ©")
	if got != "Café" {
		t.Errorf("got %q, want %q", got, "Café")
	}
}

func TestNormalizeHeaderRepairsC1Controls(t *testing.T) {
	t.Parallel()

	// Right single quote U+2019 (UTF-8 0xE2 0x80 0x99) mis-decoded; the
	// continuation bytes surface as C1 control code points.
	in := "itâs"
	got := NormalizeHeader(in)
	if got != "it’s" {
		t.Errorf("got %q, want %q", got, "it’s")
	}
	if Score(got) != 0 {
		t.Errorf("repaired text still scores %d", Score(got))
	}
}

func TestNormalizeHeaderIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"plain ascii subject",
		"Café au lait",
		"CafÃ©",
		"itâs",
		"日本語の件名",
		"Ã©Ã¨Ã ",
	}
	for _, in := range inputs {
		once := NormalizeHeader(in)
		twice := NormalizeHeader(once)
		if once != twice {
			t.Errorf("NormalizeHeader not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeHeaderLeavesCleanTextAlone(t *testing.T) {
	t.Parallel()

	cases := []string{
		"Hello, world",
		"Café",             // legitimate extended Latin, no signature
		"Übersicht für Q3", // umlauts followed by ASCII never form pairs
		"日本語の件名",           // multi-byte runes disqualify reinterpretation
	}
	for _, in := range cases {
		if got := NormalizeHeader(in); got != in {
			t.Errorf("NormalizeHeader(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"clean ascii", "hello", 0},
		{"clean extended latin", "Café", 0},
		{"one pair", "Ã©", 1},
		{"c1 controls", "", 2},
		{"replacement char", "a�b", 1},
	}
	for _, tt := range tests {
		if got := Score(tt.in); got != tt.want {
			t.Errorf("%s: Score(%q) = %d, want %d", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestScoreBoundedPrefix(t *testing.T) {
	t.Parallel()

	// Damage beyond the prefix cap must not blow up the cost or the
	// count unboundedly.
	long := make([]rune, 0, scorePrefixLimit+100)
	for i := 0; i < scorePrefixLimit+100; i++ {
		long = append(long, 'a')
	}
	long = append(long, 'Ã', '©')
	if got := Score(string(long)); got != 0 {
		t.Errorf("damage past the prefix cap was counted: %d", got)
	}
}
