package scanner

import (
	"reflect"
	"testing"
)

func TestScan_MasksIdentifier(t *testing.T) {
	got, ok := Scan("MRN 12345678 here")
	if !ok {
		t.Fatal("expected a match")
	}
	if got != "MRN XXXXXXXX here" {
		t.Errorf("got %q", got)
	}
}

func TestScan_LengthMustBeExact(t *testing.T) {
	for _, s := range []string{"1234567", "123456789", "MRN 1234567 here", "acc 123456789012"} {
		if got, ok := Scan(s); ok {
			t.Errorf("Scan(%q) = %q, expected no match", s, got)
		}
	}
}

func TestScan_NoMatch(t *testing.T) {
	for _, s := range []string{
		"",
		"   ",
		"hello world",
		"?!#()'\"",
		"call me at 555-123-4567",
		"abc12345678",
		"12345678abc",
		"1234 5678",
		"日本語のテキスト",
	} {
		if got, ok := Scan(s); ok {
			t.Errorf("Scan(%q) = %q, expected no match", s, got)
		}
	}
}

func TestScan_OnlyASCIIDigits(t *testing.T) {
	for _, s := range []string{
		"\u0661\u0662\u0663\u0664\u0665\u0666\u0667\u0668", // Arabic-Indic
		"\uff11\uff12\uff13\uff14\uff15\uff16\uff17\uff18", // fullwidth
		"MRN \u0967\u0968\u0969\u096a\u096b\u096c\u096d\u096e",
	} {
		if got, ok := Scan(s); ok {
			t.Errorf("Scan(%q) = %q, expected no match", s, got)
		}
	}
}

func TestScan_PunctuationAdjacent(t *testing.T) {
	cases := map[string]string{
		"MRN: 12345678, please check": "MRN: XXXXXXXX, please check",
		"(12345678)":                  "(XXXXXXXX)",
		"is it 12345678?":             "is it XXXXXXXX?",
		`"12345678"`:                  `"XXXXXXXX"`,
		"#12345678!":                  "#XXXXXXXX!",
		"exam 12345678.":              "exam XXXXXXXX.",
		"it's 12345678's chart":       "it's XXXXXXXX's chart",
		"tab\t12345678\nnewline":      "tab\tXXXXXXXX\nnewline",
	}
	for in, want := range cases {
		got, ok := Scan(in)
		if !ok {
			t.Errorf("Scan(%q): expected a match", in)
			continue
		}
		if got != want {
			t.Errorf("Scan(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScan_MultipleIdentifiers(t *testing.T) {
	got, ok := Scan("12345678 and 87654321 and 12345678 again")
	if !ok {
		t.Fatal("expected a match")
	}
	want := "XXXXXXXX and XXXXXXXX and XXXXXXXX again"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestScan_DoesNotMaskInsideLongerRuns(t *testing.T) {
	got, ok := Scan("12345678 / 123456789")
	if !ok {
		t.Fatal("expected a match")
	}
	if got != "XXXXXXXX / 123456789" {
		t.Errorf("got %q", got)
	}
}

func TestScan_Idempotent(t *testing.T) {
	in := "nothing to see here 1234567"
	a, okA := Scan(in)
	b, okB := Scan(in)
	if okA || okB || a != b {
		t.Errorf("expected identical no-match results, got (%q,%v) and (%q,%v)", a, okA, b, okB)
	}

	masked, _ := Scan("MRN 12345678")
	if again, ok := Scan(masked); ok {
		t.Errorf("masked text should not match again, got %q", again)
	}
}

func TestTokens_Deduplicates(t *testing.T) {
	got := Tokens("12345678, 87654321 (12345678) 1234567")
	want := []string{"12345678", "87654321"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokens_Empty(t *testing.T) {
	if got := Tokens(""); len(got) != 0 {
		t.Errorf("expected no tokens, got %v", got)
	}
}
