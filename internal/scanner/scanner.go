// Package scanner detects 8-digit identifiers (MRNs, accession numbers) in
// free text and masks them.
package scanner

import (
	"regexp"
	"strings"
)

const (
	// IdentifierLen is the exact number of digits a token must have to qualify.
	IdentifierLen = 8

	// Mask replaces every qualifying identifier.
	Mask = "XXXXXXXX"
)

// punctuation is treated as whitespace when splitting text into tokens.
var punctuation = strings.NewReplacer(
	".", " ", ",", " ", "?", " ", "!", " ", ":", " ",
	"(", " ", ")", " ", "#", " ", "'", " ", `"`, " ",
)

var digitRun = regexp.MustCompile(`[0-9]+`)

// Tokens returns the qualifying identifiers in text, in order of appearance,
// without duplicates.
func Tokens(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(punctuation.Replace(text)) {
		if !isIdentifier(tok) || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// Scan reports whether text contains an identifier and, if so, returns text
// with each occurrence masked.
//
// Only maximal digit runs are masked, so a qualifying value never masks the
// prefix of a longer number elsewhere in the message.
func Scan(text string) (string, bool) {
	tokens := Tokens(text)
	if len(tokens) == 0 {
		return "", false
	}
	qualifying := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		qualifying[tok] = true
	}
	redacted := digitRun.ReplaceAllStringFunc(text, func(run string) string {
		if qualifying[run] {
			return Mask
		}
		return run
	})
	return redacted, true
}

// isIdentifier accepts ASCII digits only.
func isIdentifier(tok string) bool {
	if len(tok) != IdentifierLen {
		return false
	}
	for i := 0; i < len(tok); i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return false
		}
	}
	return true
}
