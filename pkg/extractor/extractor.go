// Package extractor provides the named extraction rules the identity linker
// runs against activity free text. Each rule is independent so it can be
// tested and tuned on its own.
package extractor

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Ramsey-B/clover/pkg/normalizers"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Identifiers extracts identifier-shaped substrings (email addresses) from
// free text, normalized and de-duplicated in order of first appearance.
func Identifiers(text string) []string {
	matches := emailPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		normalized := normalizers.NormalizeEmail(m)
		if !seen[normalized] {
			seen[normalized] = true
			out = append(out, normalized)
		}
	}
	return out
}

// Domain returns the domain portion of an identifier, or "" when the value
// is not identifier-shaped.
func Domain(identifier string) string {
	at := strings.LastIndex(identifier, "@")
	if at < 0 || at == len(identifier)-1 {
		return ""
	}
	return normalizers.NormalizeDomain(identifier[at+1:])
}

// freeEmailDomains are provider domains that identify a mailbox, not an
// organization. Domain-derived organization lookups skip them.
var freeEmailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
	"icloud.com":  true,
	"aol.com":     true,
	"proton.me":   true,
}

// IsOrganizationDomain reports whether a domain plausibly identifies an
// organization rather than a free mail provider.
func IsOrganizationDomain(domain string) bool {
	return domain != "" && !freeEmailDomains[domain]
}

// Names extracts capitalized multi-word sequences as person-name
// candidates: two or more consecutive capitalized words, each at least two
// runes. Sequences longer than four words are truncated; real names rarely
// exceed that and longer runs are usually headings.
func Names(text string) []string {
	var out []string
	seen := make(map[string]bool)

	words := strings.Fields(text)
	run := make([]string, 0, 4)

	flush := func() {
		if len(run) >= 2 {
			if len(run) > 4 {
				run = run[:4]
			}
			candidate := strings.Join(run, " ")
			if !seen[candidate] {
				seen[candidate] = true
				out = append(out, candidate)
			}
		}
		run = run[:0]
	}

	for _, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if isCapitalizedWord(trimmed) {
			run = append(run, trimmed)
			// trailing punctuation ends the sequence
			if endsWithPunct(w) {
				flush()
			}
			continue
		}
		flush()
	}
	flush()

	return out
}

// OrganizationTokens detects legal-entity suffix tokens in free text and
// returns the adjacent words plus suffix as candidate organization names
// ("... at Acme Widgets Inc." -> "Acme Widgets Inc"). Up to three words
// preceding the suffix are kept, stopping at a non-capitalized word.
func OrganizationTokens(text string) []string {
	var out []string
	seen := make(map[string]bool)

	words := strings.Fields(text)
	for i, w := range words {
		if !normalizers.IsLegalSuffixToken(w) || i == 0 {
			continue
		}

		start := i
		for start > 0 && i-start < 3 {
			prev := strings.TrimFunc(words[start-1], func(r rune) bool {
				return unicode.IsPunct(r) || unicode.IsSymbol(r)
			})
			if !isCapitalizedWord(prev) {
				break
			}
			start--
		}
		if start == i {
			continue // suffix with no adjacent name words
		}

		parts := make([]string, 0, 4)
		for _, p := range words[start : i+1] {
			parts = append(parts, strings.TrimFunc(p, func(r rune) bool {
				return unicode.IsPunct(r) || unicode.IsSymbol(r)
			}))
		}
		candidate := strings.Join(parts, " ")
		if !seen[candidate] {
			seen[candidate] = true
			out = append(out, candidate)
		}
	}

	return out
}

func endsWithPunct(w string) bool {
	runes := []rune(w)
	if len(runes) == 0 {
		return false
	}
	last := runes[len(runes)-1]
	return unicode.IsPunct(last) || unicode.IsSymbol(last)
}

func isCapitalizedWord(w string) bool {
	runes := []rune(w)
	if len(runes) < 2 {
		return false
	}
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if !unicode.IsLetter(r) && r != '\'' && r != '-' {
			return false
		}
	}
	return true
}
