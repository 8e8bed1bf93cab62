// Package normalizers provides named normalization functions shared by the
// similarity scorer, the candidate generator, and the identity linker.
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nemail", NormalizeEmail)
	Register("ndomain", NormalizeDomain)
	Register("ncompany", NormalizeCompanyName)
	Register("nname", NormalizePersonName)
	Register("remove_punctuation", RemovePunctuation)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// legalSuffixes are the legal-entity tokens stripped from company names
// before similarity scoring. Order matters: longer forms first so "company"
// is removed before "co".
var legalSuffixes = []string{
	"incorporated", "corporation", "company", "limited",
	"inc", "llc", "corp", "ltd", "co",
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeDomain normalizes a domain or website value for lookups:
// lowercase, strip scheme, strip "www.", strip any path.
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// NormalizeCompanyName normalizes an organization name for matching:
// lowercase, strip punctuation, collapse whitespace, strip trailing
// legal-entity suffixes (Inc, LLC, Corp, Ltd, Co, Company). A suffix is
// only stripped while at least two tokens remain; collapsing a name like
// "Weedman Co" down to a single generic token makes it collide with
// unrelated single-word names.
func NormalizeCompanyName(s string) string {
	s = stripPunctuation(strings.ToLower(s))

	tokens := strings.Fields(s)
	for len(tokens) > 2 && isLegalSuffix(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}

// NormalizePersonName normalizes a person's name for matching:
// lowercase, strip punctuation, collapse whitespace, strip common
// generational and title suffixes.
func NormalizePersonName(s string) string {
	s = stripPunctuation(strings.ToLower(s))

	suffixes := map[string]bool{
		"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
		"phd": true, "md": true,
	}
	tokens := strings.Fields(s)
	for len(tokens) > 1 && suffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}

// RemovePunctuation removes all punctuation and symbol characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// IsLegalSuffixToken reports whether a token is one of the legal-entity
// suffixes. The organization-token extractor uses it to spot candidate
// company names in free text.
func IsLegalSuffixToken(token string) bool {
	return isLegalSuffix(stripPunctuation(strings.ToLower(token)))
}

func isLegalSuffix(token string) bool {
	for _, suffix := range legalSuffixes {
		if token == suffix {
			return true
		}
	}
	return false
}

func stripPunctuation(s string) string {
	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !prevSpace && result.Len() > 0 {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(result.String())
}
