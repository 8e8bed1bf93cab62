package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCompanyName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "ACME Widgets", "acme widgets"},
		{"strips punctuation", "Acme, Widgets. Inc", "acme widgets"},
		{"strips trailing suffix", "Acme Widgets Inc", "acme widgets"},
		{"strips stacked suffixes", "Acme Widgets Co Ltd", "acme widgets"},
		{"keeps at least two tokens", "Acme Inc", "acme inc"},
		{"keeps single-token collapse", "Weedman Co", "weedman co"},
		{"collapses whitespace", "  Acme   Widgets  ", "acme widgets"},
		{"suffix in the middle stays", "Inc Acme Widgets", "inc acme widgets"},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeCompanyName(tc.input))
		})
	}
}

func TestNormalizeCompanyName_SamePunctuationVariants(t *testing.T) {
	// The punctuation variants of a name must normalize identically.
	assert.Equal(t, NormalizeCompanyName("Acme Inc."), NormalizeCompanyName("ACME, Inc"))
}

func TestNormalizePersonName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "John Doe", "john doe"},
		{"strips generational suffix", "John Doe Jr.", "john doe"},
		{"strips title suffix", "Jane Smith PhD", "jane smith"},
		{"keeps bare name", "Madonna", "madonna"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizePersonName(tc.input))
		})
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare domain", "acme.com", "acme.com"},
		{"strips scheme", "https://acme.com", "acme.com"},
		{"strips www", "www.acme.com", "acme.com"},
		{"strips path", "https://www.acme.com/about?x=1", "acme.com"},
		{"lowercases", "ACME.COM", "acme.com"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeDomain(tc.input))
		})
	}
}

func TestApply_UnknownNormalizerPassesThrough(t *testing.T) {
	assert.Equal(t, "Value", Apply("Value", "nope"))
	assert.Equal(t, "value", Apply("Value", "lowercase"))
}

func TestIsLegalSuffixToken(t *testing.T) {
	assert.True(t, IsLegalSuffixToken("Inc."))
	assert.True(t, IsLegalSuffixToken("LLC"))
	assert.False(t, IsLegalSuffixToken("Widgets"))
}
