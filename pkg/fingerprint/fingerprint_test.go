package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercase passthrough",
			input:    "blue train",
			expected: "blue train",
		},
		{
			name:     "case folding",
			input:    "Blue Train",
			expected: "blue train",
		},
		{
			name:     "diacritics stripped",
			input:    "Björk",
			expected: "bjork",
		},
		{
			name:     "punctuation becomes separator",
			input:    "AC/DC",
			expected: "ac dc",
		},
		{
			name:     "whitespace collapsed",
			input:    "  Miles   Davis  ",
			expected: "miles davis",
		},
		{
			name:     "mixed punctuation and accents",
			input:    "Café Tacvba: Re!",
			expected: "cafe tacvba re",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "only punctuation",
			input:    "?!...",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Blue Train",
		"Björk",
		"AC/DC",
		"Sigur Rós",
		"  spaced   out  ",
		"already normalized",
	}

	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "normalizing %q twice changed the result", input)
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "john coltrane::blue train", Key("John Coltrane", "Blue Train"))
	assert.Equal(t, "bjork::post", Key("Björk", "Post"))

	// Equivalent spellings collapse to the same key.
	assert.Equal(t,
		Key("Sigur Rós", "Takk"),
		Key("sigur ros", "takk"),
	)

	// Distinct albums stay distinct.
	assert.NotEqual(t,
		Key("John Coltrane", "Blue Train"),
		Key("John Coltrane", "Giant Steps"),
	)
}
