package assignment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelRoundTripEqualsDedupedNames(t *testing.T) {
	cases := [][]string{
		{"bob"},
		{"bob", "amy", "bob"},
		{" amy ", "carl", "amy"},
		{"Ana María", "o'neil"},
	}
	for _, names := range cases {
		got := ParseLabel(FormatLabel(names))
		assert.Equal(t, dedupe(names), got, "names %v", names)
	}
}

func TestFormatLabel(t *testing.T) {
	assert.Equal(t, "", FormatLabel(nil))
	assert.Equal(t, "Assigned to bob", FormatLabel([]string{"bob"}))
	assert.Equal(t, "Assigned to bob, amy", FormatLabel([]string{"bob", "amy", "bob"}))
}

func TestParseLabelIgnoresNonAssignmentLabels(t *testing.T) {
	assert.Empty(t, ParseLabel(""))
	assert.Empty(t, ParseLabel(ErrorLabel("Server responded with 500")))
	assert.Equal(t, []string{"a", "b"}, ParseLabel("Assigned to a,b, "))
}

func TestValidUsername(t *testing.T) {
	assert.True(t, validUsername("bob"))
	assert.False(t, validUsername("smith, john"))
	assert.False(t, validUsername("  "))
}
