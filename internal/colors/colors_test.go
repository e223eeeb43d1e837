package colors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellfate/domain/core"
)

func TestToHex(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		hasError bool
	}{
		{"#FF0000", "#ff0000", false},
		{"#f00", "#ff0000", false},
		{"#00ff0080", "#00ff00", false},
		{"red", "#ff0000", false},
		{" Blue ", "#0000ff", false},
		{"0", "#000000", false},
		{"1", "#ffffff", false},
		{"foo", "", true},
		{"#zzzzzz", "", true},
		{"#12345", "", true},
		{"#abcdeg", "", true},
		{"#1234567g", "", true},
		{"#1234567", "", true},
		{"#", "", true},
		{"1.5", "", true},
		{"", "", true},
	}

	for _, test := range tests {
		got, err := ToHex(test.input)
		if test.hasError {
			require.Error(t, err, test.input)
			assert.True(t, errors.Is(err, core.ErrInvalidColor))
			continue
		}
		require.NoError(t, err, test.input)
		assert.Equal(t, test.expected, got, test.input)
	}
}

func TestMean(t *testing.T) {
	same, err := Mean([]string{"#336699", "#336699"})
	require.NoError(t, err)
	assert.Equal(t, "#336699", same)

	mixed, err := Mean([]string{"black", "white"})
	require.NoError(t, err)
	assert.NotEqual(t, "#000000", mixed)
	assert.NotEqual(t, "#ffffff", mixed)

	_, err = Mean(nil)
	assert.Error(t, err)

	_, err = Mean([]string{"red", "nope"})
	assert.True(t, errors.Is(err, core.ErrInvalidColor))
}

func TestPaletteDeterministic(t *testing.T) {
	p := NewPalette(7)

	small := p(3)
	assert.Equal(t, []string{"#1f77b4", "#ff7f0e", "#279e68"}, small)

	a := p(40)
	b := p(40)
	require.Len(t, a, 40)
	assert.Equal(t, a, b)

	seen := map[string]bool{}
	for _, c := range a {
		assert.False(t, seen[c], "duplicate color %s", c)
		seen[c] = true
		assert.True(t, IsColorLike(c))
	}

	assert.Empty(t, p(0))
}
