package passgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		sets []string
	}{
		{"default", DefaultOptions(), []string{lower, upper, digits, symbols}},
		{"lower only", Options{Length: 8}, []string{lower}},
		{"digits", Options{Length: 4, Digits: true}, []string{lower, digits}},
		{"exact fit", Options{Length: 4, Digits: true, Symbols: true, Uppercase: true}, []string{lower, upper, digits, symbols}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for n := 0; n < 20; n++ {
				p, err := Generate(tt.opts)
				require.NoError(t, err)
				require.Len(t, p, tt.opts.Length)

				allowed := strings.Join(tt.sets, "")
				for _, c := range p {
					assert.Contains(t, allowed, string(c))
				}
				for _, set := range tt.sets {
					assert.True(t, strings.ContainsAny(p, set), "%q has nothing from %q", p, set)
				}
			}
		})
	}
}

func TestGenerate_TooShort(t *testing.T) {
	_, err := Generate(Options{Length: 2, Digits: true, Symbols: true})
	require.ErrorIs(t, err, ErrTooShort)

	_, err = Generate(Options{})
	require.ErrorIs(t, err, ErrTooShort)
}

func TestGenerate_Differs(t *testing.T) {
	a, err := Generate(DefaultOptions())
	require.NoError(t, err)
	b, err := Generate(DefaultOptions())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
