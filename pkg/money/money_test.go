package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in    string
		scale int32
		want  string
	}{
		{"0.000000005", 8, "0.00000001"},
		{"0.000000004", 8, "0"},
		{"1.25", 1, "1.3"},
		{"99.9972", 8, "99.9972"},
	}
	for _, tc := range cases {
		got := Round(decimal.RequireFromString(tc.in), tc.scale)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "round(%s, %d) = %s", tc.in, tc.scale, got)
	}
}

func TestNormalizeRemovesFloatNoise(t *testing.T) {
	noisy := decimal.NewFromFloat(0.1 + 0.2)
	assert.True(t, Normalize(noisy, DefaultScale).Equal(decimal.RequireFromString("0.3")))
}

func TestParse(t *testing.T) {
	d, err := Parse(" 12.50 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("12.5")))

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = Parse("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSumIsExact(t *testing.T) {
	values := make([]decimal.Decimal, 0, 1000)
	for i := 0; i < 1000; i++ {
		values = append(values, decimal.RequireFromString("0.0001"))
	}
	assert.True(t, Sum(values...).Equal(decimal.RequireFromString("0.1")))
}
