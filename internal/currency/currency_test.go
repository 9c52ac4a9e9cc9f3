package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"2.675", "2.68"},
		{"-1.005", "-1.01"},
		{"0.125", "0.13"},
		{"10", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Round(decimal.RequireFromString(tt.in))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestParse(t *testing.T) {
	d, err := Parse("19.90")
	require.NoError(t, err)
	assert.Equal(t, "19.9", d.String())

	_, err = Parse("1.999")
	assert.Error(t, err)

	_, err = Parse("abc")
	assert.Error(t, err)
}

func TestPercentAndClamp(t *testing.T) {
	got := Percent(MustParse("200"), MustParse("4.99"))
	assert.True(t, got.Equal(MustParse("9.98")))

	assert.True(t, Max0(MustParse("-3")).IsZero())
	assert.True(t, Sum(MustParse("1.10"), MustParse("2.20")).Equal(MustParse("3.30")))
}
