package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRound2HalfAwayFromZero(t *testing.T) {
	cases := map[string]string{
		"3.888":  "3.89",
		"3.885":  "3.89",
		"3.884":  "3.88",
		"-3.885": "-3.89",
		"10.5":   "10.50",
		"0.005":  "0.01",
	}
	for in, want := range cases {
		got := Format(Round2(MustParse(in)))
		require.Equal(t, want, got, "round %s", in)
	}
}

func TestPercentAndLineTotal(t *testing.T) {
	require.True(t, MustParse("11").Equal(Percent(MustParse("110"), MustParse("10"))))
	require.True(t, MustParse("66.66").Equal(LineTotal(MustParse("33.33"), 2)))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
	_, err = Parse("12,50")
	require.Error(t, err)

	got, err := ParseOptional(nil)
	require.NoError(t, err)
	require.Nil(t, got)
}
