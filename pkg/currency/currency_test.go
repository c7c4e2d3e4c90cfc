package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToLamports(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"1", 1_000_000_000},
		{"0.3", 300_000_000},
		{"0.000000001", 1},
		{"2.5", 2_500_000_000},
	}
	for _, tc := range cases {
		got, err := ToLamports(decimal.RequireFromString(tc.in))
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestToLamportsRejects(t *testing.T) {
	_, err := ToLamports(decimal.RequireFromString("-0.1"))
	require.ErrorIs(t, err, ErrNegativeAmount)

	_, err = ToLamports(decimal.RequireFromString("0.0000000001"))
	require.ErrorIs(t, err, ErrTooPrecise)

	_, err = ToLamports(decimal.RequireFromString("99999999999"))
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestFromLamports(t *testing.T) {
	require.Equal(t, "0.3", FromLamports(300_000_000).String())
	require.Equal(t, "1", FromLamports(1_000_000_000).String())
	require.Equal(t, "0.000000001", FromLamports(1).String())
}

func TestRoundTripPreservesThirds(t *testing.T) {
	// 0.3 SOL three times out of a 1 SOL budget leaves exactly 0.1 SOL.
	budget := int64(1_000_000_000)
	share, err := ToLamports(decimal.RequireFromString("0.3"))
	require.NoError(t, err)

	remaining := budget - 3*share
	require.Equal(t, "0.1", FromLamports(remaining).String())
}
