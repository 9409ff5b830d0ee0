package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareInts(t *testing.T) {
	cmp, ok := Compare(NewInt(3), NewInt(7))
	require.True(t, ok)
	require.Negative(t, cmp)

	cmp, ok = Compare(NewInt(7), NewInt(7))
	require.True(t, ok)
	require.Zero(t, cmp)
}

func TestCompareFloatEpsilon(t *testing.T) {
	cmp, ok := Compare(NewFloat(1.0000001), NewFloat(1.0000004))
	require.True(t, ok)
	require.Zero(t, cmp, "difference below 1e-6 compares equal")

	cmp, ok = Compare(NewFloat(1.0), NewFloat(1.5))
	require.True(t, ok)
	require.Negative(t, cmp)
}

func TestCompareNullIsUnknown(t *testing.T) {
	_, ok := Compare(NewNull(), NewInt(1))
	require.False(t, ok)

	// NULL does not even equal NULL.
	_, ok = Compare(NewNull(), NewNull())
	require.False(t, ok)
}

func TestCompareTypeMismatch(t *testing.T) {
	_, ok := Compare(NewInt(1), NewChars("1"))
	require.False(t, ok)

	// CHARS and TEXT share an ordering.
	cmp, ok := Compare(NewChars("abc"), NewText("abd"))
	require.True(t, ok)
	require.Negative(t, cmp)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		v   Value
		len int
	}{
		{NewInt(-42), 4},
		{NewFloat(3.25), 4},
		{NewChars("foo"), 8},
		{NewDate(20210515), 4},
	}
	for _, tc := range cases {
		got := Decode(tc.v.Type, tc.v.Encode(tc.len))
		cmp, ok := Compare(tc.v, got)
		require.True(t, ok)
		require.Zero(t, cmp, "round trip for %v", tc.v)
	}
}

func TestCharsCStringOrder(t *testing.T) {
	a := NewChars("ab").Encode(8)
	b := NewChars("abc").Encode(8)
	require.Negative(t, CompareBytes(Chars, a, b))
	require.Zero(t, CompareBytes(Chars, a, NewChars("ab").Encode(16)))
}

func TestFloatFormatTrimsZeros(t *testing.T) {
	require.Equal(t, "17.1", NewFloat(17.101).Format())
	require.Equal(t, "2", NewFloat(2.0).Format())
	require.Equal(t, "2.5", NewFloat(2.5).Format())
}

func TestNullSentinel(t *testing.T) {
	require.Equal(t, []byte{0, 0, 0, 0}, NullSentinel(Int32, 4))
	require.Equal(t, byte('N'), NullSentinel(Chars, 8)[0])

	d := Decode(Date, NullSentinel(Date, 4))
	require.Equal(t, int32(19700101), d.Int)
}
