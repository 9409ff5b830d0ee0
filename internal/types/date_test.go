package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	ok := []struct {
		in   string
		want int32
	}{
		{"2021-05-15", 20210515},
		{"1970-1-1", 19700101},
		{"2038-01-31", 20380131},
		{"2000-02-29", 20000229}, // divisible by 400: leap
		{"1996-2-29", 19960229},
	}
	for _, tc := range ok {
		got, err := ParseDate(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}

	bad := []string{
		"2021-02-29", // not a leap year
		"1900-02-29", // divisible by 100, not 400
		"2021-04-31",
		"2021-13-01",
		"2021-00-10",
		"2021-01-00",
		"1969-12-31", // before epoch
		"2038-02-01", // past the range end
		"21-01-01",
		"2021/01/01",
	}
	for _, in := range bad {
		_, err := ParseDate(in)
		require.Error(t, err, in)
	}
}

func TestFormatDate(t *testing.T) {
	require.Equal(t, "2021-05-05", FormatDate(20210505))
	require.Equal(t, "1970-01-01", FormatDate(19700101))
}

func TestLooksLikeDate(t *testing.T) {
	require.True(t, LooksLikeDate("2021-2-29")) // shape only; validity is ParseDate's call
	require.False(t, LooksLikeDate("hello"))
	require.False(t, LooksLikeDate("2021-02-29x"))
}
