package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dates are stored packed as YYYYMMDD in an int32. The supported range is
// [1970-01-01, 2038-01-31].
const (
	epochDate int32 = 19700101
	maxDate   int32 = 20380131
)

var dateShape = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`)

// LooksLikeDate reports whether a string literal has the date shape. Shape
// alone does not make it a valid date; ParseDate decides that.
func LooksLikeDate(s string) bool { return dateShape.MatchString(s) }

// ParseDate converts a date literal to its packed form. It returns a single
// verdict: shape, calendar validity and range are all checked here.
func ParseDate(s string) (int32, error) {
	if !dateShape.MatchString(s) {
		return 0, fmt.Errorf("bad date literal %q", s)
	}
	parts := strings.SplitN(s, "-", 3)
	year, _ := strconv.Atoi(parts[0])
	month, _ := strconv.Atoi(parts[1])
	day, _ := strconv.Atoi(parts[2])

	if !validDate(year, month, day) {
		return 0, fmt.Errorf("impossible date %q", s)
	}
	packed := int32(year*10000 + month*100 + day)
	if packed < epochDate || packed > maxDate {
		return 0, fmt.Errorf("date %q out of range", s)
	}
	return packed, nil
}

func validDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	return day <= daysInMonth(year, month)
}

func daysInMonth(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if isLeapYear(year) {
			return 29
		}
		return 28
	}
	return 0
}

func isLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// FormatDate renders a packed date as YYYY-MM-DD.
func FormatDate(packed int32) string {
	return fmt.Sprintf("%04d-%02d-%02d", packed/10000, packed/100%100, packed%100)
}
