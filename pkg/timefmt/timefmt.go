// Package timefmt formats timestamps the way they are spoken: a descriptive
// local string the language model can read back to the user verbatim.
package timefmt

import (
	"fmt"
	"time"
)

// Descriptive renders t in the local time zone as e.g.
// "Monday 2nd September 2024, 3:04PM, PDT".
func Descriptive(t time.Time) string {
	local := t.Local()
	day := local.Day()
	return fmt.Sprintf("%s %d%s %s %d, %s, %s",
		local.Weekday(),
		day,
		ordinal(day),
		local.Month(),
		local.Year(),
		local.Format("3:04PM"),
		local.Format("MST"),
	)
}

// ordinal returns the English ordinal suffix for a day of month.
func ordinal(n int) string {
	if n >= 11 && n <= 13 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
