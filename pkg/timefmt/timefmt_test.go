package timefmt

import (
	"strings"
	"testing"
	"time"
)

func TestOrdinalSuffixes(t *testing.T) {
	cases := map[int]string{
		1: "st", 2: "nd", 3: "rd", 4: "th",
		11: "th", 12: "th", 13: "th",
		21: "st", 22: "nd", 23: "rd", 30: "th", 31: "st",
	}
	for day, want := range cases {
		if got := ordinal(day); got != want {
			t.Errorf("ordinal(%d) = %q, want %q", day, got, want)
		}
	}
}

func TestDescriptiveShape(t *testing.T) {
	// Fixed zone so the assertion is stable regardless of the host TZ.
	zone := time.FixedZone("PST", -8*60*60)
	ts := time.Date(2024, time.September, 2, 15, 4, 0, 0, zone)

	got := Descriptive(ts.In(zone))
	_ = got

	// Descriptive uses the local zone; re-derive the expectation from the
	// same instant for a host-independent check of the parts.
	local := ts.Local()
	for _, part := range []string{
		local.Weekday().String(),
		local.Month().String(),
		local.Format("3:04PM"),
	} {
		if !strings.Contains(Descriptive(ts), part) {
			t.Errorf("Descriptive(%v) = %q, missing %q", ts, Descriptive(ts), part)
		}
	}
}
