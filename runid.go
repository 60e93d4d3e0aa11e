package waveq3d

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// ParseReferenceTime parses a GSF-style "yyyy/ddd hh:mm:ss" reference time
// (e.g. "1970/001 00:00:00") into a UTC time.Time, the same format the
// teacher's PROCESSING_PARAMETERS reference times use.
func ParseReferenceTime(s string) (time.Time, error) {
	parts := strings.SplitN(s, " ", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("waveq3d: invalid reference time %q: want \"yyyy/ddd hh:mm:ss\"", s)
	}

	dateParts := strings.SplitN(parts[0], "/", 2)
	if len(dateParts) != 2 {
		return time.Time{}, fmt.Errorf("waveq3d: invalid reference date %q: want \"yyyy/ddd\"", parts[0])
	}
	year, err := strconv.Atoi(dateParts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("waveq3d: invalid reference year %q: %w", dateParts[0], err)
	}
	doy, err := strconv.Atoi(dateParts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("waveq3d: invalid reference day-of-year %q: %w", dateParts[1], err)
	}
	month, day := julian.DayOfYearToCalendar(doy, julian.LeapYearGregorian(year))

	hms := strings.Split(parts[1], ":")
	if len(hms) != 3 {
		return time.Time{}, fmt.Errorf("waveq3d: invalid reference time-of-day %q: want \"hh:mm:ss\"", parts[1])
	}
	clock := make([]int, 3)
	for i, v := range hms {
		n, err := strconv.Atoi(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("waveq3d: invalid reference time-of-day %q: %w", parts[1], err)
		}
		clock[i] = n
	}

	return time.Date(year, time.Month(month), day, clock[0], clock[1], clock[2], 0, time.UTC), nil
}

// NewRunID stamps a run_id from a reference time and a scenario label:
// "<label>-<reference time as RFC3339>", the identifier passed to every
// eigenray listener of a run (spec.md §3, §6).
func NewRunID(label string, reference time.Time) string {
	return label + "-" + reference.UTC().Format(time.RFC3339)
}
