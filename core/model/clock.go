package model

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of service dates.
const DateLayout = "2006-01-02"

const clockLayout = "15:04"

// Clock is a time of day expressed in minutes after midnight.
type Clock int

// ParseClock parses a zero padded "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	if len(s) != len(clockLayout) {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// On returns the instant of c on the calendar day of date, in date's location.
func (c Clock) On(date time.Time) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, date.Location()).Add(time.Duration(c) * time.Minute)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60%24, int(c)%60)
}

// FormatClock renders the wall clock of t as "HH:MM".
func FormatClock(t time.Time) string {
	return t.Format(clockLayout)
}

// ParseDate parses a service date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid service date %q: %w", s, err)
	}
	return t, nil
}

// Midnight returns the start of the day following date.
func Midnight(date time.Time) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d+1, 0, 0, 0, 0, date.Location())
}
