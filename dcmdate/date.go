// Package dcmdate encodes and decodes the DICOM DA and TM value representations.
package dcmdate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidDate = errors.New("dcmdate: invalid DA value")
	ErrInvalidTime = errors.New("dcmdate: invalid TM value")
)

// Date is a calendar date as carried by a DA element.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Time is a time of day as carried by a TM element. Micros holds the
// fractional second in microseconds, the finest precision TM allows.
type Time struct {
	Hour   int
	Minute int
	Second int
	Micros int
}

// FromTime splits a wall-clock instant into its DICOM date and time parts.
func FromTime(t time.Time) (Date, Time) {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d},
		Time{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Micros: t.Nanosecond() / 1000}
}

// Combine joins a date and a time back into an instant in loc.
func Combine(d Date, tm Time, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, tm.Hour, tm.Minute, tm.Second, tm.Micros*1000, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

func (tm Time) String() string {
	return fmt.Sprintf("%02d%02d%02d.%06d", tm.Hour, tm.Minute, tm.Second, tm.Micros)
}

// ParseDate decodes YYYYMMDD. The legacy YYYY.MM.DD form is accepted too.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ".", ""))
	if len(s) != 8 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	d, _ := FromTime(t)
	return d, nil
}

// ParseTime decodes HH, HHMM, HHMMSS and HHMMSS.F{1,6}.
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(whole) < 2 || len(whole) > 6 || len(whole)%2 != 0 || len(frac) > 6 {
		return Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	if frac != "" && len(whole) != 6 {
		return Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	var parts [3]int
	for i := 0; i*2 < len(whole); i++ {
		n, err := strconv.Atoi(whole[i*2 : i*2+2])
		if err != nil {
			return Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		parts[i] = n
	}
	tm := Time{Hour: parts[0], Minute: parts[1], Second: parts[2]}
	if frac != "" {
		n, err := strconv.Atoi(frac + strings.Repeat("0", 6-len(frac)))
		if err != nil {
			return Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		tm.Micros = n
	}
	// 60 is allowed for leap seconds
	if tm.Hour > 23 || tm.Minute > 59 || tm.Second > 60 {
		return Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return tm, nil
}
