// Package timecode provides the Time value used for trim boundaries.
package timecode

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTime is returned when a time string cannot be parsed.
var ErrInvalidTime = errors.New("invalid time")

// MaxDigits is the finest fractional precision (microseconds).
const MaxDigits = 6

var timeRe = regexp.MustCompile(`^(\d+):([0-5]\d):([0-5]\d)(?:\.(\d{1,6}))?$`)

// Time is a non-negative offset into a media file with microsecond
// resolution.
type Time struct {
	us int64
}

// FromMicroseconds returns a Time of us microseconds. Negative values clamp to zero.
func FromMicroseconds(us int64) Time {
	if us < 0 {
		us = 0
	}
	return Time{us: us}
}

// FromDuration converts a time.Duration, truncating below a microsecond.
func FromDuration(d time.Duration) Time {
	return FromMicroseconds(d.Microseconds())
}

// FromSeconds converts fractional seconds, rounding to the nearest microsecond.
func FromSeconds(s float64) Time {
	return FromMicroseconds(int64(s*1e6 + 0.5))
}

// Parse reads HH:MM:SS with up to six optional fractional digits.
func Parse(s string) (Time, error) {
	m := timeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Time{}, fmt.Errorf("%w: %q (want HH:MM:SS[.ffffff])", ErrInvalidTime, s)
	}

	hours, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Time{}, fmt.Errorf("%w: %q: %w", ErrInvalidTime, s, err)
	}
	minutes, _ := strconv.ParseInt(m[2], 10, 64)
	seconds, _ := strconv.ParseInt(m[3], 10, 64)

	var frac int64
	if m[4] != "" {
		digits := m[4] + strings.Repeat("0", MaxDigits-len(m[4]))
		frac, _ = strconv.ParseInt(digits, 10, 64)
	}

	return Time{us: ((hours*60+minutes)*60+seconds)*1_000_000 + frac}, nil
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(s string) Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Microseconds returns the offset in microseconds.
func (t Time) Microseconds() int64 {
	return t.us
}

// Duration returns the offset as a time.Duration.
func (t Time) Duration() time.Duration {
	return time.Duration(t.us) * time.Microsecond
}

// Before reports whether t is strictly earlier than u.
func (t Time) Before(u Time) bool {
	return t.us < u.us
}

// Format renders HH:MM:SS followed by digits fractional digits (0-6,
// clamped). Extra precision is truncated, not rounded.
func (t Time) Format(digits int) string {
	digits = max(0, min(digits, MaxDigits))

	secs := t.us / 1_000_000
	frac := t.us % 1_000_000
	out := fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	if digits == 0 {
		return out
	}
	return out + "." + fmt.Sprintf("%06d", frac)[:digits]
}

// String renders the time with millisecond precision, the form ffmpeg is
// given for trim boundaries.
func (t Time) String() string {
	return t.Format(3)
}

// Ptr returns a pointer to a copy of t, for optional trim boundaries.
func (t Time) Ptr() *Time {
	return &t
}
