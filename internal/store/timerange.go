package store

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRangeLocation is the fixed offset date-only bounds are resolved in
// when no other offset is configured.
var DefaultRangeLocation = time.FixedZone("UTC+08:00", 8*60*60)

const dateLayout = "2006-01-02"

// localLayouts are accepted for timestamps that carry no offset; they are
// interpreted in the range location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	dateLayout,
}

// ParseOffset turns "+08:00", "-05:30" or "Z" into a fixed-offset location.
func ParseOffset(offset string) (*time.Location, error) {
	offset = strings.TrimSpace(offset)
	t, err := time.Parse("Z07:00", offset)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing utc offset %q: %w", ErrInvalidArgument, offset, err)
	}
	_, seconds := t.Zone()
	return time.FixedZone("UTC"+offset, seconds), nil
}

// ParseTimestamp parses an RFC 3339 timestamp. Values without an offset,
// including date-only values, are interpreted in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = DefaultRangeLocation
	}
	value = strings.TrimSpace(value)

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", ErrInvalidArgument, value)
}

// ResolveRange converts caller-supplied bounds to the half-open interval
// [from, to). A date-only start becomes midnight of that day and a
// date-only end becomes midnight of the following day, both in loc, so a
// single-day query covers the whole day.
func ResolveRange(start, end string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = DefaultRangeLocation
	}

	from, err := ParseTimestamp(start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("range start: %w", err)
	}
	to, err := ParseTimestamp(end, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("range end: %w", err)
	}
	if isDateOnly(end) {
		to = to.AddDate(0, 0, 1)
	}
	return from, to, nil
}

func isDateOnly(value string) bool {
	value = strings.TrimSpace(value)
	if len(value) != len(dateLayout) {
		return false
	}
	_, err := time.Parse(dateLayout, value)
	return err == nil
}

// formatTimestamp is the on-disk representation of a timestamp. SQLite's
// date functions understand it, offset included.
func formatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
