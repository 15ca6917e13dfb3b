// Package timefmt normalizes the timestamps the chat backend emits and
// formats them for display in a fixed time zone.
//
// The backend sends either zone-qualified ISO strings or naive
// "YYYY-MM-DD HH:MM[:SS]" strings. Naive strings are always UTC; that is a
// contract the backend has to keep, since there is no way to detect a naive
// local time from the string alone.
package timefmt

import (
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // Asia/Tokyo must resolve on hosts without zoneinfo
)

// DefaultZone is the zone chat timestamps are displayed in (Osaka).
const DefaultZone = "Asia/Tokyo"

// DisplayLayout is the display format: 24-hour, zero padded.
const DisplayLayout = "2006/01/02 15:04"

var (
	zonedPattern = regexp.MustCompile(`(?:[zZ]|[+-]\d{2}:\d{2})$`)
	naivePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}`)
)

// zonedLayouts parse strings that carry their own offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
}

// naiveLayouts parse naive strings after the space has been replaced by T.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// fallbackUTCLayouts are tried last. RFC 1123 is what Flask emits for
// datetime values serialized with jsonify.
var fallbackUTCLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
	"2006-01-02",
}

// Formatter converts raw server timestamps to display strings.
type Formatter struct {
	loc *time.Location
}

// New returns a Formatter for the named IANA zone. An empty name selects
// DefaultZone.
func New(zone string) (*Formatter, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, err
	}
	return &Formatter{loc: loc}, nil
}

// Osaka returns a Formatter for DefaultZone. Falls back to a fixed +09:00
// zone if the zone database is unavailable.
func Osaka() *Formatter {
	f, err := New(DefaultZone)
	if err != nil {
		return &Formatter{loc: time.FixedZone("JST", 9*60*60)}
	}
	return f
}

// Location returns the display zone.
func (f *Formatter) Location() *time.Location {
	return f.loc
}

// Format renders raw in the display zone as "YYYY/MM/DD HH:MM". When raw
// cannot be parsed it is returned unchanged.
func (f *Formatter) Format(raw string) string {
	t, ok := Parse(raw)
	if !ok {
		return raw
	}
	return t.In(f.loc).Format(DisplayLayout)
}

// Parse interprets a server timestamp as an absolute instant.
func Parse(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if zonedPattern.MatchString(s) {
		if strings.HasSuffix(s, "z") {
			s = s[:len(s)-1] + "Z"
		}
		return parseAny(s, zonedLayouts, time.UTC)
	}

	if naivePattern.MatchString(s) {
		return parseAny(strings.Replace(s, " ", "T", 1), naiveLayouts, time.UTC)
	}

	if t, ok := parseAny(s, fallbackUTCLayouts, time.UTC); ok {
		return t, true
	}
	// A naive ISO string with a T separator is read as local time, the
	// same way a browser reads it.
	return parseAny(s, naiveLayouts, time.Local)
}

func parseAny(s string, layouts []string, loc *time.Location) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// jstOffset is the fixed offset PostTime applies.
const jstOffset = 9 * time.Hour

// PostTime formats a post timestamp the way the feed does: the value is
// read as naive UTC and shifted by a fixed +9h, without zone rules.
// Unparseable input is returned unchanged.
func PostTime(raw string) string {
	if raw == "" {
		return ""
	}
	t, ok := parseAny(strings.Replace(raw, " ", "T", 1), naiveLayouts, time.UTC)
	if !ok {
		return raw
	}
	return t.Add(jstOffset).Format(DisplayLayout)
}
