package window

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Window is an entity's operational day for one calendar date.
type Window struct {
	UTCStart   time.Time
	UTCEnd     time.Time
	LocalStart time.Time
	LocalEnd   time.Time
	// Fallback is set when a configured schedule could not be used and the
	// whole-day default was applied instead.
	Fallback bool
}

// Contains reports whether t falls in [start, end).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.UTCStart) && t.Before(w.UTCEnd)
}

func (w Window) Duration() time.Duration {
	return w.UTCEnd.Sub(w.UTCStart)
}

// Schedule maps day names to their entry ({"reset_time": ..., "start_td": ..., "end_td": ...}).
type Schedule map[string]any

// ParseSchedule decodes a detailed_scan_goal document. Callers treat an error
// as "no schedule".
func ParseSchedule(raw string) (Schedule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var out Schedule
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s Schedule) day(weekday time.Weekday) map[string]any {
	name := weekday.String()
	for _, key := range []string{strings.ToLower(name), name, name[:3]} {
		if entry, ok := s[key].(map[string]any); ok && len(entry) > 0 {
			return entry
		}
	}
	return nil
}

// Resolve computes the reset-time window of date in the named timezone. An
// invalid timezone resolves in UTC; a missing or malformed reset_time yields
// local midnight to 23:59:59.999999.
func Resolve(date time.Time, timezone string, schedule Schedule) Window {
	loc := LoadLocation(timezone)
	y, m, d := date.Date()

	entry := schedule.day(date.Weekday())
	hour, minute, second := 0, 0, 0
	fallback := false
	if raw, ok := entry["reset_time"]; ok {
		if h, mi, s, valid := parseClock(raw, 23); valid {
			hour, minute, second = h, mi, s
		} else {
			fallback = true
		}
	}

	localStart := wallTime(y, m, d, hour, minute, second, loc)
	localEnd := wallTime(y, m, d+1, hour, minute, second, loc).Add(-time.Microsecond)
	return Window{
		UTCStart:   localStart.UTC(),
		UTCEnd:     localEnd.UTC(),
		LocalStart: localStart,
		LocalEnd:   localEnd,
		Fallback:   fallback,
	}
}

// ResolveRaw resolves against a JSON-encoded schedule.
func ResolveRaw(date time.Time, timezone, raw string) Window {
	schedule, err := ParseSchedule(raw)
	w := Resolve(date, timezone, schedule)
	if err != nil {
		w.Fallback = true
	}
	return w
}

// OpenClose returns the open hours of date: start_td/end_td offsets from local
// midnight when both are usable, otherwise the reset-time window.
func OpenClose(date time.Time, timezone string, schedule Schedule) Window {
	entry := schedule.day(date.Weekday())
	start, okStart := parseOffset(entry["start_td"])
	end, okEnd := parseOffset(entry["end_td"])
	if !okStart || !okEnd || end <= start {
		return Resolve(date, timezone, schedule)
	}

	loc := LoadLocation(timezone)
	y, m, d := date.Date()
	localStart := wallTime(y, m, d, 0, 0, int(start/time.Second), loc)
	localEnd := wallTime(y, m, d, 0, 0, int(end/time.Second), loc)
	return Window{
		UTCStart:   localStart.UTC(),
		UTCEnd:     localEnd.UTC(),
		LocalStart: localStart,
		LocalEnd:   localEnd,
	}
}

// OpenCloseRaw is OpenClose over a JSON-encoded schedule.
func OpenCloseRaw(date time.Time, timezone, raw string) Window {
	schedule, err := ParseSchedule(raw)
	w := OpenClose(date, timezone, schedule)
	if err != nil {
		w.Fallback = true
	}
	return w
}

// wallTime is time.Date for a wall clock that may fall in a DST gap. A skipped
// wall time is read with the offset in force before the transition, so 02:30
// on a spring-forward night becomes 03:30 daylight time.
func wallTime(y int, m time.Month, d, hour, minute, second int, loc *time.Location) time.Time {
	t := time.Date(y, m, d, hour, minute, second, 0, loc)
	want := time.Date(y, m, d, hour, minute, second, 0, time.UTC)
	got := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	if got.Equal(want) {
		return t
	}
	_, offset := t.Zone()
	return want.Add(-time.Duration(offset) * time.Second).In(loc)
}

var locations sync.Map

// LoadLocation resolves an IANA name, falling back to UTC. Results are cached
// for the life of the process.
func LoadLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return time.UTC
	}
	if cached, ok := locations.Load(name); ok {
		return cached.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	locations.Store(name, loc)
	return loc
}

// parseClock accepts "HH", "HH:MM" or "HH:MM:SS".
func parseClock(raw any, maxHour int) (int, int, int, bool) {
	str, ok := raw.(string)
	if !ok {
		return 0, 0, 0, false
	}
	parts := strings.Split(strings.TrimSpace(str), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, 0, 0, false
	}
	limits := []int{maxHour, 59, 59}
	values := [3]int{}
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 || v > limits[i] {
			return 0, 0, 0, false
		}
		values[i] = v
	}
	return values[0], values[1], values[2], true
}

// parseOffset reads a start_td/end_td value: a clock string or seconds.
func parseOffset(raw any) (time.Duration, bool) {
	switch v := raw.(type) {
	case float64:
		if v < 0 || v > 48*3600 {
			return 0, false
		}
		return time.Duration(v) * time.Second, true
	case string:
		h, m, s, ok := parseClock(v, 47)
		if !ok {
			return 0, false
		}
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second, true
	default:
		return 0, false
	}
}
