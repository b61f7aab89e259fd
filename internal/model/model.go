package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // reference zone must resolve on hosts without a zoneinfo database
)

// DefaultReferenceZone is the IANA zone every stored wall-clock time is
// interpreted in, unless the config overrides it once at startup.
const DefaultReferenceZone = "America/Chicago"

// Weekday is the canonical three-letter meeting day. Only Monday through
// Friday exist in this domain.
type Weekday string

const (
	Mon Weekday = "Mon"
	Tue Weekday = "Tue"
	Wed Weekday = "Wed"
	Thu Weekday = "Thu"
	Fri Weekday = "Fri"
)

// Weekdays lists the meeting days in calendar order.
var Weekdays = []Weekday{Mon, Tue, Wed, Thu, Fri}

// Index returns the position of d in Weekdays, or -1 for an unknown value.
func (d Weekday) Index() int {
	for i, w := range Weekdays {
		if w == d {
			return i
		}
	}
	return -1
}

func (d Weekday) Valid() bool { return d.Index() >= 0 }

// Time converts d into the standard library weekday.
func (d Weekday) Time() time.Weekday {
	return time.Weekday(d.Index() + 1)
}

// WeekdayOf returns the meeting day for a standard library weekday.
// Saturday and Sunday report false.
func WeekdayOf(wd time.Weekday) (Weekday, bool) {
	if wd < time.Monday || wd > time.Friday {
		return "", false
	}
	return Weekdays[int(wd)-1], true
}

// ParseWeekday accepts either the canonical abbreviation ("Mon") or a full or
// abbreviated day name in any case ("monday", "MON").
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for _, d := range Weekdays {
			full := strings.ToLower(d.Time().String())
			if s == full || s == strings.ToLower(string(d)) {
				return d, nil
			}
		}
	}
	return "", fmt.Errorf("unknown weekday %q", s)
}

// ClockTime is a time-of-day expressed as seconds since midnight. It has no
// zone of its own; readers anchor it in the reference zone.
type ClockTime int32

const clockLayout = "15:04:05"

// NewClockTime builds a ClockTime from its components.
func NewClockTime(hour, minute, second int) ClockTime {
	return ClockTime(hour*3600 + minute*60 + second)
}

// ClockOf returns the wall-clock part of t in t's own location.
func ClockOf(t time.Time) ClockTime {
	return NewClockTime(t.Hour(), t.Minute(), t.Second())
}

// ParseClockTime parses the persisted HH:MM:SS form.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return ClockOf(t), nil
}

func (c ClockTime) Hour() int   { return int(c) / 3600 }
func (c ClockTime) Minute() int { return int(c) % 3600 / 60 }
func (c ClockTime) Second() int { return int(c) % 60 }

// String renders the persisted HH:MM:SS form.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour(), c.Minute(), c.Second())
}

// Kitchen renders a 12-hour display form, e.g. "9:00 AM".
func (c ClockTime) Kitchen() string {
	return c.On(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), time.UTC).Format("3:04 PM")
}

// On anchors c on the calendar date of day (as seen in loc) and returns the
// instant in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc)
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// RawSectionRecord is one spreadsheet row as uploaded, before normalization.
type RawSectionRecord struct {
	Row            int // 1-based row number in the source sheet, header included
	Course         string
	CourseTitle    string
	Instructor     string
	MeetingPattern string
	MeetingTime    string
	RoomNumbers    string
}

// ScheduleEntry is one (course, day, room) meeting with a concrete time range.
type ScheduleEntry struct {
	// ID is assigned by the store and is empty before persistence.
	ID string `json:"id,omitempty"`

	Course      string  `json:"course"`
	CourseTitle string  `json:"course_title"`
	Instructor  string  `json:"instructor"`
	Day         Weekday `json:"meeting_day"`
	Room        string  `json:"room"`

	Start ClockTime `json:"start_time"`
	End   ClockTime `json:"end_time"`
}

// Valid reports whether e satisfies the persisted-entry invariants.
func (e ScheduleEntry) Valid() bool {
	return e.Day.Valid() && e.Start < e.End
}

// ActiveAt reports whether clock falls within [Start, End].
func (e ScheduleEntry) ActiveAt(clock ClockTime) bool {
	return e.Start <= clock && clock <= e.End
}

// Key identifies an entry by content, ignoring the opaque ID.
func (e ScheduleEntry) Key() string {
	return strings.Join([]string{
		e.Course, e.CourseTitle, e.Instructor, string(e.Day), e.Room, e.Start.String(), e.End.String(),
	}, "\x1f")
}

// Filter narrows a schedule query. Zero-valued fields impose no constraint.
type Filter struct {
	Day        Weekday  `json:"day,omitempty"`
	Rooms      []string `json:"rooms,omitempty"`
	Instructor string   `json:"instructor,omitempty"`
}

// Match applies the filter in memory with the same semantics as the store.
func (f Filter) Match(e ScheduleEntry) bool {
	if f.Day != "" && e.Day != f.Day {
		return false
	}
	if f.Instructor != "" && e.Instructor != f.Instructor {
		return false
	}
	if len(f.Rooms) > 0 {
		found := false
		for _, r := range f.Rooms {
			if r == e.Room {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// CacheKey is a stable string form of f. Each part is quoted, so room ids
// containing separators cannot collide.
func (f Filter) CacheKey() string {
	rooms := make([]string, len(f.Rooms))
	for i, r := range f.Rooms {
		rooms[i] = strconv.Quote(r)
	}
	return strconv.Quote(string(f.Day)) + "|" + strings.Join(rooms, ",") + "|" + strconv.Quote(f.Instructor)
}

// Field names a column that can be listed with distinct values.
type Field string

const (
	FieldInstructor Field = "instructor"
	FieldRoom       Field = "room"
)

// StoreStats describes the currently active collection.
type StoreStats struct {
	BatchID    string    `json:"batch_id"`
	ReplacedAt time.Time `json:"replaced_at"`
	EntryCount int       `json:"entry_count"`
}
