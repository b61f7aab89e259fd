package ingest

import (
	"strings"
	"time"

	"classgrid/internal/model"
)

var dayNames = map[string]model.Weekday{
	"monday":    model.Mon,
	"tuesday":   model.Tue,
	"wednesday": model.Wed,
	"thursday":  model.Thu,
	"friday":    model.Fri,
}

// Accepted time layouts, tried in order; the first match wins.
var clockLayouts = []string{
	"3:04PM",
	"3:04 PM",
	"3PM",
	"3 PM",
	"15:04",
	"1504",
}

// ParseRooms splits a "101; 205" room list. Empty tokens are dropped and
// repeated rooms collapse to one.
func ParseRooms(s string) []string {
	var rooms []string
	seen := make(map[string]bool)
	for _, tok := range strings.Split(s, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		rooms = append(rooms, tok)
	}
	return rooms
}

// ParseMeetingPattern maps a "Monday, Wednesday" pattern onto weekdays.
// Unrecognized tokens (weekend days, abbreviations, typos) are skipped.
func ParseMeetingPattern(s string) []model.Weekday {
	var days []model.Weekday
	seen := make(map[model.Weekday]bool)
	for _, tok := range strings.Split(s, ",") {
		d, ok := dayNames[strings.ToLower(strings.TrimSpace(tok))]
		if !ok || seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	return days
}

// ParseClock parses one side of a meeting time. ok is false when no layout
// matches.
func ParseClock(s string) (model.ClockTime, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.ClockOf(t), true
		}
	}
	return 0, false
}

// ParseMeetingTime splits "9:00AM-10:15AM" on the first '-'. A value without
// a '-' yields a start with no end.
func ParseMeetingTime(s string) (start, end model.ClockTime, hasStart, hasEnd bool) {
	left, right, found := strings.Cut(s, "-")
	start, hasStart = ParseClock(left)
	if found {
		end, hasEnd = ParseClock(right)
	}
	return start, end, hasStart, hasEnd
}
