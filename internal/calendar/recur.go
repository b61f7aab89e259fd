package calendar

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"classgrid/internal/model"
)

var byDay = map[model.Weekday]rrule.Weekday{
	model.Mon: rrule.MO,
	model.Tue: rrule.TU,
	model.Wed: rrule.WE,
	model.Thu: rrule.TH,
	model.Fri: rrule.FR,
}

// Occurrence is one concrete meeting of a weekly entry.
type Occurrence struct {
	Entry model.ScheduleEntry `json:"entry"`
	Start time.Time           `json:"start"`
	End   time.Time           `json:"end"`
}

// weeklyOption describes e as a weekly rule whose first instance is the
// meeting on or before from (in loc).
func weeklyOption(e model.ScheduleEntry, loc *time.Location, from, until time.Time) (rrule.ROption, error) {
	wd, ok := byDay[e.Day]
	if !ok {
		return rrule.ROption{}, errors.New("calendar: entry has no valid meeting day")
	}
	local := from.In(loc)
	back := (int(local.Weekday()) - int(e.Day.Time()) + 7) % 7
	return rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{wd},
		Dtstart:   e.Start.On(local.AddDate(0, 0, -back), loc),
		Until:     until,
	}, nil
}

func weeklyRule(e model.ScheduleEntry, loc *time.Location, from, until time.Time) (*rrule.RRule, error) {
	opt, err := weeklyOption(e, loc, from, until)
	if err != nil {
		return nil, err
	}
	return rrule.NewRRule(opt)
}

func occurrenceAt(e model.ScheduleEntry, start time.Time, loc *time.Location) Occurrence {
	return Occurrence{Entry: e, Start: start, End: e.End.On(start, loc)}
}

// Occurrences expands entries into their meetings starting within
// [from, to], ordered by start. Wall-clock times are kept across DST changes.
func Occurrences(entries []model.ScheduleEntry, loc *time.Location, from, to time.Time) ([]Occurrence, error) {
	if to.Before(from) {
		return nil, errors.New("calendar: range end is before range start")
	}
	out := make([]Occurrence, 0)
	for _, e := range entries {
		r, err := weeklyRule(e, loc, from, to)
		if err != nil {
			return nil, err
		}
		for _, start := range r.Between(from, to, true) {
			out = append(out, occurrenceAt(e, start, loc))
		}
	}
	slices.SortStableFunc(out, func(a, b Occurrence) int {
		return cmp.Or(a.Start.Compare(b.Start), cmp.Compare(a.Entry.Room, b.Entry.Room))
	})
	return out, nil
}

// Next returns the first meeting of e that starts strictly after after.
func Next(e model.ScheduleEntry, loc *time.Location, after time.Time) (Occurrence, error) {
	r, err := weeklyRule(e, loc, after, time.Time{})
	if err != nil {
		return Occurrence{}, err
	}
	start := r.After(after, false)
	if start.IsZero() {
		return Occurrence{}, errors.New("calendar: no further occurrence")
	}
	return occurrenceAt(e, start, loc), nil
}
