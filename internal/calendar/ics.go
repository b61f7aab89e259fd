package calendar

import (
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"classgrid/internal/model"
)

const (
	icsLocalLayout   = "20060102T150405"
	defaultProductID = "-//classgrid//schedule//EN"
)

// ExportOptions bounds and labels an ICS export.
type ExportOptions struct {
	// Location is the reference zone; DTSTART/DTEND carry it as TZID and a
	// matching VTIMEZONE is emitted.
	Location *time.Location
	// TermStart and TermEnd bound the weekly recurrence (inclusive dates).
	TermStart time.Time
	TermEnd   time.Time
	// Stamp is written as DTSTAMP on every event.
	Stamp     time.Time
	ProductID string
}

// ExportICS renders entries as an iCalendar feed with one weekly recurring
// VEVENT per entry. Entries with no meeting inside the term are left out.
func ExportICS(entries []model.ScheduleEntry, opts ExportOptions) (string, error) {
	if opts.Location == nil {
		return "", errors.New("calendar: export location is required")
	}
	if opts.TermEnd.Before(opts.TermStart) {
		return "", errors.New("calendar: term end is before term start")
	}
	if opts.ProductID == "" {
		opts.ProductID = defaultProductID
	}

	loc := opts.Location
	termStart := opts.TermStart.In(loc)
	termEnd := opts.TermEnd.In(loc)
	termStart = time.Date(termStart.Year(), termStart.Month(), termStart.Day(), 0, 0, 0, 0, loc)
	until := time.Date(termEnd.Year(), termEnd.Month(), termEnd.Day(), 23, 59, 59, 0, loc)

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(opts.ProductID)
	addTimezone(cal, loc, termStart, until)

	tzid := &ics.KeyValues{Key: string(ics.ParameterTzid), Value: []string{loc.String()}}

	for _, e := range entries {
		opt, err := weeklyOption(e, loc, termStart, until)
		if err != nil {
			return "", fmt.Errorf("calendar: entry %s: %w", e.Course, err)
		}
		r, err := rrule.NewRRule(opt)
		if err != nil {
			return "", fmt.Errorf("calendar: entry %s: %w", e.Course, err)
		}
		first := r.After(termStart, true)
		if first.IsZero() {
			continue
		}

		ev := cal.AddEvent(eventUID(e))
		ev.SetDtStampTime(opts.Stamp)
		ev.SetSummary(summary(e))
		ev.SetLocation(e.Room)
		if e.Instructor != "" {
			ev.SetDescription("Instructor: " + e.Instructor)
		}
		ev.SetProperty(ics.ComponentPropertyDtStart, first.Format(icsLocalLayout), tzid)
		ev.SetProperty(ics.ComponentPropertyDtEnd, e.End.On(first, loc).Format(icsLocalLayout), tzid)

		rule := rrule.ROption{Freq: rrule.WEEKLY, Byweekday: opt.Byweekday, Until: until}
		ev.AddProperty(ics.ComponentPropertyRrule, rule.RRuleString())
	}

	return cal.Serialize(), nil
}

func summary(e model.ScheduleEntry) string {
	if e.CourseTitle == "" {
		return e.Course
	}
	return e.Course + " " + e.CourseTitle
}

// eventUID is stable for the same entry content across uploads.
func eventUID(e model.ScheduleEntry) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(e.Key())).String() + "@classgrid"
}
