package calendar

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// addTimezone writes a VTIMEZONE for loc with one observance per offset
// change between from and to, plus the observance already in effect at from.
func addTimezone(cal *ics.Calendar, loc *time.Location, from, to time.Time) {
	tz := cal.AddTimezone(loc.String())

	at := from.In(loc)
	start, _ := at.ZoneBounds()
	if start.IsZero() {
		// No recorded transition: a single fixed observance.
		name, offset := at.Zone()
		tz.Components = append(tz.Components, observance(at.IsDST(), name, offset, offset, "19700101T000000"))
	} else {
		tz.Components = append(tz.Components, transition(start, loc))
	}

	for {
		_, end := at.ZoneBounds()
		if end.IsZero() || end.After(to) {
			return
		}
		tz.Components = append(tz.Components, transition(end, loc))
		at = end.In(loc)
	}
}

// transition describes the offset change that takes effect at onset.
func transition(onset time.Time, loc *time.Location) ics.Component {
	_, prev := onset.Add(-time.Second).In(loc).Zone()
	now := onset.In(loc)
	name, offset := now.Zone()
	// DTSTART is the wall clock in effect before the change.
	local := onset.In(time.FixedZone("", prev)).Format(icsLocalLayout)
	return observance(now.IsDST(), name, prev, offset, local)
}

func observance(dst bool, name string, from, to int, dtstart string) ics.Component {
	var c *ics.ComponentBase
	var out ics.Component
	if dst {
		d := &ics.Daylight{}
		c, out = &d.ComponentBase, d
	} else {
		s := ics.NewStandard()
		c, out = &s.ComponentBase, s
	}
	c.SetProperty(ics.ComponentPropertyDtStart, dtstart)
	c.SetProperty(ics.ComponentProperty(ics.PropertyTzoffsetfrom), utcOffset(from))
	c.SetProperty(ics.ComponentProperty(ics.PropertyTzoffsetto), utcOffset(to))
	if name != "" {
		c.SetProperty(ics.ComponentProperty(ics.PropertyTzname), name)
	}
	return out
}

// utcOffset formats seconds east of UTC as +HHMM.
func utcOffset(sec int) string {
	sign := '+'
	if sec < 0 {
		sign = '-'
		sec = -sec
	}
	return fmt.Sprintf("%c%02d%02d", sign, sec/3600, sec%3600/60)
}
