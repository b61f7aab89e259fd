package schedule

import (
	"cmp"
	"context"
	"slices"
	"time"

	"classgrid/internal/calendar"
	"classgrid/internal/model"
)

// Metrics summarizes room usage at one instant.
type Metrics struct {
	At              time.Time     `json:"at"`
	Day             model.Weekday `json:"day,omitempty"`
	TotalRooms      int           `json:"total_rooms"`
	RoomsInUse      int           `json:"rooms_in_use"`
	AvailableRooms  int           `json:"available_rooms"`
	UpcomingClasses int           `json:"upcoming_classes"`
	ActiveClasses   int           `json:"active_classes"`
}

// Heatmap counts classes per room and weekday. Counts[i][j] belongs to
// Rooms[i] and Days[j].
type Heatmap struct {
	Days   []model.Weekday `json:"days"`
	Rooms  []string        `json:"rooms"`
	Counts [][]int         `json:"counts"`
	Max    int             `json:"max"`
}

// Span is an entry placed on a concrete date.
type Span = calendar.Occurrence

// Timeline lays one day's entries out as concrete spans.
type Timeline struct {
	Day   model.Weekday `json:"day,omitempty"`
	Now   time.Time     `json:"now"`
	Rooms []string      `json:"rooms"`
	Spans []Span        `json:"spans"`
	// From and To bound the spans, widened to whole hours; both are zero
	// when there are no spans.
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// today resolves asOf into the reference zone and its meeting day. ok is
// false on weekends.
func (s *Service) today(asOf time.Time) (time.Time, model.Weekday, bool) {
	local := s.Local(asOf)
	day, ok := model.WeekdayOf(local.Weekday())
	return local, day, ok
}

// onDay returns the entries matching f on asOf's weekday. A filter naming
// another day yields nothing.
func (s *Service) onDay(ctx context.Context, asOf time.Time, f model.Filter) (time.Time, []model.ScheduleEntry, error) {
	local, day, ok := s.today(asOf)
	if !ok || (f.Day != "" && f.Day != day) {
		return local, []model.ScheduleEntry{}, nil
	}
	f.Day = day
	entries, err := s.Query(ctx, f)
	return local, entries, err
}

// Active returns the entries in session at asOf. Both ends of a meeting are
// inclusive.
func (s *Service) Active(ctx context.Context, asOf time.Time, f model.Filter) ([]model.ScheduleEntry, error) {
	local, entries, err := s.onDay(ctx, asOf, f)
	if err != nil {
		return nil, err
	}
	now := model.ClockOf(local)
	out := make([]model.ScheduleEntry, 0)
	for _, e := range entries {
		if e.ActiveAt(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Upcoming returns the entries later on asOf's day that have not started,
// ordered by start time.
func (s *Service) Upcoming(ctx context.Context, asOf time.Time, f model.Filter) ([]model.ScheduleEntry, error) {
	local, entries, err := s.onDay(ctx, asOf, f)
	if err != nil {
		return nil, err
	}
	now := model.ClockOf(local)
	out := make([]model.ScheduleEntry, 0)
	for _, e := range entries {
		if e.Start > now {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b model.ScheduleEntry) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.Room, b.Room))
	})
	return out, nil
}

func (s *Service) Metrics(ctx context.Context, asOf time.Time) (Metrics, error) {
	local, day, _ := s.today(asOf)
	m := Metrics{At: local, Day: day}

	rooms, err := s.ListDistinct(ctx, model.FieldRoom)
	if err != nil {
		return Metrics{}, err
	}
	m.TotalRooms = len(rooms)

	active, err := s.Active(ctx, asOf, model.Filter{})
	if err != nil {
		return Metrics{}, err
	}
	upcoming, err := s.Upcoming(ctx, asOf, model.Filter{})
	if err != nil {
		return Metrics{}, err
	}

	inUse := make(map[string]struct{}, len(active))
	for _, e := range active {
		inUse[e.Room] = struct{}{}
	}
	m.ActiveClasses = len(active)
	m.UpcomingClasses = len(upcoming)
	m.RoomsInUse = len(inUse)
	m.AvailableRooms = max(m.TotalRooms-m.RoomsInUse, 0)
	return m, nil
}

// Heatmap counts the entries matching f per room and weekday. Only rooms
// with at least one match appear; every weekday column is present.
func (s *Service) Heatmap(ctx context.Context, f model.Filter) (Heatmap, error) {
	entries, err := s.Query(ctx, f)
	if err != nil {
		return Heatmap{}, err
	}

	counts := make(map[string][]int)
	for _, e := range entries {
		row, ok := counts[e.Room]
		if !ok {
			row = make([]int, len(model.Weekdays))
			counts[e.Room] = row
		}
		row[e.Day.Index()]++
	}

	h := Heatmap{
		Days:   slices.Clone(model.Weekdays),
		Rooms:  make([]string, 0, len(counts)),
		Counts: make([][]int, 0, len(counts)),
	}
	for room := range counts {
		h.Rooms = append(h.Rooms, room)
	}
	slices.Sort(h.Rooms)
	for _, room := range h.Rooms {
		row := counts[room]
		h.Counts = append(h.Counts, row)
		h.Max = max(h.Max, slices.Max(row))
	}
	return h, nil
}

// Timeline places the entries of one weekday on the date of that weekday in
// asOf's Monday-to-Friday week. Without f.Day it uses asOf's own weekday and
// is empty on weekends.
func (s *Service) Timeline(ctx context.Context, asOf time.Time, f model.Filter) (Timeline, error) {
	local, today, isWeekday := s.today(asOf)
	tl := Timeline{Now: local, Rooms: []string{}, Spans: []Span{}}

	day := f.Day
	if day == "" {
		if !isWeekday {
			return tl, nil
		}
		day = today
	}
	tl.Day = day
	f.Day = day

	entries, err := s.Query(ctx, f)
	if err != nil {
		return Timeline{}, err
	}

	// Saturday and Sunday look back at the week that just ended.
	offset := int(local.Weekday()) - int(time.Monday)
	if local.Weekday() == time.Sunday {
		offset = 6
	}
	date := local.AddDate(0, 0, day.Index()-offset)

	seen := make(map[string]bool)
	for _, e := range entries {
		start := e.Start.On(date, s.loc)
		tl.Spans = append(tl.Spans, Span{Entry: e, Start: start, End: e.End.On(date, s.loc)})
		if !seen[e.Room] {
			seen[e.Room] = true
			tl.Rooms = append(tl.Rooms, e.Room)
		}
	}
	slices.Sort(tl.Rooms)

	if len(tl.Spans) > 0 {
		from, to := tl.Spans[0].Start, tl.Spans[0].End
		for _, sp := range tl.Spans[1:] {
			if sp.Start.Before(from) {
				from = sp.Start
			}
			if sp.End.After(to) {
				to = sp.End
			}
		}
		tl.From = s.wallHour(from)
		tl.To = s.wallHour(to)
		if tl.To.Before(to) {
			tl.To = tl.To.Add(time.Hour)
		}
	}
	return tl, nil
}

// wallHour drops minutes and seconds on the reference-zone wall clock.
func (s *Service) wallHour(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, s.loc)
}

// NextInRoom returns the first meeting in room that starts strictly after
// asOf, looking across the whole week. ok is false when the room has no
// entries.
func (s *Service) NextInRoom(ctx context.Context, room string, asOf time.Time) (calendar.Occurrence, bool, error) {
	entries, err := s.Query(ctx, model.Filter{Rooms: []string{room}})
	if err != nil {
		return calendar.Occurrence{}, false, err
	}

	var (
		best  calendar.Occurrence
		found bool
	)
	for _, e := range entries {
		occ, err := calendar.Next(e, s.loc, asOf)
		if err != nil {
			return calendar.Occurrence{}, false, err
		}
		if !found || occ.Start.Before(best.Start) {
			best, found = occ, true
		}
	}
	return best, found, nil
}
