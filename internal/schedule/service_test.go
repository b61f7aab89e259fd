package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"classgrid/internal/model"
)

type fakeRepo struct {
	mu      sync.Mutex
	entries []model.ScheduleEntry
	queries int
	err     error
}

func (r *fakeRepo) ReplaceAll(_ context.Context, entries []model.ScheduleEntry) (model.StoreStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return model.StoreStats{}, r.err
	}
	r.entries = entries
	return model.StoreStats{BatchID: "b", EntryCount: len(entries)}, nil
}

func (r *fakeRepo) Query(_ context.Context, f model.Filter) ([]model.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]model.ScheduleEntry, 0)
	for _, e := range r.entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListDistinct(_ context.Context, field model.Field) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range r.entries {
		v := e.Room
		if field == model.FieldInstructor {
			v = e.Instructor
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *fakeRepo) Stats(context.Context) (model.StoreStats, error) {
	return model.StoreStats{EntryCount: len(r.entries)}, nil
}

func clock(h, m int) model.ClockTime { return model.NewClockTime(h, m, 0) }

// fixture is already in store order: day, start, room.
func fixture() []model.ScheduleEntry {
	return []model.ScheduleEntry{
		{Course: "CS101", Instructor: "Smith", Day: model.Mon, Room: "101", Start: clock(9, 0), End: clock(10, 15)},
		{Course: "CS101", Instructor: "Smith", Day: model.Mon, Room: "205", Start: clock(9, 0), End: clock(10, 15)},
		{Course: "MA201", Instructor: "Lee", Day: model.Mon, Room: "300", Start: clock(13, 0), End: clock(14, 0)},
		{Course: "MA201", Instructor: "Lee", Day: model.Tue, Room: "101", Start: clock(13, 0), End: clock(14, 0)},
		{Course: "CS101", Instructor: "Smith", Day: model.Wed, Room: "101", Start: clock(9, 0), End: clock(10, 15)},
		{Course: "CS101", Instructor: "Smith", Day: model.Wed, Room: "205", Start: clock(9, 0), End: clock(10, 15)},
	}
}

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(model.DefaultReferenceZone)
	require.NoError(t, err)
	return loc
}

func newService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	repo := &fakeRepo{entries: fixture()}
	s, err := NewService(repo, nil)
	require.NoError(t, err)
	return s, repo
}

// Monday 2026-01-05 is in CST (UTC-6).
func monday(h, m int) time.Time {
	return time.Date(2026, 1, 5, h+6, m, 0, 0, time.UTC)
}

func rooms(entries []model.ScheduleEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Room
	}
	return out
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil, nil)
	require.Error(t, err)
}

func TestServiceUsesReferenceZone(t *testing.T) {
	s, _ := newService(t)
	require.Equal(t, model.DefaultReferenceZone, s.Location().String())

	// 02:00 UTC Tuesday is still Monday evening in Chicago.
	require.Equal(t, model.Mon, s.DefaultDay(time.Date(2026, 1, 6, 2, 0, 0, 0, time.UTC)))
	require.Equal(t, model.Weekday(""), s.DefaultDay(time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)))
}

func TestActiveAtMondayMorning(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	got, err := s.Active(ctx, monday(9, 30), model.Filter{Rooms: []string{"101"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "CS101", got[0].Course)
	require.Equal(t, "101", got[0].Room)

	got, err = s.Active(ctx, monday(8, 0), model.Filter{Rooms: []string{"101"}})
	require.NoError(t, err)
	require.Empty(t, got)

	all, err := s.Active(ctx, monday(9, 30), model.Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{"101", "205"}, rooms(all))
}

func TestActiveIsInclusiveAtBothEnds(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	for _, at := range []time.Time{monday(9, 0), monday(10, 15)} {
		got, err := s.Active(ctx, at, model.Filter{})
		require.NoError(t, err)
		require.Len(t, got, 2)
	}
	got, err := s.Active(ctx, monday(10, 16), model.Filter{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestActiveWithOtherDayFilterIsEmpty(t *testing.T) {
	s, _ := newService(t)
	got, err := s.Active(context.Background(), monday(9, 30), model.Filter{Day: model.Wed})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWeekendHasNothingActive(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	saturday := time.Date(2026, 1, 10, 15, 30, 0, 0, time.UTC)

	got, err := s.Active(ctx, saturday, model.Filter{})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	m, err := s.Metrics(ctx, saturday)
	require.NoError(t, err)
	require.Equal(t, 3, m.TotalRooms)
	require.Zero(t, m.ActiveClasses)
	require.Zero(t, m.UpcomingClasses)
	require.Equal(t, 3, m.AvailableRooms)
	require.Empty(t, m.Day)
}

func TestUpcoming(t *testing.T) {
	s, _ := newService(t)
	got, err := s.Upcoming(context.Background(), monday(9, 30), model.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "MA201", got[0].Course)
	require.Equal(t, "300", got[0].Room)

	got, err = s.Upcoming(context.Background(), monday(8, 0), model.Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{"101", "205", "300"}, rooms(got))
}

func TestMetrics(t *testing.T) {
	s, _ := newService(t)
	m, err := s.Metrics(context.Background(), monday(9, 30))
	require.NoError(t, err)
	require.Equal(t, model.Mon, m.Day)
	require.Equal(t, 3, m.TotalRooms)
	require.Equal(t, 2, m.RoomsInUse)
	require.Equal(t, 1, m.AvailableRooms)
	require.Equal(t, 2, m.ActiveClasses)
	require.Equal(t, 1, m.UpcomingClasses)
}

func TestHeatmap(t *testing.T) {
	s, _ := newService(t)
	h, err := s.Heatmap(context.Background(), model.Filter{})
	require.NoError(t, err)
	require.Equal(t, model.Weekdays, h.Days)
	require.Equal(t, []string{"101", "205", "300"}, h.Rooms)
	require.Equal(t, [][]int{
		{1, 1, 1, 0, 0},
		{1, 0, 1, 0, 0},
		{1, 0, 0, 0, 0},
	}, h.Counts)
	require.Equal(t, 1, h.Max)

	h, err = s.Heatmap(context.Background(), model.Filter{Day: model.Tue})
	require.NoError(t, err)
	require.Equal(t, []string{"101"}, h.Rooms)
	require.Equal(t, [][]int{{0, 1, 0, 0, 0}}, h.Counts)
}

func TestTimeline(t *testing.T) {
	loc := chicago(t)
	s, _ := newService(t)

	tl, err := s.Timeline(context.Background(), monday(9, 30), model.Filter{})
	require.NoError(t, err)
	require.Equal(t, model.Mon, tl.Day)
	require.Equal(t, []string{"101", "205", "300"}, tl.Rooms)
	require.Len(t, tl.Spans, 3)
	require.True(t, tl.Spans[0].Start.Equal(time.Date(2026, 1, 5, 9, 0, 0, 0, loc)))
	require.True(t, tl.Spans[0].End.Equal(time.Date(2026, 1, 5, 10, 15, 0, 0, loc)))
	require.True(t, tl.From.Equal(time.Date(2026, 1, 5, 9, 0, 0, 0, loc)))
	require.True(t, tl.To.Equal(time.Date(2026, 1, 5, 14, 0, 0, 0, loc)))
	require.True(t, tl.Now.Equal(monday(9, 30)))
	require.Equal(t, loc.String(), tl.Now.Location().String())

	wed, err := s.Timeline(context.Background(), monday(9, 30), model.Filter{Day: model.Wed})
	require.NoError(t, err)
	require.Len(t, wed.Spans, 2)
	require.True(t, wed.Spans[0].Start.Equal(time.Date(2026, 1, 7, 9, 0, 0, 0, loc)))
}

func TestTimelineHoursFollowWallClock(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	repo := &fakeRepo{entries: []model.ScheduleEntry{
		{Course: "CS101", Day: model.Mon, Room: "101", Start: clock(9, 0), End: clock(10, 0)},
		{Course: "MA201", Day: model.Mon, Room: "102", Start: clock(10, 30), End: clock(11, 15)},
	}}
	s, err := NewService(repo, kolkata)
	require.NoError(t, err)

	tl, err := s.Timeline(context.Background(), time.Date(2026, 1, 5, 8, 0, 0, 0, kolkata), model.Filter{})
	require.NoError(t, err)
	require.True(t, tl.From.Equal(time.Date(2026, 1, 5, 9, 0, 0, 0, kolkata)), tl.From.String())
	require.True(t, tl.To.Equal(time.Date(2026, 1, 5, 12, 0, 0, 0, kolkata)), tl.To.String())
}

func TestTimelineOnWeekendIsEmpty(t *testing.T) {
	s, _ := newService(t)
	tl, err := s.Timeline(context.Background(), time.Date(2026, 1, 11, 18, 0, 0, 0, time.UTC), model.Filter{})
	require.NoError(t, err)
	require.Empty(t, tl.Day)
	require.Empty(t, tl.Spans)
	require.True(t, tl.From.IsZero())
}

func TestNextInRoom(t *testing.T) {
	loc := chicago(t)
	s, _ := newService(t)

	next, ok, err := s.NextInRoom(context.Background(), "101", monday(9, 30))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "MA201", next.Entry.Course)
	require.True(t, next.Start.Equal(time.Date(2026, 1, 6, 13, 0, 0, 0, loc)))

	friday := time.Date(2026, 1, 9, 18, 0, 0, 0, time.UTC)
	next, ok, err = s.NextInRoom(context.Background(), "205", friday)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, next.Start.Equal(time.Date(2026, 1, 12, 9, 0, 0, 0, loc)))

	_, ok, err = s.NextInRoom(context.Background(), "999", friday)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNextInRoomKeepsWallClockAcrossDST(t *testing.T) {
	loc := chicago(t)
	s, _ := newService(t)

	// Clocks move forward on Sunday 2026-03-08.
	friday := time.Date(2026, 3, 6, 12, 0, 0, 0, loc)
	next, ok, err := s.NextInRoom(context.Background(), "205", friday)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, next.Start.Equal(time.Date(2026, 3, 9, 9, 0, 0, 0, loc)))
	require.Equal(t, 9, next.Start.In(loc).Hour())
}

func TestReplaceFlushesCache(t *testing.T) {
	ctx := context.Background()
	s, repo := newService(t)

	_, err := s.Query(ctx, model.Filter{})
	require.NoError(t, err)
	_, err = s.Query(ctx, model.Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, repo.queries)

	_, err = s.Replace(ctx, fixture()[:1])
	require.NoError(t, err)

	got, err := s.Query(ctx, model.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 2, repo.queries)
}

func TestCachedRoomFiltersDoNotCollide(t *testing.T) {
	ctx := context.Background()
	at := func(course, room string) model.ScheduleEntry {
		return model.ScheduleEntry{Course: course, Day: model.Mon, Room: room, Start: clock(9, 0), End: clock(10, 0)}
	}
	repo := &fakeRepo{entries: []model.ScheduleEntry{at("A", "Hall A"), at("B", "101"), at("C", "Hall A,101")}}
	s, err := NewService(repo, nil)
	require.NoError(t, err)

	two, err := s.Query(ctx, model.Filter{Rooms: []string{"Hall A", "101"}})
	require.NoError(t, err)
	require.Len(t, two, 2)

	one, err := s.Query(ctx, model.Filter{Rooms: []string{"Hall A,101"}})
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.Equal(t, "C", one[0].Course)
	require.Equal(t, 2, repo.queries)
}

func TestCacheCanBeDisabled(t *testing.T) {
	repo := &fakeRepo{entries: fixture()}
	s, err := NewService(repo, nil, WithCacheTTL(0))
	require.NoError(t, err)

	for range 3 {
		_, err := s.Query(context.Background(), model.Filter{})
		require.NoError(t, err)
	}
	require.Equal(t, 3, repo.queries)
}

func TestRepositoryErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	s, repo := newService(t)
	repo.err = boom

	_, err := s.Active(ctx, monday(9, 30), model.Filter{})
	require.ErrorIs(t, err, boom)

	_, err = s.Replace(ctx, fixture())
	require.ErrorIs(t, err, boom)
}
