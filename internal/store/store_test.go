package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"classgrid/internal/model"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(course string, day model.Weekday, room, instructor string, start, end model.ClockTime) model.ScheduleEntry {
	return model.ScheduleEntry{
		Course:      course,
		CourseTitle: course + " title",
		Instructor:  instructor,
		Day:         day,
		Room:        room,
		Start:       start,
		End:         end,
	}
}

func fixture() []model.ScheduleEntry {
	nine, ten15 := model.NewClockTime(9, 0, 0), model.NewClockTime(10, 15, 0)
	one, two := model.NewClockTime(13, 0, 0), model.NewClockTime(14, 0, 0)
	return []model.ScheduleEntry{
		entry("CS101", model.Wed, "205", "Smith", nine, ten15),
		entry("CS101", model.Mon, "101", "Smith", nine, ten15),
		entry("CS101", model.Mon, "205", "Smith", nine, ten15),
		entry("CS101", model.Wed, "101", "Smith", nine, ten15),
		entry("MA201", model.Mon, "300", "Lee", one, two),
		entry("MA201", model.Tue, "101", "Lee", one, two),
	}
}

func keys(entries []model.ScheduleEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key()
	}
	return out
}

func countRows(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schedule_entries`).Scan(&n))
	return n
}

func TestEmptyStore(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	got, err := s.Query(ctx, model.Filter{})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	rooms, err := s.ListDistinct(ctx, model.FieldRoom)
	require.NoError(t, err)
	require.Empty(t, rooms)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, model.StoreStats{}, stats)
}

func TestReplaceAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	in := fixture()

	for range 2 {
		stats, err := s.ReplaceAll(ctx, in)
		require.NoError(t, err)
		require.Equal(t, len(in), stats.EntryCount)
		require.NotEmpty(t, stats.BatchID)
	}

	got, err := s.Query(ctx, model.Filter{})
	require.NoError(t, err)
	require.ElementsMatch(t, keys(in), keys(got))
	require.Equal(t, len(in), countRows(t, s))

	ids := make(map[string]bool)
	for _, e := range got {
		require.NotEmpty(t, e.ID)
		require.False(t, ids[e.ID])
		ids[e.ID] = true
	}
}

func TestReplaceAllDiscardsPreviousCollection(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	_, err := s.ReplaceAll(ctx, fixture())
	require.NoError(t, err)

	next := []model.ScheduleEntry{
		entry("PH100", model.Fri, "LAB", "Curie", model.NewClockTime(8, 0, 0), model.NewClockTime(9, 0, 0)),
	}
	stats, err := s.ReplaceAll(ctx, next)
	require.NoError(t, err)

	got, err := s.Query(ctx, model.Filter{})
	require.NoError(t, err)
	require.Equal(t, keys(next), keys(got))
	require.Equal(t, 1, countRows(t, s))

	cur, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, stats, cur)
}

func TestReplaceAllRejectsInvalidEntriesAndKeepsOldData(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	in := fixture()
	_, err := s.ReplaceAll(ctx, in)
	require.NoError(t, err)

	bad := entry("BAD", model.Mon, "1", "X", model.NewClockTime(10, 0, 0), model.NewClockTime(9, 0, 0))
	_, err = s.ReplaceAll(ctx, append(fixture(), bad))
	var serr *StoreError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, "replace", serr.Op)

	got, err := s.Query(ctx, model.Filter{})
	require.NoError(t, err)
	require.ElementsMatch(t, keys(in), keys(got))
}

func TestStagedBatchIsInvisibleUntilSwapped(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	in := fixture()
	_, err := s.ReplaceAll(ctx, in)
	require.NoError(t, err)

	// Simulates a replace interrupted after staging.
	orphan := []model.ScheduleEntry{
		entry("ZZ999", model.Mon, "101", "Ghost", model.NewClockTime(7, 0, 0), model.NewClockTime(8, 0, 0)),
	}
	require.NoError(t, s.stage(ctx, "interrupted-batch", orphan))

	got, err := s.Query(ctx, model.Filter{})
	require.NoError(t, err)
	require.ElementsMatch(t, keys(in), keys(got))

	instructors, err := s.ListDistinct(ctx, model.FieldInstructor)
	require.NoError(t, err)
	require.Equal(t, []string{"Lee", "Smith"}, instructors)

	_, err = s.ReplaceAll(ctx, in)
	require.NoError(t, err)
	require.Equal(t, len(in), countRows(t, s))
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	_, err := s.ReplaceAll(ctx, fixture())
	require.NoError(t, err)

	mon, err := s.Query(ctx, model.Filter{Day: model.Mon})
	require.NoError(t, err)
	require.Len(t, mon, 3)
	for _, e := range mon {
		require.Equal(t, model.Mon, e.Day)
	}

	rooms, err := s.Query(ctx, model.Filter{Rooms: []string{"101", "205"}})
	require.NoError(t, err)
	require.Len(t, rooms, 5)
	for _, e := range rooms {
		require.Contains(t, []string{"101", "205"}, e.Room)
	}

	both, err := s.Query(ctx, model.Filter{Day: model.Mon, Rooms: []string{"101", "300"}})
	require.NoError(t, err)
	require.Len(t, both, 2)

	lee, err := s.Query(ctx, model.Filter{Instructor: "Lee", Rooms: []string{"101"}})
	require.NoError(t, err)
	require.Len(t, lee, 1)
	require.Equal(t, model.Tue, lee[0].Day)

	none, err := s.Query(ctx, model.Filter{Day: model.Fri})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestQueryOrderingAndTimes(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	_, err := s.ReplaceAll(ctx, fixture())
	require.NoError(t, err)

	got, err := s.Query(ctx, model.Filter{})
	require.NoError(t, err)

	var order []string
	for _, e := range got {
		order = append(order, string(e.Day)+" "+e.Start.String()+" "+e.Room)
	}
	require.Equal(t, []string{
		"Mon 09:00:00 101",
		"Mon 09:00:00 205",
		"Mon 13:00:00 300",
		"Tue 13:00:00 101",
		"Wed 09:00:00 101",
		"Wed 09:00:00 205",
	}, order)

	require.Equal(t, model.NewClockTime(9, 0, 0), got[0].Start)
	require.Equal(t, model.NewClockTime(10, 15, 0), got[0].End)
}

func TestListDistinct(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	_, err := s.ReplaceAll(ctx, fixture())
	require.NoError(t, err)

	rooms, err := s.ListDistinct(ctx, model.FieldRoom)
	require.NoError(t, err)
	require.Equal(t, []string{"101", "205", "300"}, rooms)

	_, err = s.ListDistinct(ctx, model.Field("course; DROP TABLE schedule_entries"))
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestCorruptRowSurfacesStoreError(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	stats, err := s.ReplaceAll(ctx, fixture())
	require.NoError(t, err)

	_, err = s.db.Exec(`
		INSERT INTO schedule_entries
			(id, batch_id, course, course_title, instructor, meeting_day, room, start_time, end_time)
		VALUES ('broken', ?, 'X', '', '', 'Mon', '1', 'aa', 'bb')`, stats.BatchID)
	require.NoError(t, err)

	_, err = s.Query(ctx, model.Filter{})
	var serr *StoreError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, "query", serr.Op)
}

func TestFileStorePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "schedule.db")

	s, err := Open(Config{DSN: path})
	require.NoError(t, err)
	_, err = s.ReplaceAll(ctx, fixture())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(Config{DSN: path})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Query(ctx, model.Filter{})
	require.NoError(t, err)
	require.Len(t, got, len(fixture()))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle", DSN: "x"})
	var serr *StoreError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, "open", serr.Op)
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	require.Equal(t, "a = $1 AND b IN ($2, $3)", pg.rebind("a = ? AND b IN (?, ?)"))

	lite := &Store{driver: DriverSQLite}
	require.Equal(t, "a = ?", lite.rebind("a = ?"))
}
