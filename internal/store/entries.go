package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "classgrid/internal/log"
	"classgrid/internal/model"
)

// ErrUnknownField is returned by ListDistinct for a column that cannot be
// listed.
var ErrUnknownField = errors.New("unknown field")

var distinctColumns = map[model.Field]string{
	model.FieldInstructor: "instructor",
	model.FieldRoom:       "room",
}

const activeJoin = `FROM schedule_entries e JOIN active_batch b ON b.batch_id = e.batch_id`

// ReplaceAll discards the current collection and makes entries the new one.
// Rows are first written under a fresh batch id that no reader can see; a
// second transaction then points the active batch at it and prunes every
// other batch. A failure at any point leaves the previous collection intact.
func (s *Store) ReplaceAll(ctx context.Context, entries []model.ScheduleEntry) (model.StoreStats, error) {
	for i, e := range entries {
		if !e.Valid() {
			return model.StoreStats{}, &StoreError{
				Op:  "replace",
				Err: fmt.Errorf("entry %d (%s %s %s): invalid day or time range", i, e.Course, e.Day, e.Room),
			}
		}
	}

	batchID := uuid.NewString()
	if err := s.stage(ctx, batchID, entries); err != nil {
		return model.StoreStats{}, &StoreError{Op: "replace", Err: err}
	}

	stats := model.StoreStats{
		BatchID:    batchID,
		ReplacedAt: s.now().UTC().Truncate(time.Second),
		EntryCount: len(entries),
	}
	if err := s.swap(ctx, stats); err != nil {
		return model.StoreStats{}, &StoreError{Op: "replace", Err: err}
	}

	appLog.Info("store replaced schedule", "batch_id", batchID, "entries", len(entries))
	return stats, nil
}

func (s *Store) stage(ctx context.Context, batchID string, entries []model.ScheduleEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stage tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO schedule_entries
			(id, batch_id, course, course_title, instructor, meeting_day, room, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), batchID, e.Course, e.CourseTitle, e.Instructor,
			string(e.Day), e.Room, e.Start.String(), e.End.String(),
		); err != nil {
			return fmt.Errorf("insert %s/%s/%s: %w", e.Course, e.Day, e.Room, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stage tx: %w", err)
	}
	return nil
}

func (s *Store) swap(ctx context.Context, stats model.StoreStats) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin swap tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO active_batch (id, batch_id, replaced_at, entry_count)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			batch_id = excluded.batch_id,
			replaced_at = excluded.replaced_at,
			entry_count = excluded.entry_count`),
		stats.BatchID, stats.ReplacedAt.Unix(), stats.EntryCount,
	); err != nil {
		return fmt.Errorf("activate batch: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		s.rebind(`DELETE FROM schedule_entries WHERE batch_id <> ?`), stats.BatchID,
	); err != nil {
		return fmt.Errorf("prune batches: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit swap tx: %w", err)
	}
	return nil
}

// Query returns the active entries matching every supplied filter, ordered by
// weekday, start time, room and course. An empty store yields an empty slice.
func (s *Store) Query(ctx context.Context, f model.Filter) ([]model.ScheduleEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Day != "" {
		where = append(where, "e.meeting_day = ?")
		args = append(args, string(f.Day))
	}
	if len(f.Rooms) > 0 {
		marks := make([]string, len(f.Rooms))
		for i, r := range f.Rooms {
			marks[i] = "?"
			args = append(args, r)
		}
		where = append(where, "e.room IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Instructor != "" {
		where = append(where, "e.instructor = ?")
		args = append(args, f.Instructor)
	}

	q := `SELECT e.id, e.course, e.course_title, e.instructor, e.meeting_day, e.room, e.start_time, e.end_time ` + activeJoin
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	defer rows.Close()

	out := make([]model.ScheduleEntry, 0)
	for rows.Next() {
		var (
			e          model.ScheduleEntry
			day        string
			start, end string
		)
		if err := rows.Scan(&e.ID, &e.Course, &e.CourseTitle, &e.Instructor, &day, &e.Room, &start, &end); err != nil {
			return nil, &StoreError{Op: "query", Err: err}
		}
		e.Day = model.Weekday(day)
		if !e.Day.Valid() {
			return nil, &StoreError{Op: "query", Err: fmt.Errorf("entry %s: invalid meeting day %q", e.ID, day)}
		}
		if e.Start, err = model.ParseClockTime(start); err != nil {
			return nil, &StoreError{Op: "query", Err: fmt.Errorf("entry %s: %w", e.ID, err)}
		}
		if e.End, err = model.ParseClockTime(end); err != nil {
			return nil, &StoreError{Op: "query", Err: fmt.Errorf("entry %s: %w", e.ID, err)}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}

	SortEntries(out)
	return out, nil
}

// SortEntries orders entries by weekday, start time, room and course.
func SortEntries(entries []model.ScheduleEntry) {
	slices.SortStableFunc(entries, func(a, b model.ScheduleEntry) int {
		return cmp.Or(
			cmp.Compare(a.Day.Index(), b.Day.Index()),
			cmp.Compare(a.Start, b.Start),
			cmp.Compare(a.Room, b.Room),
			cmp.Compare(a.Course, b.Course),
		)
	})
}

// ListDistinct returns the sorted distinct values of an entry column.
func (s *Store) ListDistinct(ctx context.Context, field model.Field) ([]string, error) {
	col, ok := distinctColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT e.`+col+` `+activeJoin+` ORDER BY e.`+col,
	)
	if err != nil {
		return nil, &StoreError{Op: "list " + col, Err: err}
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &StoreError{Op: "list " + col, Err: err}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list " + col, Err: err}
	}
	return out, nil
}

// Stats describes the active collection. It returns the zero value when
// nothing has been stored yet.
func (s *Store) Stats(ctx context.Context) (model.StoreStats, error) {
	var (
		stats      model.StoreStats
		replacedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT batch_id, replaced_at, entry_count FROM active_batch WHERE id = 1`,
	).Scan(&stats.BatchID, &replacedAt, &stats.EntryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StoreStats{}, nil
	}
	if err != nil {
		return model.StoreStats{}, &StoreError{Op: "stats", Err: err}
	}
	stats.ReplacedAt = time.Unix(replacedAt, 0).UTC()
	return stats, nil
}
