package ingest

import (
	"errors"
	"io"
	"strings"

	appLog "classgrid/internal/log"
	"classgrid/internal/model"
)

var errMissingCourse = errors.New("course code is empty")

// Options controls how row-level failures are handled.
type Options struct {
	// Strict aborts the whole batch on the first row that fails processing.
	// By default such rows are skipped and reported in Result.Skipped.
	Strict bool
}

// Result is the outcome of normalizing one upload.
type Result struct {
	Entries []model.ScheduleEntry

	// Rows is the number of non-blank data rows read.
	Rows int
	// Unscheduled counts rows without a meeting pattern, time or room.
	Unscheduled int
	// Dropped counts expanded entries discarded for missing or inverted times.
	Dropped int
	// Skipped lists rows that failed processing and were left out.
	Skipped []*ProcessingError
}

// Parse reads an upload and normalizes it into schedule entries.
func Parse(r io.Reader, format Format, opts Options) (*Result, error) {
	records, err := Records(r, format)
	if err != nil {
		return nil, err
	}
	return Normalize(records, opts)
}

// Normalize expands records into entries. It returns a *ProcessingError only
// in strict mode.
func Normalize(records []model.RawSectionRecord, opts Options) (*Result, error) {
	res := &Result{Rows: len(records)}

	for _, rec := range records {
		if !scheduled(rec) {
			res.Unscheduled++
			continue
		}

		entries, dropped, err := expand(rec)
		if err != nil {
			var perr *ProcessingError
			if !errors.As(err, &perr) {
				perr = &ProcessingError{Row: rec.Row, Course: rec.Course, Err: err}
			}
			if opts.Strict {
				return nil, perr
			}
			appLog.Error("ingest: skipping row", perr, "row", rec.Row)
			res.Skipped = append(res.Skipped, perr)
			continue
		}
		res.Dropped += dropped
		res.Entries = append(res.Entries, entries...)
	}

	appLog.Info("ingest completed",
		"rows", res.Rows,
		"entries", len(res.Entries),
		"unscheduled", res.Unscheduled,
		"dropped", res.Dropped,
		"skipped", len(res.Skipped),
	)
	return res, nil
}

// Expand turns one record into its (day x room) entries, leaving out any
// entry without a complete, forward time range. Unscheduled records yield
// nothing.
func Expand(rec model.RawSectionRecord) ([]model.ScheduleEntry, error) {
	if !scheduled(rec) {
		return nil, nil
	}
	entries, _, err := expand(rec)
	return entries, err
}

func expand(rec model.RawSectionRecord) ([]model.ScheduleEntry, int, error) {
	if rec.Course == "" {
		return nil, 0, &ProcessingError{Row: rec.Row, Err: errMissingCourse}
	}

	days := ParseMeetingPattern(rec.MeetingPattern)
	rooms := ParseRooms(rec.RoomNumbers)
	start, end, hasStart, hasEnd := ParseMeetingTime(rec.MeetingTime)

	pairs := len(days) * len(rooms)
	if !hasStart || !hasEnd || start >= end {
		return nil, pairs, nil
	}

	entries := make([]model.ScheduleEntry, 0, pairs)
	for _, d := range days {
		for _, room := range rooms {
			entries = append(entries, model.ScheduleEntry{
				Course:      rec.Course,
				CourseTitle: rec.CourseTitle,
				Instructor:  rec.Instructor,
				Day:         d,
				Room:        room,
				Start:       start,
				End:         end,
			})
		}
	}
	return entries, 0, nil
}

func scheduled(rec model.RawSectionRecord) bool {
	return strings.TrimSpace(rec.MeetingPattern) != "" &&
		strings.TrimSpace(rec.MeetingTime) != "" &&
		strings.TrimSpace(rec.RoomNumbers) != ""
}
