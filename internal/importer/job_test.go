package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"classgrid/internal/ingest"
	"classgrid/internal/model"
	"classgrid/internal/source"
)

const csvBody = `Course,Course Title,Instructor,Meeting Pattern,Meeting Time,Room Number(s)
CS101,Intro,Smith,"Mon, Wed",9:00AM-10:15AM,101;205
MA201,Calculus,Lee,Tue,1:00PM-2:00PM,300
`

type fakeFetcher struct {
	res source.Result
	err error
}

func (f *fakeFetcher) Fetch(_ context.Context, src source.Source) (source.Result, error) {
	if f.err != nil {
		return source.Result{}, f.err
	}
	res := f.res
	res.Source = src
	return res, nil
}

type fakeReplacer struct {
	calls   int
	entries []model.ScheduleEntry
	err     error
}

func (r *fakeReplacer) Replace(_ context.Context, entries []model.ScheduleEntry) (model.StoreStats, error) {
	r.calls++
	if r.err != nil {
		return model.StoreStats{}, r.err
	}
	r.entries = entries
	return model.StoreStats{BatchID: "batch", EntryCount: len(entries)}, nil
}

var src = source.Source{ID: "term", URL: "https://example.com/schedule.csv"}

func TestNewJobValidates(t *testing.T) {
	_, err := NewJob(nil, &fakeReplacer{}, src, ingest.Options{})
	require.Error(t, err)
	_, err = NewJob(&fakeFetcher{}, &fakeReplacer{}, source.Source{}, ingest.Options{})
	require.Error(t, err)
}

func TestRunImportsSpreadsheet(t *testing.T) {
	rep := &fakeReplacer{}
	job, err := NewJob(&fakeFetcher{res: source.Result{Body: []byte(csvBody), Filename: "schedule.csv"}}, rep, src, ingest.Options{})
	require.NoError(t, err)

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "csv", report.Format)
	require.Equal(t, 5, report.Stats.EntryCount)
	require.Equal(t, 2, report.Ingest.Rows)
	require.Len(t, rep.entries, 5)
	require.Equal(t, 1, rep.calls)
}

func TestRunLeavesScheduleOnFailure(t *testing.T) {
	cases := map[string]*fakeFetcher{
		"fetch":  {err: errors.New("offline")},
		"schema": {res: source.Result{Body: []byte("Course,Instructor\nCS101,Smith\n"), Filename: "x.csv"}},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			rep := &fakeReplacer{}
			job, err := NewJob(f, rep, src, ingest.Options{})
			require.NoError(t, err)

			_, err = job.Run(context.Background())
			require.Error(t, err)
			require.Zero(t, rep.calls)
		})
	}
}

func TestRunSurfacesSchemaError(t *testing.T) {
	job, err := NewJob(&fakeFetcher{res: source.Result{Body: []byte("Course\nCS101\n"), Filename: "x.csv"}},
		&fakeReplacer{}, src, ingest.Options{})
	require.NoError(t, err)

	_, err = job.Run(context.Background())
	var serr *ingest.SchemaError
	require.ErrorAs(t, err, &serr)
}

func TestRunSurfacesReplaceError(t *testing.T) {
	boom := errors.New("disk full")
	job, err := NewJob(&fakeFetcher{res: source.Result{Body: []byte(csvBody), Filename: "schedule.csv"}},
		&fakeReplacer{err: boom}, src, ingest.Options{})
	require.NoError(t, err)

	_, err = job.Run(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(context.Background(), time.UTC)
	err := s.Add("bad", "not a cron spec", func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestSchedulerRunsJob(t *testing.T) {
	rep := &fakeReplacer{}
	job, err := NewJob(&fakeFetcher{res: source.Result{Body: []byte(csvBody), Filename: "schedule.csv"}}, rep, src, ingest.Options{})
	require.NoError(t, err)

	done := make(chan struct{}, 1)
	s := NewScheduler(context.Background(), time.UTC)
	require.NoError(t, ScheduleJob(s, job, "@every 1s"))
	require.NoError(t, s.Add("signal", "@every 1s", func(context.Context) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}))
	s.Start()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled task did not run")
	}
	s.Stop()

	require.GreaterOrEqual(t, rep.calls, 1)
}
