package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"classgrid/internal/ingest"
	appLog "classgrid/internal/log"
	"classgrid/internal/model"
	"classgrid/internal/source"
)

// Fetcher downloads a source spreadsheet.
type Fetcher interface {
	Fetch(ctx context.Context, src source.Source) (source.Result, error)
}

// Replacer installs a new schedule collection.
type Replacer interface {
	Replace(ctx context.Context, entries []model.ScheduleEntry) (model.StoreStats, error)
}

// Report summarizes one import run.
type Report struct {
	Source    source.Source    `json:"-"`
	Filename  string           `json:"filename"`
	Format    string           `json:"format"`
	FromCache bool             `json:"from_cache"`
	Ingest    *ingest.Result   `json:"-"`
	Stats     model.StoreStats `json:"stats"`
	Duration  time.Duration    `json:"duration"`
}

// Job imports one remote spreadsheet into the schedule.
type Job struct {
	fetcher  Fetcher
	replacer Replacer
	src      source.Source
	opts     ingest.Options

	// running serializes runs started by cron and by hand.
	running sync.Mutex
}

func NewJob(f Fetcher, r Replacer, src source.Source, opts ingest.Options) (*Job, error) {
	if f == nil || r == nil {
		return nil, errors.New("importer: fetcher and replacer are required")
	}
	if src.URL == "" {
		return nil, errors.New("importer: source url is empty")
	}
	return &Job{fetcher: f, replacer: r, src: src, opts: opts}, nil
}

// Run fetches, normalizes and stores the source. A fetch or ingest failure
// leaves the stored schedule untouched.
func (j *Job) Run(ctx context.Context) (Report, error) {
	j.running.Lock()
	defer j.running.Unlock()

	started := time.Now()
	rep := Report{Source: j.src}

	res, err := j.fetcher.Fetch(ctx, j.src)
	if err != nil {
		return rep, fmt.Errorf("importer: fetch %s: %w", j.src.ID, err)
	}
	rep.Filename = res.Filename
	rep.FromCache = res.FromCache

	format := ingest.FormatForFilename(res.Filename)
	rep.Format = format.String()

	parsed, err := ingest.Parse(bytes.NewReader(res.Body), format, j.opts)
	if err != nil {
		return rep, fmt.Errorf("importer: ingest %s: %w", j.src.ID, err)
	}
	rep.Ingest = parsed

	stats, err := j.replacer.Replace(ctx, parsed.Entries)
	if err != nil {
		return rep, fmt.Errorf("importer: replace: %w", err)
	}
	rep.Stats = stats
	rep.Duration = time.Since(started)

	appLog.Info("import completed",
		"id", j.src.ID,
		"format", rep.Format,
		"from_cache", rep.FromCache,
		"entries", stats.EntryCount,
		"skipped", len(parsed.Skipped),
		"batch_id", stats.BatchID,
		"duration", rep.Duration.String(),
	)
	return rep, nil
}
