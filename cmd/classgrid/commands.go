package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"classgrid/internal/importer"
	"classgrid/internal/ingest"
	"classgrid/internal/model"
	"classgrid/internal/source"
)

var importCmd = &cli.Command{
	Name:      "import",
	Usage:     "replace the stored schedule with a CSV/XLSX file or URL",
	ArgsUsage: "[file]",
	Flags:     []cli.Flag{urlFlag, strictFlag},
	Action:    importAction,
}

var validateCmd = &cli.Command{
	Name:      "validate",
	Usage:     "parse a CSV/XLSX file and print the ingestion report without storing it",
	ArgsUsage: "<file>",
	Flags:     []cli.Flag{strictFlag},
	Action:    validateAction,
}

var queryCmd = &cli.Command{
	Name:   "query",
	Usage:  "print stored entries",
	Flags:  []cli.Flag{dayFlag, roomFlag, instructorFlag, atFlag, activeFlag, jsonFlag},
	Action: queryAction,
}

func importAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, closeStore, err := openService(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := ingest.Options{Strict: cfg.Ingest.Strict}

	if url := c.String(urlFlagName); url != "" {
		job, err := importer.NewJob(source.NewFetcher(cfg.Import.CacheDir, nil), svc, source.Source{ID: "cli", URL: url}, opts)
		if err != nil {
			return err
		}
		rep, err := job.Run(c.Context)
		if err != nil {
			return err
		}
		return printReport(c.App.Writer, rep.Ingest, rep.Stats.EntryCount)
	}

	res, err := parseFile(c.Args().First(), opts)
	if err != nil {
		return err
	}
	stats, err := svc.Replace(c.Context, res.Entries)
	if err != nil {
		return err
	}
	return printReport(c.App.Writer, res, stats.EntryCount)
}

func validateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	res, err := parseFile(c.Args().First(), ingest.Options{Strict: cfg.Ingest.Strict})
	if err != nil {
		return err
	}
	return printReport(c.App.Writer, res, 0)
}

func parseFile(path string, opts ingest.Options) (*ingest.Result, error) {
	if path == "" {
		return nil, errors.New("a spreadsheet file argument is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ingest.Parse(f, ingest.FormatForFilename(filepath.Base(path)), opts)
}

func printReport(w io.Writer, res *ingest.Result, stored int) error {
	fmt.Fprintf(w, "rows: %d\nentries: %d\nunscheduled: %d\ndropped: %d\nskipped: %d\n",
		res.Rows, len(res.Entries), res.Unscheduled, res.Dropped, len(res.Skipped))
	for _, p := range res.Skipped {
		fmt.Fprintf(w, "  %s\n", p.Error())
	}
	if stored > 0 {
		fmt.Fprintf(w, "stored: %d\n", stored)
	}
	return nil
}

func queryAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, closeStore, err := openService(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	f, err := filterFromFlags(c)
	if err != nil {
		return err
	}

	at := time.Now()
	if ts := c.Timestamp(atFlagName); ts != nil {
		at = *ts
	}

	var entries []model.ScheduleEntry
	if c.Bool(activeFlagName) {
		entries, err = svc.Active(c.Context, at, f)
	} else {
		entries, err = svc.Query(c.Context, f)
	}
	if err != nil {
		return err
	}

	if c.Bool(jsonFlagName) {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	return printEntries(c.App.Writer, entries)
}

func filterFromFlags(c *cli.Context) (model.Filter, error) {
	var f model.Filter
	if d := c.String(dayFlagName); d != "" {
		day, err := model.ParseWeekday(d)
		if err != nil {
			return model.Filter{}, err
		}
		f.Day = day
	}
	f.Rooms = c.StringSlice(roomFlagName)
	f.Instructor = c.String(instructorFlagName)
	return f, nil
}

func printEntries(w io.Writer, entries []model.ScheduleEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSTART\tEND\tROOM\tCOURSE\tINSTRUCTOR\tTITLE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Day, e.Start.Kitchen(), e.End.Kitchen(), e.Room, e.Course, e.Instructor, strings.TrimSpace(e.CourseTitle))
	}
	return tw.Flush()
}
