package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"classgrid/internal/model"
)

// Format selects the tabular decoder.
type Format int

const (
	FormatCSV Format = iota
	FormatSpreadsheet
)

func (f Format) String() string {
	if f == FormatCSV {
		return "csv"
	}
	return "spreadsheet"
}

// FormatForFilename picks CSV for a ".csv" name and the spreadsheet reader
// for everything else.
func FormatForFilename(name string) Format {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return FormatCSV
	}
	return FormatSpreadsheet
}

// Required column headers, in the order they are reported when missing.
const (
	ColCourse         = "Course"
	ColCourseTitle    = "Course Title"
	ColMeetingPattern = "Meeting Pattern"
	ColMeetingTime    = "Meeting Time"
	ColInstructor     = "Instructor"
	ColRoomNumbers    = "Room Number(s)"
)

var requiredColumns = []string{
	ColCourse, ColCourseTitle, ColMeetingPattern, ColMeetingTime, ColInstructor, ColRoomNumbers,
}

// readTable decodes r into rows of cells. The first row is the header.
func readTable(r io.Reader, format Format) ([][]string, error) {
	var rows [][]string
	switch format {
	case FormatCSV:
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		all, err := cr.ReadAll()
		if err != nil {
			return nil, &ParseError{Format: format, Err: err}
		}
		rows = all
	default:
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, &ParseError{Format: format, Err: err}
		}
		defer f.Close()

		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &ParseError{Format: format, Err: errors.New("workbook has no sheets")}
		}
		all, err := f.GetRows(sheets[0])
		if err != nil {
			return nil, &ParseError{Format: format, Err: err}
		}
		rows = all
	}

	if len(rows) == 0 {
		return nil, &ParseError{Format: format, Err: errors.New("no header row")}
	}
	if len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// Records reads r and maps every data row onto a RawSectionRecord. It fails
// with *ParseError for unreadable input and *SchemaError when any required
// column is missing; no rows are processed in either case.
func Records(r io.Reader, format Format) ([]model.RawSectionRecord, error) {
	rows, err := readTable(r, format)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	cell := func(row []string, col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return row[i]
	}

	records := make([]model.RawSectionRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		records = append(records, model.RawSectionRecord{
			Row:            i + 2,
			Course:         strings.TrimSpace(cell(row, ColCourse)),
			CourseTitle:    strings.TrimSpace(cell(row, ColCourseTitle)),
			Instructor:     strings.TrimSpace(cell(row, ColInstructor)),
			MeetingPattern: cell(row, ColMeetingPattern),
			MeetingTime:    cell(row, ColMeetingTime),
			RoomNumbers:    cell(row, ColRoomNumbers),
		})
	}
	return records, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
