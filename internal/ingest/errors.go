package ingest

import (
	"fmt"
	"strings"
)

// SchemaError reports required columns absent from the uploaded header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

// ParseError reports input that could not be read as a table at all.
type ParseError struct {
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unreadable %s input: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProcessingError reports a single row that could not be normalized.
type ProcessingError struct {
	Row    int
	Course string
	Err    error
}

func (e *ProcessingError) Error() string {
	if e.Course != "" {
		return fmt.Sprintf("row %d (%s): %v", e.Row, e.Course, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
