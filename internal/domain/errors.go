package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrArchiveCorrupt is returned when an outer or inner archive cannot be opened.
	ErrArchiveCorrupt = errors.New("archive corrupt")

	// ErrRecordParse is returned when a tabular file cannot be parsed.
	ErrRecordParse = errors.New("record parse error")

	// ErrEmptyResult marks a run that found no tabular files or no rows.
	// It is reported as a warning, never returned from Process.
	ErrEmptyResult = errors.New("empty result")

	// ErrInvalidThreshold is returned for a completeness threshold outside [0,100].
	ErrInvalidThreshold = errors.New("completeness threshold must be between 0 and 100")
)

// ArchiveError scopes ErrArchiveCorrupt to one archive entry.
type ArchiveError struct {
	Entry string
	Err   error
}

func (e *ArchiveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("archive %q: %v", e.Entry, ErrArchiveCorrupt)
	}
	return fmt.Sprintf("archive %q: %v: %v", e.Entry, ErrArchiveCorrupt, e.Err)
}

func (e *ArchiveError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrArchiveCorrupt}
	}
	return []error{ErrArchiveCorrupt, e.Err}
}

// ParseError scopes ErrRecordParse to one file. Line is 0 when unknown.
type ParseError struct {
	File    string
	Archive string
	Line    int
	Err     error
}

func (e *ParseError) Error() string {
	loc := e.File
	if e.Archive != "" {
		loc = e.Archive + "/" + e.File
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %v", loc, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", loc, e.Err)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRecordParse}
	}
	return []error{ErrRecordParse, e.Err}
}
