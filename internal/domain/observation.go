package domain

import (
	"strconv"
	"time"
)

// Provenance column names attached by the loader. They never appear in source files.
const (
	ColumnSourceFile    = "source_file"
	ColumnSourceArchive = "source_archive"
)

// CellKind identifies the type of a Cell.
type CellKind int

const (
	CellNull CellKind = iota
	CellText
	CellNumber
)

// Cell is a nullable scalar read from a CSV column that is not part of the schema.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
}

// NullCell is the zero Cell.
var NullCell = Cell{}

// TextCell returns a text-typed cell.
func TextCell(s string) Cell { return Cell{Kind: CellText, Text: s} }

// NumberCell returns a number-typed cell.
func NumberCell(v float64) Cell { return Cell{Kind: CellNumber, Number: v} }

// IsNull reports whether the cell holds no value.
func (c Cell) IsNull() bool { return c.Kind == CellNull }

// Any returns the cell as nil, string, or float64.
func (c Cell) Any() any {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		return c.Number
	default:
		return nil
	}
}

func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	default:
		return ""
	}
}

// Observation is one row of a station CSV after loading.
type Observation struct {
	// Date is the zero time when the source date was missing or unparseable.
	Date        time.Time
	RawDate     string
	StationID   string
	StationName string
	Value       *float64

	// Extra holds every column outside the schema, keyed by header name.
	Extra map[string]Cell

	SourceFile    string
	SourceArchive string
}

// HasDate reports whether the observation carries a usable date.
func (o Observation) HasDate() bool { return !o.Date.IsZero() }

// RecordSet is the output of loading one CSV file.
type RecordSet struct {
	File         string
	Archive      string
	Columns      []string
	Observations []Observation
}

// Schema names the columns the pipeline interprets. Every other column is
// carried through as an Extra cell.
type Schema struct {
	DateColumn        string
	StationIDColumn   string
	StationNameColumn string
	ValueColumn       string

	// TextColumns are never type-inferred. Station codes such as "0021205012"
	// would otherwise lose their leading zeros.
	TextColumns []string

	// DayFirst resolves ambiguous NN/NN/YYYY dates as day/month.
	DayFirst bool
}

// DefaultSchema matches the station export format: Fecha, CodigoEstacion,
// NombreEstacion, Valor.
func DefaultSchema() Schema {
	return Schema{
		DateColumn:        "Fecha",
		StationIDColumn:   "CodigoEstacion",
		StationNameColumn: "NombreEstacion",
		ValueColumn:       "Valor",
		TextColumns:       []string{"CodigoEstacion", "FechaSuspension"},
	}
}

// IsText reports whether column must be kept as text.
func (s Schema) IsText(column string) bool {
	if column == s.StationIDColumn || column == s.StationNameColumn || column == s.DateColumn {
		return true
	}
	for _, c := range s.TextColumns {
		if c == column {
			return true
		}
	}
	return false
}

// WarningKind classifies a non-fatal problem surfaced to the caller.
type WarningKind string

const (
	WarningArchiveCorrupt WarningKind = "archive_corrupt"
	WarningRecordParse    WarningKind = "record_parse"
	WarningEmptyResult    WarningKind = "empty_result"
)

// Warning describes an input that was skipped without aborting the run.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Source  string      `json:"source,omitempty"`
	Message string      `json:"message"`
}

// RunSummary is the event emitted once per pipeline invocation.
type RunSummary struct {
	RunID            string    `json:"run_id"`
	Outcome          string    `json:"outcome"` // "ok", "empty"
	InnerArchives    int       `json:"inner_archives"`
	Files            int       `json:"files"`
	Rows             int       `json:"rows"`
	Dates            int       `json:"dates"`
	StationsBefore   int       `json:"stations_before"`
	StationsRetained int       `json:"stations_retained"`
	StationsRemoved  int       `json:"stations_removed"`
	Threshold        *int      `json:"threshold,omitempty"`
	Warnings         int       `json:"warnings"`
	ProcessedAt      time.Time `json:"processed_at"`
}
