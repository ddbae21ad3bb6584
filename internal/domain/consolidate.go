package domain

import "time"

// Table is the read-only view the exporter serializes. Row values are nil,
// string, float64, or time.Time.
type Table interface {
	Header() []string
	Len() int
	Row(i int) []any
}

// ConsolidateOptions selects the optional consolidation stages.
type ConsolidateOptions struct {
	Schema Schema

	// NormalizeDates truncates parsed timestamps to calendar dates.
	NormalizeDates bool

	// Provenance keeps the source_file and source_archive columns.
	Provenance bool
}

// ConsolidatedTable is the long table: every loaded observation in
// first-seen-file-then-row order, with the union of all source columns.
type ConsolidatedTable struct {
	Columns []string
	Rows    []Observation

	schema Schema
}

// Consolidate unions the record sets into one table and parses dates.
// Unparseable dates become the zero time; they are never an error.
func Consolidate(sets []RecordSet, opts ConsolidateOptions) ConsolidatedTable {
	total := 0
	for _, s := range sets {
		total += len(s.Observations)
	}

	table := ConsolidatedTable{
		Rows:   make([]Observation, 0, total),
		schema: opts.Schema,
	}

	seen := make(map[string]bool)
	for _, set := range sets {
		for _, col := range set.Columns {
			if !seen[col] {
				seen[col] = true
				table.Columns = append(table.Columns, col)
			}
		}

		for _, obs := range set.Observations {
			obs.Date = consolidateDate(obs.RawDate, opts)
			if !opts.Provenance {
				obs.SourceFile = ""
				obs.SourceArchive = ""
			}
			table.Rows = append(table.Rows, obs)
		}
	}

	if opts.Provenance {
		for _, col := range []string{ColumnSourceFile, ColumnSourceArchive} {
			if !seen[col] {
				table.Columns = append(table.Columns, col)
			}
		}
	}
	return table
}

func consolidateDate(raw string, opts ConsolidateOptions) time.Time {
	t, ok := ParseTimestamp(raw, opts.Schema.DayFirst)
	if !ok {
		return time.Time{}
	}
	if opts.NormalizeDates {
		return TruncateToDate(t)
	}
	return t
}

// Header returns the column names in first-seen order.
func (t ConsolidatedTable) Header() []string { return t.Columns }

// Len returns the number of rows.
func (t ConsolidatedTable) Len() int { return len(t.Rows) }

// Row returns row i aligned with Header. Columns absent from the row's
// source file are nil.
func (t ConsolidatedTable) Row(i int) []any {
	obs := t.Rows[i]
	out := make([]any, len(t.Columns))
	for j, col := range t.Columns {
		out[j] = t.cell(obs, col)
	}
	return out
}

func (t ConsolidatedTable) cell(obs Observation, col string) any {
	switch col {
	case t.schema.DateColumn:
		if obs.HasDate() {
			return obs.Date
		}
		return nil
	case t.schema.StationIDColumn:
		return nullableText(obs.StationID)
	case t.schema.StationNameColumn:
		return nullableText(obs.StationName)
	case t.schema.ValueColumn:
		if obs.Value == nil {
			return nil
		}
		return *obs.Value
	case ColumnSourceFile:
		return nullableText(obs.SourceFile)
	case ColumnSourceArchive:
		return nullableText(obs.SourceArchive)
	}
	if c, ok := obs.Extra[col]; ok {
		return c.Any()
	}
	return nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
