package domain

import (
	"slices"
	"time"
)

// WideTable has one row per distinct date (ascending) and one column per
// station. Cells are nil where the station has no observation for the date.
type WideTable struct {
	DateColumn string
	Dates      []time.Time
	Stations   []string

	cells [][]*float64
}

// Triple is one (date, station, value) observation of a long table.
type Triple struct {
	Date    time.Time
	Station string
	Value   float64
}

// Reshape pivots the long table on (date, station name).
//
// Rows without a date or a station name are dropped: neither can be a pivot
// key. When the same (date, station) pair occurs more than once, the row
// processed last wins, including when its value is null. Stations keep their
// first-seen order.
func Reshape(t ConsolidatedTable) WideTable {
	wide := WideTable{DateColumn: t.schema.DateColumn}
	if wide.DateColumn == "" {
		wide.DateColumn = DefaultSchema().DateColumn
	}

	stationIdx := make(map[string]int)
	byDate := make(map[time.Time]map[int]*float64)

	for _, obs := range t.Rows {
		if !obs.HasDate() || obs.StationName == "" {
			continue
		}

		col, ok := stationIdx[obs.StationName]
		if !ok {
			col = len(wide.Stations)
			stationIdx[obs.StationName] = col
			wide.Stations = append(wide.Stations, obs.StationName)
		}

		row, ok := byDate[obs.Date]
		if !ok {
			row = make(map[int]*float64)
			byDate[obs.Date] = row
			wide.Dates = append(wide.Dates, obs.Date)
		}
		row[col] = copyFloat(obs.Value)
	}

	slices.SortFunc(wide.Dates, func(a, b time.Time) int { return a.Compare(b) })

	wide.cells = make([][]*float64, len(wide.Dates))
	for i, d := range wide.Dates {
		cells := make([]*float64, len(wide.Stations))
		for col, v := range byDate[d] {
			cells[col] = v
		}
		wide.cells[i] = cells
	}
	return wide
}

// Cell returns the value at (row, station column), nil when missing.
func (w WideTable) Cell(row, col int) *float64 { return w.cells[row][col] }

// StationIndex returns the column index of a station, or -1.
func (w WideTable) StationIndex(name string) int {
	return slices.Index(w.Stations, name)
}

// NonNullCount returns the number of dates with a value for station column col.
func (w WideTable) NonNullCount(col int) int {
	n := 0
	for _, row := range w.cells {
		if row[col] != nil {
			n++
		}
	}
	return n
}

// SelectStations returns a table with only the given station columns, in the
// given order. Dates are kept even when every remaining cell is nil.
func (w WideTable) SelectStations(cols []int) WideTable {
	out := WideTable{
		DateColumn: w.DateColumn,
		Dates:      slices.Clone(w.Dates),
		Stations:   make([]string, len(cols)),
		cells:      make([][]*float64, len(w.cells)),
	}
	for j, col := range cols {
		out.Stations[j] = w.Stations[col]
	}
	for i, row := range w.cells {
		cells := make([]*float64, len(cols))
		for j, col := range cols {
			cells[j] = row[col]
		}
		out.cells[i] = cells
	}
	return out
}

// Head returns the first n rows.
func (w WideTable) Head(n int) WideTable {
	if n < 0 || n > len(w.Dates) {
		n = len(w.Dates)
	}
	return WideTable{
		DateColumn: w.DateColumn,
		Dates:      w.Dates[:n],
		Stations:   w.Stations,
		cells:      w.cells[:n],
	}
}

// Triples unpivots the table back into its non-null observations, ordered by
// date then station column.
func (w WideTable) Triples() []Triple {
	var out []Triple
	for i, d := range w.Dates {
		for j, v := range w.cells[i] {
			if v != nil {
				out = append(out, Triple{Date: d, Station: w.Stations[j], Value: *v})
			}
		}
	}
	return out
}

// HasTimeOfDay reports whether any date row carries a time component, which
// happens only when date normalization is disabled.
func (w WideTable) HasTimeOfDay() bool {
	return slices.ContainsFunc(w.Dates, HasTimeOfDay)
}

// Header returns the date column followed by the station names.
func (w WideTable) Header() []string {
	return append([]string{w.DateColumn}, w.Stations...)
}

// Len returns the number of date rows.
func (w WideTable) Len() int { return len(w.Dates) }

// Row returns the date and the station values of row i.
func (w WideTable) Row(i int) []any {
	out := make([]any, 0, len(w.Stations)+1)
	out = append(out, w.Dates[i])
	for _, v := range w.cells[i] {
		if v == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, *v)
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
