package domain

import "fmt"

// StationCompleteness is the coverage of one station column.
type StationCompleteness struct {
	Station  string  `json:"station"`
	NonNull  int     `json:"non_null"`
	Total    int     `json:"total"`
	Percent  float64 `json:"percent"`
	Retained bool    `json:"retained"`
}

// CompletenessReport summarizes a completeness filter run.
type CompletenessReport struct {
	Threshold        int                   `json:"threshold"`
	StationsBefore   int                   `json:"stations_before"`
	StationsRetained int                   `json:"stations_retained"`
	StationsRemoved  int                   `json:"stations_removed"`
	Stations         []StationCompleteness `json:"stations"`
}

// FilterByCompleteness keeps the station columns whose share of non-null
// cells is at least threshold percent. The comparison is inclusive and done
// in integer arithmetic, so a station at exactly the threshold is kept.
//
// A table with no rows has 0% coverage for every station: threshold 0 keeps
// all of them, any positive threshold drops all of them.
func FilterByCompleteness(w WideTable, threshold int) (WideTable, CompletenessReport, error) {
	if threshold < 0 || threshold > 100 {
		return WideTable{}, CompletenessReport{}, fmt.Errorf("%w: got %d", ErrInvalidThreshold, threshold)
	}

	total := w.Len()
	report := CompletenessReport{
		Threshold:      threshold,
		StationsBefore: len(w.Stations),
		Stations:       make([]StationCompleteness, len(w.Stations)),
	}

	keep := make([]int, 0, len(w.Stations))
	for col, name := range w.Stations {
		nonNull := w.NonNullCount(col)
		sc := StationCompleteness{
			Station: name,
			NonNull: nonNull,
			Total:   total,
		}
		if total > 0 {
			sc.Percent = float64(nonNull) * 100 / float64(total)
		}
		sc.Retained = nonNull*100 >= threshold*total
		if total == 0 {
			sc.Retained = threshold == 0
		}
		if sc.Retained {
			keep = append(keep, col)
		}
		report.Stations[col] = sc
	}

	report.StationsRetained = len(keep)
	report.StationsRemoved = report.StationsBefore - report.StationsRetained
	return w.SelectStations(keep), report, nil
}
