package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coverageTable builds a 10-date table where station i has values on the
// first counts[i] dates.
func coverageTable(t *testing.T, names []string, counts []int) WideTable {
	t.Helper()
	var rows []Observation
	for i, name := range names {
		for d := 1; d <= 10; d++ {
			var v *float64
			if d <= counts[i] {
				v = ptr(float64(d))
			}
			rows = append(rows, obs(fmt.Sprintf("2024-01-%02d", d), name, v))
		}
	}
	return Reshape(consolidated(set("a.csv", "a.zip", baseColumns, rows...)))
}

func TestFilterByCompleteness_Threshold50(t *testing.T) {
	wide := coverageTable(t, []string{"A", "B", "C"}, []int{10, 4, 5})

	filtered, report, err := FilterByCompleteness(wide, 50)

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, filtered.Stations)
	assert.Equal(t, 3, report.StationsBefore)
	assert.Equal(t, 2, report.StationsRetained)
	assert.Equal(t, 1, report.StationsRemoved)
	assert.Equal(t, 50, report.Threshold)

	require.Len(t, report.Stations, 3)
	assert.Equal(t, StationCompleteness{Station: "B", NonNull: 4, Total: 10, Percent: 40, Retained: false}, report.Stations[1])
	assert.InDelta(t, 50.0, report.Stations[2].Percent, 1e-9)
	assert.True(t, report.Stations[2].Retained, "exactly at threshold is kept")
	assert.Equal(t, wide.Dates, filtered.Dates)
}

func TestFilterByCompleteness_Bounds(t *testing.T) {
	wide := coverageTable(t, []string{"A", "B", "C"}, []int{10, 0, 3})

	all, report, err := FilterByCompleteness(wide, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, all.Stations)
	assert.Zero(t, report.StationsRemoved)

	full, report, err := FilterByCompleteness(wide, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, full.Stations)
	assert.Equal(t, 2, report.StationsRemoved)
}

func TestFilterByCompleteness_Monotonic(t *testing.T) {
	wide := coverageTable(t, []string{"A", "B", "C", "D", "E"}, []int{10, 7, 5, 3, 1})

	prev := len(wide.Stations)
	for p := 0; p <= 100; p++ {
		filtered, report, err := FilterByCompleteness(wide, p)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(filtered.Stations), prev, "threshold %d", p)
		assert.Equal(t, report.StationsBefore-len(filtered.Stations), report.StationsRemoved)
		prev = len(filtered.Stations)
	}
}

func TestFilterByCompleteness_NoRows(t *testing.T) {
	wide := Reshape(consolidated())

	filtered, report, err := FilterByCompleteness(wide, 50)
	require.NoError(t, err)
	assert.Empty(t, filtered.Stations)
	assert.Zero(t, report.StationsBefore)
}

func TestFilterByCompleteness_InvalidThreshold(t *testing.T) {
	wide := coverageTable(t, []string{"A"}, []int{10})

	for _, p := range []int{-1, 101} {
		_, _, err := FilterByCompleteness(wide, p)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidThreshold)
	}
}
