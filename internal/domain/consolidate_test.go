package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func obs(date, station string, value *float64) Observation {
	return Observation{RawDate: date, StationName: station, StationID: "00" + station, Value: value}
}

func set(file, archive string, columns []string, rows ...Observation) RecordSet {
	for i := range rows {
		rows[i].SourceFile = file
		rows[i].SourceArchive = archive
	}
	return RecordSet{File: file, Archive: archive, Columns: columns, Observations: rows}
}

var baseColumns = []string{"CodigoEstacion", "NombreEstacion", "Fecha", "Valor"}

func TestConsolidate_ColumnUnionAndOrder(t *testing.T) {
	a := set("a.csv", "one.zip", []string{"CodigoEstacion", "NombreEstacion", "Fecha", "Valor", "Grado"},
		obs("2024-01-01", "A", ptr(1)))
	b := set("b.csv", "two.zip", []string{"NombreEstacion", "Fecha", "Valor", "Calificador"},
		obs("2024-01-02", "B", ptr(2)))

	table := Consolidate([]RecordSet{a, b}, ConsolidateOptions{Schema: DefaultSchema(), Provenance: true, NormalizeDates: true})

	assert.Equal(t, []string{
		"CodigoEstacion", "NombreEstacion", "Fecha", "Valor", "Grado", "Calificador",
		ColumnSourceFile, ColumnSourceArchive,
	}, table.Header())
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "A", table.Rows[0].StationName)
	assert.Equal(t, "B", table.Rows[1].StationName)
}

func TestConsolidate_MissingColumnsReadAsNull(t *testing.T) {
	a := set("a.csv", "one.zip", []string{"CodigoEstacion", "NombreEstacion", "Fecha", "Valor", "Grado"},
		Observation{RawDate: "2024-01-01", StationName: "A", Value: ptr(1), Extra: map[string]Cell{"Grado": NumberCell(50)}})
	b := set("b.csv", "two.zip", baseColumns, obs("2024-01-02", "B", nil))

	table := Consolidate([]RecordSet{a, b}, ConsolidateOptions{Schema: DefaultSchema()})

	assert.Equal(t, []any{nil, "A", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1.0, 50.0}, table.Row(0))
	assert.Equal(t, []any{"00B", "B", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), nil, nil}, table.Row(1))
}

func TestConsolidate_Dates(t *testing.T) {
	rs := set("a.csv", "one.zip", baseColumns,
		obs("2024-01-01 06:30:00", "A", ptr(1)),
		obs("garbage", "A", ptr(2)),
		obs("", "A", ptr(3)),
	)

	t.Run("normalized", func(t *testing.T) {
		table := Consolidate([]RecordSet{rs}, ConsolidateOptions{Schema: DefaultSchema(), NormalizeDates: true})
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), table.Rows[0].Date)
		assert.False(t, table.Rows[1].HasDate())
		assert.False(t, table.Rows[2].HasDate())
		assert.Nil(t, table.Row(1)[2])
	})

	t.Run("time of day kept", func(t *testing.T) {
		table := Consolidate([]RecordSet{rs}, ConsolidateOptions{Schema: DefaultSchema()})
		assert.Equal(t, time.Date(2024, 1, 1, 6, 30, 0, 0, time.UTC), table.Rows[0].Date)
	})
}

func TestConsolidate_Provenance(t *testing.T) {
	rs := set("a.csv", "one.zip", baseColumns, obs("2024-01-01", "A", ptr(1)))

	t.Run("on", func(t *testing.T) {
		table := Consolidate([]RecordSet{rs}, ConsolidateOptions{Schema: DefaultSchema(), Provenance: true})
		row := table.Row(0)
		assert.Equal(t, "a.csv", row[4])
		assert.Equal(t, "one.zip", row[5])
	})

	t.Run("off", func(t *testing.T) {
		table := Consolidate([]RecordSet{rs}, ConsolidateOptions{Schema: DefaultSchema()})
		assert.NotContains(t, table.Header(), ColumnSourceFile)
		assert.Empty(t, table.Rows[0].SourceFile)
		assert.Empty(t, table.Rows[0].SourceArchive)
	})
}

func TestConsolidate_Empty(t *testing.T) {
	table := Consolidate(nil, ConsolidateOptions{Schema: DefaultSchema()})
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, table.Header())
}
