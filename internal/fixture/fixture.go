// Package fixture builds synthetic station exports and nested archives for
// tests and demos.
package fixture

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/klauspost/compress/zip"
)

// exportRow is one line of a station data export.
type exportRow struct {
	StationID     string `csv:"CodigoEstacion"`
	StationName   string `csv:"NombreEstacion"`
	Latitude      string `csv:"Latitud"`
	Longitude     string `csv:"Longitud"`
	Altitude      string `csv:"Altitud"`
	Category      string `csv:"Categoria"`
	Entity        string `csv:"Entidad"`
	OperatingArea string `csv:"AreaOperativa"`
	Department    string `csv:"Departamento"`
	Municipality  string `csv:"Municipio"`
	InstalledAt   string `csv:"FechaInstalacion"`
	SuspendedAt   string `csv:"FechaSuspension"`
	ParameterID   string `csv:"IdParametro"`
	Label         string `csv:"Etiqueta"`
	Description   string `csv:"DescripcionSerie"`
	Frequency     string `csv:"Frecuencia"`
	Date          string `csv:"Fecha"`
	Value         string `csv:"Valor"`
	Grade         string `csv:"Grado"`
	Qualifier     string `csv:"Calificador"`
	ApprovalLevel string `csv:"NivelAprobacion"`
}

// Header is the column layout of a station data export.
var Header = mustHeader()

func mustHeader() []string {
	h, err := csvutil.Header(exportRow{}, "csv")
	if err != nil {
		panic(err)
	}
	return h
}

// Row is one observation in export format. Empty Value means missing.
type Row struct {
	StationID   string
	StationName string
	Date        string
	Value       string
}

// File is a named entry of an archive.
type File struct {
	Name string
	Data []byte
}

// Archive is an inner archive and its entries.
type Archive struct {
	Name  string
	Files []File
}

// StationCSV renders rows with the full export header.
func StationCSV(rows ...Row) []byte {
	out := make([]exportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, exportRow{
			StationID:     r.StationID,
			StationName:   r.StationName,
			Latitude:      "4.60",
			Longitude:     "-74.08",
			Altitude:      "2600",
			Category:      "Climática Principal",
			Entity:        "INSTITUTO DE HIDROLOGIA",
			OperatingArea: "Area Operativa 11",
			Department:    "Bogotá",
			Municipality:  "Bogotá",
			InstalledAt:   "1970-01-15 00:00:00",
			ParameterID:   "PTPM_CON",
			Label:         "PTPM_CON",
			Description:   "Precipitación total diaria",
			Frequency:     "Diaria",
			Date:          r.Date,
			Value:         r.Value,
			Grade:         "50",
			ApprovalLevel: "900",
		})
	}
	data, err := csvutil.Marshal(out)
	if err != nil {
		panic(err)
	}
	return data
}

// Zip packs files into a zip archive.
func Zip(files ...File) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NestedZip packs each inner archive into its own zip, then all of them
// (plus any loose files) into one outer zip.
func NestedZip(inner []Archive, loose ...File) ([]byte, error) {
	entries := make([]File, 0, len(inner)+len(loose))
	for _, a := range inner {
		data, err := Zip(a.Files...)
		if err != nil {
			return nil, fmt.Errorf("inner archive %s: %w", a.Name, err)
		}
		entries = append(entries, File{Name: a.Name, Data: data})
	}
	entries = append(entries, loose...)
	return Zip(entries...)
}

// Options control Generate.
type Options struct {
	Stations int
	Days     int
	Start    time.Time
	// Coverage is the probability, per station, that a day has a value.
	// Station i uses Coverage[i % len(Coverage)].
	Coverage []float64
	Seed     uint64
}

// Generate builds one inner archive per station with a daily series.
func Generate(opts Options) []Archive {
	if len(opts.Coverage) == 0 {
		opts.Coverage = []float64{1}
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	archives := make([]Archive, 0, opts.Stations)
	for s := 0; s < opts.Stations; s++ {
		id := fmt.Sprintf("%010d", 21205010+s)
		name := fmt.Sprintf("ESTACION %02d [%s]", s+1, id)
		coverage := opts.Coverage[s%len(opts.Coverage)]

		rows := make([]Row, 0, opts.Days)
		for d := 0; d < opts.Days; d++ {
			if rng.Float64() >= coverage {
				continue
			}
			rows = append(rows, Row{
				StationID:   id,
				StationName: name,
				Date:        opts.Start.AddDate(0, 0, d).Format("2006-01-02 15:04:05"),
				Value:       fmt.Sprintf("%.1f", rng.Float64()*40),
			})
		}
		archives = append(archives, Archive{
			Name:  fmt.Sprintf("PTPM_CON@%s.zip", id),
			Files: []File{{Name: fmt.Sprintf("PTPM_CON@%s.csv", id), Data: StationCSV(rows...)}},
		})
	}
	return archives
}
