package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/couchcryptid/station-pivot-etl/internal/archive"
	"github.com/couchcryptid/station-pivot-etl/internal/domain"
)

const tabularExt = ".csv"

// Canonical header names substituted for the schema columns before decoding,
// so the record struct tags stay fixed whatever the configured schema is.
const (
	fieldDate        = "__stationpivot_date"
	fieldStationID   = "__stationpivot_station_id"
	fieldStationName = "__stationpivot_station_name"
	fieldValue       = "__stationpivot_value"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// nullTokens are the "not available" spellings read as null.
var nullTokens = map[string]struct{}{
	"":         {},
	"NA":       {},
	"N/A":      {},
	"n/a":      {},
	"NaN":      {},
	"nan":      {},
	"-NaN":     {},
	"-nan":     {},
	"NULL":     {},
	"null":     {},
	"None":     {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"<NA>":     {},
	"1.#IND":   {},
	"-1.#IND":  {},
	"1.#QNAN":  {},
	"-1.#QNAN": {},
}

// record is the schema projection of one CSV row.
type record struct {
	Date        string `csv:"__stationpivot_date"`
	StationID   string `csv:"__stationpivot_station_id"`
	StationName string `csv:"__stationpivot_station_name"`
	Value       string `csv:"__stationpivot_value"`
}

// Loader parses station CSV files into observations.
type Loader struct {
	schema domain.Schema
	logger *slog.Logger
}

// New creates a Loader for the given schema.
func New(schema domain.Schema, logger *slog.Logger) *Loader {
	return &Loader{schema: schema, logger: logger}
}

// Result is the outcome of loading every inner archive of one upload.
type Result struct {
	Sets     []domain.RecordSet
	Files    int
	Warnings []domain.Warning
}

// LoadAll loads the CSV files directly inside each inner archive directory.
// A file that fails to parse is skipped and reported as a warning.
func (l *Loader) LoadAll(inner []archive.InnerArchive) (Result, error) {
	var res Result
	for _, ia := range inner {
		paths, err := Discover(ia.Dir)
		if err != nil {
			return Result{}, fmt.Errorf("list %s: %w", ia.Name, err)
		}
		res.Files += len(paths)

		for _, path := range paths {
			set, err := l.LoadFile(path, ia.BaseName())
			if err != nil {
				l.logger.Warn("skipping unparseable file", "archive", ia.Name, "file", filepath.Base(path), "error", err)
				res.Warnings = append(res.Warnings, domain.Warning{
					Kind:    domain.WarningRecordParse,
					Source:  ia.Name + "/" + filepath.Base(path),
					Message: err.Error(),
				})
				continue
			}
			l.logger.Debug("file loaded", "archive", ia.Name, "file", set.File, "rows", len(set.Observations))
			res.Sets = append(res.Sets, set)
		}
	}
	return res, nil
}

// Discover returns the CSV files directly inside dir, sorted by name.
// Subdirectories are not searched.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "._") {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), tabularExt) {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

// LoadFile opens and parses one CSV file. archiveName is recorded as provenance.
func (l *Loader) LoadFile(path, archiveName string) (domain.RecordSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RecordSet{}, &domain.ParseError{File: filepath.Base(path), Archive: archiveName, Err: err}
	}
	defer f.Close()
	return l.Parse(f, filepath.Base(path), archiveName)
}

// Parse reads CSV data with a header row. Errors are *domain.ParseError.
func (l *Loader) Parse(r io.Reader, file, archiveName string) (domain.RecordSet, error) {
	set := domain.RecordSet{File: file, Archive: archiveName}
	fail := func(line int, err error) (domain.RecordSet, error) {
		return domain.RecordSet{}, &domain.ParseError{File: file, Archive: archiveName, Line: line, Err: err}
	}

	cr := csv.NewReader(skipBOM(r))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return fail(0, errors.New("no header row"))
	}
	if err != nil {
		return fail(errorLine(err), err)
	}
	header = normalizeHeader(header)
	set.Columns = header

	dec, err := csvutil.NewDecoder(&paddedReader{r: cr, width: len(header)}, l.canonicalHeader(header)...)
	if err != nil {
		return fail(1, err)
	}

	for {
		var rec record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(errorLine(err), err)
		}
		set.Observations = append(set.Observations, l.observation(rec, header, dec.Unused(), dec.Record(), file, archiveName))
	}
	return set, nil
}

// errorLine extracts the source line from a CSV read error, or 0.
func errorLine(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}

func (l *Loader) observation(rec record, header []string, extraCols []int, raw []string, file, archiveName string) domain.Observation {
	obs := domain.Observation{
		RawDate:       nullToEmpty(rec.Date),
		StationID:     nullToEmpty(rec.StationID),
		StationName:   nullToEmpty(rec.StationName),
		Value:         parseValue(rec.Value),
		SourceFile:    file,
		SourceArchive: archiveName,
	}
	if len(extraCols) > 0 {
		obs.Extra = make(map[string]domain.Cell, len(extraCols))
		for _, i := range extraCols {
			if i < len(raw) {
				obs.Extra[header[i]] = l.cell(header[i], raw[i])
			}
		}
	}
	return obs
}

// canonicalHeader replaces the schema column names with the fixed names the
// record struct is tagged with. Only the first occurrence of each is mapped.
func (l *Loader) canonicalHeader(header []string) []string {
	mapping := map[string]string{
		l.schema.DateColumn:        fieldDate,
		l.schema.StationIDColumn:   fieldStationID,
		l.schema.StationNameColumn: fieldStationName,
		l.schema.ValueColumn:       fieldValue,
	}
	out := make([]string, len(header))
	for i, h := range header {
		if canonical, ok := mapping[h]; ok && h != "" {
			out[i] = canonical
			delete(mapping, h)
			continue
		}
		out[i] = h
	}
	return out
}

// cell converts a raw extra-column value, honoring the text override table.
func (l *Loader) cell(column, raw string) domain.Cell {
	if isNull(raw) {
		return domain.NullCell
	}
	if l.schema.IsText(column) {
		return domain.TextCell(raw)
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && isFinite(v) {
		return domain.NumberCell(v)
	}
	return domain.TextCell(raw)
}

// parseValue coerces a measurement to a number; anything else is null.
func parseValue(raw string) *float64 {
	if isNull(raw) {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !isFinite(v) {
		return nil
	}
	return &v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isNull(raw string) bool {
	_, ok := nullTokens[strings.TrimSpace(raw)]
	return ok
}

func nullToEmpty(raw string) string {
	if isNull(raw) {
		return ""
	}
	return strings.TrimSpace(raw)
}

// reservedColumns are the provenance column names. A source column with one
// of these names is renamed like a duplicate so provenance cannot hide it.
var reservedColumns = []string{domain.ColumnSourceFile, domain.ColumnSourceArchive}

// normalizeHeader trims header names and renames repeats by appending ".1",
// ".2" and so on, keeping the first occurrence as is.
func normalizeHeader(header []string) []string {
	seen := make(map[string]bool, len(header)+len(reservedColumns))
	for _, name := range reservedColumns {
		seen[name] = true
	}
	counts := make(map[string]int)
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		name := h
		for seen[name] {
			counts[h]++
			name = h + "." + strconv.Itoa(counts[h])
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

// paddedReader fills short records with empty fields up to the header width.
// Records longer than the header are an error.
type paddedReader struct {
	r     *csv.Reader
	width int
}

func (p *paddedReader) Read() ([]string, error) {
	rec, err := p.r.Read()
	if err != nil {
		return nil, err
	}
	if len(rec) > p.width {
		line, _ := p.r.FieldPos(0)
		return nil, &csv.ParseError{StartLine: line, Line: line, Column: 1, Err: csv.ErrFieldCount}
	}
	for len(rec) < p.width {
		rec = append(rec, "")
	}
	return rec, nil
}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
