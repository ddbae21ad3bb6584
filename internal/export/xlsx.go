package export

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/station-pivot-etl/internal/domain"
)

// MIMEType is the content type of the produced spreadsheets.
const MIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DefaultSheetName is used when no sheet name is configured.
const DefaultSheetName = "Organized Data"

const (
	dateFormat     = "yyyy-mm-dd"
	dateTimeFormat = "yyyy-mm-dd hh:mm:ss"
	defaultSheet   = "Sheet1"
)

// Artifact is a named, downloadable byte stream.
type Artifact struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

// WriteXLSX serializes t into a single-sheet workbook: a header row followed
// by one row per table row, without an index column. Dates become date-typed
// cells; nil values become empty cells.
func WriteXLSX(t domain.Table, sheet string) ([]byte, error) {
	if sheet == "" {
		sheet = DefaultSheetName
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, sheet); err != nil {
		return nil, fmt.Errorf("name sheet %q: %w", sheet, err)
	}

	rows := make([][]any, t.Len())
	withTime := false
	for i := range rows {
		rows[i] = t.Row(i)
		for _, v := range rows[i] {
			if ts, ok := v.(time.Time); ok && domain.HasTimeOfDay(ts) {
				withTime = true
			}
		}
	}

	numFmt := dateFormat
	if withTime {
		numFmt = dateTimeFormat
	}
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return nil, fmt.Errorf("create date style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return nil, fmt.Errorf("open stream writer: %w", err)
	}

	header := t.Header()
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := sw.SetRow("A1", headerRow); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		for j, v := range row {
			if ts, ok := v.(time.Time); ok {
				row[j] = excelize.Cell{StyleID: dateStyle, Value: ts}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flush sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Sheet is a worksheet read back as raw cell values. Rows are padded to the
// header width; empty cells are "".
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// ReadXLSX reads one sheet of a workbook. An empty sheet name selects the
// first sheet. Values are raw: dates come back as serial numbers, see Date.
func ReadXLSX(data []byte, sheet string) (Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Sheet{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return Sheet{}, errors.New("workbook has no sheets")
		}
		sheet = list[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Sheet{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	out := Sheet{Name: sheet}
	if len(rows) == 0 {
		return out, nil
	}
	out.Header = rows[0]
	width := len(out.Header)
	for _, r := range rows[1:] {
		if len(r) < width {
			padded := make([]string, width)
			copy(padded, r)
			r = padded
		}
		out.Rows = append(out.Rows, r)
	}
	return out, nil
}

// Float parses the cell at (row, col) as a number. ok is false for an empty cell.
func (s Sheet) Float(row, col int) (v float64, ok bool, err error) {
	raw := strings.TrimSpace(s.Rows[row][col])
	if raw == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cell %d,%d: %w", row, col, err)
	}
	return v, true, nil
}

// Date parses the cell at (row, col) as a date. Serial numbers are converted
// from the 1900 date system; ISO strings are accepted as well.
func (s Sheet) Date(row, col int) (time.Time, bool, error) {
	raw := strings.TrimSpace(s.Rows[row][col])
	if raw == "" {
		return time.Time{}, false, nil
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("cell %d,%d: %w", row, col, err)
		}
		return roundToSecond(t), true, nil
	}
	if t, ok := domain.ParseTimestamp(raw, false); ok {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("cell %d,%d: not a date: %q", row, col, raw)
}

// roundToSecond removes the float noise of serial-number conversion.
func roundToSecond(t time.Time) time.Time {
	return t.Round(time.Second).UTC()
}
