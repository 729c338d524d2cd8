package survey

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrEmptyInput is returned when the input has no header row
	ErrEmptyInput = errors.New("input has no header row")
	// ErrUnsupportedInput is returned for input files that are neither CSV nor XLSX
	ErrUnsupportedInput = errors.New("unsupported input format")
)

// Table is a header row plus data rows, every row padded to the header width
type Table struct {
	Source  string     `json:"source"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// ReadFile reads a CSV or XLSX input. sheet selects the worksheet of an XLSX
// input; empty means the first sheet.
func ReadFile(path, sheet string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		t, err := ReadCSV(f)
		if err != nil {
			return nil, err
		}
		t.Source = path
		return t, nil
	case ".xlsx", ".xlsm":
		t, err := readXLSX(path, sheet)
		if err != nil {
			return nil, err
		}
		t.Source = path
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, path)
	}
}

// ReadCSV reads UTF-8 CSV content with a header row
func ReadCSV(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return newTable(records)
}

func readXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return newTable(rows)
}

func newTable(records [][]string) (*Table, error) {
	// Skip leading blank lines some exports emit
	for len(records) > 0 && isBlankRow(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, ErrEmptyInput
	}

	headers := DisambiguateHeaders(records[0])
	t := &Table{Headers: headers}
	for _, rec := range records[1:] {
		if isBlankRow(rec) {
			continue
		}
		row := make([]string, len(headers))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// DisambiguateHeaders trims header names and suffixes every repeat after the
// first with " (2)", " (3)" and so on
func DisambiguateHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int, len(headers))
	taken := make(map[string]bool, len(headers))
	for _, h := range headers {
		taken[strings.TrimSpace(h)] = true
	}
	for i, h := range headers {
		name := strings.TrimSpace(h)
		seen[name]++
		if n := seen[name]; n > 1 {
			candidate := fmt.Sprintf("%s (%d)", name, n)
			for taken[candidate] {
				n++
				candidate = fmt.Sprintf("%s (%d)", name, n)
			}
			seen[name] = n
			taken[candidate] = true
			name = candidate
		}
		out[i] = name
	}
	return out
}

func isBlankRow(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
