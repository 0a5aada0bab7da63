// Package importer turns uploaded CSV and XLSX files into typed bulk rows.
package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Reason classifies a structural file problem.
type Reason string

const (
	ReasonUnsupportedType Reason = "unsupported_type"
	ReasonUnreadable      Reason = "unreadable"
	ReasonEmpty           Reason = "empty"
	ReasonMissingColumns  Reason = "missing_columns"
)

// FileError is a structural problem that rejects the whole upload.
type FileError struct {
	Reason  Reason
	Message string
	Columns []string
}

func (e *FileError) Error() string { return e.Message }

// Record is one data line of an upload, keyed by normalized column name.
type Record struct {
	// Number is the data index plus 2, so the header counts as row 1.
	Number int
	Values map[string]string
	// Extra is set when the line had more cells than the header.
	Extra int
}

// Get returns the trimmed cell for col and whether it was non-empty.
func (r Record) Get(col string) (string, bool) {
	v, ok := r.Values[col]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Table is a parsed upload.
type Table struct {
	Header  []string
	Records []Record
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Read parses filename's content into a Table and checks the required columns.
func Read(filename string, r io.Reader, required []string) (*Table, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSV(r)
	case ".xlsx":
		rows, err = readXLSX(r)
	default:
		return nil, &FileError{Reason: ReasonUnsupportedType, Message: "Only CSV or XLSX files are allowed"}
	}
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 || isBlank(rows[0]) {
		return nil, &FileError{Reason: ReasonEmpty, Message: "File is empty or has no header row"}
	}

	header := make([]string, len(rows[0]))
	present := make(map[string]bool, len(header))
	for i, h := range rows[0] {
		header[i] = NormalizeHeader(h)
		present[header[i]] = true
	}

	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &FileError{
			Reason:  ReasonMissingColumns,
			Message: "Missing required columns: " + strings.Join(missing, ", "),
			Columns: missing,
		}
	}

	t := &Table{Header: header}
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := Record{Number: i + 2, Values: make(map[string]string, len(header))}
		for j, cell := range row {
			if j >= len(header) {
				rec.Extra = len(row) - len(header)
				break
			}
			if header[j] == "" {
				continue
			}
			rec.Values[header[j]] = strings.TrimSpace(cell)
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// NormalizeHeader trims, lowercases and replaces spaces with underscores.
func NormalizeHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &FileError{Reason: ReasonUnreadable, Message: fmt.Sprintf("Failed to read file: %v", err)}
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, &FileError{Reason: ReasonUnreadable, Message: "File must be UTF-8 encoded"}
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, &FileError{Reason: ReasonUnreadable, Message: fmt.Sprintf("Invalid CSV format: %v", err)}
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &FileError{Reason: ReasonUnreadable, Message: fmt.Sprintf("Invalid XLSX file: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FileError{Reason: ReasonEmpty, Message: "Workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &FileError{Reason: ReasonUnreadable, Message: fmt.Sprintf("Invalid XLSX file: %v", err)}
	}
	return rows, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
