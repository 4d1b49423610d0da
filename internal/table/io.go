package table

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
	"golang.org/x/text/encoding/charmap"
)

// ErrEmptyFile is returned when a file has no header row.
var ErrEmptyFile = errors.New("empty file")

// Encoding names accepted in ReadOptions.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
)

// ReadOptions controls how a source file is parsed.
type ReadOptions struct {
	// Sheet selects a worksheet in a workbook. Empty means the first sheet.
	Sheet string
	// Delimiter for delimited text. Zero means a comma.
	Delimiter rune
	// Encoding of delimited text; EncodingWindows1252 decodes legacy
	// exports.
	Encoding string
}

// Read loads a table from path, dispatching on extension: .xlsx and .xlsm
// are read as workbooks, anything else as delimited text.
func Read(path string, opts ReadOptions) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// ReadCSV parses delimited text with a header row.
func ReadCSV(r io.Reader, opts ReadOptions) (*Table, error) {
	if strings.EqualFold(opts.Encoding, EncodingWindows1252) {
		r = charmap.Windows1252.NewDecoder().Reader(r)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	return fromRecords(records)
}

// ReadXLSX reads one worksheet of a workbook.
func ReadXLSX(path string, opts ReadOptions) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: %s has no sheets", ErrEmptyFile, path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	t, err := fromRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	return t, nil
}

func fromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}
	if len(header) == 0 {
		return nil, ErrEmptyFile
	}

	t := New(header...)
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		blank := true
		for j, h := range header {
			if h == "" || j >= len(rec) {
				continue
			}
			v := strings.TrimSpace(rec[j])
			row[h] = v
			if v != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		for _, h := range header {
			if _, ok := row[h]; !ok {
				row[h] = ""
			}
		}
		t.Append(row)
	}
	return t, nil
}

// LoadTemplate returns the column order defined by a template file's header.
func LoadTemplate(path string) ([]string, error) {
	t, err := Read(path, ReadOptions{})
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	return t.Columns, nil
}

// WriteCSV writes the header and rows in column order.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			rec[i] = r[c]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Bytes renders the table as CSV.
func Bytes(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the table as CSV to path, creating parent directories.
func WriteFile(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := Bytes(t)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
