// Package records reads and writes flat field->value records from delimited,
// JSON and spreadsheet files.
package records

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Record is one flat row keyed by field name.
type Record map[string]string

// Get returns the trimmed value of field and whether it is present and non-empty.
func (r Record) Get(field string) (string, bool) {
	v, ok := r[field]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Project returns a copy of r holding only fields.
func (r Record) Project(fields []string) Record {
	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Format of an input or output file, derived from its extension.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	XLS  Format = "xls"
	XLSX Format = "xlsx"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// DetectFormat maps a file name onto a Format.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".data":
		return CSV, nil
	case ".json":
		return JSON, nil
	case ".xls":
		return XLS, nil
	case ".xlsx":
		return XLSX, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(name))
}

// Parse decodes data according to the format implied by name. Tabular formats
// map columns positionally onto fields and skip the header row.
func Parse(data []byte, name string, fields []string, delimiter rune) ([]Record, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	switch format {
	case JSON:
		return ParseJSON(data, fields)
	case XLS:
		return ParseXLS(data, fields)
	case XLSX:
		return ParseXLSX(data, fields)
	default:
		decoded, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		return ParseCSV(decoded, fields, delimiter)
	}
}

// ReadFile reads every record of the file at path.
func ReadFile(path string, fields []string, delimiter rune) ([]Record, error) {
	recs, _, err := ReadFileDialect(path, fields, delimiter)
	return recs, err
}

// ReadFileDialect reads every record of the file at path and reports how its
// rows are delimited, so that they can be written back the same way.
func ReadFileDialect(path string, fields []string, delimiter rune) ([]Record, Dialect, error) {
	d := Dialect{Delimiter: delimiter}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, d, fmt.Errorf("failed to read file: %w", err)
	}
	recs, err := Parse(data, path, fields, delimiter)
	if err != nil {
		return nil, d, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if decoded, err := Decode(data); err == nil {
		data = decoded
	}
	return recs, DetectDialect(data, delimiter), nil
}

// Dialect is the layout of a delimited file.
type Dialect struct {
	Delimiter rune
	// CRLF terminates rows with \r\n instead of \n.
	CRLF bool
}

// DetectDialect reports CRLF when the first row of data ends with \r\n.
func DetectDialect(data []byte, delimiter rune) Dialect {
	d := Dialect{Delimiter: delimiter}
	if i := bytes.IndexByte(data, '\n'); i > 0 && data[i-1] == '\r' {
		d.CRLF = true
	}
	return d
}

// ParseCSV reads delimited rows, skipping the header.
func ParseCSV(data []byte, fields []string, delimiter rune) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delimiter
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return fromRows(rows, fields), nil
}

func fromRows(rows [][]string, fields []string) []Record {
	if len(rows) == 0 {
		return nil
	}
	out := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := make(Record, len(fields))
		for i, f := range fields {
			if i < len(row) {
				rec[f] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteCSV writes a header row followed by one row per record in field order,
// terminated by \n.
func WriteCSV(w io.Writer, recs []Record, fields []string, delimiter rune) error {
	return WriteDialect(w, recs, fields, Dialect{Delimiter: delimiter})
}

// WriteDialect writes recs like WriteCSV using the layout of d. Values are
// quoted only when they contain the delimiter, a quote or a line break, so
// that rows read with ParseCSV are written back unchanged.
func WriteDialect(w io.Writer, recs []Record, fields []string, d Dialect) error {
	bw := bufio.NewWriter(w)
	if err := writeRow(bw, fields, d); err != nil {
		return fmt.Errorf("error writing CSV header: %w", err)
	}
	row := make([]string, len(fields))
	for _, rec := range recs {
		for i, f := range fields {
			row[i] = rec[f]
		}
		if err := writeRow(bw, row, d); err != nil {
			return fmt.Errorf("error writing record: %w", err)
		}
	}
	return bw.Flush()
}

func writeRow(w *bufio.Writer, row []string, d Dialect) error {
	for i, field := range row {
		if i > 0 {
			w.WriteRune(d.Delimiter)
		}
		if !needsQuotes(field, d.Delimiter) {
			w.WriteString(field)
			continue
		}
		field = strings.ReplaceAll(field, `"`, `""`)
		if d.CRLF {
			// csv.Reader folds \r\n inside quoted fields to \n.
			field = strings.ReplaceAll(field, "\n", "\r\n")
		}
		w.WriteByte('"')
		w.WriteString(field)
		w.WriteByte('"')
	}
	if d.CRLF {
		_, err := w.WriteString("\r\n")
		return err
	}
	return w.WriteByte('\n')
}

func needsQuotes(field string, delimiter rune) bool {
	return strings.ContainsRune(field, delimiter) || strings.ContainsAny(field, "\"\r\n")
}

// WriteFile writes recs to path as CSV, or as {"transactions": [...]} JSON
// when path ends in .json.
func WriteFile(path string, recs []Record, fields []string, delimiter rune) error {
	return WriteFileDialect(path, recs, fields, Dialect{Delimiter: delimiter})
}

// WriteFileDialect is WriteFile with an explicit CSV layout.
func WriteFileDialect(path string, recs []Record, fields []string, d Dialect) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	defer f.Close()

	switch format {
	case JSON:
		return WriteJSON(f, Envelope{Transactions: project(recs, fields)})
	case CSV:
		return WriteDialect(f, recs, fields, d)
	}
	return fmt.Errorf("%w: cannot write %s", ErrUnsupportedFormat, format)
}

func project(recs []Record, fields []string) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = r.Project(fields)
	}
	return out
}

// Envelope is the top-level object of JSON input and output files.
type Envelope struct {
	Transactions []Record `json:"transactions"`
}

// ParseJSON reads a {"transactions": [...]} document. Non-string values are
// kept in their JSON text form.
func ParseJSON(data []byte, fields []string) ([]Record, error) {
	var doc struct {
		Transactions []map[string]json.RawMessage `json:"transactions"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	out := make([]Record, 0, len(doc.Transactions))
	for _, item := range doc.Transactions {
		rec := make(Record, len(fields))
		for _, f := range fields {
			raw, ok := item[f]
			if !ok || string(raw) == "null" {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				rec[f] = s
				continue
			}
			rec[f] = string(raw)
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteJSON dumps v followed by a trailing newline.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Text renders a decoded JSON value as a record value: strings as is, null as
// empty, anything else in its JSON form.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// FromObject builds a record from the given fields of a decoded JSON object.
// With no fields every key is taken.
func FromObject(obj map[string]any, fields []string) Record {
	rec := make(Record, len(obj))
	if len(fields) == 0 {
		for k, v := range obj {
			rec[k] = Text(v)
		}
		return rec
	}
	for _, f := range fields {
		if v, ok := obj[f]; ok {
			rec[f] = Text(v)
		}
	}
	return rec
}
