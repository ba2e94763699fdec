package ingest

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// CSVOptions controls how a delimited file is decoded. Some supplier exports
// still arrive as Windows-1251 with semicolon delimiters.
type CSVOptions struct {
	Delimiter   rune
	Windows1251 bool
}

// ReadXLSX parses the first sheet of a workbook into raw label->value rows.
// The first row is the header; empty header cells are ignored.
func ReadXLSX(r io.Reader) ([]map[string]any, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	return tableToRows(rows), nil
}

// ReadCSV parses a delimited file into raw label->value rows. The first
// record is the header.
func ReadCSV(r io.Reader, opts CSVOptions) ([]map[string]any, error) {
	if opts.Windows1251 {
		r = transform.NewReader(r, charmap.Windows1251.NewDecoder())
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	return tableToRows(records), nil
}

// uniqueHeader suffixes repeated header labels with _1, _2, ... so columns
// sharing a printed label (the "% AKG" companions) stay distinct and keep
// their positional meaning for the normalizer.
func uniqueHeader(header []string) []string {
	seen := make(map[string]int, len(header))
	unique := make([]string, len(header))
	for i, label := range header {
		if label == "" {
			continue
		}
		n := seen[label]
		seen[label] = n + 1
		if n == 0 {
			unique[i] = label
			continue
		}
		unique[i] = fmt.Sprintf("%s_%d", label, n)
	}
	return unique
}

func tableToRows(table [][]string) []map[string]any {
	if len(table) < 2 {
		return nil
	}

	header := uniqueHeader(table[0])
	rows := make([]map[string]any, 0, len(table)-1)
	for _, record := range table[1:] {
		row := make(map[string]any, len(header))
		empty := true
		for i, label := range header {
			if label == "" || i >= len(record) {
				continue
			}
			row[label] = record[i]
			if record[i] != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}

	return rows
}
