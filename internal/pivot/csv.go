package pivot

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteCSV writes the table with its header.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range t.Rows {
		record := make([]string, 0, len(r.Values)+3)
		record = append(record, r.Code, r.Name)
		for _, v := range r.Values {
			record = append(record, strconv.FormatInt(v, 10))
		}
		if !t.Cumulative {
			record = append(record, strconv.FormatInt(r.Total, 10))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %s: %w", r.Code, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to path, creating its directory.
func (t *Table) WriteCSVFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := t.WriteCSV(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadCSV parses a table written by WriteCSV. A table without a "total"
// column is read as cumulative.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 || header[0] != "dept_code" || header[1] != "dept_name" {
		return nil, fmt.Errorf("unexpected pivot header %v", header)
	}

	t := &Table{Cumulative: true}
	yearCols := header[2:]
	if n := len(yearCols); n > 0 && strings.EqualFold(yearCols[n-1], "total") {
		t.Cumulative = false
		yearCols = yearCols[:n-1]
	}
	for _, col := range yearCols {
		year, err := strconv.Atoi(col)
		if err != nil {
			return nil, fmt.Errorf("invalid year column %q", col)
		}
		t.Years = append(t.Years, year)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		row := TableRow{Row: Row{Code: record[0], Name: record[1]}, Values: make([]int64, len(t.Years))}
		for i := range t.Years {
			if row.Values[i], err = strconv.ParseInt(record[2+i], 10, 64); err != nil {
				return nil, fmt.Errorf("row %s: %w", row.Code, err)
			}
		}
		if !t.Cumulative {
			if row.Total, err = strconv.ParseInt(record[2+len(t.Years)], 10, 64); err != nil {
				return nil, fmt.Errorf("row %s total: %w", row.Code, err)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadCSVFile reads a table from path.
func ReadCSVFile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}
