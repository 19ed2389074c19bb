package import_pkg

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/svvoii/evs-charging-france-dashboard/internal/debug"
)

// Row gives access to one CSV record by column name.
type Row struct {
	Index     int // 1-based data row, header excluded
	record    []string
	columnMap map[string]int
}

// Get returns the trimmed value of column name, or "" when absent.
func (r Row) Get(name string) string {
	if name == "" {
		return ""
	}
	i, ok := r.columnMap[strings.ToLower(name)]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

// Stats counts what an import read.
type Stats struct {
	Read    int `json:"read"`
	Skipped int `json:"skipped"`
}

// ImportCSV reads filename with the given separator, checks that the required
// columns exist and calls mapFunc once per data row. Unreadable rows and rows
// mapFunc rejects are counted and skipped.
func ImportCSV(localDebug bool, filename string, comma rune, required []string, mapFunc func(Row) error) (Stats, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	var stats Stats

	file, err := os.Open(filename)
	if err != nil {
		return stats, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return stats, fmt.Errorf("failed to read header of %s: %w", filename, err)
	}

	columnMap := make(map[string]int, len(header))
	for i, col := range header {
		col = strings.TrimPrefix(col, "\ufeff")
		columnMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, name := range required {
		if _, ok := columnMap[strings.ToLower(name)]; !ok {
			return stats, fmt.Errorf("%s: missing column %q", filename, name)
		}
	}
	debug.DebugOutput(localDebug, "%s columns: %v", filename, header)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			debug.DebugOutput(localDebug, "Error reading CSV record %d: %v", stats.Read+stats.Skipped+1, err)
			stats.Skipped++
			continue
		}

		row := Row{Index: stats.Read + stats.Skipped + 1, record: record, columnMap: columnMap}
		if err := mapFunc(row); err != nil {
			debug.DebugOutput(localDebug, "Error mapping record %d: %v", row.Index, err)
			stats.Skipped++
			continue
		}
		stats.Read++
	}

	debug.DebugOutput(localDebug, "Import of %s complete: %d rows, %d skipped", filename, stats.Read, stats.Skipped)
	return stats, nil
}
