// Package pivot aggregates department/year counts into the department-by-year
// tables consumed by the dashboard.
package pivot

import (
	"sort"
	"strconv"
)

// Key identifies one aggregate cell.
type Key struct {
	Code string
	Name string
	Year int
}

// Aggregator sums weights per (department code, department name, year).
type Aggregator struct {
	counts map[Key]int64
	rows   map[Row]struct{}
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{counts: make(map[Key]int64), rows: make(map[Row]struct{})}
}

// Add adds weight to the cell. Callers only pass valid departments.
func (a *Aggregator) Add(code, name string, year int, weight int64) {
	a.counts[Key{Code: code, Name: name, Year: year}] += weight
	a.rows[Row{Code: code, Name: name}] = struct{}{}
}

// Count returns the summed weight of a cell.
func (a *Aggregator) Count(code, name string, year int) int64 {
	return a.counts[Key{Code: code, Name: name, Year: year}]
}

// ParseYear reads the calendar year from the first four characters of a
// timestamp such as "2023-04-01T10:00:00+00:00" or "2021-12-31".
func ParseYear(timestamp string) (int, bool) {
	if len(timestamp) < 4 {
		return 0, false
	}
	year, err := strconv.Atoi(timestamp[:4])
	if err != nil || year <= 0 {
		return 0, false
	}
	return year, true
}

// Row identifies a department line.
type Row struct {
	Code string
	Name string
}

// TableRow holds the values of one department, aligned with Table.Years.
type TableRow struct {
	Row
	Values []int64
	Total  int64
}

// Table is a department-by-year matrix. Cumulative tables carry no total.
type Table struct {
	Years      []int
	Rows       []TableRow
	Cumulative bool
}

// Build pivots the aggregates into years columns, filling absent cells with
// zero and summing the total over exactly those columns. Every department
// seen by Add gets a row, even if all its years fall outside the range.
func (a *Aggregator) Build(years []int) *Table {
	rows := make([]Row, 0, len(a.rows))
	for r := range a.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Code != rows[j].Code {
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Name < rows[j].Name
	})

	t := &Table{Years: append([]int(nil), years...), Rows: make([]TableRow, 0, len(rows))}
	for _, r := range rows {
		tr := TableRow{Row: r, Values: make([]int64, len(years))}
		for i, year := range years {
			v := a.counts[Key{Code: r.Code, Name: r.Name, Year: year}]
			tr.Values[i] = v
			tr.Total += v
		}
		t.Rows = append(t.Rows, tr)
	}
	return t
}

// Cumulative returns a table whose cells hold the running sum of the row from
// the first year column.
func (t *Table) Cumulative() *Table {
	c := &Table{Years: append([]int(nil), t.Years...), Rows: make([]TableRow, len(t.Rows)), Cumulative: true}
	for i, r := range t.Rows {
		values := make([]int64, len(r.Values))
		var sum int64
		for j, v := range r.Values {
			sum += v
			values[j] = sum
		}
		c.Rows[i] = TableRow{Row: r.Row, Values: values}
	}
	return c
}

// Header returns the CSV column names.
func (t *Table) Header() []string {
	header := []string{"dept_code", "dept_name"}
	for _, y := range t.Years {
		header = append(header, strconv.Itoa(y))
	}
	if !t.Cumulative {
		header = append(header, "total")
	}
	return header
}

// Find returns the row of a department code.
func (t *Table) Find(code string) (TableRow, bool) {
	for _, r := range t.Rows {
		if r.Code == code {
			return r, true
		}
	}
	return TableRow{}, false
}

// Sum returns the total of all rows, or of the last year column for a
// cumulative table.
func (t *Table) Sum() int64 {
	var sum int64
	for _, r := range t.Rows {
		if t.Cumulative {
			if n := len(r.Values); n > 0 {
				sum += r.Values[n-1]
			}
			continue
		}
		sum += r.Total
	}
	return sum
}
