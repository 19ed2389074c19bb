package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/svvoii/evs-charging-france-dashboard/internal/audit"
	"github.com/svvoii/evs-charging-france-dashboard/internal/debug"
	"github.com/svvoii/evs-charging-france-dashboard/internal/pivot"
)

const schema = `
CREATE TABLE IF NOT EXISTS dept_year_counts (
	family      text    NOT NULL,
	dept_code   text    NOT NULL,
	dept_name   text    NOT NULL,
	year        integer NOT NULL,
	count       bigint  NOT NULL,
	cumulative  bigint  NOT NULL,
	run_id      text,
	PRIMARY KEY (family, dept_code, year)
);

CREATE TABLE IF NOT EXISTS quality_report (
	run_id       text PRIMARY KEY,
	family       text NOT NULL,
	generated_at timestamptz NOT NULL,
	residual     integer NOT NULL,
	report_json  jsonb NOT NULL
);
`

var countColumns = []string{"family", "dept_code", "dept_name", "year", "count", "cumulative", "run_id"}

// CountRow is one department/year cell in long format.
type CountRow struct {
	Code       string `json:"dept_code"`
	Name       string `json:"dept_name"`
	Year       int    `json:"year"`
	Count      int64  `json:"count"`
	Cumulative int64  `json:"cumulative"`
}

// EnsureSchema creates the publishing tables if they do not exist.
func (c *Connection) EnsureSchema(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// LongRows flattens a pivot table and its cumulative companion into one row
// per department and year.
func LongRows(table, cumulative *pivot.Table) ([]CountRow, error) {
	if len(table.Rows) != len(cumulative.Rows) || len(table.Years) != len(cumulative.Years) {
		return nil, fmt.Errorf("pivot and cumulative tables differ in shape")
	}

	rows := make([]CountRow, 0, len(table.Rows)*len(table.Years))
	for i, r := range table.Rows {
		c := cumulative.Rows[i]
		if c.Code != r.Code {
			return nil, fmt.Errorf("row %d: department %s does not match cumulative %s", i, r.Code, c.Code)
		}
		for j, year := range table.Years {
			rows = append(rows, CountRow{
				Code:       r.Code,
				Name:       r.Name,
				Year:       year,
				Count:      r.Values[j],
				Cumulative: c.Values[j],
			})
		}
	}
	return rows, nil
}

// PublishPivot replaces the family's counts in one transaction using COPY.
func (c *Connection) PublishPivot(ctx context.Context, localDebug bool, family, runID string, table, cumulative *pivot.Table) (int, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	rows, err := LongRows(table, cumulative)
	if err != nil {
		return 0, err
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dept_year_counts WHERE family = $1`, family); err != nil {
		return 0, fmt.Errorf("failed to clear %s counts: %w", family, err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("dept_year_counts", countColumns...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, family, r.Code, r.Name, r.Year, r.Count, r.Cumulative, runID); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("failed to copy %s/%d: %w", r.Code, r.Year, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	debug.DebugOutput(localDebug, "Published %d %s rows", len(rows), family)
	return len(rows), nil
}

// SaveReport stores the quality report, replacing an earlier copy of the run.
func (c *Connection) SaveReport(ctx context.Context, report *audit.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = c.DB.ExecContext(ctx, `
		INSERT INTO quality_report (run_id, family, generated_at, residual, report_json)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			residual = EXCLUDED.residual,
			report_json = EXCLUDED.report_json
	`, report.RunID, report.Family, report.GeneratedAt, report.Residual, payload)
	if err != nil {
		return fmt.Errorf("failed to insert quality report: %w", err)
	}
	return nil
}

// Series returns the published yearly counts of one department.
func (c *Connection) Series(ctx context.Context, family, code string) ([]CountRow, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT dept_code, dept_name, year, count, cumulative
		FROM dept_year_counts
		WHERE family = $1 AND dept_code = $2
		ORDER BY year
	`, family, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	var series []CountRow
	for rows.Next() {
		var r CountRow
		if err := rows.Scan(&r.Code, &r.Name, &r.Year, &r.Count, &r.Cumulative); err != nil {
			return nil, fmt.Errorf("failed to scan series row: %w", err)
		}
		series = append(series, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read series: %w", err)
	}
	return series, nil
}
