package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/svvoii/evs-charging-france-dashboard/internal/audit"
	"github.com/svvoii/evs-charging-france-dashboard/internal/db"
	"github.com/svvoii/evs-charging-france-dashboard/internal/etl"
	"github.com/svvoii/evs-charging-france-dashboard/internal/pivot"
)

// TablesHandler serves the pivot tables and quality reports written to Dir
type TablesHandler struct {
	Dir string
}

// TableResponse is the JSON form of a pivot table
type TableResponse struct {
	Family     string        `json:"family"`
	Cumulative bool          `json:"cumulative"`
	Years      []int         `json:"years"`
	Rows       []RowResponse `json:"rows"`
	Sum        int64         `json:"sum"`
}

// RowResponse is one department line
type RowResponse struct {
	Code   string  `json:"dept_code"`
	Name   string  `json:"dept_name"`
	Values []int64 `json:"values"`
	Total  *int64  `json:"total,omitempty"`
}

func newTableResponse(family string, t *pivot.Table) TableResponse {
	resp := TableResponse{
		Family:     family,
		Cumulative: t.Cumulative,
		Years:      t.Years,
		Rows:       make([]RowResponse, 0, len(t.Rows)),
		Sum:        t.Sum(),
	}
	for _, r := range t.Rows {
		row := RowResponse{Code: r.Code, Name: r.Name, Values: r.Values}
		if !t.Cumulative {
			total := r.Total
			row.Total = &total
		}
		resp.Rows = append(resp.Rows, row)
	}
	return resp
}

func (h *TablesHandler) tablePath(r *http.Request) (family, path string, err error) {
	family = mux.Vars(r)["family"]
	if family != etl.ChargingPoints && family != etl.Vehicles {
		return "", "", errUnknownFamily
	}

	cumulative := false
	if v := r.URL.Query().Get("cumulative"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return "", "", errBadCumulative
		}
		cumulative = b
	}

	pivotPath, cumulativePath, _, _ := etl.Paths(h.Dir, family)
	if cumulative {
		return family, cumulativePath, nil
	}
	return family, pivotPath, nil
}

var (
	errUnknownFamily = errors.New("unknown table family")
	errBadCumulative = errors.New("cumulative must be a boolean")
)

// GetPivot returns a pivot table as JSON, or the raw CSV with format=csv
func (h *TablesHandler) GetPivot(w http.ResponseWriter, r *http.Request) {
	family, path, err := h.tablePath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		if _, err := os.Stat(path); err != nil {
			http.Error(w, "Table not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		http.ServeFile(w, r, path)
		return
	}

	table, ok := readTable(w, path)
	if !ok {
		return
	}
	writeJSON(w, newTableResponse(family, table))
}

// GetDepartment returns the row of one department
func (h *TablesHandler) GetDepartment(w http.ResponseWriter, r *http.Request) {
	family, path, err := h.tablePath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	table, ok := readTable(w, path)
	if !ok {
		return
	}
	row, found := table.Find(mux.Vars(r)["code"])
	if !found {
		http.Error(w, "Department not found", http.StatusNotFound)
		return
	}

	resp := newTableResponse(family, &pivot.Table{Years: table.Years, Rows: []pivot.TableRow{row}, Cumulative: table.Cumulative})
	writeJSON(w, resp)
}

// GetQuality returns the quality report of the last run of a family
func (h *TablesHandler) GetQuality(w http.ResponseWriter, r *http.Request) {
	family := mux.Vars(r)["family"]
	if family != etl.ChargingPoints && family != etl.Vehicles {
		http.Error(w, errUnknownFamily.Error(), http.StatusBadRequest)
		return
	}

	_, _, _, path := etl.Paths(h.Dir, family)
	report, err := audit.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "Report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Report unreadable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

// SeriesSource reads published counts
type SeriesSource interface {
	Series(ctx context.Context, family, code string) ([]db.CountRow, error)
}

// SeriesHandler serves per-department series from the database
type SeriesHandler struct {
	Source SeriesSource
}

// GetSeries returns the yearly counts of one department
func (h *SeriesHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	series, err := h.Source.Series(r.Context(), vars["family"], vars["code"])
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if len(series) == 0 {
		http.Error(w, "Department not found", http.StatusNotFound)
		return
	}
	writeJSON(w, series)
}

// Health reports that the server is up
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func readTable(w http.ResponseWriter, path string) (*pivot.Table, bool) {
	table, err := pivot.ReadCSVFile(path)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "Table not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Table unreadable", http.StatusInternalServerError)
		return nil, false
	}
	return table, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
