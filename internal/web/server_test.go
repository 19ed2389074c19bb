package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svvoii/evs-charging-france-dashboard/internal/audit"
	"github.com/svvoii/evs-charging-france-dashboard/internal/db"
	"github.com/svvoii/evs-charging-france-dashboard/internal/etl"
	"github.com/svvoii/evs-charging-france-dashboard/internal/pivot"
	"github.com/svvoii/evs-charging-france-dashboard/internal/web/handlers"
)

type fakeSeries struct{}

func (fakeSeries) Series(_ context.Context, family, code string) ([]db.CountRow, error) {
	if family != etl.Vehicles || code != "35" {
		return nil, nil
	}
	return []db.CountRow{{Code: "35", Name: "Ille-et-Vilaine", Year: 2021, Count: 10, Cumulative: 10}}, nil
}

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	agg := pivot.NewAggregator()
	agg.Add("35", "Ille-et-Vilaine", 2021, 1)
	agg.Add("35", "Ille-et-Vilaine", 2022, 2)
	agg.Add("2A", "Corse-du-Sud", 2022, 1)
	table := agg.Build([]int{2021, 2022})

	pivotPath, cumulativePath, _, qualityPath := etl.Paths(dir, etl.ChargingPoints)
	require.NoError(t, table.WriteCSVFile(pivotPath))
	require.NoError(t, table.Cumulative().WriteCSVFile(cumulativePath))

	report := audit.NewReport(etl.ChargingPoints, "charging_points.csv")
	report.Total = 5
	report.Dropped["no_postal_code"] = 1
	require.NoError(t, report.WriteFile(qualityPath))

	cfg := DefaultConfig()
	cfg.Data.Dir = dir
	cfg.Auth.APIKey = apiKey

	srv := httptest.NewServer(NewServer(cfg, nil, fakeSeries{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestGetPivot(t *testing.T) {
	srv := newTestServer(t, "")

	var table handlers.TableResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/pivot/epoints", &table))
	assert.Equal(t, []int{2021, 2022}, table.Years)
	assert.False(t, table.Cumulative)
	assert.Equal(t, int64(4), table.Sum)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2A", table.Rows[0].Code)
	require.NotNil(t, table.Rows[1].Total)
	assert.Equal(t, int64(3), *table.Rows[1].Total)

	var cumulative handlers.TableResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/pivot/epoints?cumulative=true", &cumulative))
	assert.True(t, cumulative.Cumulative)
	assert.Equal(t, []int64{1, 3}, cumulative.Rows[1].Values)
	assert.Nil(t, cumulative.Rows[1].Total)
	assert.Equal(t, table.Sum, cumulative.Sum)
}

func TestGetPivotCSV(t *testing.T) {
	srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/pivot/epoints?format=csv")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv"))
}

func TestGetPivotErrors(t *testing.T) {
	srv := newTestServer(t, "")

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/pivot/trucks", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/pivot/epoints?cumulative=maybe", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/pivot/evs", nil), "evs tables were never written")
}

func TestGetDepartment(t *testing.T) {
	srv := newTestServer(t, "")

	var table handlers.TableResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/pivot/epoints/2A", &table))
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "Corse-du-Sud", table.Rows[0].Name)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/pivot/epoints/01", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/pivot/epoints/2C", nil), "route rejects invalid codes")
}

func TestGetQuality(t *testing.T) {
	srv := newTestServer(t, "")

	var report audit.Report
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/quality/epoints", &report))
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 1, report.Dropped["no_postal_code"])

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/quality/evs", nil))
}

func TestGetSeries(t *testing.T) {
	srv := newTestServer(t, "")

	var series []db.CountRow
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/series/evs/35", &series))
	require.Len(t, series, 1)
	assert.Equal(t, int64(10), series[0].Count)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/series/evs/13", nil))
}

func TestAPIKeyRequired(t *testing.T) {
	srv := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, getJSON(t, srv.URL+"/api/pivot/epoints", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", nil))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/pivot/epoints", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
