package audit

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/svvoii/evs-charging-france-dashboard/internal/geo"
	"github.com/svvoii/evs-charging-france-dashboard/internal/resolve"
)

func sampleResult() (resolve.Result, []*resolve.Record) {
	code := "75001"
	records := []*resolve.Record{
		{Row: 1, Address: "Rue A 75001 Paris", PostalCode: &code},
		{Row: 2, Address: "Aire sud", Coordinate: "[1.0, 45.0]", Key: "45.0, 1.0"},
		{Row: 3, Address: "Aire nord", Coordinate: "bad"},
		{Row: 4, Address: "Aire est", Coordinate: "[2.0, 46.0]", Key: "46.0, 2.0"},
	}
	res := resolve.Result{
		Total:      4,
		BadKeys:    1,
		Residual:   3,
		Kept:       1,
		Dropped:    map[geo.DropReason]int{geo.NoPostalCode: 3},
		ResolvedBy: map[string]int{"address": 1},
		Stages:     []resolve.StageResult{{Stage: "address", Filled: 1, Misses: 3}},
	}
	return res, records
}

func TestAddResolution(t *testing.T) {
	res, records := sampleResult()

	r := NewReport("epoints", "charging_points.csv")
	r.AddResolution(res, records, 2)

	_, err := uuid.Parse(r.RunID)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Residual)
	assert.InDelta(t, 0.75, r.ResidualRate, 1e-9)
	assert.Equal(t, map[string]int{"no_postal_code": 3}, r.Dropped)
	require.Len(t, r.Sample, 2)
	assert.Equal(t, 2, r.Sample[0].Row)
	assert.Equal(t, 3, r.Sample[1].Row)
}

func TestDropKeepsCountsConsistent(t *testing.T) {
	res, records := sampleResult()
	r := NewReport("epoints", "")
	r.AddResolution(res, records, 0)

	r.Drop(BadYear, 1)
	r.Drop(BadWeight, 0)

	assert.Equal(t, 0, r.Kept)
	assert.Equal(t, 4, r.DroppedTotal())
	assert.Equal(t, r.Total, r.Kept+r.DroppedTotal())
	assert.NotContains(t, r.Dropped, BadWeight)
}

func TestCheckWarnsAboveThreshold(t *testing.T) {
	res, records := sampleResult()
	r := NewReport("epoints", "")
	r.AddResolution(res, records, 0)

	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	assert.True(t, r.Check(logger, 0.9))
	assert.Equal(t, 0, logs.Len())

	assert.False(t, r.Check(logger, 0.5))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "unresolved postal codes above threshold", entry.Message)
	assert.Equal(t, int64(3), entry.ContextMap()["residual"])
}

func TestWriteAndReadFile(t *testing.T) {
	res, records := sampleResult()
	r := NewReport("epoints", "charging_points.csv")
	r.AddResolution(res, records, 5)

	path := filepath.Join(t.TempDir(), "out", "epoints_quality.json")
	require.NoError(t, r.WriteFile(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, got.RunID)
	assert.Equal(t, r.Dropped, got.Dropped)
	assert.Equal(t, r.Stages, got.Stages)
	assert.Len(t, got.Sample, 3)
	assert.True(t, r.GeneratedAt.Equal(got.GeneratedAt))
}
