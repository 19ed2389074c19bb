package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svvoii/evs-charging-france-dashboard/internal/config"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geo"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geocode"
	"github.com/svvoii/evs-charging-france-dashboard/internal/normalize"
)

func newRecord(row int, address, coordinate string, digits int) *Record {
	key, _ := normalize.CoordinateKey(coordinate, digits)
	return &Record{Row: row, Address: address, Coordinate: coordinate, Key: key}
}

func postal(s string) *string { return &s }

func TestAddressStage(t *testing.T) {
	records := []*Record{
		newRecord(1, "12 Rue de la Paix, 75002 Paris", "[2.33, 48.86]", 3),
		newRecord(2, "Route nationale", "[2.33, 48.86]", 3),
		{Row: 3, Address: "1 Place Bellecour 69002 Lyon", PostalCode: postal("69001")},
	}

	res := AddressStage{}.Apply(context.Background(), records)

	assert.Equal(t, StageResult{Stage: "address", Filled: 1, Misses: 1}, res)
	require.NotNil(t, records[0].PostalCode)
	assert.Equal(t, "75002", *records[0].PostalCode)
	assert.Equal(t, "address", records[0].ResolvedBy)
	assert.Nil(t, records[1].PostalCode)
	assert.Equal(t, "69001", *records[2].PostalCode, "resolved records are never refilled")
}

func TestConsolidatedStage(t *testing.T) {
	records := []*Record{
		{Row: 1, ExternalPostalCode: " 33000 "},
		{Row: 2, ExternalPostalCode: ""},
	}

	res := ConsolidatedStage{}.Apply(context.Background(), records)

	assert.Equal(t, 1, res.Filled)
	assert.Equal(t, 1, res.Misses)
	assert.Equal(t, "33000", *records[0].PostalCode)
	assert.Nil(t, records[1].PostalCode)
}

func TestGeocodeStage(t *testing.T) {
	ctx := context.Background()
	cache := geocode.NewFileCache(t.TempDir() + "/location_data.csv")
	require.NoError(t, cache.Store(ctx, geocode.Point{Lat: "48.85", Lon: "2.35"}, &geocode.Location{
		AddressComponents: []geocode.AddressComponent{
			{LongName: "Paris", Types: []string{"locality", "political"}},
			{LongName: "75004", Types: []string{"postal_code"}},
		},
	}))
	require.NoError(t, cache.Store(ctx, geocode.Point{Lat: "43.3", Lon: "5.4"}, nil))

	records := []*Record{
		{Row: 1, Point: geocode.Point{Lat: "48.85", Lon: "2.35"}},
		{Row: 2, Point: geocode.Point{Lat: "43.3", Lon: "5.4"}},
		{Row: 3, Point: geocode.Point{Lat: "45.0", Lon: "1.0"}},
		{Row: 4},
	}

	res := GeocodeStage{Cache: cache}.Apply(ctx, records)

	assert.Equal(t, 1, res.Filled)
	assert.Equal(t, 3, res.Misses, "empty response, uncached pair and missing point are misses")
	assert.Equal(t, "75004", *records[0].PostalCode)
	assert.Equal(t, "geocode", records[0].ResolvedBy)
	for _, r := range records[1:] {
		assert.Nil(t, r.PostalCode)
	}
}

func TestCommuneStage(t *testing.T) {
	communes := geo.NewCommuneReference()
	communes.Add("Saint-Étienne", "42218")
	communes.Add("Lyon", "69123")

	records := []*Record{
		{Row: 1, Address: "Parking de la gare, Saint-Etienne"},
		{Row: 2, Address: "Aire de la Chapelle"},
	}

	res := CommuneStage{Communes: communes}.Apply(context.Background(), records)

	assert.Equal(t, 1, res.Filled)
	assert.Equal(t, "42218", *records[0].PostalCode)
	assert.Nil(t, records[1].PostalCode)
}

func TestClusterStage(t *testing.T) {
	t.Run("propagates within a truncated key", func(t *testing.T) {
		a := newRecord(1, "", "[2.35,48.85]", 2)
		a.PostalCode = postal("75001")
		b := newRecord(2, "", "[2.351,48.851]", 2)
		far := newRecord(3, "", "[2.36,48.86]", 2)

		res := ClusterStage{}.Apply(context.Background(), []*Record{a, b, far})

		assert.Equal(t, 1, res.Filled)
		require.NotNil(t, b.PostalCode)
		assert.Equal(t, "75001", *b.PostalCode)
		assert.Equal(t, "cluster", b.ResolvedBy)
		assert.Nil(t, far.PostalCode)
	})

	t.Run("last resolved record wins", func(t *testing.T) {
		a := newRecord(1, "", "[2.35,48.85]", 3)
		a.PostalCode = postal("75001")
		b := newRecord(2, "", "[2.35,48.85]", 3)
		b.PostalCode = postal("75004")
		c := newRecord(3, "", "[2.35,48.85]", 3)

		ClusterStage{}.Apply(context.Background(), []*Record{a, b, c})

		assert.Equal(t, "75004", *c.PostalCode)
	})

	t.Run("malformed and excluded records do not seed", func(t *testing.T) {
		bad := &Record{Row: 1, Coordinate: "nowhere", PostalCode: postal("75001")}
		excluded := newRecord(2, "", "[2.35,48.85]", 3)
		excluded.PostalCode = postal("")
		c := newRecord(3, "", "[2.35,48.85]", 3)
		d := &Record{Row: 4, Coordinate: "nowhere"}

		res := ClusterStage{}.Apply(context.Background(), []*Record{bad, excluded, c, d})

		assert.Equal(t, 0, res.Filled)
		assert.Nil(t, c.PostalCode)
		assert.Nil(t, d.PostalCode)
	})
}

func TestOverrideStage(t *testing.T) {
	stage, err := NewOverrideStage([]config.Override{
		{Coordinate: "[2.05,48.77]", PostalCode: "78180"},
		{Coordinate: "[5.49,45.67]", PostalCode: ""},
	}, 3)
	require.NoError(t, err)

	wrong := newRecord(1, "", "[2.05, 48.77]", 3)
	wrong.PostalCode = postal("75013")
	wrong.ResolvedBy = "address"
	missing := newRecord(2, "", "[5.49, 45.67]", 3)
	other := newRecord(3, "", "[1.0, 45.0]", 3)

	res := stage.Apply(context.Background(), []*Record{wrong, missing, other})

	assert.Equal(t, StageResult{Stage: "override", Filled: 1, Changed: 1}, res)
	assert.Equal(t, "78180", *wrong.PostalCode)
	assert.Equal(t, "override", wrong.ResolvedBy)
	require.NotNil(t, missing.PostalCode)
	assert.Equal(t, "", *missing.PostalCode)
	assert.Nil(t, other.PostalCode)
}

func TestNewOverrideStageRejectsMalformed(t *testing.T) {
	_, err := NewOverrideStage([]config.Override{{Coordinate: "somewhere", PostalCode: "75001"}}, 3)
	assert.ErrorIs(t, err, normalize.ErrMalformedCoordinate)
}

func TestBuildStages(t *testing.T) {
	deps := Dependencies{
		Cache:     geocode.NewFileCache(t.TempDir() + "/cache.csv"),
		Communes:  geo.NewCommuneReference(),
		Overrides: config.DefaultOverrides,
		KeyDigits: 3,
	}

	stages, err := BuildStages(config.DefaultStages, deps)
	require.NoError(t, err)
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	assert.Equal(t, config.DefaultStages, names)

	_, err = BuildStages([]string{"address", "telepathy"}, deps)
	assert.ErrorContains(t, err, "telepathy")

	_, err = BuildStages([]string{"geocode"}, Dependencies{})
	assert.Error(t, err)
}
