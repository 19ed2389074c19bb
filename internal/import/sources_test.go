package import_pkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svvoii/evs-charging-france-dashboard/internal/config"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geocode"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportChargingPoints(t *testing.T) {
	path := writeFile(t, "charging_points.csv", "\ufeffadresse_station,coordonneesXY,consolidated_latitude,consolidated_longitude,consolidated_code_postal,created_at\n"+
		`"12 Rue X, 75013 Paris","[2.35, 48.83]",48.83,2.35,,2022-03-01T00:00:00+00:00`+"\n"+
		`Aire de repos,"[4.81745, 45.751829]",,,69005,2021-06-10`+"\n")

	records, stats, err := ImportChargingPoints(false, path, config.DefaultPipeline().Columns)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Read)
	require.Len(t, records, 2)

	assert.Equal(t, "12 Rue X, 75013 Paris", records[0].Address)
	assert.Equal(t, geocode.Point{Lat: "48.83", Lon: "2.35"}, records[0].Point)
	assert.Nil(t, records[0].PostalCode)
	assert.Equal(t, "2022", records[0].Year())

	assert.Equal(t, "69005", records[1].ExternalPostalCode)
	assert.Equal(t, geocode.Point{Lat: "45.751829", Lon: "4.81745"}, records[1].Point, "raw pair used when consolidated columns are empty")
}

func TestImportChargingPointsMissingColumn(t *testing.T) {
	path := writeFile(t, "charging_points.csv", "adresse,coordonneesXY\nx,y\n")

	_, _, err := ImportChargingPoints(false, path, config.DefaultPipeline().Columns)
	assert.ErrorContains(t, err, "adresse_station")
}

func TestImportGeoReference(t *testing.T) {
	path := writeFile(t, "fr-ref-geo.csv", "COM_CODE;COM_NOM;DEP_CODE;DEP_NOM\n"+
		"42218;Saint-Étienne;42;Loire\n"+
		"2A004;Ajaccio;2A;Corse-du-Sud\n"+
		"75056;Paris;75;Paris\n")

	communes, departments, err := ImportGeoReference(false, path)
	require.NoError(t, err)

	assert.Equal(t, 3, communes.Len())
	c, ok := communes.Match("PARKING GARE SAINT-ETIENNE")
	assert.True(t, ok)
	assert.Equal(t, "42218", c.Code)
	assert.Equal(t, "Corse-du-Sud", departments.Name("2A"))
}

func TestImportCorsicaRejectsMainlandCodes(t *testing.T) {
	path := writeFile(t, "corsica.csv", "code_postal,dept_code\n20090,2A\n20200,2B\n13001,13\n")

	table, err := ImportCorsica(false, path)
	require.NoError(t, err)
	assert.Equal(t, "2A", table["20090"])
	assert.Equal(t, "2B", table["20200"])
	assert.NotContains(t, table, "13001")
}

func TestImportVehicles(t *testing.T) {
	path := writeFile(t, "voitures.csv", "CODGEO;LIBGEO;EPCI;LIBEPCI;DATE_ARRETE;NB_VP_RECHARGEABLES_EL;NB_VP\n"+
		"01001;L'Abergement-Clémenciat;200069193;CC de la Dombes;2022-12-31;5;420\n"+
		";Inconnu;;;2022-12-31;1;1\n")

	rows, stats, err := ImportVehicles(false, path, config.DefaultPipeline().Vehicles)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Read)
	assert.Equal(t, 1, stats.Skipped)
	require.Len(t, rows, 1)
	assert.Equal(t, VehicleRow{Row: 1, CommuneCode: "01001", Date: "2022-12-31", Count: "5"}, rows[0])
}
