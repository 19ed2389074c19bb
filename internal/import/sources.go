package import_pkg

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/svvoii/evs-charging-france-dashboard/internal/config"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geo"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geocode"
	"github.com/svvoii/evs-charging-france-dashboard/internal/normalize"
	"github.com/svvoii/evs-charging-france-dashboard/internal/resolve"
)

// ImportChargingPoints reads the IRVE charging-point export.
// Columns (default names): adresse_station, coordonneesXY,
// consolidated_latitude, consolidated_longitude, consolidated_code_postal,
// created_at.
func ImportChargingPoints(localDebug bool, filename string, cols config.ChargingColumns) ([]*resolve.Record, Stats, error) {
	var records []*resolve.Record

	stats, err := ImportCSV(localDebug, filename, ',', []string{cols.Address, cols.Coordinate}, func(row Row) error {
		r := &resolve.Record{
			Row:                row.Index,
			Address:            row.Get(cols.Address),
			Coordinate:         row.Get(cols.Coordinate),
			Point:              geocode.Point{Lat: row.Get(cols.Latitude), Lon: row.Get(cols.Longitude)},
			ExternalPostalCode: row.Get(cols.PostalCode),
			CreatedAt:          row.Get(cols.CreatedAt),
		}

		// Older exports lack the consolidated columns; fall back to the raw pair.
		if !r.Point.Valid() {
			if lon, lat, err := normalize.SplitCoordinate(r.Coordinate); err == nil {
				r.Point = geocode.Point{
					Lat: strconv.FormatFloat(lat, 'f', -1, 64),
					Lon: strconv.FormatFloat(lon, 'f', -1, 64),
				}
			}
		}

		records = append(records, r)
		return nil
	})
	return records, stats, err
}

// ImportGeoReference reads fr-ref-geo.csv (semicolon separated) into the
// commune dictionary and the department-name table.
// Columns: COM_NOM, COM_CODE, DEP_CODE, DEP_NOM.
func ImportGeoReference(localDebug bool, filename string) (*geo.CommuneReference, geo.Departments, error) {
	communes := geo.NewCommuneReference()
	departments := geo.Departments{}

	_, err := ImportCSV(localDebug, filename, ';', []string{"COM_NOM", "COM_CODE", "DEP_CODE", "DEP_NOM"}, func(row Row) error {
		communes.Add(row.Get("COM_NOM"), row.Get("COM_CODE"))
		// last DEP_NOM seen for a code wins
		if code := row.Get("DEP_CODE"); code != "" {
			departments[code] = row.Get("DEP_NOM")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return communes, departments, nil
}

// ImportCorsica reads the Corsican postal-code table.
// Columns: code_postal, dept_code. Codes other than 2A/2B are rejected.
func ImportCorsica(localDebug bool, filename string) (geo.CorsicaReference, error) {
	table := geo.CorsicaReference{}

	_, err := ImportCSV(localDebug, filename, ',', []string{"code_postal", "dept_code"}, func(row Row) error {
		postal, dept := row.Get("code_postal"), row.Get("dept_code")
		if dept != "2A" && dept != "2B" {
			return fmt.Errorf("postal code %s: department %q is not corsican", postal, dept)
		}
		table[postal] = dept
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// VehicleRow is one commune-level EV registration count.
type VehicleRow struct {
	Row         int
	CommuneCode string
	Date        string
	Count       string
}

// ImportVehicles reads voitures.csv (semicolon separated).
// Columns (default names): CODGEO, DATE_ARRETE, NB_VP_RECHARGEABLES_EL.
func ImportVehicles(localDebug bool, filename string, cols config.VehicleColumns) ([]VehicleRow, Stats, error) {
	var rows []VehicleRow

	stats, err := ImportCSV(localDebug, filename, ';', []string{cols.CommuneCode, cols.Date, cols.Count}, func(row Row) error {
		code := row.Get(cols.CommuneCode)
		if code == "" {
			return errors.New("empty commune code")
		}
		rows = append(rows, VehicleRow{
			Row:         row.Index,
			CommuneCode: code,
			Date:        row.Get(cols.Date),
			Count:       row.Get(cols.Count),
		})
		return nil
	})
	return rows, stats, err
}
