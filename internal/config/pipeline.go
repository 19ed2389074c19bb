package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline is the YAML configuration of a preprocessing run. Zero fields in
// the file keep the values from DefaultPipeline.
type Pipeline struct {
	Data      DataPaths       `yaml:"data"`
	Columns   ChargingColumns `yaml:"columns"`
	Vehicles  VehicleColumns  `yaml:"vehicles"`
	Years     YearRange       `yaml:"years"`
	KeyDigits int             `yaml:"key_digits"`
	Stages    []string        `yaml:"stages"`
	Overrides []Override      `yaml:"overrides"`
	Quality   Quality         `yaml:"quality"`
	Geocode   Geocode         `yaml:"geocode"`
	Output    Output          `yaml:"output"`
}

// DataPaths locates the input files.
type DataPaths struct {
	ChargingPoints string `yaml:"charging_points"`
	GeoReference   string `yaml:"geo_reference"`
	Corsica        string `yaml:"corsica"`
	GeocodeCache   string `yaml:"geocode_cache"`
	Vehicles       string `yaml:"vehicles"`
}

// ChargingColumns names the charging-point CSV columns the pipeline reads.
type ChargingColumns struct {
	Address    string `yaml:"address"`
	Coordinate string `yaml:"coordinate"`
	Latitude   string `yaml:"latitude"`
	Longitude  string `yaml:"longitude"`
	PostalCode string `yaml:"postal_code"`
	CreatedAt  string `yaml:"created_at"`
}

// VehicleColumns names the vehicle-registration CSV columns.
type VehicleColumns struct {
	CommuneCode string `yaml:"commune_code"`
	Date        string `yaml:"date"`
	Count       string `yaml:"count"`
}

// YearRange is the inclusive year horizon of the pivot columns.
type YearRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// List returns every year of the range in ascending order.
func (y YearRange) List() []int {
	years := make([]int, 0, y.To-y.From+1)
	for year := y.From; year <= y.To; year++ {
		years = append(years, year)
	}
	return years
}

// Override maps a coordinate to a hand-curated postal code. An empty
// PostalCode marks the location as excluded.
type Override struct {
	Coordinate string `yaml:"coordinate"`
	PostalCode string `yaml:"postal_code"`
	Note       string `yaml:"note,omitempty"`
}

// Quality tunes the data-quality report.
type Quality struct {
	SampleSize       int     `yaml:"sample_size"`
	ResidualWarnRate float64 `yaml:"residual_warn_rate"`
}

// Geocode tunes the reverse-geocoding fetcher.
type Geocode struct {
	Endpoint string        `yaml:"endpoint"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
	Redis    string        `yaml:"redis"`
}

// Output controls where and how the pivot tables are written.
type Output struct {
	Dir  string `yaml:"dir"`
	XLSX bool   `yaml:"xlsx"`
}

// DefaultStages is the resolver order of a charging-point run.
var DefaultStages = []string{"address", "consolidated", "geocode", "commune", "cluster", "override"}

// DefaultOverrides are the locations that no automatic stage resolves.
var DefaultOverrides = []Override{
	{Coordinate: "[2.05,48.77]", PostalCode: "78180"},
	{Coordinate: "[2.537134, 49.009377]", PostalCode: "95700"},
	{Coordinate: "[1.51,43.54]", PostalCode: "31670"},
	{Coordinate: "[4.81745, 45.751829]", PostalCode: "69005"},
	{Coordinate: "[4.042399692989961, 44.140507984691325]", PostalCode: "30480"},
	{Coordinate: "[5.115036, 43.398722]", PostalCode: "13220"},
	{Coordinate: "[0.163932, 49.513496]", PostalCode: "76600"},
	{Coordinate: "[1.15170464,49.4665534]", PostalCode: "76160"},
	{Coordinate: "[5.49,45.67]", PostalCode: "38510"},
}

// DefaultPipeline returns the configuration matching the layout of the data/
// directory.
func DefaultPipeline() *Pipeline {
	return &Pipeline{
		Data: DataPaths{
			ChargingPoints: "data/charging_points.csv",
			GeoReference:   "data/fr-ref-geo.csv",
			Corsica:        "data/corsica_postal_codes.csv",
			GeocodeCache:   "data/location_data.csv",
			Vehicles:       "data/voitures.csv",
		},
		Columns: ChargingColumns{
			Address:    "adresse_station",
			Coordinate: "coordonneesXY",
			Latitude:   "consolidated_latitude",
			Longitude:  "consolidated_longitude",
			PostalCode: "consolidated_code_postal",
			CreatedAt:  "created_at",
		},
		Vehicles: VehicleColumns{
			CommuneCode: "CODGEO",
			Date:        "DATE_ARRETE",
			Count:       "NB_VP_RECHARGEABLES_EL",
		},
		Years:     YearRange{From: 2020, To: 2025},
		KeyDigits: 3,
		Stages:    append([]string(nil), DefaultStages...),
		Overrides: append([]Override(nil), DefaultOverrides...),
		Quality: Quality{
			SampleSize:       20,
			ResidualWarnRate: 0.01,
		},
		Geocode: Geocode{
			Endpoint: "https://maps.googleapis.com/maps/api/geocode/json",
			Interval: 100 * time.Millisecond,
			Timeout:  10 * time.Second,
			Attempts: 3,
			Backoff:  500 * time.Millisecond,
		},
		Output: Output{Dir: "data"},
	}
}

// LoadPipeline reads path over the defaults. An empty path returns the
// defaults. EPOINTS_DATA_DIR and EPOINTS_OUTPUT_DIR rebase relative paths.
func LoadPipeline(path string) (*Pipeline, error) {
	cfg := DefaultPipeline()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}

	if dir := os.Getenv("EPOINTS_DATA_DIR"); dir != "" {
		cfg.Data.rebase(dir)
	}
	if dir := os.Getenv("EPOINTS_OUTPUT_DIR"); dir != "" {
		cfg.Output.Dir = dir
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" && cfg.Geocode.Redis == "" {
		cfg.Geocode.Redis = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration values the pipeline cannot run with.
func (p *Pipeline) Validate() error {
	if p.Years.From <= 0 || p.Years.To < p.Years.From {
		return fmt.Errorf("config: invalid year range %d-%d", p.Years.From, p.Years.To)
	}
	if p.KeyDigits < 0 {
		return errors.New("config: key_digits must not be negative")
	}
	if len(p.Stages) == 0 {
		return errors.New("config: no resolver stages configured")
	}
	if p.Geocode.Attempts < 1 {
		p.Geocode.Attempts = 1
	}
	return nil
}

func (d *DataPaths) rebase(dir string) {
	for _, p := range []*string{&d.ChargingPoints, &d.GeoReference, &d.Corsica, &d.GeocodeCache, &d.Vehicles} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, filepath.Base(*p))
		}
	}
}
