// Package etl runs the preprocessing jobs end to end: load the inputs,
// resolve, aggregate and write the dashboard tables.
package etl

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/svvoii/evs-charging-france-dashboard/internal/audit"
	"github.com/svvoii/evs-charging-france-dashboard/internal/config"
	"github.com/svvoii/evs-charging-france-dashboard/internal/debug"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geo"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geocode"
	import_pkg "github.com/svvoii/evs-charging-france-dashboard/internal/import"
	"github.com/svvoii/evs-charging-france-dashboard/internal/pivot"
	"github.com/svvoii/evs-charging-france-dashboard/internal/resolve"
)

// Table families written to the output directory.
const (
	ChargingPoints = "epoints"
	Vehicles       = "evs"
)

// Pipeline holds the configuration shared by the preprocessing jobs.
type Pipeline struct {
	cfg    *config.Pipeline
	logger *zap.Logger

	// extra is consulted after the file cache and receives every new entry.
	extra geocode.Cache
}

// NewPipeline creates a pipeline. A nil logger discards output.
func NewPipeline(cfg *config.Pipeline, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, logger: logger}
}

// WithCache adds a second geocode cache tier, such as redis.
func (p *Pipeline) WithCache(c geocode.Cache) *Pipeline {
	p.extra = c
	return p
}

// Output is what a job wrote.
type Output struct {
	Table      *pivot.Table
	Cumulative *pivot.Table
	Report     *audit.Report
	Files      []string
}

// Paths returns the output files of family under dir.
func Paths(dir, family string) (pivotCSV, cumulativeCSV, xlsx, quality string) {
	return filepath.Join(dir, family+"_pivot.csv"),
		filepath.Join(dir, family+"_pivot_cumsum.csv"),
		filepath.Join(dir, family+"_pivot.xlsx"),
		filepath.Join(dir, family+"_quality.json")
}

// RunChargingPoints resolves the charging-point postal codes and writes the
// epoints tables.
func (p *Pipeline) RunChargingPoints(ctx context.Context, localDebug bool) (*Output, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	communes, departments, err := import_pkg.ImportGeoReference(localDebug, p.cfg.Data.GeoReference)
	if err != nil {
		return nil, fmt.Errorf("failed to load geo reference: %w", err)
	}
	corsica, err := import_pkg.ImportCorsica(localDebug, p.cfg.Data.Corsica)
	if err != nil {
		return nil, fmt.Errorf("failed to load corsica table: %w", err)
	}
	fileCache, err := geocode.LoadFileCache(localDebug, p.cfg.Data.GeocodeCache)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Loaded %d communes, %d departments, %d corsican codes, %d cached geocodes\n",
		communes.Len(), len(departments), len(corsica), fileCache.Len())

	records, stats, err := import_pkg.ImportChargingPoints(localDebug, p.cfg.Data.ChargingPoints, p.cfg.Columns)
	if err != nil {
		return nil, fmt.Errorf("failed to load charging points: %w", err)
	}
	fmt.Printf("Loaded %d charging points (%d rows skipped)\n", stats.Read, stats.Skipped)

	stages, err := resolve.BuildStages(p.cfg.Stages, resolve.Dependencies{
		Cache:     p.cache(fileCache),
		Communes:  communes,
		Overrides: p.cfg.Overrides,
		KeyDigits: p.cfg.KeyDigits,
		Logger:    p.logger,
	})
	if err != nil {
		return nil, err
	}

	res := resolve.NewPipeline(stages, geo.NewDeriver(corsica), departments, p.cfg.KeyDigits).Run(ctx, localDebug, records)

	report := audit.NewReport(ChargingPoints, p.cfg.Data.ChargingPoints)
	report.Skipped = stats.Skipped
	report.AddResolution(res, records, p.cfg.Quality.SampleSize)

	agg := pivot.NewAggregator()
	badYears := 0
	for _, r := range records {
		if r.Drop != geo.Kept {
			continue
		}
		year, ok := pivot.ParseYear(r.CreatedAt)
		if !ok {
			debug.DebugOutput(localDebug, "Row %d: unparsable year %q", r.Row, r.CreatedAt)
			badYears++
			continue
		}
		agg.Add(r.DepartmentCode, r.DepartmentName, year, 1)
	}
	report.Drop(audit.BadYear, badYears)

	out, err := p.write(ChargingPoints, agg, report)
	if err != nil {
		return nil, err
	}

	fmt.Printf("Resolved %d of %d charging points, %d unresolved, %d dropped in %v\n",
		res.Total-res.Residual, res.Total, res.Residual, report.DroppedTotal(), res.Duration)
	return out, nil
}

// RunVehicles aggregates the EV registration counts and writes the evs
// tables.
func (p *Pipeline) RunVehicles(ctx context.Context, localDebug bool) (*Output, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	_, departments, err := import_pkg.ImportGeoReference(localDebug, p.cfg.Data.GeoReference)
	if err != nil {
		return nil, fmt.Errorf("failed to load geo reference: %w", err)
	}

	rows, stats, err := import_pkg.ImportVehicles(localDebug, p.cfg.Data.Vehicles, p.cfg.Vehicles)
	if err != nil {
		return nil, fmt.Errorf("failed to load vehicles: %w", err)
	}
	fmt.Printf("Loaded %d vehicle rows (%d rows skipped)\n", stats.Read, stats.Skipped)

	report := audit.NewReport(Vehicles, p.cfg.Data.Vehicles)
	report.Total = len(rows)
	report.Skipped = stats.Skipped

	// Commune codes carry the department prefix, Corsica included (2A004).
	deriver := geo.NewDeriver(nil)
	agg := pivot.NewAggregator()

	for i, row := range rows {
		if i%10000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		code, reason := deriver.Derive(row.CommuneCode)
		if reason != geo.Kept {
			report.Dropped[string(reason)]++
			continue
		}
		year, ok := pivot.ParseYear(row.Date)
		if !ok {
			report.Dropped[audit.BadYear]++
			continue
		}
		weight, err := strconv.ParseInt(strings.TrimSpace(row.Count), 10, 64)
		if err != nil || weight < 0 {
			debug.DebugOutput(localDebug, "Row %d: bad vehicle count %q", row.Row, row.Count)
			report.Dropped[audit.BadWeight]++
			continue
		}

		agg.Add(code, departments.Name(code), year, weight)
		report.Kept++
	}

	out, err := p.write(Vehicles, agg, report)
	if err != nil {
		return nil, err
	}

	fmt.Printf("Aggregated %d vehicle rows, %d dropped, %d EVs in range\n",
		report.Kept, report.DroppedTotal(), out.Table.Sum())
	return out, nil
}

// Geocode fills the geocode cache for every charging point not cached yet.
// Fetched entries are saved even when ctx is cancelled midway.
func (p *Pipeline) Geocode(ctx context.Context, localDebug bool, geocoder geocode.Geocoder) (geocode.FetchStats, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	records, _, err := import_pkg.ImportChargingPoints(localDebug, p.cfg.Data.ChargingPoints, p.cfg.Columns)
	if err != nil {
		return geocode.FetchStats{}, fmt.Errorf("failed to load charging points: %w", err)
	}
	fileCache, err := geocode.LoadFileCache(localDebug, p.cfg.Data.GeocodeCache)
	if err != nil {
		return geocode.FetchStats{}, err
	}

	points := make([]geocode.Point, len(records))
	for i, r := range records {
		points[i] = r.Point
	}

	stats, fillErr := geocode.NewFetcher(geocoder, p.cache(fileCache), p.logger).Fill(ctx, localDebug, points)
	if err := fileCache.Save(); err != nil {
		return stats, fmt.Errorf("failed to save geocode cache: %w", err)
	}

	fmt.Printf("Geocoded %d unique points: %d cached, %d fetched, %d empty, %d failed in %v\n",
		stats.Unique, stats.Cached, stats.Fetched, stats.Empty, stats.Failed, stats.Duration)
	return stats, fillErr
}

func (p *Pipeline) cache(file *geocode.FileCache) geocode.Cache {
	if p.extra == nil {
		return file
	}
	return geocode.Tiered{file, p.extra}
}

func (p *Pipeline) write(family string, agg *pivot.Aggregator, report *audit.Report) (*Output, error) {
	table := agg.Build(p.cfg.Years.List())
	cumulative := table.Cumulative()

	pivotPath, cumulativePath, xlsxPath, qualityPath := Paths(p.cfg.Output.Dir, family)
	out := &Output{Table: table, Cumulative: cumulative, Report: report}

	if err := table.WriteCSVFile(pivotPath); err != nil {
		return nil, err
	}
	if err := cumulative.WriteCSVFile(cumulativePath); err != nil {
		return nil, err
	}
	out.Files = append(out.Files, pivotPath, cumulativePath)

	if p.cfg.Output.XLSX {
		sheets := map[string]*pivot.Table{"pivot": table, "cumulative": cumulative}
		if err := pivot.WriteXLSX(xlsxPath, sheets, []string{"pivot", "cumulative"}); err != nil {
			return nil, err
		}
		out.Files = append(out.Files, xlsxPath)
	}

	report.Check(p.logger, p.cfg.Quality.ResidualWarnRate)
	if err := report.WriteFile(qualityPath); err != nil {
		return nil, err
	}
	out.Files = append(out.Files, qualityPath)

	p.logger.Info("tables written",
		zap.String("family", family),
		zap.String("run_id", report.RunID),
		zap.Int("departments", len(table.Rows)),
		zap.Int64("sum", table.Sum()),
		zap.Strings("files", out.Files),
	)
	return out, nil
}
