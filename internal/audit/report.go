// Package audit builds the data-quality report of a preprocessing run.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/svvoii/evs-charging-france-dashboard/internal/resolve"
)

// Drop reasons produced outside department derivation.
const (
	BadYear   = "bad_year"
	BadWeight = "bad_weight"
)

// Report is the quality summary written next to the pivot tables.
type Report struct {
	RunID       string    `json:"run_id"`
	Family      string    `json:"family"`
	GeneratedAt time.Time `json:"generated_at"`
	Source      string    `json:"source"`

	Total        int     `json:"total"`
	Skipped      int     `json:"skipped_rows"`
	Kept         int     `json:"kept"`
	BadKeys      int     `json:"malformed_coordinates"`
	Residual     int     `json:"residual_unresolved"`
	ResidualRate float64 `json:"residual_rate"`

	Stages     []resolve.StageResult `json:"stages,omitempty"`
	ResolvedBy map[string]int        `json:"resolved_by,omitempty"`
	Dropped    map[string]int        `json:"dropped"`
	Sample     []SampleRow           `json:"residual_sample,omitempty"`
}

// SampleRow is an unresolved record kept for manual review.
type SampleRow struct {
	Row        int    `json:"row"`
	Address    string `json:"address"`
	Coordinate string `json:"coordinate"`
	Key        string `json:"key,omitempty"`
}

// NewReport starts a report for family ("epoints" or "evs").
func NewReport(family, source string) *Report {
	return &Report{
		RunID:       uuid.NewString(),
		Family:      family,
		GeneratedAt: time.Now().UTC(),
		Source:      source,
		Dropped:     make(map[string]int),
	}
}

// AddResolution copies the pipeline counters and samples up to sampleSize
// unresolved records in input order.
func (r *Report) AddResolution(res resolve.Result, records []*resolve.Record, sampleSize int) {
	r.Total = res.Total
	r.BadKeys = res.BadKeys
	r.Residual = res.Residual
	r.Kept = res.Kept
	r.Stages = res.Stages
	r.ResolvedBy = res.ResolvedBy
	for reason, n := range res.Dropped {
		r.Dropped[string(reason)] += n
	}
	if r.Total > 0 {
		r.ResidualRate = float64(r.Residual) / float64(r.Total)
	}

	for _, rec := range records {
		if len(r.Sample) >= sampleSize {
			break
		}
		if rec.Resolved() {
			continue
		}
		r.Sample = append(r.Sample, SampleRow{
			Row:        rec.Row,
			Address:    rec.Address,
			Coordinate: rec.Coordinate,
			Key:        rec.Key,
		})
	}
}

// Drop counts n rows removed for reason. A later kept row never reverses it.
func (r *Report) Drop(reason string, n int) {
	if n <= 0 {
		return
	}
	r.Dropped[reason] += n
	r.Kept -= n
	if r.Kept < 0 {
		r.Kept = 0
	}
}

// DroppedTotal returns the number of dropped rows over all reasons.
func (r *Report) DroppedTotal() int {
	total := 0
	for _, n := range r.Dropped {
		total += n
	}
	return total
}

// Check logs a warning and returns false when the residual rate is above
// warnRate. A zero warnRate disables the check.
func (r *Report) Check(logger *zap.Logger, warnRate float64) bool {
	if warnRate <= 0 || r.ResidualRate <= warnRate {
		return true
	}
	logger.Warn("unresolved postal codes above threshold",
		zap.String("family", r.Family),
		zap.String("run_id", r.RunID),
		zap.Int("residual", r.Residual),
		zap.Int("total", r.Total),
		zap.Float64("rate", r.ResidualRate),
		zap.Float64("threshold", warnRate),
	)
	return false
}

// WriteFile stores the report as indented JSON.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode quality report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write quality report: %w", err)
	}
	return nil
}

// ReadFile loads a report written by WriteFile.
func ReadFile(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quality report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode quality report %s: %w", path, err)
	}
	return &r, nil
}
