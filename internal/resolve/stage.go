package resolve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/svvoii/evs-charging-france-dashboard/internal/config"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geo"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geocode"
	"github.com/svvoii/evs-charging-france-dashboard/internal/normalize"
)

// Stage is one resolver of the chain. Apply may only fill records whose
// postal code is still nil; the override stage is the single exception.
type Stage interface {
	Name() string
	Apply(ctx context.Context, records []*Record) StageResult
}

// StageResult counts what a stage did.
type StageResult struct {
	Stage   string `json:"stage"`
	Filled  int    `json:"filled"`
	Changed int    `json:"changed,omitempty"` // overrides of an earlier value
	Misses  int    `json:"misses"`
	Errors  int    `json:"errors,omitempty"`
}

// AddressStage extracts a postal code from the free-text address.
type AddressStage struct{}

func (AddressStage) Name() string { return "address" }

func (s AddressStage) Apply(_ context.Context, records []*Record) StageResult {
	res := StageResult{Stage: s.Name()}
	for _, r := range records {
		if r.Resolved() {
			continue
		}
		if code, ok := normalize.ExtractPostalCode(r.Address); ok && r.fill(code, s.Name()) {
			res.Filled++
		} else {
			res.Misses++
		}
	}
	return res
}

// ConsolidatedStage copies the externally consolidated postal code.
type ConsolidatedStage struct{}

func (ConsolidatedStage) Name() string { return "consolidated" }

func (s ConsolidatedStage) Apply(_ context.Context, records []*Record) StageResult {
	res := StageResult{Stage: s.Name()}
	for _, r := range records {
		if r.Resolved() {
			continue
		}
		if r.fill(strings.TrimSpace(r.ExternalPostalCode), s.Name()) {
			res.Filled++
		} else {
			res.Misses++
		}
	}
	return res
}

// GeocodeStage reads postal codes from cached reverse-geocode responses. It
// never calls the geocoder itself.
type GeocodeStage struct {
	Cache  geocode.Cache
	Logger *zap.Logger
}

func (GeocodeStage) Name() string { return "geocode" }

func (s GeocodeStage) Apply(ctx context.Context, records []*Record) StageResult {
	res := StageResult{Stage: s.Name()}
	for _, r := range records {
		if r.Resolved() {
			continue
		}
		if !r.Point.Valid() {
			res.Misses++
			continue
		}

		entry, ok, err := s.Cache.Lookup(ctx, r.Point)
		if err != nil {
			res.Errors++
			if s.Logger != nil {
				s.Logger.Debug("geocode cache lookup failed", zap.Int("row", r.Row), zap.Error(err))
			}
			continue
		}
		if !ok {
			res.Misses++
			continue
		}

		code, ok := entry.Postal()
		if ok && r.fill(code, s.Name()) {
			res.Filled++
		} else {
			res.Misses++
		}
	}
	return res
}

// CommuneStage assigns the code of the first commune whose folded name is
// contained in the folded address.
type CommuneStage struct {
	Communes *geo.CommuneReference
}

func (CommuneStage) Name() string { return "commune" }

func (s CommuneStage) Apply(_ context.Context, records []*Record) StageResult {
	res := StageResult{Stage: s.Name()}
	for _, r := range records {
		if r.Resolved() {
			continue
		}
		if c, ok := s.Communes.Match(normalize.Fold(r.Address)); ok && r.fill(c.Code, s.Name()) {
			res.Filled++
		} else {
			res.Misses++
		}
	}
	return res
}

// ClusterStage propagates postal codes between records sharing a coordinate
// key. When resolved records of one key disagree, the last one in input
// order wins; truncated keys conflate nearby addresses anyway.
type ClusterStage struct{}

func (ClusterStage) Name() string { return "cluster" }

func (s ClusterStage) Apply(_ context.Context, records []*Record) StageResult {
	res := StageResult{Stage: s.Name()}

	byKey := make(map[string]string)
	for _, r := range records {
		if r.Key != "" && r.Resolved() && *r.PostalCode != "" {
			byKey[r.Key] = *r.PostalCode
		}
	}

	for _, r := range records {
		if r.Resolved() {
			continue
		}
		if code, ok := byKey[r.Key]; ok && r.Key != "" && r.fill(code, s.Name()) {
			res.Filled++
		} else {
			res.Misses++
		}
	}
	return res
}

// OverrideStage applies hand-curated corrections. It overwrites any earlier
// value; an empty postal code excludes the location from aggregation.
type OverrideStage struct {
	byKey map[string]string
}

// NewOverrideStage keys overrides with the same truncation as the records.
func NewOverrideStage(overrides []config.Override, digits int) (*OverrideStage, error) {
	byKey := make(map[string]string, len(overrides))
	for _, o := range overrides {
		key, err := normalize.CoordinateKey(o.Coordinate, digits)
		if err != nil {
			return nil, fmt.Errorf("override %q: %w", o.Coordinate, err)
		}
		byKey[key] = strings.TrimSpace(o.PostalCode)
	}
	return &OverrideStage{byKey: byKey}, nil
}

func (*OverrideStage) Name() string { return "override" }

func (s *OverrideStage) Apply(_ context.Context, records []*Record) StageResult {
	res := StageResult{Stage: s.Name()}
	for _, r := range records {
		code, ok := s.byKey[r.Key]
		if !ok || r.Key == "" {
			continue
		}
		if r.Resolved() {
			res.Changed++
		} else {
			res.Filled++
		}
		value := code
		r.PostalCode = &value
		r.ResolvedBy = s.Name()
	}
	return res
}

// Dependencies are the lookup tables stages are built from.
type Dependencies struct {
	Cache     geocode.Cache
	Communes  *geo.CommuneReference
	Overrides []config.Override
	KeyDigits int
	Logger    *zap.Logger
}

// BuildStages turns configured stage names into stages, in order.
func BuildStages(names []string, deps Dependencies) ([]Stage, error) {
	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "address":
			stages = append(stages, AddressStage{})
		case "consolidated":
			stages = append(stages, ConsolidatedStage{})
		case "geocode":
			if deps.Cache == nil {
				return nil, fmt.Errorf("stage geocode: no geocode cache")
			}
			stages = append(stages, GeocodeStage{Cache: deps.Cache, Logger: deps.Logger})
		case "commune":
			if deps.Communes == nil {
				return nil, fmt.Errorf("stage commune: no commune reference")
			}
			stages = append(stages, CommuneStage{Communes: deps.Communes})
		case "cluster":
			stages = append(stages, ClusterStage{})
		case "override":
			stage, err := NewOverrideStage(deps.Overrides, deps.KeyDigits)
			if err != nil {
				return nil, fmt.Errorf("stage override: %w", err)
			}
			stages = append(stages, stage)
		default:
			return nil, fmt.Errorf("unknown stage %q", name)
		}
	}
	return stages, nil
}
