package resolve

import (
	"context"
	"fmt"
	"time"

	"github.com/svvoii/evs-charging-france-dashboard/internal/debug"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geo"
	"github.com/svvoii/evs-charging-france-dashboard/internal/normalize"
)

// Pipeline runs the resolver stages in order and derives departments.
type Pipeline struct {
	stages      []Stage
	deriver     *geo.Deriver
	departments geo.Departments
	keyDigits   int
}

// NewPipeline creates a pipeline. departments may be nil, leaving names empty.
func NewPipeline(stages []Stage, deriver *geo.Deriver, departments geo.Departments, keyDigits int) *Pipeline {
	if deriver == nil {
		deriver = geo.NewDeriver(nil)
	}
	return &Pipeline{stages: stages, deriver: deriver, departments: departments, keyDigits: keyDigits}
}

// Result summarizes a run.
type Result struct {
	Total      int                    `json:"total"`
	BadKeys    int                    `json:"malformed_coordinates"`
	Stages     []StageResult          `json:"stages"`
	Residual   int                    `json:"residual_unresolved"`
	Kept       int                    `json:"kept"`
	Dropped    map[geo.DropReason]int `json:"dropped"`
	ResolvedBy map[string]int         `json:"resolved_by"`
	Duration   time.Duration          `json:"-"`
}

// Run resolves records in place.
func (p *Pipeline) Run(ctx context.Context, localDebug bool, records []*Record) Result {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	start := time.Now()
	res := Result{
		Total:      len(records),
		Dropped:    make(map[geo.DropReason]int),
		ResolvedBy: make(map[string]int),
	}

	for _, r := range records {
		key, err := normalize.CoordinateKey(r.Coordinate, p.keyDigits)
		if err != nil {
			r.Key = ""
			res.BadKeys++
			debug.DebugOutput(localDebug, "Row %d: %v", r.Row, err)
			continue
		}
		r.Key = key
	}

	for _, stage := range p.stages {
		done := debug.DebugTiming(localDebug, "stage "+stage.Name())
		sr := stage.Apply(ctx, records)
		done()
		res.Stages = append(res.Stages, sr)
		fmt.Printf("Stage %-12s filled %d, changed %d, misses %d, errors %d\n",
			sr.Stage, sr.Filled, sr.Changed, sr.Misses, sr.Errors)
	}

	for _, r := range records {
		if !r.Resolved() {
			res.Residual++
		} else {
			res.ResolvedBy[r.ResolvedBy]++
		}

		code, reason := p.deriver.DeriveOptional(r.PostalCode)
		r.DepartmentCode = code
		r.Drop = reason
		if reason != geo.Kept {
			res.Dropped[reason]++
			continue
		}
		r.DepartmentName = p.departments.Name(code)
		res.Kept++
	}

	res.Duration = time.Since(start)
	return res
}
