// Package resolve assigns a postal code and department to every charging
// point through an ordered chain of resolver stages.
package resolve

import (
	"github.com/svvoii/evs-charging-france-dashboard/internal/geo"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geocode"
)

// Record is one charging point. The input fields are never modified; the
// derived fields are filled by the pipeline.
type Record struct {
	Row                int
	Address            string
	Coordinate         string // raw "[lon, lat]" text
	Point              geocode.Point
	ExternalPostalCode string
	CreatedAt          string

	// Key is the truncated coordinate key; empty when Coordinate is malformed.
	Key string

	PostalCode     *string
	ResolvedBy     string
	DepartmentCode string
	DepartmentName string
	Drop           geo.DropReason
}

// Resolved reports whether a stage has assigned a postal code.
func (r *Record) Resolved() bool {
	return r.PostalCode != nil
}

// fill sets the postal code if no earlier stage did.
func (r *Record) fill(code, stage string) bool {
	if r.PostalCode != nil || code == "" {
		return false
	}
	r.PostalCode = &code
	r.ResolvedBy = stage
	return true
}

// Year returns the calendar year prefix of CreatedAt.
func (r *Record) Year() string {
	if len(r.CreatedAt) < 4 {
		return r.CreatedAt
	}
	return r.CreatedAt[:4]
}
