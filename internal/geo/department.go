package geo

import (
	"fmt"
	"strings"
)

// DropReason explains why a record has no valid department.
type DropReason string

const (
	Kept            DropReason = ""
	NoPostalCode    DropReason = "no_postal_code"
	Excluded        DropReason = "excluded"
	CorsicaUnmapped DropReason = "corsica_unmapped"
	OutOfRange      DropReason = "out_of_range"
)

var validDepartments = func() map[string]struct{} {
	m := make(map[string]struct{}, 97)
	for i := 1; i <= 95; i++ {
		m[fmt.Sprintf("%02d", i)] = struct{}{}
	}
	m["2A"] = struct{}{}
	m["2B"] = struct{}{}
	return m
}()

// IsValidDepartment reports whether code is a metropolitan department code.
func IsValidDepartment(code string) bool {
	_, ok := validDepartments[code]
	return ok
}

// Deriver turns final postal codes into department codes.
type Deriver struct {
	corsica CorsicaReference
}

// NewDeriver creates a deriver using corsica for the "20" prefix.
func NewDeriver(corsica CorsicaReference) *Deriver {
	if corsica == nil {
		corsica = CorsicaReference{}
	}
	return &Deriver{corsica: corsica}
}

// Derive returns the department code of postal, or the reason it has none.
// An empty postal code is one deliberately excluded by an override; callers
// with no postal code at all pass nil to DeriveOptional.
func (d *Deriver) Derive(postal string) (string, DropReason) {
	postal = strings.TrimSpace(postal)
	if postal == "" {
		return "", Excluded
	}
	if len(postal) < 2 {
		return "", OutOfRange
	}

	code := strings.ToUpper(postal[:2])
	if code == "20" {
		fixed, ok := d.corsica[postal]
		if !ok {
			return "", CorsicaUnmapped
		}
		code = fixed
	}

	if !IsValidDepartment(code) {
		return "", OutOfRange
	}
	return code, Kept
}

// DeriveOptional is Derive for a postal code that may never have been
// resolved.
func (d *Deriver) DeriveOptional(postal *string) (string, DropReason) {
	if postal == nil {
		return "", NoPostalCode
	}
	return d.Derive(*postal)
}
