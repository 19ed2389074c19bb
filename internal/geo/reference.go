// Package geo holds the read-only French geographic reference tables and the
// department derivation rules built on them.
package geo

import (
	"strings"

	"github.com/svvoii/evs-charging-france-dashboard/internal/normalize"
)

// Commune is one row of the commune dictionary.
type Commune struct {
	Name string // folded with normalize.Fold
	Code string
}

// CommuneReference is the commune-name dictionary in reference-file order.
// Order matters: the first contained name wins.
type CommuneReference struct {
	communes []Commune
	index    map[string]int
}

// NewCommuneReference creates an empty dictionary.
func NewCommuneReference() *CommuneReference {
	return &CommuneReference{index: make(map[string]int)}
}

// Add registers name with code. Names are folded. A repeated folded name
// keeps the position of its first occurrence and takes the latest code.
func (r *CommuneReference) Add(name, code string) {
	folded := strings.TrimSpace(normalize.Fold(name))
	if folded == "" || code == "" {
		return
	}
	if i, dup := r.index[folded]; dup {
		r.communes[i].Code = code
		return
	}
	r.index[folded] = len(r.communes)
	r.communes = append(r.communes, Commune{Name: folded, Code: code})
}

// Len returns the number of distinct commune names.
func (r *CommuneReference) Len() int {
	return len(r.communes)
}

// Match returns the code of the first commune whose name occurs in
// foldedAddress.
//
// This is a plain substring test. A short name contained in a longer one
// ("EU" inside "MEUDON") matches whichever comes first in the dictionary.
func (r *CommuneReference) Match(foldedAddress string) (Commune, bool) {
	for _, c := range r.communes {
		if strings.Contains(foldedAddress, c.Name) {
			return c, true
		}
	}
	return Commune{}, false
}

// CorsicaReference maps a Corsican postal code to "2A" or "2B".
type CorsicaReference map[string]string

// Departments maps a department code to its name.
type Departments map[string]string

// Name returns the department name, or "" when unknown.
func (d Departments) Name(code string) string {
	return d[code]
}
