// Package geocode reverse-geocodes charging-point coordinates and caches the
// responses so each coordinate pair is queried at most once.
package geocode

import (
	"strings"
)

// Point is a coordinate pair exactly as it appears in the source data. The
// text form is the cache key; it is never reformatted.
type Point struct {
	Lat string
	Lon string
}

// Valid reports whether both components are present.
func (p Point) Valid() bool {
	return strings.TrimSpace(p.Lat) != "" && strings.TrimSpace(p.Lon) != ""
}

// String renders the lat,lon pair used in API requests and cache keys.
func (p Point) String() string {
	return strings.TrimSpace(p.Lat) + "," + strings.TrimSpace(p.Lon)
}

// AddressComponent is one element of a geocoder address_components list.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Location is the first result of a reverse-geocode response.
type Location struct {
	FormattedAddress  string             `json:"formatted_address,omitempty"`
	PlaceID           string             `json:"place_id,omitempty"`
	AddressComponents []AddressComponent `json:"address_components"`
	Types             []string           `json:"types,omitempty"`
}

// PostalCode returns the long name of the first component tagged
// "postal_code".
func (l *Location) PostalCode() (string, bool) {
	if l == nil {
		return "", false
	}
	for _, c := range l.AddressComponents {
		for _, t := range c.Types {
			if t == "postal_code" && c.LongName != "" {
				return c.LongName, true
			}
		}
	}
	return "", false
}

// Entry is a cached response. A nil Location records that the geocoder was
// asked and returned nothing, which is still a hit for the fetcher.
type Entry struct {
	Location *Location
	// PostalCode is filled from an explicit cache column when present, for
	// cache files whose location payload cannot be decoded.
	PostalCode string
}

// Postal returns the postal code carried by the entry.
func (e Entry) Postal() (string, bool) {
	if code, ok := e.Location.PostalCode(); ok {
		return code, true
	}
	if e.PostalCode != "" {
		return e.PostalCode, true
	}
	return "", false
}
