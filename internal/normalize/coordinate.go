package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedCoordinate is returned for coordinate text that is not exactly
// two numeric components.
var ErrMalformedCoordinate = errors.New("malformed coordinate")

// CoordinateKey turns a raw "[lon, lat]" string into the "lat, lon" grouping
// key, each component's fractional part truncated to digits characters.
//
// Input without brackets is taken to already be in key order, so feeding a
// key back in returns the same key.
func CoordinateKey(raw string, digits int) (string, error) {
	s := strings.TrimSpace(raw)
	bracketed := strings.HasPrefix(s, "[") || strings.HasSuffix(s, "]")

	s = strings.NewReplacer("[", "", "]", "", " ", "", "\t", "").Replace(s)
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: %q has %d components", ErrMalformedCoordinate, raw, len(parts))
	}

	for i, part := range parts {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("%w: %q is not a number", ErrMalformedCoordinate, part)
		}
		parts[i] = truncateFraction(part, digits)
	}

	if bracketed {
		parts[0], parts[1] = parts[1], parts[0]
	}
	return parts[0] + ", " + parts[1], nil
}

// SplitCoordinate parses a raw "[lon, lat]" string into its numeric values.
func SplitCoordinate(raw string) (lon, lat float64, err error) {
	s := strings.NewReplacer("[", "", "]", "", " ", "").Replace(strings.TrimSpace(raw))
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedCoordinate, raw)
	}
	if lon, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedCoordinate, raw)
	}
	if lat, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedCoordinate, raw)
	}
	return lon, lat, nil
}

// truncateFraction cuts the text after the decimal point to digits
// characters. It never rounds.
func truncateFraction(token string, digits int) string {
	dot := strings.IndexByte(token, '.')
	if dot < 0 {
		return token
	}
	if digits <= 0 {
		return token[:dot]
	}
	end := dot + 1 + digits
	if end > len(token) {
		return token
	}
	return token[:end]
}
