package normalize

import (
	"errors"
	"testing"
)

func TestCoordinateKey(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		digits int
		want   string
	}{
		{"spaced raw pair", "[2.537134, 49.009377]", 3, "49.009, 2.537"},
		{"compact raw pair", "[1.15170464,49.4665534]", 3, "49.466, 1.151"},
		{"truncates, never rounds", "[2.3599, 48.8599]", 2, "48.85, 2.35"},
		{"short fractions kept", "[2.05,48.77]", 3, "48.77, 2.05"},
		{"integer component", "[5,45.67]", 3, "45.67, 5"},
		{"negative longitude", "[-0.579541, 44.837789]", 3, "44.837, -0.579"},
		{"zero digits drops fraction", "[2.35,48.85]", 0, "48, 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoordinateKey(tt.raw, tt.digits)
			if err != nil {
				t.Fatalf("CoordinateKey(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("CoordinateKey(%q, %d) = %q, want %q", tt.raw, tt.digits, got, tt.want)
			}
		})
	}
}

func TestCoordinateKeyNearbyPointsShareKey(t *testing.T) {
	a, err := CoordinateKey("[2.35,48.85]", 2)
	if err != nil {
		t.Fatal(err)
	}
	b, err := CoordinateKey("[2.351,48.851]", 2)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("expected identical keys, got %q and %q", a, b)
	}
}

func TestCoordinateKeyIdempotent(t *testing.T) {
	raws := []string{
		"[2.537134, 49.009377]",
		"[4.042399692989961, 44.140507984691325]",
		"[5.49,45.67]",
		"[-1.5536, 47.2184]",
	}

	for _, raw := range raws {
		t.Run(raw, func(t *testing.T) {
			key, err := CoordinateKey(raw, 3)
			if err != nil {
				t.Fatal(err)
			}
			again, err := CoordinateKey(key, 3)
			if err != nil {
				t.Fatalf("normalizing key %q: %v", key, err)
			}
			if again != key {
				t.Errorf("CoordinateKey(%q) = %q, want %q", key, again, key)
			}
		})
	}
}

func TestCoordinateKeyMalformed(t *testing.T) {
	inputs := []string{
		"",
		"[2.35]",
		"[2.35 48.85]",
		"[2.35,48.85,12]",
		"[abc,48.85]",
		"[NaN,48.85]",
	}

	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			_, err := CoordinateKey(raw, 3)
			if !errors.Is(err, ErrMalformedCoordinate) {
				t.Errorf("CoordinateKey(%q) error = %v, want ErrMalformedCoordinate", raw, err)
			}
		})
	}
}

func TestSplitCoordinate(t *testing.T) {
	lon, lat, err := SplitCoordinate("[2.537134, 49.009377]")
	if err != nil {
		t.Fatal(err)
	}
	if lon != 2.537134 || lat != 49.009377 {
		t.Errorf("SplitCoordinate = (%v, %v), want (2.537134, 49.009377)", lon, lat)
	}

	if _, _, err := SplitCoordinate("[x,1]"); !errors.Is(err, ErrMalformedCoordinate) {
		t.Errorf("expected ErrMalformedCoordinate, got %v", err)
	}
}
