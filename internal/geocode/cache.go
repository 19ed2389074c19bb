package geocode

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/svvoii/evs-charging-france-dashboard/internal/debug"
)

// Cache stores reverse-geocode responses keyed by Point.
type Cache interface {
	Lookup(ctx context.Context, p Point) (Entry, bool, error)
	Store(ctx context.Context, p Point, loc *Location) error
}

var cacheHeader = []string{"latitude", "longitude", "location_data", "code_postal"}

// FileCache is a CSV-backed cache loaded fully into memory. Changes are
// written back by Save.
type FileCache struct {
	path    string
	entries map[Point]Entry
	order   []Point
	dirty   bool
}

// NewFileCache returns an empty cache that saves to path.
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path, entries: make(map[Point]Entry)}
}

// LoadFileCache reads path. A missing file yields an empty cache.
func LoadFileCache(localDebug bool, path string) (*FileCache, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	c := NewFileCache(path)

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		debug.DebugOutput(localDebug, "No geocode cache at %s, starting empty", path)
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open geocode cache %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read geocode cache header: %w", err)
	}

	columnMap := make(map[string]int)
	for i, col := range header {
		columnMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"latitude", "longitude", "location_data"} {
		if _, ok := columnMap[required]; !ok {
			return nil, fmt.Errorf("geocode cache %s: missing column %q", path, required)
		}
	}

	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		p := Point{Lat: column(record, columnMap, "latitude"), Lon: column(record, columnMap, "longitude")}
		if !p.Valid() {
			skipped++
			continue
		}

		entry := Entry{PostalCode: column(record, columnMap, "code_postal")}
		raw := column(record, columnMap, "location_data")
		if raw != "" && raw != "null" {
			var loc Location
			if err := json.Unmarshal([]byte(raw), &loc); err != nil {
				debug.DebugOutput(localDebug, "Undecodable location for %s: %v", p, err)
			} else {
				entry.Location = &loc
			}
		}
		c.put(p, entry)
	}
	c.dirty = false

	debug.DebugOutput(localDebug, "Loaded %d geocode cache entries (%d skipped)", len(c.order), skipped)
	return c, nil
}

// Lookup implements Cache.
func (c *FileCache) Lookup(_ context.Context, p Point) (Entry, bool, error) {
	e, ok := c.entries[p]
	return e, ok, nil
}

// Store implements Cache. The entry is only persisted by Save.
func (c *FileCache) Store(_ context.Context, p Point, loc *Location) error {
	entry := Entry{Location: loc}
	entry.PostalCode, _ = loc.PostalCode()
	c.put(p, entry)
	return nil
}

// Len returns the number of cached points.
func (c *FileCache) Len() int {
	return len(c.order)
}

// Save writes the cache atomically when it has unsaved entries.
func (c *FileCache) Save() error {
	if !c.dirty {
		return nil
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	tmp := c.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	w := csv.NewWriter(file)
	if err := w.Write(cacheHeader); err != nil {
		file.Close()
		return fmt.Errorf("failed to write cache header: %w", err)
	}
	for _, p := range c.order {
		e := c.entries[p]
		payload, err := json.Marshal(e.Location)
		if err != nil {
			file.Close()
			return fmt.Errorf("failed to encode location for %s: %w", p, err)
		}
		if err := w.Write([]string{p.Lat, p.Lon, string(payload), e.PostalCode}); err != nil {
			file.Close()
			return fmt.Errorf("failed to write cache row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", c.path, err)
	}
	c.dirty = false
	return nil
}

func (c *FileCache) put(p Point, e Entry) {
	if _, ok := c.entries[p]; !ok {
		c.order = append(c.order, p)
	}
	c.entries[p] = e
	c.dirty = true
}

func column(record []string, columnMap map[string]int, name string) string {
	i, ok := columnMap[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
