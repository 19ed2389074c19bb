package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/svvoii/evs-charging-france-dashboard/internal/debug"
)

// FetchStats summarizes a Fill run.
type FetchStats struct {
	Unique   int // distinct valid points
	Cached   int // already in the cache, not queried
	Fetched  int // queried and stored with a result
	Empty    int // queried and stored without a result
	Failed   int // queried, failed after retries, left uncached
	Invalid  int // input points missing a component
	Duration time.Duration
}

// Fetcher fills a Cache with one geocoder call per unseen point.
type Fetcher struct {
	geocoder Geocoder
	cache    Cache
	logger   *zap.Logger
}

// NewFetcher creates a fetcher. A nil logger discards output.
func NewFetcher(geocoder Geocoder, cache Cache, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{geocoder: geocoder, cache: cache, logger: logger}
}

// Fill deduplicates points in input order and queries the ones the cache does
// not hold. A failing point is logged and skipped. Cancellation stops between
// calls and returns what was stored so far with the context error.
func (f *Fetcher) Fill(ctx context.Context, localDebug bool, points []Point) (FetchStats, error) {
	defer debug.DebugTiming(localDebug, "geocode fill")()

	start := time.Now()
	var stats FetchStats

	seen := make(map[Point]struct{}, len(points))
	var pending []Point
	for _, p := range points {
		if !p.Valid() {
			stats.Invalid++
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		stats.Unique++

		_, hit, err := f.cache.Lookup(ctx, p)
		if err != nil {
			f.logger.Warn("geocode cache lookup failed", zap.String("point", p.String()), zap.Error(err))
		}
		if hit {
			stats.Cached++
			continue
		}
		pending = append(pending, p)
	}

	debug.DebugOutput(localDebug, "%d unique points, %d cached, %d to query", stats.Unique, stats.Cached, len(pending))

	for i, p := range pending {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		loc, err := f.geocoder.ReverseGeocode(ctx, p)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					stats.Duration = time.Since(start)
					return stats, ctx.Err()
				}
			}
			stats.Failed++
			f.logger.Warn("reverse geocode failed", zap.String("point", p.String()), zap.Error(err))
			continue
		}

		if err := f.cache.Store(ctx, p, loc); err != nil {
			stats.Failed++
			f.logger.Warn("geocode cache store failed", zap.String("point", p.String()), zap.Error(err))
			continue
		}
		if loc == nil {
			stats.Empty++
		} else {
			stats.Fetched++
		}

		if (i+1)%500 == 0 {
			fmt.Printf("Geocoded %d of %d points...\n", i+1, len(pending))
		}
	}

	stats.Duration = time.Since(start)
	return stats, nil
}
