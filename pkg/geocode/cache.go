package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(addr AddressInput) string {
	normalized := fmt.Sprintf("%s|%s|%s|%s",
		strings.ToLower(strings.TrimSpace(addr.Street)),
		strings.ToLower(strings.TrimSpace(addr.City)),
		strings.ToLower(strings.TrimSpace(addr.State)),
		strings.TrimSpace(addr.ZipCode),
	)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// checkCache looks up a cached geocode result, respecting TTL if configured.
// Returns cached non-matches (Matched=false) so the caller can skip the providers.
func (g *geocoder) checkCache(ctx context.Context, key string) (*Result, error) {
	var lat, lon float64
	var quality string
	var matched bool
	var county, countyFIPS, source *string

	query := "SELECT latitude, longitude, quality, matched, county, county_fips, source FROM edc.geocode_cache WHERE address_hash = $1"
	args := []any{key}

	if g.cacheTTLDays > 0 {
		query += fmt.Sprintf(" AND cached_at > now() - interval '%d days'", g.cacheTTLDays)
	}

	row := g.pool.QueryRow(ctx, query, args...)
	if err := row.Scan(&lat, &lon, &quality, &matched, &county, &countyFIPS, &source); err != nil {
		return nil, err // no row or scan error — caller handles
	}

	r := &Result{
		Latitude:  lat,
		Longitude: lon,
		Quality:   quality,
		Matched:   matched,
	}
	if county != nil {
		r.County = *county
	}
	if countyFIPS != nil {
		r.CountyFIPS = *countyFIPS
	}
	if source != nil {
		r.Source = *source
	}

	keyPrefix := key
	if len(keyPrefix) > 12 {
		keyPrefix = keyPrefix[:12]
	}
	zap.L().Debug("geocode cache hit", zap.String("key", keyPrefix), zap.Bool("matched", matched))
	return r, nil
}

// storeCache inserts a geocode result (match or non-match) into the cache.
func (g *geocoder) storeCache(ctx context.Context, key string, result *Result) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO edc.geocode_cache (address_hash, latitude, longitude, quality, matched, county, county_fips, source, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			quality = EXCLUDED.quality,
			matched = EXCLUDED.matched,
			county = EXCLUDED.county,
			county_fips = EXCLUDED.county_fips,
			source = EXCLUDED.source,
			cached_at = now()`,
		key, result.Latitude, result.Longitude, result.Quality, result.Matched,
		nilIfEmpty(result.County), nilIfEmpty(result.CountyFIPS), nilIfEmpty(result.Source),
	)
	if err != nil {
		return eris.Wrap(err, "geocode: store cache")
	}
	return nil
}

// nilIfEmpty returns nil for empty strings, allowing NULL storage in Postgres.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
