package maps

import (
	"context"
	"time"
)

// Gateway wraps a GeocodeProvider with a bounded timeout and a fallback
// address. Geocoding is never fatal: any failure, including the provider
// being unconfigured, degrades to the fallback value.
type Gateway struct {
	provider GeocodeProvider
	timeout  time.Duration
	fallback string
}

func NewGateway(provider GeocodeProvider, timeout time.Duration, fallback string) *Gateway {
	return &Gateway{
		provider: provider,
		timeout:  timeout,
		fallback: fallback,
	}
}

// ReverseLookup resolves lat/lng to an address, falling back on any error.
// The second return reports whether the lookup actually succeeded, so
// callers can log degraded lookups without treating them as failures.
func (g *Gateway) ReverseLookup(ctx context.Context, lat, lng float64) (string, bool) {
	if g == nil || g.provider == nil {
		return g.fallbackAddress(), false
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	address, err := g.provider.ReverseGeocode(ctx, lat, lng)
	if err != nil || address == "" {
		return g.fallbackAddress(), false
	}

	return address, true
}

func (g *Gateway) fallbackAddress() string {
	if g == nil || g.fallback == "" {
		return "Location unavailable"
	}
	return g.fallback
}
