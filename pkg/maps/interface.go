package maps

import "context"

// GeocodeProvider resolves coordinates to human-readable addresses.
type GeocodeProvider interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}
