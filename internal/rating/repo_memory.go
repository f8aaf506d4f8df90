package rating

import "context"

// MemoryRepo is a simple in-memory repository useful for tests and early
// development.
//
// NOTE: This is not intended for production; replace with Postgres implementation.
type MemoryRepo struct {
	Destinations []Destination
	Rates        []Rate
}

func (r *MemoryRepo) ListDestinations(ctx context.Context) ([]Destination, error) {
	_ = ctx
	out := make([]Destination, len(r.Destinations))
	copy(out, r.Destinations)
	return out, nil
}

func (r *MemoryRepo) ListRates(ctx context.Context, rateCardID, destinationID string) ([]Rate, error) {
	_ = ctx
	var out []Rate
	for _, rt := range r.Rates {
		if rt.RateCardID != rateCardID {
			continue
		}
		if rt.DestinationID != destinationID {
			continue
		}
		out = append(out, rt)
	}
	return out, nil
}
