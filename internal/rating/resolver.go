package rating

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrDestinationNotFound = errors.New("rating: destination not found")
	ErrRateNotFound        = errors.New("rating: rate not found")
)

// Repository abstracts the reference-data tables behind the resolver.
type Repository interface {
	// ListDestinations returns all destinations, active or not; the resolver
	// filters and orders them itself.
	ListDestinations(ctx context.Context) ([]Destination, error)

	// ListRates returns every rate row for the pair, regardless of effective
	// window.
	ListRates(ctx context.Context, rateCardID, destinationID string) ([]Rate, error)
}

// Resolver performs longest-prefix destination lookup and effective-dated rate
// lookup. Both lookups are memoized for the process lifetime; rate entries for
// a card are dropped when that card's rates are bulk-replaced
// (InvalidateRateCard).
type Resolver struct {
	repo  Repository
	clock func() time.Time

	mu sync.RWMutex
	// destinations sorted by descending prefix length, loaded lazily.
	destinations []Destination
	destLoaded   bool
	// numberCache memoizes cleaned-number -> destination resolution.
	numberCache map[string]Destination
	// rateCache memoizes (rateCardID, destinationID) -> selected rate.
	rateCache map[rateKey]Rate
}

type rateKey struct {
	rateCardID    string
	destinationID string
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{
		repo:        repo,
		clock:       time.Now,
		numberCache: make(map[string]Destination),
		rateCache:   make(map[rateKey]Rate),
	}
}

// CleanNumber strips everything but digits. A leading plus is dropped along
// with any other punctuation.
func CleanNumber(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveDestination finds the active destination whose prefix is the longest
// string-prefix of the cleaned number.
func (r *Resolver) ResolveDestination(ctx context.Context, number string) (Destination, error) {
	cleaned := CleanNumber(number)
	if cleaned == "" {
		return Destination{}, ErrDestinationNotFound
	}

	r.mu.RLock()
	if d, ok := r.numberCache[cleaned]; ok {
		r.mu.RUnlock()
		return d, nil
	}
	r.mu.RUnlock()

	if err := r.ensureDestinations(ctx); err != nil {
		return Destination{}, err
	}

	r.mu.RLock()
	var match Destination
	found := false
	// destinations is sorted by descending prefix length, so the first hit
	// is the longest match (ties resolved by scan order).
	for _, d := range r.destinations {
		if strings.HasPrefix(cleaned, d.Prefix) {
			match = d
			found = true
			break
		}
	}
	r.mu.RUnlock()

	if !found {
		return Destination{}, ErrDestinationNotFound
	}

	r.mu.Lock()
	r.numberCache[cleaned] = match
	r.mu.Unlock()
	return match, nil
}

// Rate selects the active rate for the (rate card, destination) pair: latest
// effectiveFrom not after "now", with effectiveTo absent or not yet passed.
func (r *Resolver) Rate(ctx context.Context, rateCardID, destinationID string) (Rate, error) {
	if rateCardID == "" || destinationID == "" {
		return Rate{}, ErrRateNotFound
	}

	key := rateKey{rateCardID: rateCardID, destinationID: destinationID}

	r.mu.RLock()
	if rt, ok := r.rateCache[key]; ok {
		r.mu.RUnlock()
		return rt, nil
	}
	r.mu.RUnlock()

	rows, err := r.repo.ListRates(ctx, rateCardID, destinationID)
	if err != nil {
		return Rate{}, err
	}

	now := r.clock().UTC()
	var best Rate
	found := false
	for _, rt := range rows {
		if !rt.ActiveAt(now) {
			continue
		}
		if !found || rt.EffectiveFrom.After(best.EffectiveFrom) {
			best = rt
			found = true
		}
	}
	if !found {
		return Rate{}, ErrRateNotFound
	}

	r.mu.Lock()
	r.rateCache[key] = best
	r.mu.Unlock()
	return best, nil
}

// InvalidateRateCard drops memoized rates for a card. Must be called whenever
// that card's rates are bulk-replaced.
func (r *Resolver) InvalidateRateCard(rateCardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.rateCache {
		if k.rateCardID == rateCardID {
			delete(r.rateCache, k)
		}
	}
}

// InvalidateDestinations forces a reload of the prefix table on next use.
func (r *Resolver) InvalidateDestinations() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destLoaded = false
	r.destinations = nil
	r.numberCache = make(map[string]Destination)
}

func (r *Resolver) ensureDestinations(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.destLoaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	rows, err := r.repo.ListDestinations(ctx)
	if err != nil {
		return err
	}

	active := make([]Destination, 0, len(rows))
	for _, d := range rows {
		if d.Status != DestinationStatusActive {
			continue
		}
		if d.Prefix == "" {
			continue
		}
		active = append(active, d)
	}
	// Stable sort keeps first-encountered order within equal prefix lengths.
	sort.SliceStable(active, func(i, j int) bool {
		return len(active[i].Prefix) > len(active[j].Prefix)
	})

	r.mu.Lock()
	r.destinations = active
	r.destLoaded = true
	r.mu.Unlock()
	return nil
}

// BillableSeconds applies the minimum duration and rounds up to the billing
// increment.
func BillableSeconds(actualSec, minSec, incrementSec int) int {
	if actualSec <= 0 {
		return 0
	}
	if minSec < 0 {
		minSec = 0
	}
	if incrementSec <= 0 {
		incrementSec = 60
	}

	if actualSec < minSec {
		return minSec
	}

	// round up to nearest increment
	q := actualSec / incrementSec
	if actualSec%incrementSec != 0 {
		q++
	}
	return q * incrementSec
}
