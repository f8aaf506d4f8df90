package dialer

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// PressedStore remembers which numbers already had their digit press counted
// within a campaign run, so repeated presses on the same call (or a replayed
// event) fire one notification, not many.
type PressedStore interface {
	// MarkPressed records the press and reports whether it was the first
	// one for this number in this campaign run.
	MarkPressed(ctx context.Context, campaignID, number string) (bool, error)
	// Clear forgets the campaign's presses. Called on campaign start.
	Clear(ctx context.Context, campaignID string) error
}

// RedisPressedStore keeps press state in a redis set per campaign, so dedup
// survives process restarts mid-run.
type RedisPressedStore struct {
	rdb *redis.Client
}

func NewRedisPressedStore(rdb *redis.Client) *RedisPressedStore {
	return &RedisPressedStore{rdb: rdb}
}

func pressedKey(campaignID string) string {
	return fmt.Sprintf("dialer:pressed:%s", campaignID)
}

func (s *RedisPressedStore) MarkPressed(ctx context.Context, campaignID, number string) (bool, error) {
	added, err := s.rdb.SAdd(ctx, pressedKey(campaignID), number).Result()
	if err != nil {
		return false, fmt.Errorf("mark pressed: %w", err)
	}
	return added == 1, nil
}

func (s *RedisPressedStore) Clear(ctx context.Context, campaignID string) error {
	if err := s.rdb.Del(ctx, pressedKey(campaignID)).Err(); err != nil {
		return fmt.Errorf("clear pressed: %w", err)
	}
	return nil
}

// MemoryPressedStore is an in-process PressedStore for tests and single-node
// setups without redis.
type MemoryPressedStore struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

func NewMemoryPressedStore() *MemoryPressedStore {
	return &MemoryPressedStore{sets: map[string]map[string]struct{}{}}
}

func (s *MemoryPressedStore) MarkPressed(_ context.Context, campaignID, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[campaignID]
	if !ok {
		set = map[string]struct{}{}
		s.sets[campaignID] = set
	}
	if _, seen := set[number]; seen {
		return false, nil
	}
	set[number] = struct{}{}
	return true, nil
}

func (s *MemoryPressedStore) Clear(_ context.Context, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, campaignID)
	return nil
}
