package campaign

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu        sync.Mutex
	campaigns map[string]*Campaign
	purged    []string
	inserted  map[string][]string
	insertErr error
}

func newFakeStore(cs ...Campaign) *fakeStore {
	s := &fakeStore{campaigns: map[string]*Campaign{}, inserted: map[string][]string{}}
	for i := range cs {
		c := cs[i]
		s.campaigns[c.ID] = &c
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, tenantID, id string) (Campaign, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return Campaign{}, false, nil
	}
	return *c, true, nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (Campaign, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return Campaign{}, false, nil
	}
	return *c, true, nil
}

func (s *fakeStore) listByStatus(status Status) []Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Campaign
	for _, c := range s.campaigns {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	return out
}

func (s *fakeStore) ListScheduled(context.Context) ([]Campaign, error) {
	return s.listByStatus(StatusScheduled), nil
}

func (s *fakeStore) ListRunning(context.Context) ([]Campaign, error) {
	return s.listByStatus(StatusRunning), nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, to Status, from ...Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			return nil
		}
	}
	return ErrNotFound
}

func (s *fakeStore) MarkStarted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.Status != StatusScheduled {
		return ErrNotFound
	}
	c.Status = StatusRunning
	c.StartedAt = &at
	c.LastActivityAt = &at
	c.CallSeq = 0
	return nil
}

func (s *fakeStore) MarkCompleted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.Status != StatusRunning {
		return ErrNotFound
	}
	c.Status = StatusCompleted
	c.CompletedAt = &at
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id, reason string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = StatusFailed
	c.LastError = reason
	return nil
}

func (s *fakeStore) TouchActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[id]; ok {
		c.LastActivityAt = &at
	}
	return nil
}

func (s *fakeStore) PurgeRecords(_ context.Context, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purged = append(s.purged, campaignID)
	return nil
}

func (s *fakeStore) BulkInsertRecords(_ context.Context, campaignID string, numbers []string, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.inserted[campaignID] = numbers
	return len(numbers), nil
}

type fakeDialer struct {
	mu        sync.Mutex
	started   []string
	stopped   []string
	inFlight  map[string]int
	exhausted map[string]bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{inFlight: map[string]int{}, exhausted: map[string]bool{}}
}

func (d *fakeDialer) Start(_ context.Context, c Campaign) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = append(d.started, c.ID)
	return nil
}

func (d *fakeDialer) Stop(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = append(d.stopped, id)
}

func (d *fakeDialer) InFlight(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight[id]
}

func (d *fakeDialer) Exhausted(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exhausted[id]
}

type fakeDedup struct {
	cleared []string
}

func (d *fakeDedup) Clear(_ context.Context, campaignID string) error {
	d.cleared = append(d.cleared, campaignID)
	return nil
}

type fakeNotifier struct {
	msgs []string
}

func (n *fakeNotifier) Enqueue(recipient, text string) {
	n.msgs = append(n.msgs, recipient+": "+text)
}

func testScheduler(store Store, dialer Dialer, dedup DedupStore, notifier Notifier, now time.Time) *Scheduler {
	s := NewScheduler(store, dialer, dedup, notifier, time.Minute, nil)
	s.clock = func() time.Time { return now }
	return s
}

func TestScheduler_StartsDueCampaign(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(Campaign{
		ID:          "c1",
		TenantID:    "t1",
		Name:        "launch",
		Status:      StatusScheduled,
		ScheduledAt: now.Add(-time.Minute),
		NumberList:  []string{"14155550100", "14155550101"},
	})
	dialer := newFakeDialer()
	dedup := &fakeDedup{}

	s := testScheduler(store, dialer, dedup, &fakeNotifier{}, now)
	s.Tick(context.Background())

	c, _, _ := store.GetByID(context.Background(), "c1")
	if c.Status != StatusRunning {
		t.Fatalf("status = %s, want running", c.Status)
	}
	if len(dedup.cleared) != 1 || dedup.cleared[0] != "c1" {
		t.Fatalf("dedup cleared = %v, want [c1]", dedup.cleared)
	}
	if len(store.purged) != 1 {
		t.Fatalf("records not purged before insert")
	}
	if got := store.inserted["c1"]; len(got) != 2 {
		t.Fatalf("inserted = %v, want 2 records", got)
	}
	if len(dialer.started) != 1 || dialer.started[0] != "c1" {
		t.Fatalf("dialer started = %v", dialer.started)
	}
}

func TestScheduler_NotDueYet(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(Campaign{
		ID:          "c1",
		Status:      StatusScheduled,
		ScheduledAt: now.Add(30 * time.Minute),
		NumberList:  []string{"14155550100"},
	})
	dialer := newFakeDialer()

	s := testScheduler(store, dialer, &fakeDedup{}, &fakeNotifier{}, now)
	s.Tick(context.Background())

	c, _, _ := store.GetByID(context.Background(), "c1")
	if c.Status != StatusScheduled {
		t.Fatalf("status = %s, want scheduled", c.Status)
	}
	if len(dialer.started) != 0 {
		t.Fatalf("dialer should not have started anything")
	}
}

func TestScheduler_TimezoneDue(t *testing.T) {
	// 12:00 UTC is 07:00 in New York during January. A campaign scheduled
	// for 08:00 New York wall clock is not yet due.
	now := time.Date(2026, 1, 12, 12, 0, 0, 0, time.UTC)
	sched := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	store := newFakeStore(Campaign{
		ID:          "c1",
		Status:      StatusScheduled,
		ScheduledAt: sched,
		Timezone:    "America/New_York",
		NumberList:  []string{"14155550100"},
	})
	dialer := newFakeDialer()

	s := testScheduler(store, dialer, &fakeDedup{}, &fakeNotifier{}, now)
	s.Tick(context.Background())

	if len(dialer.started) != 0 {
		t.Fatalf("campaign started before local wall clock time")
	}

	// An hour later the local clock passes 08:00.
	s.clock = func() time.Time { return now.Add(time.Hour + time.Minute) }
	s.Tick(context.Background())
	if len(dialer.started) != 1 {
		t.Fatalf("campaign not started after local wall clock time")
	}
}

func TestScheduler_EmptyNumberListFails(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(Campaign{
		ID:          "c1",
		Status:      StatusScheduled,
		ScheduledAt: now.Add(-time.Minute),
	})
	s := testScheduler(store, newFakeDialer(), &fakeDedup{}, &fakeNotifier{}, now)
	s.Tick(context.Background())

	c, _, _ := store.GetByID(context.Background(), "c1")
	if c.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", c.Status)
	}
}

func TestScheduler_CompletesDrainedCampaign(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	started := now.Add(-10 * time.Minute)
	store := newFakeStore(Campaign{
		ID:              "c1",
		Name:            "launch",
		Status:          StatusRunning,
		StartedAt:       &started,
		LastActivityAt:  &started,
		NotifyRecipient: "ops-chat",
		TotalNumbers:    2,
		DialedCount:     2,
		AnsweredCount:   1,
	})
	dialer := newFakeDialer()
	dialer.exhausted["c1"] = true
	notifier := &fakeNotifier{}

	s := testScheduler(store, dialer, &fakeDedup{}, notifier, now)
	s.Tick(context.Background())

	c, _, _ := store.GetByID(context.Background(), "c1")
	if c.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", c.Status)
	}
	if len(notifier.msgs) != 1 || !strings.Contains(notifier.msgs[0], "ops-chat") {
		t.Fatalf("summary notification = %v", notifier.msgs)
	}
	if len(dialer.stopped) != 1 {
		t.Fatalf("dialer not stopped on completion")
	}
}

func TestScheduler_InFlightBlocksCompletion(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	started := now.Add(-10 * time.Minute)
	store := newFakeStore(Campaign{
		ID:             "c1",
		Status:         StatusRunning,
		StartedAt:      &started,
		LastActivityAt: &started,
	})
	dialer := newFakeDialer()
	dialer.exhausted["c1"] = true
	dialer.inFlight["c1"] = 1

	s := testScheduler(store, dialer, &fakeDedup{}, &fakeNotifier{}, now)
	s.Tick(context.Background())

	c, _, _ := store.GetByID(context.Background(), "c1")
	if c.Status != StatusRunning {
		t.Fatalf("status = %s, want running while calls are in flight", c.Status)
	}
}

func TestScheduler_MissedStartWindowFails(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(Campaign{
		ID:          "c1",
		Status:      StatusScheduled,
		ScheduledAt: now.Add(-3 * time.Hour),
		NumberList:  []string{"14155550100"},
	})
	dialer := newFakeDialer()

	s := testScheduler(store, dialer, &fakeDedup{}, &fakeNotifier{}, now)
	s.Tick(context.Background())

	c, _, _ := store.GetByID(context.Background(), "c1")
	if c.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", c.Status)
	}
	if len(dialer.started) != 0 {
		t.Fatalf("dialer started a campaign past its start window")
	}
}

func TestScheduler_EndTimePassedCompletes(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	started := now.Add(-4 * time.Hour)
	end := now.Add(-time.Minute)
	store := newFakeStore(Campaign{
		ID:              "c1",
		Name:            "launch",
		Status:          StatusRunning,
		StartedAt:       &started,
		ScheduledEndAt:  &end,
		NotifyRecipient: "ops-chat",
	})
	dialer := newFakeDialer()
	dialer.inFlight["c1"] = 1

	s := testScheduler(store, dialer, &fakeDedup{}, &fakeNotifier{}, now)
	s.Tick(context.Background())

	c, _, _ := store.GetByID(context.Background(), "c1")
	if c.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed after end time", c.Status)
	}
	if len(dialer.stopped) != 1 {
		t.Fatalf("dialer not stopped at end time")
	}
}

func TestScheduler_NoEndTimeKeepsRunning(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	started := now.Add(-4 * time.Hour)
	store := newFakeStore(Campaign{
		ID:        "c1",
		Status:    StatusRunning,
		StartedAt: &started,
	})
	s := testScheduler(store, newFakeDialer(), &fakeDedup{}, &fakeNotifier{}, now)
	s.Tick(context.Background())

	c, _, _ := store.GetByID(context.Background(), "c1")
	if c.Status != StatusRunning {
		t.Fatalf("status = %s, want running", c.Status)
	}
}

func TestScheduler_SetupErrorFailsCampaign(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(Campaign{
		ID:          "c1",
		Status:      StatusScheduled,
		ScheduledAt: now.Add(-time.Minute),
		NumberList:  []string{"14155550100"},
	})
	store.insertErr = errors.New("relation does not exist")
	dialer := newFakeDialer()

	s := testScheduler(store, dialer, &fakeDedup{}, &fakeNotifier{}, now)
	s.Tick(context.Background())

	c, _, _ := store.GetByID(context.Background(), "c1")
	if c.Status != StatusFailed {
		t.Fatalf("status = %s, want failed on setup error", c.Status)
	}
	if c.LastError == "" {
		t.Fatalf("setup error not retained on campaign")
	}
	if len(dialer.started) != 0 {
		t.Fatalf("dialer started despite setup error")
	}
}

func TestScheduler_PauseResumeCancel(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(Campaign{ID: "c1", TenantID: "t1", Status: StatusRunning})
	dialer := newFakeDialer()
	s := testScheduler(store, dialer, &fakeDedup{}, &fakeNotifier{}, now)
	ctx := context.Background()

	if err := s.Pause(ctx, "t1", "c1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if c, _, _ := store.GetByID(ctx, "c1"); c.Status != StatusPaused {
		t.Fatalf("status after pause = %s", c.Status)
	}

	if err := s.Resume(ctx, "t1", "c1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if c, _, _ := store.GetByID(ctx, "c1"); c.Status != StatusRunning {
		t.Fatalf("status after resume = %s", c.Status)
	}
	if len(dialer.started) != 1 {
		t.Fatalf("dialer not restarted on resume")
	}

	if err := s.Cancel(ctx, "t1", "c1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if c, _, _ := store.GetByID(ctx, "c1"); c.Status != StatusCancelled {
		t.Fatalf("status after cancel = %s", c.Status)
	}

	// Cancel is not legal from a terminal state.
	if err := s.Cancel(ctx, "t1", "c1"); err == nil {
		t.Fatalf("second cancel should fail")
	}

	// Wrong tenant never sees the campaign.
	if err := s.Pause(ctx, "t2", "c1"); err == nil {
		t.Fatalf("cross-tenant pause should fail")
	}
}

func TestScheduler_ResumeAfterEndCompletes(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	end := now.Add(-time.Minute)
	store := newFakeStore(Campaign{
		ID:             "c1",
		TenantID:       "t1",
		Status:         StatusPaused,
		ScheduledEndAt: &end,
	})
	dialer := newFakeDialer()
	s := testScheduler(store, dialer, &fakeDedup{}, &fakeNotifier{}, now)

	if err := s.Resume(context.Background(), "t1", "c1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	c, _, _ := store.GetByID(context.Background(), "c1")
	if c.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed when end time passed", c.Status)
	}
	if len(dialer.started) != 0 {
		t.Fatalf("dialer restarted past the end time")
	}
}

func TestEncodeDecodeNumbers(t *testing.T) {
	in := []string{"14155550100", "442071234567"}
	out := decodeNumbers(encodeNumbers(in))
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Fatalf("round trip = %v", out)
	}
	if decodeNumbers("") != nil {
		t.Fatalf("empty string should decode to nil")
	}
}
