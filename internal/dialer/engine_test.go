package dialer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"dialer-platform/internal/ami"
	"dialer-platform/internal/campaign"
)

type memStore struct {
	mu       sync.Mutex
	pending  []campaign.CallRecord
	statuses map[string]campaign.RecordStatus
	causes   map[string]string
	pressed  map[string]string
	answered map[string]time.Time
	counters map[campaign.Counter]int
	seq      int64
}

func newMemStore(numbers ...string) *memStore {
	s := &memStore{
		statuses: map[string]campaign.RecordStatus{},
		causes:   map[string]string{},
		pressed:  map[string]string{},
		answered: map[string]time.Time{},
		counters: map[campaign.Counter]int{},
	}
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, num := range numbers {
		s.pending = append(s.pending, campaign.CallRecord{
			ID:        fmt.Sprintf("rec-%d", i),
			Number:    num,
			Status:    campaign.RecordPending,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return s
}

func (s *memStore) ListPendingRecords(context.Context, string) ([]campaign.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]campaign.CallRecord, len(s.pending))
	copy(out, s.pending)
	return out, nil
}

func (s *memStore) MarkRecordCalling(_ context.Context, recordID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[recordID] = campaign.RecordCalling
	return nil
}

func (s *memStore) MarkRecordResult(_ context.Context, recordID string, status campaign.RecordStatus, cause string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[recordID] = status
	s.causes[recordID] = cause
	return nil
}

func (s *memStore) MarkRecordPressed(_ context.Context, _, number, digit string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed[number] = digit
	return true, nil
}

func (s *memStore) MarkRecordAnswered(_ context.Context, recordID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answered[recordID] = at
	return nil
}

func (s *memStore) NextCallSeq(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *memStore) IncrementCounter(_ context.Context, _ string, counter campaign.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counter]++
	return nil
}

func (s *memStore) TouchActivity(context.Context, string, time.Time) error { return nil }

func (s *memStore) counter(c campaign.Counter) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[c]
}

func (s *memStore) status(recordID string) campaign.RecordStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[recordID]
}

type fakeOriginator struct {
	mu       sync.Mutex
	requests []ami.OriginateRequest
	// failing channels are rejected synchronously.
	failing map[string]bool
}

func (o *fakeOriginator) fail(channelSubstr string) {
	if o.failing == nil {
		o.failing = map[string]bool{}
	}
	o.failing[channelSubstr] = true
}

func (o *fakeOriginator) Originate(_ context.Context, req ami.OriginateRequest) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, req)
	for substr := range o.failing {
		if strings.Contains(req.Channel, substr) {
			return errors.New("switch rejected channel")
		}
	}
	return nil
}

func (o *fakeOriginator) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.requests)
}

func (o *fakeOriginator) last() ami.OriginateRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[len(o.requests)-1]
}

func testCampaign(numbers []string) campaign.Campaign {
	return campaign.Campaign{
		ID:              "c1",
		TenantID:        "t1",
		AccountID:       "a1",
		Name:            "launch",
		Status:          campaign.StatusRunning,
		NumberList:      numbers,
		CallerID:        "14155550199",
		Trunk:           "trunk-a",
		RoutingType:     campaign.RoutingSIPTrunk,
		IVRContext:      "campaign-ivr",
		DigitOfInterest: "1",
	}
}

func TestCleanNumber(t *testing.T) {
	cases := map[string]string{
		"+1 (415) 555-0100": "14155550100",
		"14155550100":       "14155550100",
		"abc":               "",
		"":                  "",
	}
	for in, want := range cases {
		if got := CleanNumber(in); got != want {
			t.Errorf("CleanNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRotateCallerID(t *testing.T) {
	if got := rotateCallerID("14155550199", "7777"); got != "14155557777" {
		t.Fatalf("rotateCallerID = %q", got)
	}
	if got := rotateCallerID("123", "7777"); got != "7777" {
		t.Fatalf("short base: got %q", got)
	}
}

func TestEngine_DialsFIFO(t *testing.T) {
	store := newMemStore("14155550100", "14155550101", "14155550102")
	sw := &fakeOriginator{}
	e := NewEngine(sw, store, nil, nil)

	ctx := context.Background()
	if err := e.Start(ctx, testCampaign(nil)); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// One call at a time: Start places exactly the first call.
	if sw.count() != 1 {
		t.Fatalf("originations after start = %d, want 1", sw.count())
	}
	if !strings.Contains(sw.last().Channel, "14155550100") {
		t.Fatalf("first channel = %q", sw.last().Channel)
	}
	if e.InFlight("c1") != 1 {
		t.Fatalf("in flight = %d", e.InFlight("c1"))
	}

	// Finishing the call and advancing dials the next number in order.
	if _, ok := e.Finish(ctx, "14155550100"); !ok {
		t.Fatalf("Finish did not find the call")
	}
	e.DialNext(ctx, "c1")
	if !strings.Contains(sw.last().Channel, "14155550101") {
		t.Fatalf("second channel = %q", sw.last().Channel)
	}

	e.Finish(ctx, "14155550101")
	e.DialNext(ctx, "c1")
	if !strings.Contains(sw.last().Channel, "14155550102") {
		t.Fatalf("third channel = %q", sw.last().Channel)
	}

	e.Finish(ctx, "14155550102")
	e.DialNext(ctx, "c1")
	if sw.count() != 3 {
		t.Fatalf("originations = %d, want 3", sw.count())
	}
	if !e.Exhausted("c1") {
		t.Fatalf("queue should be exhausted")
	}
}

func TestEngine_SyncFailureAdvances(t *testing.T) {
	store := newMemStore("14155550100", "14155550101", "14155550102")
	sw := &fakeOriginator{}
	sw.fail("14155550100")
	sw.fail("14155550101")
	e := NewEngine(sw, store, nil, nil)

	ctx := context.Background()
	if err := e.Start(ctx, testCampaign(nil)); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The two rejected numbers are failed immediately and the third is
	// placed, all within one pass.
	if sw.count() != 3 {
		t.Fatalf("originations = %d, want 3", sw.count())
	}
	if got := store.status("rec-0"); got != campaign.RecordFailed {
		t.Fatalf("rec-0 status = %s", got)
	}
	if got := store.status("rec-1"); got != campaign.RecordFailed {
		t.Fatalf("rec-1 status = %s", got)
	}
	if got := store.counter(campaign.CounterFailed); got != 2 {
		t.Fatalf("failed counter = %d, want 2", got)
	}
	if got := store.counter(campaign.CounterDialed); got != 3 {
		t.Fatalf("dialed counter = %d, want 3", got)
	}
	if e.InFlight("c1") != 1 {
		t.Fatalf("in flight = %d, want 1", e.InFlight("c1"))
	}
}

func TestEngine_CallerIDRotation(t *testing.T) {
	numbers := make([]string, 0, 102)
	for i := 0; i < 102; i++ {
		numbers = append(numbers, fmt.Sprintf("1415555%04d", i))
	}
	store := newMemStore(numbers...)
	sw := &fakeOriginator{}
	e := NewEngine(sw, store, nil, nil)
	e.randDigits = func() string { return "7777" }

	ctx := context.Background()
	if err := e.Start(ctx, testCampaign(nil)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 101; i++ {
		num := fmt.Sprintf("1415555%04d", i)
		if _, ok := e.Finish(ctx, num); !ok {
			t.Fatalf("call %d not in flight", i)
		}
		e.DialNext(ctx, "c1")
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if len(sw.requests) != 102 {
		t.Fatalf("originations = %d, want 102", len(sw.requests))
	}
	// Calls 1..99 present the configured caller ID.
	if sw.requests[0].CallerID != "14155550199" {
		t.Fatalf("call 1 caller id = %q", sw.requests[0].CallerID)
	}
	if sw.requests[98].CallerID != "14155550199" {
		t.Fatalf("call 99 caller id = %q", sw.requests[98].CallerID)
	}
	// The 100th call rotates the last four digits and the rotation sticks.
	if sw.requests[99].CallerID != "14155557777" {
		t.Fatalf("call 100 caller id = %q", sw.requests[99].CallerID)
	}
	if sw.requests[100].CallerID != "14155557777" {
		t.Fatalf("call 101 caller id = %q", sw.requests[100].CallerID)
	}
}

func TestEngine_NoCallerIDNeverRotates(t *testing.T) {
	numbers := make([]string, 0, 101)
	for i := 0; i < 101; i++ {
		numbers = append(numbers, fmt.Sprintf("1415555%04d", i))
	}
	store := newMemStore(numbers...)
	sw := &fakeOriginator{}
	e := NewEngine(sw, store, nil, nil)
	e.randDigits = func() string { return "7777" }

	c := testCampaign(nil)
	c.CallerID = ""

	ctx := context.Background()
	if err := e.Start(ctx, c); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 100; i++ {
		num := fmt.Sprintf("1415555%04d", i)
		if _, ok := e.Finish(ctx, num); !ok {
			t.Fatalf("call %d not in flight", i)
		}
		e.DialNext(ctx, "c1")
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if len(sw.requests) != 101 {
		t.Fatalf("originations = %d, want 101", len(sw.requests))
	}
	// With no caller ID configured the counter never advances and no call
	// presents a rotated suffix.
	for i, req := range sw.requests {
		if req.CallerID != "" {
			t.Fatalf("call %d caller id = %q, want empty", i+1, req.CallerID)
		}
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.seq != 0 {
		t.Fatalf("call seq advanced to %d without a caller id", store.seq)
	}
}

func TestEngine_StopKeepsInFlight(t *testing.T) {
	store := newMemStore("14155550100", "14155550101")
	sw := &fakeOriginator{}
	e := NewEngine(sw, store, nil, nil)

	ctx := context.Background()
	if err := e.Start(ctx, testCampaign(nil)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Stop("c1")

	// The live call keeps its dial context for billing.
	dc, ok := e.Lookup("14155550100")
	if !ok {
		t.Fatalf("in-flight call lost on stop")
	}
	if dc.AccountID != "a1" || dc.TenantID != "t1" {
		t.Fatalf("dial context = %+v", dc)
	}

	// No further dialing happens after stop.
	e.DialNext(ctx, "c1")
	if sw.count() != 1 {
		t.Fatalf("originations after stop = %d, want 1", sw.count())
	}

	// Closing the last call clears the working set.
	e.Finish(ctx, "14155550100")
	if _, ok := e.Lookup("14155550100"); ok {
		t.Fatalf("working set not cleared after final hangup")
	}
}

func TestEngine_StartTwiceFails(t *testing.T) {
	store := newMemStore("14155550100")
	e := NewEngine(&fakeOriginator{}, store, nil, nil)
	ctx := context.Background()
	if err := e.Start(ctx, testCampaign(nil)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(ctx, testCampaign(nil)); err == nil {
		t.Fatalf("second Start should fail while running")
	}
}

func TestEngine_OriginateRequestShape(t *testing.T) {
	store := newMemStore("14155550100")
	sw := &fakeOriginator{}
	e := NewEngine(sw, store, nil, nil)

	c := testCampaign(nil)
	c.DialPrefix = "9"
	if err := e.Start(context.Background(), c); err != nil {
		t.Fatalf("Start: %v", err)
	}

	req := sw.last()
	if req.Channel != "SIP/trunk-a/914155550100" {
		t.Fatalf("channel = %q", req.Channel)
	}
	if req.Context != "campaign-ivr" || req.Exten != "14155550100" || req.Priority != 1 {
		t.Fatalf("dialplan target = %q/%q/%d", req.Context, req.Exten, req.Priority)
	}
	if req.Variables["CAMPAIGN_ID"] != "c1" || req.Variables["DIALED_NUMBER"] != "14155550100" {
		t.Fatalf("variables = %v", req.Variables)
	}
	if req.Variables["CALLER_ID"] != "14155550199" || req.Variables["DIGIT_OF_INTEREST"] != "1" {
		t.Fatalf("variables = %v", req.Variables)
	}
	if req.Variables["ROUTING_TYPE"] != "sip_trunk" || req.Variables["ROUTING_TARGET"] != "trunk-a" {
		t.Fatalf("variables = %v", req.Variables)
	}
	if req.Variables["IVR_CONTEXT"] != "campaign-ivr" {
		t.Fatalf("variables = %v", req.Variables)
	}
}

func TestNumbersMatch(t *testing.T) {
	if !numbersMatch("914155550100", "14155550100") {
		t.Fatalf("prefixed number should match")
	}
	if !numbersMatch("14155550100", "14155550100") {
		t.Fatalf("equal numbers should match")
	}
	if numbersMatch("100", "200") {
		t.Fatalf("short numbers should not suffix-match")
	}
}
