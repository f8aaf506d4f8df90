package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"dialer-platform/internal/ami"
	"dialer-platform/internal/campaign"
)

// rotateEvery is how many originations a caller ID lives before its last
// digits are rotated.
const rotateEvery = 100

// Originator places calls on the switch.
type Originator interface {
	Originate(ctx context.Context, req ami.OriginateRequest) error
}

// RecordStore is the slice of the campaign repository the engine uses.
// *campaign.Repository satisfies it.
type RecordStore interface {
	ListPendingRecords(ctx context.Context, campaignID string) ([]campaign.CallRecord, error)
	MarkRecordCalling(ctx context.Context, recordID string, at time.Time) error
	MarkRecordResult(ctx context.Context, recordID string, status campaign.RecordStatus, cause string, at time.Time) error
	NextCallSeq(ctx context.Context, campaignID string) (int64, error)
	IncrementCounter(ctx context.Context, campaignID string, counter campaign.Counter) error
	TouchActivity(ctx context.Context, campaignID string, at time.Time) error
}

// queueItem is one number waiting to be dialed.
type queueItem struct {
	RecordID string
	Number   string
}

// runState is a campaign's working set while it dials: the FIFO work queue,
// the in-flight calls keyed by normalized number, and the routing snapshot
// originations are built from.
type runState struct {
	c campaign.Campaign

	queue    []queueItem
	inFlight map[string]*DialContext

	// callerID is the current presented number. Rotated every rotateEvery
	// originations.
	callerID string

	exhausted bool
	stopped   bool
}

// Engine dials campaign numbers one at a time per campaign: each terminal
// call event triggers the next origination. All waiting numbers sit in an
// explicit FIFO queue loaded at campaign start.
type Engine struct {
	switchy Originator
	store   RecordStore
	slots   SlotGuard
	log     *slog.Logger

	clock func() time.Time
	// randDigits yields the rotated caller ID suffix. Injectable for tests.
	randDigits func() string

	mu   sync.Mutex
	runs map[string]*runState
}

// SlotGuard caps simultaneous originations per campaign. Nil-safe via
// NopSlotGuard.
type SlotGuard interface {
	Acquire(ctx context.Context, campaignID string, limit int) (bool, error)
	Release(ctx context.Context, campaignID string) error
}

// NopSlotGuard admits every origination.
type NopSlotGuard struct{}

func (NopSlotGuard) Acquire(context.Context, string, int) (bool, error) { return true, nil }
func (NopSlotGuard) Release(context.Context, string) error              { return nil }

func NewEngine(switchy Originator, store RecordStore, slots SlotGuard, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if slots == nil {
		slots = NopSlotGuard{}
	}
	return &Engine{
		switchy: switchy,
		store:   store,
		slots:   slots,
		log:     log,
		clock:   time.Now,
		randDigits: func() string {
			return fmt.Sprintf("%04d", rand.Intn(10000))
		},
		runs: map[string]*runState{},
	}
}

// CleanNumber strips everything but digits.
func CleanNumber(s string) string {
	return campaign.NormalizeNumber(s)
}

// Start loads the campaign's pending records into the work queue and places
// the first call. A restart after pause resumes from whatever is still
// pending.
func (e *Engine) Start(ctx context.Context, c campaign.Campaign) error {
	records, err := e.store.ListPendingRecords(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("load work queue: %w", err)
	}

	queue := make([]queueItem, 0, len(records))
	for _, rec := range records {
		num := CleanNumber(rec.Number)
		if num == "" {
			continue
		}
		queue = append(queue, queueItem{RecordID: rec.ID, Number: num})
	}

	e.mu.Lock()
	st, ok := e.runs[c.ID]
	if ok && !st.stopped {
		e.mu.Unlock()
		return fmt.Errorf("dialer: campaign %s already running", c.ID)
	}
	fresh := &runState{
		c:        c,
		queue:    queue,
		inFlight: map[string]*DialContext{},
		callerID: c.CallerID,
	}
	if ok {
		// A resumed campaign inherits calls still up from before the
		// pause so their hangups bill normally.
		fresh.inFlight = st.inFlight
	}
	e.runs[c.ID] = fresh
	e.mu.Unlock()

	e.log.Info("dialing started", "campaign_id", c.ID, "queued", len(queue))
	e.DialNext(ctx, c.ID)
	return nil
}

// Stop drops the campaign's work queue. In-flight calls keep their dial
// context until they hang up.
func (e *Engine) Stop(campaignID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.runs[campaignID]
	if !ok {
		return
	}
	st.stopped = true
	st.queue = nil
	if len(st.inFlight) == 0 {
		delete(e.runs, campaignID)
	}
}

func (e *Engine) InFlight(campaignID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.runs[campaignID]; ok {
		return len(st.inFlight)
	}
	return 0
}

func (e *Engine) Exhausted(campaignID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.runs[campaignID]; ok {
		return st.exhausted
	}
	return true
}

// DialNext pops work items off the queue until one origination is accepted by
// the switch. A synchronous rejection marks the record failed and moves on to
// the next number, so one bad number never stalls the campaign.
func (e *Engine) DialNext(ctx context.Context, campaignID string) {
	for {
		item, dc, ok := e.takeNext(ctx, campaignID)
		if !ok {
			return
		}

		now := e.clock().UTC()
		if err := e.store.MarkRecordCalling(ctx, item.RecordID, now); err != nil {
			e.log.Error("mark record calling", "record_id", item.RecordID, "err", err)
		}
		if err := e.store.IncrementCounter(ctx, campaignID, campaign.CounterDialed); err != nil {
			e.log.Error("increment dialed", "campaign_id", campaignID, "err", err)
		}
		if err := e.store.TouchActivity(ctx, campaignID, now); err != nil {
			e.log.Error("touch activity", "campaign_id", campaignID, "err", err)
		}

		err := e.switchy.Originate(ctx, e.buildOriginate(dc))
		if err == nil {
			e.log.Info("originated", "campaign_id", campaignID, "number", dc.Number, "seq", dc.Seq)
			return
		}

		// Synchronous failure: the switch never placed the call, so no
		// Hangup will arrive. Fail the record here and advance.
		e.log.Warn("originate failed", "campaign_id", campaignID, "number", dc.Number, "err", err)
		e.dropInFlight(campaignID, dc.Number)
		if merr := e.store.MarkRecordResult(ctx, item.RecordID, campaign.RecordFailed, err.Error(), e.clock().UTC()); merr != nil {
			e.log.Error("mark record failed", "record_id", item.RecordID, "err", merr)
		}
		if cerr := e.store.IncrementCounter(ctx, campaignID, campaign.CounterFailed); cerr != nil {
			e.log.Error("increment failed", "campaign_id", campaignID, "err", cerr)
		}
	}
}

// takeNext pops the queue head, assigns the origination sequence number,
// rotates the caller ID when due and registers the in-flight dial context.
func (e *Engine) takeNext(ctx context.Context, campaignID string) (queueItem, *DialContext, bool) {
	e.mu.Lock()
	st, ok := e.runs[campaignID]
	if !ok || st.stopped || len(st.queue) == 0 {
		if ok && len(st.queue) == 0 {
			st.exhausted = true
		}
		e.mu.Unlock()
		return queueItem{}, nil, false
	}
	item := st.queue[0]
	e.mu.Unlock()

	if st.c.ConcurrencyLimit > 0 {
		admitted, err := e.slots.Acquire(ctx, campaignID, st.c.ConcurrencyLimit)
		if err != nil {
			e.log.Error("acquire origination slot", "campaign_id", campaignID, "err", err)
		} else if !admitted {
			return queueItem{}, nil, false
		}
	}

	// The call counter exists to drive caller ID rotation, so it only
	// advances when a rotatable caller ID is configured.
	var seq int64
	if len(st.c.CallerID) >= 4 {
		var err error
		seq, err = e.store.NextCallSeq(ctx, campaignID)
		if err != nil {
			e.log.Error("next call seq", "campaign_id", campaignID, "err", err)
			seq = 0
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st.stopped || len(st.queue) == 0 || st.queue[0].RecordID != item.RecordID {
		if st.c.ConcurrencyLimit > 0 {
			if err := e.slots.Release(ctx, campaignID); err != nil {
				e.log.Error("release origination slot", "campaign_id", campaignID, "err", err)
			}
		}
		return queueItem{}, nil, false
	}
	st.queue = st.queue[1:]
	if len(st.queue) == 0 {
		st.exhausted = true
	}

	if seq > 0 && seq%rotateEvery == 0 {
		st.callerID = rotateCallerID(st.c.CallerID, e.randDigits())
		e.log.Info("caller id rotated", "campaign_id", campaignID, "caller_id", st.callerID, "seq", seq)
	}

	dc := &DialContext{
		CampaignID:      st.c.ID,
		CampaignName:    st.c.Name,
		TenantID:        st.c.TenantID,
		AccountID:       st.c.AccountID,
		RecordID:        item.RecordID,
		Number:          item.Number,
		CallerID:        st.callerID,
		DigitOfInterest: st.c.DigitOfInterest,
		NotifyRecipient: st.c.NotifyRecipient,
		Seq:             seq,
		OriginatedAt:    e.clock().UTC(),
	}
	st.inFlight[item.Number] = dc
	return item, dc, true
}

// rotateCallerID replaces the last four digits of the base caller ID. Short
// caller IDs are replaced wholesale.
func rotateCallerID(base, suffix string) string {
	if len(base) <= len(suffix) {
		return suffix
	}
	return base[:len(base)-len(suffix)] + suffix
}

func (e *Engine) buildOriginate(dc *DialContext) ami.OriginateRequest {
	e.mu.Lock()
	st := e.runs[dc.CampaignID]
	e.mu.Unlock()

	c := st.c
	dialed := c.DialPrefix + dc.Number

	var channel string
	switch c.RoutingType {
	case campaign.RoutingQueue:
		channel = fmt.Sprintf("Local/%s@%s", dialed, c.IVRContext)
	default:
		channel = fmt.Sprintf("SIP/%s/%s", c.Trunk, dialed)
	}

	exten := dc.Number
	if c.IVRExtension != "" {
		exten = c.IVRExtension
	}

	return ami.OriginateRequest{
		Channel:  channel,
		Context:  c.IVRContext,
		Exten:    exten,
		Priority: 1,
		CallerID: dc.CallerID,
		Timeout:  time.Minute,
		Variables: map[string]string{
			"CAMPAIGN_ID":       dc.CampaignID,
			"RECORD_ID":         dc.RecordID,
			"DIALED_NUMBER":     dc.Number,
			"CALLER_ID":         dc.CallerID,
			"DIGIT_OF_INTEREST": c.DigitOfInterest,
			"IVR_CONTEXT":       c.IVRContext,
			"IVR_EXTENSION":     c.IVRExtension,
			"ROUTING_TYPE":      string(c.RoutingType),
			"ROUTING_TARGET":    c.Trunk,
		},
	}
}

// numbersMatch tolerates a dial prefix on either side: event frames may
// carry the prefixed number while the working set is keyed by the bare one.
func numbersMatch(a, b string) bool {
	if a == b {
		return true
	}
	const minSuffix = 7
	if len(a) < minSuffix || len(b) < minSuffix {
		return false
	}
	return strings.HasSuffix(a, b) || strings.HasSuffix(b, a)
}

func (e *Engine) findCall(number string) (*runState, string, *DialContext) {
	for _, st := range e.runs {
		if dc, ok := st.inFlight[number]; ok {
			return st, number, dc
		}
	}
	for _, st := range e.runs {
		for key, dc := range st.inFlight {
			if numbersMatch(number, key) {
				return st, key, dc
			}
		}
	}
	return nil, "", nil
}

// Lookup returns the in-flight dial context for a number, searching every
// running campaign.
func (e *Engine) Lookup(number string) (*DialContext, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _, dc := e.findCall(number)
	return dc, dc != nil
}

// Finish removes a call from the working set and returns its dial context.
// The caller releases the origination slot and bills the call.
func (e *Engine) Finish(ctx context.Context, number string) (*DialContext, bool) {
	e.mu.Lock()
	st, key, dc := e.findCall(number)
	if dc == nil {
		e.mu.Unlock()
		return nil, false
	}
	delete(st.inFlight, key)
	if st.stopped && len(st.inFlight) == 0 {
		delete(e.runs, st.c.ID)
	}
	limit := st.c.ConcurrencyLimit
	e.mu.Unlock()

	if limit > 0 {
		if err := e.slots.Release(ctx, dc.CampaignID); err != nil {
			e.log.Error("release origination slot", "campaign_id", dc.CampaignID, "err", err)
		}
	}
	return dc, true
}

func (e *Engine) dropInFlight(campaignID, number string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.runs[campaignID]; ok {
		delete(st.inFlight, number)
	}
}
