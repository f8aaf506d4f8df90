package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dialer-platform/internal/ami"
	"dialer-platform/internal/billing"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/notify"
)

// Biller applies the billing outcome of one finished call.
type Biller interface {
	RateAndBill(ctx context.Context, outcome billing.CallOutcome) (billing.BillResult, error)
}

// Notifier accepts outbound notification text for a recipient.
type Notifier interface {
	Enqueue(recipient, text string)
}

// EventStore extends the engine's record store with the press and answer
// stamps.
type EventStore interface {
	RecordStore
	MarkRecordPressed(ctx context.Context, campaignID, number, digit string, at time.Time) (bool, error)
	MarkRecordAnswered(ctx context.Context, recordID string, at time.Time) error
}

// Reactor is the single consumer of switch events. Everything the dialer
// learns about a live call (answer, digit press, hangup) flows through here,
// one event at a time, so no per-call locking is needed downstream.
type Reactor struct {
	engine   *Engine
	store    EventStore
	biller   Biller
	pressed  PressedStore
	notifier Notifier
	log      *slog.Logger

	clock func() time.Time
}

func NewReactor(engine *Engine, store EventStore, biller Biller, pressed PressedStore, notifier Notifier, log *slog.Logger) *Reactor {
	if log == nil {
		log = slog.Default()
	}
	return &Reactor{
		engine:   engine,
		store:    store,
		biller:   biller,
		pressed:  pressed,
		notifier: notifier,
		log:      log,
		clock:    time.Now,
	}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (r *Reactor) Run(ctx context.Context, events <-chan ami.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Handle(ctx, ev)
		}
	}
}

// Handle processes one event.
func (r *Reactor) Handle(ctx context.Context, ev ami.Event) {
	switch ev.Name {
	case ami.EventDTMFEnd:
		r.onDTMF(ctx, ev)
	case ami.EventOriginateResponse:
		r.onOriginateResponse(ctx, ev)
	case ami.EventHangup:
		r.onHangup(ctx, ev)
	}
}

func (r *Reactor) onDTMF(ctx context.Context, ev ami.Event) {
	number := dialedNumber(ev)
	if number == "" {
		return
	}
	dc, ok := r.engine.Lookup(number)
	if !ok {
		return
	}
	r.touch(ctx, dc.CampaignID)

	digit := ev.Digit()
	if digit == "" {
		return
	}

	// Only the first press per number counts until the dedup set is
	// cleared at the next campaign start.
	first, err := r.pressed.MarkPressed(ctx, dc.CampaignID, dc.Number)
	if err != nil {
		r.log.Error("press dedup", "campaign_id", dc.CampaignID, "number", dc.Number, "err", err)
		return
	}
	if !first {
		r.log.Debug("repeat press ignored", "campaign_id", dc.CampaignID, "number", dc.Number, "digit", digit)
		return
	}

	now := r.clock().UTC()
	if _, err := r.store.MarkRecordPressed(ctx, dc.CampaignID, dc.Number, digit, now); err != nil {
		r.log.Error("mark record pressed", "campaign_id", dc.CampaignID, "number", dc.Number, "err", err)
	}

	if dc.DigitOfInterest != "" && digit == dc.DigitOfInterest {
		dc.Pressed = true
		if err := r.store.IncrementCounter(ctx, dc.CampaignID, campaign.CounterPressed); err != nil {
			r.log.Error("increment pressed", "campaign_id", dc.CampaignID, "err", err)
		}
		r.log.Info("digit of interest pressed", "campaign_id", dc.CampaignID, "number", dc.Number, "digit", digit)
		if r.notifier != nil && dc.NotifyRecipient != "" {
			text := fmt.Sprintf("%s pressed %s in campaign %q", notify.DisplayNumber(dc.Number), digit, dc.CampaignName)
			r.notifier.Enqueue(dc.NotifyRecipient, text)
		}
		return
	}

	r.log.Info("other digit pressed", "campaign_id", dc.CampaignID, "number", dc.Number, "digit", digit)
	if r.notifier != nil && dc.NotifyRecipient != "" {
		text := fmt.Sprintf("%s pressed unexpected digit %s in campaign %q", notify.DisplayNumber(dc.Number), digit, dc.CampaignName)
		r.notifier.Enqueue(dc.NotifyRecipient, text)
	}
}

func (r *Reactor) onOriginateResponse(ctx context.Context, ev ami.Event) {
	number := dialedNumber(ev)
	if number == "" {
		return
	}

	if ev.Success() {
		dc, ok := r.engine.Lookup(number)
		if !ok {
			return
		}
		r.touch(ctx, dc.CampaignID)
		now := r.clock().UTC()
		dc.AnsweredAt = &now
		if err := r.store.MarkRecordAnswered(ctx, dc.RecordID, now); err != nil {
			r.log.Error("mark record answered", "record_id", dc.RecordID, "err", err)
		}
		if err := r.store.IncrementCounter(ctx, dc.CampaignID, campaign.CounterAnswered); err != nil {
			r.log.Error("increment answered", "campaign_id", dc.CampaignID, "err", err)
		}
		return
	}

	// Failed origination: the callee never answered, no Hangup will come
	// for this attempt. Close it out here and move the queue along.
	dc, ok := r.engine.Finish(ctx, number)
	if !ok {
		return
	}
	r.touch(ctx, dc.CampaignID)
	now := r.clock().UTC()
	cause := ev.CauseText()
	if cause == "" {
		cause = "originate failed"
	}
	if err := r.store.MarkRecordResult(ctx, dc.RecordID, campaign.RecordFailed, cause, now); err != nil {
		r.log.Error("mark record failed", "record_id", dc.RecordID, "err", err)
	}
	if err := r.store.IncrementCounter(ctx, dc.CampaignID, campaign.CounterFailed); err != nil {
		r.log.Error("increment failed", "campaign_id", dc.CampaignID, "err", err)
	}
	r.bill(ctx, dc, now, false)
	r.engine.DialNext(ctx, dc.CampaignID)
}

func (r *Reactor) onHangup(ctx context.Context, ev ami.Event) {
	number := dialedNumber(ev)
	if number == "" {
		return
	}
	dc, ok := r.engine.Finish(ctx, number)
	if !ok {
		return
	}
	r.touch(ctx, dc.CampaignID)
	now := r.clock().UTC()
	answered := dc.AnsweredAt != nil

	// With a digit of interest configured, only a press counts as success.
	// Without one, an answered call is a success.
	success := answered
	if dc.DigitOfInterest != "" {
		success = dc.Pressed
	}

	status := campaign.RecordFailed
	if success {
		status = campaign.RecordSuccess
	}
	if err := r.store.MarkRecordResult(ctx, dc.RecordID, status, ev.CauseText(), now); err != nil {
		r.log.Error("mark record result", "record_id", dc.RecordID, "err", err)
	}
	if !answered {
		if err := r.store.IncrementCounter(ctx, dc.CampaignID, campaign.CounterFailed); err != nil {
			r.log.Error("increment failed", "campaign_id", dc.CampaignID, "err", err)
		}
	}

	r.bill(ctx, dc, now, answered)
	r.engine.DialNext(ctx, dc.CampaignID)
}

func (r *Reactor) bill(ctx context.Context, dc *DialContext, endedAt time.Time, answered bool) {
	if r.biller == nil {
		return
	}
	duration := 0
	if answered && dc.AnsweredAt != nil {
		duration = int(endedAt.Sub(*dc.AnsweredAt) / time.Second)
		if duration < 0 {
			duration = 0
		}
	}
	outcome := billing.CallOutcome{
		TenantID:        dc.TenantID,
		AccountID:       dc.AccountID,
		CampaignID:      dc.CampaignID,
		CallRecordID:    dc.RecordID,
		Number:          dc.Number,
		Answered:        answered,
		StartedAt:       &dc.OriginatedAt,
		AnsweredAt:      dc.AnsweredAt,
		EndedAt:         endedAt,
		DurationSeconds: duration,
	}
	res, err := r.biller.RateAndBill(ctx, outcome)
	if err != nil {
		r.log.Error("rate and bill", "campaign_id", dc.CampaignID, "number", dc.Number, "err", err)
		return
	}
	if res.Charged {
		r.log.Info("call billed",
			"campaign_id", dc.CampaignID, "number", dc.Number,
			"billable_seconds", res.BillableSeconds, "charge_minor", res.ChargeMinor, "balance_minor", res.NewBalanceMinor)
	} else if res.Reason != "" && res.Reason != billing.ReasonNotAnswered {
		r.log.Warn("call not billed", "campaign_id", dc.CampaignID, "number", dc.Number, "reason", res.Reason)
	}
}

func (r *Reactor) touch(ctx context.Context, campaignID string) {
	if err := r.store.TouchActivity(ctx, campaignID, r.clock().UTC()); err != nil {
		r.log.Error("touch activity", "campaign_id", campaignID, "err", err)
	}
}

// dialedNumber extracts the callee number from an event frame. The exten is
// preferred; channel names like "SIP/trunk-a/14155550100-0000002f" are the
// fallback.
func dialedNumber(ev ami.Event) string {
	if ex := CleanNumber(ev.Exten()); len(ex) >= 7 {
		return ex
	}
	ch := ev.Channel()
	if ch == "" {
		return ""
	}
	if i := strings.LastIndex(ch, "/"); i >= 0 {
		ch = ch[i+1:]
	}
	if i := strings.IndexByte(ch, '@'); i >= 0 {
		ch = ch[:i]
	}
	if i := strings.LastIndex(ch, "-"); i >= 0 {
		ch = ch[:i]
	}
	return CleanNumber(ch)
}
