package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// stalenessWindow is how far past its start a scheduled campaign may linger
// before the scheduler fails it instead of starting it.
const stalenessWindow = time.Hour

// Dialer is the slice of the dispatch engine the scheduler drives.
type Dialer interface {
	// Start loads the campaign's pending records and begins dialing.
	Start(ctx context.Context, c Campaign) error
	// Stop tears down the campaign's working set. In-flight calls keep
	// their dial context and finish billing normally.
	Stop(campaignID string)
	// InFlight reports calls originated but not yet hung up.
	InFlight(campaignID string) int
	// Exhausted reports whether the work queue has been drained.
	Exhausted(campaignID string) bool
}

// DedupStore clears the per-campaign set of numbers whose digit press was
// already counted.
type DedupStore interface {
	Clear(ctx context.Context, campaignID string) error
}

// Notifier accepts outbound notification text for a recipient.
type Notifier interface {
	Enqueue(recipient, text string)
}

// Store is the slice of the repository the scheduler uses. *Repository
// satisfies it.
type Store interface {
	Get(ctx context.Context, tenantID, id string) (Campaign, bool, error)
	GetByID(ctx context.Context, id string) (Campaign, bool, error)
	ListScheduled(ctx context.Context) ([]Campaign, error)
	ListRunning(ctx context.Context) ([]Campaign, error)
	UpdateStatus(ctx context.Context, id string, to Status, from ...Status) error
	MarkStarted(ctx context.Context, id string, at time.Time) error
	MarkCompleted(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
	TouchActivity(ctx context.Context, id string, at time.Time) error
	PurgeRecords(ctx context.Context, campaignID string) error
	BulkInsertRecords(ctx context.Context, campaignID string, numbers []string, at time.Time) (int, error)
}

// Scheduler owns the campaign lifecycle: it starts due campaigns, completes
// drained or timed-out ones and fails those that missed their start window.
// One tick loop handles all campaigns.
type Scheduler struct {
	repo     Store
	dialer   Dialer
	dedup    DedupStore
	notifier Notifier
	log      *slog.Logger

	tick  time.Duration
	clock func() time.Time
}

func NewScheduler(repo Store, dialer Dialer, dedup DedupStore, notifier Notifier, tick time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		repo:     repo,
		dialer:   dialer,
		dedup:    dedup,
		notifier: notifier,
		log:      log,
		tick:     tick,
		clock:    time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.tick)
	defer t.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock().UTC()

	scheduled, err := s.repo.ListScheduled(ctx)
	if err != nil {
		s.log.Error("list scheduled campaigns", "err", err)
	} else {
		for _, c := range scheduled {
			sched := s.startTime(c)
			if now.Before(sched) {
				continue
			}
			if now.Sub(sched) > stalenessWindow {
				s.log.Warn("campaign missed its start window", "campaign_id", c.ID, "scheduled_at", sched)
				if err := s.repo.MarkFailed(ctx, c.ID, "start window elapsed", now); err != nil {
					s.log.Error("mark campaign failed", "campaign_id", c.ID, "err", err)
				}
				continue
			}
			if err := s.start(ctx, c, now); err != nil {
				s.log.Error("start campaign", "campaign_id", c.ID, "err", err)
			}
		}
	}

	running, err := s.repo.ListRunning(ctx)
	if err != nil {
		s.log.Error("list running campaigns", "err", err)
		return
	}
	for _, c := range running {
		s.reap(ctx, c, now)
	}
}

// location resolves the campaign's declared timezone, falling back to UTC.
func (s *Scheduler) location(c Campaign) *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		s.log.Warn("bad campaign timezone, using UTC", "campaign_id", c.ID, "timezone", c.Timezone)
		return time.UTC
	}
	return loc
}

// wallClock reinterprets the stored timestamp's wall-clock fields in loc.
func wallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

// startTime is the instant the campaign becomes due.
func (s *Scheduler) startTime(c Campaign) time.Time {
	return wallClock(c.ScheduledAt, s.location(c))
}

// ended reports whether the campaign's optional scheduled end has passed.
func (s *Scheduler) ended(c Campaign, now time.Time) bool {
	if c.ScheduledEndAt == nil {
		return false
	}
	return now.After(wallClock(*c.ScheduledEndAt, s.location(c)))
}

// seed resets the campaign's working state: dedup and stale records cleared,
// fresh records inserted from the number list, counters zeroed.
func (s *Scheduler) seed(ctx context.Context, c Campaign, now time.Time) (int, error) {
	if len(c.NumberList) == 0 {
		return 0, errors.New("empty number list")
	}
	if err := s.dedup.Clear(ctx, c.ID); err != nil {
		return 0, fmt.Errorf("clear dedup state: %w", err)
	}
	if err := s.repo.PurgeRecords(ctx, c.ID); err != nil {
		return 0, err
	}
	inserted, err := s.repo.BulkInsertRecords(ctx, c.ID, c.NumberList, now)
	if err != nil {
		return 0, err
	}
	if err := s.repo.MarkStarted(ctx, c.ID, now); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// start seeds the campaign's working state and hands it to the dialer. Any
// failure in the sequence fails the campaign; the next tick does not retry.
func (s *Scheduler) start(ctx context.Context, c Campaign, now time.Time) error {
	inserted, err := s.seed(ctx, c, now)
	if err == nil {
		s.log.Info("campaign started", "campaign_id", c.ID, "name", c.Name, "records", inserted)
		c.Status = StatusRunning
		c.StartedAt = &now
		err = s.dialer.Start(ctx, c)
	}
	if err != nil {
		if merr := s.repo.MarkFailed(ctx, c.ID, err.Error(), s.clock().UTC()); merr != nil {
			s.log.Error("mark campaign failed", "campaign_id", c.ID, "err", merr)
		}
		return err
	}
	return nil
}

// reap completes a running campaign once its queue drains with no calls up,
// or once its scheduled end passes. Calls still up at the end keep their
// dial context and bill normally.
func (s *Scheduler) reap(ctx context.Context, c Campaign, now time.Time) {
	drained := s.dialer.Exhausted(c.ID) && s.dialer.InFlight(c.ID) == 0
	if !drained && !s.ended(c, now) {
		return
	}
	if err := s.repo.MarkCompleted(ctx, c.ID, now); err != nil {
		s.log.Error("mark campaign completed", "campaign_id", c.ID, "err", err)
		return
	}
	s.dialer.Stop(c.ID)
	s.log.Info("campaign completed", "campaign_id", c.ID, "name", c.Name)
	s.notifySummary(ctx, c)
}

func (s *Scheduler) notifySummary(ctx context.Context, c Campaign) {
	if s.notifier == nil || c.NotifyRecipient == "" {
		return
	}
	fresh, ok, err := s.repo.GetByID(ctx, c.ID)
	if err != nil || !ok {
		fresh = c
	}
	text := fmt.Sprintf("Campaign %q finished: %d dialed, %d answered, %d pressed, %d failed of %d numbers.",
		fresh.Name, fresh.DialedCount, fresh.AnsweredCount, fresh.PressedCount, fresh.FailedCount, fresh.TotalNumbers)
	s.notifier.Enqueue(c.NotifyRecipient, text)
}

// Pause suspends dialing. In-flight calls finish and bill normally.
func (s *Scheduler) Pause(ctx context.Context, tenantID, id string) error {
	c, ok, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if err := s.repo.UpdateStatus(ctx, c.ID, StatusPaused, StatusRunning); err != nil {
		return err
	}
	s.dialer.Stop(c.ID)
	return nil
}

// Resume continues a paused campaign from its remaining pending records.
// Counters and dedup state survive a pause. A campaign whose scheduled end
// already passed completes instead of resuming.
func (s *Scheduler) Resume(ctx context.Context, tenantID, id string) error {
	c, ok, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	now := s.clock().UTC()
	if s.ended(c, now) {
		if err := s.repo.UpdateStatus(ctx, c.ID, StatusCompleted, StatusPaused); err != nil {
			return err
		}
		s.dialer.Stop(c.ID)
		s.notifySummary(ctx, c)
		return nil
	}
	if err := s.repo.UpdateStatus(ctx, c.ID, StatusRunning, StatusPaused); err != nil {
		return err
	}
	if err := s.repo.TouchActivity(ctx, c.ID, now); err != nil {
		return err
	}
	c.Status = StatusRunning
	return s.dialer.Start(ctx, c)
}

// Cancel terminates a campaign from any pre-terminal state.
func (s *Scheduler) Cancel(ctx context.Context, tenantID, id string) error {
	c, ok, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if err := s.repo.UpdateStatus(ctx, c.ID, StatusCancelled, StatusScheduled, StatusRunning, StatusPaused); err != nil {
		return err
	}
	s.dialer.Stop(c.ID)
	return nil
}
