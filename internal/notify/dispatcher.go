package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// maxAttempts bounds how often a throttled message is retried before it is
// dropped.
const maxAttempts = 3

// ThrottledError is returned by a Sender when the downstream service asks us
// to back off.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled, retry after %s", e.RetryAfter)
}

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}

type message struct {
	Recipient string
	Text      string
}

// Dispatcher delivers notifications strictly in order, one at a time, with a
// fixed pause between sends. A throttle response delays the current message
// and retries it; any other failure drops it. Later messages never overtake
// earlier ones.
type Dispatcher struct {
	sender   Sender
	interval time.Duration
	queue    chan message
	log      *slog.Logger

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration)
}

func NewDispatcher(sender Sender, interval time.Duration, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{
		sender:   sender,
		interval: interval,
		queue:    make(chan message, 1024),
		log:      log,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Enqueue adds a message to the tail of the queue. Never blocks: when the
// queue is full the message is dropped with a warning.
func (d *Dispatcher) Enqueue(recipient, text string) {
	if recipient == "" || text == "" {
		return
	}
	select {
	case d.queue <- message{Recipient: recipient, Text: text}:
	default:
		d.log.Warn("notification queue full, dropping", "recipient", recipient)
	}
}

// Run is the single consumer loop. Returns when ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.deliver(ctx, msg)
			d.sleep(ctx, d.interval)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg message) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := d.sender.Send(ctx, msg.Recipient, msg.Text)
		if err == nil {
			return
		}

		var throttled *ThrottledError
		if !errors.As(err, &throttled) {
			d.log.Error("notification send failed", "recipient", msg.Recipient, "err", err)
			return
		}
		if attempt == maxAttempts {
			d.log.Warn("notification dropped after throttle retries", "recipient", msg.Recipient, "attempts", attempt)
			return
		}
		d.log.Info("notification throttled", "recipient", msg.Recipient, "retry_after", throttled.RetryAfter, "attempt", attempt)
		d.sleep(ctx, throttled.RetryAfter)
		if ctx.Err() != nil {
			return
		}
	}
}

// Pending reports queued messages not yet handed to the sender.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
