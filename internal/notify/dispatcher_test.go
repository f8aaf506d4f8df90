package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type scriptedSender struct {
	mu   sync.Mutex
	sent []string
	// errs is consumed one per Send call; nil entries mean success.
	errs []error
}

func (s *scriptedSender) Send(_ context.Context, recipient, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if len(s.errs) > 0 {
		err = s.errs[0]
		s.errs = s.errs[1:]
	}
	if err == nil {
		s.sent = append(s.sent, recipient+"|"+text)
	}
	return err
}

func (s *scriptedSender) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

// drain runs the dispatcher until the queue is empty, with sleeps recorded
// instead of slept.
func drain(t *testing.T, d *Dispatcher) []time.Duration {
	t.Helper()
	var slept []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) {
		slept = append(slept, dur)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	for i := 0; i < 100 && d.Pending() > 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
	return slept
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	sender := &scriptedSender{}
	d := NewDispatcher(sender, time.Second, nil)

	d.Enqueue("chat-1", "first")
	d.Enqueue("chat-1", "second")
	d.Enqueue("chat-2", "third")
	drain(t, d)

	got := sender.delivered()
	want := []string{"chat-1|first", "chat-1|second", "chat-2|third"}
	if len(got) != len(want) {
		t.Fatalf("delivered = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivered[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatcher_ThrottleRetriesThenDelivers(t *testing.T) {
	sender := &scriptedSender{
		errs: []error{
			&ThrottledError{RetryAfter: 7 * time.Second},
			nil,
		},
	}
	d := NewDispatcher(sender, time.Second, nil)
	d.Enqueue("chat-1", "hello")
	slept := drain(t, d)

	if got := sender.delivered(); len(got) != 1 {
		t.Fatalf("delivered = %v", got)
	}
	// The throttle pause comes before the regular inter-send pause.
	if len(slept) < 2 || slept[0] != 7*time.Second {
		t.Fatalf("sleeps = %v", slept)
	}
}

func TestDispatcher_ThrottleGivesUpAfterRetries(t *testing.T) {
	throttle := &ThrottledError{RetryAfter: time.Second}
	sender := &scriptedSender{
		errs: []error{throttle, throttle, throttle, nil},
	}
	d := NewDispatcher(sender, time.Second, nil)
	d.Enqueue("chat-1", "dropped")
	d.Enqueue("chat-1", "kept")
	drain(t, d)

	got := sender.delivered()
	if len(got) != 1 || got[0] != "chat-1|kept" {
		t.Fatalf("delivered = %v, want only the second message", got)
	}
}

func TestDispatcher_HardFailureDropsImmediately(t *testing.T) {
	sender := &scriptedSender{
		errs: []error{errors.New("bad recipient"), nil},
	}
	d := NewDispatcher(sender, time.Second, nil)
	d.Enqueue("chat-1", "broken")
	d.Enqueue("chat-1", "fine")
	drain(t, d)

	got := sender.delivered()
	if len(got) != 1 || got[0] != "chat-1|fine" {
		t.Fatalf("delivered = %v", got)
	}
}

func TestDispatcher_EnqueueIgnoresEmpty(t *testing.T) {
	d := NewDispatcher(&scriptedSender{}, time.Second, nil)
	d.Enqueue("", "text")
	d.Enqueue("chat-1", "")
	if d.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", d.Pending())
	}
}

func TestDisplayNumber(t *testing.T) {
	if got := DisplayNumber("14155550100"); got == "14155550100" || got == "" {
		// Any international formatting is acceptable; it must differ from
		// the raw digits.
		t.Fatalf("DisplayNumber = %q", got)
	}
	if got := DisplayNumber("12"); got != "12" {
		t.Fatalf("unparseable number changed: %q", got)
	}
	if got := DisplayNumber(""); got != "" {
		t.Fatalf("empty number changed: %q", got)
	}
}
