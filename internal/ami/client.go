package ami

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dialer-platform/internal/config"
)

// Client maintains the persistent management session with the telephony
// switch: it logs in, keeps the connection alive across drops, issues actions
// and fans incoming asynchronous frames out on Events().
//
// Actions are matched to their responses by ActionID. Events are delivered in
// arrival order on a single buffered channel; the reactor is the sole
// consumer.
type Client struct {
	addr           string
	username       string
	secret         string
	actionTimeout  time.Duration
	reconnectDelay time.Duration

	// dial is injectable for tests.
	dial func(ctx context.Context) (net.Conn, error)

	log *slog.Logger

	mu      sync.Mutex // guards conn writes and pending
	conn    net.Conn
	pending map[string]chan Response

	seq    atomic.Int64
	events chan Event

	connected atomic.Bool
}

var (
	ErrNotConnected  = errors.New("ami: not connected")
	ErrActionTimeout = errors.New("ami: action timed out")
)

const eventBuffer = 256

func NewClient(cfg config.AMIConfig, log *slog.Logger) *Client {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	c := &Client{
		addr:           addr,
		username:       cfg.Username,
		secret:         cfg.Secret,
		actionTimeout:  cfg.ActionTimeout,
		reconnectDelay: cfg.ReconnectDelay,
		log:            log,
		pending:        make(map[string]chan Response),
		events:         make(chan Event, eventBuffer),
	}
	c.dial = func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", c.addr)
	}
	return c
}

// Events returns the asynchronous frame stream. The channel is never closed;
// consumers stop via their own context.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connected reports whether a logged-in session is currently up.
func (c *Client) Connected() bool { return c.connected.Load() }

// Run owns the session lifecycle: connect, login, read until the connection
// drops, then back off and reconnect. Returns when ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("ami session ended", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("ami dial: %w", err)
	}

	r := bufio.NewReader(conn)

	// Greeting line, e.g. "Asterisk Call Manager/5.0".
	if _, err := r.ReadString('\n'); err != nil {
		_ = conn.Close()
		return fmt.Errorf("ami greeting: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// Close the connection when ctx is cancelled so the read loop unblocks.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop(r) }()

	if err := c.login(ctx); err != nil {
		_ = conn.Close()
		<-readErr
		c.teardown()
		return fmt.Errorf("ami login: %w", err)
	}

	c.connected.Store(true)
	c.log.Info("ami session established", "addr", c.addr)

	err = <-readErr
	c.connected.Store(false)
	c.teardown()
	return err
}

func (c *Client) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	// Fail all in-flight actions; callers see ErrNotConnected semantics via
	// a failed Response.
	for id, ch := range c.pending {
		select {
		case ch <- Response{ActionID: id, Success: false, Message: "connection lost"}:
		default:
		}
		delete(c.pending, id)
	}
}

func (c *Client) readLoop(r *bufio.Reader) error {
	for {
		block, err := readBlock(r)
		if err != nil {
			return err
		}
		if len(block) == 0 {
			continue
		}

		if _, ok := block["Event"]; ok {
			ev := eventFromBlock(block)
			select {
			case c.events <- ev:
			default:
				// Slow consumer: dropping is preferable to stalling the
				// session; the reactor treats the stream as best-effort.
				c.log.Warn("ami event dropped", "event", ev.Name)
			}
			continue
		}

		if _, ok := block["Response"]; ok {
			resp := responseFromBlock(block)
			c.mu.Lock()
			ch, ok := c.pending[resp.ActionID]
			if ok {
				delete(c.pending, resp.ActionID)
			}
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
		}
	}
}

func (c *Client) login(ctx context.Context) error {
	resp, err := c.send(ctx, "Login", map[string]string{
		"Username": c.username,
		"Secret":   c.secret,
	}, nil)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("login rejected: %s", resp.Message)
	}
	return nil
}

// OriginateRequest carries everything required to place one outbound call.
type OriginateRequest struct {
	// Channel is the destination channel string, e.g. "SIP/trunk-a/4479...".
	Channel string

	// Context/Exten/Priority select the dialplan entry executed on answer.
	Context  string
	Exten    string
	Priority int

	CallerID string

	// Timeout is how long the switch lets the destination ring.
	Timeout time.Duration

	// Variables are per-call key/value pairs (campaign id, DTMF digit of
	// interest, IVR references, routing target).
	Variables map[string]string
}

// Originate issues the call-setup command and waits for the synchronous
// response. The call outcome itself arrives later as OriginateResponse /
// Hangup events.
func (c *Client) Originate(ctx context.Context, req OriginateRequest) error {
	if req.Channel == "" {
		return errors.New("ami: originate channel required")
	}

	fields := map[string]string{
		"Channel": req.Channel,
		"Async":   "true",
	}
	if req.Context != "" {
		fields["Context"] = req.Context
	}
	if req.Exten != "" {
		fields["Exten"] = req.Exten
	}
	if req.Priority > 0 {
		fields["Priority"] = strconv.Itoa(req.Priority)
	}
	if req.CallerID != "" {
		fields["CallerID"] = req.CallerID
	}
	if req.Timeout > 0 {
		fields["Timeout"] = strconv.FormatInt(req.Timeout.Milliseconds(), 10)
	}

	resp, err := c.send(ctx, "Originate", fields, req.Variables)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("ami: originate rejected: %s", resp.Message)
	}
	return nil
}

func (c *Client) send(ctx context.Context, action string, fields map[string]string, variables map[string]string) (Response, error) {
	id := strconv.FormatInt(c.seq.Add(1), 10)
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return Response{}, ErrNotConnected
	}
	c.pending[id] = ch
	payload := buildAction(action, id, fields, variables)
	_, err := c.conn.Write(payload)
	c.mu.Unlock()

	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Response{}, fmt.Errorf("ami write: %w", err)
	}

	timeout := c.actionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Response{}, ErrActionTimeout
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Response{}, ctx.Err()
	}
}

// buildAction serializes one action frame. Variables are emitted as repeated
// "Variable: key=value" headers, sorted for deterministic output.
func buildAction(action, actionID string, fields map[string]string, variables map[string]string) []byte {
	var b strings.Builder
	b.WriteString("Action: ")
	b.WriteString(action)
	b.WriteString("\r\n")
	b.WriteString("ActionID: ")
	b.WriteString(actionID)
	b.WriteString("\r\n")

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(fields[k])
		b.WriteString("\r\n")
	}

	vkeys := make([]string, 0, len(variables))
	for k := range variables {
		vkeys = append(vkeys, k)
	}
	sort.Strings(vkeys)
	for _, k := range vkeys {
		b.WriteString("Variable: ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(variables[k])
		b.WriteString("\r\n")
	}

	b.WriteString("\r\n")
	return []byte(b.String())
}

// readBlock reads one CRLF-terminated key/value frame, ending at a blank line.
func readBlock(r *bufio.Reader) (map[string]string, error) {
	block := make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return block, nil
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			// Banner or garbage between frames; skip.
			continue
		}
		block[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
}
