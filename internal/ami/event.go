package ami

import "strings"

// Event names consumed by the dialer. The switch emits many more; everything
// else is ignored by the reactor.
const (
	EventDTMFEnd           = "DTMFEnd"
	EventOriginateResponse = "OriginateResponse"
	EventHangup            = "Hangup"
)

// Event is one asynchronous frame from the switch management session.
// Fields keeps the raw key/value pairs as received; helpers below cover the
// keys the dialer cares about.
type Event struct {
	Name   string
	Fields map[string]string
}

func (e Event) Get(key string) string {
	if v, ok := e.Fields[key]; ok {
		return v
	}
	// Switch versions differ in header casing.
	for k, v := range e.Fields {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Exten is the destination extension the frame refers to (the dialed number).
func (e Event) Exten() string {
	if v := e.Get("Exten"); v != "" {
		return v
	}
	return e.Get("Extension")
}

func (e Event) Channel() string { return e.Get("Channel") }

// Digit is the DTMF digit on DTMFEnd frames.
func (e Event) Digit() string { return e.Get("Digit") }

// Success reports whether an OriginateResponse frame indicates the call was
// set up.
func (e Event) Success() bool {
	return strings.EqualFold(e.Get("Response"), "Success")
}

func (e Event) Cause() string { return e.Get("Cause") }

func (e Event) CauseText() string {
	if v := e.Get("Cause-txt"); v != "" {
		return v
	}
	return e.Get("Reason")
}

// Response is the synchronous reply to an issued action.
type Response struct {
	ActionID string
	Success  bool
	Message  string
	Fields   map[string]string
}

func responseFromBlock(block map[string]string) Response {
	return Response{
		ActionID: block["ActionID"],
		Success:  strings.EqualFold(block["Response"], "Success"),
		Message:  block["Message"],
		Fields:   block,
	}
}

func eventFromBlock(block map[string]string) Event {
	return Event{Name: block["Event"], Fields: block}
}
