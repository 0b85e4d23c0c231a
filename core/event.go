package core

// ExpectedAcceptCountHeader is set by delayed sources to the current
// expected accept count at the time the event was emitted.
const ExpectedAcceptCountHeader = "x-reactor-expectedAcceptCount"

// An Event is the bus payload: arbitrary data, string headers, and an
// optional reply-to key for request/reply over the bus.
type Event struct {
	Data    interface{}       `json:"data,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// ReplyTo is a notification key.  A consumer that wants to
	// answer this event notifies its observable with this key.
	ReplyTo interface{} `json:"-"`
}

// NewEvent wraps the given data in an Event.
func NewEvent(data interface{}) *Event {
	return &Event{
		Data: data,
	}
}

// Header returns the named header ("" if absent).
func (ev *Event) Header(name string) string {
	if ev.Headers == nil {
		return ""
	}
	return ev.Headers[name]
}

// SetHeader sets the named header, allocating the map if needed.
func (ev *Event) SetHeader(name, value string) *Event {
	if ev.Headers == nil {
		ev.Headers = make(map[string]string)
	}
	ev.Headers[name] = value
	return ev
}

// withHeaders returns a shallow copy of the event with the given
// headers merged in.  The original event is not modified; consumers
// on other selectors see it unchanged.
func (ev *Event) withHeaders(hs map[string]string) *Event {
	if len(hs) == 0 {
		return ev
	}
	copied := &Event{
		Data:    ev.Data,
		ReplyTo: ev.ReplyTo,
		Headers: make(map[string]string, len(ev.Headers)+len(hs)),
	}
	for k, v := range ev.Headers {
		copied.Headers[k] = v
	}
	for k, v := range hs {
		copied.Headers[k] = v
	}
	return copied
}

// ensureEvent wraps x in an Event unless it already is one.
func ensureEvent(x interface{}) *Event {
	if ev, is := x.(*Event); is {
		return ev
	}
	return NewEvent(x)
}
