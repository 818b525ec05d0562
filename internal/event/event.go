// Package event defines the transport-neutral inbound event and outbound
// message types shared by the dispatcher, the limiter and the adapters.
package event

import (
	"context"
	"time"
)

// Event is one inbound chat event, already decoded by a transport adapter.
type Event struct {
	ID        string
	GroupID   string // empty for private messages
	ChannelID string
	UserID    string
	SelfID    string
	Username  string
	Text      string
	ToMe      bool // bot was mentioned or addressed in private
	Time      time.Time
	Raw       any
}

// IsGroup reports whether the event originated in a group chat.
func (e *Event) IsGroup() bool {
	return e != nil && e.GroupID != ""
}

// FromSelf reports whether the bot itself authored the event.
func (e *Event) FromSelf() bool {
	return e != nil && e.SelfID != "" && e.UserID == e.SelfID
}

// Destination is the identifier outbound replies are addressed to.
func (e *Event) Destination() string {
	if e == nil {
		return ""
	}
	return e.ChannelID
}

// Message is an outbound payload. Mention, when set, is the user ID the
// transport should address the message to.
type Message struct {
	Text    string
	Mention string
}

// Deliverer is the primitive that actually puts a message on the wire.
type Deliverer interface {
	Deliver(ctx context.Context, destination string, msg Message) error
}

// DeliverFunc adapts a function to Deliverer.
type DeliverFunc func(ctx context.Context, destination string, msg Message) error

func (f DeliverFunc) Deliver(ctx context.Context, destination string, msg Message) error {
	return f(ctx, destination, msg)
}
